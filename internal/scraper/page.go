package scraper

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Page is the read surface the extractor works against. Both the live
// browser page and the parsed static-HTML fallback implement it, so the
// selector cascades run unchanged on either path.
type Page interface {
	// URL is the final URL after redirects.
	URL() string
	Title() string
	// HTML is the full serialized document.
	HTML() string
	// First returns the first element matching the CSS selector.
	First(selector string) (Element, bool)
	// All returns every element matching the CSS selector, in document
	// order.
	All(selector string) []Element
}

// Element is one matched node.
type Element interface {
	Text() string
	Attr(name string) (string, bool)
}

// staticPage is a goquery-backed Page over already-fetched HTML. The
// fallback HTTP path produces these; tests do too.
type staticPage struct {
	url string
	doc *goquery.Document
}

// NewStaticPage parses HTML into a Page. url should be the request URL
// the body came from.
func NewStaticPage(url string, body io.Reader) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &staticPage{url: url, doc: doc}, nil
}

func (p *staticPage) URL() string { return p.url }

func (p *staticPage) Title() string {
	return strings.TrimSpace(p.doc.Find("title").First().Text())
}

func (p *staticPage) HTML() string {
	html, err := p.doc.Html()
	if err != nil {
		return ""
	}
	return html
}

func (p *staticPage) First(selector string) (Element, bool) {
	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, false
	}
	return staticElement{sel: sel}, true
}

func (p *staticPage) All(selector string) []Element {
	var out []Element
	p.doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		out = append(out, staticElement{sel: sel})
	})
	return out
}

type staticElement struct {
	sel *goquery.Selection
}

func (e staticElement) Text() string {
	return strings.TrimSpace(e.sel.Text())
}

func (e staticElement) Attr(name string) (string, bool) {
	return e.sel.Attr(name)
}
