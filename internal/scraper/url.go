package scraper

import (
	"fmt"
	"strings"
)

// FallbackImage is served when neither the page nor the GS1 pattern
// yields a product picture.
const FallbackImage = "https://via.placeholder.com/300x300/cccccc/666666?text=Add+Image"

// ProductURL builds the canonical lookup URL for a barcode on the
// configured host.
func ProductURL(host, barcode string) string {
	return fmt.Sprintf("https://%s/01/%s", host, barcode)
}

// siteOrigin is the scheme+host root used to resolve relative image
// sources.
func siteOrigin(host string) string {
	return "https://" + host
}

// normalizeImageSrc resolves an img src against the site origin. It
// accepts absolute, protocol-relative and root-relative URLs; anything
// else (data URIs filtered earlier, fragment-only hrefs) is rejected.
func normalizeImageSrc(origin, src string) (string, bool) {
	switch {
	case strings.HasPrefix(src, "http"):
		return src, true
	case strings.HasPrefix(src, "//"):
		return "https:" + src, true
	case strings.HasPrefix(src, "/"):
		return origin + src, true
	}
	return "", false
}

// synthesizeImageURL constructs the GS1 DataKart render URL from the
// barcode's 9-digit company prefix. Only full GTIN-13/14 codes carry
// enough structure for it; shorter codes get the placeholder.
func synthesizeImageURL(barcode string) string {
	if len(barcode) < 13 {
		return FallbackImage
	}
	prefix := barcode[:9]
	return fmt.Sprintf("https://api.gs1datakart.org/files/render?file_key=product_upload/%s/%s/%s_f.png",
		prefix, barcode, barcode)
}
