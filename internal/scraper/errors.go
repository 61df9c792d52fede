package scraper

import "errors"

var (
	// ErrEngineUnavailable means the browser could not be launched or
	// attached to. The HTTP fallback path is still worth trying.
	ErrEngineUnavailable = errors.New("browser engine unavailable")

	// ErrNotFound means the site rendered but yielded no product: an
	// error page, or a page with neither a name nor a price. This is an
	// expected outcome, not a fault.
	ErrNotFound = errors.New("product not found")

	// ErrNavigation means the page load itself failed (DNS, TLS,
	// timeout). The barcode's fate is undecided.
	ErrNavigation = errors.New("navigation failed")
)
