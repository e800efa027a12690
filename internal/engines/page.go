// Package engines implements detection and query extraction for the
// supported search providers.
package engines

import "net/url"

// Page is a snapshot of the page context an engine can observe: the location
// URL, the generator meta tag, and the values of named page elements.
type Page struct {
	URL       *url.URL
	Generator string
	Inputs    map[string]string

	mount *Mount
}

// NewPage builds a page snapshot from a raw location URL.
func NewPage(rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return &Page{URL: u, Inputs: map[string]string{}}, nil
}

// Hostname returns the page's hostname, empty when the URL is absent.
func (p *Page) Hostname() string {
	if p.URL == nil {
		return ""
	}
	return p.URL.Hostname()
}

// Mount describes the singleton overlay container attached to a page. It is
// fixed-position and lets pointer events pass through to the host page;
// descendants opt back in individually.
type Mount struct {
	ID            string `json:"id"`
	Position      string `json:"position"`
	ZIndex        int    `json:"zIndex"`
	PointerEvents bool   `json:"pointerEvents"`
}

// Mount returns the page's overlay container, creating it on first call. A
// second call returns the existing container rather than a duplicate.
func (p *Page) Mount() *Mount {
	if p.mount == nil {
		p.mount = &Mount{
			ID:            "sidekick-root",
			Position:      "fixed",
			ZIndex:        9999,
			PointerEvents: false,
		}
	}
	return p.mount
}

// param reads a query-string parameter from the page URL.
func (p *Page) param(key string) string {
	if p.URL == nil {
		return ""
	}
	return p.URL.Query().Get(key)
}
