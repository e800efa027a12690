package engines

import (
	"net/url"
	"regexp"
	"strings"
)

// Engine is one search provider adapter.
type Engine interface {
	// Name identifies the provider.
	Name() string
	// Match reports whether the page belongs to this provider.
	Match(p *Page) bool
	// Query extracts the current search term; empty when absent.
	Query(p *Page) string
}

// Watching is implemented by engines whose provider renders new results
// without a page load; their query must be re-extracted on page mutations.
// All other engines rely on the page reload re-running detection.
type Watching interface {
	WatchesQuery() bool
}

var (
	googleHost     = regexp.MustCompile(`\.google(\.com?)?(\.\w{2})?(\.cat)?$`)
	ecosiaHost     = regexp.MustCompile(`ecosia\.org$`)
	bingHost       = regexp.MustCompile(`bing(\.com)?(\.\w{2})?$`)
	duckduckgoHost = regexp.MustCompile(`duckduckgo\.com$`)
	yandexHost     = regexp.MustCompile(`yandex\.(com|ru)$`)
	searxHost      = regexp.MustCompile(`^searx(ng)?\.`)
	kagiHost       = regexp.MustCompile(`kagi\.com$`)
	startpageHost  = regexp.MustCompile(`startpage\.com$`)
)

type google struct{}

func (google) Name() string { return "google" }
func (google) Match(p *Page) bool { return googleHost.MatchString(p.Hostname()) }
func (google) Query(p *Page) string { return p.param("q") }

type ecosia struct{}

func (ecosia) Name() string { return "ecosia" }
func (ecosia) Match(p *Page) bool { return ecosiaHost.MatchString(p.Hostname()) }
func (ecosia) Query(p *Page) string { return p.param("q") }

type bing struct{}

func (bing) Name() string { return "bing" }
func (bing) Match(p *Page) bool { return bingHost.MatchString(p.Hostname()) }
func (bing) Query(p *Page) string { return p.param("q") }

type duckduckgo struct{}

func (duckduckgo) Name() string { return "duckduckgo" }
func (duckduckgo) Match(p *Page) bool { return duckduckgoHost.MatchString(p.Hostname()) }
func (duckduckgo) Query(p *Page) string { return p.param("q") }

type yandex struct{}

func (yandex) Name() string { return "yandex" }
func (yandex) Match(p *Page) bool { return yandexHost.MatchString(p.Hostname()) }
func (yandex) Query(p *Page) string { return p.param("text") }

// searx covers self-hosted meta-search instances. The hostname alone is
// ambiguous, so the page-embedded generator marker is checked first.
type searx struct{}

func (searx) Name() string { return "searx" }

func (searx) Match(p *Page) bool {
	if strings.Contains(p.Generator, "searxng") {
		return true
	}
	return searxHost.MatchString(p.Hostname())
}

func (searx) Query(p *Page) string {
	// Instances expose the canonical search URL in a page element; prefer it
	// over the location bar, which may be a POST result page.
	if raw := p.Inputs["search_url"]; raw != "" {
		if u, err := url.Parse(raw); err == nil {
			return u.Query().Get("q")
		}
	}
	return p.param("q")
}

type baidu struct{}

func (baidu) Name() string { return "baidu" }
func (baidu) Match(p *Page) bool { return strings.Contains(p.Hostname(), "baidu.com") }
func (baidu) Query(p *Page) string { return p.param("wd") }
func (baidu) WatchesQuery() bool { return true }

type kagi struct{}

func (kagi) Name() string { return "kagi" }
func (kagi) Match(p *Page) bool { return kagiHost.MatchString(p.Hostname()) }
func (kagi) Query(p *Page) string { return p.param("q") }
func (kagi) WatchesQuery() bool { return true }

// startpage has no reliable query-string parameter; the term is read from
// the visible search input.
type startpage struct{}

func (startpage) Name() string { return "startpage" }
func (startpage) Match(p *Page) bool { return startpageHost.MatchString(p.Hostname()) }
func (startpage) Query(p *Page) string { return p.Inputs["q"] }
