package engines

import "context"

// Registry holds the ordered set of provider engines. Engines must be
// mutually exclusive by hostname/content; two engines claiming the same page
// is a configuration error.
type Registry struct {
	engines []Engine
}

// NewRegistry returns a registry with all built-in engines registered.
func NewRegistry() *Registry {
	return &Registry{engines: []Engine{
		google{},
		ecosia{},
		bing{},
		duckduckgo{},
		yandex{},
		searx{},
		kagi{},
		baidu{},
		startpage{},
	}}
}

// Register appends a custom engine to the registry.
func (r *Registry) Register(e Engine) {
	r.engines = append(r.engines, e)
}

// Engines returns the registered engines in order.
func (r *Registry) Engines() []Engine {
	return r.engines
}

// Detect returns the first engine that claims the page.
func (r *Registry) Detect(p *Page) (Engine, bool) {
	for _, e := range r.engines {
		if e.Match(p) {
			return e, true
		}
	}
	return nil, false
}

// DetectQuery detects the active engine and extracts its query. ok is false
// when no engine matches or the extracted query is empty; in that case the
// caller performs no further action.
func (r *Registry) DetectQuery(p *Page) (Engine, string, bool) {
	e, ok := r.Detect(p)
	if !ok {
		return nil, "", false
	}
	q := e.Query(p)
	if q == "" {
		return e, "", false
	}
	return e, q, true
}

// Observe forwards page snapshots to the engine's query extraction and calls
// cb only when the extracted query differs from the previously observed one.
// Edge-triggered: unrelated page churn that leaves the query unchanged never
// fires. Engines that do not watch queries ignore updates entirely.
//
// Observe blocks until updates is closed or ctx is cancelled.
func Observe(ctx context.Context, e Engine, initial *Page, updates <-chan *Page, cb func(query string)) {
	w, ok := e.(Watching)
	if !ok || !w.WatchesQuery() {
		return
	}

	last := e.Query(initial)
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-updates:
			if !ok {
				return
			}
			q := e.Query(p)
			if q == "" || q == last {
				continue
			}
			last = q
			cb(q)
		}
	}
}
