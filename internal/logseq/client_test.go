package logseq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/starford/sidekick/internal/apperr"
	"github.com/starford/sidekick/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testClient starts a fake note-store server and returns a client pointed at it.
func testClient(t *testing.T, graph string, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(portStr)

	return NewClient(func() Endpoint {
		return Endpoint{Host: host, Port: port, Graph: graph}
	}, discardLogger())
}

func TestGetGraphCaching(t *testing.T) {
	calls := 0
	c := testClient(t, "work", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/show" {
			t.Errorf("path = %q, want /show", r.URL.Path)
		}
		if r.URL.Query().Get("graph") != "work" {
			t.Errorf("graph param = %q", r.URL.Query().Get("graph"))
		}
		calls++
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]string{"path": "/graphs/work"},
		})
	}))

	g, err := c.GetGraph(context.Background())
	if err != nil {
		t.Fatalf("GetGraph: %v", err)
	}
	if g.Name != "work" || g.Path != "/graphs/work" {
		t.Errorf("graph = %+v", g)
	}

	// Second call is served from cache.
	if _, err := c.GetGraph(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("remote calls = %d, want 1", calls)
	}

	// ClearCache forces a fresh remote call.
	c.ClearCache()
	if _, err := c.GetGraph(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("remote calls after ClearCache = %d, want 2", calls)
	}
}

func TestClearCacheDuringGraphResolution(t *testing.T) {
	var (
		mu    sync.Mutex
		graph = "old"
		calls int
		c     *Client
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		first := calls == 1
		if first {
			graph = "new"
		}
		client := c
		mu.Unlock()
		if first {
			// Invalidate while this resolution is still in flight; its result
			// must not be re-cached after the invalidation.
			client.ClearCache()
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]string{"path": "/graphs/" + r.URL.Query().Get("graph")},
		})
	}))
	t.Cleanup(srv.Close)

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(portStr)

	mu.Lock()
	c = NewClient(func() Endpoint {
		mu.Lock()
		defer mu.Unlock()
		return Endpoint{Host: host, Port: port, Graph: graph}
	}, discardLogger())
	mu.Unlock()

	// The in-flight resolution keeps the snapshot it captured at start.
	g, err := c.GetGraph(context.Background())
	if err != nil {
		t.Fatalf("GetGraph: %v", err)
	}
	if g.Name != "old" {
		t.Errorf("graph = %q, want the snapshot captured at start", g.Name)
	}

	// The invalidation must stick: the next call re-reads configuration and
	// resolves the new graph remotely instead of serving the stale one.
	g, err = c.GetGraph(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if g.Name != "new" {
		t.Errorf("graph after ClearCache = %q, want new", g.Name)
	}
	mu.Lock()
	if calls != 2 {
		t.Errorf("remote calls = %d, want 2", calls)
	}
	mu.Unlock()
}

func TestIsDBGraph(t *testing.T) {
	var (
		mu   sync.Mutex
		data = `{"path":"/graphs/work","type":"db"}`
	)
	c := testClient(t, "work", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/show" {
			t.Errorf("path = %q, want /show", r.URL.Path)
		}
		mu.Lock()
		body := data
		mu.Unlock()
		_, _ = w.Write([]byte(`{"success":true,"data":` + body + `}`))
	}))

	setData := func(body string) {
		mu.Lock()
		data = body
		mu.Unlock()
	}

	db, err := c.IsDBGraph(context.Background())
	if err != nil || !db {
		t.Errorf("db = %v, err = %v, want true for type db", db, err)
	}

	setData(`{"path":"/graphs/work","type":"file"}`)
	db, err = c.IsDBGraph(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if db {
		t.Error("db = true, want false for type file")
	}

	// Older servers omit the type field entirely; treat that as a DB graph.
	setData(`{"path":"/graphs/work"}`)
	db, err = c.IsDBGraph(context.Background())
	if err != nil || !db {
		t.Errorf("db = %v, err = %v, want true when type is absent", db, err)
	}
}

func TestSearch(t *testing.T) {
	c := testClient(t, "work", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("q"); got != "project X" {
			t.Errorf("q = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": []map[string]any{
				{
					"block/uuid":  "b1",
					"block/title": "project X kickoff",
					"block/page": map[string]any{
						"db/id":       7,
						"block/uuid":  "p1",
						"block/title": "Projects",
						"block/name":  "projects",
					},
				},
			},
		})
	}))

	matches, err := c.Search(context.Background(), "project X")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(matches))
	}
	m := matches[0]
	if m.UUID != "b1" || m.Title != "project X kickoff" {
		t.Errorf("match = %+v", m)
	}
	if m.Page == nil || m.Page.ID != 7 || m.Page.Name != "projects" {
		t.Errorf("page = %+v", m.Page)
	}
}

func TestSearchFailureIsNoResult(t *testing.T) {
	c := testClient(t, "work", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false})
	}))

	_, err := c.Search(context.Background(), "nothing")
	if !errors.Is(err, apperr.ErrNoResult) {
		t.Errorf("err = %v, want ErrNoResult", err)
	}
}

func TestSearchUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	u, _ := url.Parse(srv.URL)
	host, portStr, _ := net.SplitHostPort(u.Host)
	port, _ := strconv.Atoi(portStr)
	srv.Close() // nothing is listening anymore

	c := NewClient(func() Endpoint {
		return Endpoint{Host: host, Port: port, Graph: "work"}
	}, discardLogger())

	_, err := c.Search(context.Background(), "anything")
	if !errors.Is(err, apperr.ErrCannotConnect) {
		t.Errorf("err = %v, want ErrCannotConnect", err)
	}
}

func TestGetBlockByUUID(t *testing.T) {
	c := testClient(t, "work", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/query" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Graph string `json:"graph"`
			Query string `json:"query"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Graph != "work" {
			t.Errorf("graph = %q", body.Graph)
		}
		if !strings.Contains(body.Query, `#uuid "b42"`) {
			t.Errorf("query missing uuid: %s", body.Query)
		}

		record := map[string]any{
			"block/uuid":    "b42",
			"block/content": "write the report",
			"block/page": map[string]any{
				"db/id":       3,
				"block/uuid":  "p9",
				"block/title": "Work Log",
			},
			"block/tags":             []map[string]any{{"block/title": "report"}},
			"logseq.property/status": map[string]any{"block/title": "Backlog"},
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    []any{[]any{record}},
		})
	}))

	b, err := c.GetBlockByUUID(context.Background(), "b42")
	if err != nil {
		t.Fatalf("GetBlockByUUID: %v", err)
	}
	if b.UUID != "b42" || b.Content != "write the report" {
		t.Errorf("block = %+v", b)
	}
	if b.Status != "Backlog" || b.Marker != "LATER" {
		t.Errorf("status = %q marker = %q, want Backlog/LATER", b.Status, b.Marker)
	}
	if len(b.Tags) != 1 || b.Tags[0] != "report" {
		t.Errorf("tags = %v", b.Tags)
	}
	if b.Page.ID != 3 || b.Page.Name != "Work Log" || b.Page.UUID != "p9" {
		t.Errorf("page = %+v", b.Page)
	}
	if b.Format != "markdown" {
		t.Errorf("format = %q", b.Format)
	}
}

func TestListGraphsFiltersSectionHeaders(t *testing.T) {
	c := testClient(t, "work", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/list" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"stdout":  "DB Graphs:\nlogseq_db_work\n\nFile Graphs:\nnotes\n",
		})
	}))

	names, err := c.ListGraphs(context.Background())
	if err != nil {
		t.Fatalf("ListGraphs: %v", err)
	}
	want := []string{"logseq_db_work", "notes"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestCheckHealth(t *testing.T) {
	status := "healthy"
	c := testClient(t, "work", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "status": status})
	}))

	healthy, err := c.CheckHealth(context.Background())
	if err != nil || !healthy {
		t.Errorf("healthy = %v, err = %v", healthy, err)
	}

	// Reachable but unhealthy is not an error.
	status = "degraded"
	healthy, err = c.CheckHealth(context.Background())
	if err != nil {
		t.Errorf("err = %v, want nil", err)
	}
	if healthy {
		t.Error("healthy = true, want false")
	}
}

func TestMutationsAreGated(t *testing.T) {
	calls := 0
	c := testClient(t, "work", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))

	if err := c.AppendBlock(context.Background(), "journal", "text"); !errors.Is(err, apperr.ErrUnsupported) {
		t.Errorf("AppendBlock err = %v, want ErrUnsupported", err)
	}
	if err := c.UpdateBlock(context.Background(), models.Block{UUID: "b1"}); !errors.Is(err, apperr.ErrUnsupported) {
		t.Errorf("UpdateBlock err = %v, want ErrUnsupported", err)
	}
	if calls != 0 {
		t.Errorf("mutations reached the server: %d calls", calls)
	}
}
