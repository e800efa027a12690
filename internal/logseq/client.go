// Package logseq implements the note-store client and service layer for a
// Logseq-style HTTP server.
package logseq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/starford/sidekick/internal/apperr"
	"github.com/starford/sidekick/internal/models"
)

// Endpoint is the resolved connection target: server address plus the graph
// every request is scoped to.
type Endpoint struct {
	Host      string
	Port      int
	Graph     string
	AuthToken string
}

// ServerURL returns the base URL of the note-store server.
func (e Endpoint) ServerURL() string {
	host := e.Host
	if host == "" {
		host = "localhost"
	}
	port := e.Port
	if port == 0 {
		port = 8765
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}

// ConfigSource supplies the current connection settings. The client resolves
// a snapshot lazily on first use and keeps it until ClearCache.
type ConfigSource func() Endpoint

// serverResponse is the envelope every note-store endpoint replies with.
type serverResponse struct {
	Success bool            `json:"success"`
	Status  string          `json:"status,omitempty"`
	Stdout  string          `json:"stdout,omitempty"`
	Stderr  string          `json:"stderr,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// RawPage is the provider-shaped nested page reference inside a match record.
type RawPage struct {
	ID    int    `json:"db/id"`
	UUID  string `json:"block/uuid"`
	Title string `json:"block/title"`
	Name  string `json:"block/name"`
}

// RawMatch is one provider-shaped record from GET /search. Normalization into
// the domain model is the service layer's job.
type RawMatch struct {
	UUID    string   `json:"block/uuid"`
	Title   string   `json:"block/title"`
	Content string   `json:"block/content"`
	Page    *RawPage `json:"block/page"`
}

// Client is the stateless-per-call HTTP transport to the note-store server.
//
// Its only mutable state is the lazily-resolved Endpoint snapshot. In-flight
// requests keep the snapshot they captured at start; ClearCache only affects
// requests issued afterwards, so it is safe to call at any time.
type Client struct {
	http   *http.Client
	source ConfigSource
	logger *slog.Logger

	// cached endpoint snapshot plus the graph resolved against it. The
	// graph is written only by a successful GetGraph or reset by ClearCache.
	cached      atomic.Pointer[Endpoint]
	cachedGraph atomic.Pointer[models.Graph]
	group       singleflight.Group
}

// NewClient creates a client reading connection settings from source.
func NewClient(source ConfigSource, logger *slog.Logger) *Client {
	return &Client{
		http:   &http.Client{Timeout: 10 * time.Second},
		source: source,
		logger: logger,
	}
}

// endpoint returns the cached Endpoint snapshot, resolving it from the config
// source on first use. The pointer identifies the snapshot: a resolution keeps
// its pointer for the whole request, and writes derived from it are valid only
// while cached still holds the same pointer.
func (c *Client) endpoint() *Endpoint {
	for {
		if ep := c.cached.Load(); ep != nil {
			return ep
		}
		ep := c.source()
		if c.cached.CompareAndSwap(nil, &ep) {
			return &ep
		}
	}
}

// ClearCache discards the resolved endpoint and graph so the next call
// re-reads the configuration and re-fetches the graph. Safe to call
// concurrently with in-flight requests; those keep the snapshot they
// captured at start.
func (c *Client) ClearCache() {
	c.cached.Store(nil)
	c.cachedGraph.Store(nil)
}

func (c *Client) fetch(ctx context.Context, method, path string, query url.Values, body any) (*serverResponse, error) {
	ep := c.endpoint()

	u := ep.ServerURL() + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if ep.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+ep.AuthToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	var sr serverResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &sr, nil
}

// classify logs err with full detail and maps it into the apperr taxonomy.
func (c *Client) classify(op string, err error) error {
	if err == nil {
		return nil
	}
	classified := apperr.Classify(err)
	c.logger.Error("note-store request failed",
		slog.String("op", op),
		slog.String("error", err.Error()))
	return classified
}

// GetGraph resolves the configured graph via GET /show. The result is cached
// until ClearCache; concurrent resolutions collapse into one request.
func (c *Client) GetGraph(ctx context.Context) (models.Graph, error) {
	if g := c.cachedGraph.Load(); g != nil {
		return *g, nil
	}
	ep := c.endpoint()
	graph := ep.Graph

	v, err, _ := c.group.Do("graph:"+graph, func() (any, error) {
		q := url.Values{"graph": {graph}}
		resp, err := c.fetch(ctx, http.MethodGet, "/show", q, nil)
		if err != nil {
			return models.Graph{}, err
		}

		g := models.Graph{Name: graph}
		if resp.Success && len(resp.Data) > 0 {
			var data struct {
				Path string `json:"path"`
			}
			if err := json.Unmarshal(resp.Data, &data); err == nil {
				g.Path = data.Path
			}
		}
		// Cache only while the endpoint snapshot this graph was resolved
		// against is still current. A ClearCache issued mid-flight wins: the
		// caller gets its answer, but the next GetGraph re-resolves.
		if c.cached.Load() == ep {
			c.cachedGraph.Store(&g)
		}
		return g, nil
	})
	if err != nil {
		return models.Graph{}, c.classify("get_graph", err)
	}
	return v.(models.Graph), nil
}

// IsDBGraph reports whether the configured graph stores task state as
// structured properties. Absent type information means DB graph.
func (c *Client) IsDBGraph(ctx context.Context) (bool, error) {
	q := url.Values{"graph": {c.endpoint().Graph}}
	resp, err := c.fetch(ctx, http.MethodGet, "/show", q, nil)
	if err != nil {
		return false, c.classify("is_db_graph", err)
	}
	if len(resp.Data) > 0 {
		var data struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(resp.Data, &data); err == nil && data.Type != "" {
			return data.Type == "db", nil
		}
	}
	return true, nil
}

// Search issues a parameterized search and returns the provider-shaped match
// records. A failed or empty result is ErrNoResult.
func (c *Client) Search(ctx context.Context, query string) ([]RawMatch, error) {
	ep := c.endpoint()
	q := url.Values{"q": {query}, "graph": {ep.Graph}}

	resp, err := c.fetch(ctx, http.MethodGet, "/search", q, nil)
	if err != nil {
		return nil, c.classify("search", err)
	}
	if !resp.Success || len(resp.Data) == 0 {
		return nil, apperr.ErrNoResult
	}

	var matches []RawMatch
	if err := json.Unmarshal(resp.Data, &matches); err != nil {
		return nil, c.classify("search", fmt.Errorf("decode matches: %w", err))
	}
	return matches, nil
}

// blockPull is the datalog pull pattern requesting the full attribute set
// needed to reconstruct a block, covering both file-based and DB graphs.
const blockPull = `{:query [:find (pull ?b [:block/uuid
                                           :block/content
                                           :block/format
                                           :block/marker
                                           :block/priority
                                           :block/properties
                                           :block/tags
                                           :block/page
                                           :logseq.property/status
                                           :logseq.property/priority
                                           {:block/page [:db/id :block/uuid :block/name :block/title]}
                                           {:block/tags [:block/title]}
                                           {:logseq.property/status [:block/title]}
                                           {:logseq.property/priority [:block/title]}])
                         :where [?b :block/uuid #uuid "%s"]]}`

// GetBlockByUUID pulls one block with its page reference, tags, and
// status/priority properties, flattening the nested reference shapes.
func (c *Client) GetBlockByUUID(ctx context.Context, uuid string) (models.Block, error) {
	ep := c.endpoint()

	body := map[string]string{
		"graph": ep.Graph,
		"query": fmt.Sprintf(blockPull, uuid),
	}
	resp, err := c.fetch(ctx, http.MethodPost, "/query", nil, body)
	if err != nil {
		return models.Block{}, c.classify("get_block", err)
	}
	if !resp.Success || len(resp.Data) == 0 {
		return models.Block{}, apperr.ErrNoResult
	}

	// The pull result is a nested array; the record sits at data[0][0].
	var rows [][]rawBlock
	if err := json.Unmarshal(resp.Data, &rows); err != nil {
		return models.Block{}, c.classify("get_block", fmt.Errorf("decode block: %w", err))
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return models.Block{}, apperr.ErrNoResult
	}
	return rows[0][0].toBlock(), nil
}

// ListGraphs returns the graph names known to the server. The /list output
// interleaves section headers ("DB Graphs" / "File Graphs") that are dropped.
func (c *Client) ListGraphs(ctx context.Context) ([]string, error) {
	resp, err := c.fetch(ctx, http.MethodGet, "/list", nil, nil)
	if err != nil {
		return nil, c.classify("list_graphs", err)
	}
	if !resp.Success {
		return nil, apperr.ErrUnknown
	}

	var names []string
	for _, line := range strings.Split(resp.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasSuffix(line, "Graphs") || strings.HasSuffix(line, ":") {
			continue
		}
		names = append(names, line)
	}
	return names, nil
}

// CheckHealth probes GET /health. A transport failure returns an error
// (server unreachable); healthy=false means the server answered but did not
// report a healthy status.
func (c *Client) CheckHealth(ctx context.Context) (bool, error) {
	resp, err := c.fetch(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return false, c.classify("check_health", err)
	}
	return resp.Success && resp.Status == "healthy", nil
}

// AppendBlock is unsupported on this read-only transport.
func (c *Client) AppendBlock(ctx context.Context, page, content string) error {
	return fmt.Errorf("appendBlock: %w", apperr.ErrUnsupported)
}

// UpdateBlock is unsupported on this read-only transport.
func (c *Client) UpdateBlock(ctx context.Context, block models.Block) error {
	return fmt.Errorf("updateBlock: %w", apperr.ErrUnsupported)
}
