package logseq

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/starford/sidekick/internal/apperr"
	"github.com/starford/sidekick/internal/models"
	"github.com/starford/sidekick/internal/render"
)

// ClientAPI is the transport surface the service layer builds on.
type ClientAPI interface {
	GetGraph(ctx context.Context) (models.Graph, error)
	Search(ctx context.Context, query string) ([]RawMatch, error)
	GetBlockByUUID(ctx context.Context, uuid string) (models.Block, error)
	IsDBGraph(ctx context.Context) (bool, error)
	ListGraphs(ctx context.Context) ([]string, error)
	AppendBlock(ctx context.Context, page, content string) error
	CheckHealth(ctx context.Context) (bool, error)
	ClearCache()
}

// URLSearchOptions controls the widening behavior of URLSearch.
type URLSearchOptions struct {
	Fuzzy bool
}

// MarkerChangeResult is the structured outcome of a marker change attempt.
// On this read-only transport it always reports failure; the UI degrades
// gracefully instead of crashing.
type MarkerChangeResult struct {
	Type   string `json:"type"`
	UUID   string `json:"uuid"`
	Status string `json:"status"`
	Msg    string `json:"msg"`
}

// Service turns client primitives into the domain operations consumed by the
// UI layer, hiding the provider response shape.
type Service struct {
	client ClientAPI
	logger *slog.Logger
}

// NewService creates a service on top of client.
func NewService(client ClientAPI, logger *slog.Logger) *Service {
	return &Service{client: client, logger: logger}
}

// GraphName resolves the active graph and strips the DB-graph storage prefix
// from its name.
func (s *Service) GraphName(ctx context.Context) (string, error) {
	g, err := s.client.GetGraph(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(g.Name, "logseq_db_"), nil
}

// GraphInfo describes the active graph: its display name, storage path, and
// whether it stores task state as structured properties (a DB graph).
type GraphInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
	DB   bool   `json:"db"`
}

// GraphInfo resolves the active graph and its storage flavor.
func (s *Service) GraphInfo(ctx context.Context) (GraphInfo, error) {
	g, err := s.client.GetGraph(ctx)
	if err != nil {
		return GraphInfo{}, err
	}
	db, err := s.client.IsDBGraph(ctx)
	if err != nil {
		return GraphInfo{}, err
	}
	return GraphInfo{
		Name: strings.TrimPrefix(g.Name, "logseq_db_"),
		Path: g.Path,
		DB:   db,
	}, nil
}

// ListGraphs returns the graph names known to the note-store server.
func (s *Service) ListGraphs(ctx context.Context) ([]string, error) {
	return s.client.ListGraphs(ctx)
}

// Search runs a full-text search and normalizes the provider-shaped records
// into pages and blocks. A no-result response is a benign empty result that
// still carries the graph name.
func (s *Service) Search(ctx context.Context, query string) (models.SearchResult, error) {
	graph, err := s.GraphName(ctx)
	if err != nil {
		return models.SearchResult{}, err
	}

	result := models.SearchResult{
		Graph:  graph,
		Blocks: []models.Block{},
		Pages:  []models.PageRef{},
	}

	matches, err := s.client.Search(ctx, query)
	if err != nil {
		if errors.Is(err, apperr.ErrNoResult) {
			return result, nil
		}
		return models.SearchResult{}, err
	}

	for _, m := range matches {
		if m.Page == nil {
			// No parent page reference: the record is itself a page.
			name := m.Title
			if name == "" {
				name = m.Content
			}
			result.Pages = append(result.Pages, models.PageRef{
				UUID: m.UUID,
				Name: name,
			})
			continue
		}
		result.Blocks = append(result.Blocks, render.Block(m.toBlock(), graph, query))
	}

	result.Count = len(result.Blocks) + len(result.Pages)
	return result, nil
}

// GetBlock fetches one block and renders its display form. includeChildren is
// accepted for interface compatibility; the read-only transport returns the
// block itself only.
func (s *Service) GetBlock(ctx context.Context, uuid, graph, query string, includeChildren bool) (models.Block, error) {
	b, err := s.client.GetBlockByUUID(ctx, uuid)
	if err != nil {
		return models.Block{}, err
	}
	return render.Block(b, graph, query), nil
}

// URLSearch finds all blocks referencing the given page URL.
//
// The exact pass (host + path) always runs first; its match count is what is
// reported, regardless of a following fuzzy pass. Fuzzy widening re-queries
// by host only and strictly appends, with duplicates dropped first-seen-wins.
func (s *Service) URLSearch(ctx context.Context, u *url.URL, opts URLSearchOptions) (models.SearchResult, error) {
	graph, err := s.GraphName(ctx)
	if err != nil {
		return models.SearchResult{}, err
	}

	seen := make(map[string]struct{})
	blocks := []models.Block{}

	find := func(query string) error {
		matches, err := s.client.Search(ctx, query)
		if err != nil {
			if errors.Is(err, apperr.ErrNoResult) {
				return nil
			}
			return err
		}
		for _, m := range matches {
			if _, dup := seen[m.UUID]; dup {
				continue
			}
			seen[m.UUID] = struct{}{}
			blocks = append(blocks, m.toBlock())
		}
		return nil
	}

	if u.Host+u.Path != "" {
		if err := find(u.Host + u.Path); err != nil {
			return models.SearchResult{}, err
		}
	}

	// The reported count reflects only the exact pass; fuzzy matches are a
	// visible bonus, not counted.
	count := len(blocks)

	if opts.Fuzzy && u.Host != "" {
		if err := find(u.Host); err != nil {
			return models.SearchResult{}, err
		}
	}

	for i, b := range blocks {
		blocks[i] = render.Block(b, graph, u.String())
	}

	return models.SearchResult{
		Graph:  graph,
		Blocks: blocks,
		Pages:  []models.PageRef{},
		Count:  count,
	}, nil
}

// ChangeBlockMarker reports the capability gate of the read-only transport as
// a structured failure rather than an error.
func (s *Service) ChangeBlockMarker(uuid, marker string) MarkerChangeResult {
	s.logger.Warn("changeBlockMarker is not supported in HTTP server mode (read-only)",
		slog.String("uuid", uuid), slog.String("marker", marker))
	return MarkerChangeResult{
		Type:   "change-block-marker-result",
		UUID:   uuid,
		Status: "failed",
		Msg:    "Not supported in HTTP server mode (read-only)",
	}
}

// AppendBlock forwards to the client, which rejects it on this transport.
func (s *Service) AppendBlock(ctx context.Context, page, content string) error {
	return s.client.AppendBlock(ctx, page, content)
}

// CheckHealth probes the note-store server.
func (s *Service) CheckHealth(ctx context.Context) (bool, error) {
	return s.client.CheckHealth(ctx)
}

// ClearCache resets the client's resolved endpoint and graph.
func (s *Service) ClearCache() {
	s.client.ClearCache()
}

// toBlock converts a search match record into a block.
func (m RawMatch) toBlock() models.Block {
	content := m.Title
	if content == "" {
		content = m.Content
	}
	return models.Block{
		UUID:    m.UUID,
		Content: content,
		Format:  "markdown",
		Page:    flattenPage(m.Page),
	}
}
