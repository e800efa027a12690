// Package testutil provides shared test helpers for standing up fake
// note-store servers.
package testutil

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/starford/sidekick/internal/logseq"
)

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NoteStore starts a fake note-store server backed by handler and returns a
// config source pointing at it. The server is closed on test cleanup.
func NoteStore(t *testing.T, graph string, handler http.Handler) logseq.ConfigSource {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}

	return func() logseq.Endpoint {
		return logseq.Endpoint{Host: host, Port: port, Graph: graph}
	}
}

// WriteEnvelope writes a success envelope with data as the payload.
func WriteEnvelope(t *testing.T, w http.ResponseWriter, data any) {
	t.Helper()

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    json.RawMessage(raw),
	}); err != nil {
		t.Fatal(err)
	}
}
