package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/starford/sidekick/internal/broker"
	"github.com/starford/sidekick/internal/engines"
	"github.com/starford/sidekick/internal/logseq"
	"github.com/starford/sidekick/internal/models"
)

// fakeService answers every search with a fixed result.
type fakeService struct {
	result models.SearchResult
	err    error
}

func (f *fakeService) Search(context.Context, string) (models.SearchResult, error) {
	return f.result, f.err
}

func (f *fakeService) URLSearch(context.Context, *url.URL, logseq.URLSearchOptions) (models.SearchResult, error) {
	return f.result, f.err
}

func (f *fakeService) AppendBlock(context.Context, string, string) error { return f.err }
func (f *fakeService) ClearCache()                                       {}

// testEnv wires a broker over a fake service into the bridge router.
func testEnv(t *testing.T, authToken string) (http.Handler, *broker.Broker) {
	t.Helper()

	svc := &fakeService{result: models.SearchResult{
		Graph:  "work",
		Blocks: []models.Block{{UUID: "b1", Content: "hit"}},
		Count:  1,
	}}
	b := broker.New(broker.Options{Service: svc, Debounce: 10 * time.Millisecond})
	t.Cleanup(b.Close)

	router := NewRouter(b, engines.NewRegistry(), authToken != "", authToken)
	return router, b
}

func TestQueryDeliversReplyOnSessionStream(t *testing.T) {
	router, _ := testEnv(t, "")
	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sessions/s1/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	stream, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer stream.Body.Close()
	if stream.StatusCode != http.StatusOK {
		t.Fatalf("stream status = %d", stream.StatusCode)
	}
	if ct := stream.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	body, _ := json.Marshal(QueryRequest{Type: "query", Query: "hit"})
	resp, err := http.Post(srv.URL+"/sessions/s1/query", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("query status = %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(stream.Body)
	var data string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	if data == "" {
		t.Fatalf("no data frame received: %v", scanner.Err())
	}

	var reply Reply
	if err := json.Unmarshal([]byte(data), &reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if reply.Status != 200 || reply.Msg != "success" {
		t.Errorf("reply = %+v", reply)
	}
	if reply.Response == nil || len(reply.Response.Blocks) != 1 {
		t.Errorf("response = %+v", reply.Response)
	}
}

func TestQueryValidation(t *testing.T) {
	router, _ := testEnv(t, "")

	cases := []struct {
		name string
		body string
	}{
		{"wrong type", `{"type":"other","query":"x"}`},
		{"empty query", `{"type":"query","query":""}`},
		{"bad json", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/sessions/s1/query", strings.NewReader(tc.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestTabEvent(t *testing.T) {
	router, _ := testEnv(t, "")

	body, _ := json.Marshal(TabEventRequest{URL: "https://example.com/page"})
	req := httptest.NewRequest(http.MethodPost, "/tabs/7/event", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", w.Code)
	}

	// Non-integer tab id.
	req = httptest.NewRequest(http.MethodPost, "/tabs/abc/event", bytes.NewReader(body))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", w.Code)
	}
}

func TestControlMessage(t *testing.T) {
	router, _ := testEnv(t, "")

	body, _ := json.Marshal(ControlMessage{Type: "open-options"})
	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(`{"type":""}`))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing type status = %d, want 400", w.Code)
	}
}

func TestDetect(t *testing.T) {
	router, _ := testEnv(t, "")

	body, _ := json.Marshal(DetectRequest{URL: "https://www.google.com/search?q=logseq"})
	req := httptest.NewRequest(http.MethodPost, "/detect", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp DetectResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Engine != "google" || resp.Query != "logseq" {
		t.Errorf("detect = %+v", resp)
	}
	if resp.Mount == nil || resp.Mount.ID == "" {
		t.Errorf("mount = %+v", resp.Mount)
	}
}

func TestDetect_NoMatch(t *testing.T) {
	router, _ := testEnv(t, "")

	body, _ := json.Marshal(DetectRequest{URL: "https://example.com/"})
	req := httptest.NewRequest(http.MethodPost, "/detect", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	router, _ := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(`{"type":"open-options"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	router, _ := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(`{"type":"open-options"}`))
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Errorf("authed = %d, want 202", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	router, _ := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(`{"type":"open-options"}`))
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}
