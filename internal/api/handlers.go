package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/starford/sidekick/internal/broker"
	"github.com/starford/sidekick/internal/engines"
)

// Handler holds bridge API route handlers.
type Handler struct {
	broker   *broker.Broker
	registry *engines.Registry
}

// NewHandler creates a new Handler.
func NewHandler(b *broker.Broker, reg *engines.Registry) *Handler {
	return &Handler{broker: b, registry: reg}
}

// Events handles GET /api/sessions/{id}/events.
//
// The session stays registered for exactly the lifetime of this stream;
// closing the connection is the disconnect.
//
//	@Summary		Open a session event stream
//	@Tags			sessions
//	@Param			id	path	string	true	"Session ID"
//	@Produce		text/event-stream
//	@Security		BearerAuth
//	@Router			/sessions/{id}/events [get]
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("session id is required"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := h.broker.Connect(id)
	defer h.broker.Disconnect(id)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(frame)
			flusher.Flush()
		}
	}
}

// Query handles POST /api/sessions/{id}/query.
//
// The reply is not in this response: it arrives as a frame on the session's
// event stream. Accepting the dispatch is all this endpoint reports.
//
//	@Summary		Dispatch a search for a session
//	@Tags			sessions
//	@Accept			json
//	@Param			id		path	string			true	"Session ID"
//	@Param			body	body	QueryRequest	true	"Query to dispatch"
//	@Success		202		"Dispatched"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/query [post]
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("session id is required"))
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Type != "query" {
		writeJSON(w, http.StatusBadRequest, errorBody("unsupported message type"))
		return
	}
	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query is required"))
		return
	}

	h.broker.Query(id, req.Query)
	w.WriteHeader(http.StatusAccepted)
}

// TabEvent handles POST /api/tabs/{id}/event.
//
//	@Summary		Report a tab activation or completed navigation
//	@Tags			tabs
//	@Accept			json
//	@Param			id		path	int				true	"Tab ID"
//	@Param			body	body	TabEventRequest	true	"Tab state"
//	@Success		202		"Recorded"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tabs/{id}/event [post]
func (h *Handler) TabEvent(w http.ResponseWriter, r *http.Request) {
	tabID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("tab id must be an integer"))
		return
	}

	var req TabEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.URL == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("url is required"))
		return
	}

	h.broker.TabEvent(tabID, req.URL)
	w.WriteHeader(http.StatusAccepted)
}

// Control handles POST /api/messages. Fire-and-forget: always accepted,
// outcomes are logged, never returned.
//
//	@Summary		Send a fire-and-forget control message
//	@Tags			messages
//	@Accept			json
//	@Param			body	body	ControlMessage	true	"Control message"
//	@Success		202		"Accepted"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/messages [post]
func (h *Handler) Control(w http.ResponseWriter, r *http.Request) {
	var msg ControlMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if msg.Type == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("type is required"))
		return
	}

	h.broker.Control(msg)
	w.WriteHeader(http.StatusAccepted)
}

// Detect handles POST /api/detect.
//
//	@Summary		Detect the search provider for a page snapshot
//	@Tags			detect
//	@Accept			json
//	@Produce		json
//	@Param			body	body		DetectRequest	true	"Page snapshot"
//	@Success		200		{object}	DetectResponse
//	@Success		204		"No provider matched"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/detect [post]
func (h *Handler) Detect(w http.ResponseWriter, r *http.Request) {
	var req DetectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.URL == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("url is required"))
		return
	}

	page, err := engines.NewPage(req.URL)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid url"))
		return
	}
	page.Generator = req.Generator
	page.Inputs = req.Inputs

	engine, query, ok := h.registry.DetectQuery(page)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, DetectResponse{
		Engine: engine.Name(),
		Query:  query,
		Mount:  page.Mount(),
	})
}
