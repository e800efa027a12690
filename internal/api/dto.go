package api

import (
	"github.com/starford/sidekick/internal/broker"
	"github.com/starford/sidekick/internal/engines"
)

// QueryRequest is the message a session posts to dispatch a search.
type QueryRequest struct {
	Type  string `json:"type" example:"query" validate:"required"`
	Query string `json:"query" example:"project X" validate:"required"`
}

// TabEventRequest reports a tab activation or completed navigation.
type TabEventRequest struct {
	URL string `json:"url" example:"https://example.com/page" validate:"required"`
}

// ControlMessage is a fire-and-forget host message (aliased from the broker).
type ControlMessage = broker.ControlMessage

// Reply is the session wire shape (aliased from the broker).
type Reply = broker.Reply

// DetectRequest carries a page snapshot for provider detection.
type DetectRequest struct {
	URL       string            `json:"url" validate:"required"`
	Generator string            `json:"generator,omitempty"`
	Inputs    map[string]string `json:"inputs,omitempty"`
}

// DetectResponse names the detected provider, its extracted query, and the
// overlay container descriptor for the page.
type DetectResponse struct {
	Engine string         `json:"engine" validate:"required"`
	Query  string         `json:"query" validate:"required"`
	Mount  *engines.Mount `json:"mount" validate:"required"`
}
