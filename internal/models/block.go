// Package models defines the domain types for Sidekick.
package models

import "strings"

// Graph identifies the knowledge base the user selected on the remote server.
type Graph struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// PageRef identifies a page without owning its content.
type PageRef struct {
	ID           int    `json:"id"`
	UUID         string `json:"uuid"`
	Name         string `json:"name"`
	OriginalName string `json:"originalName,omitempty"`
}

// Block represents one retrievable note unit (task, paragraph, etc.).
//
// Marker and Status are alternate representations of task state: file-based
// graphs carry a plain-text marker (TODO/DOING/...), DB graphs carry a
// structured status property. ResolveMarker reconciles the two.
type Block struct {
	UUID       string         `json:"uuid"`
	Content    string         `json:"content"`
	HTML       string         `json:"html"`
	Page       PageRef        `json:"page"`
	Marker     string         `json:"marker,omitempty"`
	Priority   string         `json:"priority,omitempty"`
	Status     string         `json:"status,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Format     string         `json:"format"`
}

// SearchResult is the normalized outcome of one search, never persisted.
// It always carries the graph name it was computed against, even when empty.
type SearchResult struct {
	Graph  string    `json:"graph"`
	Blocks []Block   `json:"blocks"`
	Pages  []PageRef `json:"pages"`
	Count  int       `json:"count"`
}

// SearchQuery is an extracted search term bound to the session that issued it.
type SearchQuery struct {
	Text      string `json:"text"`
	SessionID string `json:"sessionId"`
}

// statusMarkers maps DB-graph status values to legacy markers. Source values
// are case-sensitive.
var statusMarkers = map[string]string{
	"Todo":      "TODO",
	"Doing":     "DOING",
	"Done":      "DONE",
	"Canceled":  "CANCELED",
	"In Review": "REVIEW",
	"Backlog":   "LATER",
}

// MarkerForStatus maps a structured status value to its legacy marker token.
// Unrecognized values are upper-cased verbatim.
func MarkerForStatus(status string) string {
	if m, ok := statusMarkers[status]; ok {
		return m
	}
	return strings.ToUpper(status)
}

// ResolveMarker returns the display marker for the block: the explicit marker
// when set, otherwise one derived from the structured status.
func (b *Block) ResolveMarker() string {
	if b.Marker != "" {
		return b.Marker
	}
	if b.Status != "" {
		return MarkerForStatus(b.Status)
	}
	return ""
}
