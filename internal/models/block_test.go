package models

import "testing"

func TestMarkerForStatus(t *testing.T) {
	cases := []struct {
		status string
		want   string
	}{
		{"Todo", "TODO"},
		{"Doing", "DOING"},
		{"Done", "DONE"},
		{"Canceled", "CANCELED"},
		{"In Review", "REVIEW"},
		{"Backlog", "LATER"},
		{"Unknown Thing", "UNKNOWN THING"},
	}
	for _, c := range cases {
		if got := MarkerForStatus(c.status); got != c.want {
			t.Errorf("MarkerForStatus(%q) = %q, want %q", c.status, got, c.want)
		}
	}
}

func TestResolveMarker(t *testing.T) {
	// Explicit marker wins over status.
	b := Block{Marker: "NOW", Status: "Todo"}
	if got := b.ResolveMarker(); got != "NOW" {
		t.Errorf("marker = %q, want NOW", got)
	}

	// Status derives the marker when no marker is set.
	b = Block{Status: "Backlog"}
	if got := b.ResolveMarker(); got != "LATER" {
		t.Errorf("marker = %q, want LATER", got)
	}

	b = Block{}
	if got := b.ResolveMarker(); got != "" {
		t.Errorf("marker = %q, want empty", got)
	}
}
