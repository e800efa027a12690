package render

import (
	"strings"
	"testing"

	"github.com/starford/sidekick/internal/models"
)

func TestBlockHighlightsQuery(t *testing.T) {
	b := models.Block{UUID: "b1", Content: "TODO buy Milk at the store", Marker: "TODO"}

	out := Block(b, "work", "milk")
	if !strings.Contains(out.HTML, "<mark>Milk</mark>") {
		t.Errorf("html = %q, missing case-insensitive highlight", out.HTML)
	}
	if !strings.Contains(out.HTML, `class="marker marker-todo"`) {
		t.Errorf("html = %q, missing marker chip", out.HTML)
	}
	// The marker token is a chip, not body text.
	if strings.Contains(out.HTML, "TODO buy") {
		t.Errorf("html = %q, marker token left in content", out.HTML)
	}
	if !strings.Contains(out.HTML, `data-href="logseq://graph/work?block-id=b1"`) {
		t.Errorf("html = %q, missing deep link", out.HTML)
	}
}

func TestBlockHighlightsAfterLengthChangingRunes(t *testing.T) {
	// U+023A lowercases to a longer UTF-8 sequence; byte offsets computed on a
	// lowercased copy would run past the end of the original string.
	b := models.Block{UUID: "b1", Content: strings.Repeat("Ⱥ", 8) + " logseq"}

	out := Block(b, "work", "logseq")
	if !strings.Contains(out.HTML, "<mark>logseq</mark>") {
		t.Errorf("html = %q, missing highlight", out.HTML)
	}
	if !strings.Contains(out.HTML, "Ⱥ") {
		t.Errorf("html = %q, content mangled", out.HTML)
	}
}

func TestBlockEscapesContent(t *testing.T) {
	b := models.Block{Content: `<script>alert("x")</script>`}

	out := Block(b, "work", "")
	if strings.Contains(out.HTML, "<script>") {
		t.Errorf("html = %q, content not escaped", out.HTML)
	}
}

func TestBlockDerivesMarkerFromStatus(t *testing.T) {
	b := models.Block{Content: "review the draft", Status: "In Review"}

	out := Block(b, "work", "")
	if out.Marker != "REVIEW" {
		t.Errorf("marker = %q, want REVIEW", out.Marker)
	}
}

func TestDeepLink(t *testing.T) {
	got := DeepLink("work", "b42")
	if got != "logseq://graph/work?block-id=b42" {
		t.Errorf("link = %q", got)
	}
}
