package clip

import (
	"testing"
	"time"
)

func TestRender(t *testing.T) {
	in := Input{
		URL:     "https://example.com/post",
		Title:   "A Post",
		Content: "quoted selection",
		Time:    time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC),
	}

	got := Render("{{date}} {{time}}: [{{title}}]({{url}})\n> {{content}}", in)
	want := "2025-03-14 09:30: [A Post](https://example.com/post)\n> quoted selection"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRenderDefaultTemplate(t *testing.T) {
	got := Render("", Input{URL: "u", Title: "t", Content: "c"})
	want := "#[[Clip]] [t](u)\nc"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestJournalPage(t *testing.T) {
	ts := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	if got := JournalPage(ts, "Jan 2, 2006"); got != "Mar 14, 2025" {
		t.Errorf("got %q", got)
	}
	if got := JournalPage(ts, ""); got != "2025-03-14" {
		t.Errorf("default format got %q", got)
	}
}
