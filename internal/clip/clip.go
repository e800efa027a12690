// Package clip renders note-capture templates. The contract is plain
// input/output: a template with placeholders in, a block string out.
package clip

import (
	"strings"
	"time"
)

// DefaultTemplate is used when the configuration carries no custom template.
const DefaultTemplate = "#[[Clip]] [{{title}}]({{url}})\n{{content}}"

// DefaultDateFormat is the journal date layout used when the note-store
// reports no preference.
const DefaultDateFormat = "2006-01-02"

// Input carries the values substituted into a clip template.
type Input struct {
	URL        string
	Title      string
	Content    string
	Time       time.Time
	DateFormat string
}

// Render substitutes the {{url}}, {{title}}, {{content}}, {{date}} and
// {{time}} placeholders of template. An empty template falls back to
// DefaultTemplate.
func Render(template string, in Input) string {
	if template == "" {
		template = DefaultTemplate
	}
	layout := in.DateFormat
	if layout == "" {
		layout = DefaultDateFormat
	}

	r := strings.NewReplacer(
		"{{url}}", in.URL,
		"{{title}}", in.Title,
		"{{content}}", in.Content,
		"{{date}}", in.Time.Format(layout),
		"{{time}}", in.Time.Format("15:04"),
	)
	return r.Replace(template)
}

// JournalPage returns the journal page name for t, matching the knowledge
// base's date format.
func JournalPage(t time.Time, dateFormat string) string {
	if dateFormat == "" {
		dateFormat = DefaultDateFormat
	}
	return t.Format(dateFormat)
}
