// Package render produces the display form of blocks: escaped HTML with the
// matched term highlighted and a deep link back into the knowledge base.
package render

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/starford/sidekick/internal/models"
)

// Block fills in the HTML display form of b. term is the search query (or the
// originating page URL for URL search) and is highlighted in the content. The
// wrapping element carries a deep link into graph for the UI to open.
func Block(b models.Block, graph, term string) models.Block {
	content := b.Content

	// The marker token is rendered as a separate chip, not as content text.
	marker := b.ResolveMarker()
	if marker != "" {
		content = strings.TrimPrefix(content, marker+" ")
	}

	rendered := highlight(html.EscapeString(content), term)
	if marker != "" {
		rendered = fmt.Sprintf(`<span class="marker marker-%s">%s</span> %s`,
			strings.ToLower(marker), html.EscapeString(marker), rendered)
	}
	if b.UUID != "" {
		rendered = fmt.Sprintf(`<div class="block" data-href="%s">%s</div>`,
			DeepLink(graph, b.UUID), rendered)
	}

	b.Marker = marker
	b.HTML = rendered
	return b
}

// DeepLink returns the logseq:// URL that opens the block in the app.
func DeepLink(graph, uuid string) string {
	return fmt.Sprintf("logseq://graph/%s?block-id=%s", url.PathEscape(graph), url.QueryEscape(uuid))
}

// highlight wraps case-insensitive occurrences of term in <mark> tags.
// escaped must already be HTML-escaped. Folding is done by the regexp engine:
// lowercasing the haystack by hand shifts byte offsets for runes whose case
// variants differ in UTF-8 length.
func highlight(escaped, term string) string {
	if term == "" {
		return escaped
	}
	re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(html.EscapeString(term)))
	if err != nil {
		return escaped
	}
	return re.ReplaceAllString(escaped, "<mark>$0</mark>")
}
