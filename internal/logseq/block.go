package logseq

import (
	"encoding/json"

	"github.com/starford/sidekick/internal/models"
)

// titledRef is a nested reference that DB graphs encode as {"block/title": x}
// and file-based graphs as a plain string.
type titledRef struct {
	Value string
}

func (t *titledRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.Value = s
		return nil
	}
	var obj struct {
		Title string `json:"block/title"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	t.Value = obj.Title
	return nil
}

// rawBlock is the provider-shaped pull record returned by POST /query.
type rawBlock struct {
	UUID         string         `json:"block/uuid"`
	Content      string         `json:"block/content"`
	Title        string         `json:"block/title"`
	Format       string         `json:"block/format"`
	Marker       string         `json:"block/marker"`
	Priority     string         `json:"block/priority"`
	Properties   map[string]any `json:"block/properties"`
	Tags         []titledRef    `json:"block/tags"`
	Page         *RawPage       `json:"block/page"`
	Status       titledRef      `json:"logseq.property/status"`
	PropPriority titledRef      `json:"logseq.property/priority"`
}

// toBlock flattens the nested reference shapes into the domain model and
// reconciles the legacy marker with the structured status.
func (r rawBlock) toBlock() models.Block {
	content := r.Content
	if content == "" {
		content = r.Title
	}

	priority := r.PropPriority.Value
	if priority == "" {
		priority = r.Priority
	}

	format := r.Format
	if format == "" {
		format = "markdown"
	}

	var tags []string
	for _, t := range r.Tags {
		if t.Value != "" {
			tags = append(tags, t.Value)
		}
	}

	b := models.Block{
		UUID:       r.UUID,
		Content:    content,
		Marker:     r.Marker,
		Priority:   priority,
		Status:     r.Status.Value,
		Tags:       tags,
		Properties: r.Properties,
		Format:     format,
		Page:       flattenPage(r.Page),
	}
	b.Marker = b.ResolveMarker()
	return b
}

// flattenPage resolves the nested page reference into a flat PageRef.
func flattenPage(p *RawPage) models.PageRef {
	if p == nil {
		return models.PageRef{}
	}
	name := p.Name
	if name == "" {
		name = p.Title
	}
	return models.PageRef{
		ID:           p.ID,
		UUID:         p.UUID,
		Name:         name,
		OriginalName: p.Name,
	}
}
