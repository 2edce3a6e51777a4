package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/craftwiki/internal/outline"
	"github.com/starford/craftwiki/internal/store"
	"github.com/starford/craftwiki/internal/summary"
)

// ContentRequest is the body of PUT /summary and PUT /pages/{slug}.
type ContentRequest struct {
	Content string `json:"content" example:"# Summary\n\n## Guides\n"`
}

// Validate implements validatable. An empty body is refused; clearing the
// outline takes an explicit "# Summary".
func (r *ContentRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Content, validation.Required),
	)
}

// SyncResult is the response of PUT /summary (aliased from the domain layer).
type SyncResult = summary.SyncResult

// PageDetail is the page response type (aliased from the domain layer).
type PageDetail = summary.PageDetail

// ExportResult is the response of POST /export.
type ExportResult = summary.ExportResult

// OutlineResponse is the structured outline.
type OutlineResponse struct {
	Nodes []*outline.Node `json:"nodes"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []store.SearchResult `json:"results"`
}
