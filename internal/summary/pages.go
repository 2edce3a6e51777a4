package summary

import (
	"context"
	"time"

	"github.com/starford/craftwiki/internal/apperr"
	"github.com/starford/craftwiki/internal/checksum"
	"github.com/starford/craftwiki/internal/models"
	"github.com/starford/craftwiki/internal/sse"
	"github.com/starford/craftwiki/internal/store"
)

// PageDetail is the full representation of a page.
type PageDetail struct {
	Slug         string    `json:"slug"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Checksum     string    `json:"checksum"`
	CategoryID   *int64    `json:"category_id,omitempty"`
	ParentPageID *int64    `json:"parent_page_id,omitempty"`
	Visible      bool      `json:"visible"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// GetPage returns a page by slug, hidden pages included.
func (s *Service) GetPage(ctx context.Context, slug string) (*PageDetail, error) {
	p, err := s.store.GetPage(ctx, slug)
	if err != nil {
		return nil, err
	}
	return pageDetail(p), nil
}

// UpdatePageContent replaces a page body. A non-empty ifMatch must equal the
// checksum of the current body, otherwise apperr.ErrConflict is returned.
func (s *Service) UpdatePageContent(ctx context.Context, slug, content, ifMatch string) (*PageDetail, error) {
	current, err := s.store.GetPage(ctx, slug)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.Sum([]byte(current.Content)) {
		return nil, apperr.ErrConflict
	}
	if err := s.store.UpdatePageContent(ctx, slug, content); err != nil {
		return nil, err
	}
	if s.pub != nil {
		s.pub.PublishChange(sse.ChangePage, slug)
	}

	current.Content = content
	current.UpdatedAt = time.Now().UTC()
	return pageDetail(current), nil
}

// SearchPages finds visible pages whose title or body contains q.
func (s *Service) SearchPages(ctx context.Context, q string, limit int) ([]store.SearchResult, error) {
	return s.store.SearchPages(ctx, q, limit)
}

func pageDetail(p *models.Page) *PageDetail {
	return &PageDetail{
		Slug:         p.Slug,
		Title:        p.Title,
		Content:      p.Content,
		Checksum:     checksum.Sum([]byte(p.Content)),
		CategoryID:   p.CategoryID,
		ParentPageID: p.ParentPageID,
		Visible:      p.IsVisible,
		UpdatedAt:    p.UpdatedAt,
	}
}
