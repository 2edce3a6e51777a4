package store

import (
	"context"

	"github.com/starford/craftwiki/internal/models"
)

// CategoryStore is the category half of the wiki store.
type CategoryStore interface {
	ListCategories(ctx context.Context, visibleOnly bool) ([]models.Category, error)
	UpsertCategory(ctx context.Context, c models.Category) (int64, error)
	SetCategoryVisibility(ctx context.Context, id int64, visible bool) error
}

// PageStore is the page half of the wiki store. UpsertPage never overwrites
// the content of an existing row.
type PageStore interface {
	ListPages(ctx context.Context, visibleOnly bool) ([]models.Page, error)
	UpsertPage(ctx context.Context, p models.Page) (int64, error)
	SetPageVisibility(ctx context.Context, id int64, visible bool) error
	GetPage(ctx context.Context, slug string) (*models.Page, error)
	UpdatePageContent(ctx context.Context, slug, content string) error
	SearchPages(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// Store is the full wiki store. Consumers should depend on this interface
// rather than the concrete *DB type.
type Store interface {
	CategoryStore
	PageStore
	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
