package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/starford/craftwiki/internal/models"
)

const categoryColumns = `id, slug, title, description, parent_id, order_index, is_visible, created_at, updated_at`

// ListCategories returns categories ordered by order_index then id. When
// visibleOnly is false hidden rows are included.
func (db *DB) ListCategories(ctx context.Context, visibleOnly bool) ([]models.Category, error) {
	q := `SELECT ` + categoryColumns + ` FROM categories`
	var args []any
	if visibleOnly {
		q += ` WHERE is_visible = ?`
		args = append(args, true)
	}
	q += ` ORDER BY order_index, id`

	rows, err := db.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list categories: %w", err)
	}
	defer rows.Close()

	out := make([]models.Category, 0)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan category: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate categories: %w", err)
	}
	return out, nil
}

// UpsertCategory inserts a category or updates the structural fields of the
// row with the same slug, returning the row id.
func (db *DB) UpsertCategory(ctx context.Context, c models.Category) (int64, error) {
	var id int64
	err := db.queryRow(ctx, `
		INSERT INTO categories (slug, title, description, parent_id, order_index, is_visible)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			title       = excluded.title,
			description = excluded.description,
			parent_id   = excluded.parent_id,
			order_index = excluded.order_index,
			is_visible  = excluded.is_visible,
			updated_at  = CURRENT_TIMESTAMP
		RETURNING id
	`, c.Slug, c.Title, c.Description, c.ParentID, c.OrderIndex, c.IsVisible).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: upsert category %q: %w", c.Slug, err)
	}
	return id, nil
}

// SetCategoryVisibility toggles is_visible on a category. Rows are never
// deleted by the store.
func (db *DB) SetCategoryVisibility(ctx context.Context, id int64, visible bool) error {
	_, err := db.exec(ctx, `UPDATE categories SET is_visible = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, visible, id)
	if err != nil {
		return fmt.Errorf("store: set category %d visibility: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCategory(s rowScanner) (models.Category, error) {
	var (
		c      models.Category
		parent sql.NullInt64
	)
	if err := s.Scan(&c.ID, &c.Slug, &c.Title, &c.Description, &parent, &c.OrderIndex, &c.IsVisible, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return models.Category{}, err
	}
	c.ParentID = nullableID(parent)
	return c, nil
}
