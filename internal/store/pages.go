package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/starford/craftwiki/internal/apperr"
	"github.com/starford/craftwiki/internal/models"
)

const pageColumns = `id, slug, title, category_id, parent_page_id, order_index, is_visible, created_at, updated_at`

// SearchResult represents one page search hit.
type SearchResult struct {
	Slug    string `json:"slug"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// ListPages returns pages without their content, ordered by order_index
// then id.
func (db *DB) ListPages(ctx context.Context, visibleOnly bool) ([]models.Page, error) {
	q := `SELECT ` + pageColumns + ` FROM pages`
	var args []any
	if visibleOnly {
		q += ` WHERE is_visible = ?`
		args = append(args, true)
	}
	q += ` ORDER BY order_index, id`

	rows, err := db.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list pages: %w", err)
	}
	defer rows.Close()

	out := make([]models.Page, 0)
	for rows.Next() {
		var (
			p              models.Page
			cat, parentPag sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &p.Slug, &p.Title, &cat, &parentPag, &p.OrderIndex, &p.IsVisible, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan page: %w", err)
		}
		p.CategoryID = nullableID(cat)
		p.ParentPageID = nullableID(parentPag)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate pages: %w", err)
	}
	return out, nil
}

// UpsertPage inserts a page or updates the structural fields of the row with
// the same slug. Content is only written on insert; an existing page keeps
// its authored body.
func (db *DB) UpsertPage(ctx context.Context, p models.Page) (int64, error) {
	var id int64
	err := db.queryRow(ctx, `
		INSERT INTO pages (slug, title, content, category_id, parent_page_id, order_index, is_visible)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			title          = excluded.title,
			category_id    = excluded.category_id,
			parent_page_id = excluded.parent_page_id,
			order_index    = excluded.order_index,
			is_visible     = excluded.is_visible,
			updated_at     = CURRENT_TIMESTAMP
		RETURNING id
	`, p.Slug, p.Title, p.Content, p.CategoryID, p.ParentPageID, p.OrderIndex, p.IsVisible).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: upsert page %q: %w", p.Slug, err)
	}
	return id, nil
}

// SetPageVisibility toggles is_visible on a page.
func (db *DB) SetPageVisibility(ctx context.Context, id int64, visible bool) error {
	_, err := db.exec(ctx, `UPDATE pages SET is_visible = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, visible, id)
	if err != nil {
		return fmt.Errorf("store: set page %d visibility: %w", id, err)
	}
	return nil
}

// GetPage returns the page with the given slug, content included, or
// apperr.ErrNotFound.
func (db *DB) GetPage(ctx context.Context, slug string) (*models.Page, error) {
	var (
		p              models.Page
		cat, parentPag sql.NullInt64
	)
	err := db.queryRow(ctx, `
		SELECT id, slug, title, content, category_id, parent_page_id, order_index, is_visible, created_at, updated_at
		FROM pages WHERE slug = ?
	`, slug).Scan(&p.ID, &p.Slug, &p.Title, &p.Content, &cat, &parentPag, &p.OrderIndex, &p.IsVisible, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get page %q: %w", slug, err)
	}
	p.CategoryID = nullableID(cat)
	p.ParentPageID = nullableID(parentPag)
	return &p, nil
}

// UpdatePageContent replaces the authored body of a page. Structural fields
// are untouched.
func (db *DB) UpdatePageContent(ctx context.Context, slug, content string) error {
	res, err := db.exec(ctx, `UPDATE pages SET content = ?, updated_at = CURRENT_TIMESTAMP WHERE slug = ?`, content, slug)
	if err != nil {
		return fmt.Errorf("store: update page %q content: %w", slug, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update page %q content: %w", slug, err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// likeEscaper makes LIKE wildcards in a user query match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchPages performs a case-insensitive LIKE search over visible page
// titles and bodies.
func (db *DB) SearchPages(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + likeEscaper.Replace(query) + "%"
	rows, err := db.query(ctx, `
		SELECT slug, title, substr(content, 1, 200)
		FROM pages
		WHERE is_visible = ?
		  AND (LOWER(title) LIKE LOWER(?) ESCAPE '\' OR LOWER(content) LIKE LOWER(?) ESCAPE '\')
		ORDER BY order_index, id
		LIMIT ?
	`, true, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	defer rows.Close()

	out := make([]SearchResult, 0)
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Slug, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
