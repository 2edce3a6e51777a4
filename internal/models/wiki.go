// Package models defines the persisted wiki types for craftwiki.
package models

import "time"

// Category is a row of the categories table. Nesting is expressed through
// ParentID chains.
type Category struct {
	ID          int64     `json:"id"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	ParentID    *int64    `json:"parent_id,omitempty"`
	OrderIndex  int       `json:"order_index"`
	IsVisible   bool      `json:"is_visible"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Page is a row of the pages table. Content is the authored Markdown body;
// structural writes never touch it.
type Page struct {
	ID           int64     `json:"id"`
	Slug         string    `json:"slug"`
	Title        string    `json:"title"`
	Content      string    `json:"content,omitempty"`
	CategoryID   *int64    `json:"category_id,omitempty"`
	ParentPageID *int64    `json:"parent_page_id,omitempty"`
	OrderIndex   int       `json:"order_index"`
	IsVisible    bool      `json:"is_visible"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FileMetadata is a lightweight description of a file in the wiki directory.
type FileMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SameID reports whether two nullable ids point at the same row.
func SameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
