package summary

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/starford/craftwiki/internal/models"
	"github.com/starford/craftwiki/internal/outline"
)

const topCategoryDepth = 2

// PullOutline builds the outline tree from the visible rows, siblings in
// order_index order. A category whose parent is hidden moves to the top
// level; a sub-page whose parent page is hidden moves up to its category;
// pages without a visible category cannot be expressed in SUMMARY.md and are
// left out.
func (s *Service) PullOutline(ctx context.Context) ([]*outline.Node, error) {
	cats, err := s.store.ListCategories(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("summary: list categories: %w", err)
	}
	pages, err := s.store.ListPages(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("summary: list pages: %w", err)
	}

	b := &treeBuilder{
		cats:     make(map[int64]*outline.Node, len(cats)),
		pages:    make(map[int64]*outline.Node, len(pages)),
		subcats:  make(map[int64][]*outline.Node),
		catPages: make(map[int64][]*outline.Node),
		subpages: make(map[int64][]*outline.Node),
	}
	for _, c := range cats {
		b.cats[c.ID] = &outline.Node{
			ID:          strconv.FormatInt(c.ID, 10),
			Kind:        outline.KindCategory,
			Title:       c.Title,
			Slug:        c.Slug,
			Description: c.Description,
		}
	}
	for _, p := range pages {
		b.pages[p.ID] = &outline.Node{
			ID:    strconv.FormatInt(p.ID, 10),
			Kind:  outline.KindPage,
			Title: p.Title,
			Slug:  p.Slug,
		}
	}

	var roots []*outline.Node
	catParent := make(map[int64]*int64, len(cats))
	for _, c := range cats {
		catParent[c.ID] = c.ParentID
	}
	for _, c := range cats {
		n := b.cats[c.ID]
		if c.ParentID != nil && b.cats[*c.ParentID] != nil && !cyclic(c.ID, catParent) {
			b.subcats[*c.ParentID] = append(b.subcats[*c.ParentID], n)
			continue
		}
		if c.ParentID != nil {
			s.log.Debug("summary: category parent not visible, listed at top level", slog.String("slug", c.Slug))
		}
		roots = append(roots, n)
	}

	pageParent := make(map[int64]*int64, len(pages))
	for _, p := range pages {
		pageParent[p.ID] = p.ParentPageID
	}
	for _, p := range pages {
		n := b.pages[p.ID]
		switch {
		case p.ParentPageID != nil && b.pages[*p.ParentPageID] != nil && !cyclic(p.ID, pageParent):
			b.subpages[*p.ParentPageID] = append(b.subpages[*p.ParentPageID], n)
		case p.CategoryID != nil && b.cats[*p.CategoryID] != nil:
			b.catPages[*p.CategoryID] = append(b.catPages[*p.CategoryID], n)
		default:
			s.log.Warn("summary: page has no visible category, left out of outline", slog.String("slug", p.Slug))
		}
	}

	for i, n := range roots {
		n.Order = i
		b.assemble(n, topCategoryDepth)
	}
	return roots, nil
}

type treeBuilder struct {
	cats     map[int64]*outline.Node
	pages    map[int64]*outline.Node
	subcats  map[int64][]*outline.Node
	catPages map[int64][]*outline.Node
	subpages map[int64][]*outline.Node
}

// assemble attaches children to a category node: pages first, then
// sub-categories, matching the parser's sibling order.
func (b *treeBuilder) assemble(n *outline.Node, depth int) {
	n.Depth = depth
	id, _ := strconv.ParseInt(n.ID, 10, 64)
	for _, p := range b.catPages[id] {
		b.attach(n, p)
		b.assemblePage(p, depth+1)
	}
	for _, c := range b.subcats[id] {
		b.attach(n, c)
		b.assemble(c, depth+1)
	}
}

func (b *treeBuilder) assemblePage(n *outline.Node, depth int) {
	n.Depth = depth
	id, _ := strconv.ParseInt(n.ID, 10, 64)
	for _, c := range b.subpages[id] {
		b.attach(n, c)
		b.assemblePage(c, depth+1)
	}
}

func (b *treeBuilder) attach(parent, child *outline.Node) {
	child.Order = len(parent.Children)
	child.ParentID = parent.ID
	parent.Children = append(parent.Children, child)
}

// cyclic reports whether following parent links from id loops back before
// reaching a root.
func cyclic(id int64, parent map[int64]*int64) bool {
	seen := map[int64]bool{id: true}
	cur := parent[id]
	for cur != nil {
		if seen[*cur] {
			return true
		}
		seen[*cur] = true
		cur = parent[*cur]
	}
	return false
}

// pageFileName is the exported file of a page.
func pageFileName(p models.Page) string {
	return p.Slug + ".md"
}
