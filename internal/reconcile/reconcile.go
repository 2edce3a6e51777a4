// Package reconcile applies a parsed outline tree to the categories and pages
// store: matched rows get structural updates, new rows are inserted and rows
// no longer listed are hidden.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/starford/craftwiki/internal/models"
	"github.com/starford/craftwiki/internal/outline"
)

// Store is the subset of the wiki store the reconciler writes to.
type Store interface {
	ListCategories(ctx context.Context, visibleOnly bool) ([]models.Category, error)
	UpsertCategory(ctx context.Context, c models.Category) (int64, error)
	SetCategoryVisibility(ctx context.Context, id int64, visible bool) error

	ListPages(ctx context.Context, visibleOnly bool) ([]models.Page, error)
	UpsertPage(ctx context.Context, p models.Page) (int64, error)
	SetPageVisibility(ctx context.Context, id int64, visible bool) error
}

// PlaceholderContent is the body given to pages first created from the
// outline.
func PlaceholderContent(title string) string {
	return "# " + title + "\n\nPage created from outline.\n"
}

// Counts summarizes the row changes for one kind.
type Counts struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Hidden    int `json:"hidden"`
}

// Result is the outcome of one reconcile pass.
type Result struct {
	Categories Counts  `json:"categories"`
	Pages      Counts  `json:"pages"`
	Errors     []error `json:"-"`
	// Text is the outline regenerated from the reconciled tree.
	Text string `json:"-"`
}

// OK reports whether every row mutation succeeded.
func (r *Result) OK() bool { return len(r.Errors) == 0 }

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithConcurrency processes up to n top-level subtrees at once. Values below
// 2 keep the pass sequential.
func WithConcurrency(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.log = l
		}
	}
}

// Reconciler mutates the store to match an outline tree.
type Reconciler struct {
	store       Store
	concurrency int
	log         *slog.Logger
}

// New creates a Reconciler writing to st.
func New(st Store, opts ...Option) *Reconciler {
	r := &Reconciler{store: st, concurrency: 1, log: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Reconcile validates nodes, then upserts every node parent-first and hides
// every previously visible row whose slug is no longer listed. Row failures
// do not stop the pass; they are returned in Result.Errors. An error is
// returned only when the tree is invalid or the current rows cannot be
// loaded, in which case the store is untouched.
//
// On return every node's ID holds its store id.
func (r *Reconciler) Reconcile(ctx context.Context, nodes []*outline.Node) (*Result, error) {
	if err := outline.Validate(nodes); err != nil {
		return nil, err
	}

	cats, err := r.store.ListCategories(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("reconcile: load categories: %w", err)
	}
	pages, err := r.store.ListPages(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("reconcile: load pages: %w", err)
	}

	p := &pass{
		r:     r,
		cats:  make(map[string]models.Category, len(cats)),
		pages: make(map[string]models.Page, len(pages)),
		res:   &Result{},
	}
	for _, c := range cats {
		p.cats[c.Slug] = c
	}
	for _, pg := range pages {
		p.pages[pg.Slug] = pg
	}

	// Slugs are collected up front so a failed node is never hidden.
	seenCats := make(map[string]struct{})
	seenPages := make(map[string]struct{})
	outline.Walk(nodes, func(n *outline.Node) bool {
		if n.IsCategory() {
			seenCats[n.Slug] = struct{}{}
		} else {
			seenPages[n.Slug] = struct{}{}
		}
		return true
	})

	if r.concurrency > 1 && len(nodes) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.concurrency)
		for _, n := range nodes {
			g.Go(func() error {
				p.node(gctx, n, parentRef{})
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for _, n := range nodes {
			p.node(ctx, n, parentRef{})
		}
	}

	p.hide(ctx, cats, pages, seenCats, seenPages)

	p.res.Text = outline.Generate(nodes)
	r.log.Info("reconcile: pass finished",
		slog.Int("categories_created", p.res.Categories.Created),
		slog.Int("categories_updated", p.res.Categories.Updated),
		slog.Int("categories_hidden", p.res.Categories.Hidden),
		slog.Int("pages_created", p.res.Pages.Created),
		slog.Int("pages_updated", p.res.Pages.Updated),
		slog.Int("pages_hidden", p.res.Pages.Hidden),
		slog.Int("errors", len(p.res.Errors)),
	)
	return p.res, nil
}

// parentRef carries the store ids a child row is attached to.
type parentRef struct {
	categoryID *int64
	pageID     *int64
}

// pass holds the state of one Reconcile call. The slug maps are read-only
// after loading; mu guards res.
type pass struct {
	r     *Reconciler
	cats  map[string]models.Category
	pages map[string]models.Page

	mu  sync.Mutex
	res *Result
}

func (p *pass) node(ctx context.Context, n *outline.Node, parent parentRef) {
	if n.IsCategory() {
		p.category(ctx, n, parent)
	} else {
		p.page(ctx, n, parent)
	}
}

func (p *pass) category(ctx context.Context, n *outline.Node, parent parentRef) {
	row := models.Category{
		Slug:        n.Slug,
		Title:       n.Title,
		Description: n.Description,
		ParentID:    parent.categoryID,
		OrderIndex:  n.Order,
		IsVisible:   true,
	}

	existing, found := p.cats[n.Slug]
	var id int64
	switch {
	case found && categoryUnchanged(existing, row):
		id = existing.ID
		p.count(func(r *Result) { r.Categories.Unchanged++ })
	default:
		var err error
		id, err = p.r.store.UpsertCategory(ctx, row)
		if err != nil {
			p.fail(opFor(found), n, err)
			p.skipChildren(n)
			return
		}
		if found {
			p.count(func(r *Result) { r.Categories.Updated++ })
		} else {
			p.count(func(r *Result) { r.Categories.Created++ })
		}
	}

	p.assign(n, id)
	for _, c := range n.Children {
		p.node(ctx, c, parentRef{categoryID: &id})
	}
}

func (p *pass) page(ctx context.Context, n *outline.Node, parent parentRef) {
	row := models.Page{
		Slug:         n.Slug,
		Title:        n.Title,
		CategoryID:   parent.categoryID,
		ParentPageID: parent.pageID,
		OrderIndex:   n.Order,
		IsVisible:    true,
	}

	existing, found := p.pages[n.Slug]
	var id int64
	switch {
	case found && pageUnchanged(existing, row):
		id = existing.ID
		p.count(func(r *Result) { r.Pages.Unchanged++ })
	default:
		if !found {
			row.Content = PlaceholderContent(n.Title)
		}
		var err error
		id, err = p.r.store.UpsertPage(ctx, row)
		if err != nil {
			p.fail(opFor(found), n, err)
			p.skipChildren(n)
			return
		}
		if found {
			p.count(func(r *Result) { r.Pages.Updated++ })
		} else {
			p.count(func(r *Result) { r.Pages.Created++ })
		}
	}

	p.assign(n, id)
	for _, c := range n.Children {
		p.node(ctx, c, parentRef{categoryID: parent.categoryID, pageID: &id})
	}
}

// hide soft-hides every visible row whose slug is absent from the tree.
func (p *pass) hide(ctx context.Context, cats []models.Category, pages []models.Page, seenCats, seenPages map[string]struct{}) {
	for _, c := range cats {
		if _, ok := seenCats[c.Slug]; ok || !c.IsVisible {
			continue
		}
		if err := p.r.store.SetCategoryVisibility(ctx, c.ID, false); err != nil {
			p.fail(OpHide, &outline.Node{Kind: outline.KindCategory, Slug: c.Slug}, err)
			continue
		}
		p.res.Categories.Hidden++
	}
	for _, pg := range pages {
		if _, ok := seenPages[pg.Slug]; ok || !pg.IsVisible {
			continue
		}
		if err := p.r.store.SetPageVisibility(ctx, pg.ID, false); err != nil {
			p.fail(OpHide, &outline.Node{Kind: outline.KindPage, Slug: pg.Slug}, err)
			continue
		}
		p.res.Pages.Hidden++
	}
}

// skipChildren reports every descendant of a failed node.
func (p *pass) skipChildren(n *outline.Node) {
	outline.Walk(n.Children, func(c *outline.Node) bool {
		p.fail(OpSkip, c, fmt.Errorf("%w: %s %q", ErrParentFailed, n.Kind, n.Slug))
		return true
	})
}

func (p *pass) fail(op string, n *outline.Node, err error) {
	p.r.log.Warn("reconcile: row failed",
		slog.String("op", op),
		slog.String("kind", n.Kind.String()),
		slog.String("slug", n.Slug),
		slog.String("error", err.Error()),
	)
	p.count(func(r *Result) {
		r.Errors = append(r.Errors, &StoreOperationError{Op: op, Kind: n.Kind, Slug: n.Slug, Err: err})
	})
}

func (p *pass) count(fn func(*Result)) {
	p.mu.Lock()
	fn(p.res)
	p.mu.Unlock()
}

// assign replaces the parser id of n with its store id.
func (p *pass) assign(n *outline.Node, id int64) {
	n.ID = strconv.FormatInt(id, 10)
	for _, c := range n.Children {
		c.ParentID = n.ID
	}
}

func opFor(found bool) string {
	if found {
		return OpUpdate
	}
	return OpInsert
}

func categoryUnchanged(old, row models.Category) bool {
	return old.IsVisible &&
		old.Title == row.Title &&
		old.Description == row.Description &&
		old.OrderIndex == row.OrderIndex &&
		models.SameID(old.ParentID, row.ParentID)
}

func pageUnchanged(old, row models.Page) bool {
	return old.IsVisible &&
		old.Title == row.Title &&
		old.OrderIndex == row.OrderIndex &&
		models.SameID(old.CategoryID, row.CategoryID) &&
		models.SameID(old.ParentPageID, row.ParentPageID)
}
