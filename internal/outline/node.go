// Package outline parses and generates the SUMMARY.md table of contents.
//
// The outline is a tree of categories (Markdown headings, nested by heading
// level) and pages (Markdown list links, nested by indentation).
package outline

// Kind discriminates outline nodes.
type Kind int

const (
	KindCategory Kind = iota + 1
	KindPage
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindCategory:
		return "category"
	case KindPage:
		return "page"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Node is one category or page of a parsed outline. Nodes only live for the
// duration of a parse, generate or reconcile call.
type Node struct {
	ID          string  `json:"id"`
	Kind        Kind    `json:"kind"`
	Title       string  `json:"title"`
	Slug        string  `json:"slug"`
	Description string  `json:"description,omitempty"`
	Order       int     `json:"order"`
	Depth       int     `json:"depth"`
	Children    []*Node `json:"children,omitempty"`
	ParentID    string  `json:"parent_id,omitempty"`
	Line        int     `json:"-"`
}

// IsCategory reports whether n is a category heading.
func (n *Node) IsCategory() bool { return n.Kind == KindCategory }

// Document is the result of parsing SUMMARY.md text.
type Document struct {
	Title    string
	Nodes    []*Node
	Warnings []Warning
}

// Warning is a non-fatal parse diagnostic.
type Warning struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// Walk visits nodes depth-first in pre-order. Returning false from fn skips
// the node's children.
func Walk(nodes []*Node, fn func(n *Node) bool) {
	for _, n := range nodes {
		if fn(n) {
			Walk(n.Children, fn)
		}
	}
}

// Count returns the number of categories and pages in the tree.
func Count(nodes []*Node) (categories, pages int) {
	Walk(nodes, func(n *Node) bool {
		if n.IsCategory() {
			categories++
		} else {
			pages++
		}
		return true
	})
	return categories, pages
}

// Equal reports whether two trees are structurally equal: same kind, title,
// slug, description, order, depth and children. IDs and source lines are
// ignored.
func Equal(a, b []*Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.Kind != y.Kind || x.Title != y.Title || x.Slug != y.Slug ||
			x.Description != y.Description || x.Order != y.Order || x.Depth != y.Depth {
			return false
		}
		if !Equal(x.Children, y.Children) {
			return false
		}
	}
	return true
}
