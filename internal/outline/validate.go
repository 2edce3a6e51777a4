package outline

// Validate checks tree-wide invariants that the line grammar cannot: every
// slug must be unique within its kind. It returns the first
// *DuplicateSlugError in document order.
func Validate(nodes []*Node) error {
	type key struct {
		kind Kind
		slug string
	}
	first := make(map[key]*Node)
	var dup *DuplicateSlugError
	Walk(nodes, func(n *Node) bool {
		if dup != nil {
			return false
		}
		k := key{n.Kind, n.Slug}
		if prev, ok := first[k]; ok {
			dup = &DuplicateSlugError{Kind: n.Kind, Slug: n.Slug, Lines: []int{prev.Line, n.Line}}
			return false
		}
		first[k] = n
		return true
	})
	if dup != nil {
		return dup
	}
	return nil
}
