package outline

import "strings"

// DefaultTitle is the document title written by Generate.
const DefaultTitle = "Summary"

// Generate serializes an outline tree to SUMMARY.md text. For any tree
// produced by Parse, Parse(Generate(nodes)) is structurally equal to nodes.
//
// Within a category, pages are written before sub-categories: a list item
// following a sub-heading would otherwise be read back as belonging to it.
func Generate(nodes []*Node) string {
	var b strings.Builder
	b.WriteString("# " + DefaultTitle + "\n")
	for _, n := range nodes {
		if n.IsCategory() {
			writeCategory(&b, n, 1)
		}
	}
	return b.String()
}

func writeCategory(b *strings.Builder, n *Node, parentDepth int) {
	depth := n.Depth
	if depth <= parentDepth {
		depth = parentDepth + 1
	}
	if depth < 2 {
		depth = 2
	}

	b.WriteString("\n")
	b.WriteString(strings.Repeat("#", depth))
	b.WriteString(" ")
	b.WriteString(n.Title)
	b.WriteString("\n")
	if n.Description != "" {
		b.WriteString(n.Description)
		b.WriteString("\n")
	}

	wrotePages := false
	for _, c := range n.Children {
		if c.IsCategory() {
			continue
		}
		if !wrotePages {
			b.WriteString("\n")
			wrotePages = true
		}
		writePage(b, c, 0)
	}
	for _, c := range n.Children {
		if c.IsCategory() {
			writeCategory(b, c, depth)
		}
	}
}

func writePage(b *strings.Builder, n *Node, level int) {
	b.WriteString(strings.Repeat(" ", level*indentWidth))
	b.WriteString("* [")
	b.WriteString(n.Title)
	b.WriteString("](")
	b.WriteString(n.Slug)
	b.WriteString(")\n")
	for _, c := range n.Children {
		if !c.IsCategory() {
			writePage(b, c, level+1)
		}
	}
}
