package outline

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

const (
	maxHeadingLevel = 6
	// indentWidth is the number of spaces per list nesting level. A tab
	// counts as one level.
	indentWidth = 2
)

var (
	bulletRe = regexp.MustCompile(`^([ \t]*)[*-][ \t]+(.*)$`)
	linkRe   = regexp.MustCompile(`^\[(.*)\]\(([^()]*)\)$`)
)

// Parse turns SUMMARY.md text into an outline tree. It never panics; input
// violating the grammar yields a *ParseError.
func Parse(text string) (*Document, error) {
	p := &parser{doc: &Document{}}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for i, raw := range strings.Split(text, "\n") {
		if err := p.line(i+1, strings.TrimRight(raw, " \t\r")); err != nil {
			return nil, err
		}
	}
	return p.doc, nil
}

type parser struct {
	doc *Document

	// cats is the chain of open category headings, shallowest first.
	cats []*Node
	// pages is the chain of open pages under the innermost category,
	// indexed by indentation level.
	pages []*Node
	// descOpen is true between a heading and its first list item or
	// description line.
	descOpen bool
}

func (p *parser) line(num int, line string) error {
	switch {
	case strings.TrimSpace(line) == "":
		return nil
	case strings.HasPrefix(line, "#"):
		if handled, err := p.heading(num, line); handled || err != nil {
			return err
		}
	case bulletRe.MatchString(line):
		return p.page(num, line)
	}
	p.plain(num, strings.TrimSpace(line))
	return nil
}

// heading handles a line starting with '#'. It returns false when the line
// is not a heading at all (e.g. "#hashtag").
func (p *parser) heading(num int, line string) (bool, error) {
	level := len(line) - len(strings.TrimLeft(line, "#"))
	rest := line[level:]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return false, nil
	}
	title := strings.TrimSpace(rest)
	if title == "" || level > maxHeadingLevel {
		return true, &ParseError{Msg: MsgBadHeading, Line: num}
	}

	if level == 1 {
		p.doc.Title = title
		p.cats = nil
		p.pages = nil
		p.descOpen = false
		return true, nil
	}

	s := slug.Make(title)
	if s == "" {
		return true, &ParseError{Msg: MsgHeadingWithoutSlug, Line: num}
	}

	for len(p.cats) > 0 && p.cats[len(p.cats)-1].Depth >= level {
		p.cats = p.cats[:len(p.cats)-1]
	}
	n := &Node{
		ID:    uuid.NewString(),
		Kind:  KindCategory,
		Title: title,
		Slug:  s,
		Depth: level,
		Line:  num,
	}
	if len(p.cats) == 0 {
		p.appendRoot(n)
	} else {
		appendChild(p.cats[len(p.cats)-1], n)
	}
	p.cats = append(p.cats, n)
	p.pages = nil
	p.descOpen = true
	return true, nil
}

func (p *parser) page(num int, line string) error {
	m := bulletRe.FindStringSubmatch(line)
	if len(p.cats) == 0 {
		return &ParseError{Msg: MsgPageOutsideCategory, Line: num}
	}
	link := linkRe.FindStringSubmatch(strings.TrimSpace(m[2]))
	if link == nil {
		return &ParseError{Msg: MsgMalformedLink, Line: num}
	}
	title := strings.TrimSpace(link[1])
	if title == "" {
		return &ParseError{Msg: MsgEmptyPageTitle, Line: num}
	}
	target := normalizeTarget(link[2])
	if target == "" {
		return &ParseError{Msg: MsgMalformedLink, Line: num}
	}

	level := indentLevel(m[1])
	if level > len(p.pages) {
		p.warn(num, "sub-page indented more than one level below its parent; flattened")
		level = len(p.pages)
	}

	cat := p.cats[len(p.cats)-1]
	n := &Node{
		ID:    uuid.NewString(),
		Kind:  KindPage,
		Title: title,
		Slug:  target,
		Depth: cat.Depth + 1 + level,
		Line:  num,
	}
	if level == 0 {
		appendChild(cat, n)
	} else {
		appendChild(p.pages[level-1], n)
	}
	p.pages = append(p.pages[:level], n)
	p.descOpen = false
	return nil
}

func (p *parser) plain(num int, text string) {
	if p.descOpen && len(p.cats) > 0 {
		p.cats[len(p.cats)-1].Description = text
		p.descOpen = false
		return
	}
	p.warn(num, "text outside a category description ignored")
}

func (p *parser) warn(num int, msg string) {
	p.doc.Warnings = append(p.doc.Warnings, Warning{Line: num, Message: msg})
}

func (p *parser) appendRoot(n *Node) {
	n.Order = len(p.doc.Nodes)
	p.doc.Nodes = append(p.doc.Nodes, n)
}

func appendChild(parent, n *Node) {
	n.Order = len(parent.Children)
	n.ParentID = parent.ID
	parent.Children = append(parent.Children, n)
}

func indentLevel(ws string) int {
	spaces, tabs := 0, 0
	for _, r := range ws {
		if r == '\t' {
			tabs++
		} else {
			spaces++
		}
	}
	return tabs + spaces/indentWidth
}

// normalizeTarget turns a link target into a page slug: "./guides/intro.md"
// becomes "guides/intro". The result is a fixed point: normalizing it again
// returns it unchanged, so generated links parse back to the same slug.
func normalizeTarget(target string) string {
	t := target
	for {
		prev := t
		t = strings.TrimSpace(t)
		t = strings.TrimPrefix(t, "./")
		t = strings.TrimSuffix(t, ".md")
		t = strings.Trim(t, "/")
		if t == prev {
			return t
		}
	}
}
