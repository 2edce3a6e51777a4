package outline

import (
	"fmt"
	"strings"
)

// Parse error messages.
const (
	MsgPageOutsideCategory = "page outside category"
	MsgMalformedLink       = "malformed link syntax"
	MsgEmptyPageTitle      = "empty page title"
	MsgBadHeading          = "unparseable heading level"
	MsgHeadingWithoutSlug  = "heading has no usable slug"
)

// ParseError reports text that violates the outline grammar. Line is 1-based
// and zero when unknown.
type ParseError struct {
	Msg  string
	Line int
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("outline: line %d: %s", e.Line, e.Msg)
	}
	return "outline: " + e.Msg
}

// DuplicateSlugError reports a slug used by more than one node of the same
// kind.
type DuplicateSlugError struct {
	Kind  Kind
	Slug  string
	Lines []int
}

func (e *DuplicateSlugError) Error() string {
	lines := make([]string, 0, len(e.Lines))
	for _, l := range e.Lines {
		if l > 0 {
			lines = append(lines, fmt.Sprint(l))
		}
	}
	if len(lines) == 0 {
		return fmt.Sprintf("outline: duplicate %s slug %q", e.Kind, e.Slug)
	}
	return fmt.Sprintf("outline: duplicate %s slug %q (lines %s)", e.Kind, e.Slug, strings.Join(lines, ", "))
}
