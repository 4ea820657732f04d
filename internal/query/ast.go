package query

import "strings"

// Wildcard marks the position of a wildcard within a term.
type Wildcard int

const (
	// WildcardNone means the term matches exactly.
	WildcardNone Wildcard = iota
	// WildcardSuffix is a trailing marker: "lor*" matches tokens
	// beginning with "lor".
	WildcardSuffix
	// WildcardPrefix is a leading marker: "*rem" matches tokens ending
	// with "rem".
	WildcardPrefix
	// WildcardInterior means the term contains a wildcard somewhere in
	// the middle ("f*x"). The marker's position is preserved in the term
	// text; whether it is legal is decided by each compiler.
	WildcardInterior
)

// Node is a node of the backend-neutral query AST. The tree is finite,
// leaves are always Term, and child order is significant: parsing the
// same input twice yields a structurally identical tree.
type Node interface {
	isNode()
}

// Term is a single search token, optionally carrying a wildcard marker.
// For suffix and prefix wildcards Text holds the token with the marker
// stripped; for interior wildcards Text retains the '*' characters in
// place so compilers can reproduce or reject them.
type Term struct {
	Text     string
	Wildcard Wildcard
}

// And is an ordered conjunction of clauses.
type And struct {
	Children []Node
}

// Or is an ordered disjunction of clauses.
type Or struct {
	Children []Node
}

func (Term) isNode() {}
func (And) isNode()  {}
func (Or) isNode()   {}

// classifyTerm builds a Term from a raw token, deciding the wildcard
// position. A '*' anywhere other than the very start or very end makes
// the whole term interior-wildcarded, with markers kept in place.
func classifyTerm(tok string) Term {
	inner := tok
	if strings.HasPrefix(inner, "*") {
		inner = inner[1:]
	}
	if strings.HasSuffix(inner, "*") {
		inner = inner[:len(inner)-1]
	}
	if strings.Contains(inner, "*") {
		return Term{Text: tok, Wildcard: WildcardInterior}
	}
	switch {
	case strings.HasPrefix(tok, "*") && strings.HasSuffix(tok, "*"):
		// Both ends marked cannot be expressed as a single-position
		// wildcard; treat as interior and let compilers decide.
		return Term{Text: tok, Wildcard: WildcardInterior}
	case strings.HasSuffix(tok, "*"):
		return Term{Text: strings.TrimSuffix(tok, "*"), Wildcard: WildcardSuffix}
	case strings.HasPrefix(tok, "*"):
		return Term{Text: strings.TrimPrefix(tok, "*"), Wildcard: WildcardPrefix}
	default:
		return Term{Text: tok, Wildcard: WildcardNone}
	}
}
