package query

import (
	"fmt"
	"strings"

	"github.com/docsift/docsift/pkg/types"
)

// SQLiteCompiler lowers an AST into an FTS5 MATCH expression. FTS5's
// star is a prefix-query marker legal only at the end of a token, so
// like the tsquery backend this compiler rejects leading and interior
// wildcards with *types.UnsupportedQueryError.
type SQLiteCompiler struct{}

// Capabilities reports the trailing-wildcard-only restriction.
func (SQLiteCompiler) Capabilities() Capabilities {
	return Capabilities{InteriorWildcard: false, PrefixWildcard: false}
}

// Dialect returns types.DialectSQLite.
func (SQLiteCompiler) Dialect() types.Dialect { return types.DialectSQLite }

// Compile renders the AST with explicit parentheses so FTS5's own
// operator precedence can never reorder the tree.
func (c SQLiteCompiler) Compile(node Node) (string, error) {
	switch n := node.(type) {
	case Term:
		return c.compileTerm(n)
	case And:
		return c.compileGroup(n.Children, " AND ")
	case Or:
		return c.compileGroup(n.Children, " OR ")
	default:
		return "", fmt.Errorf("unknown AST node %T", node)
	}
}

func (c SQLiteCompiler) compileGroup(children []Node, sep string) (string, error) {
	parts := make([]string, 0, len(children))
	for _, child := range children {
		s, err := c.Compile(child)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

func (c SQLiteCompiler) compileTerm(t Term) (string, error) {
	switch t.Wildcard {
	case WildcardSuffix:
		return ftsEscape(t.Text) + "*", nil
	case WildcardPrefix:
		return "", &types.UnsupportedQueryError{
			Dialect: types.DialectSQLite,
			Term:    "*" + t.Text,
			Reason:  "FTS5 only supports a wildcard at the end of a term",
		}
	case WildcardInterior:
		return "", &types.UnsupportedQueryError{
			Dialect: types.DialectSQLite,
			Term:    t.Text,
			Reason:  "FTS5 only supports a wildcard at the end of a term",
		}
	default:
		return ftsEscape(t.Text), nil
	}
}

// ftsEscape double-quotes tokens that would otherwise collide with FTS5
// query syntax (bareword operators, punctuation with query meaning).
func ftsEscape(text string) string {
	if !needsFTSQuoting(text) {
		return text
	}
	return `"` + strings.ReplaceAll(text, `"`, `""`) + `"`
}

func needsFTSQuoting(text string) bool {
	switch strings.ToUpper(text) {
	case "AND", "OR", "NOT", "NEAR":
		return true
	}
	for _, r := range text {
		if !isBareword(r) {
			return true
		}
	}
	return false
}

func isBareword(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_', r > 127:
		return true
	}
	return false
}
