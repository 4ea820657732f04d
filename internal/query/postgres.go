package query

import (
	"fmt"
	"strings"

	"github.com/docsift/docsift/pkg/types"
)

// PostgresCompiler lowers an AST into a to_tsquery('simple', ...)
// expression. tsquery only supports a trailing prefix marker
// ("lexeme:*"), so prefix and interior wildcards are rejected with
// *types.UnsupportedQueryError.
type PostgresCompiler struct{}

// Capabilities reports the trailing-wildcard-only restriction.
func (PostgresCompiler) Capabilities() Capabilities {
	return Capabilities{InteriorWildcard: false, PrefixWildcard: false}
}

// Dialect returns types.DialectPostgres.
func (PostgresCompiler) Dialect() types.Dialect { return types.DialectPostgres }

// Compile renders the AST using tsquery's & and | operators, with
// explicit parentheses preserving the parsed precedence.
func (c PostgresCompiler) Compile(node Node) (string, error) {
	switch n := node.(type) {
	case Term:
		return c.compileTerm(n)
	case And:
		return c.compileGroup(n.Children, " & ")
	case Or:
		return c.compileGroup(n.Children, " | ")
	default:
		return "", fmt.Errorf("unknown AST node %T", node)
	}
}

func (c PostgresCompiler) compileGroup(children []Node, sep string) (string, error) {
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

func (c PostgresCompiler) compileTerm(t Term) (string, error) {
	caps := c.Capabilities()
	switch t.Wildcard {
	case WildcardInterior:
		if !caps.InteriorWildcard {
			return "", &types.UnsupportedQueryError{
				Dialect: types.DialectPostgres,
				Term:    t.Text,
				Reason:  "tsquery only supports a wildcard at the end of a term",
			}
		}
	case WildcardPrefix:
		if !caps.PrefixWildcard {
			return "", &types.UnsupportedQueryError{
				Dialect: types.DialectPostgres,
				Term:    "*" + t.Text,
				Reason:  "tsquery only supports a wildcard at the end of a term",
			}
		}
	}
	lex := tsqueryEscape(t.Text)
	if t.Wildcard == WildcardSuffix {
		return lex + ":*", nil
	}
	return lex, nil
}

// tsqueryEscape single-quotes lexemes containing characters with
// tsquery meaning, neutralizing operators embedded in user terms.
func tsqueryEscape(text string) string {
	if !strings.ContainsAny(text, `&|!():*'\ `) {
		return text
	}
	escaped := strings.ReplaceAll(text, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `'`, `''`)
	return "'" + escaped + "'"
}
