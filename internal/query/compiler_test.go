package query

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsift/docsift/pkg/types"
)

func mustParse(t *testing.T, raw string) Node {
	t.Helper()
	node, err := Parse(raw)
	require.NoError(t, err)
	return node
}

func TestSQLiteCompile(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"single term", "lorem", "lorem"},
		{"explicit and", "lorem and ipsum", "(lorem AND ipsum)"},
		{"explicit or", "lorem or ipsum", "(lorem OR ipsum)"},
		{"implicit and", "quick fox", "(quick AND fox)"},
		{"suffix wildcard", "lor*", "lor*"},
		{"precedence parenthesized", "a or b and c", "(a OR (b AND c))"},
		{"explicit group", "(a or b) and c", "((a OR b) AND c)"},
		{"fts keyword quoted", "a near b", `(a AND "near" AND b)`},
		{"punctuation quoted", "foo-bar", `"foo-bar"`},
	}

	c := SQLiteCompiler{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Compile(mustParse(t, tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSQLiteRejectsNonTrailingWildcards(t *testing.T) {
	c := SQLiteCompiler{}
	for _, input := range []string{"f*x", "*rem", "quick and f*x", "*lor*"} {
		t.Run(input, func(t *testing.T) {
			_, err := c.Compile(mustParse(t, input))
			require.Error(t, err)
			var unsupported *types.UnsupportedQueryError
			require.True(t, errors.As(err, &unsupported), "want UnsupportedQueryError, got %T", err)
			assert.Equal(t, types.DialectSQLite, unsupported.Dialect)
			assert.NotEmpty(t, unsupported.Term)
		})
	}
}

func TestPostgresCompile(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"single term", "lorem", "lorem"},
		{"explicit and", "Lorem and ipsum", "(Lorem & ipsum)"},
		{"explicit or", "Lorem or ipsum", "(Lorem | ipsum)"},
		{"implicit and", "quick fox", "(quick & fox)"},
		{"suffix wildcard", "Lor*", "Lor:*"},
		{"wildcard in conjunction", "Lor* and ips*", "(Lor:* & ips:*)"},
		{"precedence parenthesized", "a or b and c", "(a | (b & c))"},
		{"metacharacters quoted", "o'brien", "'o''brien'"},
	}

	c := PostgresCompiler{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Compile(mustParse(t, tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPostgresRejectsNonTrailingWildcards(t *testing.T) {
	c := PostgresCompiler{}
	for _, input := range []string{"f*x", "*rem", "quick and f*x"} {
		t.Run(input, func(t *testing.T) {
			_, err := c.Compile(mustParse(t, input))
			require.Error(t, err)
			var unsupported *types.UnsupportedQueryError
			require.True(t, errors.As(err, &unsupported), "want UnsupportedQueryError, got %T", err)
			assert.Equal(t, types.DialectPostgres, unsupported.Dialect)
			assert.NotEmpty(t, unsupported.Term)
		})
	}
}

func TestCapabilitiesTable(t *testing.T) {
	assert.False(t, SQLiteCompiler{}.Capabilities().InteriorWildcard)
	assert.False(t, SQLiteCompiler{}.Capabilities().PrefixWildcard)
	assert.False(t, PostgresCompiler{}.Capabilities().InteriorWildcard)
	assert.False(t, PostgresCompiler{}.Capabilities().PrefixWildcard)
}

// Compiling the same AST twice yields identical native query strings.
func TestCompileDeterminism(t *testing.T) {
	inputs := []string{"quick fox", "a or b and c", "Lor* and ips*"}
	for _, comp := range []Compiler{SQLiteCompiler{}, PostgresCompiler{}} {
		for _, input := range inputs {
			node := mustParse(t, input)
			first, err := comp.Compile(node)
			require.NoError(t, err)
			second, err := comp.Compile(node)
			require.NoError(t, err)
			assert.Equal(t, first, second)
		}
	}
}

func TestCacheReturnsSameTranslation(t *testing.T) {
	cache := NewCache(8)
	first, err := cache.Compile("quick and fox", SQLiteCompiler{})
	require.NoError(t, err)
	second, err := cache.Compile("quick and fox", SQLiteCompiler{})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Same raw text, different dialect: separate cache entries.
	pg, err := cache.Compile("quick and fox", PostgresCompiler{})
	require.NoError(t, err)
	assert.Equal(t, "(quick & fox)", pg)
	assert.Equal(t, "(quick AND fox)", first)
}

func TestCacheDoesNotCacheErrors(t *testing.T) {
	cache := NewCache(8)
	_, err := cache.Compile("f*x", PostgresCompiler{})
	require.Error(t, err)
	_, err = cache.Compile("f*x", PostgresCompiler{})
	require.Error(t, err)

	// A failing query on one dialect never poisons another entry.
	got, err := cache.Compile("fox", SQLiteCompiler{})
	require.NoError(t, err)
	assert.Equal(t, "fox", got)
}
