package filter

import (
	"fmt"
	"strings"

	"github.com/docsift/docsift/pkg/types"
)

// Compiled is a relational predicate ready to be appended to a WHERE
// clause. SQL holds conditions joined with AND and no leading keyword;
// Args holds the bind values in placeholder order.
type Compiled struct {
	SQL  string
	Args []any
}

// Compile lowers the predicate into SQL for the given dialect.
//
// Each condition targets the backend's per-key extraction path over the
// metadata column (json_extract for SQLite, ->> for PostgreSQL). A key
// absent from a document extracts to NULL, and NULL never satisfies a
// comparison, so filtering on a key no stored document carries matches
// zero documents rather than failing, identically on both backends.
//
// argOffset is the index of the first $n placeholder for PostgreSQL
// (ignored by SQLite, which uses ?).
//
// Compile fails with *types.InvalidFilterError when an ordering
// comparison is applied to a boolean.
func Compile(p *Predicate, dialect types.Dialect, argOffset int) (*Compiled, error) {
	if p.IsEmpty() {
		return &Compiled{}, nil
	}

	var sb strings.Builder
	args := make([]any, 0, len(p.Conditions()))
	for i, cond := range p.Conditions() {
		if err := validate(cond); err != nil {
			return nil, err
		}
		if i > 0 {
			sb.WriteString(" AND ")
		}
		switch dialect {
		case types.DialectSQLite:
			fmt.Fprintf(&sb, "json_extract(d.metadata, '$.\"%s\"') %s ?", escapeKey(cond.Key), cond.Op)
		case types.DialectPostgres:
			sb.WriteString(extractPG(cond))
			fmt.Fprintf(&sb, " %s $%d", cond.Op, argOffset+len(args))
		default:
			return nil, fmt.Errorf("unknown dialect %v", dialect)
		}
		args = append(args, bindValue(cond, dialect))
	}
	return &Compiled{SQL: sb.String(), Args: args}, nil
}

func validate(cond Condition) error {
	if cond.Key == "" {
		return &types.InvalidFilterError{Key: cond.Key, Reason: "filter key must not be empty"}
	}
	if cond.Op.ordering() && cond.Value.Kind() == KindBool {
		return &types.InvalidFilterError{
			Key:    cond.Key,
			Reason: fmt.Sprintf("ordering comparison %s cannot be applied to a boolean", cond.Op),
		}
	}
	return nil
}

// extractPG picks a typed JSONB extraction so comparisons use the value
// domain the condition declared: numbers compare numerically, booleans
// as booleans, everything else as text.
func extractPG(cond Condition) string {
	key := escapeKey(cond.Key)
	switch cond.Value.Kind() {
	case KindNumber:
		return fmt.Sprintf("(d.metadata->>'%s')::numeric", key)
	case KindBool:
		return fmt.Sprintf("(d.metadata->>'%s')::boolean", key)
	default:
		return fmt.Sprintf("d.metadata->>'%s'", key)
	}
}

// bindValue adapts the operand to what the driver expects at the
// extraction path. SQLite's json_extract yields 0/1 for JSON booleans.
func bindValue(cond Condition, dialect types.Dialect) any {
	if dialect == types.DialectSQLite && cond.Value.Kind() == KindBool {
		if cond.Value.Native() == true {
			return 1
		}
		return 0
	}
	return cond.Value.Native()
}

// escapeKey neutralizes quote characters in metadata keys, which are
// interpolated into the extraction path rather than bound.
func escapeKey(key string) string {
	key = strings.ReplaceAll(key, `'`, `''`)
	return strings.ReplaceAll(key, `"`, ``)
}
