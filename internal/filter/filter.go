// Package filter models metadata predicates and compiles them into SQL
// over each backend's semi-structured metadata column.
//
// A predicate is a conjunction of conditions; OR between conditions is
// an explicit scope limit. Values are a closed tagged variant over
// string, number, and bool, with comparison compatibility checked at
// compile time instead of coerced at runtime.
package filter

import (
	"fmt"
	"sort"

	"github.com/docsift/docsift/pkg/types"
)

// Op is a comparison operator applied to a metadata value.
type Op int

const (
	OpEq Op = iota
	OpGt
	OpGte
	OpLt
	OpLte
)

// String returns the SQL spelling of the operator.
func (o Op) String() string {
	switch o {
	case OpEq:
		return "="
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	default:
		return "?"
	}
}

func (o Op) ordering() bool { return o != OpEq }

// Kind tags the declared type of a filter value.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
)

// Value is a typed scalar filter operand.
type Value struct {
	kind Kind
	s    string
	n    float64
	b    bool
}

// String declares a string operand.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Number declares a numeric operand.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Bool declares a boolean operand.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Kind returns the declared type tag.
func (v Value) Kind() Kind { return v.kind }

// Native returns the operand as a driver-bindable Go value.
func (v Value) Native() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return v.n
	default:
		return v.b
	}
}

// Condition is one key/operator/value test.
type Condition struct {
	Key   string
	Op    Op
	Value Value
}

// Predicate is an ordered conjunction of conditions.
type Predicate struct {
	conds []Condition
}

// New creates an empty predicate.
func New() *Predicate { return &Predicate{} }

// Where appends a condition and returns the predicate for chaining.
func (p *Predicate) Where(key string, op Op, v Value) *Predicate {
	p.conds = append(p.conds, Condition{Key: key, Op: op, Value: v})
	return p
}

// Eq appends an equality condition.
func (p *Predicate) Eq(key string, v Value) *Predicate { return p.Where(key, OpEq, v) }

// Conditions returns the conditions in insertion order.
func (p *Predicate) Conditions() []Condition {
	if p == nil {
		return nil
	}
	return p.conds
}

// IsEmpty reports whether the predicate has no conditions.
func (p *Predicate) IsEmpty() bool { return p == nil || len(p.conds) == 0 }

// FromMap builds an equality-only predicate from a plain map, the shape
// callers typically hold metadata in. Keys are visited in sorted order
// so the compiled SQL is deterministic. Non-scalar values fail with
// *types.InvalidFilterError.
func FromMap(m map[string]any) (*Predicate, error) {
	p := New()
	for _, key := range sortedKeys(m) {
		v, err := valueOf(key, m[key])
		if err != nil {
			return nil, err
		}
		p.Eq(key, v)
	}
	return p, nil
}

func valueOf(key string, raw any) (Value, error) {
	switch v := raw.(type) {
	case string:
		return String(v), nil
	case bool:
		return Bool(v), nil
	case float64:
		return Number(v), nil
	case float32:
		return Number(float64(v)), nil
	case int:
		return Number(float64(v)), nil
	case int64:
		return Number(float64(v)), nil
	default:
		return Value{}, &types.InvalidFilterError{
			Key:    key,
			Reason: fmt.Sprintf("unsupported value type %T (want string, number, or bool)", raw),
		}
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
