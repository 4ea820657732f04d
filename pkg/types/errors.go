package types

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across backends.
var (
	// ErrNotFound is returned when a requested document doesn't exist.
	ErrNotFound = errors.New("not found")
)

// SyntaxError reports malformed search text. It is raised by the query
// parser before any backend call is made.
type SyntaxError struct {
	Input string // full raw query
	Near  string // offending fragment, empty for whole-input problems
	Msg   string
}

func (e *SyntaxError) Error() string {
	if e.Near == "" {
		return fmt.Sprintf("syntax error in query %q: %s", e.Input, e.Msg)
	}
	return fmt.Sprintf("syntax error in query %q near %q: %s", e.Input, e.Near, e.Msg)
}

// UnsupportedQueryError reports an AST construct the active backend
// cannot express, such as an interior wildcard on the tsquery backend.
// The query is rejected rather than silently degraded.
type UnsupportedQueryError struct {
	Dialect Dialect
	Term    string
	Reason  string
}

func (e *UnsupportedQueryError) Error() string {
	return fmt.Sprintf("%s backend cannot express term %q: %s", e.Dialect, e.Term, e.Reason)
}

// InvalidFilterError reports a malformed or type-incompatible filter
// predicate, detected at compile time before execution.
type InvalidFilterError struct {
	Key    string
	Reason string
}

func (e *InvalidFilterError) Error() string {
	return fmt.Sprintf("invalid filter on key %q: %s", e.Key, e.Reason)
}

// DimensionMismatchError reports a stored embedding whose length differs
// from the query embedding's length.
type DimensionMismatchError struct {
	ID   string // document whose embedding mismatched
	Want int    // query embedding dimension
	Got  int    // stored embedding dimension
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch for document %q: query has %d dimensions, stored vector has %d", e.ID, e.Want, e.Got)
}

// BackendExecutionError wraps an opaque failure from the backing store.
// The original cause is retained and visible through errors.Unwrap.
type BackendExecutionError struct {
	Dialect Dialect
	Op      string
	Err     error
}

func (e *BackendExecutionError) Error() string {
	return fmt.Sprintf("%s backend failed during %s: %v", e.Dialect, e.Op, e.Err)
}

func (e *BackendExecutionError) Unwrap() error { return e.Err }
