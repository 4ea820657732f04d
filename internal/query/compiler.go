package query

import "github.com/docsift/docsift/pkg/types"

// Capabilities records which wildcard positions a backend's full-text
// engine can express. Divergence between backends is encoded here as a
// first-class, testable fact rather than an accident of string
// formatting.
type Capabilities struct {
	InteriorWildcard bool
	PrefixWildcard   bool
}

// Compiler lowers an AST into a backend's native full-text query string.
//
// The compiled string, when executed, must return exactly the documents
// satisfying the boolean semantics of the AST. An AST construct the
// backend cannot express fails with *types.UnsupportedQueryError;
// compilers never silently degrade a wildcard.
type Compiler interface {
	Compile(node Node) (string, error)
	Capabilities() Capabilities
	Dialect() types.Dialect
}
