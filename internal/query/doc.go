// Package query parses the backend-agnostic search syntax into an AST
// and compiles the AST into each backend's native full-text query
// language.
//
// The search syntax is identical across backends: whitespace-separated
// terms are implicitly ANDed, "and"/"or" are case-insensitive infix
// operators with "and" binding tighter, parentheses group, and '*'
// marks a wildcard. What differs per backend is wildcard legality,
// captured in a Capabilities table consulted by each compiler.
package query
