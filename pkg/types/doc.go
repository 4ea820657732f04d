// Package types defines the shared data model for docsift: documents,
// search results, backend dialects, and the error taxonomy surfaced by
// the query pipeline.
//
// Everything in this package is backend-neutral. Backend-specific
// behavior (wildcard legality, ranking functions, SQL placeholders)
// lives in the internal packages that consume these types.
package types
