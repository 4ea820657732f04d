// Package searcher composes the result pipeline: lexical queries are
// compiled for the store's dialect and executed with the metadata
// predicate pushed down, vector queries go through the store's scoring
// strategy, and hybrid requests run both legs concurrently with the
// lexical match set as a hard constraint and similarity as the final
// rank. Ordering and pagination always apply to the fully ordered set
// before truncation.
package searcher
