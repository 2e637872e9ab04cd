// Package types contains the shared value types exchanged between the
// indexing, search, and serving layers: search results and index statistics.
//
// Keeping these in a leaf package avoids import cycles between the
// internal packages that produce and consume them.
package types
