// Package chunker divides knowledge base documents into overlapping,
// line-addressed chunks for embedding and search.
//
// # Basic Usage
//
//	chunks := chunker.ChunkMarkdown(content, 400, 80)
//	for _, c := range chunks {
//	    fmt.Printf("lines %d-%d (%s)\n", c.StartLine, c.EndLine, c.Hash)
//	}
//
// # Sizing
//
// The token budget is approximated at 4 characters per token. Chunks are
// built by accumulating whole lines until the budget would be exceeded;
// a suffix of each emitted chunk seeds the next one so consecutive chunks
// share context. Lines are never split, so a single oversized line yields
// an oversized chunk.
//
// Chunking is deterministic: the same content and budgets always produce
// the same boundaries and hashes, which the indexer relies on for
// content-addressed chunk ids.
package chunker
