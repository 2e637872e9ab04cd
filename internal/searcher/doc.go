// Package searcher implements hybrid retrieval over the knowledge base:
// a semantic phase (query embedding against stored chunk vectors, Go-side
// cosine similarity) and a lexical phase (conjunctive FTS5 bm25 query) run
// concurrently, then their scores fuse into a weighted composite.
//
// With the default 0.7/0.3 weighting, a chunk seen only by the text phase
// tops out at 0.3 composite and usually falls under the 0.35 threshold;
// lexical hits mostly serve to boost chunks the vector phase already found.
package searcher
