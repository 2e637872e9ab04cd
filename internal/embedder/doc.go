// Package embedder turns text into vector embeddings via remote APIs.
//
// Three backends are supported behind one interface: OpenAI, Google Gemini,
// and SiliconFlow (an OpenAI-compatible endpoint popular for Chinese-language
// models). The factory picks a backend from the environment so callers never
// hard-code a provider:
//
//	emb, err := embedder.NewFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
//	    Texts: []string{"persona notes", "conversation summary"},
//	})
//
// All providers share the same plumbing: requests are split into sub-batches
// issued concurrently, each call retries with exponential backoff, and
// results pass through an in-memory LRU cache keyed by content hash. The
// persistent cross-run cache lives in the storage layer; this package only
// keeps the hot set.
package embedder
