// Package retriever finds the stored chunks most similar to a free-text query.
//
// A query is embedded once (vectors are cached per model for a short TTL),
// scored against every stored chunk by cosine similarity, filtered by a
// strict threshold and capped:
//
//	r := retriever.New(store, emb, retriever.DefaultConfig())
//	chunks, err := r.Retrieve(ctx, "how are refunds processed?")
//	if err != nil {
//	    // embedding or store failure: answer without context
//	}
//
// Raising the threshold never grows the result set, and the result never
// exceeds MaxChunks.
package retriever
