// Package storage persists documents and their embedded chunks.
//
// Two backends implement Storage:
//   - SQLiteStorage: embedded database, the default. Vectors are stored as
//     little-endian float32 blobs and scored in Go, or by sqlite-vec when
//     built with the sqlite_vec tag.
//   - PostgresStorage: PostgreSQL with pgvector. Chunk vectors live in a
//     vector(1536) column behind an HNSW cosine index.
//
// # Database Schema
//
// Tables:
//   - documents: one row per ingested file (name, path, MIME type, size)
//   - chunks: text, embedding and locator; document_id cascades on delete
//   - schema_version: applied SQLite migrations (semver)
//
// PostgreSQL migrations are embedded SQL files applied with golang-migrate.
//
// # Transactions
//
// Ingestion writes a document and its chunks as one unit:
//
//	err := storage.WithTx(ctx, store, func(tx storage.Tx) error {
//	    if err := tx.InsertDocument(ctx, doc); err != nil {
//	        return err
//	    }
//	    return tx.InsertChunks(ctx, doc.ID, chunks)
//	})
//
// A Tx routes every call through its own connection; nested transactions
// are rejected with ErrNestedTx.
//
// # Similarity Search
//
//	results, err := store.SearchSimilar(ctx, queryVector, 0.6, 5)
//
// Similarity is 1 - cosine distance. Only rows strictly above the threshold
// are returned, best first. Chunks whose vector width differs from the
// query are skipped by SQLite and rejected by PostgreSQL.
package storage
