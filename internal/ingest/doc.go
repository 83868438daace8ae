// Package ingest implements the write path of the pipeline: a file is parsed,
// split into chunks, embedded in one batch and stored together with its
// chunks in a single transaction.
//
// Duplicate file names and empty documents are handled by configurable
// policies (see DuplicatePolicy and EmptyPolicy). Concurrent ingestion of the
// same path is refused with ErrInProgress.
//
// Usage:
//
//	svc := ingest.New(store, emb, chunker.New(), ingest.Config{})
//	result, err := svc.Ingest(ctx, "notes/syllabus.pdf")
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("%d chunks stored as %s\n", result.ChunksCreated, result.DocumentID)
package ingest
