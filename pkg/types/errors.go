package types

import "errors"

// Pipeline error categories. Packages wrap these with fmt.Errorf("...: %w")
// so callers can classify failures with errors.Is.
var (
	// ErrUnsupportedFileType is returned by the parser for unrecognized extensions
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrIOFailure is returned when a source file is missing or unreadable
	ErrIOFailure = errors.New("file read failed")

	// ErrParseFailure is returned when a source file is malformed (e.g. a broken PDF)
	ErrParseFailure = errors.New("document parse failed")

	// ErrEmbeddingFailure is returned when the embedding service fails
	ErrEmbeddingFailure = errors.New("embedding generation failed")

	// ErrStoreFailure is returned when the document store fails
	ErrStoreFailure = errors.New("document store failed")

	// ErrDocumentNotFound is the normal negative result of a lookup or delete
	ErrDocumentNotFound = errors.New("document not found")

	// ErrDuplicateDocument is returned when the duplicate policy rejects a re-ingest
	ErrDuplicateDocument = errors.New("document already exists")

	// ErrEmptyDocument is returned when the empty-document policy rejects a file
	ErrEmptyDocument = errors.New("document produced no chunks")
)

// Validation errors
var (
	ErrEmptyContent      = errors.New("content cannot be empty")
	ErrInvalidChunkIndex = errors.New("chunk index must be >= 0")
	ErrInvalidLineRange  = errors.New("line range must be positive with start <= end")
	ErrInvalidPageNumber = errors.New("page number must be >= 1")
	ErrMixedLocator      = errors.New("chunk cannot carry both a page number and a line range")
)
