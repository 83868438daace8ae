// Package types provides shared type definitions for docrag.
//
// These types flow through the whole pipeline: the parser produces a
// ParsedDocument, the chunker turns it into Chunks, the store persists them
// and the retriever hands RetrievedChunks to the context assembler, which
// derives the user-facing References.
//
// # Locators
//
// A Chunk carries at most one locator form. Chunks cut from paginated sources
// (PDF) carry a PageNumber; chunks from line-oriented sources (text, markdown)
// carry a LineStart/LineEnd range. A zero value means the locator is absent:
//
//	chunk.HasPage()  // PageNumber > 0
//	chunk.HasLines() // LineStart > 0 && LineEnd > 0
//
// # Errors
//
// The error taxonomy shared by every package lives in errors.go. Callers
// test for categories with errors.Is:
//
//	if errors.Is(err, types.ErrUnsupportedFileType) {
//	    ...
//	}
package types
