package types

import (
	"fmt"
	"time"
)

// RetrievedChunk is a stored chunk joined with its document name and scored against a query
type RetrievedChunk struct {
	ID           string
	DocumentID   string
	DocumentName string
	Similarity   float64 // 1 - cosine distance
	CreatedAt    time.Time

	Chunk
}

// Reference is a user-facing citation derived from a RetrievedChunk
type Reference struct {
	DocumentName string  `json:"documentName"`
	PageNumber   int     `json:"pageNumber,omitempty"`
	LineStart    int     `json:"lineStart,omitempty"`
	LineEnd      int     `json:"lineEnd,omitempty"`
	Snippet      string  `json:"snippet"`
	Similarity   float64 `json:"similarity"`
}

// RagError reports a retrieval failure that did not abort the answer
type RagError struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func (e *RagError) Error() string {
	if e.Detail == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}
