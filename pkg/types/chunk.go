package types

import (
	"fmt"
	"strings"
)

// Chunk is a bounded slice of a document's text, ready for embedding and storage
type Chunk struct {
	Content    string
	ChunkIndex int // Zero-based, contiguous within a document

	// Locator. Zero means absent; page and line range are mutually exclusive.
	PageNumber int
	LineStart  int
	LineEnd    int

	Metadata  map[string]any
	Embedding []float32 // Set after the embedding step
}

// HasPage reports whether the chunk is located by page
func (c *Chunk) HasPage() bool {
	return c.PageNumber > 0
}

// HasLines reports whether the chunk is located by line range
func (c *Chunk) HasLines() bool {
	return c.LineStart > 0 && c.LineEnd > 0
}

// Locator renders the chunk position as "Page N", "Lines A-B" or "" when absent
func (c *Chunk) Locator() string {
	switch {
	case c.HasPage():
		return fmt.Sprintf("Page %d", c.PageNumber)
	case c.HasLines():
		return fmt.Sprintf("Lines %d-%d", c.LineStart, c.LineEnd)
	default:
		return ""
	}
}

// Validate checks the chunk invariants
func (c *Chunk) Validate() error {
	if strings.TrimSpace(c.Content) == "" {
		return ErrEmptyContent
	}

	if c.ChunkIndex < 0 {
		return ErrInvalidChunkIndex
	}

	if c.PageNumber < 0 {
		return ErrInvalidPageNumber
	}

	if c.LineStart != 0 || c.LineEnd != 0 {
		if c.LineStart <= 0 || c.LineEnd <= 0 || c.LineStart > c.LineEnd {
			return ErrInvalidLineRange
		}
		if c.PageNumber != 0 {
			return ErrMixedLocator
		}
	}

	return nil
}
