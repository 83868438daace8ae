// Package chunker divides document text into overlapping passages for embedding.
//
// # Basic Usage
//
//	c := chunker.New(chunker.WithChunkSize(1000), chunker.WithOverlap(200))
//	chunks := c.Chunk(parsedDoc)
//
//	for _, chunk := range chunks {
//	    fmt.Printf("#%d %s\n", chunk.ChunkIndex, chunk.Locator())
//	}
//
// # Chunking Strategy
//
// Semantic segmentation is tried first. Content is split on blank lines and
// before lines that look like section headers ("Chapter", "Section" or a
// number followed by a period, case-insensitive). When that yields two or
// more segments they are merged greedily up to the chunk size; each new chunk
// is seeded with the last Overlap characters of the previous one.
//
// Otherwise the content is walked in fixed windows. A window that ends inside
// the text is cut after the last period past its midpoint, or at the last
// space past its midpoint, or at the raw boundary. The next window starts
// Overlap characters before the cut.
//
// Sizes are measured in characters (runes), not bytes. A single segment
// larger than the chunk size is emitted whole.
//
// # Locators
//
// Chunks from paginated documents carry the page whose text contains the
// chunk's first line (page 1 when nothing matches). All other chunks carry a
// 1-based line range found by matching the chunk's lines against the
// document's lines by containment.
package chunker
