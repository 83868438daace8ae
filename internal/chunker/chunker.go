package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dshills/docrag/pkg/types"
)

const (
	// DefaultChunkSize is the target chunk length in characters
	DefaultChunkSize = 1000

	// DefaultOverlap is the number of trailing characters carried into the next chunk
	DefaultOverlap = 200

	// TokensPerChar is the heuristic for estimating tokens (chars/4)
	TokensPerChar = 4
)

// Strategy names the segmentation used for a document
type Strategy string

const (
	// StrategySemantic merges paragraph and section segments up to the chunk size
	StrategySemantic Strategy = "semantic"
	// StrategySize walks fixed windows, cutting at sentence or word boundaries
	StrategySize Strategy = "size"
)

var (
	paragraphBreak = regexp.MustCompile(`\n\n+`)
	sectionHeader  = regexp.MustCompile(`(?im)^(?:chapter|section|\d+\.)\s`)
)

// Option configures a Chunker
type Option func(*Chunker)

// WithChunkSize sets the target chunk size in characters
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap carried between consecutive chunks
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// Chunker splits parsed documents into overlapping passages sized for embedding
type Chunker struct {
	chunkSize int
	overlap   int
}

// New creates a new Chunker instance
func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChunkSize returns the configured target chunk size
func (c *Chunker) ChunkSize() int {
	return c.chunkSize
}

// Overlap returns the configured overlap
func (c *Chunker) Overlap() int {
	return c.overlap
}

// Chunk splits a document into chunks with contiguous indexes starting at 0.
// Blank documents yield no chunks. Paginated documents get page locators,
// everything else gets line ranges.
func (c *Chunker) Chunk(doc *types.ParsedDocument) []types.Chunk {
	if doc == nil || strings.TrimSpace(doc.Content) == "" {
		return nil
	}

	strategy, texts := c.split(doc.Content)

	lines := strings.Split(doc.Content, "\n")
	chunks := make([]types.Chunk, 0, len(texts))
	lineCursor, pageCursor := 0, 0

	for i, text := range texts {
		chunk := types.Chunk{
			Content:    text,
			ChunkIndex: i,
			Metadata: map[string]any{
				"strategy": string(strategy),
				"tokens":   EstimateTokenCount(text),
			},
		}

		if doc.Paginated() {
			chunk.PageNumber, pageCursor = findPage(text, doc.Pages, pageCursor)
		} else {
			chunk.LineStart, chunk.LineEnd, lineCursor = findLines(text, lines, lineCursor)
		}

		chunks = append(chunks, chunk)
	}

	return chunks
}

// split returns the trimmed chunk texts for non-blank content along with the strategy used
func (c *Chunker) split(content string) (Strategy, []string) {
	segments := splitSemantic(content)
	if len(segments) > 1 {
		return StrategySemantic, c.mergeSegments(segments)
	}
	return StrategySize, c.splitBySize(content)
}

// splitSemantic splits on blank lines and before section header lines.
// Segments that are blank after trimming are dropped; the rest are returned untrimmed.
func splitSemantic(content string) []string {
	var segments []string
	for _, para := range paragraphBreak.Split(content, -1) {
		start := 0
		for _, loc := range sectionHeader.FindAllStringIndex(para, -1) {
			if loc[0] == start {
				continue
			}
			segments = append(segments, para[start:loc[0]])
			start = loc[0]
		}
		segments = append(segments, para[start:])
	}

	kept := segments[:0]
	for _, seg := range segments {
		if strings.TrimSpace(seg) != "" {
			kept = append(kept, seg)
		}
	}
	return kept
}

// mergeSegments accumulates segments into chunks of at most chunkSize characters.
// A segment larger than the chunk size is emitted whole.
func (c *Chunker) mergeSegments(segments []string) []string {
	var out []string
	current := ""

	for _, seg := range segments {
		currentLen := utf8.RuneCountInString(current)
		if currentLen+utf8.RuneCountInString(seg) > c.chunkSize && currentLen > 0 {
			out = append(out, strings.TrimSpace(current))
			current = joinSegments(tailRunes(current, c.overlap), seg)
			continue
		}
		current = joinSegments(current, seg)
	}

	if trimmed := strings.TrimSpace(current); trimmed != "" {
		out = append(out, trimmed)
	}
	return out
}

func joinSegments(buf, seg string) string {
	if buf == "" {
		return seg
	}
	return buf + "\n\n" + seg
}

// splitBySize walks content in windows of chunkSize characters, preferring to
// cut after a period or at a space when one lies past the window midpoint.
func (c *Chunker) splitBySize(content string) []string {
	runes := []rune(content)
	n := len(runes)

	var out []string
	start := 0
	for start < n {
		end := min(start+c.chunkSize, n)

		if end < n {
			mid := start + c.chunkSize/2
			if p := lastIndexRune(runes, '.', end); p > mid {
				end = p + 1
			} else if s := lastIndexRune(runes, ' ', end); s > mid {
				end = s
			}
		}

		if text := strings.TrimSpace(string(runes[start:end])); text != "" {
			out = append(out, text)
		}

		next := end - c.overlap
		if next >= n-c.overlap {
			break
		}
		if next <= start {
			next = end
		}
		start = next
	}

	return out
}

// lastIndexRune returns the last index <= from holding r, or -1
func lastIndexRune(runes []rune, r rune, from int) int {
	if from >= len(runes) {
		from = len(runes) - 1
	}
	for i := from; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}

// tailRunes returns the last n characters of s
func tailRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

// findLines aligns the chunk's non-blank lines against the document lines,
// starting at cursor (the 0-based start line of the previous chunk). Lines are
// matched by containment so trimmed or cut lines still resolve. It returns the
// 1-based line range and the next cursor.
func findLines(text string, lines []string, cursor int) (int, int, int) {
	startIdx, endIdx := -1, -1
	pos := cursor

	for _, raw := range strings.Split(text, "\n") {
		want := strings.TrimSpace(raw)
		if want == "" {
			continue
		}
		for i := pos; i < len(lines); i++ {
			if strings.Contains(strings.TrimSpace(lines[i]), want) {
				if startIdx < 0 {
					startIdx = i
				}
				endIdx = i
				pos = i
				break
			}
		}
	}

	if startIdx < 0 {
		startIdx = min(cursor, len(lines)-1)
		endIdx = len(lines) - 1
	}

	return startIdx + 1, endIdx + 1, startIdx
}

// findPage returns the 1-based page whose text contains the chunk's first line,
// preferring pages at or after cursor (a 0-based page index). Defaults to page 1.
func findPage(text string, pages []types.PageContent, cursor int) (int, int) {
	first := strings.TrimSpace(strings.SplitN(text, "\n", 2)[0])
	if first == "" {
		return 1, cursor
	}

	for i := cursor; i < len(pages); i++ {
		if strings.Contains(pages[i].Text, first) {
			return pages[i].PageNumber, i
		}
	}
	for i := 0; i < cursor && i < len(pages); i++ {
		if strings.Contains(pages[i].Text, first) {
			return pages[i].PageNumber, cursor
		}
	}

	return 1, cursor
}

// EstimateTokenCount estimates the number of tokens in a string
func EstimateTokenCount(text string) int {
	return utf8.RuneCountInString(text) / TokensPerChar
}
