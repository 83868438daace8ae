// Package assembler turns retrieved chunks into a context block for the
// completion service and citations for the user.
package assembler

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dshills/docrag/pkg/types"
)

const (
	// DefaultPreamble frames the excerpts for the completion service
	DefaultPreamble = "The following excerpts from reference documents may be relevant to the user's question. " +
		"Use them to inform your response when applicable, but keep your existing interaction style."

	// DefaultSnippetLength is the reference snippet size in runes
	DefaultSnippetLength = 300

	// Separator sits between excerpts in the context block
	Separator = "\n\n---\n"

	ellipsis = "..."
)

// Assembler formats retrieved chunks. The zero value is not usable; call New.
type Assembler struct {
	preamble      string
	snippetLength int
}

// Option configures an Assembler
type Option func(*Assembler)

// WithPreamble replaces the framing sentence. Empty values are ignored.
func WithPreamble(preamble string) Option {
	return func(a *Assembler) {
		if strings.TrimSpace(preamble) != "" {
			a.preamble = preamble
		}
	}
}

// WithSnippetLength sets the snippet size in runes. Zero or less disables truncation.
func WithSnippetLength(n int) Option {
	return func(a *Assembler) {
		a.snippetLength = n
	}
}

// New creates an Assembler
func New(opts ...Option) *Assembler {
	a := &Assembler{
		preamble:      DefaultPreamble,
		snippetLength: DefaultSnippetLength,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Context is the assembled output for one query
type Context struct {
	Block      string
	References []types.Reference
}

// Assemble builds both the context block and the references
func (a *Assembler) Assemble(chunks []types.RetrievedChunk) Context {
	return Context{
		Block:      a.Block(chunks),
		References: a.References(chunks),
	}
}

// Block renders chunks in the given order as
//
//	[i] [documentName, locator]
//	content
//
// joined by Separator and wrapped in the preamble. No chunks yields "".
func (a *Assembler) Block(chunks []types.RetrievedChunk) string {
	if len(chunks) == 0 {
		return ""
	}

	parts := make([]string, len(chunks))
	for i := range chunks {
		parts[i] = fmt.Sprintf("[%d] %s\n%s", i+1, source(&chunks[i]), chunks[i].Content)
	}

	var b strings.Builder
	b.WriteString(a.preamble)
	b.WriteString("\n\n---\n")
	b.WriteString(strings.Join(parts, Separator))
	b.WriteString("\n---")
	return b.String()
}

func source(rc *types.RetrievedChunk) string {
	if locator := rc.Locator(); locator != "" {
		return fmt.Sprintf("[%s, %s]", rc.DocumentName, locator)
	}
	return fmt.Sprintf("[%s]", rc.DocumentName)
}

// References converts chunks to citations, one per chunk in the same order.
// The result is never nil.
func (a *Assembler) References(chunks []types.RetrievedChunk) []types.Reference {
	refs := make([]types.Reference, 0, len(chunks))
	for i := range chunks {
		rc := &chunks[i]
		ref := types.Reference{
			DocumentName: rc.DocumentName,
			Snippet:      a.snippet(rc.Content),
			Similarity:   rc.Similarity,
		}
		switch {
		case rc.HasPage():
			ref.PageNumber = rc.PageNumber
		case rc.HasLines():
			ref.LineStart = rc.LineStart
			ref.LineEnd = rc.LineEnd
		}
		refs = append(refs, ref)
	}
	return refs
}

func (a *Assembler) snippet(content string) string {
	if a.snippetLength <= 0 || utf8.RuneCountInString(content) <= a.snippetLength {
		return content
	}
	runes := []rune(content)
	return strings.TrimRight(string(runes[:a.snippetLength]), " \t\n") + ellipsis
}
