package types

// PageContent is the extracted text of one physical page
type PageContent struct {
	PageNumber int // 1-based
	Text       string
}

// DocumentMetadata describes the parsed source file
type DocumentMetadata struct {
	Filename  string
	MimeType  string
	PageCount int // Zero for non-paginated formats
}

// ParsedDocument is the transient output of the parser.
// Pages is only populated for paginated formats.
type ParsedDocument struct {
	Content  string
	Pages    []PageContent
	Metadata DocumentMetadata
}

// Paginated reports whether the document carries per-page text
func (d *ParsedDocument) Paginated() bool {
	return len(d.Pages) > 0
}
