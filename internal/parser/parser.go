package parser

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/dshills/docrag/pkg/types"
	"github.com/ledongthuc/pdf"
)

// MIME types of the recognized formats
const (
	MimeTypeText     = "text/plain"
	MimeTypeMarkdown = "text/markdown"
	MimeTypePDF      = "application/pdf"
)

var supportedMimeTypes = map[string]string{
	".txt": MimeTypeText,
	".md":  MimeTypeMarkdown,
	".pdf": MimeTypePDF,
}

// pageSeparator joins page texts into the full document body
const pageSeparator = "\n\n"

// Parser reads text, markdown and PDF files into ParsedDocuments
type Parser struct{}

// New creates a new Parser instance
func New() *Parser {
	return &Parser{}
}

// SupportedExtensions returns the recognized file extensions in sorted order
func SupportedExtensions() []string {
	exts := make([]string, 0, len(supportedMimeTypes))
	for ext := range supportedMimeTypes {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// MimeTypeFor returns the MIME type for a file path based on its extension
func MimeTypeFor(filePath string) (string, bool) {
	mimeType, ok := supportedMimeTypes[strings.ToLower(filepath.Ext(filePath))]
	return mimeType, ok
}

// ParseFile parses a file into a ParsedDocument
func (p *Parser) ParseFile(filePath string) (*types.ParsedDocument, error) {
	mimeType, ok := MimeTypeFor(filePath)
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)", types.ErrUnsupportedFileType,
			filepath.Ext(filePath), strings.Join(SupportedExtensions(), ", "))
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrIOFailure, err)
	}

	filename := filepath.Base(filePath)

	if mimeType == MimeTypePDF {
		return parsePDF(data, filename)
	}
	return parseText(data, filename, mimeType), nil
}

func parseText(data []byte, filename, mimeType string) *types.ParsedDocument {
	content := string(data)
	if !utf8.ValidString(content) {
		content = strings.ToValidUTF8(content, "\uFFFD")
	}

	return &types.ParsedDocument{
		Content: content,
		Metadata: types.DocumentMetadata{
			Filename: filename,
			MimeType: mimeType,
		},
	}
}

func parsePDF(data []byte, filename string) (doc *types.ParsedDocument, err error) {
	// The PDF reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("%w: %s: %v", types.ErrParseFailure, filename, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrParseFailure, filename, err)
	}

	numPages := reader.NumPage()
	pages := make([]types.PageContent, 0, numPages)
	texts := make([]string, 0, numPages)

	for i := 1; i <= numPages; i++ {
		text, err := pageText(reader.Page(i))
		if err != nil {
			return nil, fmt.Errorf("%w: %s page %d: %v", types.ErrParseFailure, filename, i, err)
		}
		pages = append(pages, types.PageContent{PageNumber: i, Text: text})
		texts = append(texts, text)
	}

	return &types.ParsedDocument{
		Content: strings.Join(texts, pageSeparator),
		Pages:   pages,
		Metadata: types.DocumentMetadata{
			Filename:  filename,
			MimeType:  MimeTypePDF,
			PageCount: numPages,
		},
	}, nil
}

func pageText(page pdf.Page) (string, error) {
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}
