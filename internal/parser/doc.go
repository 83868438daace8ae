// Package parser turns source files into normalized text for the chunker.
//
// Three formats are recognized, selected by file extension:
//
//	.txt  text/plain       whole file as UTF-8 text
//	.md   text/markdown    whole file as UTF-8 text
//	.pdf  application/pdf  text extracted page by page
//
// # Basic Usage
//
//	p := parser.New()
//	doc, err := p.ParseFile("/path/to/notes.pdf")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, page := range doc.Pages {
//	    fmt.Printf("page %d: %d chars\n", page.PageNumber, len(page.Text))
//	}
//
// # Errors
//
// Failures are classified with the shared taxonomy in pkg/types:
//   - types.ErrUnsupportedFileType for unknown extensions
//   - types.ErrIOFailure when the file is missing or unreadable
//   - types.ErrParseFailure when a PDF cannot be decoded
//
// No partial document is returned on failure.
package parser
