package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/openclinic-labs/intake-core/internal/core/domain"
	"github.com/openclinic-labs/intake-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.TextExtractor = (*Extractor)(nil)

// Extractor implements driven.TextExtractor for PDF documents.
// Pages without a text layer (scans) contribute nothing; a document that
// cannot be opened at all is an error.
type Extractor struct{}

// NewExtractor creates a new PDF text extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractText returns the document text and its page count.
func (e *Extractor) ExtractText(ctx context.Context, docBytes []byte) (string, int, error) {
	reader := bytes.NewReader(docBytes)
	pdfReader, err := pdf.NewReader(reader, reader.Size())
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w: %v", domain.ErrExtractionFailed, err)
	}

	numPages := pdfReader.NumPage()
	var b strings.Builder

	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", numPages, err
		}

		page := pdfReader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// Unreadable page, keep going with what the rest yields.
			continue
		}
		if i > 1 && text != "" {
			b.WriteString("\f")
		}
		b.WriteString(text)
	}

	return b.String(), numPages, nil
}
