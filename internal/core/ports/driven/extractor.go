package driven

import "context"

// TextExtractor recovers plain text from raw document bytes.
// Implementations must tolerate documents with no extractable text by
// returning an empty string and the page count they could determine,
// rather than an error; an error means the document could not be read
// at all.
type TextExtractor interface {
	// ExtractText returns the document text and its page count.
	ExtractText(ctx context.Context, docBytes []byte) (text string, pageCount int, err error)
}
