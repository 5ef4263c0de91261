package driven

import "context"

// DocumentCutter slices a document to a half-open page range [start, end).
// An implementation that cannot slice the format returns an error; the
// splitter then falls back to attaching the whole document.
type DocumentCutter interface {
	CutPages(ctx context.Context, docBytes []byte, start, end int) ([]byte, error)
}
