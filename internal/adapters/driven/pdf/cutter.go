package pdf

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/openclinic-labs/intake-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DocumentCutter = (*Cutter)(nil)

// Cutter implements driven.DocumentCutter for PDFs using pdfcpu.
type Cutter struct {
	conf *model.Configuration
}

// NewCutter creates a new PDF page cutter.
func NewCutter() *Cutter {
	conf := model.NewDefaultConfiguration()
	// Tolerate the slightly out-of-spec files fax gateways produce.
	conf.ValidationMode = model.ValidationRelaxed
	return &Cutter{conf: conf}
}

// CutPages returns a new PDF containing the half-open page range
// [start, end) of docBytes, with start 0-based.
func (c *Cutter) CutPages(ctx context.Context, docBytes []byte, start, end int) ([]byte, error) {
	if start < 0 || end <= start {
		return nil, fmt.Errorf("invalid page range [%d, %d)", start, end)
	}

	// pdfcpu selections are 1-based inclusive.
	selection := []string{fmt.Sprintf("%d-%d", start+1, end)}

	var out bytes.Buffer
	if err := api.Trim(bytes.NewReader(docBytes), &out, selection, c.conf); err != nil {
		return nil, fmt.Errorf("trim pages %d-%d: %w", start+1, end, err)
	}
	return out.Bytes(), nil
}
