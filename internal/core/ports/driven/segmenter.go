package driven

import (
	"context"

	"github.com/openclinic-labs/intake-core/internal/core/domain"
)

// PatientSegmenter proposes per-patient page ranges for a document's text.
// The output is untrusted: segments may be empty, overlapping, or carry
// out-of-range page bounds. Implementations must swallow malformed model
// output and return an empty slice instead of failing; the splitter's
// single-segment fallback covers that case.
type PatientSegmenter interface {
	SegmentPatients(ctx context.Context, text string) ([]domain.PatientSegment, error)
}
