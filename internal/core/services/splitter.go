package services

import (
	"context"
	"log/slog"

	"github.com/openclinic-labs/intake-core/internal/core/domain"
	"github.com/openclinic-labs/intake-core/internal/core/ports/driven"
)

// Splitter turns segmenter output into per-patient document slices.
// Segment bounds are untrusted; the splitter clamps them into the real
// page range and degrades to whole-document attachment when slicing fails.
type Splitter struct {
	cutter driven.DocumentCutter
	logger *slog.Logger
}

// SplitterConfig holds dependencies for Splitter.
type SplitterConfig struct {
	Cutter driven.DocumentCutter
	Logger *slog.Logger
}

// NewSplitter creates a new splitter.
func NewSplitter(cfg SplitterConfig) *Splitter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Splitter{cutter: cfg.Cutter, logger: logger}
}

// Split produces one PatientDocument per segment. With no segments it
// returns a single unattributed slice covering the whole document, so a
// document never silently disappears from review.
func (s *Splitter) Split(ctx context.Context, docBytes []byte, pageCount int, segments []domain.PatientSegment) []domain.PatientDocument {
	if pageCount < 1 {
		pageCount = 1
	}

	if len(segments) == 0 {
		segments = []domain.PatientSegment{{
			Name:      domain.UnknownPatientName,
			PageStart: 1,
			PageEnd:   pageCount,
		}}
	}

	out := make([]domain.PatientDocument, 0, len(segments))
	for _, seg := range segments {
		start, end := clampRange(seg.PageStart, seg.PageEnd, pageCount)

		bytes, err := s.cutter.CutPages(ctx, docBytes, start, end)
		if err != nil {
			// Whole document to every segment; the reviewer sees extra
			// pages rather than losing any.
			s.logger.Warn("page cut failed, attaching whole document",
				"patient", seg.Name, "start", start, "end", end, "error", err)
			bytes = docBytes
			start, end = 0, pageCount
		}

		out = append(out, domain.PatientDocument{
			Segment:   seg,
			Bytes:     bytes,
			PageStart: start,
			PageEnd:   end,
		})
	}
	return out
}

// clampRange converts 1-based inclusive segment bounds into a valid
// 0-based half-open range. Every input maps to at least one page.
func clampRange(pageStart, pageEnd, pageCount int) (int, int) {
	start := pageStart - 1
	if start > pageCount-1 {
		start = pageCount - 1
	}
	if start < 0 {
		start = 0
	}

	end := pageEnd
	if end > pageCount {
		end = pageCount
	}
	if end < start+1 {
		end = start + 1
	}
	return start, end
}
