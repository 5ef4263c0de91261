package domain

import "time"

// SourceDocument is one inbound clinical document (email or fax attachment)
// plus its sender metadata. Immutable once ingested; the pipeline owns it
// only until splitting completes.
type SourceDocument struct {
	// Ref is the mailbox object key or another stable pointer for audit.
	Ref string `json:"ref"`

	Filename   string    `json:"filename"`
	Bytes      []byte    `json:"-"`
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
	ReceivedAt time.Time `json:"received_at"`

	// Channel records how the document arrived (email, fax, manual upload).
	Channel string `json:"channel"`
}

// PatientSegment is one contiguous page range attributed to a single patient,
// as proposed by the segmenter. Bounds are untrusted and may be reversed,
// negative, or out of range; the splitter clamps them.
type PatientSegment struct {
	Name           string   `json:"patient_name"`
	PageStart      int      `json:"page_start"`
	PageEnd        int      `json:"page_end"`
	TestsFound     []string `json:"tests_found,omitempty"`
	CollectionDate string   `json:"collection_date,omitempty"`
	DOB            string   `json:"dob,omitempty"`
}

// PatientDocument is the splitter output: one per-patient slice of the
// source document, with the resolved half-open page range [PageStart, PageEnd).
type PatientDocument struct {
	Segment   PatientSegment
	Bytes     []byte
	PageStart int
	PageEnd   int
}

// PageCount returns the number of pages in the slice.
func (d *PatientDocument) PageCount() int {
	return d.PageEnd - d.PageStart
}

// Patient is one entry of the patient directory snapshot used for matching.
// ID is the external record system's patient identifier.
type Patient struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// MatchCandidate is one ranked identity candidate for an extracted name.
type MatchCandidate struct {
	PatientID   string  `json:"patient_id"`
	DisplayName string  `json:"display_name"`
	Score       float64 `json:"score"`
}

// MatchResult is the matcher output for one extracted name.
// Best is nil when the top score is below the acceptance threshold.
type MatchResult struct {
	Best       *MatchCandidate  `json:"best,omitempty"`
	Candidates []MatchCandidate `json:"candidates"`
}

// Decision is a reviewer verdict on a queue item.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)
