package driven

import "context"

// RecordSystem is the external patient-record system receiving approved
// documents. Uploads are write-once per queue item; the publisher enforces
// that by refusing to re-publish an item that already carries an external
// document id.
type RecordSystem interface {
	// PublishDocument uploads the document into the patient's chart and
	// returns the created document's id.
	PublishDocument(ctx context.Context, patientID string, docBytes []byte, filename string) (documentID string, err error)
}
