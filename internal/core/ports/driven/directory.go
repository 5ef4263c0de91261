package driven

import (
	"context"

	"github.com/openclinic-labs/intake-core/internal/core/domain"
)

// PatientDirectory provides the known-patient snapshot used for identity
// matching. Staleness within one ingestion run is acceptable; the matcher
// takes whatever snapshot it is handed.
type PatientDirectory interface {
	// Snapshot returns every known patient in stable insertion order.
	Snapshot(ctx context.Context) ([]domain.Patient, error)
}
