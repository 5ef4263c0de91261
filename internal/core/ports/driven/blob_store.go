package driven

import (
	"context"
	"time"
)

// BlobStore holds per-patient document bytes independently of the queue
// metadata. Each key is owned by exactly one queue item; the publisher and
// the review service delete it exactly once after a terminal transition.
type BlobStore interface {
	// Put stores bytes under key, overwriting any existing object.
	Put(ctx context.Context, key string, data []byte) error

	// Get loads the bytes stored under key. Returns domain.ErrBlobMissing
	// when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// PresignedURL returns a time-limited read URL for dashboards, or an
	// empty string when the backend cannot produce one.
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}
