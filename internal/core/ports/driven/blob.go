package driven

import (
	"context"
	"time"
)

// BlobStore holds raw uploaded files. The pipeline treats it as an
// opaque collaborator: bytes in, handle out.
//
// Implementations may include:
//   - Local filesystem (development, single node)
//   - S3-compatible object stores behind the same contract
type BlobStore interface {
	// Put stores the bytes and returns an opaque handle. The hint is
	// a filename whose extension may inform the stored name; it is
	// not required to survive round-trips.
	Put(ctx context.Context, data []byte, hint string) (string, error)

	// Get retrieves the bytes for a handle.
	Get(ctx context.Context, handle string) ([]byte, error)

	// Delete removes the stored bytes. Deleting a missing handle is
	// not an error.
	Delete(ctx context.Context, handle string) error

	// URL returns a presigned URL for direct download, valid for ttl.
	URL(ctx context.Context, handle string, ttl time.Duration) (string, error)
}
