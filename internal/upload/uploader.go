package upload

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer(
	"github.com/range-medical/consent-api/internal/upload",
)

// Generic artifact persistence interface
type Uploader interface {
	// Create / Overwrite file contents at `key` (blobName)
	Upload(ctx context.Context, reader io.ReadSeeker, length int64, key, contentType string) error
	// Provide an identifier for where files are being uploaded to. Useful for logging and auditing purposes.
	StoreIdentifier(ctx context.Context) (string, error)
	// Stable, anonymously readable URL for the stored artifact. Consent
	// records reference these URLs indefinitely, so they must not expire.
	PublicReadURL(ctx context.Context, key string) (string, error)
}
