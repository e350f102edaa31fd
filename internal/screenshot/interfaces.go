package screenshot

import (
	"context"
	"io"
	"time"

	"github.com/JakeFAU/webshot/internal/target"
)

// Capturer takes one screenshot. Implementations may be slow and may fail;
// they are responsible for their own timeouts.
type Capturer interface {
	Capture(ctx context.Context, t target.Target) (Artifact, error)
}

// Reporter observes run progress. Calls must return quickly.
type Reporter interface {
	TaskCompleted(p Progress)
	RunFinished(s Summary)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
