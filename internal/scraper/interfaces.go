package scraper

import (
	"context"
	"time"
)

// Getter performs a single HTTP GET with no retries.
type Getter interface {
	Get(ctx context.Context, url string) (Page, error)
}

// Fetcher retrieves a page on behalf of a job.
type Fetcher interface {
	Fetch(ctx context.Context, url, token string) (Page, error)
}

// CancelChecker reports whether cancellation is active for a job token.
type CancelChecker interface {
	Cancelled(ctx context.Context, token string) bool
}

// CancelSignals extends CancelChecker with removal of a job's signal.
type CancelSignals interface {
	CancelChecker
	Clear(ctx context.Context, token string) error
}

// AreaStore resolves area metadata. Unknown ids yield ErrNotFound.
type AreaStore interface {
	LookupArea(ctx context.Context, id int64) (AreaRef, error)
}

// ReportSink persists one sheet under fileName and returns the stored
// location.
type ReportSink interface {
	WriteSpreadsheet(ctx context.Context, sheet Sheet, fileName string) (string, error)
}

// Publisher pushes completion notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Limiter caps the upstream request rate.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Throttler is implemented by limiters that can hold back a host after it
// reports overload.
type Throttler interface {
	Throttle(url string, d time.Duration)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job tokens.
type IDGenerator interface {
	NewID() (string, error)
}
