package crawler

import (
	"context"
	"io"
	"time"
)

// Crawler performs the platform-specific crawl for one batch of creators.
type Crawler interface {
	Crawl(ctx context.Context, request CrawlRequest) ([]RawNote, error)
}

// LoginChecker verifies or establishes an account's platform session.
type LoginChecker interface {
	CheckLogin(ctx context.Context, account string, headless bool) (bool, error)
	Login(ctx context.Context, account string, headless bool) error
}

// AccountStore persists account validity across restarts.
type AccountStore interface {
	UpsertAccount(ctx context.Context, account Account) error
	ListAccounts(ctx context.Context) ([]Account, error)
}

// ArchiveStore moves packaged browser profiles to and from remote storage.
type ArchiveStore interface {
	Upload(ctx context.Context, key string, r io.Reader) (string, error)
	Download(ctx context.Context, key string) (io.ReadCloser, error)
}

// JobStore keeps a summary of each admitted job.
type JobStore interface {
	SaveJob(ctx context.Context, job JobRecord) error
	GetJob(ctx context.Context, runID string) (JobRecord, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
