package monitor

import (
	"context"
	"time"
)

// Launcher starts a browser for the duration of one cycle.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// Browser hands out isolated rendering sessions.
type Browser interface {
	OpenSession(ctx context.Context, viewport Viewport) (Session, error)
	Close() error
}

// Session is one isolated page context (own cookies and cache). Every call
// honours the context deadline. Close must be idempotent.
type Session interface {
	// Navigate loads url and fails with ErrNavigation (or a context error)
	// when the page cannot be reached.
	Navigate(ctx context.Context, url string) error
	// WaitFor blocks until the CSS selector matches, failing with
	// ErrConditionTimeout when the deadline passes first.
	WaitFor(ctx context.Context, selector string) error
	Snapshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error)
	EvaluateStats(ctx context.Context) (PageStats, error)
	Close() error
}

// ArtifactStore persists snapshots keyed by site, date and time.
type ArtifactStore interface {
	Put(ctx context.Context, key ArtifactKey, contentType string, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	List(ctx context.Context, siteID string) ([]ArtifactInfo, error)
	Delete(ctx context.Context, key ArtifactKey) error
}

// ReportStore is the append-only cycle report history.
type ReportStore interface {
	Save(ctx context.Context, report CycleReport) (string, error)
	Latest(ctx context.Context) (CycleReport, string, error)
}

// StatusSyncer mirrors per-site state to an external status page.
type StatusSyncer interface {
	SyncSiteStatus(ctx context.Context, siteName string, online bool, responseTimeMs *int64, errorMessage string) error
}

// Notifier delivers a composed cycle report to operators.
type Notifier interface {
	Notify(ctx context.Context, report CycleReport) error
}

// Publisher pushes cycle summaries to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces cycle IDs.
type IDGenerator interface {
	NewID() (string, error)
}
