package ports

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"

	"TimelineWatch/internal/domain"
)

// DocumentSource exposes a read-only view of the rendered timeline.
type DocumentSource interface {
	Name() string
	// Snapshot returns the current document; a domain.SourceUnavailableError means the page is gone.
	Snapshot(ctx context.Context) (*goquery.Document, error)
	// Alive is a lightweight liveness probe.
	Alive(ctx context.Context) error
}

// Refresher is implemented by sources that can pull fresh content in place.
type Refresher interface {
	// SoftRefresh tries a cheap in-place refresh; false means the path is unavailable.
	SoftRefresh(ctx context.Context) (bool, error)
	// Reload performs a full reload of the document.
	Reload(ctx context.Context) error
}

// Scroller is implemented by sources that can reveal more candidates.
type Scroller interface {
	Scroll(ctx context.Context) error
}

// Emitter delivers newly discovered posts downstream. It never blocks for long.
type Emitter interface {
	Emit(ctx context.Context, post domain.Post) error
}

// Channel is one one-way delivery path of the transport boundary.
type Channel interface {
	Name() string
	Send(ctx context.Context, payload []byte) error
}

// SettingsSource exposes read-only user settings.
type SettingsSource interface {
	Keywords() []string
	ExcludedTerms() []string
}

// SentimentAnalyzer scores a batch of posts out-of-band.
type SentimentAnalyzer interface {
	Name() string
	Analyze(ctx context.Context, posts []domain.Post, contextLabel string) (domain.SentimentReport, error)
}

// ProcessedStore persists ingested post ids so deduplication survives restarts.
type ProcessedStore interface {
	AlreadyProcessed(ctx context.Context, ids []string) (map[string]bool, error)
	MarkProcessed(ctx context.Context, post domain.Post) error
}

// Notifier streams digests and alerts to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when periodic jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
