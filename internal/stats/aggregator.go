// Package stats aggregates the discovered post stream into trailing-window counts and trends.
package stats

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"TimelineWatch/internal/dedup"
	"TimelineWatch/internal/domain"
	"TimelineWatch/internal/identity"
	"TimelineWatch/internal/metrics"
	"TimelineWatch/internal/ports"
)

// Outcome classifies what Ingest did with a record.
type Outcome string

const (
	Accepted         Outcome = "accepted"
	Filtered         Outcome = "filtered"
	DuplicateID      Outcome = "duplicate_id"
	DuplicateContent Outcome = "duplicate_content"
	AlreadyProcessed Outcome = "already_processed"
)

// Options tunes the aggregator. Zero values fall back to defaults.
type Options struct {
	Windows []Window
	// FingerprintLen is the text prefix compared for near-duplicates; shorter texts skip the check.
	FingerprintLen int
	MaxSeenIDs     int
	RetainSeenIDs  int
	MaxContent     int
	RetainContent  int
	RecentLimit    int
	// StoreTimeout bounds each ProcessedStore call.
	StoreTimeout   time.Duration
}

// DefaultOptions mirrors the dashboard defaults.
func DefaultOptions() Options {
	return Options{
		Windows:        DefaultWindows(),
		FingerprintLen: 20,
		MaxSeenIDs:     10000,
		RetainSeenIDs:  5000,
		MaxContent:     1000,
		RetainContent:  500,
		RecentLimit:    50,
		StoreTimeout:   3 * time.Second,
	}
}

// Deps are the aggregator collaborators; only Settings is required.
type Deps struct {
	Settings ports.SettingsSource
	Store    ports.ProcessedStore
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Aggregator owns the event log and window samples. It is safe for concurrent use; the
// transport consumer and the recompute job share one instance.
type Aggregator struct {
	mu sync.Mutex

	opts     Options
	settings ports.SettingsSource
	store    ports.ProcessedStore
	metrics  *metrics.Metrics
	logger   *slog.Logger

	// seen is never cleared by discovery resets.
	seen     *dedup.Cache
	events   []int64
	total    int
	filtered int
	dupes    int
	recent   []domain.Post
	series   []*series
	computed time.Time
}

// New builds an aggregator.
func New(opts Options, deps Deps) *Aggregator {
	def := DefaultOptions()
	if len(opts.Windows) == 0 {
		opts.Windows = def.Windows
	}
	if opts.FingerprintLen <= 0 {
		opts.FingerprintLen = def.FingerprintLen
	}
	if opts.MaxSeenIDs <= 0 {
		opts.MaxSeenIDs, opts.RetainSeenIDs = def.MaxSeenIDs, def.RetainSeenIDs
	}
	if opts.MaxContent <= 0 {
		opts.MaxContent, opts.RetainContent = def.MaxContent, def.RetainContent
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = def.RecentLimit
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = def.StoreTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	a := &Aggregator{
		opts:     opts,
		settings: deps.Settings,
		store:    deps.Store,
		metrics:  deps.Metrics,
		logger:   logger.With("component", "stats"),
		seen: dedup.New(dedup.Options{
			MaxIDs:        opts.MaxSeenIDs,
			RetainIDs:     opts.RetainSeenIDs,
			MaxContent:    opts.MaxContent,
			RetainContent: opts.RetainContent,
		}),
	}
	for _, w := range opts.Windows {
		a.series = append(a.series, &series{window: w})
	}
	return a
}

// Ingest offers one record. Repeating a record never changes the totals or the event log.
// Store calls run outside the lock and are bounded by StoreTimeout.
func (a *Aggregator) Ingest(ctx context.Context, post domain.Post) Outcome {
	fingerprint := a.fingerprint(post)

	a.mu.Lock()
	outcome := a.precheck(post.ID, fingerprint)
	a.mu.Unlock()

	if outcome == "" {
		processed := a.alreadyProcessed(ctx, post.ID)

		a.mu.Lock()
		outcome = a.precheck(post.ID, fingerprint)
		if outcome == "" {
			outcome = a.record(post, fingerprint, processed)
		}
		a.mu.Unlock()

		if outcome == Accepted || outcome == Filtered {
			a.markProcessed(ctx, post)
		}
	}

	a.metrics.Ingest(string(outcome))
	return outcome
}

// fingerprint is empty for texts shorter than FingerprintLen.
func (a *Aggregator) fingerprint(post domain.Post) string {
	if utf8.RuneCountInString(strings.TrimSpace(post.Text)) < a.opts.FingerprintLen {
		return ""
	}
	return identity.Fingerprint(post.Text, post.Author, a.opts.FingerprintLen)
}

// precheck returns a duplicate outcome, or "" when the record is new. Callers hold a.mu.
func (a *Aggregator) precheck(id, fingerprint string) Outcome {
	switch {
	case id == "" || a.seen.Seen(id):
		a.dupes++
		return DuplicateID
	case a.seen.SeenContent(fingerprint):
		a.seen.Remember(id)
		a.dupes++
		return DuplicateContent
	}
	return ""
}

// record commits a new record. Callers hold a.mu.
func (a *Aggregator) record(post domain.Post, fingerprint string, processed bool) Outcome {
	a.seen.Remember(post.ID)
	a.seen.RememberContent(fingerprint, post.ID)
	if processed {
		a.dupes++
		return AlreadyProcessed
	}

	if a.excluded(post.Text) {
		a.filtered++
		return Filtered
	}
	a.total++
	a.events = append(a.events, post.Timestamp)
	a.recent = append(a.recent, post)
	if over := len(a.recent) - a.opts.RecentLimit; over > 0 {
		a.recent = append([]domain.Post(nil), a.recent[over:]...)
	}
	return Accepted
}

// alreadyProcessed treats a failed or slow lookup as "not processed".
func (a *Aggregator) alreadyProcessed(ctx context.Context, id string) bool {
	if a.store == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, a.opts.StoreTimeout)
	defer cancel()

	done, err := a.store.AlreadyProcessed(ctx, []string{id})
	if err != nil {
		a.logger.Warn("processed lookup failed", "post_id", id, "error", err)
		return false
	}
	return done[id]
}

func (a *Aggregator) markProcessed(ctx context.Context, post domain.Post) {
	if a.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, a.opts.StoreTimeout)
	defer cancel()

	if err := a.store.MarkProcessed(ctx, post); err != nil {
		a.logger.Warn("mark processed failed", "post_id", post.ID, "error", err)
	}
}

func (a *Aggregator) excluded(text string) bool {
	if a.settings == nil {
		return false
	}
	lower := strings.ToLower(text)
	for _, term := range a.settings.ExcludedTerms() {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" && strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// Count returns how many logged events fall inside [now-span, now].
func (a *Aggregator) Count(span time.Duration, now time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count(span, now)
}

func (a *Aggregator) count(span time.Duration, now time.Time) int {
	end := now.UnixMilli()
	start := end - span.Milliseconds()
	n := 0
	for _, t := range a.events {
		if t >= start && t <= end {
			n++
		}
	}
	return n
}

// Recompute refreshes every window count, samples trends for windows whose cadence has
// elapsed and drops events older than the largest window.
func (a *Aggregator) Recompute(now time.Time) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	var longest time.Duration
	for _, s := range a.series {
		s.count = a.count(s.window.Span, now)
		if s.due(now) {
			s.sample(s.count, now)
		}
		if s.window.Span > longest {
			longest = s.window.Span
		}
		a.metrics.Window(s.window.Key, s.count, s.trend.Percent)
	}

	cutoff := now.Add(-longest).UnixMilli()
	kept := a.events[:0]
	for _, t := range a.events {
		if t >= cutoff {
			kept = append(kept, t)
		}
	}
	a.events = kept
	a.computed = now

	return a.snapshot()
}

// WindowStats is the public view of one window.
type WindowStats struct {
	Key     string  `json:"key"`
	Count   int     `json:"count"`
	Trend   Trend   `json:"trend"`
	Label   string  `json:"label"`
	History []Point `json:"history"`
}

// Snapshot is a consistent copy of the aggregator state as of the last recompute.
type Snapshot struct {
	TotalPosts     int           `json:"totalPosts"`
	FilteredPosts  int           `json:"filteredPosts"`
	DuplicatePosts int           `json:"duplicatePosts"`
	Events         int           `json:"events"`
	Windows        []WindowStats `json:"windows"`
	ComputedAt     time.Time     `json:"computedAt"`
}

// Window looks up a window by key.
func (s Snapshot) Window(key string) (WindowStats, bool) {
	for _, w := range s.Windows {
		if w.Key == key {
			return w, true
		}
	}
	return WindowStats{}, false
}

// Snapshot returns the current state without recomputing.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot()
}

func (a *Aggregator) snapshot() Snapshot {
	snap := Snapshot{
		TotalPosts:     a.total,
		FilteredPosts:  a.filtered,
		DuplicatePosts: a.dupes,
		Events:         len(a.events),
		ComputedAt:     a.computed,
	}
	for _, s := range a.series {
		snap.Windows = append(snap.Windows, WindowStats{
			Key:     s.window.Key,
			Count:   s.count,
			Trend:   s.trend,
			Label:   s.trend.String(),
			History: append([]Point(nil), s.points...),
		})
	}
	return snap
}

// RecentPosts returns up to limit of the most recent accepted posts, oldest first.
// A non-positive limit returns all retained posts.
func (a *Aggregator) RecentPosts(limit int) []domain.Post {
	a.mu.Lock()
	defer a.mu.Unlock()

	posts := a.recent
	if limit > 0 && len(posts) > limit {
		posts = posts[len(posts)-limit:]
	}
	return append([]domain.Post(nil), posts...)
}
