package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"TimelineWatch/internal/domain"
	"TimelineWatch/internal/ports"
	"TimelineWatch/internal/stats"
)

const defaultContextLabel = "cryptocurrency"

// StatsJob recomputes the aggregator windows and raises an activity alert when the
// freshly sampled 1-minute trend reaches the threshold. A zero threshold disables alerts.
type StatsJob struct {
	aggregator *stats.Aggregator
	notifier   ports.Notifier
	threshold  int
	logger     *slog.Logger

	mu        sync.Mutex
	lastAlert time.Time
}

// NewStatsJob builds the recompute job.
func NewStatsJob(aggregator *stats.Aggregator, notifier ports.Notifier, alertThreshold int, logger *slog.Logger) *StatsJob {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StatsJob{
		aggregator: aggregator,
		notifier:   notifier,
		threshold:  alertThreshold,
		logger:     logger.With("component", "stats_job"),
	}
}

// Run recomputes the windows at trigger.
func (j *StatsJob) Run(ctx context.Context, trigger time.Time) error {
	snap := j.aggregator.Recompute(trigger)
	if j.threshold <= 0 || j.notifier == nil {
		return nil
	}

	w, ok := snap.Window("1min")
	if !ok || len(w.History) == 0 || w.Trend.Direction != stats.Up || w.Trend.Percent < j.threshold {
		return nil
	}
	sampled := w.History[len(w.History)-1].At

	j.mu.Lock()
	fresh := sampled.After(j.lastAlert)
	if fresh {
		j.lastAlert = sampled
	}
	j.mu.Unlock()
	if !fresh {
		return nil
	}

	msg := fmt.Sprintf("Activity alert: %d posts in the last minute (%s)", w.Count, w.Trend)
	if err := j.notifier.PublishDigest(ctx, msg); err != nil {
		return fmt.Errorf("publish activity alert: %w", err)
	}
	return nil
}

// RecentSource hands out the posts a sentiment batch is built from.
type RecentSource interface {
	RecentPosts(limit int) []domain.Post
}

// SentimentDeps wires the sentiment job.
type SentimentDeps struct {
	Analyzer ports.SentimentAnalyzer
	// Fallback answers when Analyzer fails; usually the local analyzer.
	Fallback ports.SentimentAnalyzer
	Posts    RecentSource
	Settings ports.SettingsSource
	Notifier ports.Notifier
	Logger   *slog.Logger
	Batch    int
}

// SentimentJob periodically scores the most recent posts. It skips runs when no new
// post arrived since the previous report.
type SentimentJob struct {
	analyzer ports.SentimentAnalyzer
	fallback ports.SentimentAnalyzer
	posts    RecentSource
	settings ports.SettingsSource
	notifier ports.Notifier
	logger   *slog.Logger
	batch    int

	mu       sync.Mutex
	latest   domain.SentimentReport
	hasLast  bool
	lastPost string
}

// NewSentimentJob constructs the job.
func NewSentimentJob(deps SentimentDeps) *SentimentJob {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	batch := deps.Batch
	if batch <= 0 {
		batch = 50
	}
	return &SentimentJob{
		analyzer: deps.Analyzer,
		fallback: deps.Fallback,
		posts:    deps.Posts,
		settings: deps.Settings,
		notifier: deps.Notifier,
		logger:   logger.With("component", "sentiment"),
		batch:    batch,
	}
}

// Run analyzes the current batch and publishes the report.
func (j *SentimentJob) Run(ctx context.Context, trigger time.Time) error {
	if j.analyzer == nil || j.posts == nil {
		return nil
	}
	posts := j.posts.RecentPosts(j.batch)
	if len(posts) == 0 {
		return nil
	}
	newest := posts[len(posts)-1].ID

	j.mu.Lock()
	unchanged := j.hasLast && j.lastPost == newest
	j.mu.Unlock()
	if unchanged {
		return nil
	}

	label := ContextLabel(j.settings)
	provider := j.analyzer
	report, err := provider.Analyze(ctx, posts, label)
	if err != nil {
		if j.fallback == nil || j.fallback == j.analyzer {
			return fmt.Errorf("analyze sentiment with %s: %w", provider.Name(), err)
		}
		j.logger.Warn("sentiment analyzer failed, using fallback",
			"analyzer", provider.Name(), "fallback", j.fallback.Name(), "error", err)
		provider = j.fallback
		if report, err = provider.Analyze(ctx, posts, label); err != nil {
			return fmt.Errorf("analyze sentiment with %s: %w", provider.Name(), err)
		}
	}

	if report.Provider == "" {
		report.Provider = provider.Name()
	}
	report.Context = label
	report.PostCount = len(posts)
	report.AnalyzedAt = trigger

	j.mu.Lock()
	j.latest, j.hasLast, j.lastPost = report, true, newest
	j.mu.Unlock()

	j.logger.Info("sentiment analyzed",
		"provider", report.Provider, "sentiment", report.Sentiment, "posts", report.PostCount)

	if j.notifier != nil {
		if err := j.notifier.PublishDigest(ctx, FormatReport(report)); err != nil {
			return fmt.Errorf("publish sentiment digest: %w", err)
		}
	}
	return nil
}

// Latest returns the most recent report.
func (j *SentimentJob) Latest() (domain.SentimentReport, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.latest, j.hasLast
}

// ContextLabel is the topic handed to analyzers: the first keyword, or a generic default.
func ContextLabel(settings ports.SettingsSource) string {
	if settings != nil {
		for _, kw := range settings.Keywords() {
			if kw = strings.TrimSpace(kw); kw != "" {
				return kw
			}
		}
	}
	return defaultContextLabel
}

// FormatReport renders a report as a plain-text digest.
func FormatReport(r domain.SentimentReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sentiment for %q: %s (%d posts, %s)\n", r.Context, r.Sentiment, r.PostCount, r.Provider)
	fmt.Fprintf(&b, "Positive %d%% / Neutral %d%% / Negative %d%%\n",
		r.Breakdown.Positive, r.Breakdown.Neutral, r.Breakdown.Negative)
	if len(r.Topics) > 0 {
		fmt.Fprintf(&b, "Topics: %s\n", strings.Join(r.Topics, ", "))
	}
	if r.Insights != "" {
		b.WriteString(r.Insights)
		b.WriteByte('\n')
	}
	return b.String()
}
