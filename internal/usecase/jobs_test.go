package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"TimelineWatch/internal/domain"
	"TimelineWatch/internal/stats"
)

type fixedPosts []domain.Post

func (f fixedPosts) RecentPosts(limit int) []domain.Post {
	if limit > 0 && len(f) > limit {
		return f[len(f)-limit:]
	}
	return f
}

func TestSentimentJobPublishesReport(t *testing.T) {
	t.Parallel()

	analyzer := &stubAnalyzer{name: "vader", report: domain.SentimentReport{
		Sentiment: "positive",
		Breakdown: domain.SentimentBreakdown{Positive: 60, Neutral: 30, Negative: 10},
		Topics:    []string{"etf"},
	}}
	notifier := &captureNotifier{}
	job := NewSentimentJob(SentimentDeps{
		Analyzer: analyzer,
		Posts:    fixedPosts{{ID: "tweet_1", Text: "great"}, {ID: "tweet_2", Text: "fine"}},
		Settings: staticSettings{keywords: []string{" ", "bitcoin"}},
		Notifier: notifier,
	})

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if err := job.Run(context.Background(), at); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	report, ok := job.Latest()
	if !ok {
		t.Fatalf("expected a report")
	}
	if report.Context != "bitcoin" || report.PostCount != 2 || report.Provider != "vader" || !report.AnalyzedAt.Equal(at) {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(notifier.messages) != 1 || !strings.Contains(notifier.messages[0], "Positive 60%") {
		t.Fatalf("unexpected digest: %v", notifier.messages)
	}

	if err := job.Run(context.Background(), at.Add(time.Minute)); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if analyzer.calls != 1 {
		t.Fatalf("no new posts means no new analysis, got %d calls", analyzer.calls)
	}
}

func TestSentimentJobFallsBack(t *testing.T) {
	t.Parallel()

	primary := &stubAnalyzer{name: "chatgpt", err: errors.New("429 too many requests")}
	fallback := &stubAnalyzer{name: "vader", report: domain.SentimentReport{Sentiment: "neutral"}}
	job := NewSentimentJob(SentimentDeps{
		Analyzer: primary,
		Fallback: fallback,
		Posts:    fixedPosts{{ID: "tweet_1", Text: "ok"}},
	})

	if err := job.Run(context.Background(), time.Now()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	report, _ := job.Latest()
	if report.Provider != "vader" || report.Context != "cryptocurrency" {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestSentimentJobWithoutPosts(t *testing.T) {
	t.Parallel()

	analyzer := &stubAnalyzer{name: "vader"}
	job := NewSentimentJob(SentimentDeps{Analyzer: analyzer, Posts: fixedPosts{}})
	if err := job.Run(context.Background(), time.Now()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if analyzer.calls != 0 {
		t.Fatalf("analyzer must not run on an empty batch")
	}
	if _, ok := job.Latest(); ok {
		t.Fatalf("no report expected")
	}
}

func TestStatsJobAlertsOncePerSample(t *testing.T) {
	t.Parallel()

	agg := stats.New(stats.Options{}, stats.Deps{Settings: staticSettings{}})
	notifier := &captureNotifier{}
	job := NewStatsJob(agg, notifier, 50, nil)
	ctx := context.Background()

	base := time.UnixMilli(1_000_000)
	for _, id := range []string{"1", "2", "3"} {
		agg.Ingest(ctx, domain.Post{ID: id, Text: "gm", Timestamp: base.UnixMilli()})
	}

	if err := job.Run(ctx, base); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if err := job.Run(ctx, base.Add(time.Second)); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(notifier.messages) != 1 || !strings.Contains(notifier.messages[0], "+100%") {
		t.Fatalf("expected exactly one alert, got %v", notifier.messages)
	}
}

func TestStatsJobAlertsDisabled(t *testing.T) {
	t.Parallel()

	agg := stats.New(stats.Options{}, stats.Deps{Settings: staticSettings{}})
	notifier := &captureNotifier{}
	agg.Ingest(context.Background(), domain.Post{ID: "1", Text: "gm", Timestamp: 1000})

	if err := NewStatsJob(agg, notifier, 0, nil).Run(context.Background(), time.UnixMilli(1000)); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(notifier.messages) != 0 {
		t.Fatalf("threshold 0 disables alerts")
	}
}

type captureDriver struct {
	job     func(time.Time)
	stopped bool
}

func (d *captureDriver) Start(_ context.Context, job func(time.Time)) error {
	d.job = job
	return nil
}

func (d *captureDriver) Stop(context.Context) error {
	d.stopped = true
	return nil
}

func TestSchedulerRunsJob(t *testing.T) {
	t.Parallel()

	driver := &captureDriver{}
	var runs int
	s := NewScheduler("stats", driver, func(context.Context, time.Time) error {
		runs++
		return errors.New("logged, not returned")
	}, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	driver.job(time.Now())
	driver.job(time.Now())
	if runs != 2 {
		t.Fatalf("expected 2 runs, got %d", runs)
	}
	if err := s.Stop(context.Background()); err != nil || !driver.stopped {
		t.Fatalf("Stop must reach the driver")
	}
}
