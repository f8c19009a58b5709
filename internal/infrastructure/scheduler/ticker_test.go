package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestTickerRunsAndStops(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	s := NewTickerScheduler(5*time.Millisecond, true)
	if err := s.Start(context.Background(), func(time.Time) { runs.Add(1) }); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := s.Start(context.Background(), func(time.Time) { t.Errorf("second job must not be registered") }); err != nil {
		t.Fatalf("second Start returned error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if runs.Load() < 3 {
		t.Fatalf("expected at least 3 runs, got %d", runs.Load())
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop returned error: %v", err)
	}
	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	if runs.Load() != after {
		t.Fatalf("job ran after Stop")
	}
}

func TestTickerSkipsWhileInFlight(t *testing.T) {
	t.Parallel()

	var running, overlaps atomic.Int32
	var runs atomic.Int32
	s := NewTickerScheduler(time.Millisecond, false)
	_ = s.Start(context.Background(), func(time.Time) {
		if running.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		runs.Add(1)
	})

	time.Sleep(60 * time.Millisecond)
	_ = s.Stop(context.Background())

	if overlaps.Load() != 0 {
		t.Fatalf("job invocations overlapped %d times", overlaps.Load())
	}
	if runs.Load() > 8 {
		t.Fatalf("ticks inside a running job must be dropped, got %d runs", runs.Load())
	}
}
