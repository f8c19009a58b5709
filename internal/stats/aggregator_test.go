package stats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"TimelineWatch/internal/domain"
)

type staticSettings struct {
	keywords []string
	excluded []string
}

func (s staticSettings) Keywords() []string      { return s.keywords }
func (s staticSettings) ExcludedTerms() []string { return s.excluded }

type memoryStore struct {
	processed map[string]bool
	marked    []string
	lookupErr error
}

func (m *memoryStore) AlreadyProcessed(_ context.Context, ids []string) (map[string]bool, error) {
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	out := map[string]bool{}
	for _, id := range ids {
		if m.processed[id] {
			out[id] = true
		}
	}
	return out, nil
}

func (m *memoryStore) MarkProcessed(_ context.Context, post domain.Post) error {
	m.marked = append(m.marked, post.ID)
	return nil
}

func ms(v int64) time.Time {
	return time.UnixMilli(v)
}

func TestWindowBoundaries(t *testing.T) {
	t.Parallel()

	a := New(Options{}, Deps{Settings: staticSettings{}})
	ctx := context.Background()
	a.Ingest(ctx, domain.Post{ID: "a", Text: "gm", Timestamp: 0})
	a.Ingest(ctx, domain.Post{ID: "b", Text: "gn", Timestamp: 61000})

	if got := a.Count(time.Minute, ms(61000)); got != 1 {
		t.Fatalf("1min count = %d, want 1", got)
	}
	if got := a.Count(5*time.Minute, ms(61000)); got != 2 {
		t.Fatalf("5min count = %d, want 2", got)
	}

	snap := a.Recompute(ms(61000))
	w, ok := snap.Window("1min")
	if !ok || w.Count != 1 {
		t.Fatalf("unexpected 1min window: %+v", w)
	}
}

func TestCountIgnoresFutureEvents(t *testing.T) {
	t.Parallel()

	a := New(Options{}, Deps{Settings: staticSettings{}})
	a.Ingest(context.Background(), domain.Post{ID: "late", Text: "gm", Timestamp: 70000})

	if got := a.Count(time.Hour, ms(61000)); got != 0 {
		t.Fatalf("event after now must not be counted, got %d", got)
	}
}

func TestIngestIsIdempotent(t *testing.T) {
	t.Parallel()

	a := New(Options{}, Deps{Settings: staticSettings{excluded: []string{"scam"}}})
	ctx := context.Background()
	accepted := domain.Post{ID: "tweet_1", Text: "hello", Author: "@a", Timestamp: 1000}
	filtered := domain.Post{ID: "tweet_2", Text: "scam", Author: "@b", Timestamp: 1000}

	if got := a.Ingest(ctx, accepted); got != Accepted {
		t.Fatalf("first ingest = %s", got)
	}
	if got := a.Ingest(ctx, filtered); got != Filtered {
		t.Fatalf("first filtered ingest = %s", got)
	}
	once := a.Snapshot()

	if got := a.Ingest(ctx, accepted); got != DuplicateID {
		t.Fatalf("repeated ingest = %s", got)
	}
	a.Ingest(ctx, filtered)
	twice := a.Snapshot()

	if once.TotalPosts != twice.TotalPosts || once.FilteredPosts != twice.FilteredPosts || once.Events != twice.Events {
		t.Fatalf("repeat changed state: %+v -> %+v", once, twice)
	}
	if twice.TotalPosts != 1 || twice.FilteredPosts != 1 || twice.Events != 1 {
		t.Fatalf("unexpected totals: %+v", twice)
	}
}

func TestNearDuplicateContent(t *testing.T) {
	t.Parallel()

	a := New(Options{}, Deps{Settings: staticSettings{}})
	ctx := context.Background()

	first := domain.Post{ID: "tweet_1", Author: "@alice", Text: "Bitcoin is pumping hard today!!", Timestamp: 1}
	second := domain.Post{ID: "tweet_2", Author: "@alice", Text: "bitcoin  is pumping HARD tomorrow", Timestamp: 2}
	other := domain.Post{ID: "tweet_3", Author: "@bob", Text: "Bitcoin is pumping hard today!!", Timestamp: 3}

	if got := a.Ingest(ctx, first); got != Accepted {
		t.Fatalf("first = %s", got)
	}
	if got := a.Ingest(ctx, second); got != DuplicateContent {
		t.Fatalf("same author and prefix must be a duplicate, got %s", got)
	}
	if got := a.Ingest(ctx, other); got != Accepted {
		t.Fatalf("different author must be accepted, got %s", got)
	}
	if got := a.Ingest(ctx, second); got != DuplicateID {
		t.Fatalf("suppressed id must be remembered, got %s", got)
	}
	if snap := a.Snapshot(); snap.TotalPosts != 2 {
		t.Fatalf("expected 2 accepted posts, got %d", snap.TotalPosts)
	}
}

func TestShortTextsSkipFingerprint(t *testing.T) {
	t.Parallel()

	a := New(Options{}, Deps{Settings: staticSettings{}})
	ctx := context.Background()
	a.Ingest(ctx, domain.Post{ID: "tweet_1", Author: "@a", Text: "gm"})
	if got := a.Ingest(ctx, domain.Post{ID: "tweet_2", Author: "@a", Text: "gm"}); got != Accepted {
		t.Fatalf("short texts are only deduplicated by id, got %s", got)
	}
}

func TestExcludedTermsAreCaseInsensitive(t *testing.T) {
	t.Parallel()

	a := New(Options{}, Deps{Settings: staticSettings{excluded: []string{"scam"}}})
	got := a.Ingest(context.Background(), domain.Post{ID: "tweet_1", Text: "this is a SCAM alert", Timestamp: 1000})
	if got != Filtered {
		t.Fatalf("expected filtered, got %s", got)
	}

	snap := a.Snapshot()
	if snap.FilteredPosts != 1 || snap.TotalPosts != 0 || snap.Events != 0 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if len(a.RecentPosts(0)) != 0 {
		t.Fatalf("filtered posts must not reach the recent buffer")
	}
}

func TestComputeTrend(t *testing.T) {
	t.Parallel()

	cases := []struct {
		previous, current int
		want              Trend
		label             string
	}{
		{0, 3, Trend{Direction: Up, Percent: 100}, "+100%"},
		{10, 5, Trend{Direction: Down, Percent: -50}, "-50%"},
		{0, 0, Trend{Direction: Flat}, "0%"},
		{4, 4, Trend{Direction: Flat}, "0%"},
		{3, 4, Trend{Direction: Up, Percent: 33}, "+33%"},
		{4, 0, Trend{Direction: Down, Percent: -100}, "-100%"},
		{8, 7, Trend{Direction: Down, Percent: -12}, "-12%"},
	}
	for _, tc := range cases {
		got := ComputeTrend(tc.previous, tc.current)
		if got != tc.want {
			t.Fatalf("ComputeTrend(%d, %d) = %+v, want %+v", tc.previous, tc.current, got, tc.want)
		}
		if got.String() != tc.label {
			t.Fatalf("label for (%d, %d) = %s, want %s", tc.previous, tc.current, got, tc.label)
		}
	}
}

func TestTrendsRespectUpdateInterval(t *testing.T) {
	t.Parallel()

	a := New(Options{}, Deps{Settings: staticSettings{}})
	ctx := context.Background()
	a.Ingest(ctx, domain.Post{ID: "1", Text: "a", Timestamp: 1000})

	snap := a.Recompute(ms(1000))
	w, _ := snap.Window("1min")
	if w.Trend.String() != "+100%" || len(w.History) != 1 {
		t.Fatalf("first sample: %+v", w)
	}

	a.Ingest(ctx, domain.Post{ID: "2", Text: "b", Timestamp: 2000})
	a.Ingest(ctx, domain.Post{ID: "3", Text: "c", Timestamp: 3000})

	snap = a.Recompute(ms(5000))
	w, _ = snap.Window("1min")
	if w.Count != 3 {
		t.Fatalf("count must refresh on every recompute, got %d", w.Count)
	}
	if len(w.History) != 1 || w.Trend.Percent != 100 {
		t.Fatalf("trend must not resample before the interval: %+v", w)
	}

	snap = a.Recompute(ms(11000))
	w, _ = snap.Window("1min")
	if len(w.History) != 2 || w.Trend.String() != "+200%" {
		t.Fatalf("expected +200%% after interval, got %+v", w)
	}
	five, _ := snap.Window("5min")
	if len(five.History) != 1 {
		t.Fatalf("5min window must keep its own cadence, got %d samples", len(five.History))
	}
}

func TestHistoryIsBounded(t *testing.T) {
	t.Parallel()

	a := New(Options{Windows: []Window{{Key: "w", Span: time.Minute, MaxHistory: 2, UpdateInterval: time.Second}}},
		Deps{Settings: staticSettings{}})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		a.Ingest(ctx, domain.Post{ID: fmt.Sprint(i), Text: "x", Timestamp: int64(i) * 1000})
		a.Recompute(ms(int64(i) * 1000))
	}

	w, _ := a.Snapshot().Window("w")
	if len(w.History) != 2 || w.History[0].Value != 2 || w.History[1].Value != 3 {
		t.Fatalf("unexpected history: %+v", w.History)
	}
}

func TestRecomputeTruncatesEventLog(t *testing.T) {
	t.Parallel()

	a := New(Options{}, Deps{Settings: staticSettings{}})
	ctx := context.Background()
	a.Ingest(ctx, domain.Post{ID: "old", Text: "x", Timestamp: 0})
	a.Ingest(ctx, domain.Post{ID: "new", Text: "y", Timestamp: int64(61 * time.Minute / time.Millisecond)})

	snap := a.Recompute(ms(int64(61 * time.Minute / time.Millisecond)))
	if snap.Events != 1 {
		t.Fatalf("expected events older than 60 minutes to be dropped, got %d", snap.Events)
	}
	if snap.TotalPosts != 2 {
		t.Fatalf("truncation must not change totals, got %d", snap.TotalPosts)
	}
}

func TestRecentPosts(t *testing.T) {
	t.Parallel()

	a := New(Options{RecentLimit: 3}, Deps{Settings: staticSettings{}})
	for i := 0; i < 5; i++ {
		a.Ingest(context.Background(), domain.Post{ID: fmt.Sprint(i), Text: "t"})
	}

	all := a.RecentPosts(0)
	if len(all) != 3 || all[0].ID != "2" || all[2].ID != "4" {
		t.Fatalf("unexpected recent posts: %+v", all)
	}
	two := a.RecentPosts(2)
	if len(two) != 2 || two[0].ID != "3" {
		t.Fatalf("unexpected limited posts: %+v", two)
	}
}

func TestProcessedStore(t *testing.T) {
	t.Parallel()

	store := &memoryStore{processed: map[string]bool{"tweet_9": true}}
	a := New(Options{}, Deps{Settings: staticSettings{excluded: []string{"spam"}}, Store: store})
	ctx := context.Background()

	if got := a.Ingest(ctx, domain.Post{ID: "tweet_9", Text: "from a previous run"}); got != AlreadyProcessed {
		t.Fatalf("expected already processed, got %s", got)
	}
	a.Ingest(ctx, domain.Post{ID: "tweet_10", Text: "fresh"})
	a.Ingest(ctx, domain.Post{ID: "tweet_11", Text: "spam"})

	if len(store.marked) != 2 || store.marked[0] != "tweet_10" || store.marked[1] != "tweet_11" {
		t.Fatalf("unexpected marked ids: %v", store.marked)
	}
	if snap := a.Snapshot(); snap.TotalPosts != 1 || snap.FilteredPosts != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestProcessedStoreFailureDegrades(t *testing.T) {
	t.Parallel()

	store := &memoryStore{lookupErr: errors.New("connection refused")}
	a := New(Options{}, Deps{Settings: staticSettings{}, Store: store})

	if got := a.Ingest(context.Background(), domain.Post{ID: "tweet_1", Text: "gm"}); got != Accepted {
		t.Fatalf("lookup failure must not block ingestion, got %s", got)
	}
}

// blockingStore holds every lookup until release is closed or the context ends.
type blockingStore struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingStore) AlreadyProcessed(ctx context.Context, _ []string) (map[string]bool, error) {
	close(b.started)
	select {
	case <-b.release:
		return map[string]bool{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *blockingStore) MarkProcessed(context.Context, domain.Post) error { return nil }

func TestSlowStoreDoesNotBlockReaders(t *testing.T) {
	t.Parallel()

	store := &blockingStore{started: make(chan struct{}), release: make(chan struct{})}
	a := New(Options{StoreTimeout: time.Minute}, Deps{Settings: staticSettings{}, Store: store})

	outcome := make(chan Outcome, 1)
	go func() {
		outcome <- a.Ingest(context.Background(), domain.Post{ID: "tweet_1", Text: "gm", Timestamp: 1000})
	}()
	<-store.started

	recomputed := make(chan struct{})
	go func() {
		a.Recompute(ms(2000))
		a.Snapshot()
		close(recomputed)
	}()
	select {
	case <-recomputed:
	case <-time.After(time.Second):
		t.Fatalf("Recompute must not wait for an in-flight store lookup")
	}

	close(store.release)
	if got := <-outcome; got != Accepted {
		t.Fatalf("expected accepted after the lookup returned, got %s", got)
	}
	if snap := a.Recompute(ms(2000)); snap.TotalPosts != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestStoreLookupIsBounded(t *testing.T) {
	t.Parallel()

	store := &blockingStore{started: make(chan struct{}), release: make(chan struct{})}
	a := New(Options{StoreTimeout: 20 * time.Millisecond}, Deps{Settings: staticSettings{}, Store: store})

	start := time.Now()
	if got := a.Ingest(context.Background(), domain.Post{ID: "tweet_1", Text: "gm"}); got != Accepted {
		t.Fatalf("a timed out lookup degrades to accepted, got %s", got)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("lookup was not bounded: %s", elapsed)
	}
}
