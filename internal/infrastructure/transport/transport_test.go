package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"TimelineWatch/internal/domain"
	"TimelineWatch/internal/stats"
)

func startTestNATS(t *testing.T) *nats.Conn {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})
	return nc
}

type failingChannel struct{ name string }

func (f failingChannel) Name() string                       { return f.name }
func (f failingChannel) Send(context.Context, []byte) error { return errors.New("pipe closed") }

func TestFanoutDeliversToEveryChannel(t *testing.T) {
	t.Parallel()

	a, b := NewLocalChannel(4, nil), NewLocalChannel(4, nil)
	f := NewFanout(nil, nil, a, b)
	post := domain.Post{ID: "tweet_1", Text: "gm", Author: "@a", Timestamp: 1000, Links: []string{"https://t.co/x"}}

	if err := f.Emit(context.Background(), post); err != nil {
		t.Fatalf("Emit returned error: %v", err)
	}
	for _, ch := range []*LocalChannel{a, b} {
		got, err := Decode(<-ch.queue)
		if err != nil {
			t.Fatalf("Decode error: %v", err)
		}
		if got.ID != post.ID || got.Links[0] != "https://t.co/x" {
			t.Fatalf("unexpected post: %+v", got)
		}
	}
}

func TestFanoutReportsTransportErrors(t *testing.T) {
	t.Parallel()

	ok := NewLocalChannel(1, nil)
	f := NewFanout(nil, nil, failingChannel{name: "ipc"}, ok)

	err := f.Emit(context.Background(), domain.Post{ID: "tweet_2", Text: "x"})
	var terr *domain.TransportError
	if !errors.As(err, &terr) || terr.Channel != "ipc" || terr.PostID != "tweet_2" {
		t.Fatalf("expected TransportError for ipc, got %v", err)
	}
	if len(ok.queue) != 1 {
		t.Fatalf("a failing channel must not prevent delivery on the others")
	}
}

func TestLocalChannelNeverBlocks(t *testing.T) {
	t.Parallel()

	ch := NewLocalChannel(1, nil)
	ctx := context.Background()
	if err := ch.Send(ctx, []byte(`{"id":"1"}`)); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := ch.Send(ctx, []byte(`{"id":"2"}`)); !errors.Is(err, ErrBufferFull) {
		t.Fatalf("expected ErrBufferFull, got %v", err)
	}
}

func TestLocalChannelRun(t *testing.T) {
	t.Parallel()

	ch := NewLocalChannel(8, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = ch.Send(ctx, []byte(`not json`))
	_ = ch.Send(ctx, []byte(`{"id":"tweet_1","text":"gm","author":"@a","timestamp":5}`))

	got := make(chan domain.Post, 1)
	done := make(chan error, 1)
	go func() {
		done <- ch.Run(ctx, func(_ context.Context, p domain.Post) { got <- p })
	}()

	select {
	case p := <-got:
		if p.ID != "tweet_1" || p.Timestamp != 5 {
			t.Fatalf("unexpected post: %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for post")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

func TestHeaderCarrier(t *testing.T) {
	t.Parallel()

	msg := &nats.Msg{}
	carrier := (*headerCarrier)(msg)
	if carrier.Get("traceparent") != "" || carrier.Keys() != nil {
		t.Fatalf("empty carrier must report nothing")
	}
	carrier.Set("traceparent", "00-abc-def-01")
	if got := carrier.Get("traceparent"); got != "00-abc-def-01" {
		t.Fatalf("unexpected traceparent %q", got)
	}
	if keys := carrier.Keys(); len(keys) != 1 {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestNATSRoundTrip(t *testing.T) {
	nc := startTestNATS(t)

	got := make(chan domain.Post, 1)
	sub, err := SubscribeNATS(nc, "test.posts", nil, func(_ context.Context, p domain.Post) { got <- p })
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	if err := nc.Publish("test.posts", []byte("{broken")); err != nil {
		t.Fatal(err)
	}
	f := NewFanout(nil, nil, NewNATSChannel(nc, "test.posts"))
	if err := f.Emit(context.Background(), domain.Post{ID: "tweet_7", Text: "hello"}); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-got:
		if p.ID != "tweet_7" {
			t.Fatalf("unexpected post: %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

type noSettings struct{}

func (noSettings) Keywords() []string      { return nil }
func (noSettings) ExcludedTerms() []string { return nil }

func TestRedundantChannelsCountOnce(t *testing.T) {
	nc := startTestNATS(t)
	agg := stats.New(stats.Options{}, stats.Deps{Settings: noSettings{}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	delivered := make(chan struct{}, 4)
	ingest := func(ctx context.Context, p domain.Post) {
		agg.Ingest(ctx, p)
		delivered <- struct{}{}
	}

	local := NewLocalChannel(8, nil)
	go local.Run(ctx, ingest)
	sub, err := SubscribeNATS(nc, "", nil, ingest)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	f := NewFanout(nil, nil, local, NewNATSChannel(nc, ""))
	if err := f.Emit(ctx, domain.Post{ID: "tweet_9", Text: "gm", Timestamp: 1}); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-delivered:
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for both deliveries")
		}
	}

	if snap := agg.Snapshot(); snap.TotalPosts != 1 {
		t.Fatalf("redundant delivery must be counted once, got %d", snap.TotalPosts)
	}
}
