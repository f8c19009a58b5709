package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"TimelineWatch/internal/domain"
)

// stubProfile reads <article data-id=".." data-author=".." data-mode="..">text</article>.
type stubProfile struct{}

func (stubProfile) Name() string              { return "stub" }
func (stubProfile) CandidateSelector() string { return "article" }

func (stubProfile) Extract(node *goquery.Selection, now time.Time) (domain.Fields, error) {
	switch mode, _ := node.Attr("data-mode"); mode {
	case "panic":
		panic("broken markup")
	case "fail":
		return domain.Fields{}, errors.New("unexpected layout")
	case "empty":
		return domain.Fields{}, domain.ErrNoText
	}

	fields := domain.Fields{
		Text:      strings.TrimSpace(node.Text()),
		Author:    node.AttrOr("data-author", domain.UnknownAuthor),
		Timestamp: now.UnixMilli(),
	}
	if id, ok := node.Attr("data-id"); ok {
		fields.Ref = domain.Reference{Kind: domain.RefStatus, Value: id}
	}
	return fields, nil
}

func document(markup string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		panic(err)
	}
	return doc
}

type recordingEmitter struct {
	mu    sync.Mutex
	posts []domain.Post
	err   error
}

func (e *recordingEmitter) Emit(_ context.Context, post domain.Post) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.posts = append(e.posts, post)
	return e.err
}

func (e *recordingEmitter) ids() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.posts))
	for i, p := range e.posts {
		out[i] = p.ID
	}
	return out
}

// fakeSource serves a mutable markup string and counts collaborator calls.
type fakeSource struct {
	mu          sync.Mutex
	markup      string
	snapshotErr error
	aliveErr    error
	snapshots   int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Snapshot(context.Context) (*goquery.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots++
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	return document(f.markup), nil
}

func (f *fakeSource) Alive(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.aliveErr
}

func (f *fakeSource) set(markup string) {
	f.mu.Lock()
	f.markup = markup
	f.mu.Unlock()
}

func (f *fakeSource) snapshotCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshots
}

// interactiveSource can also refresh and scroll.
type interactiveSource struct {
	fakeSource

	softOK      bool
	softErr     error
	reloads     int
	scrolls     int
	scrollErr   error
	afterScroll string
}

func (s *interactiveSource) SoftRefresh(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.softOK, s.softErr
}

func (s *interactiveSource) Reload(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloads++
	return nil
}

func (s *interactiveSource) Scroll(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scrolls++
	if s.scrollErr != nil {
		return s.scrollErr
	}
	if s.afterScroll != "" {
		s.markup = s.afterScroll
	}
	return nil
}

func articles(ids ...string) string {
	var b strings.Builder
	b.WriteString("<main>")
	for _, id := range ids {
		fmt.Fprintf(&b, `<article data-id="%s" data-author="@%s">post number %s says hello</article>`, id, id, id)
	}
	b.WriteString("</main>")
	return b.String()
}

type stubAnalyzer struct {
	name   string
	mu     sync.Mutex
	calls  int
	err    error
	report domain.SentimentReport
}

func (a *stubAnalyzer) Name() string { return a.name }

func (a *stubAnalyzer) Analyze(_ context.Context, posts []domain.Post, label string) (domain.SentimentReport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return domain.SentimentReport{}, a.err
	}
	return a.report, nil
}

type captureNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *captureNotifier) PublishDigest(_ context.Context, digest string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, digest)
	return nil
}

type staticSettings struct {
	keywords []string
	excluded []string
}

func (s staticSettings) Keywords() []string      { return s.keywords }
func (s staticSettings) ExcludedTerms() []string { return s.excluded }
