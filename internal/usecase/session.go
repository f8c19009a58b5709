package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"TimelineWatch/internal/domain"
	"TimelineWatch/internal/metrics"
	"TimelineWatch/internal/ports"
)

// Phase is the state of a discovery session's scan cycle.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseScanning   Phase = "scanning"
	PhaseScrolling  Phase = "scrolling"
	PhaseRescanning Phase = "rescanning"
	PhaseStopped    Phase = "stopped"
)

var allPhases = []string{
	string(PhaseIdle), string(PhaseScanning), string(PhaseScrolling), string(PhaseRescanning), string(PhaseStopped),
}

// SessionOptions holds the timer cadences of a discovery session.
type SessionOptions struct {
	PollInterval       time.Duration
	RefreshInterval    time.Duration
	CacheResetInterval time.Duration
	// StepTimeout bounds every snapshot, scroll, probe and refresh step.
	StepTimeout      time.Duration
	MinReloadSpacing time.Duration
	ScrollAfterScan  bool
	// MaxProbeFailures is how many consecutive inconclusive probes declare the source gone.
	MaxProbeFailures int
}

// DefaultSessionOptions returns the cadences used when nothing is configured.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		PollInterval:       time.Second,
		RefreshInterval:    30 * time.Second,
		CacheResetInterval: 5 * time.Minute,
		StepTimeout:        10 * time.Second,
		MinReloadSpacing:   5 * time.Second,
		ScrollAfterScan:    true,
		MaxProbeFailures:   3,
	}
}

// SessionDeps are the collaborators a session drives.
type SessionDeps struct {
	Source   ports.DocumentSource
	Pipeline *Pipeline
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Session is one monitoring run over a document source. It owns the dedup cache (through
// its pipeline) and three timers: poll, refresh and cache reset. A single scheduler
// goroutine drives them; refreshes run beside it and never overlap each other.
type Session struct {
	opts     SessionOptions
	source   ports.DocumentSource
	pipeline *Pipeline
	metrics  *metrics.Metrics
	logger   *slog.Logger
	reloads  *rate.Limiter

	// scanMu serializes scans and cache resets.
	scanMu        sync.Mutex
	refreshing    atomic.Bool
	refreshWG     sync.WaitGroup
	probeFailures atomic.Int32

	mu      sync.Mutex
	phase   Phase
	started bool
	stopped bool
	cancel  context.CancelFunc
	err     error

	done     chan struct{}
	doneOnce sync.Once
}

// NewSession builds an idle session; Start launches its timers.
func NewSession(opts SessionOptions, deps SessionDeps) *Session {
	def := DefaultSessionOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = def.RefreshInterval
	}
	if opts.CacheResetInterval <= 0 {
		opts.CacheResetInterval = def.CacheResetInterval
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = def.StepTimeout
	}
	if opts.MinReloadSpacing <= 0 {
		opts.MinReloadSpacing = def.MinReloadSpacing
	}
	if opts.MaxProbeFailures <= 0 {
		opts.MaxProbeFailures = def.MaxProbeFailures
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pipeline := deps.Pipeline
	if pipeline == nil {
		pipeline = NewPipeline(PipelineDeps{Metrics: deps.Metrics, Logger: logger})
	}

	s := &Session{
		opts:     opts,
		source:   deps.Source,
		pipeline: pipeline,
		metrics:  deps.Metrics,
		logger:   logger.With("component", "session"),
		reloads:  rate.NewLimiter(rate.Every(opts.MinReloadSpacing), 1),
		phase:    PhaseIdle,
		done:     make(chan struct{}),
	}
	if s.source != nil {
		s.logger = s.logger.With("source", s.source.Name())
	}
	return s
}

// Start launches the scheduler goroutine. The session stops when ctx is cancelled,
// Stop is called, or the source becomes unavailable.
func (s *Session) Start(ctx context.Context) error {
	if s.source == nil {
		return &domain.ConfigurationError{Field: "source", Reason: "document source is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return domain.ErrSessionStopped
	}
	if s.started {
		return errors.New("discovery session already started")
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.loop(runCtx)

	s.logger.Info("discovery session started",
		"poll", s.opts.PollInterval,
		"refresh", s.opts.RefreshInterval,
		"cache_reset", s.opts.CacheResetInterval)
	return nil
}

// Stop cancels all timers and waits for in-flight work to finish. Calling it more than
// once, or before Start, is harmless.
func (s *Session) Stop() {
	s.mu.Lock()
	s.stopped = true
	cancel, started := s.cancel, s.started
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		<-s.done
		return
	}
	s.finish()
}

// Done is closed once the session has fully stopped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that halted the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Phase reports the current cycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
	s.metrics.Phase(string(p), allPhases)
}

func (s *Session) finish() {
	s.doneOnce.Do(func() {
		s.setPhase(PhaseStopped)
		close(s.done)
	})
}

// halt records the first fatal error and cancels the session.
func (s *Session) halt(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	cancel := s.cancel
	s.mu.Unlock()

	s.logger.Error("discovery session halted", "error", err)
	if cancel != nil {
		cancel()
	}
}

func (s *Session) loop(ctx context.Context) {
	poll := time.NewTicker(s.opts.PollInterval)
	refresh := time.NewTicker(s.opts.RefreshInterval)
	reset := time.NewTicker(s.opts.CacheResetInterval)
	defer func() {
		poll.Stop()
		refresh.Stop()
		reset.Stop()
		s.refreshWG.Wait()
		s.logger.Info("discovery session stopped")
		s.finish()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			if err := s.cycle(ctx); domain.IsSourceUnavailable(err) {
				s.halt(err)
				return
			}
		case <-refresh.C:
			s.startRefresh(ctx)
		case <-reset.C:
			s.ResetCache()
		}
	}
}

// startRefresh runs RefreshTimeline beside the scan loop unless one is still in flight.
func (s *Session) startRefresh(ctx context.Context) {
	if !s.refreshing.CompareAndSwap(false, true) {
		s.logger.Debug("refresh still in flight, skipping tick")
		return
	}
	s.refreshWG.Add(1)
	go func() {
		defer s.refreshWG.Done()
		defer s.refreshing.Store(false)
		if err := s.RefreshTimeline(ctx); domain.IsSourceUnavailable(err) {
			s.halt(err)
		}
	}()
}

// cycle walks Scanning, then Scrolling and Rescanning when the source can scroll,
// and always ends in Idle. Only source unavailability is returned.
func (s *Session) cycle(ctx context.Context) error {
	defer func() {
		if ctx.Err() == nil {
			s.setPhase(PhaseIdle)
		}
	}()

	s.setPhase(PhaseScanning)
	if _, err := s.ScanOnce(ctx); err != nil {
		return err
	}

	scroller, ok := s.source.(ports.Scroller)
	if !ok || !s.opts.ScrollAfterScan {
		return nil
	}

	s.setPhase(PhaseScrolling)
	stepCtx, cancel := context.WithTimeout(ctx, s.opts.StepTimeout)
	err := scroller.Scroll(stepCtx)
	cancel()
	if err != nil {
		if domain.IsSourceUnavailable(err) {
			return err
		}
		s.logger.Warn("scroll failed, skipping rescan", "error", err)
		return nil
	}

	s.setPhase(PhaseRescanning)
	_, err = s.ScanOnce(ctx)
	return err
}

// ScanOnce snapshots the source and runs one pipeline pass. A failed snapshot triggers a
// liveness probe; only an unavailable source, or MaxProbeFailures inconclusive probes in a
// row, is reported as an error.
func (s *Session) ScanOnce(ctx context.Context) (ScanResult, error) {
	stepCtx, cancel := context.WithTimeout(ctx, s.opts.StepTimeout)
	defer cancel()

	doc, err := s.source.Snapshot(stepCtx)
	if err != nil {
		if domain.IsSourceUnavailable(err) {
			return ScanResult{}, err
		}
		if perr := s.probe(ctx); perr != nil {
			return ScanResult{}, perr
		}
		s.logger.Warn("snapshot failed, continuing", "error", err)
		return ScanResult{}, nil
	}

	s.scanMu.Lock()
	res := s.pipeline.Scan(stepCtx, doc)
	s.scanMu.Unlock()

	if len(res.Emitted) > 0 || res.Failures > 0 {
		s.logger.Debug("scan completed",
			"candidates", res.Candidates,
			"emitted", len(res.Emitted),
			"duplicates", res.DuplicateIDs+res.DuplicateContent,
			"failures", res.Failures)
	}
	return res, nil
}

// RefreshTimeline tries a soft refresh first and falls back to a full reload, which is
// rate limited to one per MinReloadSpacing.
func (s *Session) RefreshTimeline(ctx context.Context) error {
	if err := s.probe(ctx); err != nil {
		return err
	}
	refresher, ok := s.source.(ports.Refresher)
	if !ok {
		return nil
	}

	stepCtx, cancel := context.WithTimeout(ctx, s.opts.StepTimeout)
	defer cancel()

	refreshed, err := refresher.SoftRefresh(stepCtx)
	switch {
	case err == nil && refreshed:
		s.logger.Debug("timeline refreshed in place")
		return nil
	case domain.IsSourceUnavailable(err):
		return err
	case err != nil:
		s.logger.Warn("soft refresh failed", "error", err)
	}

	if !s.reloads.Allow() {
		s.logger.Info("full reload delayed")
		return nil
	}
	if err := refresher.Reload(stepCtx); err != nil {
		if domain.IsSourceUnavailable(err) {
			return err
		}
		s.logger.Warn("full reload failed", "error", err)
		return nil
	}
	s.logger.Info("timeline reloaded")
	return nil
}

// ResetCache clears the dedup cache so every visible post is detected again. The stats
// aggregator keeps its own seen set, so re-detected posts are not counted twice.
func (s *Session) ResetCache() {
	s.scanMu.Lock()
	ids, fingerprints := s.pipeline.Reset()
	s.scanMu.Unlock()
	s.logger.Info("dedup cache cleared", "ids", ids, "fingerprints", fingerprints)
}

func (s *Session) probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, s.opts.StepTimeout)
	defer cancel()

	err := s.source.Alive(probeCtx)
	switch {
	case err == nil:
		s.probeFailures.Store(0)
		return nil
	case ctx.Err() != nil:
		return nil
	case domain.IsSourceUnavailable(err):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("liveness probe timed out, continuing degraded", "error", err)
		return nil
	}

	failures := int(s.probeFailures.Add(1))
	if failures < s.opts.MaxProbeFailures {
		s.logger.Warn("liveness probe failed", "error", err, "consecutive", failures)
		return nil
	}
	return &domain.SourceUnavailableError{Source: s.source.Name(), Err: err}
}
