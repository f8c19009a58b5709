package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/nats-io/nats.go"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"TimelineWatch/internal/config"
	"TimelineWatch/internal/dedup"
	"TimelineWatch/internal/domain"
	"TimelineWatch/internal/infrastructure/httpapi"
	"TimelineWatch/internal/infrastructure/llm"
	"TimelineWatch/internal/infrastructure/ml"
	"TimelineWatch/internal/infrastructure/parser"
	"TimelineWatch/internal/infrastructure/scheduler"
	"TimelineWatch/internal/infrastructure/sentiment"
	"TimelineWatch/internal/infrastructure/source"
	"TimelineWatch/internal/infrastructure/storage"
	"TimelineWatch/internal/infrastructure/telegram"
	"TimelineWatch/internal/infrastructure/transport"
	"TimelineWatch/internal/logging"
	"TimelineWatch/internal/metrics"
	"TimelineWatch/internal/ports"
	"TimelineWatch/internal/scanner"
	"TimelineWatch/internal/stats"
	"TimelineWatch/internal/usecase"
)

const stopTimeout = 10 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg    config.Config
	logger *slog.Logger

	metrics    *metrics.Metrics
	aggregator *stats.Aggregator
	session    *usecase.Session
	local      *transport.LocalChannel
	natsConn   *nats.Conn
	schedulers []*usecase.Scheduler
	sentiment  *usecase.SentimentJob
	router     http.Handler

	closers []func() error
}

// NewRegistry returns every built-in extraction profile.
func NewRegistry() *scanner.Registry {
	registry := scanner.NewRegistry()
	registry.Register(parser.NewTwitterProfile())
	registry.Register(parser.NewXProfile())
	return registry
}

// New connects optional infrastructure and builds the discovery session, the aggregator
// and the periodic jobs. Optional features that are misconfigured are logged and skipped.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	a := &Application{cfg: cfg, logger: baseLogger, metrics: metrics.New()}

	profile, err := NewRegistry().Resolve(cfg.Source.Profile)
	if err != nil {
		return nil, &domain.ConfigurationError{Field: "source.profile", Reason: err.Error()}
	}
	src, err := buildSource(cfg.Source, cfg.Settings)
	if err != nil {
		return nil, err
	}

	store, err := a.buildStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	a.aggregator = stats.New(stats.Options{
		FingerprintLen: cfg.Dedup.FingerprintLen,
		MaxSeenIDs:     cfg.Stats.MaxSeenIDs,
		RetainSeenIDs:  cfg.Stats.MaxSeenIDs / 2,
		MaxContent:     cfg.Dedup.MaxContent,
		RetainContent:  cfg.Dedup.RetainContent,
		RecentLimit:    cfg.Stats.RecentLimit,
	}, stats.Deps{
		Settings: cfg.Settings,
		Store:    store,
		Metrics:  a.metrics,
		Logger:   baseLogger.With("component", "aggregator"),
	})

	a.local = transport.NewLocalChannel(cfg.Transport.LocalBuffer, baseLogger)
	channels := []ports.Channel{a.local}
	if cfg.Transport.NATSURL != "" {
		conn, err := nats.Connect(cfg.Transport.NATSURL, nats.Name("timelinewatch"))
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		a.natsConn = conn
		a.closers = append(a.closers, func() error { return conn.Drain() })
		channels = append(channels, transport.NewNATSChannel(conn, cfg.Transport.NATSSubject))
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Profile: profile,
		Cache: dedup.New(dedup.Options{
			MaxIDs:        cfg.Dedup.MaxIDs,
			RetainIDs:     cfg.Dedup.RetainIDs,
			MaxContent:    cfg.Dedup.MaxContent,
			RetainContent: cfg.Dedup.RetainContent,
		}),
		Emitter:        transport.NewFanout(baseLogger, a.metrics, channels...),
		Metrics:        a.metrics,
		Logger:         baseLogger.With("component", "pipeline"),
		MaxPerCheck:    cfg.Session.MaxPerCheck,
		FingerprintLen: cfg.Dedup.FingerprintLen,
	})
	a.session = usecase.NewSession(usecase.SessionOptions{
		PollInterval:       cfg.Session.PollInterval,
		RefreshInterval:    cfg.Session.RefreshInterval,
		CacheResetInterval: cfg.Session.CacheResetInterval,
		StepTimeout:        cfg.Session.StepTimeout,
		MinReloadSpacing:   cfg.Session.MinReloadSpacing,
		ScrollAfterScan:    cfg.Session.ScrollAfterScan,
		MaxProbeFailures:   cfg.Session.MaxProbeFailures,
	}, usecase.SessionDeps{
		Source:   src,
		Pipeline: pipeline,
		Metrics:  a.metrics,
		Logger:   baseLogger,
	})

	var notifier ports.Notifier
	if tg := cfg.Notifications.Telegram; tg.Enabled() {
		notifier = telegram.NewNotifier(tg.BotToken, tg.ChatID)
	}

	statsJob := usecase.NewStatsJob(a.aggregator, notifier, cfg.Notifications.AlertThreshold, baseLogger)
	a.schedulers = append(a.schedulers, usecase.NewScheduler("stats",
		scheduler.NewTickerScheduler(cfg.Stats.RecomputeInterval, true), statsJob.Run, baseLogger))

	if analyzer, fallback := SelectAnalyzer(cfg.Sentiment, baseLogger); analyzer != nil {
		a.sentiment = usecase.NewSentimentJob(usecase.SentimentDeps{
			Analyzer: analyzer,
			Fallback: fallback,
			Posts:    a.aggregator,
			Settings: cfg.Settings,
			Notifier: notifier,
			Logger:   baseLogger,
			Batch:    cfg.Sentiment.BatchSize,
		})
		a.schedulers = append(a.schedulers, usecase.NewScheduler("sentiment",
			scheduler.NewTickerScheduler(cfg.Sentiment.Interval, false), a.sentiment.Run, baseLogger))
	}

	if cfg.HTTP.Addr != "" {
		deps := httpapi.Deps{
			Stats:   a.aggregator,
			Phase:   func() string { return string(a.session.Phase()) },
			Metrics: a.metrics,
			Logger:  baseLogger.With("component", "http"),
		}
		if a.sentiment != nil {
			deps.Sentiment = a.sentiment
		}
		a.router = httpapi.NewRouter(deps)
	}

	return a, nil
}

func buildSource(cfg config.SourceConfig, settings config.Settings) (ports.DocumentSource, error) {
	if len(cfg.Files) > 0 {
		return source.NewFileSource(cfg.Files...)
	}
	return source.NewHTTPSource(source.HTTPOptions{
		URL:       cfg.URL,
		BaseURL:   cfg.BaseURL,
		Keywords:  settings.Keywords(),
		Cookie:    cfg.Cookie,
		UserAgent: cfg.UserAgent,
	})
}

// buildStore opens the durable processed-post store, Postgres first.
func (a *Application) buildStore(ctx context.Context) (ports.ProcessedStore, error) {
	st := a.cfg.Storage
	switch {
	case st.Postgres.DSN != "":
		db, err := storage.OpenPostgres(ctx, st.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		store := storage.NewPostgresStore(db, st.Postgres.Table)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case st.Redis.Addr != "":
		client := goredis.NewClient(&goredis.Options{Addr: st.Redis.Addr, Password: st.Redis.Password, DB: st.Redis.DB})
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return storage.NewRedisStore(client, st.Redis.Key, st.Redis.TTL), nil
	default:
		return nil, nil
	}
}

// SelectAnalyzer resolves the configured provider. The local VADER analyzer is the
// fallback and the answer for unusable remote providers; "off" disables sentiment.
func SelectAnalyzer(cfg config.SentimentConfig, logger *slog.Logger) (analyzer, fallback ports.SentimentAnalyzer) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	vader := sentiment.NewVADER()

	provider := cfg.Provider
	if provider == "" || provider == "auto" {
		switch {
		case cfg.ChatGPT.APIKey != "":
			provider = "chatgpt"
		case cfg.ML.InferenceURL != "":
			provider = "ml"
		default:
			provider = "vader"
		}
	}

	var (
		remote ports.SentimentAnalyzer
		err    error
	)
	switch provider {
	case "off":
		return nil, nil
	case "vader":
		return vader, vader
	case "chatgpt":
		remote, err = llm.NewChatGPTAnalyzer(cfg.ChatGPT)
	case "ml":
		remote, err = ml.NewClient(cfg.ML)
	default:
		err = &domain.ConfigurationError{Field: "sentiment.provider", Reason: fmt.Sprintf("unknown provider %q", provider)}
	}
	if err != nil {
		logger.Warn("sentiment provider unavailable, using vader", "provider", provider, "error", err)
		return vader, vader
	}
	return remote, vader
}

// Run blocks until ctx is canceled or the discovery session halts. A halted session's
// error is returned so the caller can exit non-zero.
func (a *Application) Run(ctx context.Context) error {
	defer a.close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.logger.Info("starting timelinewatch", a.cfg.Describe()...)

	g, gctx := errgroup.WithContext(ctx)
	ingest := func(ctx context.Context, post domain.Post) { a.aggregator.Ingest(ctx, post) }

	g.Go(func() error { return a.local.Run(gctx, ingest) })
	if a.natsConn != nil {
		sub, err := transport.SubscribeNATS(a.natsConn, a.cfg.Transport.NATSSubject, a.logger, ingest)
		if err != nil {
			return fmt.Errorf("subscribe nats: %w", err)
		}
		defer func() { _ = sub.Unsubscribe() }()
	}

	for _, s := range a.schedulers {
		if err := s.Start(gctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}
	defer a.stopSchedulers()

	if a.router != nil {
		g.Go(func() error { return httpapi.Serve(gctx, a.cfg.HTTP.Addr, a.router, a.logger) })
	}

	if err := a.session.Start(gctx); err != nil {
		return fmt.Errorf("start discovery session: %w", err)
	}
	g.Go(func() error {
		<-a.session.Done()
		return a.session.Err()
	})

	err := g.Wait()
	a.session.Stop()
	return err
}

func (a *Application) stopSchedulers() {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	for _, s := range a.schedulers {
		if err := s.Stop(ctx); err != nil {
			a.logger.Warn("scheduler did not stop cleanly", "error", err)
		}
	}
}

func (a *Application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close resource", "error", err)
		}
	}
	a.closers = nil
}

// ScanFile extracts posts from one HTML snapshot with the named profile and writes them
// as JSON lines. Duplicates inside the file are emitted once.
func ScanFile(ctx context.Context, profileName, path string, w io.Writer, logger *slog.Logger) (usecase.ScanResult, error) {
	profile, err := NewRegistry().Resolve(profileName)
	if err != nil {
		return usecase.ScanResult{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return usecase.ScanResult{}, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return usecase.ScanResult{}, fmt.Errorf("parse snapshot: %w", err)
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Profile:     profile,
		Emitter:     &jsonLinesEmitter{enc: json.NewEncoder(w)},
		Logger:      logger,
		MaxPerCheck: doc.Find(profile.CandidateSelector()).Length() + 1,
	})
	res := pipeline.Scan(ctx, doc)
	if res.Candidates == 0 {
		return res, errors.New("no candidates found in snapshot")
	}
	return res, nil
}

type jsonLinesEmitter struct {
	enc *json.Encoder
}

func (e *jsonLinesEmitter) Emit(_ context.Context, post domain.Post) error {
	return e.enc.Encode(post)
}
