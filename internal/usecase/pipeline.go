package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"TimelineWatch/internal/dedup"
	"TimelineWatch/internal/domain"
	"TimelineWatch/internal/identity"
	"TimelineWatch/internal/metrics"
	"TimelineWatch/internal/ports"
	"TimelineWatch/internal/scanner"
)

const (
	defaultMaxPerCheck    = 50
	defaultFingerprintLen = 20
)

// PipelineDeps wires the extraction profile, dedup cache and emitter into one scan pass.
type PipelineDeps struct {
	Profile        scanner.Profile
	Cache          *dedup.Cache
	Emitter        ports.Emitter
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	MaxPerCheck    int
	FingerprintLen int
	Clock          func() time.Time
}

// Pipeline runs one discovery pass over a document snapshot. It is not safe for
// concurrent use: callers serialize Scan and Reset.
type Pipeline struct {
	profile        scanner.Profile
	cache          *dedup.Cache
	emitter        ports.Emitter
	metrics        *metrics.Metrics
	logger         *slog.Logger
	maxPerCheck    int
	fingerprintLen int
	now            func() time.Time
}

// NewPipeline constructs the scan pass.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		profile:        deps.Profile,
		cache:          deps.Cache,
		emitter:        deps.Emitter,
		metrics:        deps.Metrics,
		logger:         deps.Logger,
		maxPerCheck:    deps.MaxPerCheck,
		fingerprintLen: deps.FingerprintLen,
		now:            deps.Clock,
	}
	if p.cache == nil {
		p.cache = dedup.New(dedup.DefaultOptions())
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	if p.maxPerCheck <= 0 {
		p.maxPerCheck = defaultMaxPerCheck
	}
	if p.fingerprintLen <= 0 {
		p.fingerprintLen = defaultFingerprintLen
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// ScanResult summarizes one pass.
type ScanResult struct {
	Candidates       int
	Emitted          []domain.Post
	NoText           int
	DuplicateIDs     int
	DuplicateContent int
	Failures         int
}

// Scan inspects up to maxPerCheck candidates and emits the ones not seen before.
// A failing candidate is logged and skipped; it never aborts the pass.
func (p *Pipeline) Scan(ctx context.Context, doc *goquery.Document) ScanResult {
	var res ScanResult
	if doc == nil || p.profile == nil {
		return res
	}

	now := p.now()
	nodes := doc.Find(p.profile.CandidateSelector())
	nodes.EachWithBreak(func(i int, node *goquery.Selection) bool {
		if i >= p.maxPerCheck || ctx.Err() != nil {
			return false
		}
		res.Candidates++

		fields, err := p.extract(i, node, now)
		switch {
		case errors.Is(err, domain.ErrNoText):
			res.NoText++
			return true
		case err != nil:
			res.Failures++
			p.metrics.ExtractionError()
			p.logger.Warn("candidate extraction failed", "index", i, "error", err)
			return true
		}

		id, durable := identity.Assign(fields, now)
		if !durable {
			p.logger.Debug("no durable id for candidate", "id", id, "index", i)
		}
		if p.cache.Seen(id) {
			res.DuplicateIDs++
			p.metrics.Duplicate("id")
			return true
		}
		fingerprint := p.fingerprint(fields, id)
		if p.cache.SeenContent(fingerprint) {
			owner, _ := p.cache.ContentOwner(fingerprint)
			p.cache.Remember(id)
			res.DuplicateContent++
			p.metrics.Duplicate("content")
			p.logger.Debug("near-duplicate content", "id", id, "first_seen_as", owner)
			return true
		}

		post := fields.Post(id)
		p.cache.Remember(id)
		p.cache.RememberContent(fingerprint, id)
		res.Emitted = append(res.Emitted, post)

		if p.emitter != nil {
			if err := p.emitter.Emit(ctx, post); err != nil {
				p.logger.Warn("emit failed", "post_id", post.ID, "error", err)
			}
		}
		return true
	})

	p.metrics.ScanCycle(res.Candidates, len(res.Emitted))
	return res
}

// fingerprint is empty for short texts carrying a durable id, so that distinct posts
// such as two "gm" replies are never collapsed. Fallback ids always get one.
func (p *Pipeline) fingerprint(fields domain.Fields, id string) string {
	if identity.IsDurable(id) && utf8.RuneCountInString(strings.TrimSpace(fields.Text)) < p.fingerprintLen {
		return ""
	}
	return identity.Fingerprint(fields.Text, fields.Author, p.fingerprintLen)
}

// Reset forgets every remembered id and fingerprint so visible posts surface again.
func (p *Pipeline) Reset() (ids, fingerprints int) {
	ids, fingerprints = p.cache.Len()
	p.cache.Clear()
	return ids, fingerprints
}

func (p *Pipeline) extract(index int, node *goquery.Selection, now time.Time) (fields domain.Fields, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &domain.ExtractionError{Index: index, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	fields, err = p.profile.Extract(node, now)
	if err != nil && !errors.Is(err, domain.ErrNoText) {
		return fields, &domain.ExtractionError{Index: index, Err: err}
	}
	return fields, err
}
