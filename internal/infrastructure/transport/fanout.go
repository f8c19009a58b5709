// Package transport delivers discovered posts across one or more one-way channels.
// Channels are redundant by design; consumers deduplicate by post id.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"TimelineWatch/internal/domain"
	"TimelineWatch/internal/metrics"
	"TimelineWatch/internal/ports"
)

// Fanout sends every post to all of its channels. Channel Send implementations must
// not block, so Emit never stalls the scan cycle.
type Fanout struct {
	channels []ports.Channel
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

var _ ports.Emitter = (*Fanout)(nil)

// NewFanout builds an emitter over channels.
func NewFanout(logger *slog.Logger, m *metrics.Metrics, channels ...ports.Channel) *Fanout {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Fanout{channels: channels, metrics: m, logger: logger.With("component", "transport")}
}

// Emit encodes post once and offers it to every channel. Failures are logged per channel
// and returned joined; they are never retried.
func (f *Fanout) Emit(ctx context.Context, post domain.Post) error {
	payload, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("encode post %s: %w", post.ID, err)
	}

	var errs []error
	for _, ch := range f.channels {
		if err := ch.Send(ctx, payload); err != nil {
			terr := &domain.TransportError{Channel: ch.Name(), PostID: post.ID, Err: err}
			f.metrics.TransportError(ch.Name())
			f.logger.Warn("delivery failed", "channel", ch.Name(), "post_id", post.ID, "error", err)
			errs = append(errs, terr)
		}
	}
	return errors.Join(errs...)
}

// Decode parses a payload produced by Emit.
func Decode(payload []byte) (domain.Post, error) {
	var post domain.Post
	if err := json.Unmarshal(payload, &post); err != nil {
		return domain.Post{}, fmt.Errorf("decode post: %w", err)
	}
	if post.ID == "" {
		return domain.Post{}, errors.New("decode post: missing id")
	}
	return post, nil
}
