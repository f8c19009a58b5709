package transport

import (
	"context"
	"errors"
	"log/slog"

	"TimelineWatch/internal/domain"
	"TimelineWatch/internal/ports"
)

// ErrBufferFull is returned when the in-process buffer cannot take another post.
var ErrBufferFull = errors.New("local channel buffer full")

// LocalChannel is an in-process buffered channel consumed by Run.
type LocalChannel struct {
	queue  chan []byte
	logger *slog.Logger
}

var _ ports.Channel = (*LocalChannel)(nil)

// NewLocalChannel creates a channel holding up to buffer undelivered posts.
func NewLocalChannel(buffer int, logger *slog.Logger) *LocalChannel {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LocalChannel{queue: make(chan []byte, buffer), logger: logger.With("channel", "local")}
}

func (l *LocalChannel) Name() string { return "local" }

// Send enqueues payload without blocking.
func (l *LocalChannel) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case l.queue <- payload:
		return nil
	default:
		return ErrBufferFull
	}
}

// Run hands every queued post to handler until ctx is done. Malformed payloads are dropped.
func (l *LocalChannel) Run(ctx context.Context, handler func(context.Context, domain.Post)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case payload := <-l.queue:
			post, err := Decode(payload)
			if err != nil {
				l.logger.Warn("dropping malformed payload", "error", err)
				continue
			}
			handler(ctx, post)
		}
	}
}
