package transport

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"

	"TimelineWatch/internal/domain"
	"TimelineWatch/internal/ports"
)

// DefaultSubject carries discovered posts.
const DefaultSubject = "timelinewatch.posts"

// headerCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// NATSChannel publishes posts on a subject. The client buffers outgoing messages, so
// Send does not wait for the server.
type NATSChannel struct {
	conn    *nats.Conn
	subject string
}

var _ ports.Channel = (*NATSChannel)(nil)

// NewNATSChannel publishes on subject, or DefaultSubject when empty.
func NewNATSChannel(conn *nats.Conn, subject string) *NATSChannel {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSChannel{conn: conn, subject: subject}
}

func (n *NATSChannel) Name() string { return "nats" }

// Send publishes payload with trace context from ctx injected into the headers.
func (n *NATSChannel) Send(ctx context.Context, payload []byte) error {
	msg := &nats.Msg{Subject: n.subject, Data: payload}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	return n.conn.PublishMsg(msg)
}

// SubscribeNATS delivers posts published on subject to handler. Trace context is
// extracted from the headers; malformed messages are dropped.
func SubscribeNATS(conn *nats.Conn, subject string, logger *slog.Logger, handler func(context.Context, domain.Post)) (*nats.Subscription, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return conn.Subscribe(subject, func(msg *nats.Msg) {
		post, err := Decode(msg.Data)
		if err != nil {
			logger.Warn("dropping malformed nats message", "subject", msg.Subject, "error", err)
			return
		}
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*headerCarrier)(msg))
		handler(ctx, post)
	})
}
