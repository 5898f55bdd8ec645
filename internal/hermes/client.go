package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/MikeSquared-Agency/promptvault/internal/progress"
)

// Subjects published by the importer.
const (
	SubjectProgressPrefix = "promptvault.import.progress."
	SubjectImportFinished = "promptvault.import.finished"
)

// ProgressSubject returns the subject progress snapshots for session id are
// mirrored to.
func ProgressSubject(id string) string {
	return SubjectProgressPrefix + id
}

// ImportFinished is emitted once per session when it reaches a terminal status.
type ImportFinished struct {
	SessionID string   `json:"session_id"`
	UserID    string   `json:"user_id"`
	Platform  string   `json:"platform"`
	Status    string   `json:"status"`
	Imported  int      `json:"imported"`
	Skipped   int      `json:"skipped"`
	Processed int      `json:"processed"`
	Errors    []string `json:"errors,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

type Client struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("promptvault"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	return &Client{conn: nc, js: js, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

// KeyValue opens the named JetStream KV bucket, creating it with the given
// per-key TTL when missing.
func (c *Client) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := c.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "promptvault shared cache",
		TTL:         ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("open kv bucket %s: %w", bucket, err)
	}
	return kv, nil
}

// PublishProgress mirrors a session snapshot to its progress subject. It
// satisfies progress.Sink; the core publish only buffers, so it never blocks
// the tracker.
func (c *Client) PublishProgress(s progress.Session) error {
	return c.Publish(ProgressSubject(s.ID), s)
}

// PublishImportFinished announces a finished session.
func (c *Client) PublishImportFinished(ev ImportFinished) error {
	return c.Publish(SubjectImportFinished, ev)
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}
