// Package notify publishes build events to NATS.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

// Event is the message published for a finished build.
type Event struct {
	BuildID    string    `json:"build_id"`
	Generation uint64    `json:"generation"`
	Mode       string    `json:"mode"`
	Status     string    `json:"status"`
	DurationMS int64     `json:"duration_ms"`
	Artifacts  []string  `json:"artifacts,omitempty"`
	Error      string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
}

// Publisher sends build events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NATSPublisher publishes events on a NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// Connect opens a NATS connection for cfg.
func Connect(cfg config.NotifyConfig, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	subject := cfg.Subject
	if subject == "" {
		subject = config.DefaultNotifySubject
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Name("assetbuilder"),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
	)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryNetwork, "failed to connect to NATS").
			WithContext("url", cfg.URL).Retryable().Build()
	}
	logger.Info("NATS notifications enabled", "url", cfg.URL, "subject", subject)
	return &NATSPublisher{conn: conn, subject: subject}, nil
}

// Publish sends ev and waits for the server to acknowledge the flush.
func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryNetwork, "failed to publish build event").
			WithContext("subject", p.subject).Build()
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryNetwork, "failed to flush build event").
			WithContext("subject", p.subject).Build()
	}
	return nil
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}

// Capture keeps published events in memory.
type Capture struct {
	mu     sync.Mutex
	events []Event
}

func (c *Capture) Publish(_ context.Context, ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *Capture) Close() error { return nil }

// Events returns the captured events in publish order.
func (c *Capture) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}
