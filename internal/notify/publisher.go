// Package notify publishes build lifecycle events to NATS so downstream
// consumers (artifact movers, notification bots) can react without polling
// the status API. Publishing is optional; a nil publisher is a no-op.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/osforge/internal/config"
	"git.home.luguber.info/inful/osforge/internal/logfields"
	"git.home.luguber.info/inful/osforge/internal/store"
)

// BuildEvent is the wire format published for each lifecycle transition.
type BuildEvent struct {
	Event     string    `json:"event"`
	BuildID   string    `json:"buildId"`
	Status    string    `json:"status,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	EventAccepted  = "build.accepted"
	EventFinalized = "build.finalized"
)

// Publisher emits build lifecycle events on a configured subject.
type Publisher struct {
	conn    *nats.Conn
	subject string
}

// NewPublisher connects to the configured NATS server. Returns an error when
// messaging is disabled or the connection fails; callers treat a nil
// publisher as "messaging off".
func NewPublisher(cfg *config.MessagingConfig) (*Publisher, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, fmt.Errorf("messaging is disabled")
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("osforge"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	slog.Info("NATS publisher initialized", "url", cfg.URL, "subject", cfg.Subject)

	return &Publisher{conn: conn, subject: cfg.Subject}, nil
}

// BuildAccepted publishes a validated submission.
func (p *Publisher) BuildAccepted(ctx context.Context, buildID string) {
	p.publish(ctx, BuildEvent{Event: EventAccepted, BuildID: buildID})
}

// BuildFinalized publishes a terminal status transition. Satisfies the
// pipeline executor's notifier contract.
func (p *Publisher) BuildFinalized(ctx context.Context, buildID string, status store.Status) {
	p.publish(ctx, BuildEvent{Event: EventFinalized, BuildID: buildID, Status: string(status)})
}

// publish is fire-and-forget: a broker outage must never affect a build.
func (p *Publisher) publish(_ context.Context, event BuildEvent) {
	if p == nil || p.conn == nil {
		return
	}
	event.Timestamp = time.Now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		slog.Warn("Failed to marshal build event", logfields.Error(err))
		return
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		slog.Warn("Failed to publish build event",
			logfields.BuildID(event.BuildID),
			slog.String("event", event.Event),
			logfields.Error(err))
		return
	}

	slog.Debug("Published build event",
		logfields.BuildID(event.BuildID),
		slog.String("event", event.Event))
}

// Close flushes and closes the connection.
func (p *Publisher) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	if err := p.conn.Flush(); err != nil {
		slog.Warn("Failed to flush NATS connection", logfields.Error(err))
	}
	p.conn.Close()
	return nil
}
