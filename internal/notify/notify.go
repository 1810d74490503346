// Package notify publishes best-effort events about submissions.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"
)

type Notifier interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// UserTopic is where results for one user are published.
func UserTopic(userID, event string) string {
	return "user." + token(userID) + "." + event
}

// ContestTopic is where updates for one contest are published.
func ContestTopic(contestID, event string) string {
	return "contest." + token(contestID) + "." + event
}

// token makes an id safe to use as a single subject token.
func token(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, id)
}

type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }

// NatsNotifier publishes JSON payloads on NATS subjects prefixed with prefix.
type NatsNotifier struct {
	nc     *nats.Conn
	prefix string
	logger *slog.Logger
}

func NewNats(nc *nats.Conn, prefix string, logger *slog.Logger) *NatsNotifier {
	return &NatsNotifier{nc: nc, prefix: prefix, logger: logger}
}

func (n *NatsNotifier) Publish(_ context.Context, topic string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", topic, err)
	}
	subject := topic
	if n.prefix != "" {
		subject = n.prefix + "." + topic
	}
	if err := n.nc.Publish(subject, b); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	n.logger.Debug("published notification", "subject", subject, "bytes", len(b))
	return nil
}
