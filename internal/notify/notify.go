// Package notify publishes build lifecycle events to NATS so the deployment
// subsystem can pick up new artifacts without polling.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/projectbuilder/internal/eventstore"
	ferrors "git.home.luguber.info/inful/projectbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/projectbuilder/internal/logfields"
)

// DefaultSubject is the subject prefix when none is configured.
const DefaultSubject = "projectbuilder.builds"

// publisher is the part of *nats.Conn the notifier needs.
type publisher interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
}

// Message is the JSON envelope published for every event.
type Message struct {
	Type      string            `json:"type"`
	BuildID   string            `json:"build_id"`
	ProjectID string            `json:"project_id"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Payload   json.RawMessage   `json:"payload"`
}

// Notifier publishes events on "<subject>.<EventType>".
type Notifier struct {
	pub     publisher
	subject string
	close   func()
}

// Connect dials the NATS server at url. The connection reconnects forever so a
// restarted broker does not require restarting the daemon.
func Connect(url, subject string) (*Notifier, error) {
	conn, err := nats.Connect(url,
		nats.Name("projectbuilder"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", logfields.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("NATS reconnected", logfields.URL(c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, ferrors.NetworkError("failed to connect to NATS").
			WithCause(err).
			WithContext("url", url).
			Build()
	}
	slog.Info("NATS notifier connected", logfields.URL(url), slog.String("subject", subject))
	return newNotifier(conn, subject, conn.Close), nil
}

func newNotifier(pub publisher, subject string, closeFn func()) *Notifier {
	subject = strings.TrimSuffix(strings.TrimSpace(subject), ".")
	if subject == "" {
		subject = DefaultSubject
	}
	if closeFn == nil {
		closeFn = func() {}
	}
	return &Notifier{pub: pub, subject: subject, close: closeFn}
}

// Subject returns the subject an event type is published on.
func (n *Notifier) Subject(eventType string) string {
	return n.subject + "." + eventType
}

// Record publishes ev. Delivery is at-most-once; a lost notification never
// affects the build that produced it.
func (n *Notifier) Record(ctx context.Context, ev eventstore.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload := ev.Payload()
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	data, err := json.Marshal(Message{
		Type:      ev.Type(),
		BuildID:   ev.BuildID(),
		ProjectID: ev.ProjectID(),
		Timestamp: ev.Timestamp().UTC(),
		Metadata:  ev.Metadata(),
		Payload:   payload,
	})
	if err != nil {
		return ferrors.InternalError("failed to marshal notification").WithCause(err).Build()
	}
	subject := n.Subject(ev.Type())
	if err := n.pub.Publish(subject, data); err != nil {
		return ferrors.NetworkError("failed to publish notification").
			WithCause(err).
			WithContext("subject", subject).
			Build()
	}
	slog.Debug("Published build event", logfields.Event(ev.Type()), slog.String("build_id", ev.BuildID()))
	return nil
}

// Close flushes pending messages and closes the connection.
func (n *Notifier) Close() error {
	defer n.close()
	if err := n.pub.FlushTimeout(2 * time.Second); err != nil {
		return ferrors.NetworkError("failed to flush NATS connection").WithCause(err).Build()
	}
	return nil
}
