package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"qcflags/internal/bootstrap/logging"
	"qcflags/internal/errs"
	"qcflags/internal/ports"
)

// NATSPublisher publishes committed audit events on <prefix>.<kind>.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

var _ ports.EventPublisher = (*NATSPublisher)(nil)

func NewNATSPublisher(ctx context.Context, url string, subjectPrefix string) (*NATSPublisher, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("nats url is required")
	}

	conn, err := nats.Connect(url, nats.Name("qcflags"))
	if err != nil {
		return nil, errs.Wrapf(err, "connect nats %s", url)
	}

	prefix := strings.Trim(strings.TrimSpace(subjectPrefix), ".")
	if prefix == "" {
		prefix = "qcflags"
	}

	logging.Info(
		logging.WithAttrs(ctx, slog.String("component", "infrastructure.messaging")),
		"nats publisher connected",
		slog.String("url", conn.ConnectedUrlRedacted()),
		slog.String("subject_prefix", prefix),
	)
	return &NATSPublisher{conn: conn, prefix: prefix}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, event ports.AuditEvent) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	data, err := json.Marshal(EventMessage(event))
	if err != nil {
		return errs.Wrap(err, "marshal audit event")
	}
	if err := p.conn.Publish(Subject(p.prefix, event.Kind), data); err != nil {
		return errs.Wrap(err, "publish audit event")
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}

// Subject builds the subject for an event kind such as "flag.created".
func Subject(prefix string, kind string) string {
	return prefix + "." + kind
}

type Message struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	RunNumber int64           `json:"runNumber"`
	Scope     string          `json:"scope,omitempty"`
	FlagID    *int64          `json:"flagId,omitempty"`
	Actor     int64           `json:"actor"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt int64           `json:"createdAt"`
}

func EventMessage(event ports.AuditEvent) Message {
	return Message{
		ID:        event.ID,
		Kind:      event.Kind,
		RunNumber: event.RunNumber,
		Scope:     event.Scope,
		FlagID:    event.FlagID,
		Actor:     event.Actor,
		Payload:   event.Payload,
		CreatedAt: event.CreatedAt,
	}
}

// NoopPublisher is used when nats.url is empty.
type NoopPublisher struct{}

var _ ports.EventPublisher = NoopPublisher{}

func (NoopPublisher) Publish(context.Context, ports.AuditEvent) error { return nil }
