package qcflag

import (
	"context"
	"encoding/json"
	"log/slog"

	"qcflags/internal/bootstrap/logging"
	"qcflags/internal/errs"
	"qcflags/internal/ports"
)

const (
	EventFlagCreated        = "flag.created"
	EventFlagDiscarded      = "flag.discarded"
	EventFlagVerified       = "flag.verified"
	EventRunBoundaries      = "run.boundaries_updated"
	EventGaqDetectorsSet    = "gaq.detectors_set"
	EventFlagTypeCreated    = "flag_type.created"
	EventFlagTypeArchived   = "flag_type.archived"
	EventFlagTypeUpdated    = "flag_type.updated"
	EventCatalogImported    = "catalog.imported"
	defaultAuditEventsLimit = 50
)

// auditTrail collects the events of one transaction for publishing after commit.
type auditTrail struct {
	events []ports.AuditEvent
}

func (s *Service) appendAuditTx(txCtx context.Context, trail *auditTrail, event ports.AuditEvent, payload any) error {
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return errs.Wrap(err, "marshal audit payload")
		}
		event.Payload = raw
	}
	if event.CreatedAt == 0 {
		event.CreatedAt = s.nowMillis()
	}

	stored, err := s.audit.AppendAuditEvent(txCtx, event)
	if err != nil {
		return err
	}
	trail.events = append(trail.events, stored)
	return nil
}

// publishBestEffort forwards committed events; failures are logged, not returned.
func (s *Service) publishBestEffort(ctx context.Context, trail *auditTrail) {
	for _, event := range trail.events {
		if err := s.publisher.Publish(ctx, event); err != nil {
			logging.Warn(ctx, "publish audit event failed",
				slog.String("event_id", event.ID),
				slog.String("kind", event.Kind),
				slog.Any("err", errs.Loggable(err)),
			)
		}
	}
}

// ListAuditEvents returns the newest audit events of a run.
func (s *Service) ListAuditEvents(ctx context.Context, runNumber int64, limit int) ([]ports.AuditEvent, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if runNumber <= 0 {
		return nil, errs.Validation("runNumber", "must be positive")
	}
	if limit <= 0 {
		limit = defaultAuditEventsLimit
	}
	return s.audit.ListAuditEvents(ctx, runNumber, limit)
}
