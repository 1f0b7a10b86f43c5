package repository

import (
	"context"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"qcflags/internal/errs"
	"qcflags/internal/infrastructure/persistence/gormdb/model"
	"qcflags/internal/ports"
)

type AuditRepository struct {
	db *gorm.DB
}

var _ ports.AuditRepository = (*AuditRepository)(nil)

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) AppendAuditEvent(ctx context.Context, event ports.AuditEvent) (ports.AuditEvent, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.AuditEvent{}, err
	}

	row := model.AuditEvent{
		ID:        event.ID,
		Kind:      event.Kind,
		RunNumber: event.RunNumber,
		Scope:     event.Scope,
		FlagID:    event.FlagID,
		Actor:     event.Actor,
		Payload:   datatypes.JSON(event.Payload),
		CreatedAt: event.CreatedAt,
	}
	if err := db.Create(&row).Error; err != nil {
		return ports.AuditEvent{}, errs.Wrap(err, "insert audit event")
	}
	return mapAuditEvent(row), nil
}

// ListAuditEvents returns the newest events of a run first.
func (r *AuditRepository) ListAuditEvents(ctx context.Context, runNumber int64, limit int) ([]ports.AuditEvent, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	query := db.Where("run_number = ?", runNumber).Order("created_at desc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []model.AuditEvent
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query audit events")
	}

	items := make([]ports.AuditEvent, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapAuditEvent(row))
	}
	return items, nil
}

func mapAuditEvent(row model.AuditEvent) ports.AuditEvent {
	return ports.AuditEvent{
		ID:        row.ID,
		Kind:      row.Kind,
		RunNumber: row.RunNumber,
		Scope:     row.Scope,
		FlagID:    row.FlagID,
		Actor:     row.Actor,
		Payload:   []byte(row.Payload),
		CreatedAt: row.CreatedAt,
	}
}
