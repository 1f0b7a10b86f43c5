package model

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AuditEvent struct {
	ID        string         `gorm:"column:id;type:varchar(36);primaryKey"`
	Kind      string         `gorm:"column:kind;type:text;not null;index"`
	RunNumber int64          `gorm:"column:run_number;not null;index"`
	Scope     string         `gorm:"column:scope;type:text;not null;default:''"`
	FlagID    *int64         `gorm:"column:flag_id"`
	Actor     int64          `gorm:"column:actor;not null;default:0"`
	Payload   datatypes.JSON `gorm:"column:payload"`
	CreatedAt int64          `gorm:"column:created_at;not null"`
}

func (AuditEvent) TableName() string {
	return "quality_control_flag_audit_events"
}

func (e *AuditEvent) BeforeCreate(_ *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}
