package uow

import (
	"context"
	"database/sql"

	"gorm.io/gorm"

	"qcflags/internal/ports"
)

// UnitOfWork implements ports.UnitOfWork with gorm.
type UnitOfWork struct {
	db *gorm.DB
}

var _ ports.UnitOfWork = (*UnitOfWork)(nil)

func NewUnitOfWork(db *gorm.DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

// WithTx runs fn in a transaction. Nested calls join the outer transaction.
func (u *UnitOfWork) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if outer, ok := ports.TxFromContext(ctx).(*gorm.DB); ok && outer != nil {
		return fn(ctx)
	}
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ports.WithTxContext(ctx, tx))
	})
}

// WithSnapshot runs fn in a read-only transaction. Postgres runs it at
// REPEATABLE READ; sqlite holds its shared lock until the transaction ends.
// Nested calls join the outer transaction.
func (u *UnitOfWork) WithSnapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	if outer, ok := ports.TxFromContext(ctx).(*gorm.DB); ok && outer != nil {
		return fn(ctx)
	}
	opts := &sql.TxOptions{ReadOnly: true}
	if u.db.Dialector.Name() == "postgres" {
		opts.Isolation = sql.LevelRepeatableRead
	}
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ports.WithTxContext(ctx, tx))
	}, opts)
}
