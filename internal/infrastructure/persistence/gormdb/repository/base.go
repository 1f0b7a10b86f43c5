package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"qcflags/internal/domain/qcflag"
	"qcflags/internal/errs"
	"qcflags/internal/ports"
)

// dbFromContext joins the unit-of-work transaction carried by ctx, if any.
func dbFromContext(ctx context.Context, db *gorm.DB) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	tx := ports.TxFromContext(ctx)
	if tx == nil {
		return db.WithContext(ctx), nil
	}

	gormTx, ok := tx.(*gorm.DB)
	if !ok || gormTx == nil {
		return nil, fmt.Errorf("invalid tx in context: %T", tx)
	}
	return gormTx.WithContext(ctx), nil
}

// takeErr maps gorm's not-found error to the port sentinel.
func takeErr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ports.ErrRecordNotFound
	}
	return errs.Wrap(err, msg)
}

// wherePassScope restricts a query on qc flags (aliased by table) to one pass scope.
func wherePassScope(query *gorm.DB, table string, scope qcflag.ScopeKey) *gorm.DB {
	switch {
	case scope.DataPassID != nil:
		return query.Where(table+".data_pass_id = ?", *scope.DataPassID)
	case scope.SimulationPassID != nil:
		return query.Where(table+".simulation_pass_id = ?", *scope.SimulationPassID)
	default:
		return query.Where(table + ".data_pass_id IS NULL AND " + table + ".simulation_pass_id IS NULL")
	}
}
