package locking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"qcflags/internal/errs"
	"qcflags/internal/ports"
)

// PostgresLocker takes transaction-scoped advisory locks. The locks are
// released by the database when the surrounding transaction ends, so the
// returned release func does nothing.
type PostgresLocker struct {
	timeout time.Duration
}

var _ ports.ScopeLocker = (*PostgresLocker)(nil)

func NewPostgresLocker(timeout time.Duration) *PostgresLocker {
	return &PostgresLocker{timeout: timeout}
}

func (l *PostgresLocker) Lock(ctx context.Context, requests ...ports.LockRequest) (func(), error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}

	ordered, err := normalizeRequests(requests)
	if err != nil {
		return nil, err
	}

	tx, ok := ports.TxFromContext(ctx).(*gorm.DB)
	if !ok || tx == nil {
		return nil, errors.New("advisory locks require a transaction")
	}
	tx = tx.WithContext(ctx)

	if l.timeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", l.timeout.Milliseconds())
		if err := tx.Exec(stmt).Error; err != nil {
			return nil, errs.Wrap(err, "set lock timeout")
		}
	}

	for _, req := range ordered {
		fn := "pg_advisory_xact_lock_shared"
		if req.Mode == ports.LockExclusive {
			fn = "pg_advisory_xact_lock"
		}
		if err := tx.Exec("SELECT "+fn+"(hashtext(?))", req.Key).Error; err != nil {
			return nil, lockError(req.Key, err)
		}
	}

	if l.timeout > 0 {
		if err := tx.Exec("SET LOCAL lock_timeout = DEFAULT").Error; err != nil {
			return nil, errs.Wrap(err, "reset lock timeout")
		}
	}

	return func() {}, nil
}

// lockError reports a lock_timeout expiry as contention so callers retry.
func lockError(key string, err error) error {
	if isLockTimeout(err) {
		return errs.Contention(key, err)
	}
	return errs.Wrapf(err, "acquire advisory lock %s", key)
}

func isLockTimeout(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.LockNotAvailable
}
