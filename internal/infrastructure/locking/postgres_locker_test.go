package locking

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"qcflags/internal/errs"
	"qcflags/internal/ports"
)

func TestPostgresLockErrorMapping(t *testing.T) {
	timeout := &pgconn.PgError{Code: pgerrcode.LockNotAvailable, Message: "canceling statement due to lock timeout"}

	tests := []struct {
		name       string
		err        error
		contention bool
	}{
		{"lock timeout", timeout, true},
		{"wrapped lock timeout", fmt.Errorf("exec: %w", timeout), true},
		{"deadlock", &pgconn.PgError{Code: pgerrcode.DeadlockDetected}, false},
		{"plain error", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lockError("scope:106:1:sync", tt.err)
			if errs.IsContention(got) != tt.contention {
				t.Fatalf("lockError() = %v, contention = %v, want %v", got, errs.IsContention(got), tt.contention)
			}
			if !errors.Is(got, tt.err) {
				t.Fatalf("lockError() = %v, does not wrap %v", got, tt.err)
			}
		})
	}

	var contention *errs.ContentionError
	if !errors.As(lockError("run:106", timeout), &contention) || contention.Key != "run:106" {
		t.Fatalf("contention key = %+v, want run:106", contention)
	}
}

func TestPostgresLockerRequiresTransaction(t *testing.T) {
	locker := NewPostgresLocker(time.Second)

	if _, err := locker.Lock(context.Background(), ports.LockRequest{Key: "run:1", Mode: ports.LockShared}); err == nil {
		t.Fatalf("Lock() without transaction expected error")
	}
	if _, err := locker.Lock(context.Background()); err == nil {
		t.Fatalf("Lock() without requests expected error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := locker.Lock(ctx, ports.LockRequest{Key: "run:1"}); err == nil {
		t.Fatalf("Lock() with canceled context expected error")
	}
}
