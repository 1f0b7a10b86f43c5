package locking

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"qcflags/internal/errs"
	"qcflags/internal/ports"
)

// exclusiveWeight is the semaphore capacity of one key. A shared holder takes
// one unit, an exclusive holder takes all of them.
const exclusiveWeight int64 = 1 << 30

type keyedSemaphore struct {
	sem  *semaphore.Weighted
	refs int
}

// LocalLocker is an in-process reader/writer locker keyed by string.
// It serves single-process deployments such as the SQLite one.
type LocalLocker struct {
	timeout time.Duration

	mu   sync.Mutex
	keys map[string]*keyedSemaphore
}

var _ ports.ScopeLocker = (*LocalLocker)(nil)

func NewLocalLocker(timeout time.Duration) *LocalLocker {
	return &LocalLocker{
		timeout: timeout,
		keys:    make(map[string]*keyedSemaphore),
	}
}

type heldLock struct {
	key    string
	weight int64
}

func (l *LocalLocker) Lock(ctx context.Context, requests ...ports.LockRequest) (func(), error) {
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

	waitCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	held := make([]heldLock, 0, len(ordered))
	for _, req := range ordered {
		weight := int64(1)
		if req.Mode == ports.LockExclusive {
			weight = exclusiveWeight
		}

		entry := l.acquireEntry(req.Key)
		if err := entry.sem.Acquire(waitCtx, weight); err != nil {
			l.releaseEntry(req.Key)
			l.releaseAll(held)
			if parentErr := ctx.Err(); parentErr != nil {
				return nil, errs.Wrap(parentErr, "wait for lock")
			}
			return nil, errs.Contention(req.Key, err)
		}
		held = append(held, heldLock{key: req.Key, weight: weight})
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.releaseAll(held) })
	}, nil
}

func (l *LocalLocker) acquireEntry(key string) *keyedSemaphore {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.keys[key]
	if !ok {
		entry = &keyedSemaphore{sem: semaphore.NewWeighted(exclusiveWeight)}
		l.keys[key] = entry
	}
	entry.refs++
	return entry
}

func (l *LocalLocker) releaseEntry(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.keys[key]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(l.keys, key)
	}
}

func (l *LocalLocker) releaseAll(held []heldLock) {
	for i := len(held) - 1; i >= 0; i-- {
		l.mu.Lock()
		entry := l.keys[held[i].key]
		l.mu.Unlock()
		if entry != nil {
			entry.sem.Release(held[i].weight)
		}
		l.releaseEntry(held[i].key)
	}
}

// normalizeRequests sorts requests by key so that every caller acquires in the
// same order. Duplicate keys collapse to the strongest mode.
func normalizeRequests(requests []ports.LockRequest) ([]ports.LockRequest, error) {
	if len(requests) == 0 {
		return nil, errors.New("at least one lock request is required")
	}

	byKey := make(map[string]ports.LockMode, len(requests))
	for _, req := range requests {
		if req.Key == "" {
			return nil, errors.New("lock key is required")
		}
		if mode, ok := byKey[req.Key]; !ok || req.Mode > mode {
			byKey[req.Key] = req.Mode
		}
	}

	ordered := make([]ports.LockRequest, 0, len(byKey))
	for key, mode := range byKey {
		ordered = append(ordered, ports.LockRequest{Key: key, Mode: mode})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Key < ordered[j].Key })
	return ordered, nil
}
