package qcflag

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"qcflags/internal/bootstrap/logging"
	domainqcflag "qcflags/internal/domain/qcflag"
	"qcflags/internal/errs"
	"qcflags/internal/infrastructure/metrics"
	"qcflags/internal/ports"
)

// Dependencies are the ports the QC flag service is built on. All are required.
type Dependencies struct {
	Catalog      ports.CatalogRepository
	FlagTypes    ports.FlagTypeRepository
	Flags        ports.FlagRepository
	GaqDetectors ports.GaqDetectorRepository
	Audit        ports.AuditRepository
	UnitOfWork   ports.UnitOfWork
	Locker       ports.ScopeLocker
	Cache        ports.Cache
	Publisher    ports.EventPublisher
}

type RetryOptions struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

type Options struct {
	Retry                  RetryOptions
	CacheTTL               time.Duration
	GaqPresets             domainqcflag.GaqPresets
	MCReproducibleAsNotBad bool
	// SummaryConcurrency bounds the runs summarized in parallel for a data pass.
	SummaryConcurrency int
}

func DefaultOptions() Options {
	return Options{
		Retry: RetryOptions{
			MaxAttempts:     3,
			InitialInterval: 50 * time.Millisecond,
			MaxInterval:     time.Second,
		},
		CacheTTL:           5 * time.Minute,
		GaqPresets:         domainqcflag.DefaultGaqPresets,
		SummaryConcurrency: 4,
	}
}

type Service struct {
	catalog   ports.CatalogRepository
	flagTypes ports.FlagTypeRepository
	flags     ports.FlagRepository
	gaq       ports.GaqDetectorRepository
	audit     ports.AuditRepository
	uow       ports.UnitOfWork
	locker    ports.ScopeLocker
	cache     ports.Cache
	publisher ports.EventPublisher
	opts      Options
	now       func() time.Time
}

// NewService wires the QC flag usecases.
func NewService(deps Dependencies, opts Options) (*Service, error) {
	switch {
	case deps.Catalog == nil:
		return nil, errors.New("catalog repository is required")
	case deps.FlagTypes == nil:
		return nil, errors.New("flag type repository is required")
	case deps.Flags == nil:
		return nil, errors.New("flag repository is required")
	case deps.GaqDetectors == nil:
		return nil, errors.New("gaq detector repository is required")
	case deps.Audit == nil:
		return nil, errors.New("audit repository is required")
	case deps.UnitOfWork == nil:
		return nil, errors.New("unit of work is required")
	case deps.Locker == nil:
		return nil, errors.New("scope locker is required")
	case deps.Cache == nil:
		return nil, errors.New("cache is required")
	case deps.Publisher == nil:
		return nil, errors.New("event publisher is required")
	}

	defaults := DefaultOptions()
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = defaults.Retry.MaxAttempts
	}
	if opts.Retry.InitialInterval <= 0 {
		opts.Retry.InitialInterval = defaults.Retry.InitialInterval
	}
	if opts.Retry.MaxInterval <= 0 {
		opts.Retry.MaxInterval = defaults.Retry.MaxInterval
	}
	if opts.GaqPresets == nil {
		opts.GaqPresets = defaults.GaqPresets
	}
	if opts.SummaryConcurrency <= 0 {
		opts.SummaryConcurrency = defaults.SummaryConcurrency
	}

	return &Service{
		catalog:   deps.Catalog,
		flagTypes: deps.FlagTypes,
		flags:     deps.Flags,
		gaq:       deps.GaqDetectors,
		audit:     deps.Audit,
		uow:       deps.UnitOfWork,
		locker:    deps.Locker,
		cache:     deps.Cache,
		publisher: deps.Publisher,
		opts:      opts,
		now:       time.Now,
	}, nil
}

func checkContext(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}
	return nil
}

func (s *Service) nowMillis() int64 {
	return s.now().UnixMilli()
}

func withComponent(ctx context.Context, operation string) context.Context {
	return logging.WithAttrs(ctx,
		slog.String("component", "usecase.qcflag"),
		slog.String("operation", operation),
	)
}

// lockedTx runs fn in one transaction holding the requested scope locks.
// Locks are taken first inside the transaction and released once it has ended.
func (s *Service) lockedTx(ctx context.Context, requests []ports.LockRequest, fn func(txCtx context.Context) error) error {
	var release func()
	err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		unlock, err := s.locker.Lock(txCtx, requests...)
		if err != nil {
			return err
		}
		release = unlock
		return fn(txCtx)
	})
	if release != nil {
		release()
	}
	return err
}

// withRetry retries fn while it fails with a ContentionError.
func (s *Service) withRetry(ctx context.Context, operation string, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.opts.Retry.InitialInterval
	policy.MaxInterval = s.opts.Retry.MaxInterval

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := fn()
		if err == nil {
			return struct{}{}, nil
		}
		if !errs.IsContention(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		metrics.LockContentionTotal.WithLabelValues(operation).Inc()
		logging.Warn(ctx, "scope lock contended",
			slog.Int("attempt", attempt),
			slog.Any("err", errs.Loggable(err)),
		)
		return struct{}{}, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(s.opts.Retry.MaxAttempts)),
	)
	return err
}

// observe records metrics for a finished operation and logs unexpected failures.
func (s *Service) observe(ctx context.Context, operation string, started time.Time, err error) {
	status := errs.Kind(err)
	metrics.Record(operation, status, s.now().Sub(started))

	switch status {
	case "ok", "validation", "not_found", "conflict", "access_denied":
	case "consistency":
		logging.Error(ctx, "qc flag state is inconsistent", slog.Any("err", errs.Loggable(err)))
	default:
		logging.Error(ctx, "qc flag operation failed",
			slog.String("status", status),
			slog.Any("err", errs.Loggable(err)),
		)
	}
}

// notFound maps a repository miss to a NotFoundError for entity.
func notFound(err error, entity string, id any) error {
	if errors.Is(err, ports.ErrRecordNotFound) {
		return errs.NotFound(entity, id)
	}
	return err
}
