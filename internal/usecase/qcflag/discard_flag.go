package qcflag

import (
	"context"
	"log/slog"
	"strings"

	"qcflags/internal/bootstrap/logging"
	"qcflags/internal/errs"
	"qcflags/internal/ports"
)

type DiscardFlagInput struct {
	FlagID  int64
	ActorID int64
	Comment string
}

// DiscardFlag soft-deletes a flag and drops its effective periods. Coverage the
// flag took from older flags is not given back; it becomes undefined.
func (s *Service) DiscardFlag(ctx context.Context, input DiscardFlagInput) (flag ports.Flag, err error) {
	if err := checkContext(ctx); err != nil {
		return ports.Flag{}, err
	}

	ctx = logging.WithAttrs(withComponent(ctx, "discard_flag"), slog.Int64("flag_id", input.FlagID))
	started := s.now()
	defer func() { s.observe(ctx, "discard_flag", started, err) }()

	if input.FlagID <= 0 {
		return ports.Flag{}, errs.Validation("flagId", "must be positive")
	}
	if input.ActorID <= 0 {
		return ports.Flag{}, errs.Validation("actorId", "must be positive")
	}

	// The scope of a flag never changes, so it can be read before locking.
	current, err := s.flags.GetFlag(ctx, input.FlagID)
	if err != nil {
		return ports.Flag{}, notFound(err, "flag", input.FlagID)
	}
	scope := current.Scope
	ctx = logging.WithAttrs(ctx, slog.String("scope", scope.String()))

	var trail *auditTrail
	var removedPeriods int
	err = s.withRetry(ctx, "discard_flag", func() error {
		trail = &auditTrail{}
		return s.lockedTx(ctx, scopeLocks(scope), func(txCtx context.Context) error {
			locked, err := s.flags.GetFlag(txCtx, input.FlagID)
			if err != nil {
				return notFound(err, "flag", input.FlagID)
			}
			if locked.Deleted {
				return errs.Validationf("flagId", "flag %d is already discarded", input.FlagID)
			}

			verified, err := s.flags.VerifiedFlagIDs(txCtx, []int64{locked.ID})
			if err != nil {
				return err
			}
			if verified[locked.ID] {
				return errs.Conflict("a verified flag cannot be discarded")
			}

			periods, err := s.flags.ListFlagPeriods(txCtx, locked.ID)
			if err != nil {
				return err
			}
			ids := make([]int64, 0, len(periods))
			for _, item := range periods {
				ids = append(ids, item.ID)
			}
			if err := s.flags.DeletePeriods(txCtx, ids); err != nil {
				return err
			}
			if err := s.flags.MarkFlagsDeleted(txCtx, []int64{locked.ID}); err != nil {
				return err
			}

			locked.Deleted = true
			flag = locked
			removedPeriods = len(periods)

			flagID := locked.ID
			return s.appendAuditTx(txCtx, trail, ports.AuditEvent{
				Kind:      EventFlagDiscarded,
				RunNumber: scope.RunNumber,
				Scope:     scope.String(),
				FlagID:    &flagID,
				Actor:     input.ActorID,
			}, map[string]any{
				"comment":        strings.TrimSpace(input.Comment),
				"removedPeriods": periods,
			})
		})
	})
	if err != nil {
		return ports.Flag{}, err
	}

	s.invalidateRunBestEffort(ctx, scope.RunNumber)
	s.publishBestEffort(ctx, trail)
	logging.Info(ctx, "qc flag discarded", slog.Int("removed_periods", removedPeriods))
	return flag, nil
}
