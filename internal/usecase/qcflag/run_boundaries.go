package qcflag

import (
	"context"
	"log/slog"

	"qcflags/internal/bootstrap/logging"
	domainqcflag "qcflags/internal/domain/qcflag"
	"qcflags/internal/errs"
	"qcflags/internal/infrastructure/metrics"
	"qcflags/internal/ports"
)

type UpdateRunBoundariesInput struct {
	RunNumber   int64
	QcTimeStart *int64
	QcTimeEnd   *int64
	ActorID     int64
}

type UpdateRunBoundariesResult struct {
	Run       ports.Run                  `json:"run"`
	Previous  domainqcflag.Window        `json:"previous"`
	Reconcile domainqcflag.ReconcilePlan `json:"reconcile"`
}

// UpdateRunBoundaries stores a new QC window for a run and reconciles every flag
// of the run with it in the same transaction.
func (s *Service) UpdateRunBoundaries(ctx context.Context, input UpdateRunBoundariesInput) (result UpdateRunBoundariesResult, err error) {
	if err := checkContext(ctx); err != nil {
		return UpdateRunBoundariesResult{}, err
	}

	ctx = logging.WithAttrs(withComponent(ctx, "update_run_boundaries"), slog.Int64("run_number", input.RunNumber))
	started := s.now()
	defer func() { s.observe(ctx, "update_run_boundaries", started, err) }()

	if input.RunNumber <= 0 {
		return UpdateRunBoundariesResult{}, errs.Validation("runNumber", "must be positive")
	}
	next := domainqcflag.Window{Start: input.QcTimeStart, End: input.QcTimeEnd}
	if err := next.Validate(); err != nil {
		return UpdateRunBoundariesResult{}, err
	}

	locks := []ports.LockRequest{{Key: domainqcflag.RunLockKey(input.RunNumber), Mode: ports.LockExclusive}}

	var trail *auditTrail
	err = s.withRetry(ctx, "update_run_boundaries", func() error {
		trail = &auditTrail{}
		return s.lockedTx(ctx, locks, func(txCtx context.Context) error {
			run, err := s.catalog.GetRun(txCtx, input.RunNumber)
			if err != nil {
				return notFound(err, "run", input.RunNumber)
			}
			change := domainqcflag.BoundaryChange{Old: run.Window(), New: next}

			if err := s.catalog.UpdateRunWindow(txCtx, input.RunNumber, next); err != nil {
				return notFound(err, "run", input.RunNumber)
			}

			plan, err := s.reconcileRunTx(txCtx, input.RunNumber, change)
			if err != nil {
				return err
			}

			run.QcTimeStart, run.QcTimeEnd = next.Start, next.End
			result = UpdateRunBoundariesResult{Run: run, Previous: change.Old, Reconcile: plan}
			return s.appendAuditTx(txCtx, trail, ports.AuditEvent{
				Kind:      EventRunBoundaries,
				RunNumber: input.RunNumber,
				Actor:     input.ActorID,
			}, result)
		})
	})
	if err != nil {
		return UpdateRunBoundariesResult{}, err
	}

	metrics.ReconciledPeriodsTotal.WithLabelValues("reopened").Add(float64(len(result.Reconcile.UpdatedPeriods)))
	metrics.ReconciledPeriodsTotal.WithLabelValues("pruned").Add(float64(len(result.Reconcile.PrunedPeriods)))

	s.invalidateRunBestEffort(ctx, input.RunNumber)
	s.publishBestEffort(ctx, trail)
	logging.Info(ctx, "run qc boundaries updated",
		slog.String("window", windowString(next)),
		slog.Int("updated_flags", len(result.Reconcile.UpdatedFlags)),
		slog.Int("updated_periods", len(result.Reconcile.UpdatedPeriods)),
		slog.Int("pruned_periods", len(result.Reconcile.PrunedPeriods)),
		slog.Int("deleted_flags", len(result.Reconcile.DeletedFlagIDs)),
	)
	return result, nil
}

func (s *Service) reconcileRunTx(txCtx context.Context, runNumber int64, change domainqcflag.BoundaryChange) (domainqcflag.ReconcilePlan, error) {
	flags, err := s.flags.ListRunFlags(txCtx, runNumber)
	if err != nil {
		return domainqcflag.ReconcilePlan{}, err
	}
	periods, err := s.flags.ListRunPeriods(txCtx, runNumber)
	if err != nil {
		return domainqcflag.ReconcilePlan{}, err
	}

	bounds := make([]domainqcflag.FlagBounds, 0, len(flags))
	for _, flag := range flags {
		bounds = append(bounds, domainqcflag.FlagBounds{FlagID: flag.ID, Period: flag.Period})
	}

	plan := domainqcflag.PlanBoundaryReconcile(change, bounds, periods)
	if plan.Empty() {
		return plan, nil
	}

	for _, item := range plan.UpdatedFlags {
		if err := s.flags.UpdateFlagPeriod(txCtx, item.FlagID, item.Period); err != nil {
			return domainqcflag.ReconcilePlan{}, err
		}
	}
	if err := s.flags.UpdatePeriods(txCtx, plan.UpdatedPeriods); err != nil {
		return domainqcflag.ReconcilePlan{}, err
	}
	pruned := make([]int64, 0, len(plan.PrunedPeriods))
	for _, item := range plan.PrunedPeriods {
		pruned = append(pruned, item.ID)
	}
	if err := s.flags.DeletePeriods(txCtx, pruned); err != nil {
		return domainqcflag.ReconcilePlan{}, err
	}
	if err := s.flags.MarkFlagsDeleted(txCtx, plan.DeletedFlagIDs); err != nil {
		return domainqcflag.ReconcilePlan{}, err
	}
	return plan, nil
}

func windowString(w domainqcflag.Window) string {
	return domainqcflag.Period{From: w.Start, To: w.End}.String()
}
