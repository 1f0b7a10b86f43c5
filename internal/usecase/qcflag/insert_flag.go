package qcflag

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"qcflags/internal/bootstrap/logging"
	domainqcflag "qcflags/internal/domain/qcflag"
	"qcflags/internal/errs"
	"qcflags/internal/ports"
)

type InsertFlagInput struct {
	RunNumber        int64
	DetectorID       int64
	DataPassID       *int64
	SimulationPassID *int64
	FlagTypeID       int64
	From             *int64
	To               *int64
	Comment          string
	Origin           string
	CreatedByID      int64
}

func (in InsertFlagInput) Scope() domainqcflag.ScopeKey {
	return domainqcflag.ScopeKey{
		RunNumber:        in.RunNumber,
		DetectorID:       in.DetectorID,
		DataPassID:       in.DataPassID,
		SimulationPassID: in.SimulationPassID,
	}
}

type InsertFlagResult struct {
	Flag    ports.Flag                   `json:"flag"`
	Period  domainqcflag.EffectivePeriod `json:"effectivePeriod"`
	Changes []domainqcflag.PeriodChange  `json:"changes"`
}

// InsertFlag creates a flag and gives it exclusive ownership of its range in
// its scope, trimming, splitting or removing the periods of older flags.
func (s *Service) InsertFlag(ctx context.Context, input InsertFlagInput) (result InsertFlagResult, err error) {
	if err := checkContext(ctx); err != nil {
		return InsertFlagResult{}, err
	}

	scope := input.Scope()
	ctx = logging.WithAttrs(withComponent(ctx, "insert_flag"),
		slog.Int64("run_number", scope.RunNumber),
		slog.Int64("detector_id", scope.DetectorID),
		slog.String("scope", scope.String()),
	)
	started := s.now()
	defer func() { s.observe(ctx, "insert_flag", started, err) }()

	if err := scope.Validate(); err != nil {
		return InsertFlagResult{}, err
	}
	if input.FlagTypeID <= 0 {
		return InsertFlagResult{}, errs.Validation("flagTypeId", "must be positive")
	}
	if input.CreatedByID <= 0 {
		return InsertFlagResult{}, errs.Validation("createdById", "must be positive")
	}
	requested := domainqcflag.Period{From: input.From, To: input.To}
	if err := requested.Validate(); err != nil {
		return InsertFlagResult{}, err
	}

	origin := strings.TrimSpace(input.Origin)
	if origin == "" {
		origin = "human"
	}

	var trail *auditTrail
	err = s.withRetry(ctx, "insert_flag", func() error {
		trail = &auditTrail{}
		return s.lockedTx(ctx, scopeLocks(scope), func(txCtx context.Context) error {
			flagType, err := s.flagTypes.GetFlagType(txCtx, input.FlagTypeID)
			if err != nil {
				if errors.Is(err, ports.ErrRecordNotFound) {
					return errs.Validationf("flagTypeId", "unknown flag type %d", input.FlagTypeID)
				}
				return err
			}
			if flagType.Archived() {
				return errs.Validationf("flagTypeId", "flag type %s is archived", flagType.Name)
			}

			run, err := s.resolveScope(txCtx, scope)
			if err != nil {
				return err
			}

			nominal, err := domainqcflag.NormalizeFlagPeriod(run.Window(), requested)
			if err != nil {
				return err
			}

			existing, err := s.flags.ListScopePeriods(txCtx, scope)
			if err != nil {
				return err
			}
			if err := domainqcflag.CheckDisjoint(scope.String(), existing); err != nil {
				return err
			}

			flag, err := s.flags.CreateFlag(txCtx, ports.Flag{
				FlagTypeID:  flagType.ID,
				Scope:       scope,
				Period:      nominal,
				Comment:     strings.TrimSpace(input.Comment),
				Origin:      origin,
				CreatedByID: input.CreatedByID,
				CreatedAt:   s.nowMillis(),
			})
			if err != nil {
				return err
			}

			plan, err := domainqcflag.PlanInsertion(scope.String(), existing, flag.ID, nominal)
			if err != nil {
				return err
			}
			created, err := s.applyInsertionTx(txCtx, plan)
			if err != nil {
				return err
			}

			result = InsertFlagResult{Flag: flag, Period: created, Changes: plan.Changes}
			flagID := flag.ID
			return s.appendAuditTx(txCtx, trail, ports.AuditEvent{
				Kind:      EventFlagCreated,
				RunNumber: scope.RunNumber,
				Scope:     scope.String(),
				FlagID:    &flagID,
				Actor:     input.CreatedByID,
			}, result)
		})
	})
	if err != nil {
		return InsertFlagResult{}, err
	}

	s.invalidateRunBestEffort(ctx, scope.RunNumber)
	s.publishBestEffort(ctx, trail)
	logging.Info(ctx, "qc flag inserted",
		slog.Int64("flag_id", result.Flag.ID),
		slog.String("period", result.Period.String()),
		slog.Int("affected_periods", len(result.Changes)),
	)
	return result, nil
}

// applyInsertionTx writes a plan and returns the new flag's stored period.
func (s *Service) applyInsertionTx(txCtx context.Context, plan domainqcflag.InsertionPlan) (domainqcflag.EffectivePeriod, error) {
	removed := make([]int64, 0, len(plan.Removed))
	for _, item := range plan.Removed {
		removed = append(removed, item.ID)
	}
	if err := s.flags.DeletePeriods(txCtx, removed); err != nil {
		return domainqcflag.EffectivePeriod{}, err
	}
	if err := s.flags.UpdatePeriods(txCtx, plan.Updated); err != nil {
		return domainqcflag.EffectivePeriod{}, err
	}

	toCreate := append(append([]domainqcflag.EffectivePeriod(nil), plan.Added...), plan.Created)
	stored, err := s.flags.CreatePeriods(txCtx, toCreate)
	if err != nil {
		return domainqcflag.EffectivePeriod{}, err
	}
	if len(stored) != len(toCreate) {
		return domainqcflag.EffectivePeriod{}, errs.Wrapf(errors.New("unexpected row count"), "create %d effective periods", len(toCreate))
	}
	return stored[len(stored)-1], nil
}
