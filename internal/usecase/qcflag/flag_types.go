package qcflag

import (
	"context"
	"log/slog"
	"strings"

	"qcflags/internal/bootstrap/logging"
	domainqcflag "qcflags/internal/domain/qcflag"
	"qcflags/internal/errs"
	"qcflags/internal/ports"
)

type CreateFlagTypeInput struct {
	Name           string
	Method         string
	Bad            bool
	Color          string
	MCReproducible bool
	ActorID        int64
}

// CreateFlagType adds a flag type. Name and method must both be unused.
func (s *Service) CreateFlagType(ctx context.Context, input CreateFlagTypeInput) (flagType ports.FlagType, err error) {
	if err := checkContext(ctx); err != nil {
		return ports.FlagType{}, err
	}

	ctx = withComponent(ctx, "create_flag_type")
	started := s.now()
	defer func() { s.observe(ctx, "create_flag_type", started, err) }()

	name := strings.TrimSpace(input.Name)
	method := strings.TrimSpace(input.Method)
	if name == "" {
		return ports.FlagType{}, errs.Validation("name", "is required")
	}
	if method == "" {
		return ports.FlagType{}, errs.Validation("method", "is required")
	}
	color := strings.TrimSpace(input.Color)
	if color == "" {
		color = domainqcflag.DefaultColor(input.Bad)
	}

	trail := &auditTrail{}
	err = s.uow.WithTx(ctx, func(txCtx context.Context) error {
		existing, found, err := s.flagTypes.FindFlagTypeConflict(txCtx, name, method, 0)
		if err != nil {
			return err
		}
		if found {
			if strings.EqualFold(existing.Name, name) {
				return errs.Conflict("a flag type named " + name + " already exists")
			}
			return errs.Conflict("a flag type with method " + method + " already exists")
		}

		flagType, err = s.flagTypes.CreateFlagType(txCtx, ports.FlagType{
			Name:           name,
			Method:         method,
			Bad:            input.Bad,
			Color:          color,
			MCReproducible: input.MCReproducible,
			CreatedAt:      s.nowMillis(),
		})
		if err != nil {
			return err
		}
		return s.appendAuditTx(txCtx, trail, ports.AuditEvent{Kind: EventFlagTypeCreated, Actor: input.ActorID}, flagType)
	})
	if err != nil {
		return ports.FlagType{}, err
	}

	s.publishBestEffort(ctx, trail)
	logging.Info(ctx, "flag type created", slog.Int64("flag_type_id", flagType.ID), slog.String("method", flagType.Method))
	return flagType, nil
}

// UpdateFlagTypeInput patches a flag type. Nil fields are left unchanged.
type UpdateFlagTypeInput struct {
	FlagTypeID int64
	Name       *string
	Method     *string
	Bad        *bool
	Color      *string
	ActorID    int64
}

// UpdateFlagType patches a flag type under the same uniqueness rules as
// CreateFlagType. Changing bad drops the cached summaries of every run using
// the type.
func (s *Service) UpdateFlagType(ctx context.Context, input UpdateFlagTypeInput) (flagType ports.FlagType, err error) {
	if err := checkContext(ctx); err != nil {
		return ports.FlagType{}, err
	}

	ctx = logging.WithAttrs(withComponent(ctx, "update_flag_type"), slog.Int64("flag_type_id", input.FlagTypeID))
	started := s.now()
	defer func() { s.observe(ctx, "update_flag_type", started, err) }()

	if input.FlagTypeID <= 0 {
		return ports.FlagType{}, errs.Validation("flagTypeId", "must be positive")
	}
	if input.Name == nil && input.Method == nil && input.Bad == nil && input.Color == nil {
		return ports.FlagType{}, errs.Validation("flagType", "nothing to update")
	}

	var (
		trail    = &auditTrail{}
		affected []int64
	)
	err = s.uow.WithTx(ctx, func(txCtx context.Context) error {
		current, err := s.flagTypes.GetFlagType(txCtx, input.FlagTypeID)
		if err != nil {
			return notFound(err, "flag type", input.FlagTypeID)
		}

		next := current
		if input.Name != nil {
			if next.Name = strings.TrimSpace(*input.Name); next.Name == "" {
				return errs.Validation("name", "must not be empty")
			}
		}
		if input.Method != nil {
			if next.Method = strings.TrimSpace(*input.Method); next.Method == "" {
				return errs.Validation("method", "must not be empty")
			}
		}
		if input.Bad != nil {
			next.Bad = *input.Bad
		}
		if input.Color != nil {
			if next.Color = strings.TrimSpace(*input.Color); next.Color == "" {
				next.Color = domainqcflag.DefaultColor(next.Bad)
			}
		}

		existing, found, err := s.flagTypes.FindFlagTypeConflict(txCtx, next.Name, next.Method, next.ID)
		if err != nil {
			return err
		}
		if found {
			if strings.EqualFold(existing.Name, next.Name) {
				return errs.Conflict("a flag type named " + next.Name + " already exists")
			}
			return errs.Conflict("a flag type with method " + next.Method + " already exists")
		}

		if err := s.flagTypes.UpdateFlagType(txCtx, next); err != nil {
			return notFound(err, "flag type", next.ID)
		}
		if next.Bad != current.Bad {
			if affected, err = s.flags.ListFlagTypeRuns(txCtx, next.ID); err != nil {
				return err
			}
		}
		flagType = next
		return s.appendAuditTx(txCtx, trail, ports.AuditEvent{Kind: EventFlagTypeUpdated, Actor: input.ActorID}, map[string]any{
			"before": current,
			"after":  next,
		})
	})
	if err != nil {
		return ports.FlagType{}, err
	}

	s.invalidateRunBestEffort(ctx, affected...)
	s.publishBestEffort(ctx, trail)
	logging.Info(ctx, "flag type updated", slog.Int("runs_invalidated", len(affected)))
	return flagType, nil
}

// ArchiveFlagType makes a flag type unassignable. Archiving twice keeps the
// first timestamp.
func (s *Service) ArchiveFlagType(ctx context.Context, flagTypeID int64, actorID int64) (flagType ports.FlagType, err error) {
	if err := checkContext(ctx); err != nil {
		return ports.FlagType{}, err
	}

	ctx = logging.WithAttrs(withComponent(ctx, "archive_flag_type"), slog.Int64("flag_type_id", flagTypeID))
	started := s.now()
	defer func() { s.observe(ctx, "archive_flag_type", started, err) }()

	trail := &auditTrail{}
	err = s.uow.WithTx(ctx, func(txCtx context.Context) error {
		current, err := s.flagTypes.GetFlagType(txCtx, flagTypeID)
		if err != nil {
			return notFound(err, "flag type", flagTypeID)
		}
		if current.Archived() {
			flagType = current
			return nil
		}

		if err := s.flagTypes.ArchiveFlagType(txCtx, flagTypeID, s.nowMillis()); err != nil {
			return notFound(err, "flag type", flagTypeID)
		}
		flagType, err = s.flagTypes.GetFlagType(txCtx, flagTypeID)
		if err != nil {
			return err
		}
		return s.appendAuditTx(txCtx, trail, ports.AuditEvent{Kind: EventFlagTypeArchived, Actor: actorID}, flagType)
	})
	if err != nil {
		return ports.FlagType{}, err
	}

	s.publishBestEffort(ctx, trail)
	return flagType, nil
}

func (s *Service) ListFlagTypes(ctx context.Context) ([]ports.FlagType, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	return s.flagTypes.ListFlagTypes(ctx)
}
