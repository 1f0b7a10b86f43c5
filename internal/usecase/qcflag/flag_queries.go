package qcflag

import (
	"context"

	domainqcflag "qcflags/internal/domain/qcflag"
	"qcflags/internal/errs"
	"qcflags/internal/ports"
)

const (
	defaultFlagPageSize = 50
	maxFlagPageSize     = 500
)

// FlagDetails is a flag with its type, its verifications and what is left of
// its coverage.
type FlagDetails struct {
	ports.Flag
	FlagType         ports.FlagType                 `json:"flagType"`
	Verifications    []ports.Verification           `json:"verifications"`
	EffectivePeriods []domainqcflag.EffectivePeriod `json:"effectivePeriods"`
}

type FlagPage struct {
	Items []FlagDetails `json:"items"`
	Total int64         `json:"total"`
}

// GetFlag returns one flag, discarded or not.
func (s *Service) GetFlag(ctx context.Context, flagID int64) (FlagDetails, error) {
	if err := checkContext(ctx); err != nil {
		return FlagDetails{}, err
	}
	if flagID <= 0 {
		return FlagDetails{}, errs.Validation("flagId", "must be positive")
	}

	var details FlagDetails
	err := s.uow.WithSnapshot(ctx, func(readCtx context.Context) error {
		flag, err := s.flags.GetFlag(readCtx, flagID)
		if err != nil {
			return notFound(err, "flag", flagID)
		}
		details, err = s.flagDetails(readCtx, flag, newFlagTypeLookup(s.flagTypes))
		return err
	})
	if err != nil {
		return FlagDetails{}, err
	}
	return details, nil
}

// ListScopeFlags pages through the live flags of a scope, newest first.
func (s *Service) ListScopeFlags(ctx context.Context, scope domainqcflag.ScopeKey, limit int, offset int) (FlagPage, error) {
	if err := checkContext(ctx); err != nil {
		return FlagPage{}, err
	}
	switch {
	case limit < 0 || limit > maxFlagPageSize:
		return FlagPage{}, errs.Validationf("limit", "must be between 1 and %d", maxFlagPageSize)
	case limit == 0:
		limit = defaultFlagPageSize
	}
	if offset < 0 {
		return FlagPage{}, errs.Validation("offset", "must not be negative")
	}

	var page FlagPage
	err := s.uow.WithSnapshot(ctx, func(readCtx context.Context) error {
		if _, err := s.resolveScope(readCtx, scope); err != nil {
			return err
		}
		flags, total, err := s.flags.PageScopeFlags(readCtx, scope, limit, offset)
		if err != nil {
			return err
		}

		types := newFlagTypeLookup(s.flagTypes)
		page = FlagPage{Items: make([]FlagDetails, 0, len(flags)), Total: total}
		for _, flag := range flags {
			details, err := s.flagDetails(readCtx, flag, types)
			if err != nil {
				return err
			}
			page.Items = append(page.Items, details)
		}
		return nil
	})
	if err != nil {
		return FlagPage{}, err
	}
	return page, nil
}

func (s *Service) flagDetails(ctx context.Context, flag ports.Flag, types *flagTypeLookup) (FlagDetails, error) {
	flagType, err := types.get(ctx, flag.FlagTypeID)
	if err != nil {
		return FlagDetails{}, err
	}
	verifications, err := s.flags.ListVerifications(ctx, flag.ID)
	if err != nil {
		return FlagDetails{}, err
	}
	periods, err := s.flags.ListFlagPeriods(ctx, flag.ID)
	if err != nil {
		return FlagDetails{}, err
	}
	if verifications == nil {
		verifications = []ports.Verification{}
	}
	if periods == nil {
		periods = []domainqcflag.EffectivePeriod{}
	}
	return FlagDetails{
		Flag:             flag,
		FlagType:         flagType,
		Verifications:    verifications,
		EffectivePeriods: periods,
	}, nil
}
