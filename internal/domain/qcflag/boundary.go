package qcflag

import "qcflags/internal/errs"

// NormalizeFlagPeriod fits a requested flag range to the run window.
// Bounds at or beyond the run edges become open; ranges outside the run are rejected.
func NormalizeFlagPeriod(window Window, requested Period) (Period, error) {
	if err := requested.Validate(); err != nil {
		return Period{}, err
	}
	if requested.From != nil && window.End != nil && *requested.From >= *window.End {
		return Period{}, errs.Validationf("from", "period start %d is not before run end %d", *requested.From, *window.End)
	}
	if requested.To != nil && window.Start != nil && *requested.To <= *window.Start {
		return Period{}, errs.Validationf("to", "period end %d is not after run start %d", *requested.To, *window.Start)
	}

	normalized := requested
	if normalized.From != nil && window.Start != nil && *normalized.From <= *window.Start {
		normalized.From = nil
	}
	if normalized.To != nil && window.End != nil && *normalized.To >= *window.End {
		normalized.To = nil
	}
	return normalized, nil
}

// FlagBounds is the nominal range of a live flag of the run being reconciled.
type FlagBounds struct {
	FlagID int64 `json:"flagId"`
	Period
}

// BoundaryChange is a transition of a run's QC window.
type BoundaryChange struct {
	Old Window
	New Window
}

func (c BoundaryChange) startTightened() bool {
	if c.New.Start == nil {
		return false
	}
	return c.Old.Start == nil || *c.New.Start > *c.Old.Start
}

func (c BoundaryChange) endTightened() bool {
	if c.New.End == nil {
		return false
	}
	return c.Old.End == nil || *c.New.End < *c.Old.End
}

// reopen turns bounds crossed by a tightened edge back into open bounds.
func (c BoundaryChange) reopen(p Period) (Period, bool) {
	changed := false
	if c.startTightened() && p.From != nil && *p.From <= *c.New.Start {
		p.From = nil
		changed = true
	}
	if c.endTightened() && p.To != nil && *p.To >= *c.New.End {
		p.To = nil
		changed = true
	}
	return p, changed
}

func (c BoundaryChange) outside(p Period) bool {
	if c.New.Start != nil && p.To != nil && *p.To <= *c.New.Start {
		return true
	}
	if c.New.End != nil && p.From != nil && *p.From >= *c.New.End {
		return true
	}
	return false
}

// ReconcilePlan lists the mutations a boundary change implies for one run.
type ReconcilePlan struct {
	UpdatedFlags   []FlagBounds      `json:"updatedFlags"`
	UpdatedPeriods []EffectivePeriod `json:"updatedPeriods"`
	PrunedPeriods  []EffectivePeriod `json:"prunedPeriods"`
	DeletedFlagIDs []int64           `json:"deletedFlagIds"`
}

func (p ReconcilePlan) Empty() bool {
	return len(p.UpdatedFlags) == 0 && len(p.UpdatedPeriods) == 0 && len(p.PrunedPeriods) == 0 && len(p.DeletedFlagIDs) == 0
}

// PlanBoundaryReconcile adjusts live flags and their periods to a new run window:
// bounds crossed by a tightened edge are reopened, periods left outside the
// window are pruned, and flags that lost every period while lying outside the
// window are deleted. Flags and periods are adjusted independently.
func PlanBoundaryReconcile(change BoundaryChange, flags []FlagBounds, periods []EffectivePeriod) ReconcilePlan {
	var plan ReconcilePlan

	remaining := make(map[int64]int, len(flags))
	for _, item := range sortPeriods(periods) {
		adjusted, changed := change.reopen(item.Period)
		if change.outside(adjusted) {
			plan.PrunedPeriods = append(plan.PrunedPeriods, item)
			continue
		}
		remaining[item.FlagID]++
		if changed {
			plan.UpdatedPeriods = append(plan.UpdatedPeriods, EffectivePeriod{ID: item.ID, FlagID: item.FlagID, Period: adjusted})
		}
	}

	for _, flag := range flags {
		adjusted, changed := change.reopen(flag.Period)
		if remaining[flag.FlagID] == 0 && change.outside(adjusted) {
			plan.DeletedFlagIDs = append(plan.DeletedFlagIDs, flag.FlagID)
			continue
		}
		if changed {
			plan.UpdatedFlags = append(plan.UpdatedFlags, FlagBounds{FlagID: flag.FlagID, Period: adjusted})
		}
	}

	return plan
}
