package qcflag

// PeriodChange records what an insertion did to one existing period.
// After is empty when the period was removed and has two items after a split.
type PeriodChange struct {
	Before EffectivePeriod   `json:"before"`
	After  []EffectivePeriod `json:"after"`
}

// InsertionPlan lists the row mutations needed to give a new flag exclusive
// ownership of its range.
type InsertionPlan struct {
	Created EffectivePeriod
	// Updated keeps the ID of the existing row with shortened bounds.
	Updated []EffectivePeriod
	// Added are remainders split off existing periods; ID is zero.
	Added   []EffectivePeriod
	Removed []EffectivePeriod
	Changes []PeriodChange
}

// PlanInsertion computes how existing periods of a scope are trimmed, split or
// removed so that flagID owns nominal exclusively. Newer flags always win,
// including over identical ranges.
func PlanInsertion(scope string, existing []EffectivePeriod, flagID int64, nominal Period) (InsertionPlan, error) {
	if err := nominal.Validate(); err != nil {
		return InsertionPlan{}, err
	}
	if err := CheckDisjoint(scope, existing); err != nil {
		return InsertionPlan{}, err
	}

	plan := InsertionPlan{
		Created: EffectivePeriod{FlagID: flagID, Period: nominal},
	}

	for _, current := range sortPeriods(existing) {
		if !current.Overlaps(nominal) {
			continue
		}

		change := PeriodChange{Before: current}
		keepLeft := current.lo() < nominal.lo()
		keepRight := current.hi() > nominal.hi()

		switch {
		case keepLeft && keepRight:
			left := EffectivePeriod{ID: current.ID, FlagID: current.FlagID, Period: periodOf(current.lo(), nominal.lo())}
			right := EffectivePeriod{FlagID: current.FlagID, Period: periodOf(nominal.hi(), current.hi())}
			plan.Updated = append(plan.Updated, left)
			plan.Added = append(plan.Added, right)
			change.After = []EffectivePeriod{left, right}
		case keepLeft:
			left := EffectivePeriod{ID: current.ID, FlagID: current.FlagID, Period: periodOf(current.lo(), nominal.lo())}
			plan.Updated = append(plan.Updated, left)
			change.After = []EffectivePeriod{left}
		case keepRight:
			right := EffectivePeriod{ID: current.ID, FlagID: current.FlagID, Period: periodOf(nominal.hi(), current.hi())}
			plan.Updated = append(plan.Updated, right)
			change.After = []EffectivePeriod{right}
		default:
			plan.Removed = append(plan.Removed, current)
		}

		plan.Changes = append(plan.Changes, change)
	}

	return plan, nil
}

// Apply returns the scope's periods after the plan. IDs of added rows stay zero.
func (p InsertionPlan) Apply(existing []EffectivePeriod) []EffectivePeriod {
	touched := make(map[int64]EffectivePeriod, len(p.Updated)+len(p.Removed))
	for _, item := range p.Updated {
		touched[item.ID] = item
	}
	removed := make(map[int64]struct{}, len(p.Removed))
	for _, item := range p.Removed {
		removed[item.ID] = struct{}{}
	}

	out := make([]EffectivePeriod, 0, len(existing)+len(p.Added)+1)
	for _, item := range existing {
		if _, ok := removed[item.ID]; ok {
			continue
		}
		if updated, ok := touched[item.ID]; ok {
			out = append(out, updated)
			continue
		}
		out = append(out, item)
	}
	out = append(out, p.Added...)
	out = append(out, p.Created)
	return sortPeriods(out)
}
