package qcflag

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"qcflags/internal/errs"
)

const (
	openLow  int64 = math.MinInt64
	openHigh int64 = math.MaxInt64
)

// Period is a half-open range [From, To) in epoch milliseconds.
// A nil From extends to the run's QC start, a nil To to the run's QC end.
type Period struct {
	From *int64 `json:"from"`
	To   *int64 `json:"to"`
}

// Millis returns a pointer to v, for building periods inline.
func Millis(v int64) *int64 {
	return &v
}

// periodOf maps the open sentinels back to nil bounds.
func periodOf(lo int64, hi int64) Period {
	var p Period
	if lo != openLow {
		p.From = Millis(lo)
	}
	if hi != openHigh {
		p.To = Millis(hi)
	}
	return p
}

func (p Period) lo() int64 {
	if p.From == nil {
		return openLow
	}
	return *p.From
}

func (p Period) hi() int64 {
	if p.To == nil {
		return openHigh
	}
	return *p.To
}

// Validate rejects inverted and zero-length ranges.
func (p Period) Validate() error {
	if p.From != nil && p.To != nil && *p.From >= *p.To {
		return errs.Validationf("to", "period end %d must be after start %d", *p.To, *p.From)
	}
	return nil
}

func (p Period) Overlaps(other Period) bool {
	return p.lo() < other.hi() && other.lo() < p.hi()
}

// Contains reports whether other lies entirely inside p.
func (p Period) Contains(other Period) bool {
	return p.lo() <= other.lo() && other.hi() <= p.hi()
}

func (p Period) Equal(other Period) bool {
	return p.lo() == other.lo() && p.hi() == other.hi()
}

func (p Period) String() string {
	from, to := "-", "-"
	if p.From != nil {
		from = strconv.FormatInt(*p.From, 10)
	}
	if p.To != nil {
		to = strconv.FormatInt(*p.To, 10)
	}
	return fmt.Sprintf("[%s, %s)", from, to)
}

// Window is the QC time range of a run. Nil bounds are not known yet.
type Window struct {
	Start *int64 `json:"qcTimeStart"`
	End   *int64 `json:"qcTimeEnd"`
}

func (w Window) Known() bool {
	return w.Start != nil && w.End != nil
}

func (w Window) Validate() error {
	if w.Start != nil && w.End != nil && *w.Start >= *w.End {
		return errs.Validationf("qcTimeEnd", "run end %d must be after start %d", *w.End, *w.Start)
	}
	return nil
}

// Duration is the length of p once resolved against the window.
// It returns false when the window is not known.
func (w Window) Duration(p Period) (int64, bool) {
	if !w.Known() {
		return 0, false
	}
	lo, hi := p.lo(), p.hi()
	if lo < *w.Start {
		lo = *w.Start
	}
	if hi > *w.End {
		hi = *w.End
	}
	if hi <= lo {
		return 0, true
	}
	return hi - lo, true
}

// EffectivePeriod is the part of a flag's nominal range the flag currently owns.
// ID is zero for periods not yet persisted.
type EffectivePeriod struct {
	ID     int64 `json:"id,omitempty"`
	FlagID int64 `json:"flagId"`
	Period
}

func sortPeriods(periods []EffectivePeriod) []EffectivePeriod {
	sorted := make([]EffectivePeriod, len(periods))
	copy(sorted, periods)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].lo() != sorted[j].lo() {
			return sorted[i].lo() < sorted[j].lo()
		}
		return sorted[i].hi() < sorted[j].hi()
	})
	return sorted
}

// CheckDisjoint verifies that stored periods of one scope do not overlap.
func CheckDisjoint(scope string, periods []EffectivePeriod) error {
	sorted := sortPeriods(periods)
	for i, current := range sorted {
		if current.lo() >= current.hi() {
			return errs.Consistency(scope, fmt.Sprintf("period %d of flag %d is empty %s", current.ID, current.FlagID, current.Period))
		}
		if i == 0 {
			continue
		}
		prev := sorted[i-1]
		if prev.hi() > current.lo() {
			return errs.Consistency(scope, fmt.Sprintf(
				"period %d of flag %d %s overlaps period %d of flag %d %s",
				prev.ID, prev.FlagID, prev.Period, current.ID, current.FlagID, current.Period,
			))
		}
	}
	return nil
}
