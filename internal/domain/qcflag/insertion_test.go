package qcflag

import (
	"fmt"
	"strings"
	"testing"

	"qcflags/internal/errs"
)

// rng builds a period from int bounds, nil meaning open.
func rng(from any, to any) Period {
	var p Period
	if v, ok := from.(int); ok {
		p.From = Millis(int64(v))
	}
	if v, ok := to.(int); ok {
		p.To = Millis(int64(v))
	}
	return p
}

// scopeSim replays insertions against the planner the way the service does.
type scopeSim struct {
	nextID  int64
	periods []EffectivePeriod
}

func (s *scopeSim) insert(t *testing.T, flagID int64, p Period) InsertionPlan {
	t.Helper()

	plan, err := PlanInsertion("test", s.periods, flagID, p)
	if err != nil {
		t.Fatalf("PlanInsertion(flag %d, %s) error = %v", flagID, p, err)
	}
	next := plan.Apply(s.periods)
	for i := range next {
		if next[i].ID == 0 {
			s.nextID++
			next[i].ID = s.nextID
		}
	}
	s.periods = next
	if err := CheckDisjoint("test", s.periods); err != nil {
		t.Fatalf("after flag %d: %v", flagID, err)
	}
	return plan
}

func (s *scopeSim) discard(flagID int64) {
	kept := s.periods[:0]
	for _, item := range s.periods {
		if item.FlagID != flagID {
			kept = append(kept, item)
		}
	}
	s.periods = kept
}

func describe(periods []EffectivePeriod) string {
	parts := make([]string, 0, len(periods))
	for _, item := range sortPeriods(periods) {
		parts = append(parts, fmt.Sprintf("%d%s", item.FlagID, item.Period))
	}
	return strings.Join(parts, " ")
}

func TestPlanInsertionShapes(t *testing.T) {
	testCases := []struct {
		name      string
		existing  Period
		inserted  Period
		want      string
		removed   int
		updated   int
		added     int
		unchanged bool
	}{
		{
			name:     "split around contained range",
			existing: rng(nil, nil),
			inserted: rng(30, 50),
			want:     "1[-, 30) 2[30, 50) 1[50, -)",
			updated:  1,
			added:    1,
		},
		{
			name:     "trim right side",
			existing: rng(0, 40),
			inserted: rng(20, 60),
			want:     "1[0, 20) 2[20, 60)",
			updated:  1,
		},
		{
			name:     "trim left side",
			existing: rng(40, 100),
			inserted: rng(20, 60),
			want:     "2[20, 60) 1[60, 100)",
			updated:  1,
		},
		{
			name:     "remove fully covered",
			existing: rng(30, 50),
			inserted: rng(10, 60),
			want:     "2[10, 60)",
			removed:  1,
		},
		{
			name:      "disjoint untouched",
			existing:  rng(0, 10),
			inserted:  rng(10, 20),
			want:      "1[0, 10) 2[10, 20)",
			unchanged: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sim := &scopeSim{}
			sim.insert(t, 1, tc.existing)
			plan := sim.insert(t, 2, tc.inserted)

			if got := describe(sim.periods); got != tc.want {
				t.Fatalf("periods = %q, want %q", got, tc.want)
			}
			if len(plan.Removed) != tc.removed || len(plan.Updated) != tc.updated || len(plan.Added) != tc.added {
				t.Fatalf("plan removed=%d updated=%d added=%d", len(plan.Removed), len(plan.Updated), len(plan.Added))
			}
			if tc.unchanged && len(plan.Changes) != 0 {
				t.Fatalf("plan changes = %d, want 0", len(plan.Changes))
			}
			if !tc.unchanged && len(plan.Changes) != 1 {
				t.Fatalf("plan changes = %d, want 1", len(plan.Changes))
			}
		})
	}
}

func TestPlanInsertionRejectsInvertedAndEmptyRanges(t *testing.T) {
	for _, p := range []Period{rng(20, 10), rng(10, 10)} {
		_, err := PlanInsertion("test", nil, 1, p)
		if !errs.IsValidation(err) {
			t.Fatalf("PlanInsertion(%s) error = %v, want validation", p, err)
		}
	}
}

func TestPlanInsertionRejectsOverlappingStoredPeriods(t *testing.T) {
	existing := []EffectivePeriod{
		{ID: 1, FlagID: 1, Period: rng(0, 50)},
		{ID: 2, FlagID: 2, Period: rng(40, 60)},
	}
	_, err := PlanInsertion("run:1/det:1/sync", existing, 3, rng(70, 80))
	if !errs.IsConsistency(err) {
		t.Fatalf("PlanInsertion() error = %v, want consistency violation", err)
	}
}

func TestLastWriterWinsOnIdenticalRanges(t *testing.T) {
	sim := &scopeSim{}
	sim.insert(t, 1, rng(10, 20))
	plan := sim.insert(t, 2, rng(10, 20))

	if got := describe(sim.periods); got != "2[10, 20)" {
		t.Fatalf("periods = %q", got)
	}
	if len(plan.Removed) != 1 || plan.Removed[0].FlagID != 1 {
		t.Fatalf("removed = %+v", plan.Removed)
	}
}

func TestDisjointInsertionsAreOrderIndependent(t *testing.T) {
	first := &scopeSim{}
	first.insert(t, 1, rng(0, 30))
	first.insert(t, 2, rng(50, 70))

	second := &scopeSim{}
	second.insert(t, 2, rng(50, 70))
	second.insert(t, 1, rng(0, 30))

	if describe(first.periods) != describe(second.periods) {
		t.Fatalf("order changed result: %q vs %q", describe(first.periods), describe(second.periods))
	}
}

func TestDiscardDoesNotResurrect(t *testing.T) {
	sim := &scopeSim{}
	sim.insert(t, 1, rng(0, 100))
	sim.insert(t, 2, rng(40, 60))
	if got := describe(sim.periods); got != "1[0, 40) 2[40, 60) 1[60, 100)" {
		t.Fatalf("periods = %q", got)
	}

	sim.discard(2)

	segments := Tile(sim.periods)
	var gaps []string
	for _, segment := range segments {
		if segment.Undefined() {
			gaps = append(gaps, segment.Period.String())
		}
	}
	want := []string{"[-, 0)", "[40, 60)", "[100, -)"}
	if strings.Join(gaps, " ") != strings.Join(want, " ") {
		t.Fatalf("gaps = %v, want %v", gaps, want)
	}
}

func TestRandomSequencesKeepDisjointAndComplete(t *testing.T) {
	bounds := []Period{
		rng(nil, nil), rng(10, 90), rng(nil, 40), rng(60, nil), rng(20, 30),
		rng(25, 75), rng(0, 5), rng(85, nil), rng(40, 60), rng(nil, 15),
	}

	for start := range bounds {
		sim := &scopeSim{}
		for i := range bounds {
			p := bounds[(start+i)%len(bounds)]
			sim.insert(t, int64(i+1), p)

			segments := Tile(sim.periods)
			cursor := openLow
			for _, segment := range segments {
				if segment.lo() != cursor {
					t.Fatalf("tiling hole or overlap at %d: %v", cursor, segments)
				}
				cursor = segment.hi()
			}
			if cursor != openHigh {
				t.Fatalf("tiling does not reach run end: %v", segments)
			}
		}
	}
}
