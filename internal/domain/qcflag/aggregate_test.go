package qcflag

import (
	"math"
	"testing"
)

func approx(t *testing.T, name string, got *float64, want float64) {
	t.Helper()
	if got == nil {
		t.Fatalf("%s = nil, want %v", name, want)
	}
	if math.Abs(*got-want) > 1e-9 {
		t.Fatalf("%s = %v, want %v", name, *got, want)
	}
}

func TestSingleDetectorScenario(t *testing.T) {
	window := Window{Start: Millis(0), End: Millis(100)}

	good, err := NormalizeFlagPeriod(window, rng(0, 100))
	if err != nil {
		t.Fatalf("NormalizeFlagPeriod() error = %v", err)
	}
	sim := &scopeSim{}
	sim.insert(t, 1, good)
	sim.insert(t, 2, rng(30, 50))

	flags := map[int64]FlagInfo{
		1: {FlagID: 1, Bad: false, Verified: true},
		2: {FlagID: 2, Bad: true},
	}
	segments := Aggregate([]DetectorPeriods{{DetectorID: 1, Periods: sim.periods}}, flags, AggregateOptions{})

	want := []struct {
		period  string
		quality Quality
	}{
		{"[-, 30)", QualityNotBad},
		{"[30, 50)", QualityBad},
		{"[50, -)", QualityNotBad},
	}
	if len(segments) != len(want) {
		t.Fatalf("segments = %+v", segments)
	}
	for i, w := range want {
		if segments[i].Period.String() != w.period || segments[i].Quality != w.quality {
			t.Fatalf("segment %d = %s %s, want %s %s", i, segments[i].Period, segments[i].Quality, w.period, w.quality)
		}
	}

	summary := Summarize(window, segments, []FlagInfo{flags[1], flags[2]})
	approx(t, "bad", summary.BadEffectiveRunCoverage, 0.2)
	approx(t, "not bad", summary.ExplicitlyNotBadEffectiveRunCoverage, 0.8)
	approx(t, "undefined", summary.UndefinedQualityCoverage, 0)
	if summary.MissingVerificationsCount != 1 {
		t.Fatalf("missing verifications = %d", summary.MissingVerificationsCount)
	}
	if summary.UndefinedQualityPeriodsCount != 0 {
		t.Fatalf("undefined periods = %d", summary.UndefinedQualityPeriodsCount)
	}
}

func TestAggregateWorstOf(t *testing.T) {
	detectors := []DetectorPeriods{
		{DetectorID: 1, Periods: []EffectivePeriod{{ID: 1, FlagID: 1, Period: rng(0, 10)}}},
		{DetectorID: 2, Periods: []EffectivePeriod{{ID: 2, FlagID: 2, Period: rng(0, 10)}}},
	}
	flags := map[int64]FlagInfo{
		1: {FlagID: 1, Bad: true},
		2: {FlagID: 2, Bad: false},
	}

	segments := Aggregate(detectors, flags, AggregateOptions{})
	for _, segment := range segments {
		if segment.Period.String() == "[0, 10)" {
			if segment.Quality != QualityBad {
				t.Fatalf("quality = %s, want bad", segment.Quality)
			}
			return
		}
	}
	t.Fatalf("no [0, 10) segment in %+v", segments)
}

func TestAggregateUndefinedWhenDetectorUncovered(t *testing.T) {
	window := Window{Start: Millis(0), End: Millis(100)}
	detectors := []DetectorPeriods{
		{DetectorID: 1, Periods: []EffectivePeriod{{ID: 1, FlagID: 1, Period: rng(nil, nil)}}},
		{DetectorID: 2, Periods: []EffectivePeriod{{ID: 2, FlagID: 2, Period: rng(nil, 60)}}},
	}
	flags := map[int64]FlagInfo{
		1: {FlagID: 1, Verified: true},
		2: {FlagID: 2, Verified: true},
	}

	segments := Aggregate(detectors, flags, AggregateOptions{})
	summary := Summarize(window, segments, []FlagInfo{flags[1], flags[2]})
	approx(t, "not bad", summary.ExplicitlyNotBadEffectiveRunCoverage, 0.6)
	approx(t, "undefined", summary.UndefinedQualityCoverage, 0.4)
	approx(t, "bad", summary.BadEffectiveRunCoverage, 0)
	if summary.UndefinedQualityPeriodsCount != 1 {
		t.Fatalf("undefined periods = %d", summary.UndefinedQualityPeriodsCount)
	}
}

func TestAggregateMCReproducibleOption(t *testing.T) {
	window := Window{Start: Millis(0), End: Millis(100)}
	detectors := []DetectorPeriods{
		{DetectorID: 1, Periods: []EffectivePeriod{{ID: 1, FlagID: 1, Period: rng(nil, nil)}}},
	}
	flags := map[int64]FlagInfo{1: {FlagID: 1, Bad: true, MCReproducible: true}}

	strict := Summarize(window, Aggregate(detectors, flags, AggregateOptions{}), nil)
	approx(t, "strict bad", strict.BadEffectiveRunCoverage, 1)
	if !strict.MCReproducible {
		t.Fatalf("mcReproducible = false")
	}

	lenient := Summarize(window, Aggregate(detectors, flags, AggregateOptions{MCReproducibleAsNotBad: true}), nil)
	approx(t, "lenient bad", lenient.BadEffectiveRunCoverage, 0)
	approx(t, "lenient not bad", lenient.ExplicitlyNotBadEffectiveRunCoverage, 1)
}

func TestAggregateWithoutDetectorsIsUndefined(t *testing.T) {
	window := Window{Start: Millis(0), End: Millis(100)}
	segments := Aggregate(nil, nil, AggregateOptions{})
	if len(segments) != 1 || segments[0].Quality != QualityUndefined {
		t.Fatalf("segments = %+v", segments)
	}
	summary := Summarize(window, segments, nil)
	approx(t, "undefined", summary.UndefinedQualityCoverage, 1)
	approx(t, "bad", summary.BadEffectiveRunCoverage, 0)
}

func TestSummarizeUnknownWindow(t *testing.T) {
	whole := []QualitySegment{{Period: rng(nil, nil), Quality: QualityBad}}
	summary := Summarize(Window{Start: Millis(0)}, whole, nil)
	approx(t, "bad", summary.BadEffectiveRunCoverage, 1)

	split := []QualitySegment{
		{Period: rng(nil, 50), Quality: QualityBad},
		{Period: rng(50, nil), Quality: QualityNotBad},
	}
	summary = Summarize(Window{}, split, nil)
	if summary.BadEffectiveRunCoverage != nil || summary.ExplicitlyNotBadEffectiveRunCoverage != nil {
		t.Fatalf("coverage should be unknown: %+v", summary)
	}
}

func TestAggregateMergesAdjacentSegmentsOfSameFlags(t *testing.T) {
	detectors := []DetectorPeriods{
		{DetectorID: 1, Periods: []EffectivePeriod{{ID: 1, FlagID: 1, Period: rng(nil, nil)}}},
		{DetectorID: 2, Periods: []EffectivePeriod{
			{ID: 2, FlagID: 2, Period: rng(nil, 40)},
			{ID: 3, FlagID: 2, Period: rng(60, nil)},
			{ID: 4, FlagID: 3, Period: rng(40, 60)},
		}},
	}
	flags := map[int64]FlagInfo{1: {FlagID: 1}, 2: {FlagID: 2}, 3: {FlagID: 3}}

	segments := Aggregate(detectors, flags, AggregateOptions{})
	if len(segments) != 3 {
		t.Fatalf("segments = %+v", segments)
	}
	if segments[1].FlagIDs[1] != 3 {
		t.Fatalf("middle segment flags = %v", segments[1].FlagIDs)
	}
}

func TestGaqPresets(t *testing.T) {
	if got := DefaultGaqPresets.DetectorsFor("pbpb"); len(got) != 4 {
		t.Fatalf("DetectorsFor(pbpb) = %v", got)
	}
	custom := GaqPresets{"pp": {"TPC"}}
	if got := custom.DetectorsFor("pp"); len(got) != 1 {
		t.Fatalf("custom DetectorsFor(pp) = %v", got)
	}
	if got := custom.DetectorsFor("PbPb"); len(got) != 4 {
		t.Fatalf("fallback DetectorsFor(PbPb) = %v", got)
	}
	if IsQCDetector("tst") {
		t.Fatalf("IsQCDetector(tst) = true")
	}
}
