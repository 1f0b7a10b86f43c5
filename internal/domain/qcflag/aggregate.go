package qcflag

import (
	"slices"
	"sort"
)

type Quality string

const (
	QualityBad       Quality = "bad"
	QualityNotBad    Quality = "not_bad"
	QualityUndefined Quality = "undefined"
)

// FlagInfo is what aggregation needs to know about a flag owning a period.
type FlagInfo struct {
	FlagID         int64 `json:"flagId"`
	Bad            bool  `json:"bad"`
	MCReproducible bool  `json:"mcReproducible"`
	Verified       bool  `json:"verified"`
}

// DetectorPeriods are the effective periods of one detector in a run and pass scope.
type DetectorPeriods struct {
	DetectorID int64
	Periods    []EffectivePeriod
}

type AggregateOptions struct {
	// MCReproducibleAsNotBad treats bad flags of Monte-Carlo reproducible types as not bad.
	MCReproducibleAsNotBad bool
}

// QualitySegment is a maximal sub-interval with one aggregated quality and one set
// of contributing flags.
type QualitySegment struct {
	Period
	Quality        Quality `json:"quality"`
	MCReproducible bool    `json:"mcReproducible"`
	FlagIDs        []int64 `json:"flagIds"`
}

// Aggregate combines detector timelines with worst-of semantics: a sub-interval is
// bad when any detector is bad there, not bad when every detector has a non-bad
// flag, and undefined otherwise. No detectors yields one undefined segment.
func Aggregate(detectors []DetectorPeriods, flags map[int64]FlagInfo, opts AggregateOptions) []QualitySegment {
	if len(detectors) == 0 {
		return []QualitySegment{{Period: Period{}, Quality: QualityUndefined}}
	}

	timelines := make([][]EffectivePeriod, len(detectors))
	points := []int64{openLow, openHigh}
	for i, detector := range detectors {
		timelines[i] = sortPeriods(detector.Periods)
		for _, item := range timelines[i] {
			if item.From != nil {
				points = append(points, *item.From)
			}
			if item.To != nil {
				points = append(points, *item.To)
			}
		}
	}
	slices.Sort(points)
	points = slices.Compact(points)

	segments := make([]QualitySegment, 0, len(points))
	for i := 0; i+1 < len(points); i++ {
		lo, hi := points[i], points[i+1]
		segment := QualitySegment{Period: periodOf(lo, hi)}

		bad := false
		covered := 0
		for _, timeline := range timelines {
			owner, ok := coveringPeriod(timeline, lo)
			if !ok {
				continue
			}
			covered++
			info := flags[owner.FlagID]
			segment.FlagIDs = append(segment.FlagIDs, owner.FlagID)
			if info.MCReproducible {
				segment.MCReproducible = true
			}
			if info.Bad && !(opts.MCReproducibleAsNotBad && info.MCReproducible) {
				bad = true
			}
		}

		switch {
		case bad:
			segment.Quality = QualityBad
		case covered == len(timelines):
			segment.Quality = QualityNotBad
		default:
			segment.Quality = QualityUndefined
		}

		if n := len(segments); n > 0 && mergeable(segments[n-1], segment) {
			segments[n-1].Period = periodOf(segments[n-1].lo(), hi)
			continue
		}
		segments = append(segments, segment)
	}
	return segments
}

// coveringPeriod finds the period containing instant at in a sorted disjoint timeline.
func coveringPeriod(timeline []EffectivePeriod, at int64) (EffectivePeriod, bool) {
	idx := sort.Search(len(timeline), func(i int) bool {
		return timeline[i].lo() > at
	})
	if idx == 0 {
		return EffectivePeriod{}, false
	}
	candidate := timeline[idx-1]
	if candidate.hi() <= at {
		return EffectivePeriod{}, false
	}
	return candidate, true
}

func mergeable(a QualitySegment, b QualitySegment) bool {
	return a.Quality == b.Quality && a.MCReproducible == b.MCReproducible && slices.Equal(a.FlagIDs, b.FlagIDs)
}

// QualitySummary is the coverage report of a run, either for one detector or for
// the GAQ detector set. Fractions are nil when the run window is not known.
type QualitySummary struct {
	BadEffectiveRunCoverage              *float64 `json:"badEffectiveRunCoverage"`
	ExplicitlyNotBadEffectiveRunCoverage *float64 `json:"explicitlyNotBadEffectiveRunCoverage"`
	UndefinedQualityCoverage             *float64 `json:"undefinedQualityCoverage"`
	MCReproducible                       bool     `json:"mcReproducible"`
	MissingVerificationsCount            int      `json:"missingVerificationsCount"`
	UndefinedQualityPeriodsCount         int      `json:"undefinedQualityPeriodsCount"`
}

// Summarize reduces aggregated segments to coverage fractions of the run window.
// flagsInScope are the live flags counted for missing verifications.
func Summarize(window Window, segments []QualitySegment, flagsInScope []FlagInfo) QualitySummary {
	var summary QualitySummary

	for _, flag := range flagsInScope {
		if !flag.Verified {
			summary.MissingVerificationsCount++
		}
	}

	for _, segment := range segments {
		if segment.MCReproducible {
			summary.MCReproducible = true
		}
		if segment.Quality == QualityUndefined {
			summary.UndefinedQualityPeriodsCount++
		}
	}

	durations := map[Quality]int64{}
	switch {
	case window.Known() && *window.End > *window.Start:
		for _, segment := range segments {
			d, _ := window.Duration(segment.Period)
			durations[segment.Quality] += d
		}
		total := float64(*window.End - *window.Start)
		summary.BadEffectiveRunCoverage = fraction(float64(durations[QualityBad]) / total)
		summary.ExplicitlyNotBadEffectiveRunCoverage = fraction(float64(durations[QualityNotBad]) / total)
		summary.UndefinedQualityCoverage = fraction(float64(durations[QualityUndefined]) / total)
	case len(segments) == 1 && segments[0].From == nil && segments[0].To == nil:
		whole := segments[0].Quality
		summary.BadEffectiveRunCoverage = fraction(boolFraction(whole == QualityBad))
		summary.ExplicitlyNotBadEffectiveRunCoverage = fraction(boolFraction(whole == QualityNotBad))
		summary.UndefinedQualityCoverage = fraction(boolFraction(whole == QualityUndefined))
	}

	return summary
}

func fraction(v float64) *float64 {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return &v
}

func boolFraction(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
