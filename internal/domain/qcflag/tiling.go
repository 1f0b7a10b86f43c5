package qcflag

// Segment is one piece of a scope timeline. FlagID is nil for an undefined-quality gap.
type Segment struct {
	Period
	FlagID *int64 `json:"flagId"`
}

func (s Segment) Undefined() bool {
	return s.FlagID == nil
}

// Tile orders disjoint periods by start (open starts first) and fills the gaps
// so that the result covers the whole run window.
func Tile(periods []EffectivePeriod) []Segment {
	sorted := sortPeriods(periods)
	segments := make([]Segment, 0, 2*len(sorted)+1)

	cursor := openLow
	for _, item := range sorted {
		if item.lo() > cursor {
			segments = append(segments, Segment{Period: periodOf(cursor, item.lo())})
		}
		flagID := item.FlagID
		segments = append(segments, Segment{Period: item.Period, FlagID: &flagID})
		cursor = item.hi()
	}
	if cursor < openHigh {
		segments = append(segments, Segment{Period: periodOf(cursor, openHigh)})
	}
	return segments
}
