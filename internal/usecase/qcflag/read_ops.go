package qcflag

import (
	"context"

	domainqcflag "qcflags/internal/domain/qcflag"
	"qcflags/internal/errs"
	"qcflags/internal/ports"
)

type EffectivePeriodsQuery struct {
	RunNumber int64
	// DetectorIDs defaults to every QC detector of the run.
	DetectorIDs      []int64
	DataPassID       *int64
	SimulationPassID *int64
}

// FlagSummary is the owning flag metadata attached to a timeline segment.
type FlagSummary struct {
	FlagID         int64  `json:"flagId"`
	FlagTypeID     int64  `json:"flagTypeId"`
	FlagTypeName   string `json:"flagTypeName"`
	Color          string `json:"color"`
	Bad            bool   `json:"bad"`
	MCReproducible bool   `json:"mcReproducible"`
	Verified       bool   `json:"verified"`
	Comment        string `json:"comment,omitempty"`
	CreatedByID    int64  `json:"createdById"`
}

type TimelineSegment struct {
	domainqcflag.Period
	Quality domainqcflag.Quality `json:"quality"`
	Flag    *FlagSummary         `json:"flag,omitempty"`
}

type DetectorTimeline struct {
	Detector ports.Detector    `json:"detector"`
	Segments []TimelineSegment `json:"segments"`
}

type EffectivePeriodsResult struct {
	Run       ports.Run          `json:"run"`
	Detectors []DetectorTimeline `json:"detectors"`
}

// scopeSnapshot is what one scope looks like at read time.
type scopeSnapshot struct {
	periods []domainqcflag.EffectivePeriod
	flags   []ports.Flag
	info    map[int64]domainqcflag.FlagInfo
	summary map[int64]FlagSummary
	inScope []domainqcflag.FlagInfo
}

// flagTypeLookup memoizes flag types for the duration of one request.
type flagTypeLookup struct {
	repo  ports.FlagTypeRepository
	types map[int64]ports.FlagType
}

func newFlagTypeLookup(repo ports.FlagTypeRepository) *flagTypeLookup {
	return &flagTypeLookup{repo: repo, types: make(map[int64]ports.FlagType)}
}

func (l *flagTypeLookup) get(ctx context.Context, flagTypeID int64) (ports.FlagType, error) {
	if flagType, ok := l.types[flagTypeID]; ok {
		return flagType, nil
	}
	flagType, err := l.repo.GetFlagType(ctx, flagTypeID)
	if err != nil {
		return ports.FlagType{}, notFound(err, "flag type", flagTypeID)
	}
	l.types[flagTypeID] = flagType
	return flagType, nil
}

// loadScope reads the periods and flags of one scope. Callers run it inside
// uow.WithSnapshot so both reads see the same discards.
func (s *Service) loadScope(ctx context.Context, scope domainqcflag.ScopeKey, types *flagTypeLookup) (scopeSnapshot, error) {
	periods, err := s.flags.ListScopePeriods(ctx, scope)
	if err != nil {
		return scopeSnapshot{}, err
	}
	if err := domainqcflag.CheckDisjoint(scope.String(), periods); err != nil {
		return scopeSnapshot{}, err
	}

	flags, err := s.flags.ListScopeFlags(ctx, scope)
	if err != nil {
		return scopeSnapshot{}, err
	}

	ids := make([]int64, 0, len(flags))
	for _, flag := range flags {
		ids = append(ids, flag.ID)
	}
	verified, err := s.flags.VerifiedFlagIDs(ctx, ids)
	if err != nil {
		return scopeSnapshot{}, err
	}

	snapshot := scopeSnapshot{
		periods: periods,
		flags:   flags,
		info:    make(map[int64]domainqcflag.FlagInfo, len(flags)),
		summary: make(map[int64]FlagSummary, len(flags)),
		inScope: make([]domainqcflag.FlagInfo, 0, len(flags)),
	}
	for _, flag := range flags {
		flagType, err := types.get(ctx, flag.FlagTypeID)
		if err != nil {
			return scopeSnapshot{}, err
		}
		info := domainqcflag.FlagInfo{
			FlagID:         flag.ID,
			Bad:            flagType.Bad,
			MCReproducible: flagType.MCReproducible,
			Verified:       verified[flag.ID],
		}
		snapshot.info[flag.ID] = info
		snapshot.inScope = append(snapshot.inScope, info)
		snapshot.summary[flag.ID] = FlagSummary{
			FlagID:         flag.ID,
			FlagTypeID:     flagType.ID,
			FlagTypeName:   flagType.Name,
			Color:          flagType.Color,
			Bad:            flagType.Bad,
			MCReproducible: flagType.MCReproducible,
			Verified:       verified[flag.ID],
			Comment:        flag.Comment,
			CreatedByID:    flag.CreatedByID,
		}
	}

	for _, item := range periods {
		if _, ok := snapshot.info[item.FlagID]; !ok {
			return scopeSnapshot{}, errs.Consistency(scope.String(), "effective period owned by a discarded flag")
		}
	}
	return snapshot, nil
}

// GetEffectivePeriods returns, per detector, the ordered timeline of the scope
// with explicit undefined gaps covering the whole run window.
func (s *Service) GetEffectivePeriods(ctx context.Context, query EffectivePeriodsQuery) (EffectivePeriodsResult, error) {
	if err := checkContext(ctx); err != nil {
		return EffectivePeriodsResult{}, err
	}
	if query.RunNumber <= 0 {
		return EffectivePeriodsResult{}, errs.Validation("runNumber", "must be positive")
	}
	if query.DataPassID != nil && query.SimulationPassID != nil {
		return EffectivePeriodsResult{}, errs.Validation("simulationPassId", "a flag belongs to a data pass or a simulation pass, not both")
	}

	var result EffectivePeriodsResult
	err := s.uow.WithSnapshot(ctx, func(readCtx context.Context) error {
		var err error
		result, err = s.effectivePeriods(readCtx, query)
		return err
	})
	if err != nil {
		return EffectivePeriodsResult{}, err
	}
	return result, nil
}

// effectivePeriods builds the timelines. All reads must share one snapshot so
// that periods and their owning flags agree.
func (s *Service) effectivePeriods(ctx context.Context, query EffectivePeriodsQuery) (EffectivePeriodsResult, error) {
	run, err := s.catalog.GetRun(ctx, query.RunNumber)
	if err != nil {
		return EffectivePeriodsResult{}, notFound(err, "run", query.RunNumber)
	}
	if query.DataPassID != nil {
		if err := s.checkDataPassRun(ctx, *query.DataPassID, query.RunNumber); err != nil {
			return EffectivePeriodsResult{}, err
		}
	}
	if query.SimulationPassID != nil {
		if _, err := s.catalog.GetSimulationPass(ctx, *query.SimulationPassID); err != nil {
			return EffectivePeriodsResult{}, notFound(err, "simulation pass", *query.SimulationPassID)
		}
	}

	detectors, err := s.queryDetectors(ctx, query)
	if err != nil {
		return EffectivePeriodsResult{}, err
	}

	types := newFlagTypeLookup(s.flagTypes)
	result := EffectivePeriodsResult{Run: run, Detectors: make([]DetectorTimeline, 0, len(detectors))}
	for _, detector := range detectors {
		scope := domainqcflag.ScopeKey{
			RunNumber:        query.RunNumber,
			DetectorID:       detector.ID,
			DataPassID:       query.DataPassID,
			SimulationPassID: query.SimulationPassID,
		}
		snapshot, err := s.loadScope(ctx, scope, types)
		if err != nil {
			return EffectivePeriodsResult{}, err
		}

		timeline := DetectorTimeline{Detector: detector}
		for _, segment := range domainqcflag.Tile(snapshot.periods) {
			item := TimelineSegment{Period: segment.Period, Quality: domainqcflag.QualityUndefined}
			if !segment.Undefined() {
				summary := snapshot.summary[*segment.FlagID]
				item.Flag = &summary
				item.Quality = domainqcflag.QualityNotBad
				if summary.Bad {
					item.Quality = domainqcflag.QualityBad
				}
			}
			timeline.Segments = append(timeline.Segments, item)
		}
		result.Detectors = append(result.Detectors, timeline)
	}
	return result, nil
}

func (s *Service) queryDetectors(ctx context.Context, query EffectivePeriodsQuery) ([]ports.Detector, error) {
	if len(query.DetectorIDs) == 0 {
		runDetectors, err := s.catalog.ListRunDetectors(ctx, query.RunNumber)
		if err != nil {
			return nil, err
		}
		detectors := make([]ports.Detector, 0, len(runDetectors))
		for _, detector := range runDetectors {
			if domainqcflag.IsQCDetector(detector.Name) {
				detectors = append(detectors, detector)
			}
		}
		return detectors, nil
	}

	detectors := make([]ports.Detector, 0, len(query.DetectorIDs))
	seen := make(map[int64]struct{}, len(query.DetectorIDs))
	for _, id := range query.DetectorIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		detector, err := s.catalog.GetDetector(ctx, id)
		if err != nil {
			return nil, notFound(err, "detector", id)
		}
		detectors = append(detectors, detector)
	}
	return detectors, nil
}
