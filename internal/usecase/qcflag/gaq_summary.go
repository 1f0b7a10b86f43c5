package qcflag

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"qcflags/internal/bootstrap/logging"
	domainqcflag "qcflags/internal/domain/qcflag"
	"qcflags/internal/errs"
	"qcflags/internal/ports"
)

type GaqSummaryQuery struct {
	DataPassID int64
	RunNumber  int64
	// MCReproducibleAsNotBad overrides the configured default when set.
	MCReproducibleAsNotBad *bool
}

type GaqSummary struct {
	RunNumber              int64                         `json:"runNumber"`
	DataPassID             int64                         `json:"dataPassId"`
	Detectors              []ports.Detector              `json:"detectors"`
	MCReproducibleAsNotBad bool                          `json:"mcReproducibleAsNotBad"`
	Summary                domainqcflag.QualitySummary   `json:"summary"`
	Segments               []domainqcflag.QualitySegment `json:"segments"`
}

type DetectorSummaryQuery struct {
	RunNumber              int64
	DetectorID             int64
	DataPassID             *int64
	SimulationPassID       *int64
	MCReproducibleAsNotBad *bool
}

type DetectorSummary struct {
	RunNumber int64                         `json:"runNumber"`
	Detector  ports.Detector                `json:"detector"`
	Summary   domainqcflag.QualitySummary   `json:"summary"`
	Segments  []domainqcflag.QualitySegment `json:"segments"`
}

func (s *Service) mcReproducibleAsNotBad(override *bool) bool {
	if override != nil {
		return *override
	}
	return s.opts.MCReproducibleAsNotBad
}

// GetGaqSummary aggregates the GAQ detectors of a (data pass, run) pair with
// worst-of semantics. A run without GAQ detectors is undefined over its window.
func (s *Service) GetGaqSummary(ctx context.Context, query GaqSummaryQuery) (summary GaqSummary, err error) {
	if err := checkContext(ctx); err != nil {
		return GaqSummary{}, err
	}

	ctx = logging.WithAttrs(withComponent(ctx, "get_gaq_summary"),
		slog.Int64("run_number", query.RunNumber),
		slog.Int64("data_pass_id", query.DataPassID),
	)
	started := s.now()
	defer func() { s.observe(ctx, "get_gaq_summary", started, err) }()

	if query.RunNumber <= 0 {
		return GaqSummary{}, errs.Validation("runNumber", "must be positive")
	}
	if query.DataPassID <= 0 {
		return GaqSummary{}, errs.Validation("dataPassId", "must be positive")
	}
	mcr := s.mcReproducibleAsNotBad(query.MCReproducibleAsNotBad)

	generation, cacheable := s.runGeneration(ctx, query.RunNumber)
	cacheKey := gaqSummaryKey(generation, query.DataPassID, query.RunNumber, mcr)
	if cacheable {
		if cached, ok := s.cachedGaqSummary(ctx, cacheKey); ok {
			return cached, nil
		}
	}

	summary, err = s.computeGaqSummary(ctx, query.DataPassID, query.RunNumber, mcr)
	if err != nil {
		return GaqSummary{}, err
	}
	if cacheable {
		s.storeGaqSummaryBestEffort(ctx, cacheKey, summary)
	}
	return summary, nil
}

func (s *Service) computeGaqSummary(ctx context.Context, dataPassID int64, runNumber int64, mcr bool) (summary GaqSummary, err error) {
	err = s.uow.WithSnapshot(ctx, func(readCtx context.Context) error {
		var err error
		summary, err = s.aggregateGaq(readCtx, dataPassID, runNumber, mcr)
		return err
	})
	if err != nil {
		return GaqSummary{}, err
	}
	return summary, nil
}

func (s *Service) aggregateGaq(ctx context.Context, dataPassID int64, runNumber int64, mcr bool) (GaqSummary, error) {
	run, err := s.catalog.GetRun(ctx, runNumber)
	if err != nil {
		return GaqSummary{}, notFound(err, "run", runNumber)
	}
	if err := s.checkDataPassRun(ctx, dataPassID, runNumber); err != nil {
		return GaqSummary{}, err
	}

	detectors, err := s.gaq.ListGaqDetectors(ctx, dataPassID, runNumber)
	if err != nil {
		return GaqSummary{}, err
	}

	types := newFlagTypeLookup(s.flagTypes)
	timelines := make([]domainqcflag.DetectorPeriods, 0, len(detectors))
	flagInfo := make(map[int64]domainqcflag.FlagInfo)
	var inScope []domainqcflag.FlagInfo
	for _, detector := range detectors {
		passID := dataPassID
		snapshot, err := s.loadScope(ctx, domainqcflag.ScopeKey{
			RunNumber:  runNumber,
			DetectorID: detector.ID,
			DataPassID: &passID,
		}, types)
		if err != nil {
			return GaqSummary{}, err
		}
		timelines = append(timelines, domainqcflag.DetectorPeriods{DetectorID: detector.ID, Periods: snapshot.periods})
		for id, info := range snapshot.info {
			flagInfo[id] = info
		}
		inScope = append(inScope, snapshot.inScope...)
	}

	segments := domainqcflag.Aggregate(timelines, flagInfo, domainqcflag.AggregateOptions{MCReproducibleAsNotBad: mcr})
	return GaqSummary{
		RunNumber:              runNumber,
		DataPassID:             dataPassID,
		Detectors:              detectors,
		MCReproducibleAsNotBad: mcr,
		Summary:                domainqcflag.Summarize(run.Window(), segments, inScope),
		Segments:               segments,
	}, nil
}

// GetDataPassGaqSummaries computes the GAQ summary of every run of a data pass.
func (s *Service) GetDataPassGaqSummaries(ctx context.Context, dataPassID int64, mcReproducibleAsNotBad *bool) ([]GaqSummary, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if dataPassID <= 0 {
		return nil, errs.Validation("dataPassId", "must be positive")
	}
	if _, err := s.catalog.GetDataPass(ctx, dataPassID); err != nil {
		return nil, notFound(err, "data pass", dataPassID)
	}

	runNumbers, err := s.catalog.ListDataPassRuns(ctx, dataPassID)
	if err != nil {
		return nil, err
	}

	summaries := make([]GaqSummary, len(runNumbers))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.opts.SummaryConcurrency)
	for i, runNumber := range runNumbers {
		group.Go(func() error {
			summary, err := s.GetGaqSummary(groupCtx, GaqSummaryQuery{
				DataPassID:             dataPassID,
				RunNumber:              runNumber,
				MCReproducibleAsNotBad: mcReproducibleAsNotBad,
			})
			if err != nil {
				return errs.Wrapf(err, "summarize run %d", runNumber)
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// GetDetectorSummary reports the coverage of a single detector in one scope.
func (s *Service) GetDetectorSummary(ctx context.Context, query DetectorSummaryQuery) (DetectorSummary, error) {
	if err := checkContext(ctx); err != nil {
		return DetectorSummary{}, err
	}

	scope := domainqcflag.ScopeKey{
		RunNumber:        query.RunNumber,
		DetectorID:       query.DetectorID,
		DataPassID:       query.DataPassID,
		SimulationPassID: query.SimulationPassID,
	}
	var summary DetectorSummary
	err := s.uow.WithSnapshot(ctx, func(readCtx context.Context) error {
		var err error
		summary, err = s.detectorSummary(readCtx, scope, query.MCReproducibleAsNotBad)
		return err
	})
	if err != nil {
		return DetectorSummary{}, err
	}
	return summary, nil
}

func (s *Service) detectorSummary(ctx context.Context, scope domainqcflag.ScopeKey, mcr *bool) (DetectorSummary, error) {
	run, err := s.resolveScope(ctx, scope)
	if err != nil {
		return DetectorSummary{}, err
	}
	detector, err := s.catalog.GetDetector(ctx, scope.DetectorID)
	if err != nil {
		return DetectorSummary{}, notFound(err, "detector", scope.DetectorID)
	}

	snapshot, err := s.loadScope(ctx, scope, newFlagTypeLookup(s.flagTypes))
	if err != nil {
		return DetectorSummary{}, err
	}

	opts := domainqcflag.AggregateOptions{MCReproducibleAsNotBad: s.mcReproducibleAsNotBad(mcr)}
	segments := domainqcflag.Aggregate(
		[]domainqcflag.DetectorPeriods{{DetectorID: detector.ID, Periods: snapshot.periods}},
		snapshot.info,
		opts,
	)
	return DetectorSummary{
		RunNumber: scope.RunNumber,
		Detector:  detector,
		Summary:   domainqcflag.Summarize(run.Window(), segments, snapshot.inScope),
		Segments:  segments,
	}, nil
}
