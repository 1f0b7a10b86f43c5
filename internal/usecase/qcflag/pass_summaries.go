package qcflag

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"qcflags/internal/bootstrap/logging"
	domainqcflag "qcflags/internal/domain/qcflag"
	"qcflags/internal/errs"
)

type PassDetectorSummariesQuery struct {
	DataPassID             *int64
	SimulationPassID       *int64
	MCReproducibleAsNotBad *bool
}

// PassDetectorSummaries maps run number, then detector id, to the coverage of
// that detector in the pass. Detectors without live flags are left out.
type PassDetectorSummaries map[int64]map[int64]domainqcflag.QualitySummary

// GetPassDetectorSummaries summarizes every flagged detector of every run of a
// data pass or a simulation pass. Runs are summarized in parallel.
func (s *Service) GetPassDetectorSummaries(ctx context.Context, query PassDetectorSummariesQuery) (PassDetectorSummaries, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	var runNumbers []int64
	switch {
	case query.DataPassID != nil && query.SimulationPassID != nil:
		return nil, errs.Validation("simulationPassId", "a flag belongs to a data pass or a simulation pass, not both")
	case query.DataPassID != nil:
		if _, err := s.catalog.GetDataPass(ctx, *query.DataPassID); err != nil {
			return nil, notFound(err, "data pass", *query.DataPassID)
		}
		runs, err := s.catalog.ListDataPassRuns(ctx, *query.DataPassID)
		if err != nil {
			return nil, err
		}
		runNumbers = runs
	case query.SimulationPassID != nil:
		if _, err := s.catalog.GetSimulationPass(ctx, *query.SimulationPassID); err != nil {
			return nil, notFound(err, "simulation pass", *query.SimulationPassID)
		}
		runs, err := s.catalog.ListSimulationPassRuns(ctx, *query.SimulationPassID)
		if err != nil {
			return nil, err
		}
		runNumbers = runs
	default:
		return nil, errs.Validation("dataPassId", "a data pass or a simulation pass is required")
	}

	ctx = logging.WithAttrs(withComponent(ctx, "get_pass_detector_summaries"), slog.Int("runs", len(runNumbers)))
	mcr := s.mcReproducibleAsNotBad(query.MCReproducibleAsNotBad)

	var mu sync.Mutex
	summaries := make(PassDetectorSummaries, len(runNumbers))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.opts.SummaryConcurrency)
	for _, runNumber := range runNumbers {
		group.Go(func() error {
			var perDetector map[int64]domainqcflag.QualitySummary
			err := s.uow.WithSnapshot(groupCtx, func(readCtx context.Context) error {
				var err error
				perDetector, err = s.runDetectorSummaries(readCtx, runNumber, query.DataPassID, query.SimulationPassID, mcr)
				return err
			})
			if err != nil {
				return errs.Wrapf(err, "summarize run %d", runNumber)
			}
			if len(perDetector) == 0 {
				return nil
			}
			mu.Lock()
			summaries[runNumber] = perDetector
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

func (s *Service) runDetectorSummaries(ctx context.Context, runNumber int64, dataPassID *int64, simulationPassID *int64, mcr bool) (map[int64]domainqcflag.QualitySummary, error) {
	run, err := s.catalog.GetRun(ctx, runNumber)
	if err != nil {
		return nil, notFound(err, "run", runNumber)
	}
	detectors, err := s.catalog.ListRunDetectors(ctx, runNumber)
	if err != nil {
		return nil, err
	}

	types := newFlagTypeLookup(s.flagTypes)
	opts := domainqcflag.AggregateOptions{MCReproducibleAsNotBad: mcr}
	out := make(map[int64]domainqcflag.QualitySummary)
	for _, detector := range detectors {
		if !domainqcflag.IsQCDetector(detector.Name) {
			continue
		}
		snapshot, err := s.loadScope(ctx, domainqcflag.ScopeKey{
			RunNumber:        runNumber,
			DetectorID:       detector.ID,
			DataPassID:       dataPassID,
			SimulationPassID: simulationPassID,
		}, types)
		if err != nil {
			return nil, err
		}
		if len(snapshot.flags) == 0 {
			continue
		}
		segments := domainqcflag.Aggregate(
			[]domainqcflag.DetectorPeriods{{DetectorID: detector.ID, Periods: snapshot.periods}},
			snapshot.info,
			opts,
		)
		out[detector.ID] = domainqcflag.Summarize(run.Window(), segments, snapshot.inScope)
	}
	return out, nil
}
