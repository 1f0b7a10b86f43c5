package qcflag

import (
	"context"
	"log/slog"
	"strings"

	"qcflags/internal/bootstrap/logging"
	domainqcflag "qcflags/internal/domain/qcflag"
	"qcflags/internal/errs"
	"qcflags/internal/ports"
)

type SetGaqDetectorsInput struct {
	DataPassID  int64
	RunNumber   int64
	DetectorIDs []int64
	ActorID     int64
}

// ListGaqDetectors returns the detectors aggregated for a (data pass, run) pair.
func (s *Service) ListGaqDetectors(ctx context.Context, dataPassID int64, runNumber int64) ([]ports.Detector, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if _, err := s.catalog.GetRun(ctx, runNumber); err != nil {
		return nil, notFound(err, "run", runNumber)
	}
	if err := s.checkDataPassRun(ctx, dataPassID, runNumber); err != nil {
		return nil, err
	}
	return s.gaq.ListGaqDetectors(ctx, dataPassID, runNumber)
}

// SetGaqDetectors replaces the GAQ detector set of a (data pass, run) pair.
// Every detector must be a QC detector of the run.
func (s *Service) SetGaqDetectors(ctx context.Context, input SetGaqDetectorsInput) (detectors []ports.Detector, err error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	ctx = logging.WithAttrs(withComponent(ctx, "set_gaq_detectors"),
		slog.Int64("run_number", input.RunNumber),
		slog.Int64("data_pass_id", input.DataPassID),
	)
	started := s.now()
	defer func() { s.observe(ctx, "set_gaq_detectors", started, err) }()

	trail := &auditTrail{}
	err = s.uow.WithTx(ctx, func(txCtx context.Context) error {
		runDetectors, err := s.gaqCandidatesTx(txCtx, input.DataPassID, input.RunNumber)
		if err != nil {
			return err
		}

		byID := make(map[int64]ports.Detector, len(runDetectors))
		for _, detector := range runDetectors {
			byID[detector.ID] = detector
		}
		ids := make([]int64, 0, len(input.DetectorIDs))
		seen := make(map[int64]struct{}, len(input.DetectorIDs))
		for _, id := range input.DetectorIDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if _, ok := byID[id]; !ok {
				return errs.Validationf("detectorIds", "detector %d is not a QC detector of run %d", id, input.RunNumber)
			}
			ids = append(ids, id)
		}

		detectors, err = s.replaceGaqDetectorsTx(txCtx, trail, input.DataPassID, input.RunNumber, ids, input.ActorID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidateRunBestEffort(ctx, input.RunNumber)
	s.publishBestEffort(ctx, trail)
	logging.Info(ctx, "gaq detectors set", slog.Int("detectors", len(detectors)))
	return detectors, nil
}

// UseDefaultGaqDetectors applies the beam-type preset, restricted to the
// detectors that took part in the run.
func (s *Service) UseDefaultGaqDetectors(ctx context.Context, dataPassID int64, runNumber int64, actorID int64) (detectors []ports.Detector, err error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	ctx = logging.WithAttrs(withComponent(ctx, "use_default_gaq_detectors"),
		slog.Int64("run_number", runNumber),
		slog.Int64("data_pass_id", dataPassID),
	)
	started := s.now()
	defer func() { s.observe(ctx, "use_default_gaq_detectors", started, err) }()

	trail := &auditTrail{}
	err = s.uow.WithTx(ctx, func(txCtx context.Context) error {
		runDetectors, err := s.gaqCandidatesTx(txCtx, dataPassID, runNumber)
		if err != nil {
			return err
		}
		run, err := s.catalog.GetRun(txCtx, runNumber)
		if err != nil {
			return notFound(err, "run", runNumber)
		}

		byName := make(map[string]ports.Detector, len(runDetectors))
		for _, detector := range runDetectors {
			byName[strings.ToUpper(detector.Name)] = detector
		}
		var ids []int64
		for _, name := range s.opts.GaqPresets.DetectorsFor(run.BeamType) {
			if detector, ok := byName[strings.ToUpper(name)]; ok {
				ids = append(ids, detector.ID)
			}
		}

		detectors, err = s.replaceGaqDetectorsTx(txCtx, trail, dataPassID, runNumber, ids, actorID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidateRunBestEffort(ctx, runNumber)
	s.publishBestEffort(ctx, trail)
	logging.Info(ctx, "default gaq detectors applied", slog.Int("detectors", len(detectors)))
	return detectors, nil
}

// gaqCandidatesTx validates the pair and returns the QC detectors of the run.
func (s *Service) gaqCandidatesTx(txCtx context.Context, dataPassID int64, runNumber int64) ([]ports.Detector, error) {
	if runNumber <= 0 {
		return nil, errs.Validation("runNumber", "must be positive")
	}
	if dataPassID <= 0 {
		return nil, errs.Validation("dataPassId", "must be positive")
	}
	if _, err := s.catalog.GetRun(txCtx, runNumber); err != nil {
		return nil, notFound(err, "run", runNumber)
	}
	if err := s.checkDataPassRun(txCtx, dataPassID, runNumber); err != nil {
		return nil, err
	}

	runDetectors, err := s.catalog.ListRunDetectors(txCtx, runNumber)
	if err != nil {
		return nil, err
	}
	candidates := make([]ports.Detector, 0, len(runDetectors))
	for _, detector := range runDetectors {
		if domainqcflag.IsQCDetector(detector.Name) {
			candidates = append(candidates, detector)
		}
	}
	return candidates, nil
}

func (s *Service) replaceGaqDetectorsTx(txCtx context.Context, trail *auditTrail, dataPassID int64, runNumber int64, ids []int64, actorID int64) ([]ports.Detector, error) {
	if err := s.gaq.ReplaceGaqDetectors(txCtx, dataPassID, runNumber, ids); err != nil {
		return nil, err
	}
	detectors, err := s.gaq.ListGaqDetectors(txCtx, dataPassID, runNumber)
	if err != nil {
		return nil, err
	}
	if err := s.appendAuditTx(txCtx, trail, ports.AuditEvent{
		Kind:      EventGaqDetectorsSet,
		RunNumber: runNumber,
		Scope:     domainqcflag.ScopeKey{RunNumber: runNumber, DataPassID: &dataPassID}.PassScope(),
		Actor:     actorID,
	}, map[string]any{"dataPassId": dataPassID, "detectors": detectors}); err != nil {
		return nil, err
	}
	return detectors, nil
}
