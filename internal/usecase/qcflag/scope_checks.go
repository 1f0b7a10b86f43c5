package qcflag

import (
	"context"

	domainqcflag "qcflags/internal/domain/qcflag"
	"qcflags/internal/errs"
	"qcflags/internal/ports"
)

// resolveScope checks that every entity a scope refers to exists and that
// they belong together. It returns the scope's run.
func (s *Service) resolveScope(ctx context.Context, scope domainqcflag.ScopeKey) (ports.Run, error) {
	if err := scope.Validate(); err != nil {
		return ports.Run{}, err
	}

	run, err := s.catalog.GetRun(ctx, scope.RunNumber)
	if err != nil {
		return ports.Run{}, notFound(err, "run", scope.RunNumber)
	}

	detector, err := s.catalog.GetDetector(ctx, scope.DetectorID)
	if err != nil {
		return ports.Run{}, notFound(err, "detector", scope.DetectorID)
	}
	if !domainqcflag.IsQCDetector(detector.Name) {
		return ports.Run{}, errs.Validationf("detectorId", "detector %s cannot be flagged", detector.Name)
	}

	runDetectors, err := s.catalog.ListRunDetectors(ctx, scope.RunNumber)
	if err != nil {
		return ports.Run{}, err
	}
	if !containsDetector(runDetectors, scope.DetectorID) {
		return ports.Run{}, errs.Validationf("detectorId", "detector %s is not part of run %d", detector.Name, scope.RunNumber)
	}

	if scope.DataPassID != nil {
		if err := s.checkDataPassRun(ctx, *scope.DataPassID, scope.RunNumber); err != nil {
			return ports.Run{}, err
		}
	}
	if scope.SimulationPassID != nil {
		if _, err := s.catalog.GetSimulationPass(ctx, *scope.SimulationPassID); err != nil {
			return ports.Run{}, notFound(err, "simulation pass", *scope.SimulationPassID)
		}
		included, err := s.catalog.SimulationPassIncludesRun(ctx, *scope.SimulationPassID, scope.RunNumber)
		if err != nil {
			return ports.Run{}, err
		}
		if !included {
			return ports.Run{}, errs.Validationf("simulationPassId", "simulation pass %d does not include run %d", *scope.SimulationPassID, scope.RunNumber)
		}
	}

	return run, nil
}

func (s *Service) checkDataPassRun(ctx context.Context, dataPassID int64, runNumber int64) error {
	if _, err := s.catalog.GetDataPass(ctx, dataPassID); err != nil {
		return notFound(err, "data pass", dataPassID)
	}
	included, err := s.catalog.DataPassIncludesRun(ctx, dataPassID, runNumber)
	if err != nil {
		return err
	}
	if !included {
		return errs.Validationf("dataPassId", "data pass %d does not include run %d", dataPassID, runNumber)
	}
	return nil
}

func containsDetector(detectors []ports.Detector, detectorID int64) bool {
	for _, item := range detectors {
		if item.ID == detectorID {
			return true
		}
	}
	return false
}

func scopeLocks(scope domainqcflag.ScopeKey) []ports.LockRequest {
	return []ports.LockRequest{
		{Key: domainqcflag.RunLockKey(scope.RunNumber), Mode: ports.LockShared},
		{Key: scope.LockKey(), Mode: ports.LockExclusive},
	}
}
