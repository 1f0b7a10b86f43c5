package qcflag

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"

	"qcflags/internal/bootstrap/logging"
	domainqcflag "qcflags/internal/domain/qcflag"
	"qcflags/internal/errs"
	"qcflags/internal/ports"
)

// CatalogDocument is the YAML seed of runs, detectors and passes that flags
// refer to. Those entities are owned elsewhere; the import mirrors them.
type CatalogDocument struct {
	Detectors            []string             `yaml:"detectors"`
	Runs                 []CatalogRun         `yaml:"runs"`
	DataPasses           []CatalogPass        `yaml:"dataPasses"`
	SimulationPasses     []CatalogPass        `yaml:"simulationPasses"`
	FlagTypes            []CatalogFlagType    `yaml:"flagTypes"`
	SeedDefaultFlagTypes bool                 `yaml:"seedDefaultFlagTypes"`
	GaqDetectors         []CatalogGaqDetector `yaml:"gaqDetectors"`
}

type CatalogRun struct {
	RunNumber   int64    `yaml:"runNumber"`
	BeamType    string   `yaml:"beamType"`
	QcTimeStart *int64   `yaml:"qcTimeStart"`
	QcTimeEnd   *int64   `yaml:"qcTimeEnd"`
	Detectors   []string `yaml:"detectors"`
}

type CatalogPass struct {
	Name string  `yaml:"name"`
	Runs []int64 `yaml:"runs"`
}

type CatalogFlagType struct {
	Name           string `yaml:"name"`
	Method         string `yaml:"method"`
	Bad            bool   `yaml:"bad"`
	Color          string `yaml:"color"`
	MCReproducible bool   `yaml:"mcReproducible"`
}

// CatalogGaqDetector applies the beam-type preset when Detectors is empty.
type CatalogGaqDetector struct {
	DataPass  string   `yaml:"dataPass"`
	RunNumber int64    `yaml:"runNumber"`
	Detectors []string `yaml:"detectors"`
}

type ImportReport struct {
	Detectors        int     `json:"detectors"`
	RunsCreated      int     `json:"runsCreated"`
	RunsReconciled   []int64 `json:"runsReconciled"`
	DataPasses       int     `json:"dataPasses"`
	SimulationPasses int     `json:"simulationPasses"`
	FlagTypesCreated int     `json:"flagTypesCreated"`
	GaqDetectorSets  int     `json:"gaqDetectorSets"`
}

func ParseCatalog(data []byte) (CatalogDocument, error) {
	var doc CatalogDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return CatalogDocument{}, errs.Wrap(err, "parse catalog yaml")
	}
	return doc, nil
}

// ImportCatalog mirrors a catalog document. Runs that already exist keep their
// row; a changed QC window goes through UpdateRunBoundaries so their flags are
// reconciled.
func (s *Service) ImportCatalog(ctx context.Context, doc CatalogDocument, actorID int64) (ImportReport, error) {
	if err := checkContext(ctx); err != nil {
		return ImportReport{}, err
	}
	ctx = withComponent(ctx, "import_catalog")

	var (
		report      ImportReport
		windowMoves []UpdateRunBoundariesInput
		gaqSets     []CatalogGaqDetector
		trail       = &auditTrail{}
	)
	err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		detectorIDs := make(map[string]int64)
		ensureDetector := func(name string) (int64, error) {
			key := strings.ToUpper(strings.TrimSpace(name))
			if key == "" {
				return 0, errs.Validation("detectors", "detector name is required")
			}
			if id, ok := detectorIDs[key]; ok {
				return id, nil
			}
			detector, err := s.catalog.EnsureDetector(txCtx, key)
			if err != nil {
				return 0, err
			}
			detectorIDs[key] = detector.ID
			report.Detectors++
			return detector.ID, nil
		}

		for _, name := range doc.Detectors {
			if _, err := ensureDetector(name); err != nil {
				return err
			}
		}

		for _, run := range doc.Runs {
			if run.RunNumber <= 0 {
				return errs.Validation("runs.runNumber", "must be positive")
			}
			window := domainqcflag.Window{Start: run.QcTimeStart, End: run.QcTimeEnd}
			if err := window.Validate(); err != nil {
				return err
			}

			existing, err := s.catalog.GetRun(txCtx, run.RunNumber)
			switch {
			case err == nil:
				if !sameBound(existing.QcTimeStart, run.QcTimeStart) || !sameBound(existing.QcTimeEnd, run.QcTimeEnd) {
					windowMoves = append(windowMoves, UpdateRunBoundariesInput{
						RunNumber:   run.RunNumber,
						QcTimeStart: run.QcTimeStart,
						QcTimeEnd:   run.QcTimeEnd,
						ActorID:     actorID,
					})
				}
			case errors.Is(err, ports.ErrRecordNotFound):
				report.RunsCreated++
			default:
				return err
			}

			if err := s.catalog.UpsertRun(txCtx, ports.Run{
				RunNumber:   run.RunNumber,
				BeamType:    run.BeamType,
				QcTimeStart: run.QcTimeStart,
				QcTimeEnd:   run.QcTimeEnd,
			}); err != nil {
				return err
			}

			ids := make([]int64, 0, len(run.Detectors))
			for _, name := range run.Detectors {
				id, err := ensureDetector(name)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			if err := s.catalog.AddRunDetectors(txCtx, run.RunNumber, ids); err != nil {
				return err
			}
		}

		for _, pass := range doc.DataPasses {
			if strings.TrimSpace(pass.Name) == "" {
				return errs.Validation("dataPasses.name", "is required")
			}
			dataPass, err := s.catalog.EnsureDataPass(txCtx, pass.Name)
			if err != nil {
				return err
			}
			if err := s.catalog.AddDataPassRuns(txCtx, dataPass.ID, pass.Runs); err != nil {
				return err
			}
			report.DataPasses++
		}

		for _, pass := range doc.SimulationPasses {
			if strings.TrimSpace(pass.Name) == "" {
				return errs.Validation("simulationPasses.name", "is required")
			}
			simulationPass, err := s.catalog.EnsureSimulationPass(txCtx, pass.Name)
			if err != nil {
				return err
			}
			if err := s.catalog.AddSimulationPassRuns(txCtx, simulationPass.ID, pass.Runs); err != nil {
				return err
			}
			report.SimulationPasses++
		}

		seeds := make([]CatalogFlagType, 0, len(doc.FlagTypes)+len(domainqcflag.DefaultFlagTypes))
		if doc.SeedDefaultFlagTypes {
			for _, seed := range domainqcflag.DefaultFlagTypes {
				seeds = append(seeds, CatalogFlagType{
					Name:           seed.Name,
					Method:         seed.Method,
					Bad:            seed.Bad,
					MCReproducible: seed.MCReproducible,
				})
			}
		}
		seeds = append(seeds, doc.FlagTypes...)
		for _, seed := range seeds {
			created, err := s.seedFlagTypeTx(txCtx, seed)
			if err != nil {
				return err
			}
			if created {
				report.FlagTypesCreated++
			}
		}

		gaqSets = doc.GaqDetectors
		return s.appendAuditTx(txCtx, trail, ports.AuditEvent{Kind: EventCatalogImported, Actor: actorID}, map[string]any{
			"runs":       len(doc.Runs),
			"dataPasses": len(doc.DataPasses),
		})
	})
	if err != nil {
		return ImportReport{}, err
	}
	s.publishBestEffort(ctx, trail)

	for _, move := range windowMoves {
		if _, err := s.UpdateRunBoundaries(ctx, move); err != nil {
			return report, errs.Wrapf(err, "reconcile run %d", move.RunNumber)
		}
		report.RunsReconciled = append(report.RunsReconciled, move.RunNumber)
	}

	for _, set := range gaqSets {
		if err := s.importGaqDetectors(ctx, set, actorID); err != nil {
			return report, err
		}
		report.GaqDetectorSets++
	}

	logging.Info(ctx, "catalog imported",
		slog.Int("runs_created", report.RunsCreated),
		slog.Int("runs_reconciled", len(report.RunsReconciled)),
		slog.Int("flag_types_created", report.FlagTypesCreated),
	)
	return report, nil
}

func (s *Service) seedFlagTypeTx(txCtx context.Context, seed CatalogFlagType) (bool, error) {
	name := strings.TrimSpace(seed.Name)
	method := strings.TrimSpace(seed.Method)
	if name == "" || method == "" {
		return false, errs.Validation("flagTypes", "name and method are required")
	}

	_, found, err := s.flagTypes.FindFlagTypeConflict(txCtx, name, method, 0)
	if err != nil {
		return false, err
	}
	if found {
		return false, nil
	}

	color := strings.TrimSpace(seed.Color)
	if color == "" {
		color = domainqcflag.DefaultColor(seed.Bad)
	}
	_, err = s.flagTypes.CreateFlagType(txCtx, ports.FlagType{
		Name:           name,
		Method:         method,
		Bad:            seed.Bad,
		Color:          color,
		MCReproducible: seed.MCReproducible,
		CreatedAt:      s.nowMillis(),
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) importGaqDetectors(ctx context.Context, set CatalogGaqDetector, actorID int64) error {
	dataPass, err := s.catalog.EnsureDataPass(ctx, set.DataPass)
	if err != nil {
		return err
	}

	if len(set.Detectors) == 0 {
		_, err := s.UseDefaultGaqDetectors(ctx, dataPass.ID, set.RunNumber, actorID)
		return err
	}

	runDetectors, err := s.catalog.ListRunDetectors(ctx, set.RunNumber)
	if err != nil {
		return err
	}
	byName := make(map[string]int64, len(runDetectors))
	for _, detector := range runDetectors {
		byName[strings.ToUpper(detector.Name)] = detector.ID
	}
	ids := make([]int64, 0, len(set.Detectors))
	for _, name := range set.Detectors {
		id, ok := byName[strings.ToUpper(strings.TrimSpace(name))]
		if !ok {
			return errs.Validationf("gaqDetectors.detectors", "detector %s is not part of run %d", name, set.RunNumber)
		}
		ids = append(ids, id)
	}

	_, err = s.SetGaqDetectors(ctx, SetGaqDetectorsInput{
		DataPassID:  dataPass.ID,
		RunNumber:   set.RunNumber,
		DetectorIDs: ids,
		ActorID:     actorID,
	})
	return err
}

func sameBound(a *int64, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
