package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"qcflags/internal/domain/qcflag"
	"qcflags/internal/errs"
	"qcflags/internal/infrastructure/persistence/gormdb/model"
	"qcflags/internal/ports"
)

type CatalogRepository struct {
	db *gorm.DB
}

var _ ports.CatalogRepository = (*CatalogRepository)(nil)

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) GetRun(ctx context.Context, runNumber int64) (ports.Run, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.Run{}, err
	}

	var row model.Run
	if err := db.Where("run_number = ?", runNumber).Take(&row).Error; err != nil {
		return ports.Run{}, takeErr(err, "query run")
	}
	return ports.Run{
		RunNumber:   row.RunNumber,
		QcTimeStart: row.QcTimeStart,
		QcTimeEnd:   row.QcTimeEnd,
		BeamType:    row.BeamType,
	}, nil
}

func (r *CatalogRepository) UpsertRun(ctx context.Context, run ports.Run) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	row := model.Run{
		RunNumber:   run.RunNumber,
		QcTimeStart: run.QcTimeStart,
		QcTimeEnd:   run.QcTimeEnd,
		BeamType:    strings.TrimSpace(run.BeamType),
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_number"}},
		DoUpdates: clause.AssignmentColumns([]string{"beam_type", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert run")
	}
	return nil
}

func (r *CatalogRepository) UpdateRunWindow(ctx context.Context, runNumber int64, window qcflag.Window) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	result := db.Model(&model.Run{}).
		Where("run_number = ?", runNumber).
		Updates(map[string]any{
			"qc_time_start": window.Start,
			"qc_time_end":   window.End,
		})
	if result.Error != nil {
		return errs.Wrap(result.Error, "update run qc window")
	}
	if result.RowsAffected == 0 {
		return ports.ErrRecordNotFound
	}
	return nil
}

func (r *CatalogRepository) GetDetector(ctx context.Context, detectorID int64) (ports.Detector, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.Detector{}, err
	}

	var row model.Detector
	if err := db.Where("id = ?", detectorID).Take(&row).Error; err != nil {
		return ports.Detector{}, takeErr(err, "query detector")
	}
	return ports.Detector{ID: row.ID, Name: row.Name}, nil
}

func (r *CatalogRepository) EnsureDetector(ctx context.Context, name string) (ports.Detector, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.Detector{}, err
	}

	row := model.Detector{Name: strings.TrimSpace(name)}
	if err := db.Where("name = ?", row.Name).FirstOrCreate(&row).Error; err != nil {
		return ports.Detector{}, errs.Wrap(err, "ensure detector")
	}
	return ports.Detector{ID: row.ID, Name: row.Name}, nil
}

func (r *CatalogRepository) ListRunDetectors(ctx context.Context, runNumber int64) ([]ports.Detector, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []model.Detector
	if err := db.Table("detectors").
		Joins("JOIN run_detectors ON run_detectors.detector_id = detectors.id").
		Where("run_detectors.run_number = ?", runNumber).
		Order("detectors.name asc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query run detectors")
	}
	return mapDetectors(rows), nil
}

func (r *CatalogRepository) AddRunDetectors(ctx context.Context, runNumber int64, detectorIDs []int64) error {
	if len(detectorIDs) == 0 {
		return nil
	}
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	rows := make([]model.RunDetector, 0, len(detectorIDs))
	for _, id := range detectorIDs {
		rows = append(rows, model.RunDetector{RunNumber: runNumber, DetectorID: id})
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
		return errs.Wrap(err, "insert run detectors")
	}
	return nil
}

func (r *CatalogRepository) GetDataPass(ctx context.Context, dataPassID int64) (ports.DataPass, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.DataPass{}, err
	}

	var row model.DataPass
	if err := db.Where("id = ?", dataPassID).Take(&row).Error; err != nil {
		return ports.DataPass{}, takeErr(err, "query data pass")
	}
	return ports.DataPass{ID: row.ID, Name: row.Name}, nil
}

func (r *CatalogRepository) EnsureDataPass(ctx context.Context, name string) (ports.DataPass, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.DataPass{}, err
	}

	row := model.DataPass{Name: strings.TrimSpace(name)}
	if err := db.Where("name = ?", row.Name).FirstOrCreate(&row).Error; err != nil {
		return ports.DataPass{}, errs.Wrap(err, "ensure data pass")
	}
	return ports.DataPass{ID: row.ID, Name: row.Name}, nil
}

func (r *CatalogRepository) AddDataPassRuns(ctx context.Context, dataPassID int64, runNumbers []int64) error {
	if len(runNumbers) == 0 {
		return nil
	}
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	rows := make([]model.DataPassRun, 0, len(runNumbers))
	for _, runNumber := range runNumbers {
		rows = append(rows, model.DataPassRun{DataPassID: dataPassID, RunNumber: runNumber})
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
		return errs.Wrap(err, "insert data pass runs")
	}
	return nil
}

func (r *CatalogRepository) ListDataPassRuns(ctx context.Context, dataPassID int64) ([]int64, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var runNumbers []int64
	if err := db.Model(&model.DataPassRun{}).
		Where("data_pass_id = ?", dataPassID).
		Order("run_number asc").
		Pluck("run_number", &runNumbers).Error; err != nil {
		return nil, errs.Wrap(err, "query data pass runs")
	}
	return runNumbers, nil
}

func (r *CatalogRepository) DataPassIncludesRun(ctx context.Context, dataPassID int64, runNumber int64) (bool, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return false, err
	}

	var count int64
	if err := db.Model(&model.DataPassRun{}).
		Where("data_pass_id = ? AND run_number = ?", dataPassID, runNumber).
		Count(&count).Error; err != nil {
		return false, errs.Wrap(err, "count data pass run")
	}
	return count > 0, nil
}

func (r *CatalogRepository) GetSimulationPass(ctx context.Context, simulationPassID int64) (ports.SimulationPass, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.SimulationPass{}, err
	}

	var row model.SimulationPass
	if err := db.Where("id = ?", simulationPassID).Take(&row).Error; err != nil {
		return ports.SimulationPass{}, takeErr(err, "query simulation pass")
	}
	return ports.SimulationPass{ID: row.ID, Name: row.Name}, nil
}

func (r *CatalogRepository) EnsureSimulationPass(ctx context.Context, name string) (ports.SimulationPass, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.SimulationPass{}, err
	}

	row := model.SimulationPass{Name: strings.TrimSpace(name)}
	if err := db.Where("name = ?", row.Name).FirstOrCreate(&row).Error; err != nil {
		return ports.SimulationPass{}, errs.Wrap(err, "ensure simulation pass")
	}
	return ports.SimulationPass{ID: row.ID, Name: row.Name}, nil
}

func (r *CatalogRepository) AddSimulationPassRuns(ctx context.Context, simulationPassID int64, runNumbers []int64) error {
	if len(runNumbers) == 0 {
		return nil
	}
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	rows := make([]model.SimulationPassRun, 0, len(runNumbers))
	for _, runNumber := range runNumbers {
		rows = append(rows, model.SimulationPassRun{SimulationPassID: simulationPassID, RunNumber: runNumber})
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
		return errs.Wrap(err, "insert simulation pass runs")
	}
	return nil
}

func (r *CatalogRepository) ListSimulationPassRuns(ctx context.Context, simulationPassID int64) ([]int64, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var runNumbers []int64
	if err := db.Model(&model.SimulationPassRun{}).
		Where("simulation_pass_id = ?", simulationPassID).
		Order("run_number asc").
		Pluck("run_number", &runNumbers).Error; err != nil {
		return nil, errs.Wrap(err, "query simulation pass runs")
	}
	return runNumbers, nil
}

func (r *CatalogRepository) SimulationPassIncludesRun(ctx context.Context, simulationPassID int64, runNumber int64) (bool, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return false, err
	}

	var count int64
	if err := db.Model(&model.SimulationPassRun{}).
		Where("simulation_pass_id = ? AND run_number = ?", simulationPassID, runNumber).
		Count(&count).Error; err != nil {
		return false, errs.Wrap(err, "count simulation pass run")
	}
	return count > 0, nil
}

func mapDetectors(rows []model.Detector) []ports.Detector {
	items := make([]ports.Detector, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.Detector{ID: row.ID, Name: row.Name})
	}
	return items
}
