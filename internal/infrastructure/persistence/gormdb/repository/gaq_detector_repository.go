package repository

import (
	"context"

	"gorm.io/gorm"

	"qcflags/internal/errs"
	"qcflags/internal/infrastructure/persistence/gormdb/model"
	"qcflags/internal/ports"
)

type GaqDetectorRepository struct {
	db *gorm.DB
}

var _ ports.GaqDetectorRepository = (*GaqDetectorRepository)(nil)

func NewGaqDetectorRepository(db *gorm.DB) *GaqDetectorRepository {
	return &GaqDetectorRepository{db: db}
}

func (r *GaqDetectorRepository) ListGaqDetectors(ctx context.Context, dataPassID int64, runNumber int64) ([]ports.Detector, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []model.Detector
	if err := db.Table("detectors").
		Joins("JOIN global_aggregated_quality_detectors gaq ON gaq.detector_id = detectors.id").
		Where("gaq.data_pass_id = ? AND gaq.run_number = ?", dataPassID, runNumber).
		Order("detectors.name asc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query gaq detectors")
	}
	return mapDetectors(rows), nil
}

// ReplaceGaqDetectors swaps the whole detector set of the pair.
func (r *GaqDetectorRepository) ReplaceGaqDetectors(ctx context.Context, dataPassID int64, runNumber int64, detectorIDs []int64) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	if err := db.Where("data_pass_id = ? AND run_number = ?", dataPassID, runNumber).
		Delete(&model.GaqDetector{}).Error; err != nil {
		return errs.Wrap(err, "delete gaq detectors")
	}
	if len(detectorIDs) == 0 {
		return nil
	}

	rows := make([]model.GaqDetector, 0, len(detectorIDs))
	for _, id := range detectorIDs {
		rows = append(rows, model.GaqDetector{DataPassID: dataPassID, RunNumber: runNumber, DetectorID: id})
	}
	if err := db.Create(&rows).Error; err != nil {
		return errs.Wrap(err, "insert gaq detectors")
	}
	return nil
}
