package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"qcflags/internal/errs"
	"qcflags/internal/infrastructure/persistence/gormdb/model"
	"qcflags/internal/ports"
)

type FlagTypeRepository struct {
	db *gorm.DB
}

var _ ports.FlagTypeRepository = (*FlagTypeRepository)(nil)

func NewFlagTypeRepository(db *gorm.DB) *FlagTypeRepository {
	return &FlagTypeRepository{db: db}
}

func (r *FlagTypeRepository) CreateFlagType(ctx context.Context, flagType ports.FlagType) (ports.FlagType, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.FlagType{}, err
	}

	row := model.QcFlagType{
		Name:           flagType.Name,
		Method:         flagType.Method,
		Bad:            flagType.Bad,
		Color:          flagType.Color,
		MCReproducible: flagType.MCReproducible,
		ArchivedAt:     flagType.ArchivedAt,
		CreatedAt:      flagType.CreatedAt,
	}
	if err := db.Create(&row).Error; err != nil {
		return ports.FlagType{}, errs.Wrap(err, "insert flag type")
	}
	return mapFlagType(row), nil
}

func (r *FlagTypeRepository) GetFlagType(ctx context.Context, flagTypeID int64) (ports.FlagType, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.FlagType{}, err
	}

	var row model.QcFlagType
	if err := db.Where("id = ?", flagTypeID).Take(&row).Error; err != nil {
		return ports.FlagType{}, takeErr(err, "query flag type")
	}
	return mapFlagType(row), nil
}

// FindFlagTypeConflict returns another flag type sharing the name or the method, if any.
func (r *FlagTypeRepository) FindFlagTypeConflict(ctx context.Context, name string, method string, excludeID int64) (ports.FlagType, bool, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.FlagType{}, false, err
	}

	var row model.QcFlagType
	if err := db.Where("(name = ? OR method = ?) AND id <> ?", name, method, excludeID).Order("id asc").Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.FlagType{}, false, nil
		}
		return ports.FlagType{}, false, errs.Wrap(err, "query flag type conflict")
	}
	return mapFlagType(row), true, nil
}

func (r *FlagTypeRepository) ListFlagTypes(ctx context.Context) ([]ports.FlagType, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []model.QcFlagType
	if err := db.Order("id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query flag types")
	}

	items := make([]ports.FlagType, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapFlagType(row))
	}
	return items, nil
}

func (r *FlagTypeRepository) UpdateFlagType(ctx context.Context, flagType ports.FlagType) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	result := db.Model(&model.QcFlagType{}).
		Where("id = ?", flagType.ID).
		Updates(map[string]any{
			"name":   flagType.Name,
			"method": flagType.Method,
			"bad":    flagType.Bad,
			"color":  flagType.Color,
		})
	if result.Error != nil {
		return errs.Wrap(result.Error, "update flag type")
	}
	if result.RowsAffected == 0 {
		return ports.ErrRecordNotFound
	}
	return nil
}

// ArchiveFlagType keeps the first archival timestamp when called again.
func (r *FlagTypeRepository) ArchiveFlagType(ctx context.Context, flagTypeID int64, archivedAt int64) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	var row model.QcFlagType
	if err := db.Where("id = ?", flagTypeID).Take(&row).Error; err != nil {
		return takeErr(err, "query flag type")
	}
	if row.ArchivedAt != nil {
		return nil
	}
	if err := db.Model(&model.QcFlagType{}).
		Where("id = ?", flagTypeID).
		Update("archived_at", archivedAt).Error; err != nil {
		return errs.Wrap(err, "archive flag type")
	}
	return nil
}

func mapFlagType(row model.QcFlagType) ports.FlagType {
	return ports.FlagType{
		ID:             row.ID,
		Name:           row.Name,
		Method:         row.Method,
		Bad:            row.Bad,
		Color:          row.Color,
		MCReproducible: row.MCReproducible,
		ArchivedAt:     row.ArchivedAt,
		CreatedAt:      row.CreatedAt,
	}
}
