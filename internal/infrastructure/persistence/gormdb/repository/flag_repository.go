package repository

import (
	"context"

	"gorm.io/gorm"

	"qcflags/internal/domain/qcflag"
	"qcflags/internal/errs"
	"qcflags/internal/infrastructure/persistence/gormdb/model"
	"qcflags/internal/ports"
)

const (
	flagsTable   = "quality_control_flags"
	periodsTable = "quality_control_flag_effective_periods"
)

type FlagRepository struct {
	db *gorm.DB
}

var _ ports.FlagRepository = (*FlagRepository)(nil)

func NewFlagRepository(db *gorm.DB) *FlagRepository {
	return &FlagRepository{db: db}
}

func (r *FlagRepository) CreateFlag(ctx context.Context, flag ports.Flag) (ports.Flag, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.Flag{}, err
	}

	row := model.QcFlag{
		FlagTypeID:       flag.FlagTypeID,
		RunNumber:        flag.Scope.RunNumber,
		DetectorID:       flag.Scope.DetectorID,
		DataPassID:       flag.Scope.DataPassID,
		SimulationPassID: flag.Scope.SimulationPassID,
		FromMs:           flag.Period.From,
		ToMs:             flag.Period.To,
		Comment:          flag.Comment,
		Origin:           flag.Origin,
		CreatedByID:      flag.CreatedByID,
		CreatedAt:        flag.CreatedAt,
	}
	if err := db.Create(&row).Error; err != nil {
		return ports.Flag{}, errs.Wrap(err, "insert flag")
	}
	return mapFlag(row), nil
}

func (r *FlagRepository) GetFlag(ctx context.Context, flagID int64) (ports.Flag, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.Flag{}, err
	}

	var row model.QcFlag
	if err := db.Where("id = ?", flagID).Take(&row).Error; err != nil {
		return ports.Flag{}, takeErr(err, "query flag")
	}
	return mapFlag(row), nil
}

func (r *FlagRepository) ListScopeFlags(ctx context.Context, scope qcflag.ScopeKey) ([]ports.Flag, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	query := db.Table(flagsTable).
		Where(flagsTable+".run_number = ? AND "+flagsTable+".detector_id = ?", scope.RunNumber, scope.DetectorID).
		Where(flagsTable+".deleted = ?", false)
	query = wherePassScope(query, flagsTable, scope)

	var rows []model.QcFlag
	if err := query.Order(flagsTable + ".id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query scope flags")
	}
	return mapFlags(rows), nil
}

func (r *FlagRepository) PageScopeFlags(ctx context.Context, scope qcflag.ScopeKey, limit int, offset int) ([]ports.Flag, int64, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, 0, err
	}

	scoped := func() *gorm.DB {
		query := db.Table(flagsTable).
			Where(flagsTable+".run_number = ? AND "+flagsTable+".detector_id = ?", scope.RunNumber, scope.DetectorID).
			Where(flagsTable+".deleted = ?", false)
		return wherePassScope(query, flagsTable, scope)
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, errs.Wrap(err, "count scope flags")
	}

	var rows []model.QcFlag
	if err := scoped().Order(flagsTable + ".id desc").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, errs.Wrap(err, "page scope flags")
	}
	return mapFlags(rows), total, nil
}

func (r *FlagRepository) ListRunFlags(ctx context.Context, runNumber int64) ([]ports.Flag, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []model.QcFlag
	if err := db.Where("run_number = ? AND deleted = ?", runNumber, false).
		Order("id asc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query run flags")
	}
	return mapFlags(rows), nil
}

func (r *FlagRepository) ListFlagTypeRuns(ctx context.Context, flagTypeID int64) ([]int64, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var runNumbers []int64
	if err := db.Table(flagsTable).
		Where("flag_type_id = ? AND deleted = ?", flagTypeID, false).
		Distinct().
		Order("run_number asc").
		Pluck("run_number", &runNumbers).Error; err != nil {
		return nil, errs.Wrap(err, "query flag type runs")
	}
	return runNumbers, nil
}

func (r *FlagRepository) UpdateFlagPeriod(ctx context.Context, flagID int64, period qcflag.Period) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	if err := db.Model(&model.QcFlag{}).
		Where("id = ?", flagID).
		Updates(map[string]any{"from_ms": period.From, "to_ms": period.To}).Error; err != nil {
		return errs.Wrap(err, "update flag period")
	}
	return nil
}

func (r *FlagRepository) MarkFlagsDeleted(ctx context.Context, flagIDs []int64) error {
	if len(flagIDs) == 0 {
		return nil
	}
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	if err := db.Model(&model.QcFlag{}).
		Where("id IN ?", flagIDs).
		Update("deleted", true).Error; err != nil {
		return errs.Wrap(err, "mark flags deleted")
	}
	return nil
}

func (r *FlagRepository) ListScopePeriods(ctx context.Context, scope qcflag.ScopeKey) ([]qcflag.EffectivePeriod, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	query := db.Table(periodsTable).
		Select(periodsTable+".*").
		Joins("JOIN "+flagsTable+" ON "+flagsTable+".id = "+periodsTable+".flag_id").
		Where(flagsTable+".run_number = ? AND "+flagsTable+".detector_id = ?", scope.RunNumber, scope.DetectorID).
		Where(flagsTable+".deleted = ?", false)
	query = wherePassScope(query, flagsTable, scope)

	var rows []model.QcFlagEffectivePeriod
	if err := query.Order(periodsTable + ".id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query scope periods")
	}
	return mapPeriods(rows), nil
}

func (r *FlagRepository) ListRunPeriods(ctx context.Context, runNumber int64) ([]qcflag.EffectivePeriod, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []model.QcFlagEffectivePeriod
	if err := db.Table(periodsTable).
		Select(periodsTable+".*").
		Joins("JOIN "+flagsTable+" ON "+flagsTable+".id = "+periodsTable+".flag_id").
		Where(flagsTable+".run_number = ? AND "+flagsTable+".deleted = ?", runNumber, false).
		Order(periodsTable + ".id asc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query run periods")
	}
	return mapPeriods(rows), nil
}

func (r *FlagRepository) ListFlagPeriods(ctx context.Context, flagID int64) ([]qcflag.EffectivePeriod, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []model.QcFlagEffectivePeriod
	if err := db.Where("flag_id = ?", flagID).Order("id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query flag periods")
	}
	return mapPeriods(rows), nil
}

func (r *FlagRepository) CreatePeriods(ctx context.Context, periods []qcflag.EffectivePeriod) ([]qcflag.EffectivePeriod, error) {
	if len(periods) == 0 {
		return nil, nil
	}
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	rows := make([]model.QcFlagEffectivePeriod, 0, len(periods))
	for _, item := range periods {
		rows = append(rows, model.QcFlagEffectivePeriod{
			FlagID: item.FlagID,
			FromMs: item.From,
			ToMs:   item.To,
		})
	}
	if err := db.Create(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "insert effective periods")
	}
	return mapPeriods(rows), nil
}

func (r *FlagRepository) UpdatePeriods(ctx context.Context, periods []qcflag.EffectivePeriod) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	for _, item := range periods {
		if err := db.Model(&model.QcFlagEffectivePeriod{}).
			Where("id = ?", item.ID).
			Updates(map[string]any{"from_ms": item.From, "to_ms": item.To}).Error; err != nil {
			return errs.Wrapf(err, "update effective period %d", item.ID)
		}
	}
	return nil
}

func (r *FlagRepository) DeletePeriods(ctx context.Context, periodIDs []int64) error {
	if len(periodIDs) == 0 {
		return nil
	}
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	if err := db.Where("id IN ?", periodIDs).Delete(&model.QcFlagEffectivePeriod{}).Error; err != nil {
		return errs.Wrap(err, "delete effective periods")
	}
	return nil
}

func (r *FlagRepository) CreateVerification(ctx context.Context, verification ports.Verification) (ports.Verification, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.Verification{}, err
	}

	row := model.QcFlagVerification{
		FlagID:      verification.FlagID,
		CreatedByID: verification.CreatedByID,
		Comment:     verification.Comment,
		CreatedAt:   verification.CreatedAt,
	}
	if err := db.Create(&row).Error; err != nil {
		return ports.Verification{}, errs.Wrap(err, "insert verification")
	}
	return mapVerification(row), nil
}

func (r *FlagRepository) ListVerifications(ctx context.Context, flagID int64) ([]ports.Verification, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []model.QcFlagVerification
	if err := db.Where("flag_id = ?", flagID).Order("id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query verifications")
	}

	items := make([]ports.Verification, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapVerification(row))
	}
	return items, nil
}

func (r *FlagRepository) VerifiedFlagIDs(ctx context.Context, flagIDs []int64) (map[int64]bool, error) {
	verified := make(map[int64]bool, len(flagIDs))
	if len(flagIDs) == 0 {
		return verified, nil
	}
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var ids []int64
	if err := db.Model(&model.QcFlagVerification{}).
		Distinct("flag_id").
		Where("flag_id IN ?", flagIDs).
		Pluck("flag_id", &ids).Error; err != nil {
		return nil, errs.Wrap(err, "query verified flags")
	}
	for _, id := range ids {
		verified[id] = true
	}
	return verified, nil
}

func mapFlag(row model.QcFlag) ports.Flag {
	return ports.Flag{
		ID:         row.ID,
		FlagTypeID: row.FlagTypeID,
		Scope: qcflag.ScopeKey{
			RunNumber:        row.RunNumber,
			DetectorID:       row.DetectorID,
			DataPassID:       row.DataPassID,
			SimulationPassID: row.SimulationPassID,
		},
		Period:      qcflag.Period{From: row.FromMs, To: row.ToMs},
		Comment:     row.Comment,
		Origin:      row.Origin,
		CreatedByID: row.CreatedByID,
		CreatedAt:   row.CreatedAt,
		Deleted:     row.Deleted,
	}
}

func mapFlags(rows []model.QcFlag) []ports.Flag {
	items := make([]ports.Flag, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapFlag(row))
	}
	return items
}

func mapPeriods(rows []model.QcFlagEffectivePeriod) []qcflag.EffectivePeriod {
	items := make([]qcflag.EffectivePeriod, 0, len(rows))
	for _, row := range rows {
		items = append(items, qcflag.EffectivePeriod{
			ID:     row.ID,
			FlagID: row.FlagID,
			Period: qcflag.Period{From: row.FromMs, To: row.ToMs},
		})
	}
	return items
}

func mapVerification(row model.QcFlagVerification) ports.Verification {
	return ports.Verification{
		ID:          row.ID,
		FlagID:      row.FlagID,
		CreatedByID: row.CreatedByID,
		Comment:     row.Comment,
		CreatedAt:   row.CreatedAt,
	}
}
