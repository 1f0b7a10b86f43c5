package model

type QcFlagType struct {
	ID             int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name           string `gorm:"column:name;type:text;uniqueIndex;not null"`
	Method         string `gorm:"column:method;type:text;uniqueIndex;not null"`
	Bad            bool   `gorm:"column:bad;not null"`
	Color          string `gorm:"column:color;type:text;not null"`
	MCReproducible bool   `gorm:"column:monte_carlo_reproducible;not null;default:false"`
	ArchivedAt     *int64 `gorm:"column:archived_at"`
	CreatedAt      int64  `gorm:"column:created_at;not null"`
}

func (QcFlagType) TableName() string {
	return "quality_control_flag_types"
}

type QcFlag struct {
	ID               int64  `gorm:"column:id;primaryKey;autoIncrement"`
	FlagTypeID       int64  `gorm:"column:flag_type_id;not null"`
	RunNumber        int64  `gorm:"column:run_number;not null;index:idx_qc_flags_scope,priority:1"`
	DetectorID       int64  `gorm:"column:detector_id;not null;index:idx_qc_flags_scope,priority:2"`
	DataPassID       *int64 `gorm:"column:data_pass_id;index"`
	SimulationPassID *int64 `gorm:"column:simulation_pass_id;index"`
	FromMs           *int64 `gorm:"column:from_ms"`
	ToMs             *int64 `gorm:"column:to_ms"`
	Comment          string `gorm:"column:comment;type:text;not null;default:''"`
	Origin           string `gorm:"column:origin;type:text;not null;default:''"`
	CreatedByID      int64  `gorm:"column:created_by_id;not null"`
	CreatedAt        int64  `gorm:"column:created_at;not null"`
	Deleted          bool   `gorm:"column:deleted;not null;default:false"`
}

func (QcFlag) TableName() string {
	return "quality_control_flags"
}

type QcFlagEffectivePeriod struct {
	ID     int64  `gorm:"column:id;primaryKey;autoIncrement"`
	FlagID int64  `gorm:"column:flag_id;not null;index"`
	FromMs *int64 `gorm:"column:from_ms"`
	ToMs   *int64 `gorm:"column:to_ms"`
}

func (QcFlagEffectivePeriod) TableName() string {
	return "quality_control_flag_effective_periods"
}

type QcFlagVerification struct {
	ID          int64  `gorm:"column:id;primaryKey;autoIncrement"`
	FlagID      int64  `gorm:"column:flag_id;not null;index"`
	CreatedByID int64  `gorm:"column:created_by_id;not null"`
	Comment     string `gorm:"column:comment;type:text;not null;default:''"`
	CreatedAt   int64  `gorm:"column:created_at;not null"`
}

func (QcFlagVerification) TableName() string {
	return "quality_control_flag_verifications"
}
