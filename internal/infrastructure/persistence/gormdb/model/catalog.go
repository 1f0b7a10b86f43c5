package model

type Run struct {
	RunNumber   int64  `gorm:"column:run_number;primaryKey;autoIncrement:false"`
	QcTimeStart *int64 `gorm:"column:qc_time_start"`
	QcTimeEnd   *int64 `gorm:"column:qc_time_end"`
	BeamType    string `gorm:"column:beam_type;type:text;not null;default:''"`
	UpdatedAt   int64  `gorm:"column:updated_at;not null;autoUpdateTime:milli"`
}

func (Run) TableName() string {
	return "runs"
}

type Detector struct {
	ID   int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name string `gorm:"column:name;type:text;uniqueIndex;not null"`
}

func (Detector) TableName() string {
	return "detectors"
}

type RunDetector struct {
	RunNumber  int64 `gorm:"column:run_number;primaryKey;autoIncrement:false"`
	DetectorID int64 `gorm:"column:detector_id;primaryKey;autoIncrement:false"`
}

func (RunDetector) TableName() string {
	return "run_detectors"
}

type DataPass struct {
	ID   int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name string `gorm:"column:name;type:text;uniqueIndex;not null"`
}

func (DataPass) TableName() string {
	return "data_passes"
}

type DataPassRun struct {
	DataPassID int64 `gorm:"column:data_pass_id;primaryKey;autoIncrement:false"`
	RunNumber  int64 `gorm:"column:run_number;primaryKey;autoIncrement:false"`
}

func (DataPassRun) TableName() string {
	return "data_pass_runs"
}

type SimulationPass struct {
	ID   int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name string `gorm:"column:name;type:text;uniqueIndex;not null"`
}

func (SimulationPass) TableName() string {
	return "simulation_passes"
}

type SimulationPassRun struct {
	SimulationPassID int64 `gorm:"column:simulation_pass_id;primaryKey;autoIncrement:false"`
	RunNumber        int64 `gorm:"column:run_number;primaryKey;autoIncrement:false"`
}

func (SimulationPassRun) TableName() string {
	return "simulation_pass_runs"
}

type GaqDetector struct {
	DataPassID int64 `gorm:"column:data_pass_id;primaryKey;autoIncrement:false"`
	RunNumber  int64 `gorm:"column:run_number;primaryKey;autoIncrement:false"`
	DetectorID int64 `gorm:"column:detector_id;primaryKey;autoIncrement:false"`
}

func (GaqDetector) TableName() string {
	return "global_aggregated_quality_detectors"
}
