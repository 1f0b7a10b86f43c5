package ports

import (
	"context"
	"errors"

	"qcflags/internal/domain/qcflag"
)

// ErrRecordNotFound is returned by repositories when a lookup matches nothing.
var ErrRecordNotFound = errors.New("record not found")

type Run struct {
	RunNumber   int64  `json:"runNumber"`
	QcTimeStart *int64 `json:"qcTimeStart"`
	QcTimeEnd   *int64 `json:"qcTimeEnd"`
	BeamType    string `json:"beamType"`
}

func (r Run) Window() qcflag.Window {
	return qcflag.Window{Start: r.QcTimeStart, End: r.QcTimeEnd}
}

type Detector struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type DataPass struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type SimulationPass struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type FlagType struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Method         string `json:"method"`
	Bad            bool   `json:"bad"`
	Color          string `json:"color"`
	MCReproducible bool   `json:"mcReproducible"`
	ArchivedAt     *int64 `json:"archivedAt"`
	CreatedAt      int64  `json:"createdAt"`
}

func (t FlagType) Archived() bool {
	return t.ArchivedAt != nil
}

type Flag struct {
	ID          int64           `json:"id"`
	FlagTypeID  int64           `json:"flagTypeId"`
	Scope       qcflag.ScopeKey `json:"scope"`
	Period      qcflag.Period   `json:"period"`
	Comment     string          `json:"comment"`
	Origin      string          `json:"origin"`
	CreatedByID int64           `json:"createdById"`
	CreatedAt   int64           `json:"createdAt"`
	Deleted     bool            `json:"deleted"`
}

type Verification struct {
	ID          int64  `json:"id"`
	FlagID      int64  `json:"flagId"`
	CreatedByID int64  `json:"createdById"`
	Comment     string `json:"comment"`
	CreatedAt   int64  `json:"createdAt"`
}

// CatalogRepository reads and seeds the run/detector/pass catalog flags refer to.
type CatalogRepository interface {
	GetRun(ctx context.Context, runNumber int64) (Run, error)
	UpsertRun(ctx context.Context, run Run) error
	UpdateRunWindow(ctx context.Context, runNumber int64, window qcflag.Window) error

	GetDetector(ctx context.Context, detectorID int64) (Detector, error)
	EnsureDetector(ctx context.Context, name string) (Detector, error)
	ListRunDetectors(ctx context.Context, runNumber int64) ([]Detector, error)
	AddRunDetectors(ctx context.Context, runNumber int64, detectorIDs []int64) error

	GetDataPass(ctx context.Context, dataPassID int64) (DataPass, error)
	EnsureDataPass(ctx context.Context, name string) (DataPass, error)
	AddDataPassRuns(ctx context.Context, dataPassID int64, runNumbers []int64) error
	ListDataPassRuns(ctx context.Context, dataPassID int64) ([]int64, error)
	DataPassIncludesRun(ctx context.Context, dataPassID int64, runNumber int64) (bool, error)

	GetSimulationPass(ctx context.Context, simulationPassID int64) (SimulationPass, error)
	EnsureSimulationPass(ctx context.Context, name string) (SimulationPass, error)
	AddSimulationPassRuns(ctx context.Context, simulationPassID int64, runNumbers []int64) error
	ListSimulationPassRuns(ctx context.Context, simulationPassID int64) ([]int64, error)
	SimulationPassIncludesRun(ctx context.Context, simulationPassID int64, runNumber int64) (bool, error)
}

type FlagTypeRepository interface {
	CreateFlagType(ctx context.Context, flagType FlagType) (FlagType, error)
	GetFlagType(ctx context.Context, flagTypeID int64) (FlagType, error)
	// FindFlagTypeConflict ignores the flag type excludeID, so an update can keep its own name.
	FindFlagTypeConflict(ctx context.Context, name string, method string, excludeID int64) (FlagType, bool, error)
	UpdateFlagType(ctx context.Context, flagType FlagType) error
	ListFlagTypes(ctx context.Context) ([]FlagType, error)
	ArchiveFlagType(ctx context.Context, flagTypeID int64, archivedAt int64) error
}

// FlagRepository stores flags, their effective periods and verifications.
// List methods only return flags that are not deleted.
type FlagRepository interface {
	CreateFlag(ctx context.Context, flag Flag) (Flag, error)
	GetFlag(ctx context.Context, flagID int64) (Flag, error)
	ListScopeFlags(ctx context.Context, scope qcflag.ScopeKey) ([]Flag, error)
	// PageScopeFlags lists the live flags of a scope newest first, with the total count.
	PageScopeFlags(ctx context.Context, scope qcflag.ScopeKey, limit int, offset int) ([]Flag, int64, error)
	ListRunFlags(ctx context.Context, runNumber int64) ([]Flag, error)
	// ListFlagTypeRuns returns the runs holding live flags of a flag type.
	ListFlagTypeRuns(ctx context.Context, flagTypeID int64) ([]int64, error)
	UpdateFlagPeriod(ctx context.Context, flagID int64, period qcflag.Period) error
	MarkFlagsDeleted(ctx context.Context, flagIDs []int64) error

	ListScopePeriods(ctx context.Context, scope qcflag.ScopeKey) ([]qcflag.EffectivePeriod, error)
	ListRunPeriods(ctx context.Context, runNumber int64) ([]qcflag.EffectivePeriod, error)
	ListFlagPeriods(ctx context.Context, flagID int64) ([]qcflag.EffectivePeriod, error)
	CreatePeriods(ctx context.Context, periods []qcflag.EffectivePeriod) ([]qcflag.EffectivePeriod, error)
	UpdatePeriods(ctx context.Context, periods []qcflag.EffectivePeriod) error
	DeletePeriods(ctx context.Context, periodIDs []int64) error

	CreateVerification(ctx context.Context, verification Verification) (Verification, error)
	ListVerifications(ctx context.Context, flagID int64) ([]Verification, error)
	VerifiedFlagIDs(ctx context.Context, flagIDs []int64) (map[int64]bool, error)
}

// GaqDetectorRepository stores the detectors aggregated for a (data pass, run) pair.
type GaqDetectorRepository interface {
	ListGaqDetectors(ctx context.Context, dataPassID int64, runNumber int64) ([]Detector, error)
	ReplaceGaqDetectors(ctx context.Context, dataPassID int64, runNumber int64, detectorIDs []int64) error
}
