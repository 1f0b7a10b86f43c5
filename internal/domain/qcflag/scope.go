package qcflag

import (
	"fmt"

	"qcflags/internal/errs"
)

// ScopeKey identifies the set of flags whose effective periods must stay disjoint.
// At most one of DataPassID and SimulationPassID is set; neither means synchronous flags.
type ScopeKey struct {
	RunNumber        int64  `json:"runNumber"`
	DetectorID       int64  `json:"detectorId"`
	DataPassID       *int64 `json:"dataPassId,omitempty"`
	SimulationPassID *int64 `json:"simulationPassId,omitempty"`
}

func (k ScopeKey) Validate() error {
	if k.RunNumber <= 0 {
		return errs.Validation("runNumber", "must be positive")
	}
	if k.DetectorID <= 0 {
		return errs.Validation("detectorId", "must be positive")
	}
	if k.DataPassID != nil && k.SimulationPassID != nil {
		return errs.Validation("simulationPassId", "a flag belongs to a data pass or a simulation pass, not both")
	}
	return nil
}

// PassScope names the pass part of the key: "dp:<id>", "sp:<id>" or "sync".
func (k ScopeKey) PassScope() string {
	switch {
	case k.DataPassID != nil:
		return fmt.Sprintf("dp:%d", *k.DataPassID)
	case k.SimulationPassID != nil:
		return fmt.Sprintf("sp:%d", *k.SimulationPassID)
	default:
		return "sync"
	}
}

func (k ScopeKey) String() string {
	return fmt.Sprintf("run:%d/det:%d/%s", k.RunNumber, k.DetectorID, k.PassScope())
}

// RunLockKey is the lock shared by every scope of a run.
func RunLockKey(runNumber int64) string {
	return fmt.Sprintf("run:%d", runNumber)
}

// LockKey is the lock serializing mutations of this scope.
func (k ScopeKey) LockKey() string {
	return "scope:" + k.String()
}
