package model

// Stage is one state of the deployment pipeline.
type Stage string

const (
	StageFetching    Stage = "fetching"
	StagePreparing   Stage = "preparing"
	StageBuilding    Stage = "building"
	StageIntegrating Stage = "integrating"
	StageActivating  Stage = "activating"
	StageVerifying   Stage = "verifying"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
	StageRollingBack Stage = "rolling_back"
)

// ForwardStages lists the forward path in execution order.
var ForwardStages = []Stage{
	StageFetching,
	StagePreparing,
	StageBuilding,
	StageIntegrating,
	StageActivating,
	StageVerifying,
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageFetching, StagePreparing, StageBuilding, StageIntegrating, StageActivating,
		StageVerifying, StageDone, StageFailed, StageRollingBack:
		return true
	default:
		return false
	}
}

// MutatesTree reports whether the stage may change the application's files or
// running service, so that a failure during or after it warrants a rollback.
func (s Stage) MutatesTree() bool {
	switch s {
	case StageFetching, StageBuilding, StageIntegrating, StageActivating, StageVerifying:
		return true
	default:
		return false
	}
}
