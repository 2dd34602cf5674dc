package pipeline

import "github.com/Perkybeet/wasm/internal/domain/model"

type planStep struct {
	stage model.Stage
	skip  bool
	// rebuild runs the stage only when the restored tree is not runnable.
	rebuild bool
}

// plan is an operation's ordered stage list. Skipped entries are still
// recorded so every job carries a complete history.
type plan []planStep

var plans = map[model.Operation]plan{
	model.OperationCreate: {
		{stage: model.StageFetching},
		{stage: model.StagePreparing, skip: true},
		{stage: model.StageBuilding},
		{stage: model.StageIntegrating},
		{stage: model.StageActivating},
		{stage: model.StageVerifying},
	},
	// The pre-change backup is taken before the source is touched.
	model.OperationUpdate: {
		{stage: model.StagePreparing},
		{stage: model.StageFetching},
		{stage: model.StageBuilding},
		{stage: model.StageIntegrating},
		{stage: model.StageActivating},
		{stage: model.StageVerifying},
	},
	model.OperationDelete: {
		{stage: model.StagePreparing},
		{stage: model.StageFetching, skip: true},
		{stage: model.StageBuilding, skip: true},
		{stage: model.StageIntegrating},
		{stage: model.StageActivating},
		{stage: model.StageVerifying, skip: true},
	},
	model.OperationRollback: {
		{stage: model.StageRollingBack},
		{stage: model.StageBuilding, rebuild: true},
		{stage: model.StageIntegrating},
		{stage: model.StageActivating},
		{stage: model.StageVerifying},
	},
	model.OperationBackup: {
		{stage: model.StagePreparing},
	},
}

// recoveryStages put a restored tree back into service after a failure.
var recoveryStages = []model.Stage{
	model.StageRollingBack,
	model.StageIntegrating,
	model.StageActivating,
}

func planFor(op model.Operation) plan {
	return plans[op]
}

// resumeIndex returns where execution continues given the last committed stage.
func (pl plan) resumeIndex(committed model.Stage) int {
	if committed == "" {
		return 0
	}
	if committed == model.StageDone {
		return len(pl)
	}
	for i, ps := range pl {
		if ps.stage == committed {
			return i + 1
		}
	}
	return 0
}
