package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatus_Terminal(t *testing.T) {
	tests := []struct {
		status   JobStatus
		terminal bool
	}{
		{JobStatusQueued, false},
		{JobStatusRunning, false},
		{JobStatusSucceeded, true},
		{JobStatusSucceededWithWarning, true},
		{JobStatusFailed, true},
		{JobStatusCancelled, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.True(t, tt.status.Valid())
			assert.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
	assert.False(t, JobStatus("pending").Valid())
}

func TestOperation_UnmarshalText(t *testing.T) {
	var op Operation
	require.NoError(t, op.UnmarshalText([]byte(" Update ")))
	assert.Equal(t, OperationUpdate, op)
	assert.True(t, op.Mutates())

	require.Error(t, op.UnmarshalText([]byte("redeploy")))
	assert.Equal(t, OperationUpdate, op, "failed parse must not overwrite")

	assert.False(t, OperationCreate.Mutates())
	assert.True(t, OperationDelete.Mutates())
}

func TestJob_DecodeRequest(t *testing.T) {
	raw, err := json.Marshal(SubmitRequest{AppID: "a.example.com", Operation: OperationCreate, Source: "https://git.example.com/a.git"})
	require.NoError(t, err)

	job := &Job{Request: raw}
	req, err := job.DecodeRequest()
	require.NoError(t, err)
	assert.Equal(t, "a.example.com", req.AppID)
	assert.Equal(t, OperationCreate, req.Operation)

	_, err = (&Job{}).DecodeRequest()
	require.Error(t, err)
}

func TestCapabilitiesFor(t *testing.T) {
	next := CapabilitiesFor(AppTypeNextJS)
	assert.True(t, next.NeedsService)
	assert.Equal(t, Command{"pnpm", "install"}, next.Install[0].Resolve("pnpm"))
	assert.Equal(t, []string{".next"}, next.BuildOutputs)

	vite := CapabilitiesFor(AppTypeVite)
	assert.False(t, vite.NeedsService)
	assert.Equal(t, "dist", vite.ServeDir)

	unknown := CapabilitiesFor(AppType("rails"))
	assert.Equal(t, CapabilitiesFor(AppTypeStatic), unknown)
}

func TestAppType_UnmarshalText(t *testing.T) {
	var at AppType
	require.NoError(t, at.UnmarshalText([]byte("NextJS")))
	assert.Equal(t, AppTypeNextJS, at)
	require.Error(t, at.UnmarshalText([]byte("django")))
}

func TestApplication_ServiceName(t *testing.T) {
	app := &Application{ID: "Shop.Example.com"}
	assert.Equal(t, "wasm-shop-example-com", app.ServiceName())
}

func TestStage_MutatesTree(t *testing.T) {
	assert.False(t, StagePreparing.MutatesTree())
	assert.True(t, StageBuilding.MutatesTree())
	assert.False(t, StageDone.MutatesTree())
	assert.True(t, StageRollingBack.Valid())
	assert.False(t, Stage("deploying").Valid())
}
