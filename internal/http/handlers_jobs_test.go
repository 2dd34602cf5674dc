package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/Perkybeet/wasm/internal/domain/model"
	"github.com/Perkybeet/wasm/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobHandlers_SubmitAndGet(t *testing.T) {
	f := newAPIFixture(t, "")

	w := f.do(t, http.MethodPost, "/api/jobs", testutil.NewSubmitRequest().Build())
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	id := decodeBody[map[string]string](t, w)["job_id"]
	require.NotEmpty(t, id)

	w = f.do(t, http.MethodGet, "/api/jobs/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	job := decodeBody[model.Job](t, w)
	assert.Equal(t, model.JobStatusQueued, job.Status)
	assert.Equal(t, model.OperationCreate, job.Operation)
	assert.Equal(t, "shop.example.com", job.AppID)
}

func TestJobHandlers_SubmitErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		seed     bool
		status   int
		errCode  string
		errField string
	}{
		{
			name:     "invalid domain",
			body:     testutil.NewSubmitRequest().WithAppID("not a domain").Build(),
			status:   http.StatusBadRequest,
			errCode:  "validation",
			errField: "app_id",
		},
		{
			name:    "unknown field",
			body:    map[string]any{"app_id": "shop.example.com", "operation": "create", "colour": "red"},
			status:  http.StatusBadRequest,
			errCode: "invalid_json",
		},
		{
			name:    "update of unknown application",
			body:    testutil.NewSubmitRequest().WithOperation(model.OperationUpdate).Build(),
			status:  http.StatusNotFound,
			errCode: "not_found",
		},
		{
			name:    "create over existing application",
			body:    testutil.NewSubmitRequest().Build(),
			seed:    true,
			status:  http.StatusConflict,
			errCode: "conflict",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t, "")
			if tt.seed {
				f.seedApp(t, "shop.example.com")
			}
			w := f.do(t, http.MethodPost, "/api/jobs", tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			body := decodeBody[map[string]any](t, w)
			assert.Equal(t, tt.errCode, body["error"])
			if tt.errField != "" {
				assert.Equal(t, tt.errField, body["field"])
			}
		})
	}
}

func TestJobHandlers_List(t *testing.T) {
	f := newAPIFixture(t, "")
	f.seedApp(t, "blog.example.com")
	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/api/jobs", testutil.NewSubmitRequest().Build()).Code)
	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/api/jobs",
		testutil.NewSubmitRequest().WithAppID("blog.example.com").WithOperation(model.OperationUpdate).Build()).Code)

	w := f.do(t, http.MethodGet, "/api/jobs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]model.Job](t, w), 2)

	w = f.do(t, http.MethodGet, "/api/jobs?app=blog.example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	jobs := decodeBody[[]model.Job](t, w)
	require.Len(t, jobs, 1)
	assert.Equal(t, model.OperationUpdate, jobs[0].Operation)

	w = f.do(t, http.MethodGet, "/api/jobs?status=running", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())

	w = f.do(t, http.MethodGet, "/api/jobs?status=sleeping", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJobHandlers_Cancel(t *testing.T) {
	f := newAPIFixture(t, "")
	w := f.do(t, http.MethodPost, "/api/jobs", testutil.NewSubmitRequest().Build())
	id := decodeBody[map[string]string](t, w)["job_id"]

	w = f.do(t, http.MethodPost, "/api/jobs/"+id+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]bool{"cancelled": true}, decodeBody[map[string]bool](t, w))

	w = f.do(t, http.MethodPost, "/api/jobs/"+id+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]bool{"cancelled": false}, decodeBody[map[string]bool](t, w))

	w = f.do(t, http.MethodPost, "/api/jobs/00000000-0000-0000-0000-000000000000/cancel", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestJobHandlers_ProgressStreamsFinishedSteps(t *testing.T) {
	f := newAPIFixture(t, "")
	ctx := context.Background()
	w := f.do(t, http.MethodPost, "/api/jobs", testutil.NewSubmitRequest().Build())
	id := decodeBody[map[string]string](t, w)["job_id"]

	_, err := f.jobs.ReserveNext(ctx, 60)
	require.NoError(t, err)
	for _, stage := range []model.Stage{model.StageFetching, model.StagePreparing} {
		step, err := f.jobs.BeginStep(ctx, id, stage)
		require.NoError(t, err)
		step.Outcome = model.StepOutcomeOK
		require.NoError(t, f.jobs.CommitStage(ctx, model.StageCommit{JobID: id, AppID: "shop.example.com", Step: step, JobStage: stage}))
	}
	_, err = f.jobs.UpdateStatus(ctx, model.JobStatusUpdate{ID: id, Status: model.JobStatusSucceeded})
	require.NoError(t, err)

	w = f.do(t, http.MethodGet, "/api/jobs/"+id+"/progress", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))

	var stages []model.Stage
	sc := bufio.NewScanner(w.Body)
	for sc.Scan() {
		var step model.Step
		require.NoError(t, json.Unmarshal(sc.Bytes(), &step))
		stages = append(stages, step.Name)
	}
	assert.Equal(t, []model.Stage{model.StageFetching, model.StagePreparing}, stages)
}

func TestJobHandlers_ProgressUnknownJob(t *testing.T) {
	f := newAPIFixture(t, "")
	w := f.do(t, http.MethodGet, "/api/jobs/00000000-0000-0000-0000-000000000000/progress", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}
