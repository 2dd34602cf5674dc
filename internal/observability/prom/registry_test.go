package prom

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCountersAndGauges(t *testing.T) {
	r := New(Options{Namespace: "wasm"})

	r.Count("jobs.submitted", 2, map[string]string{"operation": "create"})
	r.Count("jobs.submitted", 1, map[string]string{"operation": "create"})
	r.Count("jobs.submitted", -5, map[string]string{"operation": "create"})
	r.Gauge("workers busy", 3, nil)

	expected := `
# HELP wasm_jobs_submitted_total Engine metric wasm_jobs_submitted_total.
# TYPE wasm_jobs_submitted_total counter
wasm_jobs_submitted_total{operation="create"} 3
# HELP wasm_workers_busy Engine metric wasm_workers_busy.
# TYPE wasm_workers_busy gauge
wasm_workers_busy 3
`
	require.NoError(t, testutil.GatherAndCompare(r.Gatherer(), strings.NewReader(expected),
		"wasm_jobs_submitted_total", "wasm_workers_busy"))
}

func TestRegistryTimingUsesSeconds(t *testing.T) {
	r := New(Options{Namespace: "wasm", Buckets: []float64{1, 2}})

	r.Timing("pipeline.stage.duration", 1500*time.Millisecond, map[string]string{"stage": "building"})
	r.Timing("pipeline.stage.duration", 500*time.Millisecond, map[string]string{"stage": "building"})

	expected := `
# HELP wasm_pipeline_stage_duration_seconds Engine metric wasm_pipeline_stage_duration_seconds.
# TYPE wasm_pipeline_stage_duration_seconds histogram
wasm_pipeline_stage_duration_seconds_bucket{stage="building",le="1"} 1
wasm_pipeline_stage_duration_seconds_bucket{stage="building",le="2"} 2
wasm_pipeline_stage_duration_seconds_bucket{stage="building",le="+Inf"} 2
wasm_pipeline_stage_duration_seconds_sum{stage="building"} 2
wasm_pipeline_stage_duration_seconds_count{stage="building"} 2
`
	require.NoError(t, testutil.GatherAndCompare(r.Gatherer(), strings.NewReader(expected),
		"wasm_pipeline_stage_duration_seconds"))
}

func TestRegistryOptionalAndUnknownLabels(t *testing.T) {
	r := New(Options{Namespace: "wasm", OptionalLabels: []string{"error_class"}})

	r.Count("job.transition", 1, map[string]string{"result": "success"})
	r.Count("job.transition", 1, map[string]string{"result": "error", "error_class": "timeout"})
	r.Count("job.transition", 1, map[string]string{"result": "error", "worker": "w1"})
	r.Gauge("job.transition", 1, map[string]string{"result": "success"})

	n, err := testutil.GatherAndCount(r.Gatherer(), "wasm_job_transition_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "a call with an unregistered label is dropped")

	n, err = testutil.GatherAndCount(r.Gatherer(), "wasm_job_transition")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "gauge with the same base name is its own family")
}

func TestRegistryHandler(t *testing.T) {
	r := New(Options{Namespace: "wasm"})
	r.Count("jobs.submitted", 1, nil)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "wasm_jobs_submitted_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"jobs.submitted":   "jobs_submitted",
		" stage/duration ": "stage_duration",
		"a..b--c":          "a_b_c",
		"5xx.count":        "_5xx_count",
		"...":              "",
	}
	for in, want := range cases {
		assert.Equal(t, want, sanitizeName(in), in)
	}
}
