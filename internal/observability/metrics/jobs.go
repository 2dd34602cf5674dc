// Package metrics names the engine's job and pipeline metrics so every
// emitter tags them the same way.
package metrics

import (
	"time"

	obserrors "github.com/Perkybeet/wasm/internal/observability/errors"
	"github.com/Perkybeet/wasm/internal/observability/statsd"
)

// Values of the "result" tag.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// JobMetric is a job lifecycle transition (submitted, started, succeeded, ...).
type JobMetric struct {
	Operation  string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle counts "job.transition" and times "job.duration". The
// error class is attached only to error results.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	tags := map[string]string{
		"operation":  in.Operation,
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.Result == ResultError {
		tagErrorClass(tags, in.Err)
	}
	emit(sink, "job.transition", "job.duration", in.Duration, tags)
}

// StageMetric is one finished pipeline stage.
type StageMetric struct {
	Operation string
	Stage     string
	Outcome   string
	Duration  time.Duration
	Err       error
}

// EmitStage counts "pipeline.stage" and times "pipeline.stage.duration".
func EmitStage(sink statsd.Sink, in StageMetric) {
	tags := map[string]string{
		"operation": in.Operation,
		"stage":     in.Stage,
		"outcome":   in.Outcome,
	}
	tagErrorClass(tags, in.Err)
	emit(sink, "pipeline.stage", "pipeline.stage.duration", in.Duration, tags)
}

func emit(sink statsd.Sink, counter, timer string, d time.Duration, tags map[string]string) {
	if sink == nil {
		return
	}
	sink.Count(counter, 1, tags)
	if d > 0 {
		sink.Timing(timer, d, CloneTags(tags))
	}
}

func tagErrorClass(tags map[string]string, err error) {
	if class := obserrors.Classify(err); class != "" {
		tags["error_class"] = class
	}
}

// CloneTags copies src without empty keys; sinks may keep the map they get.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k != "" {
			out[k] = v
		}
	}
	return out
}
