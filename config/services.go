package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ServiceMode names one of the engine's background roles. A single binary
// runs any combination of them, selected by SERVICES.
type ServiceMode string

const (
	ServiceModeHTTP    ServiceMode = "http"    // JSON API
	ServiceModeWorkers ServiceMode = "workers" // job worker pool
	ServiceModeReaper  ServiceMode = "reaper"  // lease recovery and history pruning
)

// ValidServiceModes lists every mode in start order.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeHTTP, ServiceModeWorkers, ServiceModeReaper}
}

// ParseServices turns "http, workers" into a set. Blank entries are skipped,
// duplicates collapse, and an unknown name is an error.
func ParseServices(raw string) (map[ServiceMode]bool, error) {
	set := make(map[ServiceMode]bool)
	for part := range strings.SplitSeq(raw, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		mode := ServiceMode(name)
		if !slices.Contains(ValidServiceModes(), mode) {
			return nil, fmt.Errorf("invalid service name: %q (valid options: %s)", name, validModeList())
		}
		set[mode] = true
	}
	if len(set) == 0 {
		return nil, errors.New("at least one service must be specified")
	}
	return set, nil
}

func validModeList() string {
	names := make([]string, 0, 3)
	for _, m := range ValidServiceModes() {
		names = append(names, string(m))
	}
	return strings.Join(names, ", ")
}

// ReaperConfig tunes lease recovery and job history pruning.
type ReaperConfig struct {
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// JobHistoryMaxAge is how long finished jobs are kept. Zero keeps them forever.
	JobHistoryMaxAge time.Duration `env:"REAPER_JOB_HISTORY_MAX_AGE" envDefault:"720h"`

	// BatchSize caps the rows deleted per statement.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize clamps the interval to at least 10s, a positive history age to at
// least an hour, and the batch size to [1, 10000].
func (r *ReaperConfig) Sanitize() {
	r.Interval = max(r.Interval, 10*time.Second)
	if r.JobHistoryMaxAge > 0 {
		r.JobHistoryMaxAge = max(r.JobHistoryMaxAge, time.Hour)
	}
	r.BatchSize = min(max(r.BatchSize, 1), 10000)
}
