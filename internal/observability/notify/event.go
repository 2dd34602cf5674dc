// Package notify defines the payload and sink contract for deployment
// failure notifications.
package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
)

// JobFailurePayload describes a deployment job that ended in failure.
type JobFailurePayload struct {
	JobID     string
	AppID     string
	Operation string
	// Stage is where the job failed.
	Stage     string
	ErrorKind string
	Error     string
	// RolledBack is set when the application was restored from its pre-change backup.
	RolledBack    bool
	RollbackError string
	Severity      string
	OccurredAt    time.Time
	Metadata      map[string]string
}

// Sink describes a destination capable of consuming job failure notifications.
type Sink interface {
	SendJobFailure(ctx context.Context, payload JobFailurePayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload JobFailurePayload) error

// SendJobFailure implements the Sink interface.
func (f SinkFunc) SendJobFailure(ctx context.Context, payload JobFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
