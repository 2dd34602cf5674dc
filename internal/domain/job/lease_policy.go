package job

import (
	"errors"
	"math"
	"time"
)

// ErrInvalidDefaultLease is returned for a non-positive default lease.
var ErrInvalidDefaultLease = errors.New("default lease must be positive")

// minHeartbeat keeps very short leases from turning heartbeats into a busy loop.
const minHeartbeat = 250 * time.Millisecond

// LeasePolicy decides how long a worker owns a reserved job before another
// process may requeue and resume it, and how often the owner must renew.
// Leases are stored in whole seconds.
type LeasePolicy struct {
	lease time.Duration
}

// NewLeasePolicy returns a policy whose zero request means lease.
func NewLeasePolicy(lease time.Duration) (*LeasePolicy, error) {
	if lease <= 0 {
		return nil, ErrInvalidDefaultLease
	}
	return &LeasePolicy{lease: lease}, nil
}

// Default is the lease used when a caller asks for zero. A nil policy has none.
func (p *LeasePolicy) Default() time.Duration {
	if p == nil {
		return 0
	}
	return p.lease
}

// Seconds converts a requested lease to the stored granularity. Zero selects
// the default; anything shorter than a second, negative values included,
// becomes one second.
func (p *LeasePolicy) Seconds(request time.Duration) int {
	if request == 0 {
		request = p.Default()
	}
	return int(min(max(int64(request/time.Second), 1), math.MaxInt32))
}

// HeartbeatInterval fits three renewals in one lease so a single missed beat
// never loses the job.
func (p *LeasePolicy) HeartbeatInterval(request time.Duration) time.Duration {
	return max(time.Duration(p.Seconds(request))*time.Second/3, minHeartbeat)
}
