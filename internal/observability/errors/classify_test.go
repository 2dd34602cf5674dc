package errors

import (
	"context"
	"fmt"
	"io/fs"
	"net"
	"os"
	"os/exec"
	"testing"

	apperrors "github.com/Perkybeet/wasm/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type diskError struct{}

func (*diskError) Error() string { return "disk" }

type timeoutError struct{}

func (timeoutError) Error() string { return "i/o timeout" }
func (timeoutError) Timeout() bool { return true }

func TestClassify(t *testing.T) {
	_, statErr := os.Stat("/definitely/not/here")
	require.ErrorIs(t, statErr, fs.ErrNotExist)

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "app error", err: apperrors.ResourceExhaustionf("", "oom"), want: "resource_exhaustion"},
		{name: "wrapped app error", err: fmt.Errorf("build: %w", apperrors.Integration("npm", "", nil)), want: "integration"},
		{name: "rollback failed", err: apperrors.RollbackFailed(context.Canceled, &diskError{}), want: "rollback_failed"},
		{name: "canceled", err: fmt.Errorf("stage: %w", context.Canceled), want: "canceled"},
		{name: "deadline", err: context.DeadlineExceeded, want: "timeout"},
		{name: "network timeout", err: &net.OpError{Op: "dial", Err: timeoutError{}}, want: "timeout"},
		{name: "network", err: &net.OpError{Op: "dial", Err: &diskError{}}, want: "network"},
		{name: "dns", err: &net.DNSError{Err: "no such host", Name: "example.invalid"}, want: "network"},
		{name: "subprocess", err: fmt.Errorf("git fetch: %w", &exec.ExitError{}), want: "exit_status"},
		{name: "path error", err: statErr, want: "syscall_errno"},
		{name: "plain type", err: fmt.Errorf("write: %w", &diskError{}), want: "errors_diskerror"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
