// Package host provides the default implementations of the deployment
// collaborators: systemd units, nginx sites, certbot certificates, package
// manager builds, config rendering and HTTP health checks.
package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/Perkybeet/wasm/internal/domain/model"
	apperrors "github.com/Perkybeet/wasm/internal/errors"
)

// Cmd is one process invocation.
type Cmd struct {
	Name string
	Args []string
	Dir  string
	// Env is appended to the process environment.
	Env []string
}

func (c Cmd) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Commander runs host processes. A non-zero exit is reported in the result;
// the error is reserved for processes that could not be started or were
// cancelled.
type Commander interface {
	Run(ctx context.Context, cmd Cmd) (model.CommandResult, error)
}

// ExecCommander runs processes with os/exec, capturing stdout and stderr together.
type ExecCommander struct{}

// Run implements Commander.
func (ExecCommander) Run(ctx context.Context, c Cmd) (model.CommandResult, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	res := model.CommandResult{Output: out.String(), Duration: time.Since(start)}
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		return res, fmt.Errorf("%s: %w", c.Name, ctxErr)
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		res.ExitCode = ee.ExitCode()
		if res.ExitCode == -1 {
			// Killed by a signal; report it the way a shell would.
			res.ExitCode = signalExitCode(ee)
		}
		return res, nil
	}
	return res, fmt.Errorf("start %s: %w", c.Name, err)
}

// run executes c and turns a non-zero exit into an integration error carrying the output.
func run(ctx context.Context, cmdr Commander, c Cmd) (model.CommandResult, error) {
	res, err := cmdr.Run(ctx, c)
	if err != nil {
		return res, apperrors.Integration(c.Name, res.Output, err)
	}
	if res.ExitCode != 0 {
		return res, apperrors.Integration(c.Name, res.Output,
			fmt.Errorf("%s exited with code %d", c.String(), res.ExitCode))
	}
	return res, nil
}

// tail returns at most the last n bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
