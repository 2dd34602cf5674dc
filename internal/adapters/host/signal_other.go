//go:build !unix

package host

import "os/exec"

func signalExitCode(_ *exec.ExitError) int { return -1 }
