package host

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/Perkybeet/wasm/internal/core"
	"github.com/Perkybeet/wasm/internal/domain/apptype"
	"github.com/Perkybeet/wasm/internal/domain/model"
	apperrors "github.com/Perkybeet/wasm/internal/errors"
	"github.com/Perkybeet/wasm/internal/security"
)

// maxBuildOutput bounds the output kept from install and build commands.
const maxBuildOutput = 64 << 10

// toolInstallers maps package managers that may be missing on the host to their install scripts.
var toolInstallers = map[string]string{
	"pnpm": "https://get.pnpm.io/install.sh",
	"bun":  "https://bun.sh/install",
}

// BuildRunnerOptions configures BuildRunner.
type BuildRunnerOptions struct {
	// Installers admits tool install scripts; nil uses security.InstallerAllowlist.
	Installers *security.Allowlist
	// LookPath defaults to exec.LookPath.
	LookPath func(string) (string, error)
	Logger   *slog.Logger
}

// BuildRunner installs dependencies and builds trees with the app type's package manager.
type BuildRunner struct {
	cmd        Commander
	installers *security.Allowlist
	lookPath   func(string) (string, error)
	logger     *slog.Logger
}

var _ core.BuildRunner = (*BuildRunner)(nil)

// NewBuildRunner creates a BuildRunner.
func NewBuildRunner(cmd Commander, opts BuildRunnerOptions) *BuildRunner {
	b := &BuildRunner{
		cmd:        cmd,
		installers: opts.Installers,
		lookPath:   opts.LookPath,
		logger:     opts.Logger,
	}
	if b.installers == nil {
		b.installers = security.InstallerAllowlist()
	}
	if b.lookPath == nil {
		b.lookPath = exec.LookPath
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.logger = b.logger.With("component", "build_runner")
	return b
}

// Install runs the app type's install commands in root.
func (b *BuildRunner) Install(ctx context.Context, appType model.AppType, root string) (model.CommandResult, error) {
	caps := model.CapabilitiesFor(appType)
	pm := apptype.PackageManager(root)
	cmds := caps.Install
	if appType == model.AppTypePython && !fileExists(filepath.Join(root, "requirements.txt")) {
		cmds = cmds[:1]
	}
	if len(cmds) == 0 {
		return model.CommandResult{}, nil
	}
	if usesPackageManager(cmds) {
		if err := b.ensureTool(ctx, pm); err != nil {
			return model.CommandResult{}, err
		}
	}
	return b.runAll(ctx, root, pm, cmds, nil)
}

// Build runs the app type's build commands in root. Node apps without a
// declared build step but with a "build" script get one.
func (b *BuildRunner) Build(ctx context.Context, appType model.AppType, root string) (model.CommandResult, error) {
	caps := model.CapabilitiesFor(appType)
	cmds := caps.Build
	if len(cmds) == 0 && appType == model.AppTypeNodeJS && apptype.HasScript(root, "build") {
		cmds = []model.Command{{model.PackageManagerPlaceholder, "run", "build"}}
	}
	if len(cmds) == 0 {
		return model.CommandResult{}, nil
	}
	return b.runAll(ctx, root, apptype.PackageManager(root), cmds, []string{"NODE_ENV=production"})
}

// ensureTool installs a missing package manager from its allowlisted install script.
func (b *BuildRunner) ensureTool(ctx context.Context, pm string) error {
	if _, err := b.lookPath(pm); err == nil {
		return nil
	}
	url, ok := toolInstallers[pm]
	if !ok {
		return apperrors.Integration(pm, "", fmt.Errorf("%s is not installed", pm))
	}
	if err := b.installers.Check(url); err != nil {
		return err
	}
	b.logger.InfoContext(ctx, "installing package manager", "tool", pm, "url", url)
	_, err := run(ctx, b.cmd, Cmd{Name: "bash", Args: []string{"-c", "curl -fsSL " + url + " | bash"}})
	return err
}

// runAll runs cmds in order and stops at the first non-zero exit.
func (b *BuildRunner) runAll(ctx context.Context, root, pm string, cmds []model.Command, env []string) (model.CommandResult, error) {
	var (
		out   strings.Builder
		total time.Duration
	)
	for _, c := range cmds {
		argv := c.Resolve(pm)
		fmt.Fprintf(&out, "$ %s\n", strings.Join(argv, " "))
		res, err := b.cmd.Run(ctx, Cmd{Name: argv[0], Args: argv[1:], Dir: root, Env: env})
		out.WriteString(res.Output)
		total += res.Duration
		if err != nil {
			return model.CommandResult{ExitCode: res.ExitCode, Output: tail(out.String(), maxBuildOutput), Duration: total}, err
		}
		if res.ExitCode != 0 {
			b.logger.WarnContext(ctx, "command failed", "command", argv[0], "exit_code", res.ExitCode, "root", root)
			return model.CommandResult{ExitCode: res.ExitCode, Output: tail(out.String(), maxBuildOutput), Duration: total}, nil
		}
	}
	return model.CommandResult{Output: tail(out.String(), maxBuildOutput), Duration: total}, nil
}

func usesPackageManager(cmds []model.Command) bool {
	for _, c := range cmds {
		for _, arg := range c {
			if arg == model.PackageManagerPlaceholder {
				return true
			}
		}
	}
	return false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
