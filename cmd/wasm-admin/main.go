// Command wasm-admin runs one-off maintenance tasks against the engine's
// store: migrations, crash recovery and inspection of jobs, applications and
// backups.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/Perkybeet/wasm/config"
	"github.com/Perkybeet/wasm/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
}

func main() {
	logger := bootstrap.InitLogger("info", false)

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stderr); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: bootstrap.InitLogger(cfg.LogLevel, cfg.IsDev),
		Config: cfg,
		Out:    os.Stdout,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		if errors.Is(runErr, errInvalidBackup) {
			os.Exit(3) //nolint:forbidigo // verify-backup reports a corrupt archive through its exit status
		}
		cmdCtx.Logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrations,
		},
		"recover": {
			name:        "recover",
			description: "Restore application trees left half-swapped by an interrupted restore",
			run:         runRecover,
		},
		"list-jobs": {
			name:        "list-jobs",
			description: "List deployment jobs, newest first",
			run:         runListJobs,
		},
		"cancel-job": {
			name:        "cancel-job",
			description: "Request cancellation of a queued or running job",
			run:         runCancelJob,
		},
		"list-apps": {
			name:        "list-apps",
			description: "List registered applications",
			run:         runListApps,
		},
		"list-backups": {
			name:        "list-backups",
			description: "List backups, newest first",
			run:         runListBackups,
		},
		"verify-backup": {
			name:        "verify-backup",
			description: "Check a backup archive against its recorded checksum",
			run:         runVerifyBackup,
		},
		"backup-storage": {
			name:        "backup-storage",
			description: "Summarise disk usage of the backup directory",
			run:         runBackupStorage,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: wasm-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := writef(w, "  %-16s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}
