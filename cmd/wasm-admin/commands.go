package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Perkybeet/wasm/internal/bootstrap"
	"github.com/Perkybeet/wasm/internal/domain/model"
	apperrors "github.com/Perkybeet/wasm/internal/errors"
	"github.com/Perkybeet/wasm/internal/migrate"
	"github.com/Perkybeet/wasm/internal/util"
)

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultCommandTimeout   = 2 * time.Minute
	timeLayout              = "2006-01-02 15:04:05"
)

var errInvalidBackup = errors.New("backup failed verification")

type migrateOptions struct {
	Timeout time.Duration
	// Status lists pending migrations without applying them.
	Status bool
}

type listOptions struct {
	AppID  string
	Status string
	State  string
	Limit  int
	Offset int
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := migrateOptions{}
	fs.DurationVar(
		&opts.Timeout,
		"timeout",
		defaultMigrationTimeout,
		"Maximum duration to wait for migrations to complete",
	)
	fs.BoolVar(&opts.Status, "status", false, "List pending migrations and exit")

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}
	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func parseListFlags(name string, args []string) (listOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := listOptions{}
	fs.StringVar(&opts.AppID, "app", "", "Only show entries for this application (domain)")
	fs.StringVar(&opts.Status, "status", "", "Only show jobs with this status")
	fs.StringVar(&opts.State, "state", "", "Only show applications in this state")
	fs.IntVar(&opts.Limit, "limit", 50, "Maximum number of rows")
	fs.IntVar(&opts.Offset, "offset", 0, "Rows to skip")

	if err := fs.Parse(args); err != nil {
		return listOptions{}, err
	}
	if opts.Limit < 1 {
		return listOptions{}, errors.New("--limit must be at least 1")
	}
	opts.AppID = strings.ToLower(strings.TrimSpace(opts.AppID))
	return opts, nil
}

// singleArg returns the one positional argument a command requires.
func singleArg(name string, args []string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", fmt.Errorf("usage: wasm-admin %s <id>", name)
	}
	return strings.TrimSpace(args[0]), nil
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	db, dialect, err := bootstrap.OpenDatabase(ctx, bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Database,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	if opts.Status {
		pending, err := migrate.Pending(ctx, db, string(dialect))
		if err != nil {
			return err
		}
		return printPending(cmdCtx.Out, pending)
	}

	cmdCtx.Logger.Info("running database migrations", "dialect", string(dialect))
	if migrateErr := bootstrap.RunMigrations(ctx, db, dialect, cmdCtx.Logger); migrateErr != nil {
		return migrateErr
	}

	cmdCtx.Logger.Info("migrations completed successfully")
	return nil
}

func printPending(w io.Writer, versions []string) error {
	if len(versions) == 0 {
		_, err := fmt.Fprintln(w, "schema is up to date")
		return err
	}
	for _, v := range versions {
		if _, err := fmt.Fprintln(w, "pending", v); err != nil {
			return err
		}
	}
	return nil
}

func runRecover(cmdCtx *commandContext, _ []string) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	return withEngine(ctx, cmdCtx, func(eng *engine) error {
		n, err := eng.Services.Backups.RecoverApplications(ctx)
		if err != nil {
			return fmt.Errorf("recover applications: %w", err)
		}
		return writef(cmdCtx.Out, "recovered %d application tree(s)\n", n)
	})
}

func runListJobs(cmdCtx *commandContext, args []string) error {
	opts, err := parseListFlags("list-jobs", args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	return withEngine(ctx, cmdCtx, func(eng *engine) error {
		jobs, err := eng.Services.Jobs.List(ctx, model.JobListOptions{
			AppID:  opts.AppID,
			Status: model.JobStatus(opts.Status),
			Limit:  opts.Limit,
			Offset: opts.Offset,
		})
		if err != nil {
			return err
		}
		return renderJobs(cmdCtx.Out, jobs, time.Now())
	})
}

func runCancelJob(cmdCtx *commandContext, args []string) error {
	id, err := singleArg("cancel-job", args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	return withEngine(ctx, cmdCtx, func(eng *engine) error {
		ok, err := eng.Services.Jobs.Cancel(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return writef(cmdCtx.Out, "job %s has already finished\n", id)
		}
		return writef(cmdCtx.Out, "cancellation requested for job %s\n", id)
	})
}

func runListApps(cmdCtx *commandContext, args []string) error {
	opts, err := parseListFlags("list-apps", args)
	if err != nil {
		return err
	}
	state := model.AppState(opts.State)
	if state != "" && !state.Valid() {
		return fmt.Errorf("unknown state %q", opts.State)
	}
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	return withEngine(ctx, cmdCtx, func(eng *engine) error {
		apps, err := eng.Services.Repos.Apps.List(ctx, model.ApplicationFilter{
			State:  state,
			Limit:  opts.Limit,
			Offset: opts.Offset,
		})
		if err != nil {
			return err
		}
		return renderApps(cmdCtx.Out, apps)
	})
}

func runListBackups(cmdCtx *commandContext, args []string) error {
	opts, err := parseListFlags("list-backups", args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	return withEngine(ctx, cmdCtx, func(eng *engine) error {
		backups, err := eng.Services.Backups.ListBackups(ctx, model.BackupFilter{
			AppID: opts.AppID,
			Limit: opts.Limit,
		})
		if err != nil {
			return err
		}
		return renderBackups(cmdCtx.Out, backups)
	})
}

func runVerifyBackup(cmdCtx *commandContext, args []string) error {
	id, err := singleArg("verify-backup", args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	return withEngine(ctx, cmdCtx, func(eng *engine) error {
		res, err := eng.Services.Backups.VerifyBackup(ctx, id)
		if err != nil && !apperrors.IsCorruptBackup(err) {
			return err
		}
		if renderErr := renderVerification(cmdCtx.Out, res); renderErr != nil {
			return renderErr
		}
		if res != nil && !res.Valid {
			return errInvalidBackup
		}
		return nil
	})
}

func runBackupStorage(cmdCtx *commandContext, _ []string) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	return withEngine(ctx, cmdCtx, func(eng *engine) error {
		info, err := eng.Services.Backups.StorageInfo(ctx)
		if err != nil {
			return err
		}
		return renderStorage(cmdCtx.Out, info)
	})
}

func renderJobs(w io.Writer, jobs []*model.Job, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "ID\tAPP\tOPERATION\tSTATUS\tSTAGE\tCREATED (UTC)\tDURATION\tERROR"); err != nil {
		return fmt.Errorf("write jobs header row: %w", err)
	}
	for _, j := range jobs {
		errText := j.ErrorKind
		if j.RolledBack {
			errText += " (rolled back)"
		}
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			j.ID,
			j.AppID,
			j.Operation,
			j.Status,
			orDash(string(j.Stage)),
			j.CreatedAt.UTC().Format(timeLayout),
			util.FormatSpan(j.StartedAt, j.CompletedAt, now),
			orDash(errText),
		); err != nil {
			return fmt.Errorf("write job row: %w", err)
		}
	}
	return tw.Flush()
}

func renderApps(w io.Writer, apps []*model.Application) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "DOMAIN\tTYPE\tSTATE\tPORT\tBRANCH\tSSL\tLAST DEPLOYED (UTC)"); err != nil {
		return fmt.Errorf("write apps header row: %w", err)
	}
	for _, a := range apps {
		deployed := "-"
		if a.LastDeployedAt != nil {
			deployed = a.LastDeployedAt.UTC().Format(timeLayout)
		}
		if err := writef(tw, "%s\t%s\t%s\t%d\t%s\t%t\t%s\n",
			a.ID, a.AppType, a.State, a.Port, orDash(a.Branch), a.SSL, deployed,
		); err != nil {
			return fmt.Errorf("write app row: %w", err)
		}
	}
	return tw.Flush()
}

func renderBackups(w io.Writer, backups []*model.Backup) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "ID\tAPP\tKIND\tVERIFICATION\tSIZE\tCOMMIT\tCREATED (UTC)"); err != nil {
		return fmt.Errorf("write backups header row: %w", err)
	}
	for _, b := range backups {
		if err := writef(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			b.ID,
			b.AppID,
			b.Kind,
			b.Verification,
			b.SizeBytes,
			orDash(shortCommit(b.GitCommit)),
			b.CreatedAt.UTC().Format(timeLayout),
		); err != nil {
			return fmt.Errorf("write backup row: %w", err)
		}
	}
	return tw.Flush()
}

func renderVerification(w io.Writer, res *model.VerificationResult) error {
	if res == nil {
		return nil
	}
	status := "valid"
	if !res.Valid {
		status = "INVALID"
	}
	return writef(w, "Backup %s: %s\n  checksum ok: %t\n  archive ok:  %t\n  %s\n",
		res.BackupID, status, res.ChecksumOK, res.FilesOK, res.Message)
}

func renderStorage(w io.Writer, info *model.StorageInfo) error {
	if err := writef(w, "Path:    %s\nBackups: %d\nSize:    %s\n", info.Path, info.BackupCount, info.TotalSizeHuman); err != nil {
		return err
	}
	if len(info.Apps) == 0 {
		return nil
	}
	return writef(w, "Apps:    %s\n", strings.Join(info.Apps, ", "))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func shortCommit(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
