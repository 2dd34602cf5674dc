package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Perkybeet/wasm/internal/domain/apptype"
	"github.com/Perkybeet/wasm/internal/domain/model"
	apperrors "github.com/Perkybeet/wasm/internal/errors"
	"github.com/Perkybeet/wasm/internal/util/backoff"
)

func (p *Pipeline) handler(stage model.Stage) stageFunc {
	switch stage {
	case model.StageFetching:
		return p.fetch
	case model.StagePreparing:
		return p.prepare
	case model.StageBuilding:
		return p.build
	case model.StageIntegrating:
		return p.integrate
	case model.StageActivating:
		return p.activate
	case model.StageVerifying:
		return p.verify
	case model.StageRollingBack:
		return p.restore
	default:
		return func(context.Context, *run) (stageResult, error) {
			return stageResult{}, apperrors.Internalf("stage %s has no handler", stage)
		}
	}
}

func (p *Pipeline) recoveryHandler(stage model.Stage) stageFunc {
	switch stage {
	case model.StageRollingBack:
		return p.restore
	case model.StageIntegrating:
		return p.wire
	case model.StageActivating:
		return func(ctx context.Context, r *run) (stageResult, error) {
			return p.startService(ctx, r, true)
		}
	default:
		return p.handler(stage)
	}
}

// fetch places the source tree: a fresh checkout for create, a sync for update.
func (p *Pipeline) fetch(ctx context.Context, r *run) (stageResult, error) {
	if r.job.Operation == model.OperationCreate {
		return p.fetchNew(ctx, r)
	}
	app, err := p.requireApp(r)
	if err != nil {
		return stageResult{}, err
	}

	tree := &model.WorkingTree{
		Root:   app.Root,
		Branch: app.Branch,
		IsGit:  isGitTree(app.Root),
		Source: app.Source,
	}
	res, err := p.source.Sync(ctx, tree)
	if err != nil {
		return stageResult{}, err
	}
	return stageResult{detail: describeSync(tree, res)}, nil
}

func (p *Pipeline) fetchNew(ctx context.Context, r *run) (stageResult, error) {
	app := &model.Application{
		ID:      r.req.AppID,
		AppType: r.req.AppType,
		Root:    filepath.Join(p.cfg.AppsDir, r.req.AppID),
		Port:    r.req.Port,
		State:   model.AppStateProvisioning,
		Source:  r.req.Source,
		Branch:  r.req.Branch,
		SSL:     r.req.SSL,
		Env:     r.req.Env,
	}
	if r.app != nil {
		app.CreatedAt = r.app.CreatedAt
	}
	if err := p.apps.Upsert(ctx, app); err != nil {
		return stageResult{}, fmt.Errorf("record application: %w", err)
	}
	r.app = app

	// Leftovers of a replaced application or an interrupted attempt.
	if err := os.RemoveAll(app.Root); err != nil {
		return stageResult{}, fmt.Errorf("clear application root: %w", err)
	}
	tree, err := p.source.Fetch(ctx, model.SourceSpec{URL: app.Source, Branch: app.Branch, Root: app.Root})
	if err != nil {
		return stageResult{}, err
	}

	if app.AppType == "" {
		detected, err := apptype.Detect(tree.Root)
		if err != nil {
			return stageResult{}, apperrors.Wrap(err, apperrors.ErrCodeValidation, "detect app type")
		}
		app.AppType = detected
	}
	return stageResult{
		detail: fmt.Sprintf("fetched %s%s as %s", app.Source, refSuffix(tree.Ref), app.AppType),
		app:    &model.AppStateUpdate{State: model.AppStateProvisioning, AppType: app.AppType},
	}, nil
}

func describeSync(tree *model.WorkingTree, res *model.SyncResult) string {
	var b strings.Builder
	if tree.IsGit {
		fmt.Fprintf(&b, "synced %s -> %s", shortRef(res.PreviousRef), shortRef(res.NewRef))
	} else {
		b.WriteString("re-extracted " + tree.Source)
	}
	if res.Diverged {
		b.WriteString(", reset to remote")
	}
	if res.Stashed {
		b.WriteString(", local changes reapplied")
	}
	if n := len(res.PreservedPaths); n > 0 {
		fmt.Fprintf(&b, ", %d user file(s) preserved", n)
	}
	if res.TrustAdded {
		b.WriteString(", repository marked safe")
	}
	return b.String()
}

// prepare takes the pre-change backup, or the requested manual backup.
func (p *Pipeline) prepare(ctx context.Context, r *run) (stageResult, error) {
	if _, err := p.requireApp(r); err != nil {
		return stageResult{}, err
	}
	if r.job.Operation == model.OperationBackup {
		return p.manualBackup(ctx, r)
	}

	b, err := p.backups.CreateBackup(ctx, r.job.AppID, model.FullBackupOptions(r.job.ID))
	if err != nil {
		return stageResult{}, err
	}
	r.backupID = b.ID
	return stageResult{
		detail: fmt.Sprintf("pre-change backup %s (%d bytes)", b.ID, b.SizeBytes),
		app:    &model.AppStateUpdate{State: model.AppStateDeploying, LastBackupID: b.ID},
	}, nil
}

func (p *Pipeline) manualBackup(ctx context.Context, r *run) (stageResult, error) {
	opts := model.DefaultBackupOptions()
	if r.req.IncludeEnv != nil {
		opts.IncludeEnv = *r.req.IncludeEnv
	}
	opts.IncludeDeps = r.req.IncludeDeps
	opts.IncludeBuild = r.req.IncludeBuild
	opts.Description = r.req.Description
	opts.Tags = r.req.Tags
	opts.JobID = r.job.ID

	b, err := p.backups.CreateBackup(ctx, r.job.AppID, opts)
	if err != nil {
		return stageResult{}, err
	}
	r.backupID = b.ID
	if _, err := p.backups.VerifyBackup(ctx, b.ID); err != nil {
		return stageResult{}, err
	}
	return stageResult{
		detail: fmt.Sprintf("backup %s verified (%d bytes)", b.ID, b.SizeBytes),
		app:    &model.AppStateUpdate{LastBackupID: b.ID},
	}, nil
}

// build installs dependencies and builds the tree.
func (p *Pipeline) build(ctx context.Context, r *run) (stageResult, error) {
	app, err := p.requireApp(r)
	if err != nil {
		return stageResult{}, err
	}

	install, err := p.builder.Install(ctx, app.AppType, app.Root)
	if err != nil {
		return stageResult{}, err
	}
	if err := p.classify("install", install); err != nil {
		return stageResult{}, err
	}
	build, err := p.builder.Build(ctx, app.AppType, app.Root)
	if err != nil {
		return stageResult{}, err
	}
	if err := p.classify("build", build); err != nil {
		return stageResult{}, err
	}
	return stageResult{detail: fmt.Sprintf("install %s, build %s",
		install.Duration.Round(time.Millisecond), build.Duration.Round(time.Millisecond))}, nil
}

var oomSignatures = []string{
	"JavaScript heap out of memory",
	"Reached heap limit",
	"Cannot allocate memory",
	"ENOMEM",
	"MemoryError",
}

// classify turns a non-zero exit into a resource exhaustion error when the
// process was killed for memory, and an integration error otherwise.
func (p *Pipeline) classify(what string, res model.CommandResult) error {
	if res.ExitCode == 0 {
		return nil
	}
	diag := tail(res.Output, maxDetail)
	if slices.Contains(p.cfg.OOMExitCodes, res.ExitCode) || outOfMemory(res.Output) {
		return apperrors.ResourceExhaustionf(diag,
			"%s ran out of memory (exit code %d); add memory or swap and retry", what, res.ExitCode)
	}
	return apperrors.Integration(what, diag, fmt.Errorf("exit code %d", res.ExitCode))
}

func outOfMemory(output string) bool {
	for _, sig := range oomSignatures {
		if strings.Contains(output, sig) {
			return true
		}
	}
	// Shells report an OOM-killed child as "<pid> Killed <command>".
	for line := range strings.Lines(output) {
		line = strings.TrimSpace(line)
		if line == "Killed" || strings.Contains(line, " Killed ") || strings.HasSuffix(line, " Killed") {
			return true
		}
	}
	return false
}

// integrate wires the application into the supervisor and proxy, or unwires it for delete.
func (p *Pipeline) integrate(ctx context.Context, r *run) (stageResult, error) {
	if r.job.Operation == model.OperationDelete {
		return p.unwire(ctx, r)
	}
	return p.wire(ctx, r)
}

func (p *Pipeline) wire(ctx context.Context, r *run) (stageResult, error) {
	app, err := p.requireApp(r)
	if err != nil {
		return stageResult{}, err
	}
	caps := model.CapabilitiesFor(app.AppType)
	var notes []string

	if caps.NeedsService {
		content, err := p.renderer.Render(ctx, model.TemplateSystemd, p.renderContext(app, false))
		if err != nil {
			return stageResult{}, err
		}
		if err := p.services.Create(ctx, model.UnitSpec{Name: app.ServiceName(), Content: content}); err != nil {
			return stageResult{}, err
		}
		notes = append(notes, "unit "+app.ServiceName())
	}

	haveCert := false
	if app.SSL {
		if haveCert, err = p.certs.Exists(ctx, app.ID); err != nil {
			return stageResult{}, apperrors.Integration("certificate manager", "", err)
		}
	}
	if err := p.writeSite(ctx, app, haveCert); err != nil {
		return stageResult{}, err
	}
	notes = append(notes, "site "+app.ID)

	if app.SSL && !haveCert {
		// The ACME challenge is answered by the plain HTTP site.
		if err := p.proxy.Reload(ctx); err != nil {
			return stageResult{}, err
		}
		if _, err := p.certs.Issue(ctx, app.ID); err != nil {
			r.log.WarnContext(ctx, "certificate not issued", "error", err)
			notes = append(notes, "certificate not issued: "+err.Error())
		} else {
			if err := p.writeSite(ctx, app, true); err != nil {
				return stageResult{}, err
			}
			notes = append(notes, "certificate issued")
		}
	}
	return stageResult{detail: strings.Join(notes, ", ")}, nil
}

func (p *Pipeline) writeSite(ctx context.Context, app *model.Application, ssl bool) error {
	content, err := p.renderer.Render(ctx, model.TemplateNginx, p.renderContext(app, ssl))
	if err != nil {
		return err
	}
	if err := p.proxy.CreateSite(ctx, model.SiteSpec{Domain: app.ID, Content: content}); err != nil {
		return err
	}
	return p.proxy.Enable(ctx, app.ID)
}

func (p *Pipeline) renderContext(app *model.Application, ssl bool) model.RenderContext {
	caps := model.CapabilitiesFor(app.AppType)
	rc := model.RenderContext{
		Domain:      app.ID,
		Root:        app.Root,
		ServeDir:    caps.ServeDir,
		Port:        app.Port,
		AppType:     app.AppType,
		ServiceName: app.ServiceName(),
		Start:       caps.Start.Resolve(apptype.PackageManager(app.Root)),
		Env:         app.Env,
		User:        p.cfg.ServiceUser,
	}
	if ssl {
		rc.SSL = true
		rc.CertPath, rc.KeyPath = p.certs.CertPaths(app.ID)
	}
	return rc
}

func (p *Pipeline) unwire(ctx context.Context, r *run) (stageResult, error) {
	app, err := p.requireApp(r)
	if err != nil {
		return stageResult{}, err
	}
	if err := p.proxy.RemoveSite(ctx, app.ID); err != nil {
		return stageResult{}, err
	}
	if err := p.proxy.Reload(ctx); err != nil {
		return stageResult{}, err
	}
	return stageResult{detail: "site " + app.ID + " removed"}, nil
}

// activate starts the new version and points the proxy at it, or tears the
// application down for delete.
func (p *Pipeline) activate(ctx context.Context, r *run) (stageResult, error) {
	if r.job.Operation == model.OperationDelete {
		return p.teardown(ctx, r)
	}
	return p.startService(ctx, r, r.job.Operation != model.OperationCreate)
}

func (p *Pipeline) startService(ctx context.Context, r *run, restart bool) (stageResult, error) {
	app, err := p.requireApp(r)
	if err != nil {
		return stageResult{}, err
	}
	if app.SSL {
		ok, err := p.certs.Exists(ctx, app.ID)
		if err != nil {
			return stageResult{}, apperrors.Integration("certificate manager", "", err)
		}
		if !ok {
			return stageResult{}, apperrors.Integration("certificate manager", "",
				fmt.Errorf("no certificate for %s; SSL was requested", app.ID))
		}
	}

	detail := "proxy reloaded"
	if model.CapabilitiesFor(app.AppType).NeedsService {
		name := app.ServiceName()
		start := p.services.Start
		if restart {
			start = p.services.Restart
		}
		if err := start(ctx, name); err != nil {
			return stageResult{}, err
		}
		status, err := p.services.Status(ctx, name)
		if err != nil {
			return stageResult{}, err
		}
		if !status.Active {
			return stageResult{}, apperrors.Integration("service manager", "",
				fmt.Errorf("%s is not active after start", name))
		}
		detail = fmt.Sprintf("%s active (pid %d), %s", name, status.PID, detail)
	}
	if err := p.proxy.Reload(ctx); err != nil {
		return stageResult{}, err
	}
	return stageResult{detail: detail}, nil
}

func (p *Pipeline) teardown(ctx context.Context, r *run) (stageResult, error) {
	app, err := p.requireApp(r)
	if err != nil {
		return stageResult{}, err
	}
	if model.CapabilitiesFor(app.AppType).NeedsService {
		if err := p.services.Remove(ctx, app.ServiceName()); err != nil {
			return stageResult{}, err
		}
	}
	if err := os.RemoveAll(app.Root); err != nil {
		return stageResult{}, fmt.Errorf("remove application tree: %w", err)
	}
	return stageResult{
		detail: "service removed, tree " + app.Root + " deleted",
		app:    &model.AppStateUpdate{State: model.AppStateDeleted},
	}, nil
}

// verify probes the application with bounded retries. Exhausted retries are
// a warning: the deployment stands.
func (p *Pipeline) verify(ctx context.Context, r *run) (stageResult, error) {
	app, err := p.requireApp(r)
	if err != nil {
		return stageResult{}, err
	}
	check := p.healthCheck(app)
	wait := backoff.New(p.cfg.VerifyBackoffBase, p.cfg.VerifyBackoffMax)

	var last error
	for attempt := 1; attempt <= p.cfg.VerifyRetries; attempt++ {
		if last = p.health.Check(ctx, check); last == nil {
			return stageResult{detail: fmt.Sprintf("healthy after %d attempt(s)", attempt)}, nil
		}
		r.log.InfoContext(ctx, "health check failed", "attempt", attempt, "url", check.URL, "error", last)
		if attempt == p.cfg.VerifyRetries {
			break
		}
		if err := p.sleep(ctx, wait.Next()); err != nil {
			return stageResult{}, err
		}
	}
	return stageResult{warning: fmt.Sprintf("health check %s failed after %d attempt(s): %v",
		check.URL, p.cfg.VerifyRetries, last)}, nil
}

func (p *Pipeline) healthCheck(app *model.Application) model.HealthCheck {
	caps := model.CapabilitiesFor(app.AppType)
	host := p.cfg.HealthHost
	if caps.NeedsService && app.Port > 0 {
		host += ":" + strconv.Itoa(app.Port)
	}
	return model.HealthCheck{
		URL:     "http://" + host + caps.HealthCheckPath,
		Host:    app.ID,
		Timeout: p.cfg.VerifyTimeout,
	}
}

// restore puts a backup back in place: the requested (or latest) one for a
// rollback job, the pre-change one during recovery.
func (p *Pipeline) restore(ctx context.Context, r *run) (stageResult, error) {
	if _, err := p.requireApp(r); err != nil {
		return stageResult{}, err
	}
	id := r.backupID
	if r.job.Operation == model.OperationRollback {
		id = r.req.BackupID
		if id == "" {
			latest, err := p.backups.LatestBackup(ctx, r.job.AppID)
			if err != nil {
				return stageResult{}, err
			}
			id = latest.ID
		}
		r.backupID = id
	}
	if id == "" {
		return stageResult{}, apperrors.NotFoundf("no backup to restore for %s", r.job.AppID)
	}

	res, err := p.backups.RestoreBackup(ctx, id, r.job.AppID)
	if err != nil {
		return stageResult{}, err
	}
	r.restored = res
	return stageResult{
		detail: fmt.Sprintf("restored backup %s into %s (%d files)", res.BackupID, res.Root, res.Files),
		app:    &model.AppStateUpdate{State: model.AppStateDeploying},
	}, nil
}

func (p *Pipeline) requireApp(r *run) (*model.Application, error) {
	if r.app == nil {
		return nil, apperrors.NotFoundf("application %s not found", r.job.AppID)
	}
	return r.app, nil
}

func isGitTree(root string) bool {
	_, err := os.Stat(filepath.Join(root, ".git"))
	return err == nil
}

func shortRef(ref string) string {
	if len(ref) > 12 {
		return ref[:12]
	}
	if ref == "" {
		return "(none)"
	}
	return ref
}

func refSuffix(ref string) string {
	if ref == "" {
		return ""
	}
	return " at " + shortRef(ref)
}
