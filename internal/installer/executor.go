package installer

import (
	"context"
	"os"
	"time"

	"github.com/hoover/setup/internal/env"
	"github.com/hoover/setup/internal/errs"
	"github.com/hoover/setup/internal/fetch"
	"github.com/hoover/setup/internal/logger"
	"github.com/hoover/setup/internal/manifest"
	"github.com/hoover/setup/internal/planner"
	"github.com/hoover/setup/internal/registry"
	"github.com/hoover/setup/internal/render"
	"github.com/hoover/setup/internal/retry"
	"github.com/hoover/setup/internal/run"
)

// Status is the outcome of one executed action.
type Status int

const (
	Success Status = iota
	Skipped
	Failed
)

func (s Status) String() string {
	switch s {
	case Success:
		return "ok"
	case Skipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Result records how one planned action went.
type Result struct {
	Action planner.Action
	Status Status
	Reason string // set for Skipped
	Err    error  // set for Failed
}

// Report is the outcome of one plan execution. Degraded means every
// structural action succeeded but at least one health check failed.
type Report struct {
	Results  []Result
	Degraded bool
}

// Executor runs a plan sequentially, checkpointing the manifest after every
// successful action so an interrupted or failed run can resume exactly
// where it stopped.
type Executor struct {
	Cfg        env.Resolved
	Components []registry.Component
	Man        *manifest.Manifest
	Runner     run.Runner
	Git        fetch.Git
	Renderer   *render.Renderer

	// ReadOnly suppresses manifest updates; used by doctor.
	ReadOnly bool

	// Attempts and Backoff bound retries of network-class actions (clone,
	// update, dependency sync). Render and migrate are never retried: a
	// blind retry risks masking the failure cause or double-applying work.
	Attempts int
	Backoff  time.Duration

	// NetTimeout bounds clone/update/health-check; DepsTimeout bounds
	// dependency sync, which routinely outlives a one-minute budget.
	NetTimeout  time.Duration
	DepsTimeout time.Duration

	manifestPath string
}

// New builds an executor with the installer defaults.
func New(cfg env.Resolved, components []registry.Component, man *manifest.Manifest, runner run.Runner) *Executor {
	return &Executor{
		Cfg:          cfg,
		Components:   components,
		Man:          man,
		Runner:       runner,
		Git:          fetch.Git{Runner: runner},
		Renderer:     render.New(cfg.ConfigDir, cfg),
		Attempts:     3,
		Backoff:      2 * time.Second,
		NetTimeout:   60 * time.Second,
		DepsTimeout:  10 * time.Minute,
		manifestPath: manifest.Path(cfg.Home),
	}
}

// Execute runs the plan in order. On the first structural failure the
// remaining actions are abandoned and the error is returned; the manifest
// already reflects every action that succeeded before it. Health-check
// failures do not halt execution: they mark the report degraded and leave
// last_healthy_at untouched.
func (e *Executor) Execute(ctx context.Context, plan *planner.Plan) (*Report, error) {
	report := &Report{}
	for _, action := range plan.Actions {
		if err := ctx.Err(); err != nil {
			return report, errs.Wrap(errs.KindExecution, err, "interrupted before %s %s",
				action.Kind, action.Component)
		}

		c, ok := registry.Get(e.Components, action.Component)
		if !ok {
			return report, errs.New(errs.KindValidation, "plan references unknown component %q", action.Component)
		}

		res := e.runAction(ctx, action, c)
		report.Results = append(report.Results, res)

		switch res.Status {
		case Failed:
			if action.Kind == planner.HealthCheck {
				logger.Warn("[WARN] Health check failed for %s: %v\n", c.Name, res.Err)
				report.Degraded = true
				continue
			}
			logger.Error("[ERROR] %s %s failed: %v\n", action.Kind, c.Name, res.Err)
			return report, res.Err
		case Skipped:
			logger.Info("[INFO] %s %s skipped: %s\n", action.Kind, c.Name, res.Reason)
		default:
			logger.Info("[INFO] %s %s done\n", action.Kind, c.Name)
		}
	}
	return report, nil
}

// runAction dispatches one action and, on success, persists the updated
// manifest before returning, so the on-disk record never runs ahead of or
// behind what actually happened.
func (e *Executor) runAction(ctx context.Context, action planner.Action, c registry.Component) Result {
	rec, _ := e.Man.Component(c.Name)

	var (
		skipReason string
		err        error
	)
	switch action.Kind {
	case planner.Clone:
		err = e.clone(ctx, c, &rec)
	case planner.Update:
		err = e.update(ctx, c, &rec)
	case planner.SyncDeps:
		err = e.syncDeps(ctx, c, &rec)
	case planner.RenderConfig:
		skipReason, err = e.renderConfig(c, &rec)
	case planner.Migrate:
		skipReason, err = e.migrate(ctx, c, &rec)
	case planner.HealthCheck:
		skipReason, err = e.healthCheck(ctx, c, &rec)
	default:
		err = errs.New(errs.KindValidation, "unknown action kind %q", action.Kind)
	}

	if err != nil {
		return Result{Action: action, Status: Failed, Err: err}
	}
	if !e.ReadOnly {
		e.Man.Set(c.Name, rec)
		if err := e.Man.Save(e.manifestPath); err != nil {
			return Result{Action: action, Status: Failed, Err: err}
		}
	}
	if skipReason != "" {
		return Result{Action: action, Status: Skipped, Reason: skipReason}
	}
	return Result{Action: action, Status: Success}
}

func (e *Executor) clone(ctx context.Context, c registry.Component, rec *manifest.Record) error {
	// A leftover checkout from an interrupted run is brought up to date
	// instead of re-cloned.
	if _, statErr := os.Stat(c.Dir); statErr == nil {
		logger.Debug("[DEBUG] %s already exists, updating instead of cloning\n", c.Dir)
		return e.update(ctx, c, rec)
	}

	if c.ArchiveURL != "" {
		err := e.withRetry(ctx, "fetch archive for "+c.Name, func(opCtx context.Context) error {
			return fetch.InstallArchive(opCtx, c.ArchiveURL, c.Dir)
		})
		if err != nil {
			return err
		}
		rec.ClonedCommit = fetch.ArchiveID(c.ArchiveURL)
		return nil
	}

	err := e.withRetry(ctx, "clone "+c.Name, func(opCtx context.Context) error {
		opCtx, cancel := context.WithTimeout(opCtx, e.NetTimeout)
		defer cancel()
		return e.Git.Clone(opCtx, c.RepoURL, c.Branch, c.Dir)
	})
	if err != nil {
		return err
	}
	return e.recordHead(ctx, c, rec)
}

func (e *Executor) update(ctx context.Context, c registry.Component, rec *manifest.Record) error {
	if c.ArchiveURL != "" {
		err := e.withRetry(ctx, "fetch archive for "+c.Name, func(opCtx context.Context) error {
			return fetch.InstallArchive(opCtx, c.ArchiveURL, c.Dir)
		})
		if err != nil {
			return err
		}
		rec.ClonedCommit = fetch.ArchiveID(c.ArchiveURL)
		return nil
	}

	err := e.withRetry(ctx, "update "+c.Name, func(opCtx context.Context) error {
		opCtx, cancel := context.WithTimeout(opCtx, e.NetTimeout)
		defer cancel()
		return e.Git.Update(opCtx, c.Dir, c.Branch)
	})
	if err != nil {
		return err
	}
	return e.recordHead(ctx, c, rec)
}

func (e *Executor) recordHead(ctx context.Context, c registry.Component, rec *manifest.Record) error {
	head, err := e.Git.Head(ctx, c.Dir)
	if err != nil {
		return err
	}
	rec.ClonedCommit = head
	return nil
}

// syncDeps provisions the component's runtime and installs its
// dependencies. Failures are network-class: pip and npm failures are
// overwhelmingly fetch failures, and a retry is cheap and safe here because
// both entrypoints are idempotent.
func (e *Executor) syncDeps(ctx context.Context, c registry.Component, rec *manifest.Record) error {
	for _, cmd := range c.DepsCmds {
		cmd := cmd
		err := e.withRetry(ctx, "sync dependencies for "+c.Name, func(opCtx context.Context) error {
			opCtx, cancel := context.WithTimeout(opCtx, e.DepsTimeout)
			defer cancel()
			out, runErr := e.Runner.Run(opCtx, cmd.Dir, cmd.Argv...)
			if runErr != nil {
				return errs.Wrap(errs.KindNetwork, runErr, "%s: %s", cmd.Argv[0], run.FirstLine(out))
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	rec.DepsSyncedAt = time.Now().UTC()
	return nil
}

func (e *Executor) renderConfig(c registry.Component, rec *manifest.Record) (string, error) {
	hash, rendered, err := e.Renderer.Render(c)
	if err != nil {
		return "", err
	}
	if !rendered {
		return "no config templates", nil
	}
	rec.ConfigHash = hash
	return "", nil
}

// migrate runs the component's migration entrypoint followed by its setup
// commands (asset download, static collection). None of them are retried:
// they run against local state a blind retry could double-apply.
func (e *Executor) migrate(ctx context.Context, c registry.Component, rec *manifest.Record) (string, error) {
	if len(c.MigrateCmd.Argv) == 0 && len(c.SetupCmds) == 0 {
		return "no migrations", nil
	}
	if len(c.MigrateCmd.Argv) > 0 {
		if err := e.runSetupCmd(ctx, "migrate "+c.Name, c.MigrateCmd); err != nil {
			return "", err
		}
	}
	for _, cmd := range c.SetupCmds {
		if err := e.runSetupCmd(ctx, "set up "+c.Name, cmd); err != nil {
			return "", err
		}
	}
	rec.MigratedAt = time.Now().UTC()
	return "", nil
}

func (e *Executor) runSetupCmd(ctx context.Context, op string, cmd registry.Command) error {
	opCtx, cancel := context.WithTimeout(ctx, e.DepsTimeout)
	defer cancel()
	out, err := e.Runner.Run(opCtx, cmd.Dir, cmd.Argv...)
	if err != nil {
		return errs.Wrap(errs.KindExecution, err, "%s: %s", op, run.FirstLine(out))
	}
	return nil
}

func (e *Executor) healthCheck(ctx context.Context, c registry.Component, rec *manifest.Record) (string, error) {
	if len(c.HealthCmd.Argv) == 0 {
		return "no health check", nil
	}
	opCtx, cancel := context.WithTimeout(ctx, e.NetTimeout)
	defer cancel()
	out, err := e.Runner.Run(opCtx, c.HealthCmd.Dir, c.HealthCmd.Argv...)
	if err != nil {
		return "", errs.Wrap(errs.KindHealth, err, "health check %s: %s", c.Name, run.FirstLine(out))
	}
	rec.LastHealthyAt = time.Now().UTC()
	return "", nil
}

func (e *Executor) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	return retry.Policy{Attempts: e.Attempts, Backoff: e.Backoff}.Do(ctx, op, fn)
}
