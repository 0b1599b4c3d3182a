package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/hoover/setup/internal/env"
	"github.com/hoover/setup/internal/errs"
	"github.com/hoover/setup/internal/fetch"
	"github.com/hoover/setup/internal/installer"
	"github.com/hoover/setup/internal/lock"
	"github.com/hoover/setup/internal/logger"
	"github.com/hoover/setup/internal/manifest"
	"github.com/hoover/setup/internal/planner"
	"github.com/hoover/setup/internal/registry"
	"github.com/hoover/setup/internal/run"
)

// app bundles everything a command needs: the resolved environment, the
// manifest, the component registry and a ready executor.
type app struct {
	cfg        env.Resolved
	man        *manifest.Manifest
	components []registry.Component
	exec       *installer.Executor
}

func newApp() (*app, error) {
	home := env.HomeDir(os.Getenv)
	overrides, err := env.LoadOverrides(filepath.Join(home, "hoover.yml"))
	if err != nil {
		return nil, err
	}
	cfg, err := env.ResolveWithOverrides(os.Getenv, overrides)
	if err != nil {
		return nil, err
	}
	man, err := manifest.Load(manifest.Path(cfg.Home))
	if err != nil {
		return nil, err
	}
	components := registry.Components(cfg)
	return &app{
		cfg:        cfg,
		man:        man,
		components: components,
		exec:       installer.New(cfg, components, man, run.Exec{}),
	}, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, so an
// interrupt stops plan execution between actions and in-flight writes stay
// atomic.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// withLock runs fn while holding the installation-wide advisory lock.
func (a *app) withLock(fn func() error) error {
	l := lock.New(a.cfg.Home)
	if err := l.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := l.Release(); err != nil {
			logger.Warn("[WARN] %v\n", err)
		}
	}()
	return fn()
}

// reconcile plans against the current manifest and executes the result.
// Shared by bootstrap and upgrade, whose only difference is the state the
// manifest is in when they run.
func (a *app) reconcile(ctx context.Context) error {
	heads := fetch.NewHeads(fetch.Git{Runner: run.Exec{}})
	plan, err := planner.Build(ctx, a.components, a.man, a.exec.Renderer, heads)
	if err != nil {
		return err
	}
	return a.execute(ctx, plan)
}

// execute runs a plan and folds the report into a single error: nil when
// everything passed, a health-kind error when the run completed degraded.
func (a *app) execute(ctx context.Context, plan *planner.Plan) error {
	if plan.Empty() {
		logger.Info("[INFO] Everything up to date, nothing to do\n")
		return nil
	}

	report, err := a.exec.Execute(ctx, plan)
	printReport(report)
	if err != nil {
		return err
	}
	if report.Degraded {
		return errs.New(errs.KindHealth, "installation updated but one or more health checks failed")
	}
	return nil
}

func printReport(report *installer.Report) {
	for _, res := range report.Results {
		switch res.Status {
		case installer.Failed:
			logger.Error("[ERROR] %-13s %-7s %s\n", res.Action.Kind, res.Action.Component, res.Err)
		case installer.Skipped:
			logger.Debug("[DEBUG] %-13s %-7s skipped (%s)\n", res.Action.Kind, res.Action.Component, res.Reason)
		default:
			logger.Debug("[DEBUG] %-13s %-7s ok\n", res.Action.Kind, res.Action.Component)
		}
	}
}
