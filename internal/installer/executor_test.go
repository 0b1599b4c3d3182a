package installer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoover/setup/internal/env"
	"github.com/hoover/setup/internal/errs"
	"github.com/hoover/setup/internal/manifest"
	"github.com/hoover/setup/internal/planner"
	"github.com/hoover/setup/internal/registry"
)

// fakeRunner records every invocation and lets a test script failures per
// command.
type fakeRunner struct {
	calls   [][]string
	respond func(argv []string) (string, error)
}

func (f *fakeRunner) Run(ctx context.Context, dir string, argv ...string) ([]byte, error) {
	f.calls = append(f.calls, argv)
	if f.respond != nil {
		out, err := f.respond(argv)
		return []byte(out), err
	}
	return nil, nil
}

func (f *fakeRunner) count(prefix ...string) int {
	n := 0
	for _, call := range f.calls {
		if len(call) < len(prefix) {
			continue
		}
		if strings.Join(call[:len(prefix)], " ") == strings.Join(prefix, " ") {
			n++
		}
	}
	return n
}

func is(argv []string, prefix ...string) bool {
	if len(argv) < len(prefix) {
		return false
	}
	return strings.Join(argv[:len(prefix)], " ") == strings.Join(prefix, " ")
}

func testEnv(t *testing.T) env.Resolved {
	t.Helper()
	home := t.TempDir()
	cfg, err := env.Resolve(func(name string) string {
		if name == env.VarHome {
			return home
		}
		return ""
	})
	require.NoError(t, err)
	return cfg
}

func searchComponent(cfg env.Resolved) registry.Component {
	dir := filepath.Join(cfg.Home, "search")
	return registry.Component{
		Name:    "search",
		RepoURL: "https://git.example.com/search.git",
		Branch:  "master",
		Dir:     dir,
		DepsCmds: []registry.Command{
			{Argv: []string{"pip", "install", "-r", "requirements.txt"}},
		},
		MigrateCmd: registry.Command{Dir: dir, Argv: []string{"python", "manage.py", "migrate"}},
		SetupCmds: []registry.Command{
			{Dir: dir, Argv: []string{"python", "manage.py", "collectstatic", "--noinput"}},
		},
		HealthCmd: registry.Command{Dir: dir, Argv: []string{"python", "manage.py", "check"}},
		Templates: map[string]string{"search_settings.py.tmpl": "local.py"},
	}
}

func uiComponent(cfg env.Resolved) registry.Component {
	dir := filepath.Join(cfg.Home, "ui")
	return registry.Component{
		Name:    "ui",
		RepoURL: "https://git.example.com/ui.git",
		Branch:  "master",
		Dir:     dir,
		DepsCmds: []registry.Command{
			{Dir: dir, Argv: []string{"npm", "install"}},
		},
		DependsOn: []string{"search"},
	}
}

func newTestExecutor(t *testing.T, cfg env.Resolved, components []registry.Component, runner *fakeRunner) *Executor {
	t.Helper()
	e := New(cfg, components, manifest.New(), runner)
	e.Backoff = 0
	return e
}

func fullPlan(name string) *planner.Plan {
	return &planner.Plan{Actions: []planner.Action{
		{Component: name, Kind: planner.Clone},
		{Component: name, Kind: planner.SyncDeps},
		{Component: name, Kind: planner.RenderConfig},
		{Component: name, Kind: planner.Migrate},
		{Component: name, Kind: planner.HealthCheck},
	}}
}

func gitAware(respond func(argv []string) (string, error)) func(argv []string) (string, error) {
	return func(argv []string) (string, error) {
		if is(argv, "git", "rev-parse") {
			return "abc123\n", nil
		}
		if respond != nil {
			return respond(argv)
		}
		return "", nil
	}
}

func TestFullBootstrapRecordsEveryStep(t *testing.T) {
	cfg := testEnv(t)
	runner := &fakeRunner{respond: gitAware(nil)}
	e := newTestExecutor(t, cfg, []registry.Component{searchComponent(cfg)}, runner)

	report, err := e.Execute(context.Background(), fullPlan("search"))
	require.NoError(t, err)
	assert.False(t, report.Degraded)
	require.Len(t, report.Results, 5)
	for _, res := range report.Results {
		assert.Equal(t, Success, res.Status, "%s should succeed", res.Action.Kind)
	}

	man, err := manifest.Load(manifest.Path(cfg.Home))
	require.NoError(t, err)
	rec, ok := man.Component("search")
	require.True(t, ok)
	assert.Equal(t, "abc123", rec.ClonedCommit)
	assert.False(t, rec.DepsSyncedAt.IsZero())
	assert.NotEmpty(t, rec.ConfigHash)
	assert.False(t, rec.MigratedAt.IsZero())
	assert.False(t, rec.LastHealthyAt.IsZero())

	assert.Equal(t, 1, runner.count("git", "clone"))
	assert.Equal(t, 1, runner.count("pip", "install"))
	assert.Equal(t, 1, runner.count("python", "manage.py", "migrate"))
	assert.Equal(t, 1, runner.count("python", "manage.py", "collectstatic"))
}

func indexOf(calls [][]string, prefix ...string) int {
	for i, call := range calls {
		if is(call, prefix...) {
			return i
		}
	}
	return -1
}

func TestSetupCommandsRunBetweenMigrateAndHealthCheck(t *testing.T) {
	cfg := testEnv(t)
	runner := &fakeRunner{respond: gitAware(nil)}
	e := newTestExecutor(t, cfg, []registry.Component{searchComponent(cfg)}, runner)

	_, err := e.Execute(context.Background(), fullPlan("search"))
	require.NoError(t, err)

	migrate := indexOf(runner.calls, "python", "manage.py", "migrate")
	setup := indexOf(runner.calls, "python", "manage.py", "collectstatic")
	check := indexOf(runner.calls, "python", "manage.py", "check")
	require.NotEqual(t, -1, migrate)
	require.NotEqual(t, -1, setup)
	require.NotEqual(t, -1, check)
	assert.Less(t, migrate, setup)
	assert.Less(t, setup, check)
}

func TestSetupCommandFailureHaltsBeforeHealthCheck(t *testing.T) {
	cfg := testEnv(t)
	runner := &fakeRunner{respond: gitAware(func(argv []string) (string, error) {
		if is(argv, "python", "manage.py", "collectstatic") {
			return "OSError: permission denied", errors.New("exit status 1")
		}
		return "", nil
	})}
	e := newTestExecutor(t, cfg, []registry.Component{searchComponent(cfg)}, runner)

	_, err := e.Execute(context.Background(), fullPlan("search"))
	require.Error(t, err)
	assert.Equal(t, errs.KindExecution, errs.KindOf(err))
	assert.Equal(t, 1, runner.count("python", "manage.py", "collectstatic"))
	assert.Zero(t, runner.count("python", "manage.py", "check"))

	man, loadErr := manifest.Load(manifest.Path(cfg.Home))
	require.NoError(t, loadErr)
	rec, ok := man.Component("search")
	require.True(t, ok)
	assert.True(t, rec.MigratedAt.IsZero())
}

func TestCloneFailureRetriesThenHalts(t *testing.T) {
	cfg := testEnv(t)
	runner := &fakeRunner{respond: gitAware(func(argv []string) (string, error) {
		if is(argv, "git", "clone") {
			return "fatal: unable to access", errors.New("exit status 128")
		}
		return "", nil
	})}
	e := newTestExecutor(t, cfg, []registry.Component{searchComponent(cfg)}, runner)

	report, err := e.Execute(context.Background(), fullPlan("search"))
	require.Error(t, err)
	assert.Equal(t, errs.KindNetwork, errs.KindOf(err))

	// Bounded retry: three attempts, then give up.
	assert.Equal(t, 3, runner.count("git", "clone"))
	// Fail fast: nothing after the failed clone ran.
	assert.Zero(t, runner.count("pip"))
	require.Len(t, report.Results, 1)
	assert.Equal(t, Failed, report.Results[0].Status)

	// The manifest never saw the component.
	man, loadErr := manifest.Load(manifest.Path(cfg.Home))
	require.NoError(t, loadErr)
	_, ok := man.Component("search")
	assert.False(t, ok)
}

func TestMigrateIsNeverRetried(t *testing.T) {
	cfg := testEnv(t)
	runner := &fakeRunner{respond: gitAware(func(argv []string) (string, error) {
		if is(argv, "python", "manage.py", "migrate") {
			return "relation already exists", errors.New("exit status 1")
		}
		return "", nil
	})}
	e := newTestExecutor(t, cfg, []registry.Component{searchComponent(cfg)}, runner)

	_, err := e.Execute(context.Background(), fullPlan("search"))
	require.Error(t, err)
	assert.Equal(t, errs.KindExecution, errs.KindOf(err))
	assert.Equal(t, 1, runner.count("python", "manage.py", "migrate"))
	// Neither the setup commands nor the health check ran.
	assert.Zero(t, runner.count("python", "manage.py", "collectstatic"))
	assert.Zero(t, runner.count("python", "manage.py", "check"))

	// Everything up to the failure is checkpointed, so a re-run resumes
	// from migrate rather than re-cloning.
	man, loadErr := manifest.Load(manifest.Path(cfg.Home))
	require.NoError(t, loadErr)
	rec, ok := man.Component("search")
	require.True(t, ok)
	assert.Equal(t, "abc123", rec.ClonedCommit)
	assert.False(t, rec.DepsSyncedAt.IsZero())
	assert.True(t, rec.MigratedAt.IsZero())
}

func TestHealthCheckFailureDegradesButCompletes(t *testing.T) {
	cfg := testEnv(t)
	runner := &fakeRunner{respond: gitAware(func(argv []string) (string, error) {
		if is(argv, "python", "manage.py", "check") {
			return "SystemCheckError", errors.New("exit status 1")
		}
		return "", nil
	})}
	search := searchComponent(cfg)
	ui := uiComponent(cfg)
	e := newTestExecutor(t, cfg, []registry.Component{search, ui}, runner)

	plan := fullPlan("search")
	plan.Actions = append(plan.Actions, fullPlan("ui").Actions...)

	report, err := e.Execute(context.Background(), plan)
	require.NoError(t, err)
	assert.True(t, report.Degraded)

	// The failed check did not stop the ui actions from running.
	assert.Equal(t, 1, runner.count("npm", "install"))

	man, loadErr := manifest.Load(manifest.Path(cfg.Home))
	require.NoError(t, loadErr)
	rec, ok := man.Component("search")
	require.True(t, ok)
	assert.True(t, rec.LastHealthyAt.IsZero())
	assert.False(t, rec.MigratedAt.IsZero())
}

func TestInapplicableActionsAreSkipped(t *testing.T) {
	cfg := testEnv(t)
	runner := &fakeRunner{respond: gitAware(nil)}
	e := newTestExecutor(t, cfg, []registry.Component{uiComponent(cfg)}, runner)

	report, err := e.Execute(context.Background(), fullPlan("ui"))
	require.NoError(t, err)

	byKind := map[planner.Kind]Result{}
	for _, res := range report.Results {
		byKind[res.Action.Kind] = res
	}
	assert.Equal(t, Skipped, byKind[planner.RenderConfig].Status)
	assert.Equal(t, Skipped, byKind[planner.Migrate].Status)
	assert.Equal(t, Skipped, byKind[planner.HealthCheck].Status)
	assert.Equal(t, Success, byKind[planner.Clone].Status)
}

func TestReadOnlyLeavesManifestAlone(t *testing.T) {
	cfg := testEnv(t)
	runner := &fakeRunner{respond: gitAware(nil)}
	e := newTestExecutor(t, cfg, []registry.Component{searchComponent(cfg)}, runner)
	e.ReadOnly = true

	plan := &planner.Plan{Actions: []planner.Action{
		{Component: "search", Kind: planner.HealthCheck},
	}}
	_, err := e.Execute(context.Background(), plan)
	require.NoError(t, err)

	_, statErr := os.Stat(manifest.Path(cfg.Home))
	assert.True(t, os.IsNotExist(statErr))
}

func TestCancelledContextHaltsBeforeNextAction(t *testing.T) {
	cfg := testEnv(t)
	runner := &fakeRunner{respond: gitAware(nil)}
	e := newTestExecutor(t, cfg, []registry.Component{searchComponent(cfg)}, runner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Execute(ctx, fullPlan("search"))
	require.Error(t, err)
	assert.Zero(t, runner.count("git", "clone"))
}

func TestExistingCheckoutIsUpdatedNotRecloned(t *testing.T) {
	cfg := testEnv(t)
	search := searchComponent(cfg)
	require.NoError(t, os.MkdirAll(search.Dir, 0o755))

	runner := &fakeRunner{respond: gitAware(nil)}
	e := newTestExecutor(t, cfg, []registry.Component{search}, runner)

	plan := &planner.Plan{Actions: []planner.Action{{Component: "search", Kind: planner.Clone}}}
	_, err := e.Execute(context.Background(), plan)
	require.NoError(t, err)

	assert.Zero(t, runner.count("git", "clone"))
	assert.Equal(t, 1, runner.count("git", "fetch"))
	assert.Equal(t, 1, runner.count("git", "reset"))
}
