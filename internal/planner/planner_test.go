package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoover/setup/internal/errs"
	"github.com/hoover/setup/internal/manifest"
	"github.com/hoover/setup/internal/registry"
)

type fakeHeads struct {
	heads map[string]string
	err   error
	calls int
}

func (f *fakeHeads) Head(ctx context.Context, c registry.Component) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.heads[c.Name], nil
}

type fakeHasher struct {
	hashes map[string]string
}

func (f fakeHasher) Hash(c registry.Component) string { return f.hashes[c.Name] }

func testComponents() []registry.Component {
	return []registry.Component{
		{Name: "search", Templates: map[string]string{"search.tmpl": "local.py"}},
		{Name: "snoop", Templates: map[string]string{"snoop.tmpl": "local.py"}},
		{Name: "ui", DependsOn: []string{"search", "snoop"}},
	}
}

func installedManifest() *manifest.Manifest {
	man := manifest.New()
	man.Set("search", manifest.Record{ClonedCommit: "s1", ConfigHash: "h-search"})
	man.Set("snoop", manifest.Record{ClonedCommit: "n1", ConfigHash: "h-snoop"})
	man.Set("ui", manifest.Record{ClonedCommit: "u1"})
	return man
}

func currentState() (*fakeHeads, fakeHasher) {
	heads := &fakeHeads{heads: map[string]string{"search": "s1", "snoop": "n1", "ui": "u1"}}
	hasher := fakeHasher{hashes: map[string]string{"search": "h-search", "snoop": "h-snoop"}}
	return heads, hasher
}

func kindsFor(plan *Plan, component string) []Kind {
	var kinds []Kind
	for _, a := range plan.Actions {
		if a.Component == component {
			kinds = append(kinds, a.Kind)
		}
	}
	return kinds
}

func TestFreshInstallPlansFullSequence(t *testing.T) {
	heads, hasher := currentState()
	plan, err := Build(context.Background(), testComponents(), manifest.New(), hasher, heads)
	require.NoError(t, err)

	full := []Kind{Clone, SyncDeps, RenderConfig, Migrate, HealthCheck}
	assert.Equal(t, full, kindsFor(plan, "search"))
	assert.Equal(t, full, kindsFor(plan, "snoop"))
	assert.Equal(t, full, kindsFor(plan, "ui"))
	assert.Len(t, plan.Actions, 15)

	// No network traffic for components the manifest has never seen.
	assert.Zero(t, heads.calls)
}

func TestPlanIsIdempotent(t *testing.T) {
	heads, hasher := currentState()

	plan, err := Build(context.Background(), testComponents(), installedManifest(), hasher, heads)
	require.NoError(t, err)
	assert.True(t, plan.Empty())

	// Same inputs, same (empty) answer.
	again, err := Build(context.Background(), testComponents(), installedManifest(), hasher, heads)
	require.NoError(t, err)
	assert.True(t, again.Empty())
}

func TestVersionDriftPlansUpdateSequence(t *testing.T) {
	heads, hasher := currentState()
	heads.heads["snoop"] = "n2"

	plan, err := Build(context.Background(), testComponents(), installedManifest(), hasher, heads)
	require.NoError(t, err)

	assert.Equal(t, []Kind{Update, SyncDeps, RenderConfig, Migrate, HealthCheck}, kindsFor(plan, "snoop"))
	assert.Empty(t, kindsFor(plan, "search"))
	assert.Empty(t, kindsFor(plan, "ui"))
}

func TestConfigChangePlansRenderOnly(t *testing.T) {
	heads, hasher := currentState()
	hasher.hashes["search"] = "h-search-changed"
	hasher.hashes["snoop"] = "h-snoop-changed"

	plan, err := Build(context.Background(), testComponents(), installedManifest(), hasher, heads)
	require.NoError(t, err)

	assert.Equal(t, []Kind{RenderConfig}, kindsFor(plan, "search"))
	assert.Equal(t, []Kind{RenderConfig}, kindsFor(plan, "snoop"))
	// ui has no templates, so a config change cannot affect it.
	assert.Empty(t, kindsFor(plan, "ui"))
}

func TestDependenciesOrderedBeforeDependents(t *testing.T) {
	heads, hasher := currentState()
	plan, err := Build(context.Background(), testComponents(), manifest.New(), hasher, heads)
	require.NoError(t, err)

	lastBackend := -1
	firstUI := len(plan.Actions)
	for i, a := range plan.Actions {
		if a.Component == "search" || a.Component == "snoop" {
			lastBackend = i
		}
		if a.Component == "ui" && i < firstUI {
			firstUI = i
		}
	}
	assert.Less(t, lastBackend, firstUI,
		"all backend actions must precede every ui action")
}

func TestRegistryOrderBreaksTies(t *testing.T) {
	heads, hasher := currentState()
	plan, err := Build(context.Background(), testComponents(), manifest.New(), hasher, heads)
	require.NoError(t, err)

	// search and snoop are independent; declaration order decides.
	assert.Equal(t, "search", plan.Actions[0].Component)
	assert.Equal(t, "snoop", plan.Actions[5].Component)
}

func TestHeadResolutionErrorAbortsPlanning(t *testing.T) {
	heads, hasher := currentState()
	heads.err = errs.New(errs.KindNetwork, "ls-remote timed out")

	_, err := Build(context.Background(), testComponents(), installedManifest(), hasher, heads)
	require.Error(t, err)
	assert.Equal(t, errs.KindNetwork, errs.KindOf(err))
}

func TestUnknownDependencyRejected(t *testing.T) {
	components := []registry.Component{
		{Name: "ui", DependsOn: []string{"ghost"}},
	}
	heads, hasher := currentState()
	_, err := Build(context.Background(), components, manifest.New(), hasher, heads)
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestDependencyCycleRejected(t *testing.T) {
	components := []registry.Component{
		{Name: "a", DependsOn: []string{"b"}},
		{Name: "b", DependsOn: []string{"a"}},
	}
	heads, hasher := currentState()
	_, err := Build(context.Background(), components, manifest.New(), hasher, heads)
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestRenderPlanCoversEveryComponent(t *testing.T) {
	plan, err := RenderPlan(testComponents())
	require.NoError(t, err)
	require.Len(t, plan.Actions, 3)
	for _, a := range plan.Actions {
		assert.Equal(t, RenderConfig, a.Kind)
	}
}

func TestHealthPlan(t *testing.T) {
	plan, err := HealthPlan(testComponents(), "")
	require.NoError(t, err)
	assert.Len(t, plan.Actions, 3)

	plan, err = HealthPlan(testComponents(), "snoop")
	require.NoError(t, err)
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, Action{"snoop", HealthCheck}, plan.Actions[0])

	_, err = HealthPlan(testComponents(), "ghost")
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}
