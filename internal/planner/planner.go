package planner

import (
	"context"

	"github.com/hoover/setup/internal/errs"
	"github.com/hoover/setup/internal/logger"
	"github.com/hoover/setup/internal/manifest"
	"github.com/hoover/setup/internal/registry"
)

// Kind identifies one action type. Within a component the kinds always run
// in the order they are declared here.
type Kind string

const (
	Clone        Kind = "clone"
	Update       Kind = "update"
	SyncDeps     Kind = "sync-deps"
	RenderConfig Kind = "render-config"
	Migrate      Kind = "migrate"
	HealthCheck  Kind = "health-check"
)

// Action is one planned step for one component.
type Action struct {
	Component string
	Kind      Kind
}

// Plan is the ordered action sequence computed for one invocation. Plans
// are recomputed fresh every run and never persisted.
type Plan struct {
	Actions []Action
}

// Empty reports whether the plan has nothing to do.
func (p *Plan) Empty() bool { return len(p.Actions) == 0 }

// HeadResolver resolves the desired version identity of a component: the
// remote branch head for git sources, the archive digest for archive
// sources. It is an interface so planning stays testable without network.
type HeadResolver interface {
	Head(ctx context.Context, c registry.Component) (string, error)
}

// Hasher computes a component's render input hash. Implemented by
// render.Renderer.
type Hasher interface {
	Hash(c registry.Component) string
}

// Build reconciles the registry against the manifest and resolved config
// and returns the ordered action plan.
//
// Per component: absent from the manifest means the full bootstrap
// sequence; a version drift means update + resync + re-render + migrate;
// a changed render hash alone means re-render only. Components are visited
// in dependency order (stable topological sort, registry declaration order
// as tie-break) with each component's actions contiguous, so every
// dependency's actions precede a dependent's.
func Build(ctx context.Context, components []registry.Component, man *manifest.Manifest,
	hasher Hasher, heads HeadResolver) (*Plan, error) {

	ordered, err := sortComponents(components)
	if err != nil {
		return nil, err
	}

	plan := &Plan{}
	for _, c := range ordered {
		actions, err := componentActions(ctx, c, man, hasher, heads)
		if err != nil {
			return nil, err
		}
		plan.Actions = append(plan.Actions, actions...)
	}
	logger.Debug("[DEBUG] Planned %d actions\n", len(plan.Actions))
	return plan, nil
}

func componentActions(ctx context.Context, c registry.Component, man *manifest.Manifest,
	hasher Hasher, heads HeadResolver) ([]Action, error) {

	full := []Action{
		{c.Name, Clone},
		{c.Name, SyncDeps},
		{c.Name, RenderConfig},
		{c.Name, Migrate},
		{c.Name, HealthCheck},
	}

	rec, ok := man.Component(c.Name)
	if !ok || rec.ClonedCommit == "" {
		return full, nil
	}

	head, err := heads.Head(ctx, c)
	if err != nil {
		return nil, err
	}
	if head != rec.ClonedCommit {
		logger.Debug("[DEBUG] %s: installed %s, want %s\n", c.Name, rec.ClonedCommit, head)
		return []Action{
			{c.Name, Update},
			{c.Name, SyncDeps},
			{c.Name, RenderConfig},
			{c.Name, Migrate},
			{c.Name, HealthCheck},
		}, nil
	}

	if len(c.Templates) > 0 && hasher.Hash(c) != rec.ConfigHash {
		return []Action{{c.Name, RenderConfig}}, nil
	}
	return nil, nil
}

// RenderPlan returns a render-only plan covering every component, for
// reconfigure. No head resolution happens, so it never touches the network.
func RenderPlan(components []registry.Component) (*Plan, error) {
	ordered, err := sortComponents(components)
	if err != nil {
		return nil, err
	}
	plan := &Plan{}
	for _, c := range ordered {
		plan.Actions = append(plan.Actions, Action{c.Name, RenderConfig})
	}
	return plan, nil
}

// HealthPlan returns a health-check-only plan, for doctor. An empty name
// selects every component.
func HealthPlan(components []registry.Component, name string) (*Plan, error) {
	ordered, err := sortComponents(components)
	if err != nil {
		return nil, err
	}
	plan := &Plan{}
	for _, c := range ordered {
		if name != "" && c.Name != name {
			continue
		}
		plan.Actions = append(plan.Actions, Action{c.Name, HealthCheck})
	}
	if name != "" && plan.Empty() {
		return nil, errs.New(errs.KindValidation, "unknown component %q", name)
	}
	return plan, nil
}

// sortComponents is a stable Kahn topological sort over the dependency
// edges; ready components are taken in registry declaration order so plans
// are reproducible.
func sortComponents(components []registry.Component) ([]registry.Component, error) {
	indegree := make(map[string]int, len(components))
	known := make(map[string]bool, len(components))
	for _, c := range components {
		known[c.Name] = true
	}
	for _, c := range components {
		for _, dep := range c.DependsOn {
			if !known[dep] {
				return nil, errs.New(errs.KindValidation,
					"component %s depends on unregistered component %s", c.Name, dep)
			}
			indegree[c.Name]++
		}
	}

	done := make(map[string]bool, len(components))
	ordered := make([]registry.Component, 0, len(components))
	for len(ordered) < len(components) {
		progressed := false
		for _, c := range components {
			if done[c.Name] || indegree[c.Name] > 0 {
				continue
			}
			done[c.Name] = true
			ordered = append(ordered, c)
			for _, other := range components {
				for _, dep := range other.DependsOn {
					if dep == c.Name {
						indegree[other.Name]--
					}
				}
			}
			progressed = true
		}
		if !progressed {
			return nil, errs.New(errs.KindValidation, "dependency cycle in component registry")
		}
	}
	return ordered, nil
}
