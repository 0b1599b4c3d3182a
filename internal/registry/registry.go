package registry

import (
	"path/filepath"

	"github.com/hoover/setup/internal/env"
)

// Command is one external invocation: an argv and the directory to run it
// in. An empty Dir means the installation home.
type Command struct {
	Dir  string
	Argv []string
}

// Component declares one installable sub-service of the suite. Components
// are declared statically at registry construction and never mutated at run
// time; everything environment-dependent is baked in from the Resolved
// snapshot.
type Component struct {
	Name       string
	RepoURL    string
	Branch     string
	ArchiveURL string // when set, install from a release archive instead of git
	Dir        string // checkout directory, absolute

	// DepsCmds provision the component's runtime and dependencies, in order
	// (virtualenv + pip for the Python services, npm for the UI).
	DepsCmds []Command
	// MigrateCmd runs the component's idempotent migration entrypoint.
	// Empty argv means the component has no migrations.
	MigrateCmd Command
	// SetupCmds run after migrations to finish preparing the checkout
	// (asset downloads, static file collection), in order.
	SetupCmds []Command
	// HealthCmd runs the component's health-check entrypoint; exit status is
	// the pass/fail signal.
	HealthCmd Command
	// ManageCmd is the component's management entrypoint for passthrough
	// invocations. Empty argv means none.
	ManageCmd Command

	// Templates maps embedded config template names to rendered file names.
	Templates map[string]string
	// ConfigLink is the path, relative to Dir, where the component expects
	// its rendered config; it is symlinked into the managed config dir.
	ConfigLink string

	// DependsOn lists components whose actions must complete first.
	DependsOn []string
}

// Serve builds the component's webserver command for the given bind
// address. A nil return means the component has no server to run.
func (c Component) Serve(venvBin func(string, string) string, host, port string) *Command {
	switch c.Name {
	case "search":
		return &Command{Dir: c.Dir, Argv: []string{
			venvBin("search", "waitress-serve"),
			"--host=" + host, "--port=" + port,
			"hoover.site.wsgi:application",
		}}
	case "snoop":
		return &Command{Dir: c.Dir, Argv: []string{
			venvBin("snoop", "waitress-serve"),
			"--host=" + host, "--port=" + port,
			"snoop.site.wsgi:application",
		}}
	}
	return nil
}

// VenvBin returns the path of an executable inside a component's
// virtualenv under the installation home.
func VenvBin(home string) func(name, bin string) string {
	return func(name, bin string) string {
		return filepath.Join(home, "venvs", name, "bin", bin)
	}
}

// Components builds the static registry for this installation. Declaration
// order is the deterministic tie-break for plan ordering: search, snoop, ui.
func Components(cfg env.Resolved) []Component {
	venv := VenvBin(cfg.Home)
	venvDir := func(name string) string { return filepath.Join(cfg.Home, "venvs", name) }

	searchDir := filepath.Join(cfg.Home, "search")
	snoopDir := filepath.Join(cfg.Home, "snoop")
	uiDir := filepath.Join(cfg.Home, "ui")

	return []Component{
		{
			Name:       "search",
			RepoURL:    cfg.SearchRepo,
			Branch:     cfg.SearchBranch,
			ArchiveURL: cfg.SearchArchive,
			Dir:        searchDir,
			DepsCmds: []Command{
				{Argv: []string{"python3", "-m", "venv", venvDir("search")}},
				{Argv: []string{venv("search", "pip"), "install", "-r",
					filepath.Join(searchDir, "requirements.txt")}},
			},
			MigrateCmd: Command{Dir: searchDir, Argv: []string{
				venv("search", "python"), filepath.Join(searchDir, "manage.py"), "migrate"}},
			SetupCmds: []Command{
				{Dir: searchDir, Argv: []string{
					venv("search", "python"), filepath.Join(searchDir, "manage.py"), "downloadassets"}},
				{Dir: searchDir, Argv: []string{
					venv("search", "python"), filepath.Join(searchDir, "manage.py"), "collectstatic", "--noinput"}},
			},
			HealthCmd: Command{Dir: searchDir, Argv: []string{
				venv("search", "python"), filepath.Join(searchDir, "manage.py"), "check"}},
			ManageCmd: Command{Dir: searchDir, Argv: []string{
				venv("search", "python"), filepath.Join(searchDir, "manage.py")}},
			Templates:  map[string]string{"search_settings.py.tmpl": "local.py"},
			ConfigLink: filepath.Join("hoover", "site", "settings", "local.py"),
		},
		{
			Name:       "snoop",
			RepoURL:    cfg.SnoopRepo,
			Branch:     cfg.SnoopBranch,
			ArchiveURL: cfg.SnoopArchive,
			Dir:        snoopDir,
			DepsCmds: []Command{
				{Argv: []string{"python3", "-m", "venv", venvDir("snoop")}},
				{Argv: []string{venv("snoop", "pip"), "install", "-r",
					filepath.Join(snoopDir, "requirements.txt")}},
			},
			MigrateCmd: Command{Dir: snoopDir, Argv: []string{
				venv("snoop", "python"), filepath.Join(snoopDir, "manage.py"), "migrate"}},
			HealthCmd: Command{Dir: snoopDir, Argv: []string{
				venv("snoop", "python"), filepath.Join(snoopDir, "manage.py"), "check"}},
			ManageCmd: Command{Dir: snoopDir, Argv: []string{
				venv("snoop", "python"), filepath.Join(snoopDir, "manage.py")}},
			Templates:  map[string]string{"snoop_settings.py.tmpl": "local.py"},
			ConfigLink: filepath.Join("snoop", "site", "settings", "local.py"),
		},
		{
			Name:       "ui",
			RepoURL:    cfg.UIRepo,
			Branch:     cfg.UIBranch,
			ArchiveURL: cfg.UIArchive,
			Dir:        uiDir,
			DepsCmds: []Command{
				{Dir: uiDir, Argv: []string{"npm", "install"}},
				{Dir: uiDir, Argv: []string{"./run", "build"}},
			},
			HealthCmd: Command{Dir: uiDir, Argv: []string{"./run", "check"}},
			// The UI serves static files through search; it has no
			// migrations and no config of its own.
			DependsOn: []string{"search", "snoop"},
		},
	}
}

// Get looks a component up by name.
func Get(components []Component, name string) (Component, bool) {
	for _, c := range components {
		if c.Name == name {
			return c, true
		}
	}
	return Component{}, false
}
