package installer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hoover/setup/internal/env"
	"github.com/hoover/setup/internal/errs"
	"github.com/hoover/setup/internal/fetch"
	"github.com/hoover/setup/internal/logger"
	"github.com/hoover/setup/internal/run"
)

const hooverScript = `#!/bin/sh
export HOOVER_HOME='%s'
exec '%s' "$@"
`

// EnsureLayout creates the installation home skeleton.
func EnsureLayout(home string) error {
	for _, dir := range []string{home, filepath.Join(home, "venvs"), filepath.Join(home, "bin")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errs.Wrap(errs.KindExecution, err, "create %s", dir)
		}
	}
	return nil
}

// CreateScripts writes the bin/hoover wrapper: a shell stub that pins
// HOOVER_HOME and re-executes this binary, so the suite can be driven from
// anywhere once bin/ is on PATH.
func CreateScripts(home string) error {
	exe, err := os.Executable()
	if err != nil {
		return errs.Wrap(errs.KindExecution, err, "locate own executable")
	}
	path := filepath.Join(home, "bin", "hoover")
	script := fmt.Sprintf(hooverScript, home, exe)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		return errs.Wrap(errs.KindExecution, err, "write %s", path)
	}
	logger.Debug("[DEBUG] Wrote wrapper script %s\n", path)
	return nil
}

// UpdateSetup brings the setup checkout itself forward and rewrites the
// wrapper script. This is the update command: deliberately outside the
// manifest-driven plan, matching the component-agnostic self-update of the
// original installer.
func UpdateSetup(ctx context.Context, runner run.Runner, cfg env.Resolved) error {
	git := fetch.Git{Runner: runner}
	dir := filepath.Join(cfg.Home, "setup")

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := git.Clone(ctx, cfg.SetupRepo, cfg.SetupBranch, dir); err != nil {
			return err
		}
	} else if err := git.Update(ctx, dir, cfg.SetupBranch); err != nil {
		return err
	}
	return CreateScripts(cfg.Home)
}
