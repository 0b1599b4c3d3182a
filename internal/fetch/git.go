package fetch

import (
	"context"
	"strings"

	"github.com/hoover/setup/internal/errs"
	"github.com/hoover/setup/internal/run"
)

// Git performs repository operations by shelling out to the git binary, the
// same way the installer reaches every other external tool.
type Git struct {
	Runner run.Runner
}

// Clone checks out the given branch of url into dir.
func (g Git) Clone(ctx context.Context, url, branch, dir string) error {
	out, err := g.Runner.Run(ctx, "", "git", "clone", "--branch", branch, url, dir)
	if err != nil {
		return errs.Wrap(errs.KindNetwork, err, "clone %s (%s): %s", url, branch, run.FirstLine(out))
	}
	return nil
}

// Update moves an existing checkout to the head of branch. fetch + reset
// rather than pull, so a locally dirtied checkout cannot wedge upgrades on
// merge conflicts.
func (g Git) Update(ctx context.Context, dir, branch string) error {
	out, err := g.Runner.Run(ctx, dir, "git", "fetch", "origin", branch)
	if err != nil {
		return errs.Wrap(errs.KindNetwork, err, "fetch %s: %s", branch, run.FirstLine(out))
	}
	out, err = g.Runner.Run(ctx, dir, "git", "reset", "--hard", "FETCH_HEAD")
	if err != nil {
		return errs.Wrap(errs.KindExecution, err, "reset to FETCH_HEAD: %s", run.FirstLine(out))
	}
	return nil
}

// Head returns the commit hash of a local checkout.
func (g Git) Head(ctx context.Context, dir string) (string, error) {
	out, err := g.Runner.Run(ctx, dir, "git", "rev-parse", "HEAD")
	if err != nil {
		return "", errs.Wrap(errs.KindExecution, err, "rev-parse in %s: %s", dir, run.FirstLine(out))
	}
	return strings.TrimSpace(string(out)), nil
}

// RemoteHead resolves the commit hash at the tip of branch on the remote
// without touching the local checkout.
func (g Git) RemoteHead(ctx context.Context, url, branch string) (string, error) {
	out, err := g.Runner.Run(ctx, "", "git", "ls-remote", url, "refs/heads/"+branch)
	if err != nil {
		return "", errs.Wrap(errs.KindNetwork, err, "ls-remote %s: %s", url, run.FirstLine(out))
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return "", errs.New(errs.KindNetwork, "branch %s not found on %s", branch, url)
	}
	return fields[0], nil
}
