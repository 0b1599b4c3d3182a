package fetch

import (
	"context"
	"time"

	"github.com/hoover/setup/internal/registry"
	"github.com/hoover/setup/internal/retry"
)

// Heads is the production head resolver for the planner. Git components
// resolve to the remote branch tip via ls-remote; archive components
// resolve to the archive URL digest, which needs no network at all.
type Heads struct {
	Git      Git
	Timeout  time.Duration
	Attempts int
	Backoff  time.Duration
}

// NewHeads builds a resolver with the installer's network defaults.
func NewHeads(git Git) Heads {
	return Heads{Git: git, Timeout: 60 * time.Second, Attempts: 3, Backoff: 2 * time.Second}
}

// Head implements planner.HeadResolver.
func (h Heads) Head(ctx context.Context, c registry.Component) (string, error) {
	if c.ArchiveURL != "" {
		return ArchiveID(c.ArchiveURL), nil
	}

	var head string
	err := retry.Policy{Attempts: h.Attempts, Backoff: h.Backoff}.Do(ctx,
		"resolve head of "+c.Name, func(ctx context.Context) error {
			if h.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, h.Timeout)
				defer cancel()
			}
			var err error
			head, err = h.Git.RemoteHead(ctx, c.RepoURL, c.Branch)
			return err
		})
	if err != nil {
		return "", err
	}
	return head, nil
}
