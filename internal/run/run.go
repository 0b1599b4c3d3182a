package run

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/hoover/setup/internal/logger"
)

// Runner executes one external command and returns its combined output.
// The single seam through which the installer reaches git, pip, npm and the
// component entrypoints, so tests can substitute a fake.
type Runner interface {
	Run(ctx context.Context, dir string, argv ...string) ([]byte, error)
}

// Exec is the production Runner backed by os/exec.
type Exec struct{}

func (Exec) Run(ctx context.Context, dir string, argv ...string) ([]byte, error) {
	logger.Debug("[DEBUG] Running command: %s (in %s)\n", strings.Join(argv, " "), dir)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// FirstLine reduces a command's combined output to its first line, capped
// at 200 characters, for inclusion in error messages.
func FirstLine(out []byte) string {
	s := strings.TrimSpace(string(out))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return "no output"
	}
	return fmt.Sprintf("%.200s", s)
}

// Interactive executes a command wired to the current process's stdio and
// blocks until it exits. Used by the webserver and manage passthroughs,
// which hand the terminal over to the component.
func Interactive(dir string, argv ...string) error {
	logger.Debug("[DEBUG] Running command: %s (in %s)\n", strings.Join(argv, " "), dir)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
