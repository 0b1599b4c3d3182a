package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/hoover/setup/internal/errs"
	"github.com/hoover/setup/internal/logger"
)

// FileName is the manifest's fixed location under the installation home.
const FileName = "manifest.json"

// Record is the persisted per-component installation state. Zero-valued
// fields mean the corresponding step has never completed.
type Record struct {
	ClonedCommit  string    `json:"cloned_commit,omitempty"`
	DepsSyncedAt  time.Time `json:"deps_synced_at,omitzero"`
	ConfigHash    string    `json:"config_hash,omitempty"`
	MigratedAt    time.Time `json:"migrated_at,omitzero"`
	LastHealthyAt time.Time `json:"last_healthy_at,omitzero"`
}

// Manifest is the installer's record of what has been successfully
// installed and configured. It is read before every operation and persisted
// after each successful action. Unknown JSON fields from newer installer
// versions are ignored on load, keeping old binaries forward-readable.
type Manifest struct {
	Version    int               `json:"version"`
	Components map[string]Record `json:"components"`
}

// CurrentVersion is written into new manifests.
const CurrentVersion = 1

// New returns an empty manifest.
func New() *Manifest {
	return &Manifest{Version: CurrentVersion, Components: make(map[string]Record)}
}

// Path returns the manifest location for an installation home.
func Path(home string) string {
	return filepath.Join(home, FileName)
}

// Load reads the manifest at path. A missing file yields a fresh empty
// manifest; a present but unreadable or malformed file is an error, since
// silently starting over would re-run every action against a half-installed
// tree.
func Load(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("[DEBUG] No manifest at %s, starting fresh\n", path)
			return New(), nil
		}
		return nil, errs.Wrap(errs.KindExecution, err, "read manifest %s", path)
	}

	m := New()
	if err := json.Unmarshal(raw, m); err != nil {
		return nil, errs.Wrap(errs.KindExecution, err, "parse manifest %s", path)
	}
	if m.Components == nil {
		m.Components = make(map[string]Record)
	}
	return m, nil
}

// Save persists the manifest atomically: the JSON is written to a temporary
// file in the same directory and renamed over the live path, so a crash or
// interrupt mid-write can never leave a partial manifest behind.
func (m *Manifest) Save(path string) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errs.Wrap(errs.KindExecution, err, "marshal manifest")
	}
	logger.Debug("[DEBUG] Writing manifest to %s\n", path)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.Wrap(errs.KindExecution, err, "create manifest directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".manifest-*")
	if err != nil {
		return errs.Wrap(errs.KindExecution, err, "create manifest temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return errs.Wrap(errs.KindExecution, err, "write manifest")
	}
	if err := tmp.Close(); err != nil {
		return errs.Wrap(errs.KindExecution, err, "close manifest temp file")
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return errs.Wrap(errs.KindExecution, err, "chmod manifest")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errs.Wrap(errs.KindExecution, err, "replace manifest")
	}
	return nil
}

// Component returns the record for a component, reporting whether one
// exists.
func (m *Manifest) Component(name string) (Record, bool) {
	rec, ok := m.Components[name]
	return rec, ok
}

// Set replaces a component's record in memory; call Save to persist.
func (m *Manifest) Set(name string, rec Record) {
	m.Components[name] = rec
}
