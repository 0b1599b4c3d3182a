package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoover/setup/internal/errs"
)

func lookupFrom(vars map[string]string) func(string) string {
	return func(name string) string { return vars[name] }
}

func TestResolveDefaults(t *testing.T) {
	cfg, err := Resolve(lookupFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, "https://github.com/hoover/search.git", cfg.SearchRepo)
	assert.Equal(t, "master", cfg.SearchBranch)
	assert.Equal(t, "hoover-search", cfg.SearchDB)
	assert.Equal(t, "hoover-snoop", cfg.SnoopDB)
	assert.Equal(t, "http://localhost:9200", cfg.ESURL)
	assert.NotEmpty(t, cfg.Home)
	assert.Equal(t, filepath.Join(cfg.Home, "config"), cfg.ConfigDir)
	assert.Empty(t, cfg.OAuthProvider)
}

func TestResolveEnvWins(t *testing.T) {
	cfg, err := Resolve(lookupFrom(map[string]string{
		VarHome:   "/opt/hoover",
		VarESURL:  "http://es.internal:9200",
		VarUIRepo: "https://git.example.com/ui.git",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/opt/hoover", cfg.Home)
	assert.Equal(t, "http://es.internal:9200", cfg.ESURL)
	assert.Equal(t, "https://git.example.com/ui.git", cfg.UIRepo)
	// Untouched vars keep their defaults.
	assert.Equal(t, "https://github.com/hoover/snoop.git", cfg.SnoopRepo)
}

func TestResolveOverrideLayering(t *testing.T) {
	overrides := map[string]string{
		VarESURL:    "http://from-file:9200",
		VarSearchDB: "file-db",
	}
	cfg, err := ResolveWithOverrides(lookupFrom(map[string]string{
		VarESURL: "http://from-env:9200",
	}), overrides)
	require.NoError(t, err)

	// Environment beats the file; the file beats the default.
	assert.Equal(t, "http://from-env:9200", cfg.ESURL)
	assert.Equal(t, "file-db", cfg.SearchDB)
}

func TestResolvePartialOAuthFails(t *testing.T) {
	_, err := Resolve(lookupFrom(map[string]string{
		VarOAuthClientID: "id-only",
	}))
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	_, err = Resolve(lookupFrom(map[string]string{
		VarOAuthProvider:     "https://login.example.com",
		VarOAuthClientID:     "id",
		VarOAuthClientSecret: "secret",
	}))
	assert.NoError(t, err)
}

func TestHomeDirPrefersEnv(t *testing.T) {
	assert.Equal(t, "/data/hoover", HomeDir(lookupFrom(map[string]string{VarHome: "/data/hoover"})))
	assert.Contains(t, HomeDir(lookupFrom(nil)), "hoover")
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hoover.yml")
	require.NoError(t, os.WriteFile(path, []byte("HOOVER_ES_URL: http://pinned:9200\n"), 0o644))

	overrides, err := LoadOverrides(path)
	require.NoError(t, err)
	assert.Equal(t, "http://pinned:9200", overrides[VarESURL])
}

func TestLoadOverridesMissingFile(t *testing.T) {
	overrides, err := LoadOverrides(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
	assert.Nil(t, overrides)
}

func TestLoadOverridesMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hoover.yml")
	require.NoError(t, os.WriteFile(path, []byte(":\n\t- broken"), 0o644))

	_, err := LoadOverrides(path)
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestRenderVarsStable(t *testing.T) {
	cfg, err := Resolve(lookupFrom(map[string]string{VarSearchDB: "db-a"}))
	require.NoError(t, err)

	first := cfg.RenderVars()
	second := cfg.RenderVars()
	assert.Equal(t, first, second)
	assert.Contains(t, first, VarSearchDB+"=db-a")

	// Repo and branch variables must not influence render identity.
	for _, kv := range first {
		assert.NotContains(t, kv, VarSearchRepo)
		assert.NotContains(t, kv, VarSearchBranch)
	}
}
