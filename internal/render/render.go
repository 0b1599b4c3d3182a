package render

import (
	"crypto/rand"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"io"
	"io/fs"
	"math"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/hoover/setup/internal/env"
	"github.com/hoover/setup/internal/errs"
	"github.com/hoover/setup/internal/logger"
	"github.com/hoover/setup/internal/registry"
)

//go:embed templates/*.tmpl
var embedded embed.FS

// DefaultTemplates returns the compiled-in config templates.
func DefaultTemplates() fs.FS {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

// Renderer materializes per-component configuration files from the resolved
// environment. Files are written into a hash-versioned directory under the
// managed config dir and made live with an atomic symlink flip, so a
// running service never observes a half-written config set.
type Renderer struct {
	ConfigDir string
	Cfg       env.Resolved
	Templates fs.FS
}

// New builds a Renderer over the embedded templates.
func New(configDir string, cfg env.Resolved) *Renderer {
	return &Renderer{ConfigDir: configDir, Cfg: cfg, Templates: DefaultTemplates()}
}

// data is what the templates see.
type data struct {
	SecretKey         string
	DBName            string
	ESURL             string
	UIRoot            string
	DataPath          string
	SnoopURL          string
	OAuthProvider     string
	OAuthClientID     string
	OAuthClientSecret string
	Msgconvert        string
	Readpst           string
}

// InputHash digests everything that influences a component's rendered
// files: the config-affecting variables and the template contents. The
// planner compares it against the manifest to detect no-op re-renders.
// Persisted secrets are deliberately excluded: they are generated once and
// never change a render's identity.
func InputHash(tmpls fs.FS, c registry.Component, cfg env.Resolved) string {
	h := sha256.New()
	for _, kv := range cfg.RenderVars() {
		io.WriteString(h, kv)
		io.WriteString(h, "\n")
	}
	for _, name := range sortedTemplateNames(c) {
		io.WriteString(h, name)
		if raw, err := fs.ReadFile(tmpls, name); err == nil {
			h.Write(raw)
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:12]
}

// Hash returns the render input hash for a component under this renderer's
// templates and config.
func (r *Renderer) Hash(c registry.Component) string {
	return InputHash(r.Templates, c, r.Cfg)
}

// Render builds the component's config file set and atomically makes it
// live. It returns the input hash to record in the manifest, and rendered
// = false when the component has no templates.
//
// Write discipline: every file goes into a fresh staging directory; only
// after all files rendered successfully is the staging directory renamed to
// its versioned name and the live symlink flipped onto it. A set already
// published under its hash name is reused as-is. A failure at any earlier
// point leaves the previous config untouched and live.
func (r *Renderer) Render(c registry.Component) (hash string, rendered bool, err error) {
	if len(c.Templates) == 0 {
		return "", false, nil
	}
	hash = r.Hash(c)

	if err := os.MkdirAll(r.ConfigDir, 0o755); err != nil {
		return "", false, errs.Wrap(errs.KindExecution, err, "create config dir")
	}

	secret, err := r.ensureSecret(c.Name)
	if err != nil {
		return "", false, err
	}
	d := data{
		SecretKey:         secret,
		ESURL:             r.Cfg.ESURL,
		UIRoot:            filepath.Join(r.Cfg.Home, "ui", "build"),
		DataPath:          r.Cfg.DataPath,
		SnoopURL:          r.Cfg.SnoopURL,
		OAuthProvider:     r.Cfg.OAuthProvider,
		OAuthClientID:     r.Cfg.OAuthClientID,
		OAuthClientSecret: r.Cfg.OAuthClientSecret,
		Msgconvert:        r.Cfg.MsgconvertPath,
		Readpst:           r.Cfg.ReadpstPath,
	}
	switch c.Name {
	case "search":
		d.DBName = r.Cfg.SearchDB
	case "snoop":
		d.DBName = r.Cfg.SnoopDB
	}

	staging, err := os.MkdirTemp(r.ConfigDir, "."+c.Name+"-staging-*")
	if err != nil {
		return "", false, errs.Wrap(errs.KindExecution, err, "create staging dir")
	}
	defer os.RemoveAll(staging)

	for _, name := range sortedTemplateNames(c) {
		if err := r.renderOne(name, filepath.Join(staging, c.Templates[name]), d); err != nil {
			return "", false, err
		}
	}

	// A directory under this name is always a fully published set rendered
	// from the same inputs, and the live symlink may currently point at it,
	// so it is reused untouched rather than replaced.
	versioned := filepath.Join(r.ConfigDir, c.Name+"-"+hash)
	if _, statErr := os.Lstat(versioned); statErr != nil {
		if err := os.Rename(staging, versioned); err != nil {
			return "", false, errs.Wrap(errs.KindExecution, err, "publish config set")
		}
	}

	if err := flipSymlink(filepath.Join(r.ConfigDir, c.Name), filepath.Base(versioned)); err != nil {
		return "", false, err
	}
	if err := r.linkComponent(c); err != nil {
		return "", false, err
	}
	r.pruneOld(c.Name, filepath.Base(versioned))

	logger.Debug("[DEBUG] Rendered config for %s (hash %s)\n", c.Name, hash)
	return hash, true, nil
}

func (r *Renderer) renderOne(name, dest string, d data) error {
	raw, err := fs.ReadFile(r.Templates, name)
	if err != nil {
		return errs.Wrap(errs.KindExecution, err, "read template %s", name)
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return errs.Wrap(errs.KindExecution, err, "parse template %s", name)
	}
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return errs.Wrap(errs.KindExecution, err, "create %s", dest)
	}
	if err := tmpl.Execute(out, d); err != nil {
		out.Close()
		return errs.Wrap(errs.KindExecution, err, "render %s", name)
	}
	if err := out.Close(); err != nil {
		return errs.Wrap(errs.KindExecution, err, "close %s", dest)
	}
	return nil
}

// flipSymlink atomically points link at target by renaming a temporary
// symlink over it. Rename over an existing symlink is atomic; an interrupt
// leaves either the old or the new target live, never neither.
func flipSymlink(link, target string) error {
	tmp := link + ".new"
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.KindExecution, err, "clear stale symlink %s", tmp)
	}
	if err := os.Symlink(target, tmp); err != nil {
		return errs.Wrap(errs.KindExecution, err, "create symlink %s", tmp)
	}
	if err := os.Rename(tmp, link); err != nil {
		os.Remove(tmp)
		return errs.Wrap(errs.KindExecution, err, "flip symlink %s", link)
	}
	return nil
}

// linkComponent symlinks the component's expected config location into the
// managed config directory, so the checkout always sees the live set.
func (r *Renderer) linkComponent(c registry.Component) error {
	if c.ConfigLink == "" {
		return nil
	}
	names := sortedTemplateNames(c)
	target := filepath.Join(r.ConfigDir, c.Name, c.Templates[names[0]])
	link := filepath.Join(c.Dir, c.ConfigLink)

	if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
		return errs.Wrap(errs.KindExecution, err, "create %s", filepath.Dir(link))
	}
	if existing, err := os.Readlink(link); err == nil && existing == target {
		return nil
	}
	return flipSymlink(link, target)
}

// pruneOld removes versioned config directories other than the live one and
// its immediate predecessor. The predecessor is kept as a manual rollback
// target after a failed health check.
func (r *Renderer) pruneOld(name, live string) {
	entries, err := os.ReadDir(r.ConfigDir)
	if err != nil {
		return
	}
	var versions []os.DirEntry
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), name+"-") && e.Name() != live {
			versions = append(versions, e)
		}
	}
	if len(versions) <= 1 {
		return
	}
	sort.Slice(versions, func(i, j int) bool {
		ii, _ := versions[i].Info()
		ji, _ := versions[j].Info()
		if ii == nil || ji == nil {
			return false
		}
		return ii.ModTime().Before(ji.ModTime())
	})
	for _, e := range versions[:len(versions)-1] {
		stale := filepath.Join(r.ConfigDir, e.Name())
		logger.Debug("[DEBUG] Pruning stale config set %s\n", stale)
		os.RemoveAll(stale)
	}
}

// secretAlphabet matches the original installer's secret key vocabulary.
const secretAlphabet = "abcdefghijklmnopqrstuvwxyz" +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
	"0123456789!@#$%^&*()-=+[]{}:.<>/?"

// ensureSecret returns the component's persisted secret key, generating it
// on first use. Secrets live outside the versioned config sets so a
// re-render never rotates them.
func (r *Renderer) ensureSecret(name string) (string, error) {
	dir := filepath.Join(r.ConfigDir, ".secrets")
	path := filepath.Join(dir, name)
	if raw, err := os.ReadFile(path); err == nil {
		return strings.TrimSpace(string(raw)), nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", errs.Wrap(errs.KindExecution, err, "create secrets dir")
	}
	secret, err := randomSecretKey(256)
	if err != nil {
		return "", errs.Wrap(errs.KindExecution, err, "generate secret key")
	}
	if err := os.WriteFile(path, []byte(secret+"\n"), 0o600); err != nil {
		return "", errs.Wrap(errs.KindExecution, err, "write secret key")
	}
	return secret, nil
}

// randomSecretKey draws enough alphabet characters for the requested bits
// of entropy.
func randomSecretKey(entropy int) (string, error) {
	perChar := math.Log2(float64(len(secretAlphabet)))
	chars := int(math.Ceil(float64(entropy) / perChar))
	max := big.NewInt(int64(len(secretAlphabet)))
	var b strings.Builder
	for i := 0; i < chars; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(secretAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func sortedTemplateNames(c registry.Component) []string {
	names := make([]string, 0, len(c.Templates))
	for name := range c.Templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
