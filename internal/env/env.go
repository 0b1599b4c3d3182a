package env

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/hoover/setup/internal/errs"
)

// Resolved is the immutable configuration snapshot for one run. It is built
// once at process start from defaults, the optional hoover.yml override file
// and the environment, then passed by value to every component.
type Resolved struct {
	Home      string
	ConfigDir string

	SetupRepo   string
	SetupBranch string

	SearchRepo    string
	SearchBranch  string
	SearchArchive string
	SnoopRepo     string
	SnoopBranch   string
	SnoopArchive  string
	UIRepo        string
	UIBranch      string
	UIArchive     string

	SearchDB string
	SnoopDB  string
	ESURL    string
	SnoopURL string
	DataPath string

	OAuthProvider     string
	OAuthClientID     string
	OAuthClientSecret string

	MsgconvertPath string
	ReadpstPath    string
}

// Variable names understood by the resolver. Every optional variable has a
// default; variables with an empty default are genuinely optional.
const (
	VarHome              = "HOOVER_HOME"
	VarConfigDir         = "HOOVER_CONFIG_DIR"
	VarSetupRepo         = "HOOVER_SETUP_REPO"
	VarSetupBranch       = "HOOVER_SETUP_BRANCH"
	VarSearchRepo        = "HOOVER_SEARCH_REPO"
	VarSearchBranch      = "HOOVER_SEARCH_BRANCH"
	VarSearchArchive     = "HOOVER_SEARCH_ARCHIVE"
	VarSnoopRepo         = "HOOVER_SNOOP_REPO"
	VarSnoopBranch       = "HOOVER_SNOOP_BRANCH"
	VarSnoopArchive      = "HOOVER_SNOOP_ARCHIVE"
	VarUIRepo            = "HOOVER_UI_REPO"
	VarUIBranch          = "HOOVER_UI_BRANCH"
	VarUIArchive         = "HOOVER_UI_ARCHIVE"
	VarSearchDB          = "HOOVER_SEARCH_DB"
	VarSnoopDB           = "HOOVER_SNOOP_DB"
	VarESURL             = "HOOVER_ES_URL"
	VarSnoopURL          = "HOOVER_SNOOP_URL"
	VarDataPath          = "HOOVER_DATA_PATH"
	VarOAuthProvider     = "HOOVER_OAUTH_PROVIDER"
	VarOAuthClientID     = "HOOVER_OAUTH_CLIENT_ID"
	VarOAuthClientSecret = "HOOVER_OAUTH_CLIENT_SECRET"
	VarMsgconvertPath    = "HOOVER_MSGCONVERT_PATH"
	VarReadpstPath       = "HOOVER_READPST_PATH"
)

var defaults = map[string]string{
	VarSetupRepo:    "https://github.com/hoover/setup.git",
	VarSetupBranch:  "master",
	VarSearchRepo:   "https://github.com/hoover/search.git",
	VarSearchBranch: "master",
	VarSnoopRepo:    "https://github.com/hoover/snoop.git",
	VarSnoopBranch:  "master",
	VarUIRepo:       "https://github.com/hoover/ui.git",
	VarUIBranch:     "master",
	VarSearchDB:     "hoover-search",
	VarSnoopDB:      "hoover-snoop",
	VarESURL:        "http://localhost:9200",
	VarSnoopURL:     "http://localhost:8001",
	VarDataPath:     "/tmp/dataset",
}

// HomeDir returns the installation home: HOOVER_HOME if set, otherwise a
// hoover directory under the XDG data home.
func HomeDir(lookup func(string) string) string {
	if home := lookup(VarHome); home != "" {
		return home
	}
	return filepath.Join(xdg.DataHome, "hoover")
}

// Resolve builds a Resolved snapshot from defaults and the given lookup
// function (normally os.Getenv). It is pure: the only inputs are lookup
// results.
func Resolve(lookup func(string) string) (Resolved, error) {
	return ResolveWithOverrides(lookup, nil)
}

// ResolveWithOverrides resolves with an extra layer between defaults and the
// environment, so a hoover.yml file can pin values while the environment
// still wins.
func ResolveWithOverrides(lookup func(string) string, overrides map[string]string) (Resolved, error) {
	get := func(name string) string {
		if v := lookup(name); v != "" {
			return v
		}
		if v, ok := overrides[name]; ok && v != "" {
			return v
		}
		return defaults[name]
	}

	r := Resolved{
		Home:              HomeDir(lookup),
		SetupRepo:         get(VarSetupRepo),
		SetupBranch:       get(VarSetupBranch),
		SearchRepo:        get(VarSearchRepo),
		SearchBranch:      get(VarSearchBranch),
		SearchArchive:     get(VarSearchArchive),
		SnoopRepo:         get(VarSnoopRepo),
		SnoopBranch:       get(VarSnoopBranch),
		SnoopArchive:      get(VarSnoopArchive),
		UIRepo:            get(VarUIRepo),
		UIBranch:          get(VarUIBranch),
		UIArchive:         get(VarUIArchive),
		SearchDB:          get(VarSearchDB),
		SnoopDB:           get(VarSnoopDB),
		ESURL:             get(VarESURL),
		SnoopURL:          get(VarSnoopURL),
		DataPath:          get(VarDataPath),
		OAuthProvider:     get(VarOAuthProvider),
		OAuthClientID:     get(VarOAuthClientID),
		OAuthClientSecret: get(VarOAuthClientSecret),
		MsgconvertPath:    get(VarMsgconvertPath),
		ReadpstPath:       get(VarReadpstPath),
	}
	if r.ConfigDir = get(VarConfigDir); r.ConfigDir == "" {
		r.ConfigDir = filepath.Join(r.Home, "config")
	}

	if err := validateOAuth(r); err != nil {
		return Resolved{}, err
	}
	return r, nil
}

// validateOAuth enforces the all-or-none rule on the OAuth triple: a partial
// set would render a config the search service cannot start with.
func validateOAuth(r Resolved) error {
	set := 0
	for _, v := range []string{r.OAuthProvider, r.OAuthClientID, r.OAuthClientSecret} {
		if v != "" {
			set++
		}
	}
	if set != 0 && set != 3 {
		return errs.New(errs.KindValidation,
			"%s, %s and %s must be set together or not at all",
			VarOAuthProvider, VarOAuthClientID, VarOAuthClientSecret)
	}
	return nil
}

// LoadOverrides reads the optional flat key/value override file
// (<home>/hoover.yml). A missing file is not an error and yields no
// overrides; a malformed file is a validation error.
func LoadOverrides(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.KindValidation, err, "read %s", path)
	}
	overrides := make(map[string]string)
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, errs.Wrap(errs.KindValidation, err, "parse %s", path)
	}
	return overrides, nil
}

// RenderVars returns the config-affecting subset of the snapshot as a sorted
// key=value list. The config renderer hashes this to detect no-op re-renders,
// so only variables that influence rendered files belong here.
func (r Resolved) RenderVars() []string {
	vars := map[string]string{
		VarConfigDir:         r.ConfigDir,
		VarSearchDB:          r.SearchDB,
		VarSnoopDB:           r.SnoopDB,
		VarESURL:             r.ESURL,
		VarSnoopURL:          r.SnoopURL,
		VarDataPath:          r.DataPath,
		VarOAuthProvider:     r.OAuthProvider,
		VarOAuthClientID:     r.OAuthClientID,
		VarOAuthClientSecret: r.OAuthClientSecret,
		VarMsgconvertPath:    r.MsgconvertPath,
		VarReadpstPath:       r.ReadpstPath,
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+vars[k])
	}
	return out
}
