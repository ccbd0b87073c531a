// Package config loads Apollo's TOML configuration file. Grounded on
// the teacher's internal/config package: koanf-based TOML loading,
// layered config-path precedence, and `~` expansion are carried over
// unchanged; the sections themselves are Apollo's (library, import,
// paths, musicbrainz, acoustid, web, plugins) rather than the teacher's
// player-specific ones (slskd, lastfm, radio, rename, notifications).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	ptoml "github.com/pelletier/go-toml"
)

// Config is Apollo's top-level configuration, one struct field per
// section named in spec §6.
type Config struct {
	Library     LibraryConfig     `koanf:"library"`
	Import      ImportConfig      `koanf:"import"`
	Paths       PathsConfig       `koanf:"paths"`
	MusicBrainz MusicBrainzConfig `koanf:"musicbrainz"`
	AcoustID    AcoustIDConfig    `koanf:"acoustid"`
	Web         WebConfig         `koanf:"web"`
	Plugins     PluginsConfig     `koanf:"plugins"`
}

// LibraryConfig locates the catalog database and its library roots.
type LibraryConfig struct {
	DatabasePath string   `koanf:"database_path"`
	Sources      []string `koanf:"sources"`
}

// ImportConfig parametrizes the scanner/import pipeline (spec §4.4/§4.7).
type ImportConfig struct {
	FollowSymlinks  bool     `koanf:"follow_symlinks"`
	MaxDepth        int      `koanf:"max_depth"`
	IncludeExts     []string `koanf:"include_exts"`
	CopyIntoLibrary bool     `koanf:"copy_into_library"`
	WriteTagsBack   bool     `koanf:"write_tags_back"`
	HookTimeoutMS   int      `koanf:"hook_timeout_ms"`
}

// PathsConfig holds filesystem locations not covered by LibraryConfig.
type PathsConfig struct {
	ResponseCache string `koanf:"response_cache"`
}

// MusicBrainzConfig holds optional remote-metadata client settings.
type MusicBrainzConfig struct {
	BaseURL   string `koanf:"base_url"`
	UserAgent string `koanf:"user_agent"`
}

// AcoustIDConfig holds optional fingerprint-lookup client settings.
type AcoustIDConfig struct {
	APIKey string `koanf:"api_key"`
}

// WebConfig configures the HTTP surface (out-of-core collaborator; the
// engine only needs to know where to bind it).
type WebConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// PluginsConfig locates the hook script directory (C8).
type PluginsConfig struct {
	Directory     string `koanf:"directory"`
	HookTimeoutMS int    `koanf:"hook_timeout_ms"`
}

// Load reads the layered config file set (later paths win) and applies
// `~` expansion and defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	for _, path := range getConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	cfg.Library.DatabasePath = expandPath(defaultIfEmpty(cfg.Library.DatabasePath, defaultDatabasePath()))
	for i, src := range cfg.Library.Sources {
		cfg.Library.Sources[i] = expandPath(src)
	}
	cfg.Paths.ResponseCache = expandPath(cfg.Paths.ResponseCache)
	cfg.Plugins.Directory = expandPath(defaultIfEmpty(cfg.Plugins.Directory, defaultPluginDir()))

	if cfg.Plugins.HookTimeoutMS <= 0 {
		cfg.Plugins.HookTimeoutMS = 5000
	}
	if cfg.Import.HookTimeoutMS <= 0 {
		cfg.Import.HookTimeoutMS = cfg.Plugins.HookTimeoutMS
	}
	if len(cfg.Import.IncludeExts) == 0 {
		cfg.Import.IncludeExts = []string{".mp3", ".flac", ".opus", ".ogg", ".m4a", ".mp4"}
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8080
	}

	return cfg, nil
}

func getConfigPaths() []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "apollo", "config.toml"))
	}
	paths = append(paths, "config.toml")
	return paths
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

func defaultIfEmpty(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func defaultDatabasePath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".apollo", "apollo.db")
	}
	return "apollo.db"
}

func defaultPluginDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".apollo", "plugins")
	}
	return "plugins"
}

// defaultTemplate is what `apollo config init` writes: every section
// Load understands, populated with the same defaults Load falls back
// to when a key is absent. web.host and the musicbrainz keys are the
// exception: Load has no defaults for them and leaves them empty.
const defaultTemplate = `[library]
database_path = "~/.apollo/apollo.db"
sources = []

[import]
follow_symlinks = false
max_depth = 0
include_exts = [".mp3", ".flac", ".opus", ".ogg", ".m4a", ".mp4"]
copy_into_library = false
write_tags_back = false
hook_timeout_ms = 5000

[paths]
response_cache = ""

[musicbrainz]
base_url = "https://musicbrainz.org/ws/2"
user_agent = "apollo/0.1"

[acoustid]
api_key = ""

[web]
host = "127.0.0.1"
port = 8080

[plugins]
directory = "~/.apollo/plugins"
hook_timeout_ms = 5000
`

// Path returns the primary config file location `init`/`get`/`set`
// read and write — the per-user path under ~/.config, not the
// cwd-local override Load also consults.
func Path() string {
	return getConfigPaths()[0]
}

// Init writes the default config template to Path, failing if a file
// already exists there.
func Init() error {
	path := Path()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(defaultTemplate), 0o644)
}

// Show renders the config file at Path as text, or the default
// template if no file has been written yet.
func Show() (string, error) {
	data, err := os.ReadFile(Path())
	if errors.Is(err, os.ErrNotExist) {
		return defaultTemplate, nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func loadTree() (*ptoml.Tree, error) {
	data, err := os.ReadFile(Path())
	if errors.Is(err, os.ErrNotExist) {
		return ptoml.Load(defaultTemplate)
	}
	if err != nil {
		return nil, err
	}
	return ptoml.Load(string(data))
}

// Get reads a single dot-separated key (e.g. "library.sources") from
// the config file.
func Get(key string) (string, error) {
	tree, err := loadTree()
	if err != nil {
		return "", err
	}
	v := tree.Get(key)
	if v == nil {
		return "", fmt.Errorf("key %q is not set", key)
	}
	return fmt.Sprintf("%v", v), nil
}

// Set writes a single dot-separated key to the config file, creating
// it from the default template first if it doesn't exist.
func Set(key, value string) error {
	tree, err := loadTree()
	if err != nil {
		return err
	}
	tree.Set(key, value)

	path := Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = tree.WriteTo(f)
	return err
}
