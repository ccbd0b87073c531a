package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("Could not get home dir: %v", err)
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"tilde expands to home", "~/music", filepath.Join(home, "music")},
		{"tilde with nested path", "~/music/library/albums", filepath.Join(home, "music", "library", "albums")},
		{"absolute path unchanged", "/usr/local/music", "/usr/local/music"},
		{"relative path unchanged", "music/albums", "music/albums"},
		{"empty string unchanged", "", ""},
		{"tilde only", "~", home},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, expandPath(tt.input))
		})
	}
}

func TestGetConfigPaths(t *testing.T) {
	paths := getConfigPaths()
	require.NotEmpty(t, paths)
	require.Equal(t, "config.toml", paths[len(paths)-1])

	if home, err := os.UserHomeDir(); err == nil {
		require.Equal(t, filepath.Join(home, ".config", "apollo", "config.toml"), paths[0])
	}
}

func withTempWD(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	originalWD, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir))
	t.Cleanup(func() { _ = os.Chdir(originalWD) })
	return tmpDir
}

func withTempHome(t *testing.T) string {
	t.Helper()
	tmpHome := t.TempDir()
	original := os.Getenv("HOME")
	require.NoError(t, os.Setenv("HOME", tmpHome))
	t.Cleanup(func() { _ = os.Setenv("HOME", original) })
	return tmpHome
}

func TestLoad_EmptyConfigUsesDefaults(t *testing.T) {
	withTempHome(t)
	withTempWD(t)
	require.NoError(t, os.WriteFile("config.toml", []byte(""), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)
	require.NotEmpty(t, cfg.Library.DatabasePath)
	require.Equal(t, 8080, cfg.Web.Port)
	require.Equal(t, 5000, cfg.Plugins.HookTimeoutMS)
	require.Contains(t, cfg.Import.IncludeExts, ".flac")
}

func TestLoad_BasicConfig(t *testing.T) {
	home := withTempHome(t)
	withTempWD(t)

	configContent := `
[library]
database_path = "~/catalog.db"
sources = ["/music", "~/library"]

[web]
port = 9090
`
	require.NoError(t, os.WriteFile("config.toml", []byte(configContent), 0o600))

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, filepath.Join(home, "catalog.db"), cfg.Library.DatabasePath)
	require.Equal(t, 9090, cfg.Web.Port)
	require.Len(t, cfg.Library.Sources, 2)
	require.Equal(t, "/music", cfg.Library.Sources[0])
	require.Equal(t, filepath.Join(home, "library"), cfg.Library.Sources[1])
}

func TestLoad_InvalidToml(t *testing.T) {
	withTempHome(t)
	withTempWD(t)
	require.NoError(t, os.WriteFile("config.toml", []byte("invalid = [[["), 0o600))

	_, err := Load()
	require.Error(t, err)
}

func TestInitThenShow(t *testing.T) {
	withTempHome(t)

	require.NoError(t, Init())
	require.ErrorContains(t, Init(), "already exists")

	shown, err := Show()
	require.NoError(t, err)
	require.Contains(t, shown, "[library]")
}

func TestGetAndSet(t *testing.T) {
	withTempHome(t)
	require.NoError(t, Init())

	require.NoError(t, Set("web.port", "9999"))
	v, err := Get("web.port")
	require.NoError(t, err)
	require.Equal(t, "9999", v)
}

func TestGetMissingKey(t *testing.T) {
	withTempHome(t)
	require.NoError(t, Init())

	_, err := Get("nonexistent.key")
	require.Error(t, err)
}
