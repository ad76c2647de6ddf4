package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigHasSaneDefaults(t *testing.T) {
	cfg := DefaultConfig()
	require.Greater(t, cfg.Runtime.DefaultTimeout.Seconds(), 0.0)
	require.NotEmpty(t, cfg.SessionStore.Dir)
	require.True(t, cfg.Observability.Metrics.Enabled)
	require.False(t, cfg.Observability.Tracing.Enabled)
}

func TestLoadFromFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"http":{"addr":":9999"},"vfs":{"extension_root":"/srv/extroot"}}`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.HTTP.Addr)
	require.Equal(t, "/srv/extroot", cfg.VFS.ExtensionRoot)
	require.NotEmpty(t, cfg.SessionStore.Dir, "unspecified fields keep their default")
}

func TestLoadFromFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session_store:\n  dir: /data/sessions\n  max_segment_bytes: 1048576\n"), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "/data/sessions", cfg.SessionStore.Dir)
	require.Equal(t, int64(1048576), cfg.SessionStore.MaxSegmentBytes)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("PI_EXTHOST_HTTP_ADDR", ":7000")
	t.Setenv("PI_EXTHOST_TRACING_ENABLED", "true")
	t.Setenv("PI_EXTHOST_VFS_TEXT_ASSET_EXTENSIONS", ".md,.rst")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	require.Equal(t, ":7000", cfg.HTTP.Addr)
	require.True(t, cfg.Observability.Tracing.Enabled)
	require.Equal(t, []string{".md", ".rst"}, cfg.VFS.TextAssetExtensions)
}
