package api

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pi-agent/pi-exthost/internal/config"
	"github.com/pi-agent/pi-exthost/internal/manager"
	"github.com/stretchr/testify/require"
)

func writeExtensionFile(t *testing.T, source string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ext.js")
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
	return path
}

func TestExtensionLoaderRegistersWithManager(t *testing.T) {
	mgr := manager.New(nil, nil)
	loader := &ExtensionLoader{
		Manager: mgr,
		VFS:     config.VFSConfig{},
		Runtime: config.RuntimeConfig{DefaultTimeout: 2 * time.Second},
	}

	path := writeExtensionFile(t, `
function init(pi) {
  pi.registerTool({ name: "echo", description: "echoes input" });
  pi.on("message", function(payload) { return { handled: true }; });
}
`)

	payload, err := loader.LoadFromPath(context.Background(), "ext-1", path)
	require.NoError(t, err)
	require.Equal(t, "ext-1", payload.ExtensionID)
	require.NotEmpty(t, payload.CodeHash)
	require.Len(t, payload.Tools, 1)

	tools := mgr.AllTools()
	require.Len(t, tools, 1)
	require.Equal(t, "echo", tools[0].Name)
}

func TestExtensionLoaderMissingFileReturnsError(t *testing.T) {
	mgr := manager.New(nil, nil)
	loader := &ExtensionLoader{Manager: mgr, Runtime: config.RuntimeConfig{DefaultTimeout: time.Second}}

	_, err := loader.LoadFromPath(context.Background(), "ext-1", filepath.Join(t.TempDir(), "missing.js"))
	require.Error(t, err)
}
