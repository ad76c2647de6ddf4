package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pi-agent/pi-exthost/internal/hostcall"
	"github.com/stretchr/testify/require"
)

func TestLogWritesJSONLRecordShape(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")

	l := &Logger{enabled: true, schema: "v1"}
	require.NoError(t, l.SetOutput(path))
	defer l.Close()

	l.Log("info", "tool_call", "ran echo", hostcall.Correlation{ExtensionID: "ext-1", ToolCallID: "call-1"}, map[string]string{"tool": "echo"})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	require.Equal(t, "v1", rec["schema"])
	require.Equal(t, "tool_call", rec["event"])
	require.Equal(t, "ran echo", rec["message"])
	require.Contains(t, rec, "ts")
	require.Contains(t, rec, "correlation")
	require.Contains(t, rec, "source")

	correlation := rec["correlation"].(map[string]any)
	require.Equal(t, "ext-1", correlation["extension_id"])
	require.Equal(t, "call-1", correlation["tool_call_id"])
}

func TestLogDisabledWritesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")

	l := &Logger{enabled: false, schema: "v1"}
	require.NoError(t, l.SetOutput(path))
	defer l.Close()

	l.Log("info", "startup", "booted", hostcall.Correlation{}, nil)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Empty(t, data)
}
