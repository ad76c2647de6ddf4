package sessionstore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandleSetNameAndAppendEntries(t *testing.T) {
	dir := t.TempDir()
	h, err := OpenHandle(dir, 0)
	require.NoError(t, err)
	defer h.Close()

	require.Equal(t, "", h.GetName())
	require.NoError(t, h.SetName("my session"))
	require.Equal(t, "my session", h.GetName())

	id, err := h.AppendEntry("tool_call", json.RawMessage(`{"tool":"shell"}`))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	entries := h.GetEntries()
	require.Len(t, entries, 1)
	require.Equal(t, id, entries[0].EntryID)
	require.Equal(t, "tool_call", entries[0].EntryType)
}

func TestHandleSetLabelUpdatesExistingEntry(t *testing.T) {
	dir := t.TempDir()
	h, err := OpenHandle(dir, 0)
	require.NoError(t, err)
	defer h.Close()

	id, err := h.AppendMessage(json.RawMessage(`{"role":"user","text":"hi"}`))
	require.NoError(t, err)

	label := "greeting"
	require.NoError(t, h.SetLabel(id, &label))
	require.Equal(t, "greeting", h.GetEntries()[0].Label)

	require.NoError(t, h.SetLabel(id, nil))
	require.Equal(t, "", h.GetEntries()[0].Label)
}

func TestHandleReplaysStateAfterReopen(t *testing.T) {
	dir := t.TempDir()
	h, err := OpenHandle(dir, 0)
	require.NoError(t, err)
	require.NoError(t, h.SetName("resumed"))
	id, err := h.AppendEntry("note", json.RawMessage(`{"n":1}`))
	require.NoError(t, err)
	label := "pinned"
	require.NoError(t, h.SetLabel(id, &label))
	require.NoError(t, h.Close())

	reopened, err := OpenHandle(dir, 0)
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, "resumed", reopened.GetName())
	entries := reopened.GetEntries()
	require.Len(t, entries, 1)
	require.Equal(t, id, entries[0].EntryID)
	require.Equal(t, "pinned", entries[0].Label)
}
