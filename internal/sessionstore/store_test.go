package sessionstore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendAndReadAll(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 0)
	require.NoError(t, err)
	defer s.Close()

	f1, err := s.Append("entry-1", json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	require.Equal(t, uint64(1), f1.EntrySeq)

	f2, err := s.Append("entry-2", json.RawMessage(`{"b":2}`))
	require.NoError(t, err)
	require.Equal(t, uint64(2), f2.EntrySeq)

	frames, err := s.ReadAll()
	require.NoError(t, err)
	require.Len(t, frames, 2)
	require.Equal(t, "entry-1", frames[0].EntryID)
	require.Equal(t, "entry-2", frames[1].EntryID)
}

func TestBootstrapResumesSequences(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 0)
	require.NoError(t, err)
	_, err = s.Append("entry-1", json.RawMessage(`{}`))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(dir, 0)
	require.NoError(t, err)
	defer reopened.Close()

	f, err := reopened.Append("entry-2", json.RawMessage(`{}`))
	require.NoError(t, err)
	require.Equal(t, uint64(2), f.EntrySeq)
}

func TestRotationOnSegmentSizeLimit(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 40) // tiny segment size forces rotation quickly
	require.NoError(t, err)
	defer s.Close()

	var last Frame
	for i := 0; i < 5; i++ {
		last, err = s.Append("entry", json.RawMessage(`{"x":"some payload text"}`))
		require.NoError(t, err)
	}
	require.Greater(t, last.SegmentSeq, uint64(1))
}

func TestValidateDetectsNoErrorsOnCleanStore(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 0)
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 3; i++ {
		_, err := s.Append("entry", json.RawMessage(`{"n":1}`))
		require.NoError(t, err)
	}
	require.Empty(t, s.Validate())
}

func TestCompactPreservesHistory(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 30)
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 6; i++ {
		_, err := s.Append("entry", json.RawMessage(`{"n":1,"text":"padding-data"}`))
		require.NoError(t, err)
	}

	before, err := s.ReadAll()
	require.NoError(t, err)

	require.NoError(t, s.Compact())

	after, err := s.ReadAll()
	require.NoError(t, err)
	require.Equal(t, len(before), len(after))
	for i := range before {
		require.Equal(t, before[i].EntrySeq, after[i].EntrySeq)
		require.Equal(t, before[i].EntryID, after[i].EntryID)
		require.JSONEq(t, string(before[i].Payload), string(after[i].Payload))
	}
	require.Empty(t, s.Validate())
}
