package vfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"/a/b/c":       "/a/b/c",
		"a/b/c":        "/a/b/c",
		"/a/./b":       "/a/b",
		"/a/../b":      "/b",
		"/../../a":     "/a",
		"":             "/",
		"/":            "/",
		"/a//b":        "/a/b",
		"a\\b\\c":      "/a/b/c",
	}
	for in, want := range cases {
		got, err := Normalize(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
}

func TestNormalizeRejectsNullByte(t *testing.T) {
	_, err := Normalize("/a\x00b")
	require.Error(t, err)
	var verr *Error
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "EINVAL", verr.Code)
}

func TestDirBase(t *testing.T) {
	require.Equal(t, "/a/b", Dir("/a/b/c"))
	require.Equal(t, "c", Base("/a/b/c"))
	require.Equal(t, "/", Dir("/a"))
	require.Equal(t, "/", Dir("/"))
}

func TestJoin(t *testing.T) {
	require.Equal(t, "/a/b/c", Join("/a", "b", "c"))
	require.Equal(t, "/a/c", Join("/a", "b", "..", "c"))
}

func TestExt(t *testing.T) {
	require.Equal(t, ".md", Ext("/a/b/README.md"))
	require.Equal(t, "", Ext("/a/b/README"))
}
