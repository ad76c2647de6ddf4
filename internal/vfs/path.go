// Package vfs implements the in-memory, per-runtime virtual filesystem
// shim presented to extension code as a Node-compatible fs/path surface.
// Nodes live in a slice-backed arena with a path -> node-id map, following
// the arena + index pattern (the session store's segments+offset-index is
// the same shape) and grounded on internal/codeloader/overlay.go's
// overlay-filesystem abstraction and internal/firecracker/code_drive.go's
// "build a filesystem strictly from in-memory content" discipline.
package vfs

import "strings"

// Normalize folds a path to absolute, forward-slash, dot/dot-dot-collapsed
// form with a floor at "/". Backslashes are treated as path separators.
// Returns an EINVAL error if the path contains a null byte.
func Normalize(p string) (string, error) {
	if strings.ContainsRune(p, 0) {
		return "", &Error{Code: "EINVAL", Msg: "path contains a null byte"}
	}

	p = strings.ReplaceAll(p, "\\", "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}

	segments := strings.Split(p, "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
			// floor at "/": popping past the root is a no-op.
		default:
			out = append(out, seg)
		}
	}

	if len(out) == 0 {
		return "/", nil
	}
	return "/" + strings.Join(out, "/"), nil
}

// MustNormalize is Normalize without an error return, for callers that have
// already validated the path (e.g. an already-normalized arena key).
func MustNormalize(p string) string {
	n, err := Normalize(p)
	if err != nil {
		return "/"
	}
	return n
}

// Dir returns the normalized parent of a normalized path ("/" for "/").
func Dir(p string) string {
	if p == "/" {
		return "/"
	}
	idx := strings.LastIndex(p, "/")
	if idx <= 0 {
		return "/"
	}
	return p[:idx]
}

// Base returns the final path component.
func Base(p string) string {
	if p == "/" {
		return "/"
	}
	idx := strings.LastIndex(p, "/")
	return p[idx+1:]
}

// Join mirrors Node's path.join: concatenate, then normalize.
func Join(parts ...string) string {
	joined := strings.Join(parts, "/")
	return MustNormalize(joined)
}

// Ext returns the final extension of p's base name (including the leading
// dot), or "" if the base name has no dot.
func Ext(p string) string {
	base := Base(p)
	idx := strings.LastIndex(base, ".")
	if idx < 0 {
		return ""
	}
	return base[idx:]
}
