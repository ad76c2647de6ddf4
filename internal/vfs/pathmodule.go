package vfs

import "strings"

// PathModule exposes the subset of Node's "path" module
// the runtime binding layer registers as the node:path / path module. Named
// to mirror Node's own API one-to-one so the JS-side shim is a thin
// pass-through.
type PathModule struct{}

func (PathModule) Join(parts ...string) string { return Join(parts...) }
func (PathModule) Dirname(p string) string     { return Dir(MustNormalize(p)) }
func (PathModule) Basename(p string) string    { return Base(MustNormalize(p)) }
func (PathModule) Extname(p string) string     { return Ext(p) }
func (PathModule) Sep() string                 { return "/" }
func (PathModule) IsAbsolute(p string) bool    { return strings.HasPrefix(p, "/") }

// Resolve mirrors path.resolve: joins from right to left until an absolute
// segment is found, defaulting to "/" as the implicit cwd since the VFS has
// no process-level working directory concept.
func (PathModule) Resolve(parts ...string) string {
	acc := "/"
	for _, p := range parts {
		if strings.HasPrefix(p, "/") {
			acc = p
			continue
		}
		acc = acc + "/" + p
	}
	return MustNormalize(acc)
}

// Relative mirrors path.relative for two already-normalized paths.
func (PathModule) Relative(from, to string) string {
	nf := MustNormalize(from)
	nt := MustNormalize(to)
	if nf == nt {
		return ""
	}
	fParts := splitNonEmpty(nf)
	tParts := splitNonEmpty(nt)

	i := 0
	for i < len(fParts) && i < len(tParts) && fParts[i] == tParts[i] {
		i++
	}
	up := strings.Repeat("../", len(fParts)-i)
	down := strings.Join(tParts[i:], "/")
	switch {
	case up == "" && down == "":
		return "."
	case down == "":
		return strings.TrimSuffix(up, "/")
	default:
		return up + down
	}
}

func splitNonEmpty(p string) []string {
	raw := strings.Split(p, "/")
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
