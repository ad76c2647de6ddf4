package vfs

import (
	"sort"
	"sync"
	"time"
)

// Kind discriminates the three node variants a Node-compatible fs supports.
type Kind int

const (
	KindFile Kind = iota
	KindDir
	KindSymlink
)

// node is one arena slot. Children of a directory are tracked by name so
// listings come back sorted without re-walking the path map.
type node struct {
	kind     Kind
	content  []byte
	children map[string]int // name -> arena index, directories only
	target   string         // symlink target, symlinks only
	host     bool           // content is a read-through projection of a host text asset
	mtime    time.Time
	mode     uint32
}

// FS is the per-runtime-worker virtual filesystem: a slice arena of nodes
// plus a normalized-path -> arena-index map, following the arena + index
// pattern (also used by internal/sessionstore for
// its segment+offset index). Every extension gets its own FS instance; there
// is no cross-extension sharing.
type FS struct {
	mu    sync.RWMutex
	nodes []node
	paths map[string]int // normalized path -> arena index

	// textAssetExt is the set of extensions that fall back to a host-backed
	// read when no in-memory write has shadowed them.
	textAssetExt map[string]bool
	hostRoot     string
	hostRead     func(hostPath string) ([]byte, error)
}

// New creates an FS rooted at "/" with an empty root directory. hostRoot and
// hostRead wire the read-fallback for recognized text-asset extensions; pass
// hostRead == nil to disable the fallback entirely (a pure in-memory FS).
func New(hostRoot string, textExts []string, hostRead func(string) ([]byte, error)) *FS {
	f := &FS{
		paths:        make(map[string]int),
		textAssetExt: make(map[string]bool, len(textExts)),
		hostRoot:     hostRoot,
		hostRead:     hostRead,
	}
	for _, ext := range textExts {
		f.textAssetExt[ext] = true
	}
	f.nodes = append(f.nodes, node{kind: KindDir, children: map[string]int{}, mtime: time.Time{}, mode: 0o755})
	f.paths["/"] = 0
	return f
}

// lookup resolves a normalized path to its arena index. Caller holds mu.
func (f *FS) lookup(p string) (int, bool) {
	idx, ok := f.paths[p]
	return idx, ok
}

// ensureDir walks/creates the directory chain down to dir, returning EEXIST
// semantics via the caller (mkdir -p behaviour is only used internally for
// writeFile's recursive parent creation when requested).
func (f *FS) mkdirAll(p string) (int, error) {
	if p == "/" {
		return 0, nil
	}
	parentPath := Dir(p)
	parentIdx, err := f.mkdirAll(parentPath)
	if err != nil {
		return 0, err
	}
	name := Base(p)
	parent := &f.nodes[parentIdx]
	if parent.kind != KindDir {
		return 0, notDir(parentPath)
	}
	if idx, ok := parent.children[name]; ok {
		if f.nodes[idx].kind != KindDir {
			return 0, notDir(p)
		}
		return idx, nil
	}
	idx := len(f.nodes)
	f.nodes = append(f.nodes, node{kind: KindDir, children: map[string]int{}, mtime: time.Now(), mode: 0o755})
	parent.children[name] = idx
	f.paths[p] = idx
	return idx, nil
}

// Mkdir creates a directory at p. If recursive is false, the immediate
// parent must already exist and p must not already exist.
func (f *FS) Mkdir(p string, recursive bool) error {
	norm, err := Normalize(p)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.lookup(norm); ok {
		if recursive {
			return nil
		}
		return exists(norm)
	}
	if recursive {
		_, err := f.mkdirAll(norm)
		return err
	}

	parentPath := Dir(norm)
	parentIdx, ok := f.lookup(parentPath)
	if !ok {
		return notFound(parentPath)
	}
	parent := &f.nodes[parentIdx]
	if parent.kind != KindDir {
		return notDir(parentPath)
	}
	idx := len(f.nodes)
	f.nodes = append(f.nodes, node{kind: KindDir, children: map[string]int{}, mtime: time.Now(), mode: 0o755})
	parent.children[Base(norm)] = idx
	f.paths[norm] = idx
	return nil
}

// WriteFile writes content at p, creating the node if absent. Writing shadows
// any host read-fallback for that path permanently for the life of the FS:
// writes never reach the host filesystem, and once shadowed a path never
// falls back again.
func (f *FS) WriteFile(p string, content []byte) error {
	norm, err := Normalize(p)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	parentPath := Dir(norm)
	parentIdx, ok := f.lookup(parentPath)
	if !ok {
		return notFound(parentPath)
	}
	if f.nodes[parentIdx].kind != KindDir {
		return notDir(parentPath)
	}

	buf := make([]byte, len(content))
	copy(buf, content)

	if idx, ok := f.lookup(norm); ok {
		n := &f.nodes[idx]
		if n.kind == KindDir {
			return isDir(norm)
		}
		n.content = buf
		n.host = false
		n.mtime = time.Now()
		return nil
	}

	idx := len(f.nodes)
	f.nodes = append(f.nodes, node{kind: KindFile, content: buf, mtime: time.Now(), mode: 0o644})
	f.nodes[parentIdx].children[Base(norm)] = idx
	f.paths[norm] = idx
	return nil
}

// ReadFile returns the content at p, falling through to the host filesystem
// for recognized text-asset extensions when no in-memory node shadows it.
func (f *FS) ReadFile(p string) ([]byte, error) {
	norm, err := Normalize(p)
	if err != nil {
		return nil, err
	}
	f.mu.RLock()
	idx, ok := f.lookup(norm)
	f.mu.RUnlock()

	if ok {
		f.mu.RLock()
		defer f.mu.RUnlock()
		n := f.nodes[idx]
		if n.kind == KindDir {
			return nil, isDir(norm)
		}
		if n.kind == KindSymlink {
			return f.ReadFile(n.target)
		}
		out := make([]byte, len(n.content))
		copy(out, n.content)
		return out, nil
	}

	if f.hostRead != nil && f.textAssetExt[Ext(norm)] {
		data, err := f.hostRead(norm)
		if err == nil {
			return data, nil
		}
	}
	return nil, notFound(norm)
}

// Exists reports whether p resolves to any node (in-memory or, for text
// assets, host-backed), following a symlink chain. A symlink pointing at a
// missing target is not "existing" by this measure even though the link
// node itself is present; use Lstat to inspect the link node directly.
func (f *FS) Exists(p string) bool {
	_, err := f.Stat(p)
	return err == nil
}

// Entry is a directory listing row.
type Entry struct {
	Name  string
	Kind  Kind
	Size  int
	Mtime time.Time
}

// Stat returns metadata for p, following any symlink chain to its final
// target: a symlink path reports the target's kind and size, never its own.
func (f *FS) Stat(p string) (Entry, error) {
	norm, err := Normalize(p)
	if err != nil {
		return Entry{}, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.statLocked(norm, true)
}

// Lstat returns metadata for p without following a trailing symlink: if p
// itself is a symlink, the returned Entry describes the link node, not its
// target, so IsSymbolicLink is reported even when the target is missing.
func (f *FS) Lstat(p string) (Entry, error) {
	norm, err := Normalize(p)
	if err != nil {
		return Entry{}, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.statLocked(norm, false)
}

// statLocked resolves norm to an Entry. Caller holds mu (read lock
// sufficient). When follow is true, a chain of symlinks is walked to its
// final non-symlink target, mirroring RealpathSync's loop.
func (f *FS) statLocked(norm string, follow bool) (Entry, error) {
	seen := map[string]bool{}
	for {
		idx, ok := f.lookup(norm)
		if !ok {
			if f.hostRead != nil && f.textAssetExt[Ext(norm)] {
				if data, err := f.hostRead(norm); err == nil {
					return Entry{Name: Base(norm), Kind: KindFile, Size: len(data)}, nil
				}
			}
			return Entry{}, notFound(norm)
		}
		n := f.nodes[idx]
		if n.kind == KindSymlink && follow {
			if seen[norm] {
				return Entry{}, invalid(norm, "too many levels of symbolic links")
			}
			seen[norm] = true
			target, err := Normalize(n.target)
			if err != nil {
				return Entry{}, err
			}
			norm = target
			continue
		}
		return Entry{Name: Base(norm), Kind: n.kind, Size: len(n.content), Mtime: n.mtime}, nil
	}
}

// ReadDir lists the children of directory p in name-sorted order.
func (f *FS) ReadDir(p string) ([]Entry, error) {
	norm, err := Normalize(p)
	if err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	idx, ok := f.lookup(norm)
	if !ok {
		return nil, notFound(norm)
	}
	n := f.nodes[idx]
	if n.kind != KindDir {
		return nil, notDir(norm)
	}
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Entry, 0, len(names))
	for _, name := range names {
		child := f.nodes[n.children[name]]
		out = append(out, Entry{Name: name, Kind: child.kind, Size: len(child.content), Mtime: child.mtime})
	}
	return out, nil
}

// Remove deletes a file or, if recursive is false, an empty directory at p.
func (f *FS) Remove(p string, recursive bool) error {
	norm, err := Normalize(p)
	if err != nil {
		return err
	}
	if norm == "/" {
		return invalid(norm, "cannot remove the root")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	idx, ok := f.lookup(norm)
	if !ok {
		return notFound(norm)
	}
	n := f.nodes[idx]
	if n.kind == KindDir && len(n.children) > 0 && !recursive {
		return notEmpty(norm)
	}
	if n.kind == KindDir && recursive {
		prefix := norm + "/"
		for p := range f.paths {
			if len(p) > len(prefix) && p[:len(prefix)] == prefix {
				delete(f.paths, p)
			}
		}
	}
	parentIdx, _ := f.lookup(Dir(norm))
	delete(f.nodes[parentIdx].children, Base(norm))
	delete(f.paths, norm)
	return nil
}

// Rename moves a node from src to dst, normalizing both paths. The parent
// directory of dst must already exist.
func (f *FS) Rename(src, dst string) error {
	nsrc, err := Normalize(src)
	if err != nil {
		return err
	}
	ndst, err := Normalize(dst)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	idx, ok := f.lookup(nsrc)
	if !ok {
		return notFound(nsrc)
	}
	dstParent, ok := f.lookup(Dir(ndst))
	if !ok {
		return notFound(Dir(ndst))
	}
	if f.nodes[dstParent].kind != KindDir {
		return notDir(Dir(ndst))
	}

	srcParent, _ := f.lookup(Dir(nsrc))
	delete(f.nodes[srcParent].children, Base(nsrc))
	delete(f.paths, nsrc)

	f.nodes[dstParent].children[Base(ndst)] = idx
	f.paths[ndst] = idx
	f.nodes[idx].mtime = time.Now()
	return nil
}

// Symlink creates a symlink node at linkPath pointing at target.
func (f *FS) Symlink(target, linkPath string) error {
	norm, err := Normalize(linkPath)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.lookup(norm); ok {
		return exists(norm)
	}
	parentIdx, ok := f.lookup(Dir(norm))
	if !ok {
		return notFound(Dir(norm))
	}
	idx := len(f.nodes)
	f.nodes = append(f.nodes, node{kind: KindSymlink, target: target, mtime: time.Now()})
	f.nodes[parentIdx].children[Base(norm)] = idx
	f.paths[norm] = idx
	return nil
}

// Readlink returns the raw target of a symlink node.
func (f *FS) Readlink(p string) (string, error) {
	norm, err := Normalize(p)
	if err != nil {
		return "", err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	idx, ok := f.lookup(norm)
	if !ok {
		return "", notFound(norm)
	}
	if f.nodes[idx].kind != KindSymlink {
		return "", invalid(norm, "not a symbolic link")
	}
	return f.nodes[idx].target, nil
}
