package vfs

import (
	"fmt"
	"strings"
	"time"

	"github.com/pi-agent/pi-exthost/internal/metrics"
)

// Access mode bits matching Node's fs.constants.
const (
	FOK = 0
	WOK = 2
	ROK = 4
)

// StatResult is the JSON-ish shape handed back across the runtime boundary
// for statSync/lstatSync, mirroring the subset of Node's fs.Stats that
// extensions actually probe (isFile/isDirectory/isSymbolicLink/size/mtimeMs).
type StatResult struct {
	Size        int    `json:"size"`
	MtimeMs     int64  `json:"mtimeMs"`
	IsFile      bool   `json:"isFile"`
	IsDirectory bool   `json:"isDirectory"`
	IsSymlink   bool   `json:"isSymbolicLink"`
}

func toStatResult(e Entry) StatResult {
	return StatResult{
		Size:        e.Size,
		MtimeMs:     e.Mtime.UnixMilli(),
		IsFile:      e.Kind == KindFile,
		IsDirectory: e.Kind == KindDir,
		IsSymlink:   e.Kind == KindSymlink,
	}
}

// ReadFileSync mirrors fs.readFileSync and always returns raw bytes; the
// runtime binding layer (runtime/fs.go) turns them into a string for the
// "utf8"/"utf-8" encodings and into a JSON-encoded base64 string otherwise.
func (f *FS) ReadFileSync(path string) ([]byte, error) {
	metrics.Global().RecordVFSOp("read")
	return f.ReadFile(path)
}

func (f *FS) WriteFileSync(path string, data []byte) error {
	metrics.Global().RecordVFSOp("write")
	return f.WriteFile(path, data)
}

func (f *FS) AppendFileSync(path string, data []byte) error {
	metrics.Global().RecordVFSOp("append")
	existing, err := f.ReadFile(path)
	if err != nil {
		if verr, ok := err.(*Error); !ok || verr.Code != "ENOENT" {
			return err
		}
		existing = nil
	}
	return f.WriteFile(path, append(existing, data...))
}

func (f *FS) ExistsSync(path string) bool {
	metrics.Global().RecordVFSOp("exists")
	return f.Exists(path)
}

func (f *FS) StatSync(path string) (StatResult, error) {
	metrics.Global().RecordVFSOp("stat")
	e, err := f.Stat(path)
	if err != nil {
		return StatResult{}, err
	}
	return toStatResult(e), nil
}

// LstatSync differs from StatSync only when path is a symlink, in which case
// it reports the link node itself rather than following it to its target.
func (f *FS) LstatSync(path string) (StatResult, error) {
	metrics.Global().RecordVFSOp("lstat")
	e, err := f.Lstat(path)
	if err != nil {
		return StatResult{}, err
	}
	return toStatResult(e), nil
}

// DirentEntry is the JSON shape handed back for a readdirSync({withFileTypes:
// true}) entry, mirroring the subset of Node's fs.Dirent extension code
// actually probes (name plus the same is*/kind predicates StatResult uses).
type DirentEntry struct {
	Name        string `json:"name"`
	IsFile      bool   `json:"isFile"`
	IsDirectory bool   `json:"isDirectory"`
	IsSymlink   bool   `json:"isSymbolicLink"`
}

// ReaddirSync lists path's children. The runtime binding layer decides
// whether to project these down to bare names or to DirentEntry values,
// depending on the caller's withFileTypes option.
func (f *FS) ReaddirSync(path string) ([]Entry, error) {
	metrics.Global().RecordVFSOp("readdir")
	return f.ReadDir(path)
}

func (f *FS) MkdirSync(path string, recursive bool) error {
	metrics.Global().RecordVFSOp("mkdir")
	return f.Mkdir(path, recursive)
}

func (f *FS) UnlinkSync(path string) error {
	metrics.Global().RecordVFSOp("unlink")
	norm, err := Normalize(path)
	if err != nil {
		return err
	}
	e, err := f.Stat(norm)
	if err != nil {
		return err
	}
	if e.Kind == KindDir {
		return isDir(norm)
	}
	return f.Remove(norm, false)
}

func (f *FS) RmdirSync(path string) error {
	metrics.Global().RecordVFSOp("rmdir")
	norm, err := Normalize(path)
	if err != nil {
		return err
	}
	e, err := f.Stat(norm)
	if err != nil {
		return err
	}
	if e.Kind != KindDir {
		return notDir(norm)
	}
	return f.Remove(norm, false)
}

// RmSync mirrors fs.rmSync, which accepts a recursive+force option pair.
// force suppresses ENOENT; everything else still surfaces.
func (f *FS) RmSync(path string, recursive, force bool) error {
	metrics.Global().RecordVFSOp("rm")
	err := f.Remove(path, recursive)
	if err != nil {
		if verr, ok := err.(*Error); ok && verr.Code == "ENOENT" && force {
			return nil
		}
		return err
	}
	return nil
}

func (f *FS) CopyFileSync(src, dst string) error {
	metrics.Global().RecordVFSOp("copyFile")
	data, err := f.ReadFile(src)
	if err != nil {
		return err
	}
	return f.WriteFile(dst, data)
}

func (f *FS) RenameSync(src, dst string) error {
	metrics.Global().RecordVFSOp("rename")
	return f.Rename(src, dst)
}

func (f *FS) AccessSync(path string, mode int) error {
	metrics.Global().RecordVFSOp("access")
	norm, err := Normalize(path)
	if err != nil {
		return err
	}
	if !f.Exists(norm) {
		return notFound(norm)
	}
	// The in-memory arena has no per-node permission model; only
	// existence (F_OK) can meaningfully fail. W_OK against a host-backed
	// read-fallback node without a local shadow is denied, matching the
	// write-isolation invariant.
	if mode&WOK != 0 {
		e, _ := f.Stat(norm)
		if e.Kind == KindFile {
			if _, ok := f.lookup(norm); !ok {
				return denied(norm)
			}
		}
	}
	return nil
}

func (f *FS) SymlinkSync(target, linkPath string) error {
	metrics.Global().RecordVFSOp("symlink")
	return f.Symlink(target, linkPath)
}

func (f *FS) ReadlinkSync(path string) (string, error) {
	metrics.Global().RecordVFSOp("readlink")
	return f.Readlink(path)
}

// RealpathSync resolves symlinks and normalizes; the arena has no hard-link
// aliasing so this differs from Normalize only by following symlink chains.
func (f *FS) RealpathSync(path string) (string, error) {
	metrics.Global().RecordVFSOp("realpath")
	norm, err := Normalize(path)
	if err != nil {
		return "", err
	}
	seen := map[string]bool{}
	for {
		if seen[norm] {
			return "", invalid(norm, "too many levels of symbolic links")
		}
		seen[norm] = true
		f.mu.RLock()
		idx, ok := f.lookup(norm)
		f.mu.RUnlock()
		if !ok {
			return norm, nil
		}
		f.mu.RLock()
		n := f.nodes[idx]
		f.mu.RUnlock()
		if n.kind != KindSymlink {
			return norm, nil
		}
		norm, err = Normalize(n.target)
		if err != nil {
			return "", err
		}
	}
}

// MkdtempSync creates a unique directory under the prefix's parent, using a
// monotonic in-process counter rather than crypto randomness since the
// result only needs to be unique within one runtime worker's lifetime.
var mkdtempCounter int

func (f *FS) MkdtempSync(prefix string) (string, error) {
	metrics.Global().RecordVFSOp("mkdtemp")
	mkdtempCounter++
	path := fmt.Sprintf("%s%d-%d", prefix, time.Now().UnixNano(), mkdtempCounter)
	if err := f.Mkdir(path, true); err != nil {
		return "", err
	}
	norm, _ := Normalize(path)
	return norm, nil
}

// IsRecognizedTextAsset reports whether ext (as returned by Ext) is in the
// configured text-asset extension set, for callers deciding whether a read
// should attempt the host fallback.
func (f *FS) IsRecognizedTextAsset(path string) bool {
	return f.textAssetExt[Ext(path)]
}

// NormalizeWithinRoot strips a configured host root prefix, used by the
// runtime binding layer to translate an extension-visible path into the
// form hostRead expects.
func NormalizeWithinRoot(root, path string) string {
	norm := MustNormalize(path)
	if root == "" {
		return norm
	}
	return strings.TrimPrefix(norm, MustNormalize(root))
}
