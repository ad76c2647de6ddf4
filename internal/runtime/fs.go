package runtime

import (
	"encoding/json"

	"github.com/pi-agent/pi-exthost/internal/vfs"
	v8 "rogchap.com/v8go"
)

// buildFsNamespace builds the __pi_fs ObjectTemplate the bootstrap script's
// fs/node:fs/node:fs/promises shims call into, one FunctionTemplate per
// vfs.FS method, grouped under a single namespace the way other_examples'
// APIRegistry.inject groups per-tool bindings under ns.Set/global.Set.
//
// Thrown errors are plain JS Error objects whose message is "<CODE>:
// <detail>" (e.g. "ENOENT: no such file or directory"); extension code that
// wants structured codes parses the CODE prefix, matching how Node itself
// exposes err.code but without requiring a richer error-object bridge here.
func (w *Worker) buildFsNamespace(iso *v8.Isolate) (*v8.ObjectTemplate, error) {
	ns := v8.NewObjectTemplate(iso)
	fs := w.fs

	set := func(name string, cb v8.FunctionCallback) error {
		return ns.Set(name, v8.NewFunctionTemplate(iso, cb), v8.ReadOnly)
	}

	if err := set("readFileSync", func(info *v8.FunctionCallbackInfo) *v8.Value {
		data, err := fs.ReadFileSync(argString(info, 0))
		if err != nil {
			return throwVFSError(info, err)
		}
		enc := argString(info, 1)
		if enc == "utf8" || enc == "utf-8" {
			return mustString(info, string(data))
		}
		b, _ := json.Marshal(data)
		return mustString(info, string(b))
	}); err != nil {
		return nil, err
	}

	if err := set("writeFileSync", func(info *v8.FunctionCallbackInfo) *v8.Value {
		if err := fs.WriteFileSync(argString(info, 0), []byte(argString(info, 1))); err != nil {
			return throwVFSError(info, err)
		}
		return mustUndefined(info)
	}); err != nil {
		return nil, err
	}

	if err := set("appendFileSync", func(info *v8.FunctionCallbackInfo) *v8.Value {
		if err := fs.AppendFileSync(argString(info, 0), []byte(argString(info, 1))); err != nil {
			return throwVFSError(info, err)
		}
		return mustUndefined(info)
	}); err != nil {
		return nil, err
	}

	if err := set("existsSync", func(info *v8.FunctionCallbackInfo) *v8.Value {
		return mustBool(info, fs.ExistsSync(argString(info, 0)))
	}); err != nil {
		return nil, err
	}

	if err := set("statSync", func(info *v8.FunctionCallbackInfo) *v8.Value {
		st, err := fs.StatSync(argString(info, 0))
		if err != nil {
			return throwVFSError(info, err)
		}
		return mustJSON(info, st)
	}); err != nil {
		return nil, err
	}

	if err := set("lstatSync", func(info *v8.FunctionCallbackInfo) *v8.Value {
		st, err := fs.LstatSync(argString(info, 0))
		if err != nil {
			return throwVFSError(info, err)
		}
		return mustJSON(info, st)
	}); err != nil {
		return nil, err
	}

	if err := set("readdirSync", func(info *v8.FunctionCallbackInfo) *v8.Value {
		entries, err := fs.ReaddirSync(argString(info, 0))
		if err != nil {
			return throwVFSError(info, err)
		}
		if argBool(info, 1) {
			dirents := make([]vfs.DirentEntry, len(entries))
			for i, e := range entries {
				dirents[i] = vfs.DirentEntry{
					Name:        e.Name,
					IsFile:      e.Kind == vfs.KindFile,
					IsDirectory: e.Kind == vfs.KindDir,
					IsSymlink:   e.Kind == vfs.KindSymlink,
				}
			}
			return mustJSON(info, dirents)
		}
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name
		}
		return mustJSON(info, names)
	}); err != nil {
		return nil, err
	}

	if err := set("mkdirSync", func(info *v8.FunctionCallbackInfo) *v8.Value {
		if err := fs.MkdirSync(argString(info, 0), argBool(info, 1)); err != nil {
			return throwVFSError(info, err)
		}
		return mustUndefined(info)
	}); err != nil {
		return nil, err
	}

	if err := set("unlinkSync", func(info *v8.FunctionCallbackInfo) *v8.Value {
		if err := fs.UnlinkSync(argString(info, 0)); err != nil {
			return throwVFSError(info, err)
		}
		return mustUndefined(info)
	}); err != nil {
		return nil, err
	}

	if err := set("rmdirSync", func(info *v8.FunctionCallbackInfo) *v8.Value {
		if err := fs.RmdirSync(argString(info, 0)); err != nil {
			return throwVFSError(info, err)
		}
		return mustUndefined(info)
	}); err != nil {
		return nil, err
	}

	if err := set("rmSync", func(info *v8.FunctionCallbackInfo) *v8.Value {
		if err := fs.RmSync(argString(info, 0), argBool(info, 1), argBool(info, 2)); err != nil {
			return throwVFSError(info, err)
		}
		return mustUndefined(info)
	}); err != nil {
		return nil, err
	}

	if err := set("copyFileSync", func(info *v8.FunctionCallbackInfo) *v8.Value {
		if err := fs.CopyFileSync(argString(info, 0), argString(info, 1)); err != nil {
			return throwVFSError(info, err)
		}
		return mustUndefined(info)
	}); err != nil {
		return nil, err
	}

	if err := set("renameSync", func(info *v8.FunctionCallbackInfo) *v8.Value {
		if err := fs.RenameSync(argString(info, 0), argString(info, 1)); err != nil {
			return throwVFSError(info, err)
		}
		return mustUndefined(info)
	}); err != nil {
		return nil, err
	}

	if err := set("symlinkSync", func(info *v8.FunctionCallbackInfo) *v8.Value {
		if err := fs.SymlinkSync(argString(info, 0), argString(info, 1)); err != nil {
			return throwVFSError(info, err)
		}
		return mustUndefined(info)
	}); err != nil {
		return nil, err
	}

	if err := set("readlinkSync", func(info *v8.FunctionCallbackInfo) *v8.Value {
		target, err := fs.ReadlinkSync(argString(info, 0))
		if err != nil {
			return throwVFSError(info, err)
		}
		return mustString(info, target)
	}); err != nil {
		return nil, err
	}

	if err := set("realpathSync", func(info *v8.FunctionCallbackInfo) *v8.Value {
		real, err := fs.RealpathSync(argString(info, 0))
		if err != nil {
			return throwVFSError(info, err)
		}
		return mustString(info, real)
	}); err != nil {
		return nil, err
	}

	if err := set("mkdtempSync", func(info *v8.FunctionCallbackInfo) *v8.Value {
		dir, err := fs.MkdtempSync(argString(info, 0))
		if err != nil {
			return throwVFSError(info, err)
		}
		return mustString(info, dir)
	}); err != nil {
		return nil, err
	}

	if err := set("accessSync", func(info *v8.FunctionCallbackInfo) *v8.Value {
		// mode defaults to F_OK (0) when omitted, matching Node.
		mode := argInt(info, 1)
		if err := fs.AccessSync(argString(info, 0), mode); err != nil {
			return throwVFSError(info, err)
		}
		return mustUndefined(info)
	}); err != nil {
		return nil, err
	}

	if err := set("constants", func(info *v8.FunctionCallbackInfo) *v8.Value {
		return mustJSON(info, map[string]int{"F_OK": vfs.FOK, "W_OK": vfs.WOK, "R_OK": vfs.ROK})
	}); err != nil {
		return nil, err
	}

	return ns, nil
}

// buildPathNamespace builds the __pi_path ObjectTemplate backing the
// node:path/path shim, delegating to vfs.PathModule so path semantics match
// the fs layer's own normalization exactly.
func (w *Worker) buildPathNamespace(iso *v8.Isolate) *v8.ObjectTemplate {
	ns := v8.NewObjectTemplate(iso)
	var pm vfs.PathModule

	setFn := func(name string, cb v8.FunctionCallback) {
		_ = ns.Set(name, v8.NewFunctionTemplate(iso, cb), v8.ReadOnly)
	}

	setFn("join", func(info *v8.FunctionCallbackInfo) *v8.Value {
		var parts []string
		_ = json.Unmarshal([]byte(argString(info, 0)), &parts)
		return mustString(info, pm.Join(parts...))
	})
	setFn("dirname", func(info *v8.FunctionCallbackInfo) *v8.Value {
		return mustString(info, pm.Dirname(argString(info, 0)))
	})
	setFn("basename", func(info *v8.FunctionCallbackInfo) *v8.Value {
		base := pm.Basename(argString(info, 0))
		if ext := argString(info, 1); ext != "" && len(base) > len(ext) && base[len(base)-len(ext):] == ext {
			base = base[:len(base)-len(ext)]
		}
		return mustString(info, base)
	})
	setFn("extname", func(info *v8.FunctionCallbackInfo) *v8.Value {
		return mustString(info, pm.Extname(argString(info, 0)))
	})
	setFn("isAbsolute", func(info *v8.FunctionCallbackInfo) *v8.Value {
		return mustBool(info, pm.IsAbsolute(argString(info, 0)))
	})
	setFn("resolve", func(info *v8.FunctionCallbackInfo) *v8.Value {
		var parts []string
		_ = json.Unmarshal([]byte(argString(info, 0)), &parts)
		return mustString(info, pm.Resolve(parts...))
	})
	setFn("relative", func(info *v8.FunctionCallbackInfo) *v8.Value {
		return mustString(info, pm.Relative(argString(info, 0), argString(info, 1)))
	})

	return ns
}

func mustJSON(info *v8.FunctionCallbackInfo, v any) *v8.Value {
	b, err := json.Marshal(v)
	if err != nil {
		return throwJS(info, err.Error())
	}
	return mustString(info, string(b))
}

func throwVFSError(info *v8.FunctionCallbackInfo, err error) *v8.Value {
	if _, ok := err.(*vfs.Error); ok {
		return throwJS(info, err.Error()) // already "<CODE>: <detail>"
	}
	return throwJS(info, vfsErrorCode(err)+": "+err.Error())
}

// vfsErrorCode extracts the POSIX-style code from a vfs error for JS-side
// error messages, defaulting to a generic marker for non-vfs errors.
func vfsErrorCode(err error) string {
	if verr, ok := err.(*vfs.Error); ok {
		return verr.Code
	}
	return "EIO"
}
