package runtime

import (
	"encoding/json"
	"fmt"

	v8 "rogchap.com/v8go"
)

// bootstrapScript runs once per isolate before any extension source. It
// defines:
//   - globalThis.__pi_registrations, the accumulator every pi.register*
//     call writes into, read back by Worker.LoadExtension once init(pi)
//     returns.
//   - globalThis.__pi_handlers, a map of event name -> ordered handler
//     functions registered via pi.on(name, fn).
//   - globalThis.__pi_dispatch(name, payloadJSON), called by
//     Worker.DispatchEvent; runs every handler for name in registration
//     order and returns the first non-undefined result, JSON-encoded (or
//     "null" if no handler produced one). A handler that throws is caught
//     so one bad extension handler cannot abort dispatch to itself or
//     crash the isolate.
//   - the pi object itself (registerTool/registerCommand/registerShortcut/
//     registerFlag/registerProvider/registerMessageRenderer/on/events/
//     session), wired onto __pi_hostcall for synchronous operations.
//   - a CommonJS-style require(specifier) recognizing "fs", "node:fs",
//     "node:fs/promises", "path", "node:path", backed by the __pi_fs and
//     __pi_path namespace objects injectBindings attaches to the global
//     template; anything else throws. The "fs"/"node:fs" object carries all
//     three call forms Node exposes on one object: *Sync, callback
//     (fs.readFile(path, cb)), and fs.constants.
const bootstrapScript = `
(function() {
  globalThis.__pi_registrations = {
    tools: [], commands: {}, shortcuts: [], flags: {},
    providers: [], messageRenderers: [], eventHooks: [],
  };
  globalThis.__pi_handlers = {};

  function callHostcall(name, args) {
    const raw = __pi_hostcall(name, JSON.stringify(args === undefined ? null : args));
    return raw === null ? undefined : JSON.parse(raw);
  }

  const eventsApi = {
    sendMessage: (message, triggerTurn) => callHostcall('events.sendMessage', { message, triggerTurn: !!triggerTurn }),
    sendUserMessage: (text, deliverAs) => callHostcall('events.sendUserMessage', { text, deliverAs }),
    getActiveTools: () => callHostcall('events.getActiveTools'),
    setActiveTools: (names) => callHostcall('events.setActiveTools', names),
    getAllTools: () => callHostcall('events.getAllTools'),
    getModel: () => callHostcall('events.getModel'),
    setModel: (model) => callHostcall('events.setModel', model),
    getThinkingLevel: () => callHostcall('events.getThinkingLevel'),
    setThinkingLevel: (level) => callHostcall('events.setThinkingLevel', level),
  };

  const sessionApi = {
    getName: () => callHostcall('session.getName'),
    setName: (name) => callHostcall('session.setName', name),
    getEntries: () => callHostcall('session.getEntries'),
    appendEntry: (customType, data) => callHostcall('session.appendEntry', { customType, data }),
    appendMessage: (message) => callHostcall('session.appendMessage', message),
    setLabel: (targetId, label) => callHostcall('session.setLabel', { targetId, label }),
  };

  globalThis.pi = {
    registerTool(def) { __pi_registrations.tools.push(def); },
    registerCommand(name, spec) { __pi_registrations.commands[name] = spec; },
    registerShortcut(spec) { __pi_registrations.shortcuts.push(spec); },
    registerFlag(name, spec) { __pi_registrations.flags[name] = spec; },
    registerProvider(spec) { __pi_registrations.providers.push(spec); },
    registerMessageRenderer(spec) { __pi_registrations.messageRenderers.push(spec); },
    on(name, fn) {
      __pi_registrations.eventHooks.push(name);
      (__pi_handlers[name] || (__pi_handlers[name] = [])).push(fn);
    },
    events: () => eventsApi,
    session: () => sessionApi,
  };

  globalThis.__pi_dispatch = function(name, payloadJSON) {
    const payload = payloadJSON === null ? undefined : JSON.parse(payloadJSON);
    const handlers = __pi_handlers[name] || [];
    let first;
    for (const fn of handlers) {
      let result;
      try {
        result = fn(payload);
      } catch (e) {
        continue; // one handler's exception must not break the others
      }
      if (first === undefined && result !== undefined) {
        first = result;
      }
    }
    return first === undefined ? 'null' : JSON.stringify(first);
  };

  // fs sync surface: every __pi_fs method takes/returns JSON-encoded
  // arguments so the Go side never has to marshal individual V8 values.
  function toStats(raw) {
    const s = JSON.parse(raw);
    return {
      size: s.size, mtimeMs: s.mtimeMs,
      isFile: () => s.isFile, isDirectory: () => s.isDirectory, isSymbolicLink: () => s.isSymbolicLink,
    };
  }
  const fsSync = {
    readFileSync: (p, enc) => __pi_fs.readFileSync(p, enc || null),
    writeFileSync: (p, data) => __pi_fs.writeFileSync(p, data),
    appendFileSync: (p, data) => __pi_fs.appendFileSync(p, data),
    existsSync: (p) => __pi_fs.existsSync(p),
    statSync: (p) => toStats(__pi_fs.statSync(p)),
    lstatSync: (p) => toStats(__pi_fs.lstatSync(p)),
    readdirSync: (p, opts) => JSON.parse(__pi_fs.readdirSync(p, !!(opts && opts.withFileTypes))),
    mkdirSync: (p, opts) => __pi_fs.mkdirSync(p, !!(opts && opts.recursive)),
    unlinkSync: (p) => __pi_fs.unlinkSync(p),
    rmdirSync: (p) => __pi_fs.rmdirSync(p),
    rmSync: (p, opts) => __pi_fs.rmSync(p, !!(opts && opts.recursive), !!(opts && opts.force)),
    copyFileSync: (src, dst) => __pi_fs.copyFileSync(src, dst),
    renameSync: (src, dst) => __pi_fs.renameSync(src, dst),
    symlinkSync: (target, p) => __pi_fs.symlinkSync(target, p),
    readlinkSync: (p) => __pi_fs.readlinkSync(p),
    realpathSync: (p) => __pi_fs.realpathSync(p),
    mkdtempSync: (prefix) => __pi_fs.mkdtempSync(prefix),
    accessSync: (p, mode) => __pi_fs.accessSync(p, mode === undefined ? null : mode),
    constants: JSON.parse(__pi_fs.constants()),
  };

  function promisify(fn) {
    return (...args) => new Promise((resolve, reject) => {
      try { resolve(fn(...args)); } catch (e) { reject(e); }
    });
  }
  const fsPromises = {
    readFile: promisify(fsSync.readFileSync),
    writeFile: promisify(fsSync.writeFileSync),
    appendFile: promisify(fsSync.appendFileSync),
    stat: promisify(fsSync.statSync),
    lstat: promisify(fsSync.lstatSync),
    readdir: promisify(fsSync.readdirSync),
    mkdir: promisify(fsSync.mkdirSync),
    unlink: promisify(fsSync.unlinkSync),
    rmdir: promisify(fsSync.rmdirSync),
    rm: promisify(fsSync.rmSync),
    copyFile: promisify(fsSync.copyFileSync),
    rename: promisify(fsSync.renameSync),
    access: promisify(fsSync.accessSync),
  };

  // callback-form async variants (fs.readFile(path, cb)), matching Node's fs
  // module exposing sync, callback, and promise forms all on one object. The
  // callback always fires on a fresh microtask, even though the underlying
  // work already ran synchronously, so handler ordering doesn't depend on
  // whether a given fs call happened to be sync or callback-form.
  function callbackify(fn) {
    return function(...args) {
      const cb = args.pop();
      let result, err = null;
      try {
        result = fn(...args);
      } catch (e) {
        err = e;
      }
      Promise.resolve().then(() => cb(err, result));
    };
  }
  fsSync.readFile = callbackify(fsSync.readFileSync);
  fsSync.writeFile = callbackify(fsSync.writeFileSync);
  fsSync.appendFile = callbackify(fsSync.appendFileSync);
  fsSync.stat = callbackify(fsSync.statSync);
  fsSync.lstat = callbackify(fsSync.lstatSync);
  fsSync.readdir = callbackify(fsSync.readdirSync);
  fsSync.mkdir = callbackify(fsSync.mkdirSync);
  fsSync.unlink = callbackify(fsSync.unlinkSync);
  fsSync.rmdir = callbackify(fsSync.rmdirSync);
  fsSync.rm = callbackify(fsSync.rmSync);
  fsSync.copyFile = callbackify(fsSync.copyFileSync);
  fsSync.rename = callbackify(fsSync.renameSync);
  fsSync.access = callbackify(fsSync.accessSync);

  const pathModule = {
    join: (...parts) => __pi_path.join(JSON.stringify(parts)),
    dirname: (p) => __pi_path.dirname(p),
    basename: (p, ext) => __pi_path.basename(p, ext || ''),
    extname: (p) => __pi_path.extname(p),
    isAbsolute: (p) => __pi_path.isAbsolute(p),
    resolve: (...parts) => __pi_path.resolve(JSON.stringify(parts)),
    relative: (from, to) => __pi_path.relative(from, to),
    sep: '/',
  };

  const modules = {
    'fs': () => fsSync,
    'node:fs': () => fsSync,
    'node:fs/promises': () => fsPromises,
    'path': () => pathModule,
    'node:path': () => pathModule,
  };
  globalThis.require = function(specifier) {
    const factory = modules[specifier];
    if (!factory) {
      throw new Error('unrecognized module specifier: ' + specifier);
    }
    return factory();
  };
})();
`

// initInvocationScript calls the extension's top-level init(pi) (if
// defined) and serializes the accumulated registrations.
const initInvocationScript = `
(function() {
  if (typeof init === 'function') {
    init(pi);
  }
  return JSON.stringify(__pi_registrations);
})();
`

// injectBindings installs every Go-backed global function the bootstrap
// script calls: __pi_hostcall, and the __pi_fs/__pi_path namespace
// objects, each grouped the way other_examples' APIRegistry.inject groups
// bindings (one ObjectTemplate per namespace, attached read-only on the
// global template).
func (w *Worker) injectBindings(iso *v8.Isolate, global *v8.ObjectTemplate) error {
	hostcallFn := v8.NewFunctionTemplate(iso, func(info *v8.FunctionCallbackInfo) *v8.Value {
		args := info.Args()
		if len(args) < 1 {
			return mustUndefined(info)
		}
		name := args[0].String()
		var payload json.RawMessage
		if len(args) > 1 && !args[1].IsNull() {
			payload = json.RawMessage(args[1].String())
		}
		resp, herr := w.HandleHostcall(name, payload)
		if herr != nil {
			return throwJS(info, herr.Error())
		}
		return mustStringOrNull(info, resp)
	})
	if err := global.Set("__pi_hostcall", hostcallFn, v8.ReadOnly); err != nil {
		return fmt.Errorf("set __pi_hostcall: %w", err)
	}

	fsNS, err := w.buildFsNamespace(iso)
	if err != nil {
		return err
	}
	if err := global.Set("__pi_fs", fsNS, v8.ReadOnly); err != nil {
		return fmt.Errorf("set __pi_fs: %w", err)
	}

	pathNS := w.buildPathNamespace(iso)
	if err := global.Set("__pi_path", pathNS, v8.ReadOnly); err != nil {
		return fmt.Errorf("set __pi_path: %w", err)
	}

	return nil
}

func mustUndefined(info *v8.FunctionCallbackInfo) *v8.Value {
	return v8.Undefined(info.Context().Isolate())
}

func mustString(info *v8.FunctionCallbackInfo, s string) *v8.Value {
	val, err := v8.NewValue(info.Context().Isolate(), s)
	if err != nil {
		return mustUndefined(info)
	}
	return val
}

func mustBool(info *v8.FunctionCallbackInfo, b bool) *v8.Value {
	val, err := v8.NewValue(info.Context().Isolate(), b)
	if err != nil {
		return mustUndefined(info)
	}
	return val
}

func mustStringOrNull(info *v8.FunctionCallbackInfo, raw json.RawMessage) *v8.Value {
	if raw == nil {
		val, _ := v8.NewValue(info.Context().Isolate(), "null")
		return val
	}
	return mustString(info, string(raw))
}

func throwJS(info *v8.FunctionCallbackInfo, message string) *v8.Value {
	iso := info.Context().Isolate()
	val, err := info.Context().RunScript("new Error("+jsString(message)+")", "pi-error.js")
	if err != nil {
		val, _ = v8.NewValue(iso, message)
	}
	return iso.ThrowException(val)
}

func argString(info *v8.FunctionCallbackInfo, i int) string {
	args := info.Args()
	if i >= len(args) || args[i].IsNull() || args[i].IsUndefined() {
		return ""
	}
	return args[i].String()
}

func argBool(info *v8.FunctionCallbackInfo, i int) bool {
	args := info.Args()
	if i >= len(args) {
		return false
	}
	return args[i].Boolean()
}

func argInt(info *v8.FunctionCallbackInfo, i int) int {
	args := info.Args()
	if i >= len(args) || args[i].IsNull() || args[i].IsUndefined() {
		return 0
	}
	return int(args[i].Int32())
}
