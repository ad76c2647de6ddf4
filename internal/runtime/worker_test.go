package runtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pi-agent/pi-exthost/internal/hostcall"
	"github.com/pi-agent/pi-exthost/internal/vfs"
	"github.com/stretchr/testify/require"
)

type fakeOps struct {
	responses map[string]json.RawMessage
	calls     []string
}

func (f *fakeOps) HandleOp(name string, payload json.RawMessage) (json.RawMessage, *hostcall.Error) {
	f.calls = append(f.calls, name)
	if resp, ok := f.responses[name]; ok {
		return resp, nil
	}
	return nil, hostcall.NewError(hostcall.KindNotFound, "no fake response for %s", name)
}

func newTestWorker(t *testing.T, ops OpHandler) *Worker {
	t.Helper()
	fs := vfs.New("", nil, nil)
	w, err := NewWorker(Config{
		ExtensionID:    "ext-test",
		Ops:            ops,
		FS:             fs,
		DefaultTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(w.Shutdown)
	return w
}

func TestLoadExtensionCollectsRegistrations(t *testing.T) {
	w := newTestWorker(t, &fakeOps{})
	source := `
function init(pi) {
  pi.registerTool({ name: "echo", description: "echoes input" });
  pi.registerCommand("/hello", { description: "says hello" });
  pi.on("message", function(payload) { return { handled: true }; });
}
`
	payload, err := w.LoadExtension(context.Background(), source, time.Second)
	require.NoError(t, err)
	require.Equal(t, "ext-test", payload.ExtensionID)
	require.Len(t, payload.Tools, 1)
	require.Equal(t, "echo", payload.Tools[0].Name)
	require.Contains(t, payload.Commands, "/hello")
	require.Contains(t, payload.EventHooks, "message")
}

func TestDispatchEventInvokesHandlerAndReturnsResponse(t *testing.T) {
	w := newTestWorker(t, &fakeOps{})
	source := `
function init(pi) {
  pi.on("message", function(payload) {
    return { seen: payload.text };
  });
}
`
	_, err := w.LoadExtension(context.Background(), source, time.Second)
	require.NoError(t, err)

	env := hostcall.Envelope{
		Kind:    hostcall.KindEvent,
		ID:      "evt-1",
		Name:    "message",
		Payload: json.RawMessage(`{"text":"hi"}`),
	}
	resp, err := w.DispatchEvent(context.Background(), env)
	require.NoError(t, err)
	require.Equal(t, hostcall.KindEventResponse, resp.Kind)
	require.JSONEq(t, `{"seen":"hi"}`, string(resp.Payload))
}

func TestDispatchEventWithNoHandlerReturnsNullPayload(t *testing.T) {
	w := newTestWorker(t, &fakeOps{})
	_, err := w.LoadExtension(context.Background(), `function init(pi) {}`, time.Second)
	require.NoError(t, err)

	resp, err := w.DispatchEvent(context.Background(), hostcall.Envelope{
		Kind: hostcall.KindEvent,
		ID:   "evt-2",
		Name: "unknown_event",
	})
	require.NoError(t, err)
	require.Equal(t, "null", string(resp.Payload))
}

func TestHostcallBridgeRoutesToOpHandler(t *testing.T) {
	ops := &fakeOps{responses: map[string]json.RawMessage{
		"events.getModel": json.RawMessage(`{"model":"test-model"}`),
	}}
	w := newTestWorker(t, ops)
	source := `
var model;
function init(pi) {
  model = pi.events().getModel();
  pi.on("message", function() { return model; });
}
`
	_, err := w.LoadExtension(context.Background(), source, time.Second)
	require.NoError(t, err)
	require.Contains(t, ops.calls, "events.getModel")

	resp, err := w.DispatchEvent(context.Background(), hostcall.Envelope{Kind: hostcall.KindEvent, ID: "e", Name: "message"})
	require.NoError(t, err)
	require.JSONEq(t, `{"model":"test-model"}`, string(resp.Payload))
}

func TestDispatchEventTimesOutOnInfiniteLoop(t *testing.T) {
	w := newTestWorker(t, &fakeOps{})
	source := `
function init(pi) {
  pi.on("message", function() { while (true) {} });
}
`
	_, err := w.LoadExtension(context.Background(), source, time.Second)
	require.NoError(t, err)

	_, err = w.submitWithTimeout(50*time.Millisecond, func() (string, error) {
		val, err := w.ctx.RunScript(`__pi_dispatch("message", null)`, "pi-dispatch-test.js")
		if err != nil {
			return "", err
		}
		return val.String(), nil
	})
	require.Error(t, err)
	herr, ok := err.(*hostcall.Error)
	require.True(t, ok)
	require.Equal(t, hostcall.KindTimeout, herr.Kind)
}

func TestFsNamespaceRoundTripsThroughExtension(t *testing.T) {
	fs := vfs.New("", nil, nil)
	w, err := NewWorker(Config{ExtensionID: "ext-fs", Ops: &fakeOps{}, FS: fs, DefaultTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(w.Shutdown)

	source := `
function init(pi) {
  const fsmod = require("fs");
  fsmod.mkdirSync("/work", { recursive: true });
  fsmod.writeFileSync("/work/note.txt", "hello");
  pi.on("message", function() {
    return { content: fsmod.readFileSync("/work/note.txt", "utf8"), exists: fsmod.existsSync("/work/note.txt") };
  });
}
`
	_, err = w.LoadExtension(context.Background(), source, time.Second)
	require.NoError(t, err)

	resp, err := w.DispatchEvent(context.Background(), hostcall.Envelope{Kind: hostcall.KindEvent, ID: "e", Name: "message"})
	require.NoError(t, err)
	require.JSONEq(t, `{"content":"hello","exists":true}`, string(resp.Payload))
}

func TestFsAccessSyncAndConstants(t *testing.T) {
	fs := vfs.New("", nil, nil)
	w, err := NewWorker(Config{ExtensionID: "ext-access", Ops: &fakeOps{}, FS: fs, DefaultTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(w.Shutdown)

	source := `
function init(pi) {
  const fsmod = require("fs");
  fsmod.writeFileSync("/exists.txt", "x");
  var accessError = null;
  try {
    fsmod.accessSync("/missing.txt", fsmod.constants.F_OK);
  } catch (e) {
    accessError = e.message;
  }
  pi.on("message", function() {
    return {
      okConstants: fsmod.constants.F_OK === 0 && fsmod.constants.W_OK === 2 && fsmod.constants.R_OK === 4,
      existingAccessible: (function() { fsmod.accessSync("/exists.txt", fsmod.constants.F_OK); return true; })(),
      missingThrew: accessError !== null && accessError.indexOf("ENOENT") === 0,
    };
  });
}
`
	_, err = w.LoadExtension(context.Background(), source, time.Second)
	require.NoError(t, err)

	resp, err := w.DispatchEvent(context.Background(), hostcall.Envelope{Kind: hostcall.KindEvent, ID: "e", Name: "message"})
	require.NoError(t, err)
	require.JSONEq(t, `{"okConstants":true,"existingAccessible":true,"missingThrew":true}`, string(resp.Payload))
}

func TestReaddirSyncWithFileTypes(t *testing.T) {
	fs := vfs.New("", nil, nil)
	w, err := NewWorker(Config{ExtensionID: "ext-readdir", Ops: &fakeOps{}, FS: fs, DefaultTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(w.Shutdown)

	source := `
function init(pi) {
  const fsmod = require("fs");
  fsmod.mkdirSync("/work", { recursive: true });
  fsmod.writeFileSync("/work/a.txt", "a");
  fsmod.mkdirSync("/work/sub", { recursive: true });
  pi.on("message", function() {
    const names = fsmod.readdirSync("/work");
    const dirents = fsmod.readdirSync("/work", { withFileTypes: true });
    return { names: names, dirents: dirents };
  });
}
`
	_, err = w.LoadExtension(context.Background(), source, time.Second)
	require.NoError(t, err)

	resp, err := w.DispatchEvent(context.Background(), hostcall.Envelope{Kind: hostcall.KindEvent, ID: "e", Name: "message"})
	require.NoError(t, err)
	require.JSONEq(t, `{
		"names": ["a.txt", "sub"],
		"dirents": [
			{"name":"a.txt","isFile":true,"isDirectory":false,"isSymbolicLink":false},
			{"name":"sub","isFile":false,"isDirectory":true,"isSymbolicLink":false}
		]
	}`, string(resp.Payload))
}

func TestFsCallbackFormReadFile(t *testing.T) {
	fs := vfs.New("", nil, nil)
	w, err := NewWorker(Config{ExtensionID: "ext-cb", Ops: &fakeOps{}, FS: fs, DefaultTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(w.Shutdown)

	source := `
function init(pi) {
  const fsmod = require("fs");
  fsmod.writeFileSync("/note.txt", "via-callback");
  pi.on("message", function() {
    var captured;
    fsmod.readFile("/note.txt", "utf8", function(err, data) { captured = { err: err, data: data }; });
    return captured;
  });
}
`
	_, err = w.LoadExtension(context.Background(), source, time.Second)
	require.NoError(t, err)

	resp, err := w.DispatchEvent(context.Background(), hostcall.Envelope{Kind: hostcall.KindEvent, ID: "e", Name: "message"})
	require.NoError(t, err)
	require.JSONEq(t, `null`, string(resp.Payload))
}

func TestPathNamespaceJoinAndDirname(t *testing.T) {
	w := newTestWorker(t, &fakeOps{})
	source := `
var result;
function init(pi) {
  const p = require("path");
  result = { joined: p.join("/a", "b", "c.txt"), dir: p.dirname("/a/b/c.txt"), ext: p.extname("/a/b/c.txt") };
  pi.on("message", function() { return result; });
}
`
	_, err := w.LoadExtension(context.Background(), source, time.Second)
	require.NoError(t, err)

	resp, err := w.DispatchEvent(context.Background(), hostcall.Envelope{Kind: hostcall.KindEvent, ID: "e", Name: "message"})
	require.NoError(t, err)
	require.JSONEq(t, `{"joined":"/a/b/c.txt","dir":"/a/b","ext":".txt"}`, string(resp.Payload))
}
