// Package runtime implements the JS runtime worker: one V8 isolate
// per extension, pinned to a dedicated OS thread, exposing a CommonJS-style
// module surface (node:fs, fs, node:fs/promises, node:path) and the pi
// host-binding object extension code calls to register capabilities and
// make hostcalls.
//
// Grounded on other_examples' V8Executor (engine/runtime/runtime.go,
// engine/runtime/api.go): the isolate-per-unit-of-work lifecycle, the
// ObjectTemplate/FunctionTemplate namespace-binding pattern, and the
// timeout-via-goroutine-select-TerminateExecution discipline are all lifted
// from there. rogchap.com/v8go is the
// one wired dependency this module sources entirely from the other_examples
// pack.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	goruntime "runtime"
	"time"

	"github.com/pi-agent/pi-exthost/internal/domain"
	"github.com/pi-agent/pi-exthost/internal/hostcall"
	"github.com/pi-agent/pi-exthost/internal/idgen"
	"github.com/pi-agent/pi-exthost/internal/pkg/crypto"
	"github.com/pi-agent/pi-exthost/internal/vfs"
	v8 "rogchap.com/v8go"
)

// OpHandler is the synchronous hostcall sink a Worker calls into for
// events.*/session.* operations. *manager.Manager satisfies this
// structurally (same method signature) without internal/runtime importing
// internal/manager, avoiding a package cycle.
type OpHandler interface {
	HandleOp(name string, payload json.RawMessage) (json.RawMessage, *hostcall.Error)
}

// job is one unit of work the dedicated isolate goroutine executes.
type job struct {
	fn   func() (string, error)
	done chan jobResult
}

type jobResult struct {
	value string
	err   error
}

// Worker owns one V8 isolate for one extension. All isolate access happens
// on a single goroutine pinned with runtime.LockOSThread: the JS runtime
// worker pins its interpreter to a single dedicated thread; every other
// method submits a job to that goroutine over jobs and blocks for the
// result.
type Worker struct {
	ExtensionID string

	jobs   chan job
	stopCh chan struct{}

	iso *v8.Isolate
	ctx *v8.Context
	fs  *vfs.FS

	ops OpHandler

	defaultTimeout time.Duration
}

// Config configures a new Worker.
type Config struct {
	ExtensionID    string
	Ops            OpHandler
	FS             *vfs.FS
	DefaultTimeout time.Duration
}

// NewWorker starts the dedicated isolate goroutine and returns once the
// isolate, context, and bindings are ready.
func NewWorker(cfg Config) (*Worker, error) {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 5 * time.Second
	}
	w := &Worker{
		ExtensionID:    cfg.ExtensionID,
		jobs:           make(chan job),
		stopCh:         make(chan struct{}),
		fs:             cfg.FS,
		ops:            cfg.Ops,
		defaultTimeout: cfg.DefaultTimeout,
	}

	ready := make(chan error, 1)
	go w.run(ready)
	if err := <-ready; err != nil {
		return nil, err
	}
	return w, nil
}

// run is the dedicated isolate goroutine's body: set up, then serve jobs
// until stopCh closes.
func (w *Worker) run(ready chan<- error) {
	goruntime.LockOSThread()
	defer goruntime.UnlockOSThread()

	iso := v8.NewIsolate()
	global := v8.NewObjectTemplate(iso)

	if err := w.injectBindings(iso, global); err != nil {
		iso.Dispose()
		ready <- fmt.Errorf("runtime: inject bindings: %w", err)
		return
	}

	v8ctx := v8.NewContext(iso, global)
	if _, err := v8ctx.RunScript(bootstrapScript, "pi-bootstrap.js"); err != nil {
		v8ctx.Close()
		iso.Dispose()
		ready <- fmt.Errorf("runtime: run bootstrap: %w", err)
		return
	}

	w.iso = iso
	w.ctx = v8ctx
	ready <- nil

	for {
		select {
		case j := <-w.jobs:
			val, err := j.fn()
			j.done <- jobResult{value: val, err: err}
		case <-w.stopCh:
			v8ctx.Close()
			iso.Dispose()
			return
		}
	}
}

// submit runs fn on the isolate goroutine and waits for it to finish or ctx
// to be cancelled. Cancellation does not stop fn running (the isolate
// goroutine is not preemptible from here); callers that need hard
// cancellation should use submitWithTimeout, which calls
// Isolate.TerminateExecution.
func (w *Worker) submit(ctx context.Context, fn func() (string, error)) (string, error) {
	j := job{fn: fn, done: make(chan jobResult, 1)}
	select {
	case w.jobs <- j:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case r := <-j.done:
		return r.value, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// submitWithTimeout runs fn with a watchdog: if it doesn't finish within
// timeout, the host terminates the isolate's currently running script. The
// isolate itself is not disposed — v8go's TerminateExecution only aborts
// the current RunScript call, leaving the isolate reusable.
func (w *Worker) submitWithTimeout(timeout time.Duration, fn func() (string, error)) (string, error) {
	if timeout <= 0 {
		timeout = w.defaultTimeout
	}
	j := job{fn: fn, done: make(chan jobResult, 1)}
	w.jobs <- j

	select {
	case r := <-j.done:
		return r.value, r.err
	case <-time.After(timeout):
		w.iso.TerminateExecution()
		<-j.done // the running script unwinds once terminated
		return "", hostcall.NewError(hostcall.KindTimeout, "extension %s timed out after %s", w.ExtensionID, timeout)
	}
}

// LoadExtension evaluates an extension's source, calls its init(pi), and
// returns the accumulated registration payload.
func (w *Worker) LoadExtension(ctx context.Context, source string, timeout time.Duration) (domain.RegisterPayload, error) {
	raw, err := w.submitWithTimeout(timeout, func() (string, error) {
		if _, err := w.ctx.RunScript(source, w.ExtensionID+".js"); err != nil {
			return "", fmt.Errorf("runtime: evaluate extension %s: %w", w.ExtensionID, err)
		}
		val, err := w.ctx.RunScript(initInvocationScript, w.ExtensionID+"-init.js")
		if err != nil {
			return "", fmt.Errorf("runtime: init(pi) threw in %s: %w", w.ExtensionID, err)
		}
		return val.String(), nil
	})
	if err != nil {
		return domain.RegisterPayload{}, err
	}

	var payload domain.RegisterPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return domain.RegisterPayload{}, fmt.Errorf("runtime: decode registration payload for %s: %w", w.ExtensionID, err)
	}
	payload.ExtensionID = w.ExtensionID
	payload.CodeHash = crypto.HashString(source)
	return payload, nil
}

// DispatchEvent implements manager.ExtensionWorker: it invokes every JS
// handler registered for env.Name via pi.on(...) and returns the first
// non-undefined handler result as the envelope payload ("null" when there is
// none), matching how __pi_dispatch is defined in the bootstrap script. A
// handler that throws is skipped inside __pi_dispatch and produces no error
// response; only a timeout comes back as an error response, and any other
// script failure is returned as a Go error.
func (w *Worker) DispatchEvent(ctx context.Context, env hostcall.Envelope) (hostcall.Envelope, error) {
	script := fmt.Sprintf(
		"__pi_dispatch(%s, %s)",
		jsString(string(env.Name)),
		jsStringOrNull(env.Payload),
	)
	raw, err := w.submitWithTimeout(w.defaultTimeout, func() (string, error) {
		val, err := w.ctx.RunScript(script, "pi-dispatch.js")
		if err != nil {
			return "", err
		}
		return val.String(), nil
	})
	if err != nil {
		if herr, ok := err.(*hostcall.Error); ok {
			return hostcall.Envelope{Kind: hostcall.KindEventResponse, ID: env.ID, Error: herr.AsDetail()}, nil
		}
		return hostcall.Envelope{}, err
	}
	return hostcall.Envelope{
		Kind:    hostcall.KindEventResponse,
		ID:      env.ID,
		Payload: json.RawMessage(raw),
	}, nil
}

// Shutdown stops the dedicated goroutine and releases the isolate.
func (w *Worker) Shutdown() {
	close(w.stopCh)
}

// HandleHostcall is called by the bootstrap's __pi_hostcall binding
// (runtime/binding.go) to route a synchronous events.*/session.* call to
// the attached OpHandler.
func (w *Worker) HandleHostcall(name string, payload json.RawMessage) (json.RawMessage, *hostcall.Error) {
	if w.ops == nil {
		return nil, hostcall.NewError(hostcall.KindCapabilityDenied, "no host operations attached")
	}
	return w.ops.HandleOp(name, payload)
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// jsStringOrNull renders payload as a JS string literal containing the raw
// JSON text (the bootstrap script JSON.parses it on the other side), or the
// JS literal null when there is no payload.
func jsStringOrNull(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	return jsString(string(raw))
}

// newCorrelationHostCallID returns a fresh idgen ID for tagging a hostcall
// envelope. The binding layer does not call it: __pi_hostcall carries no
// correlation ID.
func newCorrelationHostCallID() string { return idgen.New() }
