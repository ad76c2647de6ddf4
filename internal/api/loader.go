// Package api implements the HTTP control surface for `cmd/pi-exthost
// serve`: a thin collaborator the conformance harness and manual
// testing drive the core through, grounded on internal/api/server.go's
// handler-registration shape.
package api

import (
	"context"
	"fmt"
	"os"

	"github.com/pi-agent/pi-exthost/internal/config"
	"github.com/pi-agent/pi-exthost/internal/domain"
	"github.com/pi-agent/pi-exthost/internal/manager"
	"github.com/pi-agent/pi-exthost/internal/runtime"
	"github.com/pi-agent/pi-exthost/internal/vfs"
)

// ExtensionLoader turns an entry-path load request into a running worker
// attached to the manager: it owns the per-extension VFS/runtime
// construction the HTTP handler and the `load` CLI subcommand both need.
type ExtensionLoader struct {
	Manager *manager.Manager
	VFS     config.VFSConfig
	Runtime config.RuntimeConfig
}

// LoadFromPath reads entryPath, starts a new isolate for it, runs init(pi),
// and registers the result with the manager.
func (l *ExtensionLoader) LoadFromPath(ctx context.Context, extensionID, entryPath string) (domain.RegisterPayload, error) {
	source, err := os.ReadFile(entryPath)
	if err != nil {
		return domain.RegisterPayload{}, fmt.Errorf("api: read entry %s: %w", entryPath, err)
	}

	var hostRead func(string) ([]byte, error)
	if l.VFS.ExtensionRoot != "" {
		hostRead = vfs.OSHostReader(l.VFS.ExtensionRoot)
	}
	fs := vfs.New(l.VFS.ExtensionRoot, l.VFS.TextAssetExtensions, hostRead)

	worker, err := runtime.NewWorker(runtime.Config{
		ExtensionID:    extensionID,
		Ops:            l.Manager,
		FS:             fs,
		DefaultTimeout: l.Runtime.DefaultTimeout,
	})
	if err != nil {
		return domain.RegisterPayload{}, fmt.Errorf("api: start worker for %s: %w", extensionID, err)
	}

	payload, err := worker.LoadExtension(ctx, string(source), l.Runtime.DefaultTimeout)
	if err != nil {
		worker.Shutdown()
		return domain.RegisterPayload{}, fmt.Errorf("api: load extension %s: %w", extensionID, err)
	}

	l.Manager.AttachWorker(extensionID, worker)
	if err := l.Manager.Register(payload); err != nil {
		worker.Shutdown()
		l.Manager.DetachWorker(extensionID)
		return domain.RegisterPayload{}, fmt.Errorf("api: register %s: %w", extensionID, err)
	}

	return payload, nil
}
