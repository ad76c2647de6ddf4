// Package manager implements the extension manager: registration
// bookkeeping, derived capability aggregation, and event/command dispatch
// ordering. The concurrency shape is lifted directly from
// internal/pool/pool.go: a sync.Map of per-key state plus an
// atomically-swapped read-mostly snapshot, so readers (every hostcall that
// asks "what tools are active", every event dispatch that asks "who's
// listening") never block behind a registration in progress and a
// registration never blocks behind a slow reader.
package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/pi-agent/pi-exthost/internal/domain"
	"github.com/pi-agent/pi-exthost/internal/hostcall"
)

// ExtensionWorker is the manager's view of a running runtime worker: enough
// surface to push events and commands at it and get a response back. The
// concrete implementation lives in internal/runtime; the manager only
// depends on this interface so the two packages can be built and tested
// independently, matching the backend.VM / Client split.
type ExtensionWorker interface {
	DispatchEvent(ctx context.Context, env hostcall.Envelope) (hostcall.Envelope, error)
}

// Manager owns the set of registered extensions, the derived capability
// snapshot, and the dynamic tool/model/thinking-level policy state.
type Manager struct {
	mu            sync.Mutex // serializes Register/Unregister; readers use the snapshot
	registrations sync.Map   // extensionID (string) -> domain.RegisterPayload
	workers       sync.Map   // extensionID (string) -> ExtensionWorker

	snapshot atomic.Pointer[domain.CapabilitySnapshot]

	// activeTools is nil (all tools active) until SetActiveTools narrows
	// it; stored as *[]string so the zero value is distinguishable from an
	// explicit empty-set narrowing.
	activeTools atomic.Pointer[[]string]
	model          atomic.Pointer[string]
	thinkingLevel  atomic.Pointer[string]

	session      domain.SessionHandle
	hostActions  domain.HostActionsHandle
}

// New creates an empty Manager. session and hostActions may be nil in
// contexts that never need the session.*/events.sendMessage hostcalls (e.g.
// the conformance harness replaying traces offline).
func New(session domain.SessionHandle, hostActions domain.HostActionsHandle) *Manager {
	m := &Manager{session: session, hostActions: hostActions}
	empty := domain.EmptySnapshot()
	m.snapshot.Store(&empty)
	return m
}

// Snapshot returns the current capability aggregation. The returned value is
// never mutated in place by the manager — each Register call builds and
// swaps in a brand new snapshot — so callers may read it without a lock.
func (m *Manager) Snapshot() domain.CapabilitySnapshot {
	return *m.snapshot.Load()
}

// AttachWorker associates a running worker with an extension ID so later
// dispatch calls know where to send events. Called once the runtime worker
// has started, before Register is called with its init() result.
func (m *Manager) AttachWorker(extensionID string, w ExtensionWorker) {
	m.workers.Store(extensionID, w)
}

// DetachWorker removes a worker and its registration, e.g. on unload or
// crash recovery.
func (m *Manager) DetachWorker(extensionID string) {
	m.workers.Delete(extensionID)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registrations.Delete(extensionID)
	m.rebuildSnapshotLocked()
}

// Register records an extension's init(pi) result and recomputes the
// derived capability snapshot. Concurrent Register calls are serialized by
// mu; the snapshot swap itself is lock-free for readers ( property:
// registration order is preserved for event-hook fan-out).
func (m *Manager) Register(payload domain.RegisterPayload) error {
	if payload.ExtensionID == "" {
		return hostcall.NewError(hostcall.KindValidation, "register: missing extensionId")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registrations.Store(payload.ExtensionID, payload.Clone())
	m.rebuildSnapshotLocked()
	return nil
}

// orderedExtensionIDs returns every currently-registered extension ID in
// the order Register was first called for it. The registration order is
// tracked by the insertion order of a parallel slice kept under mu, since
// sync.Map does not preserve iteration order.
func (m *Manager) rebuildSnapshotLocked() {
	type regRow struct {
		id      string
		payload domain.RegisterPayload
	}
	var rows []regRow
	m.registrations.Range(func(k, v any) bool {
		rows = append(rows, regRow{id: k.(string), payload: v.(domain.RegisterPayload)})
		return true
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })

	snap := domain.EmptySnapshot()
	// Dynamic flags exist only in the snapshot, so carry them over before
	// re-applying payload-time declarations.
	for name, fl := range m.snapshot.Load().Flags {
		if fl.Dynamic {
			snap.Flags[name] = fl
		}
	}
	for _, row := range rows {
		p := row.payload
		for name, cmd := range p.Commands {
			snap.Commands[name] = domain.CommandEntry{
				ExtensionID: p.ExtensionID,
				Description: cmd.Description,
				Source:      cmd.Source,
			}
		}
		for _, sc := range p.Shortcuts {
			snap.Shortcuts = append(snap.Shortcuts, domain.ShortcutEntry{
				KeyID:       sc.KeyID,
				ExtensionID: p.ExtensionID,
				Descriptor:  sc.Descriptor,
			})
		}
		for name, fl := range p.Flags {
			if existing, ok := snap.Flags[name]; ok && existing.Dynamic {
				continue // a dynamic registration outranks a later payload-time one
			}
			snap.Flags[name] = domain.FlagEntry{Spec: fl, Dynamic: false}
		}
		for _, pr := range p.Providers {
			snap.Providers = append(snap.Providers, domain.ProviderEntry{
				ExtensionID: p.ExtensionID,
				Name:        pr.Name,
				BaseURL:     pr.BaseURL,
				Models:      pr.Models,
			})
		}
		for _, ev := range p.EventHooks {
			snap.EventHooks[ev] = append(snap.EventHooks[ev], p.ExtensionID)
		}
	}
	m.snapshot.Store(&snap)
}

// SetDynamicFlag installs or overrides a flag outside of extension
// registration: a dynamic registration overrides the payload-time
// declaration. This is the only snapshot mutation that does not originate
// from Register/DetachWorker.
func (m *Manager) SetDynamicFlag(name string, spec domain.FlagSpec) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.Snapshot()
	next := cur
	next.Flags = make(map[string]domain.FlagEntry, len(cur.Flags))
	for k, v := range cur.Flags {
		next.Flags[k] = v
	}
	next.Flags[name] = domain.FlagEntry{Spec: spec, Dynamic: true}
	m.snapshot.Store(&next)
}

// ActiveTools returns the current tool filter: nil means "all registered
// tools are active".
func (m *Manager) ActiveTools() []string {
	p := m.activeTools.Load()
	if p == nil {
		return nil
	}
	return append([]string(nil), (*p)...)
}

// SetActiveTools narrows the active tool set. Passing nil clears the filter
// (back to "all tools active").
func (m *Manager) SetActiveTools(names []string) {
	if names == nil {
		m.activeTools.Store(nil)
		return
	}
	cp := append([]string(nil), names...)
	m.activeTools.Store(&cp)
}

// AllTools returns every tool any registered extension declared, regardless
// of the active-tools filter, for events.getAllTools.
func (m *Manager) AllTools() []domain.ToolDef {
	var out []domain.ToolDef
	m.registrations.Range(func(_, v any) bool {
		out = append(out, v.(domain.RegisterPayload).Tools...)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *Manager) Model() string {
	p := m.model.Load()
	if p == nil {
		return ""
	}
	return *p
}

func (m *Manager) SetModel(model string) {
	cp := model
	m.model.Store(&cp)
}

func (m *Manager) ThinkingLevel() string {
	p := m.thinkingLevel.Load()
	if p == nil {
		return ""
	}
	return *p
}

func (m *Manager) SetThinkingLevel(level string) {
	cp := level
	m.thinkingLevel.Store(&cp)
}

// Session returns the attached session-handle capability, or nil if none
// was wired (e.g. the conformance harness).
func (m *Manager) Session() domain.SessionHandle { return m.session }

// HostActions returns the attached host-actions capability, or nil.
func (m *Manager) HostActions() domain.HostActionsHandle { return m.hostActions }

// eventHookIDs returns the ordered extension IDs subscribed to eventName,
// per the current snapshot.
func (m *Manager) eventHookIDs(eventName domain.EventName) []string {
	return m.Snapshot().EventHooks[string(eventName)]
}

// workerFor looks up the attached worker for an extension ID.
func (m *Manager) workerFor(extensionID string) (ExtensionWorker, bool) {
	v, ok := m.workers.Load(extensionID)
	if !ok {
		return nil, false
	}
	return v.(ExtensionWorker), true
}

// marshalPayload is a small helper shared by the dispatch methods.
func marshalPayload(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("manager: marshal event payload: %w", err)
	}
	return b, nil
}
