// Package domain holds the plain data types shared by the runtime worker,
// the extension manager, the event dispatcher, and the hostcall RPC layer:
// extension registration, capability aggregation, and event payloads.
//
// These are intentionally anemic value types (no behavior) so that every
// other package can pass them across goroutine/channel boundaries without
// worrying about shared mutable state; the owning package is always the one
// that holds the value, following the domain.Function convention.
package domain

import "encoding/json"

// ToolDef is a tool capability declared by an extension via registerTool.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// CommandSpec is a slash-command capability declared via registerCommand.
type CommandSpec struct {
	Description string `json:"description,omitempty"`
	Source      string `json:"source,omitempty"`
}

// ShortcutSpec is a keybinding capability declared via registerShortcut.
type ShortcutSpec struct {
	KeyID      string          `json:"keyId"`
	Descriptor json.RawMessage `json:"descriptor,omitempty"`
}

// FlagSpec is a CLI flag capability declared via registerFlag.
type FlagSpec struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Default     string `json:"default,omitempty"`
}

// ModelSpec is one model entry under a provider. It has no base URL field of
// its own; the URL is held only on the enclosing provider.
type ModelSpec struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
}

// ProviderSpec is a provider capability declared via registerProvider.
type ProviderSpec struct {
	Name    string      `json:"name"`
	BaseURL string      `json:"baseUrl,omitempty"`
	Models  []ModelSpec `json:"models,omitempty"`
}

// MessageRendererSpec is declared via registerMessageRenderer.
type MessageRendererSpec struct {
	CustomType string `json:"customType"`
}

// RegisterPayload is the accumulated result of everything an extension's
// init(pi) call registered. It is immutable once init returns: a finalized
// value, never handed around as a mutable builder.
type RegisterPayload struct {
	ExtensionID string `json:"extensionId"`
	APIVersion  string `json:"apiVersion"`
	// CodeHash fingerprints the evaluated source (truncated SHA-256, see
	// internal/pkg/crypto.HashString) so a reload with identical source can
	// be distinguished from a genuine upgrade in the event log.
	CodeHash         string                 `json:"codeHash,omitempty"`
	Tools            []ToolDef              `json:"tools,omitempty"`
	Commands         map[string]CommandSpec `json:"commands,omitempty"`
	Shortcuts        []ShortcutSpec         `json:"shortcuts,omitempty"`
	Flags            map[string]FlagSpec    `json:"flags,omitempty"`
	Providers        []ProviderSpec         `json:"providers,omitempty"`
	MessageRenderers []MessageRendererSpec  `json:"messageRenderers,omitempty"`
	EventHooks       []string               `json:"eventHooks,omitempty"`
}

// Clone returns a deep-enough copy of the payload so that a registration
// held by the manager's snapshot cannot be mutated by a caller that still
// holds the original (the manager never mutates a payload in place, but
// callers building payloads incrementally sometimes do).
func (p RegisterPayload) Clone() RegisterPayload {
	out := p
	out.Tools = append([]ToolDef(nil), p.Tools...)
	out.Shortcuts = append([]ShortcutSpec(nil), p.Shortcuts...)
	out.Providers = append([]ProviderSpec(nil), p.Providers...)
	out.MessageRenderers = append([]MessageRendererSpec(nil), p.MessageRenderers...)
	out.EventHooks = append([]string(nil), p.EventHooks...)
	if p.Commands != nil {
		out.Commands = make(map[string]CommandSpec, len(p.Commands))
		for k, v := range p.Commands {
			out.Commands[k] = v
		}
	}
	if p.Flags != nil {
		out.Flags = make(map[string]FlagSpec, len(p.Flags))
		for k, v := range p.Flags {
			out.Flags[k] = v
		}
	}
	return out
}

// CommandEntry is the manager's derived view of one command: which
// extension owns it (last-writer-wins on name collision).
type CommandEntry struct {
	ExtensionID string `json:"extensionId"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source,omitempty"`
}

// ShortcutEntry is the manager's derived view of one registered shortcut.
type ShortcutEntry struct {
	KeyID       string          `json:"keyId"`
	ExtensionID string          `json:"extensionId"`
	Descriptor  json.RawMessage `json:"descriptor,omitempty"`
}

// FlagEntry is the manager's derived view of one flag, tracking whether it
// came from a late dynamic registration (which overrides the payload-time
// declaration).
type FlagEntry struct {
	Spec    FlagSpec `json:"spec"`
	Dynamic bool     `json:"dynamic"`
}

// ProviderEntry is the manager's derived view of one provider and its
// models. The models are copied as declared; the provider's BaseURL is
// stored once on the entry and is not copied onto each model.
type ProviderEntry struct {
	ExtensionID string      `json:"extensionId"`
	Name        string      `json:"name"`
	BaseURL     string      `json:"baseUrl,omitempty"`
	Models      []ModelSpec `json:"models,omitempty"`
}

// CapabilitySnapshot is the manager's precomputed, read-only aggregation
// over the union of all current registrations. A fresh snapshot is built on every register() call and
// swapped in atomically — see internal/manager's copy-on-write discipline.
type CapabilitySnapshot struct {
	Commands  map[string]CommandEntry  `json:"commands"`
	Shortcuts []ShortcutEntry          `json:"shortcuts"`
	Flags     map[string]FlagEntry     `json:"flags"`
	Providers []ProviderEntry          `json:"providers"`
	// EventHooks maps event name to the ordered list of subscribed
	// extension IDs, in registration order.
	EventHooks map[string][]string `json:"eventHooks"`
}

// EmptySnapshot returns the zero-value snapshot used before any extension
// has registered.
func EmptySnapshot() CapabilitySnapshot {
	return CapabilitySnapshot{
		Commands:   map[string]CommandEntry{},
		Shortcuts:  nil,
		Flags:      map[string]FlagEntry{},
		Providers:  nil,
		EventHooks: map[string][]string{},
	}
}
