package sessionstore

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pi-agent/pi-exthost/internal/domain"
	"github.com/pi-agent/pi-exthost/internal/idgen"
)

// logRecord is the envelope every Handle-driven Append writes as a Frame's
// payload; Kind discriminates which session_handle mutation it records, the
// way checkpoint.State tags a single struct with a Step field instead of
// using separate log record types per step.
type logRecord struct {
	Kind      string          `json:"kind"` // "name", "entry", "message", "label"
	Timestamp string          `json:"timestamp,omitempty"`
	Name      string          `json:"name,omitempty"`
	EntryType string          `json:"entryType,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	TargetID  string          `json:"targetId,omitempty"`
	Label     *string         `json:"label,omitempty"`
}

// Handle adapts a Store into a domain.SessionHandle: every mutation is
// appended to the log first, then folded into an in-memory projection
// (current name, ordered entries) that GetName/GetEntries read without
// re-scanning the log. OpenHandle rebuilds that projection once at startup by
// replaying every frame Store.ReadAll returns.
type Handle struct {
	mu      sync.Mutex
	store   *Store
	name    string
	entries []domain.SessionEntry
	index   map[string]int // entryID -> position in entries
}

// OpenHandle opens (or creates) the session log at dir and replays it into a
// ready-to-use Handle.
func OpenHandle(dir string, maxSegmentBytes int64) (*Handle, error) {
	store, err := Open(dir, maxSegmentBytes)
	if err != nil {
		return nil, err
	}
	frames, err := store.ReadAll()
	if err != nil {
		store.Close()
		return nil, err
	}
	h := &Handle{store: store, index: make(map[string]int)}
	for _, f := range frames {
		h.replay(f)
	}
	return h, nil
}

func (h *Handle) replay(f Frame) {
	var rec logRecord
	if err := json.Unmarshal(f.Payload, &rec); err != nil {
		return
	}
	switch rec.Kind {
	case "name":
		h.name = rec.Name
	case "entry", "message":
		entryType := rec.EntryType
		if rec.Kind == "message" {
			entryType = "message"
		}
		h.index[f.EntryID] = len(h.entries)
		h.entries = append(h.entries, domain.SessionEntry{
			EntryID:   f.EntryID,
			EntryType: entryType,
			Timestamp: rec.Timestamp,
			Data:      rec.Data,
		})
	case "label":
		if idx, ok := h.index[rec.TargetID]; ok {
			if rec.Label != nil {
				h.entries[idx].Label = *rec.Label
			} else {
				h.entries[idx].Label = ""
			}
		}
	}
}

func (h *Handle) append(rec logRecord, entryID string) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = h.store.Append(entryID, body)
	return err
}

// GetName returns the session's current display name, empty until SetName
// has been called at least once.
func (h *Handle) GetName() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.name
}

// SetName renames the session, durably.
func (h *Handle) SetName(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.append(logRecord{Kind: "name", Name: name}, idgen.New()); err != nil {
		return err
	}
	h.name = name
	return nil
}

// GetEntries returns a snapshot of the session's entries in append order.
// The returned slice is a copy; callers must not mutate it.
func (h *Handle) GetEntries() []domain.SessionEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.SessionEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// AppendEntry records a custom-typed entry and returns its ID.
func (h *Handle) AppendEntry(customType string, data json.RawMessage) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := idgen.New()
	ts := time.Now().UTC().Format(time.RFC3339Nano)
	if err := h.append(logRecord{Kind: "entry", EntryType: customType, Data: data, Timestamp: ts}, id); err != nil {
		return "", err
	}
	h.index[id] = len(h.entries)
	h.entries = append(h.entries, domain.SessionEntry{EntryID: id, EntryType: customType, Timestamp: ts, Data: data})
	return id, nil
}

// AppendMessage records a conversation message entry and returns its ID.
func (h *Handle) AppendMessage(message json.RawMessage) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := idgen.New()
	ts := time.Now().UTC().Format(time.RFC3339Nano)
	if err := h.append(logRecord{Kind: "message", Data: message, Timestamp: ts}, id); err != nil {
		return "", err
	}
	h.index[id] = len(h.entries)
	h.entries = append(h.entries, domain.SessionEntry{EntryID: id, EntryType: "message", Timestamp: ts, Data: message})
	return id, nil
}

// SetLabel sets or clears (label == nil) targetID's display label.
func (h *Handle) SetLabel(targetID string, label *string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.append(logRecord{Kind: "label", TargetID: targetID, Label: label}, idgen.New()); err != nil {
		return err
	}
	if idx, ok := h.index[targetID]; ok {
		if label != nil {
			h.entries[idx].Label = *label
		} else {
			h.entries[idx].Label = ""
		}
	}
	return nil
}

// Close releases the underlying Store's file handles.
func (h *Handle) Close() error {
	return h.store.Close()
}

var _ domain.SessionHandle = (*Handle)(nil)
