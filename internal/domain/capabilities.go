package domain

import "encoding/json"

// SessionEntry is one row the session.getEntries hostcall returns — a
// lightweight projection over the session store's append-log frames.
type SessionEntry struct {
	EntryID      string          `json:"entryId"`
	ParentEntryID string         `json:"parentEntryId,omitempty"`
	EntryType    string          `json:"entryType"`
	Timestamp    string          `json:"timestamp"`
	Data         json.RawMessage `json:"data,omitempty"`
	Label        string          `json:"label,omitempty"`
}

// SessionHandle is the capability interface the manager consults for
// session-state hostcalls. It is a small, object-safe abstraction: the
// manager borrows this capability, it does not own the session.
type SessionHandle interface {
	GetName() string
	SetName(name string) error
	GetEntries() []SessionEntry
	AppendEntry(customType string, data json.RawMessage) (entryID string, err error)
	AppendMessage(message json.RawMessage) (entryID string, err error)
	SetLabel(targetID string, label *string) error
}

// HostActionsHandle is the capability interface used when extensions
// request message injection or user-message synthesis. Calls are fire-and-forget from the manager's perspective.
type HostActionsHandle interface {
	SendMessage(message InjectedMessage, triggerTurn bool) error
	SendUserMessage(text string, deliverAs string) error
}

// InjectedMessage is the payload of events.sendMessage.
type InjectedMessage struct {
	CustomType string          `json:"customType"`
	Content    json.RawMessage `json:"content,omitempty"`
	Display    string          `json:"display,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
}
