package manager

import (
	"encoding/json"

	"github.com/pi-agent/pi-exthost/internal/domain"
	"github.com/pi-agent/pi-exthost/internal/hostcall"
	"github.com/pi-agent/pi-exthost/internal/logging"
	"github.com/pi-agent/pi-exthost/internal/metrics"
)

// HandleOp executes one synchronous hostcall operation by name (
// "Hostcall operation set"). This is the host-side table an extension's
// events.*/session.* calls bottom out in; the runtime binding layer is the
// only caller. Unknown operation names return a not_found error rather than
// a validation error, matching 's distinction between "malformed request"
// and "no such capability".
//
// HandleOp runs synchronously on the extension's isolate thread (the
// runtime.OpHandler bridge has no context to thread a span through), so it
// records the hostcall metric and JSONL log line directly rather than going
// through dispatchToWorker's span wrapper.
func (m *Manager) HandleOp(name string, payload json.RawMessage) (resp json.RawMessage, herr *hostcall.Error) {
	defer func() {
		metrics.Global().RecordHostcall(name, herr != nil)
		level := "info"
		if herr != nil {
			level = "error"
		}
		logging.Default().Log(level, name, "hostcall", hostcall.Correlation{}, nil)
	}()

	switch name {
	case "events.sendMessage":
		return m.opSendMessage(payload)
	case "events.sendUserMessage":
		return m.opSendUserMessage(payload)
	case "events.getActiveTools":
		return marshalOK(m.ActiveTools())
	case "events.setActiveTools":
		return m.opSetActiveTools(payload)
	case "events.getAllTools":
		return marshalOK(m.AllTools())
	case "events.getModel":
		return marshalOK(m.Model())
	case "events.setModel":
		return m.opSetModel(payload)
	case "events.getThinkingLevel":
		return marshalOK(m.ThinkingLevel())
	case "events.setThinkingLevel":
		return m.opSetThinkingLevel(payload)
	case "session.getName":
		return m.opSessionGetName()
	case "session.setName":
		return m.opSessionSetName(payload)
	case "session.getEntries":
		return m.opSessionGetEntries()
	case "session.appendEntry":
		return m.opSessionAppendEntry(payload)
	case "session.appendMessage":
		return m.opSessionAppendMessage(payload)
	case "session.setLabel":
		return m.opSessionSetLabel(payload)
	default:
		return nil, hostcall.NewError(hostcall.KindNotFound, "unknown hostcall operation: %s", name)
	}
}

func marshalOK(v any) (json.RawMessage, *hostcall.Error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, hostcall.NewError(hostcall.KindRuntimeError, "marshal response: %v", err)
	}
	return b, nil
}

func unmarshalArgs(payload json.RawMessage, v any) *hostcall.Error {
	if len(payload) == 0 {
		return hostcall.NewError(hostcall.KindValidation, "missing arguments")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return hostcall.NewError(hostcall.KindValidation, "invalid arguments: %v", err)
	}
	return nil
}

func (m *Manager) opSendMessage(payload json.RawMessage) (json.RawMessage, *hostcall.Error) {
	if m.hostActions == nil {
		return nil, hostcall.NewError(hostcall.KindCapabilityDenied, "host actions not available")
	}
	var args struct {
		Message     domain.InjectedMessage `json:"message"`
		TriggerTurn bool                   `json:"triggerTurn"`
	}
	if err := unmarshalArgs(payload, &args); err != nil {
		return nil, err
	}
	if args.Message.CustomType == "" {
		return nil, hostcall.NewError(hostcall.KindValidation, "message.customType is required")
	}
	if err := m.hostActions.SendMessage(args.Message, args.TriggerTurn); err != nil {
		return nil, hostcall.NewError(hostcall.KindRuntimeError, "%v", err)
	}
	return marshalOK(struct{}{})
}

func (m *Manager) opSendUserMessage(payload json.RawMessage) (json.RawMessage, *hostcall.Error) {
	if m.hostActions == nil {
		return nil, hostcall.NewError(hostcall.KindCapabilityDenied, "host actions not available")
	}
	var args struct {
		Text      string `json:"text"`
		DeliverAs string `json:"deliverAs"`
	}
	if err := unmarshalArgs(payload, &args); err != nil {
		return nil, err
	}
	if err := m.hostActions.SendUserMessage(args.Text, args.DeliverAs); err != nil {
		return nil, hostcall.NewError(hostcall.KindRuntimeError, "%v", err)
	}
	return marshalOK(struct{}{})
}

func (m *Manager) opSetActiveTools(payload json.RawMessage) (json.RawMessage, *hostcall.Error) {
	var names []string
	if err := unmarshalArgs(payload, &names); err != nil {
		return nil, err
	}
	m.SetActiveTools(names)
	return marshalOK(struct{}{})
}

func (m *Manager) opSetModel(payload json.RawMessage) (json.RawMessage, *hostcall.Error) {
	var model string
	if err := unmarshalArgs(payload, &model); err != nil {
		return nil, err
	}
	m.SetModel(model)
	return marshalOK(struct{}{})
}

func (m *Manager) opSetThinkingLevel(payload json.RawMessage) (json.RawMessage, *hostcall.Error) {
	var level string
	if err := unmarshalArgs(payload, &level); err != nil {
		return nil, err
	}
	m.SetThinkingLevel(level)
	return marshalOK(struct{}{})
}

func (m *Manager) opSessionGetName() (json.RawMessage, *hostcall.Error) {
	if m.session == nil {
		return nil, hostcall.NewError(hostcall.KindCapabilityDenied, "session not available")
	}
	return marshalOK(m.session.GetName())
}

func (m *Manager) opSessionSetName(payload json.RawMessage) (json.RawMessage, *hostcall.Error) {
	if m.session == nil {
		return nil, hostcall.NewError(hostcall.KindCapabilityDenied, "session not available")
	}
	var name string
	if err := unmarshalArgs(payload, &name); err != nil {
		return nil, err
	}
	if err := m.session.SetName(name); err != nil {
		return nil, hostcall.NewError(hostcall.KindRuntimeError, "%v", err)
	}
	return marshalOK(struct{}{})
}

func (m *Manager) opSessionGetEntries() (json.RawMessage, *hostcall.Error) {
	if m.session == nil {
		return nil, hostcall.NewError(hostcall.KindCapabilityDenied, "session not available")
	}
	return marshalOK(m.session.GetEntries())
}

func (m *Manager) opSessionAppendEntry(payload json.RawMessage) (json.RawMessage, *hostcall.Error) {
	if m.session == nil {
		return nil, hostcall.NewError(hostcall.KindCapabilityDenied, "session not available")
	}
	var args struct {
		CustomType string          `json:"customType"`
		Data       json.RawMessage `json:"data"`
	}
	if err := unmarshalArgs(payload, &args); err != nil {
		return nil, err
	}
	entryID, err := m.session.AppendEntry(args.CustomType, args.Data)
	if err != nil {
		return nil, hostcall.NewError(hostcall.KindRuntimeError, "%v", err)
	}
	return marshalOK(struct {
		EntryID string `json:"entryId"`
	}{EntryID: entryID})
}

func (m *Manager) opSessionAppendMessage(payload json.RawMessage) (json.RawMessage, *hostcall.Error) {
	if m.session == nil {
		return nil, hostcall.NewError(hostcall.KindCapabilityDenied, "session not available")
	}
	var message json.RawMessage
	if err := unmarshalArgs(payload, &message); err != nil {
		return nil, err
	}
	entryID, err := m.session.AppendMessage(message)
	if err != nil {
		return nil, hostcall.NewError(hostcall.KindRuntimeError, "%v", err)
	}
	return marshalOK(struct {
		EntryID string `json:"entryId"`
	}{EntryID: entryID})
}

func (m *Manager) opSessionSetLabel(payload json.RawMessage) (json.RawMessage, *hostcall.Error) {
	if m.session == nil {
		return nil, hostcall.NewError(hostcall.KindCapabilityDenied, "session not available")
	}
	var args struct {
		TargetID string  `json:"targetId"`
		Label    *string `json:"label"`
	}
	if err := unmarshalArgs(payload, &args); err != nil {
		return nil, err
	}
	if err := m.session.SetLabel(args.TargetID, args.Label); err != nil {
		return nil, hostcall.NewError(hostcall.KindRuntimeError, "%v", err)
	}
	return marshalOK(struct{}{})
}
