package manager

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pi-agent/pi-exthost/internal/domain"
	"github.com/pi-agent/pi-exthost/internal/hostcall"
	"github.com/stretchr/testify/require"
)

// fakeWorker lets tests script a canned response (or error) per dispatch.
type fakeWorker struct {
	responses []json.RawMessage
	errs      []error
	calls     int
}

func (w *fakeWorker) DispatchEvent(ctx context.Context, env hostcall.Envelope) (hostcall.Envelope, error) {
	i := w.calls
	w.calls++
	if i < len(w.errs) && w.errs[i] != nil {
		return hostcall.Envelope{}, w.errs[i]
	}
	var payload json.RawMessage
	if i < len(w.responses) {
		payload = w.responses[i]
	}
	return hostcall.Envelope{Kind: hostcall.KindEventResponse, ID: env.ID, Payload: payload}, nil
}

func registerExtension(t *testing.T, m *Manager, id string, hooks ...domain.EventName) *fakeWorker {
	t.Helper()
	var names []string
	for _, h := range hooks {
		names = append(names, string(h))
	}
	require.NoError(t, m.Register(domain.RegisterPayload{ExtensionID: id, EventHooks: names}))
	w := &fakeWorker{}
	m.AttachWorker(id, w)
	return w
}

func TestRegisterBuildsSnapshot(t *testing.T) {
	m := New(nil, nil)
	require.NoError(t, m.Register(domain.RegisterPayload{
		ExtensionID: "ext-a",
		Commands:    map[string]domain.CommandSpec{"hello": {Description: "says hi"}},
		Tools:       []domain.ToolDef{{Name: "tool-a"}},
	}))

	snap := m.Snapshot()
	require.Contains(t, snap.Commands, "hello")
	require.Equal(t, "ext-a", snap.Commands["hello"].ExtensionID)
	require.Len(t, m.AllTools(), 1)
}

func TestRegisterLastWriterWinsOnCommandName(t *testing.T) {
	m := New(nil, nil)
	require.NoError(t, m.Register(domain.RegisterPayload{ExtensionID: "ext-a", Commands: map[string]domain.CommandSpec{"shared": {Description: "a"}}}))
	require.NoError(t, m.Register(domain.RegisterPayload{ExtensionID: "ext-b", Commands: map[string]domain.CommandSpec{"shared": {Description: "b"}}}))

	snap := m.Snapshot()
	require.Equal(t, "ext-b", snap.Commands["shared"].ExtensionID)
}

func TestActiveToolsDefaultsToNilMeaningAll(t *testing.T) {
	m := New(nil, nil)
	require.Nil(t, m.ActiveTools())
	m.SetActiveTools([]string{"a", "b"})
	require.Equal(t, []string{"a", "b"}, m.ActiveTools())
	m.SetActiveTools(nil)
	require.Nil(t, m.ActiveTools())
}

func TestDynamicFlagOverridesPayloadFlag(t *testing.T) {
	m := New(nil, nil)
	require.NoError(t, m.Register(domain.RegisterPayload{ExtensionID: "ext-a", Flags: map[string]domain.FlagSpec{"verbose": {Default: "false"}}}))
	m.SetDynamicFlag("verbose", domain.FlagSpec{Default: "true"})
	require.NoError(t, m.Register(domain.RegisterPayload{ExtensionID: "ext-a", Flags: map[string]domain.FlagSpec{"verbose": {Default: "false"}}}))

	snap := m.Snapshot()
	require.Equal(t, "true", snap.Flags["verbose"].Spec.Default)
	require.True(t, snap.Flags["verbose"].Dynamic)
}

func TestDispatchEventFansOutInRegistrationOrder(t *testing.T) {
	m := New(nil, nil)
	w1 := registerExtension(t, m, "ext-1", domain.EventStartup)
	w2 := registerExtension(t, m, "ext-2", domain.EventStartup)

	errs := m.DispatchEvent(context.Background(), domain.EventStartup, domain.StartupPayload{Version: "1.0"}, hostcall.Correlation{})
	require.Empty(t, errs)
	require.Equal(t, 1, w1.calls)
	require.Equal(t, 1, w2.calls)
}

func TestDispatchEventWithResponseReturnsFirstNonEmpty(t *testing.T) {
	m := New(nil, nil)
	registerExtension(t, m, "ext-1", domain.EventTurnStart).responses = []json.RawMessage{nil}
	w2 := registerExtension(t, m, "ext-2", domain.EventTurnStart)
	w2.responses = []json.RawMessage{json.RawMessage(`{"value":"from-2"}`)}

	resp, err := m.DispatchEventWithResponse(context.Background(), domain.EventTurnStart, domain.TurnStartPayload{}, hostcall.Correlation{})
	require.NoError(t, err)
	require.JSONEq(t, `{"value":"from-2"}`, string(resp))
}

func TestDispatchCancellableEventStopsAtFirstCancel(t *testing.T) {
	m := New(nil, nil)
	w1 := registerExtension(t, m, "ext-1", domain.EventTurnStart)
	w1.responses = []json.RawMessage{json.RawMessage(`{"block":true,"reason":"nope"}`)}
	w2 := registerExtension(t, m, "ext-2", domain.EventTurnStart)

	cancelled, reason, err := m.DispatchCancellableEvent(context.Background(), domain.EventTurnStart, domain.TurnStartPayload{}, hostcall.Correlation{})
	require.NoError(t, err)
	require.True(t, cancelled)
	require.Equal(t, "nope", reason)
	require.Equal(t, 0, w2.calls, "fan-out stops at the first cancelling handler")
}

func TestDispatchCancellableEventStopsOnBareFalse(t *testing.T) {
	m := New(nil, nil)
	w1 := registerExtension(t, m, "ext-1", domain.EventTurnStart)
	w1.responses = []json.RawMessage{json.RawMessage(`false`)}
	w2 := registerExtension(t, m, "ext-2", domain.EventTurnStart)

	cancelled, reason, err := m.DispatchCancellableEvent(context.Background(), domain.EventTurnStart, domain.TurnStartPayload{}, hostcall.Correlation{})
	require.NoError(t, err)
	require.True(t, cancelled)
	require.Equal(t, "", reason)
	require.Equal(t, 0, w2.calls, "a bare false response cancels and stops the fan-out")
}

func TestDispatchCancellableEventIgnoresBareTrue(t *testing.T) {
	m := New(nil, nil)
	w1 := registerExtension(t, m, "ext-1", domain.EventTurnStart)
	w1.responses = []json.RawMessage{json.RawMessage(`true`)}
	w2 := registerExtension(t, m, "ext-2", domain.EventTurnStart)

	cancelled, _, err := m.DispatchCancellableEvent(context.Background(), domain.EventTurnStart, domain.TurnStartPayload{}, hostcall.Correlation{})
	require.NoError(t, err)
	require.False(t, cancelled)
	require.Equal(t, 1, w2.calls, "a bare true response does not cancel, so the fan-out continues")
}

func TestDispatchToolCallBlocks(t *testing.T) {
	m := New(nil, nil)
	w := registerExtension(t, m, "ext-1", domain.EventToolCall)
	w.responses = []json.RawMessage{json.RawMessage(`{"block":true,"reason":"denied"}`)}

	result, err := m.DispatchToolCall(context.Background(), domain.ToolCallPayload{ToolName: "shell"}, hostcall.Correlation{})
	require.NoError(t, err)
	require.True(t, result.Block)
	require.Equal(t, "denied", result.Reason)
}

func TestDispatchToolResultLastOverrideWins(t *testing.T) {
	m := New(nil, nil)
	w1 := registerExtension(t, m, "ext-1", domain.EventToolResult)
	w1.responses = []json.RawMessage{json.RawMessage(`{"content":"first"}`)}
	w2 := registerExtension(t, m, "ext-2", domain.EventToolResult)
	w2.responses = []json.RawMessage{json.RawMessage(`{"content":"second"}`)}

	result, err := m.DispatchToolResult(context.Background(), domain.ToolResultPayload{}, hostcall.Correlation{})
	require.NoError(t, err)
	require.JSONEq(t, `"second"`, string(result.Content))
}

func TestDispatchInputBareStringIsTransform(t *testing.T) {
	m := New(nil, nil)
	w := registerExtension(t, m, "ext-1", domain.EventInput)
	w.responses = []json.RawMessage{json.RawMessage(`"rewritten"`)}

	result, err := m.DispatchInput(context.Background(), domain.InputPayload{Content: "original"}, hostcall.Correlation{})
	require.NoError(t, err)
	require.True(t, result.HasText)
	require.Equal(t, "rewritten", *result.Text)
}

func TestDispatchInputBlockShorthand(t *testing.T) {
	m := New(nil, nil)
	w := registerExtension(t, m, "ext-1", domain.EventInput)
	w.responses = []json.RawMessage{json.RawMessage(`{"block":true,"reason":"spam"}`)}

	result, err := m.DispatchInput(context.Background(), domain.InputPayload{}, hostcall.Correlation{})
	require.NoError(t, err)
	require.True(t, result.Blocked)
	require.Equal(t, "spam", result.Reason)
}

func TestDispatchInputContinuesPastNonDecisive(t *testing.T) {
	m := New(nil, nil)
	registerExtension(t, m, "ext-1", domain.EventInput).responses = []json.RawMessage{json.RawMessage(`{"action":"continue"}`)}
	w2 := registerExtension(t, m, "ext-2", domain.EventInput)
	w2.responses = []json.RawMessage{json.RawMessage(`{"action":"handled"}`)}

	result, err := m.DispatchInput(context.Background(), domain.InputPayload{}, hostcall.Correlation{})
	require.NoError(t, err)
	require.False(t, result.Blocked)
	require.Equal(t, 1, w2.calls)
}

func TestExecuteCommandRoutesToOwner(t *testing.T) {
	m := New(nil, nil)
	require.NoError(t, m.Register(domain.RegisterPayload{ExtensionID: "ext-a", Commands: map[string]domain.CommandSpec{"greet": {}}}))
	w := &fakeWorker{responses: []json.RawMessage{json.RawMessage(`{"ok":true}`)}}
	m.AttachWorker("ext-a", w)

	resp, err := m.ExecuteCommand(context.Background(), "greet", nil, hostcall.Correlation{})
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(resp))
}

func TestExecuteCommandUnknownReturnsNotFound(t *testing.T) {
	m := New(nil, nil)
	_, err := m.ExecuteCommand(context.Background(), "missing", nil, hostcall.Correlation{})
	require.Error(t, err)
	var herr *hostcall.Error
	require.ErrorAs(t, err, &herr)
	require.Equal(t, hostcall.KindNotFound, herr.Kind)
}
