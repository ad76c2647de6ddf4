package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pi-agent/pi-exthost/internal/domain"
	"github.com/pi-agent/pi-exthost/internal/hostcall"
	"github.com/pi-agent/pi-exthost/internal/idgen"
	"github.com/pi-agent/pi-exthost/internal/logging"
	"github.com/pi-agent/pi-exthost/internal/metrics"
	"github.com/pi-agent/pi-exthost/internal/observability"
)

// dispatchToWorker pushes one envelope at one extension's worker, wrapped in
// a span, the dispatch-latency metric, and a JSONL event-log record. Every call site in
// this file that talks to an ExtensionWorker goes through here so the three
// ambient concerns stay in one place instead of being repeated per call.
func (m *Manager) dispatchToWorker(ctx context.Context, worker ExtensionWorker, env hostcall.Envelope, extID string) (hostcall.Envelope, error) {
	ctx, span := observability.StartSpan(ctx, "dispatch_event",
		observability.AttrExtensionID.String(extID),
		observability.AttrEventName.String(env.Name),
	)
	defer span.End()

	env.Correlation.TraceID = observability.GetTraceID(ctx)
	env.Correlation.SpanID = observability.GetSpanID(ctx)

	start := time.Now()
	resp, err := worker.DispatchEvent(ctx, env)
	latencyMs := time.Since(start).Milliseconds()

	metrics.Global().RecordEventDispatch(env.Name, latencyMs)

	failed := err != nil || (resp.Error != nil)
	level := "info"
	if failed {
		level = "error"
	}
	logging.Default().Log(level, env.Name, "event dispatch", env.Correlation, map[string]any{
		"extension_id": extID,
		"latency_ms":   latencyMs,
	})

	if err != nil {
		observability.SetSpanError(span, err)
	} else {
		observability.SetSpanOK(span)
	}

	return resp, err
}

// DispatchEvent fans a fire-and-forget event out to every subscribed
// extension in registration order. Handler
// errors are logged by the caller (via the returned slice) but never abort
// the fan-out — one misbehaving extension must not starve the others.
func (m *Manager) DispatchEvent(ctx context.Context, name domain.EventName, payload any, corr hostcall.Correlation) []error {
	body, err := marshalPayload(payload)
	if err != nil {
		return []error{err}
	}
	var errs []error
	for _, extID := range m.eventHookIDs(name) {
		worker, ok := m.workerFor(extID)
		if !ok {
			continue
		}
		env := hostcall.Envelope{
			Kind:        hostcall.KindEvent,
			ID:          idgen.New(),
			Name:        string(name),
			Payload:     body,
			Correlation: corr,
		}
		if _, err := m.dispatchToWorker(ctx, worker, env, extID); err != nil {
			errs = append(errs, fmt.Errorf("manager: dispatch %s to %s: %w", name, extID, err))
		}
	}
	return errs
}

// handlerResponse decodes one extension's raw event-response payload.
type handlerResponse struct {
	Response json.RawMessage
	ExtID    string
}

// collectResponses dispatches name to every subscriber in order and gathers
// each non-nil response in the same order, stopping early if stopOnFirst
// reports true for a response (used by the cancellable/tool-call variants'
// "first decisive result wins" rule).
func (m *Manager) collectResponses(
	ctx context.Context,
	name domain.EventName,
	payload any,
	corr hostcall.Correlation,
	stopOnFirst func(json.RawMessage) bool,
) ([]handlerResponse, error) {
	body, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}
	subscribers := m.eventHookIDs(name)
	var out []handlerResponse
	for _, extID := range subscribers {
		worker, ok := m.workerFor(extID)
		if !ok {
			continue
		}
		env := hostcall.Envelope{
			Kind:        hostcall.KindEvent,
			ID:          idgen.New(),
			Name:        string(name),
			Payload:     body,
			Correlation: corr,
		}
		resp, err := m.dispatchToWorker(ctx, worker, env, extID)
		if err != nil {
			// A handler error is treated as "no response" for the purposes
			// of dispatch_event_with_response — it does not abort the fan-out.
			continue
		}
		if resp.Error != nil {
			continue
		}
		if len(resp.Payload) == 0 || string(resp.Payload) == "null" {
			continue
		}
		out = append(out, handlerResponse{Response: resp.Payload, ExtID: extID})
		if stopOnFirst != nil && stopOnFirst(resp.Payload) {
			return out, nil
		}
	}
	if stopOnFirst != nil && len(subscribers) > 1 {
		logging.Op().Debug("dispatch exhausted all subscribers without a decisive result",
			"event", string(name), "subscriber_count", len(subscribers))
	}
	return out, nil
}

// DispatchEventWithResponse fans the event out in registration order and
// returns the first non-empty handler response.
func (m *Manager) DispatchEventWithResponse(ctx context.Context, name domain.EventName, payload any, corr hostcall.Correlation) (json.RawMessage, error) {
	responses, err := m.collectResponses(ctx, name, payload, corr, func(json.RawMessage) bool { return true })
	if err != nil {
		return nil, err
	}
	if len(responses) == 0 {
		return nil, nil
	}
	return responses[0].Response, nil
}

// DispatchCancellableEvent fans out a cancellable lifecycle event
// (turn_start, session_before_switch, session_before_fork) and stops at the
// first handler that reports a cancellation.
func (m *Manager) DispatchCancellableEvent(ctx context.Context, name domain.EventName, payload any, corr hostcall.Correlation) (cancelled bool, reason string, err error) {
	responses, err := m.collectResponses(ctx, name, payload, corr, isCancelResponse)
	if err != nil {
		return false, "", err
	}
	for _, r := range responses {
		if c, reason := decodeCancelResponse(r.Response); c {
			return true, reason, nil
		}
	}
	return false, "", nil
}

// decodeCancelResponse decodes a cancellable-event handler's response: a
// bare JSON false cancels (with no reason), {"block": true} cancels with an
// optional "reason", and anything else does not cancel.
func decodeCancelResponse(raw json.RawMessage) (cancelled bool, reason string) {
	var asBool bool
	if err := json.Unmarshal(raw, &asBool); err == nil {
		return !asBool, ""
	}
	var decoded struct {
		Block  bool   `json:"block"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return false, ""
	}
	return decoded.Block, decoded.Reason
}

func isCancelResponse(raw json.RawMessage) bool {
	cancelled, _ := decodeCancelResponse(raw)
	return cancelled
}

// DispatchToolCall fans out tool_call and stops at the first handler that
// blocks the call.
func (m *Manager) DispatchToolCall(ctx context.Context, payload domain.ToolCallPayload, corr hostcall.Correlation) (domain.ToolCallResult, error) {
	responses, err := m.collectResponses(ctx, domain.EventToolCall, payload, corr, isBlockResponse)
	if err != nil {
		return domain.ToolCallResult{}, err
	}
	for _, r := range responses {
		var result domain.ToolCallResult
		if err := json.Unmarshal(r.Response, &result); err != nil {
			continue
		}
		if result.Block {
			return result, nil
		}
	}
	return domain.ToolCallResult{}, nil
}

func isBlockResponse(raw json.RawMessage) bool {
	var decoded struct {
		Block bool `json:"block"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return false
	}
	return decoded.Block
}

// DispatchToolResult fans out tool_result; the LAST handler that returns an
// override wins, rather than threading each handler's accumulated rewrite
// into the next one's input.
func (m *Manager) DispatchToolResult(ctx context.Context, payload domain.ToolResultPayload, corr hostcall.Correlation) (domain.ToolResultResult, error) {
	responses, err := m.collectResponses(ctx, domain.EventToolResult, payload, corr, nil)
	if err != nil {
		return domain.ToolResultResult{}, err
	}
	var final domain.ToolResultResult
	for _, r := range responses {
		var result domain.ToolResultResult
		if err := json.Unmarshal(r.Response, &result); err != nil {
			continue
		}
		if result.Content != nil {
			final.Content = result.Content
		}
		if result.Details != nil {
			final.Details = result.Details
		}
	}
	return final, nil
}

// DispatchInput fans out the input event and interprets the response
// decision table, stopping at the first handler that produces a decisive result
// (handled/block/transform).
func (m *Manager) DispatchInput(ctx context.Context, payload domain.InputPayload, corr hostcall.Correlation) (domain.InputResult, error) {
	responses, err := m.collectResponses(ctx, domain.EventInput, payload, corr, isDecisiveInputResponse)
	if err != nil {
		return domain.InputResult{}, err
	}
	for _, r := range responses {
		result, decisive := interpretInputResponse(r.Response)
		if decisive {
			return result, nil
		}
	}
	return domain.InputResult{}, nil
}

// interpretInputResponse implements the input-event action table: a bare
// string is shorthand for {action: "transform", text: <string>}; {block:
// true} is shorthand for {action: "block"}; anything else dispatches on
// "action".
func interpretInputResponse(raw json.RawMessage) (domain.InputResult, bool) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return domain.InputResult{Text: &asString, HasText: true}, true
	}

	var generic struct {
		Action domain.InputAction `json:"action"`
		Block  *bool              `json:"block"`
		Reason string             `json:"reason"`
		Text   *string            `json:"text"`
		Images []string           `json:"images"`
	}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return domain.InputResult{}, false
	}
	if generic.Block != nil && *generic.Block {
		return domain.InputResult{Blocked: true, Reason: generic.Reason}, true
	}

	switch generic.Action {
	case domain.InputActionBlock, domain.InputActionBlocked:
		return domain.InputResult{Blocked: true, Reason: generic.Reason}, true
	case domain.InputActionHandled:
		return domain.InputResult{}, true
	case domain.InputActionTransform:
		result := domain.InputResult{}
		if generic.Text != nil {
			result.Text = generic.Text
			result.HasText = true
		}
		if generic.Images != nil {
			result.Images = generic.Images
			result.HasImages = true
		}
		return result, true
	case domain.InputActionContinue, "":
		return domain.InputResult{}, false
	default:
		return domain.InputResult{}, false
	}
}

func isDecisiveInputResponse(raw json.RawMessage) bool {
	_, decisive := interpretInputResponse(raw)
	return decisive
}

// ExecuteCommand routes a slash command to its owning extension, looking the
// owner up from the snapshot rather than walking every registration.
func (m *Manager) ExecuteCommand(ctx context.Context, name string, args json.RawMessage, corr hostcall.Correlation) (json.RawMessage, error) {
	entry, ok := m.Snapshot().Commands[name]
	if !ok {
		return nil, hostcall.NewError(hostcall.KindNotFound, "no command registered: %s", name)
	}
	worker, ok := m.workerFor(entry.ExtensionID)
	if !ok {
		return nil, hostcall.NewError(hostcall.KindNotFound, "owning extension not running: %s", entry.ExtensionID)
	}
	env := hostcall.Envelope{
		Kind:        hostcall.KindEvent,
		ID:          idgen.New(),
		Name:        "command:" + name,
		Payload:     args,
		Correlation: corr,
	}
	resp, err := m.dispatchToWorker(ctx, worker, env, entry.ExtensionID)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, hostcall.NewError(hostcall.ErrorKind(resp.Error.Code), "%s", resp.Error.Message)
	}
	return resp.Payload, nil
}
