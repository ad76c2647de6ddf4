// Package hostcall implements the bidirectional request/response protocol
// between the JS runtime worker and the host: the envelope shape, the
// correlation-ID discipline, the error taxonomy, and a bounded,
// in-process transport standing in for a length-prefixed
// vsock/TCP framing (internal/wasm/manager.go's Client.sendLocked /
// receiveLocked, internal/pkg/vsockpb/codec.go's Codec.Send / Receive) —
// the runtime worker here is an in-process goroutine rather than a separate
// OS process, so a Go channel replaces the socket, but the envelope shape
// and the pending-request/timeout discipline are kept verbatim.
package hostcall

import "encoding/json"

// Kind discriminates the four envelope shapes in flight on the protocol.
type Kind string

const (
	KindRequest       Kind = "request"
	KindResponse      Kind = "response"
	KindEvent         Kind = "event"
	KindEventResponse Kind = "event_response"
)

// Correlation carries the opaque tracing/dedup IDs attached to every
// envelope and log record. SessionID/RunID/ArtifactID/TraceID/SpanID are
// "dynamic" in the conformance normalizer's sense (replaced with
// placeholders when diffing traces); the rest are "semantic" and preserved
// verbatim.
type Correlation struct {
	ExtensionID    string `json:"extension_id"`
	ScenarioID     string `json:"scenario_id,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	RunID          string `json:"run_id,omitempty"`
	ArtifactID     string `json:"artifact_id,omitempty"`
	TraceID        string `json:"trace_id,omitempty"`
	SpanID         string `json:"span_id,omitempty"`
	ToolCallID     string `json:"tool_call_id,omitempty"`
	SlashCommandID string `json:"slash_command_id,omitempty"`
	EventID        string `json:"event_id,omitempty"`
	HostCallID     string `json:"host_call_id,omitempty"`
	RPCID          string `json:"rpc_id,omitempty"`
}

// ErrorDetail is the envelope's optional error field.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope is the wire shape carried over the hostcall protocol.
type Envelope struct {
	Kind        Kind            `json:"kind"`
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Error       *ErrorDetail    `json:"error,omitempty"`
	Correlation Correlation     `json:"correlation"`
}
