package domain

import "encoding/json"

// EventName enumerates the typed lifecycle events extensions subscribe to.
// Serialized as snake_case.
type EventName string

const (
	EventStartup             EventName = "startup"
	EventAgentStart          EventName = "agent_start"
	EventAgentEnd            EventName = "agent_end"
	EventTurnStart           EventName = "turn_start"
	EventTurnEnd             EventName = "turn_end"
	EventToolCall            EventName = "tool_call"
	EventToolResult          EventName = "tool_result"
	EventSessionBeforeSwitch EventName = "session_before_switch"
	EventSessionBeforeFork   EventName = "session_before_fork"
	EventInput               EventName = "input"
)

// StartupPayload backs the startup event.
type StartupPayload struct {
	Version     string `json:"version"`
	SessionFile string `json:"sessionFile,omitempty"`
}

// AgentStartPayload backs the agent_start event.
type AgentStartPayload struct {
	SessionID string `json:"sessionId"`
}

// AgentEndPayload backs the agent_end event.
type AgentEndPayload struct {
	SessionID string          `json:"sessionId"`
	Messages  json.RawMessage `json:"messages,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// TurnStartPayload backs the turn_start event (cancellable).
type TurnStartPayload struct {
	SessionID string `json:"sessionId"`
	TurnIndex int    `json:"turnIndex"`
}

// TurnEndPayload backs the turn_end event.
type TurnEndPayload struct {
	SessionID   string          `json:"sessionId"`
	TurnIndex   int             `json:"turnIndex"`
	Message     json.RawMessage `json:"message,omitempty"`
	ToolResults json.RawMessage `json:"toolResults,omitempty"`
}

// ToolCallPayload backs the tool_call event (blockable).
type ToolCallPayload struct {
	ToolName   string          `json:"toolName"`
	ToolCallID string          `json:"toolCallId"`
	Input      json.RawMessage `json:"input,omitempty"`
}

// ToolResultPayload backs the tool_result event (may rewrite result).
type ToolResultPayload struct {
	ToolName   string          `json:"toolName"`
	ToolCallID string          `json:"toolCallId"`
	Input      json.RawMessage `json:"input,omitempty"`
	Content    json.RawMessage `json:"content,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	IsError    bool            `json:"isError"`
}

// SessionBeforeSwitchPayload backs session_before_switch (cancellable).
type SessionBeforeSwitchPayload struct {
	CurrentSession string `json:"currentSession,omitempty"`
	TargetSession  string `json:"targetSession"`
}

// SessionBeforeForkPayload backs session_before_fork (cancellable).
type SessionBeforeForkPayload struct {
	CurrentSession string `json:"currentSession,omitempty"`
	ForkEntryID    string `json:"forkEntryId"`
}

// InputPayload backs the input event (may transform or block).
type InputPayload struct {
	Content     string   `json:"content"`
	Attachments []string `json:"attachments,omitempty"`
}

// ToolCallResult is the manager's interpretation of a tool_call handler's
// return value ( dispatch_tool_call). Block defaults to false when the
// field is absent from the handler's raw response.
type ToolCallResult struct {
	Block  bool   `json:"block"`
	Reason string `json:"reason,omitempty"`
}

// ToolResultResult is the manager's interpretation of a tool_result
// handler's return value ( dispatch_tool_result); present fields
// override the original tool output.
type ToolResultResult struct {
	Content json.RawMessage `json:"content,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

// InputAction enumerates the input-event response actions.
type InputAction string

const (
	InputActionHandled   InputAction = "handled"
	InputActionBlock     InputAction = "block"
	InputActionBlocked   InputAction = "blocked"
	InputActionTransform InputAction = "transform"
	InputActionContinue  InputAction = "continue"
)

// InputResult is the normalized outcome of interpreting an input-event
// handler's response, after running the response decision table.
type InputResult struct {
	Blocked bool
	Reason  string
	// Text/Images are only meaningful when Blocked is false; absent
	// overrides leave the caller's original content untouched.
	Text       *string
	Images     []string
	HasText    bool
	HasImages  bool
}
