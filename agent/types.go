package agent

import "stepwise/llm"

// StreamEvent is sent from the agent loop to the transport layer.
type StreamEvent struct {
	Event     string `json:"event"` // response_start, response_end, on_chat_model_stream, on_tool_start, on_tool_end, plan_created, step_start, step_end, anomaly, replan, error, done
	Name      string `json:"name,omitempty"`
	RunID     string `json:"run_id,omitempty"`
	Data      any    `json:"data,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Turn modes, reported on the response_start event.
const (
	ModeDirect = "direct"
	ModePlan   = "plan"
)

// User builds a user message.
func User(content string) llm.Message {
	return llm.Message{Role: "user", Content: content}
}

// AI builds an assistant message with optional tool calls.
func AI(content string, toolCalls ...llm.ToolCall) llm.Message {
	return llm.Message{Role: "assistant", Content: content, ToolCalls: toolCalls}
}

// ToolMsg builds a tool result message.
func ToolMsg(toolCallID, name, content string) llm.Message {
	return llm.Message{Role: "tool", ToolCallID: toolCallID, Name: name, Content: content}
}
