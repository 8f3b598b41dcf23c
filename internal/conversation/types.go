package conversation

import "context"

// Chat roles as sent to the model.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn of a conversation. Tool results carry the ToolCallID
// they answer; assistant turns that requested tools carry ToolCalls.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a function invocation requested by the model. Arguments is the
// raw JSON object string as produced by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Completion is one model response: either final text, tool calls, or both.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
}

// ToolSpec describes one callable function in the shape the model API
// expects. Parameters is a JSON schema object.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// LLMClient produces one chat completion. Implementations decide transport
// and model; retry policy lives with the caller.
type LLMClient interface {
	Complete(ctx context.Context, messages []Message, tools []ToolSpec) (Completion, error)
}
