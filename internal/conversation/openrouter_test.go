package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const toolCallResponse = `{
	"id": "cmpl-1",
	"object": "chat.completion",
	"created": 1,
	"model": "openai/gpt-4o-mini",
	"choices": [{
		"index": 0,
		"finish_reason": "tool_calls",
		"message": {
			"role": "assistant",
			"content": "",
			"tool_calls": [{
				"id": "call_1",
				"type": "function",
				"function": {"name": "get_services", "arguments": "{}"}
			}]
		}
	}]
}`

func TestCompleteSendsCatalogAndParsesToolCalls(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(toolCallResponse))
	}))
	defer srv.Close()

	client, err := NewOpenRouterClient(OpenRouterConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "openai/gpt-4o-mini",
	})
	require.NoError(t, err)

	completion, err := client.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "you are a clinic assistant"},
		{Role: RoleUser, Content: "what do you offer?"},
		{Role: RoleAssistant, Content: "let me check", ToolCalls: []ToolCall{
			{ID: "prev_1", Name: "get_doctors", Arguments: "{}"},
		}},
		{Role: RoleTool, Content: `{"doctors":[]}`, ToolCallID: "prev_1"},
	}, ToolsFor(false))
	require.NoError(t, err)

	require.Len(t, completion.ToolCalls, 1)
	assert.Equal(t, "call_1", completion.ToolCalls[0].ID)
	assert.Equal(t, "get_services", completion.ToolCalls[0].Name)
	assert.Equal(t, "{}", completion.ToolCalls[0].Arguments)

	// tool catalog serializes as function tools
	tools, ok := captured["tools"].([]any)
	require.True(t, ok)
	require.Len(t, tools, len(ToolsFor(false)))
	first := tools[0].(map[string]any)
	assert.Equal(t, "function", first["type"])
	fn := first["function"].(map[string]any)
	assert.Equal(t, "get_clinic_info", fn["name"])

	// the assistant turn carries its tool calls, the tool turn its call id
	msgs, ok := captured["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 4)
	assistant := msgs[2].(map[string]any)
	assert.Equal(t, "let me check", assistant["content"])
	calls := assistant["tool_calls"].([]any)
	require.Len(t, calls, 1)
	callFn := calls[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "get_doctors", callFn["name"])
	toolTurn := msgs[3].(map[string]any)
	assert.Equal(t, "tool", toolTurn["role"])
	assert.Equal(t, "prev_1", toolTurn["tool_call_id"])
}

func TestCompleteRejectsEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-2","object":"chat.completion","created":1,"model":"m","choices":[]}`))
	}))
	defer srv.Close()

	client, err := NewOpenRouterClient(OpenRouterConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestNewOpenRouterClientValidation(t *testing.T) {
	_, err := NewOpenRouterClient(OpenRouterConfig{Model: "m"})
	assert.Error(t, err)

	_, err = NewOpenRouterClient(OpenRouterConfig{APIKey: "k"})
	assert.Error(t, err)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("invalid request")))
	assert.True(t, IsTransient(context.DeadlineExceeded))

	var netErr net.Error = &net.DNSError{IsTimeout: true}
	assert.True(t, IsTransient(netErr))
}
