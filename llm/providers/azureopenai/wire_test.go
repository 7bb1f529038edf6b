package azureopenai

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcrew/llm"
)

func TestToWireMessages(t *testing.T) {
	out := toWireMessages([]llm.Message{
		{Role: llm.RoleAssistant, Name: "Business Analyst!", Content: "hi"},
		{Role: llm.RoleAssistant, Name: "ProductOwner", ToolCalls: []llm.ToolCall{
			{ID: "c1", Name: "get_year", Arguments: []byte(`{}`)},
		}},
		{Role: llm.RoleTool, ToolCallID: "c1", Content: "2024"},
	})
	require.Len(t, out, 3)
	assert.Equal(t, "Business_Analyst", out[0].Name)
	assert.Equal(t, "ProductOwner", out[1].Name)
	assert.Equal(t, "function", out[1].ToolCalls[0].Type)
	assert.Equal(t, "{}", out[1].ToolCalls[0].Function.Arguments)
	assert.Equal(t, "c1", out[2].ToolCallID)
}

func TestToWireTools(t *testing.T) {
	assert.Nil(t, toWireTools(nil))
	out := toWireTools([]llm.ToolSchema{{
		Name:        "get_location",
		Description: "geocode",
		Parameters:  []byte(`{"type":"object"}`),
	}})
	require.Len(t, out, 1)
	assert.Equal(t, "get_location", out[0].Function.Name)
	assert.JSONEq(t, `{"type":"object"}`, string(out[0].Function.Parameters))
}

func TestToolChoice(t *testing.T) {
	assert.Nil(t, toolChoice(""))
	assert.Equal(t, "auto", toolChoice("auto"))
	named, err := json.Marshal(toolChoice("current_time"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"function","function":{"name":"current_time"}}`, string(named))
}

func TestChatResponse_ToLLM(t *testing.T) {
	var wire chatResponse
	require.NoError(t, json.Unmarshal([]byte(`{
		"id":"r1","model":"gpt-4o","created":1700000000,
		"choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant",
			"tool_calls":[{"id":"c1","type":"function","function":{"name":"get_year","arguments":"{\"date\":\"2024-01-02\"}"}}]}}],
		"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`), &wire))

	resp := wire.toLLM()
	assert.Equal(t, providerName, resp.Provider)
	assert.Equal(t, 5, resp.Usage.TotalTokens)
	assert.Equal(t, int64(1700000000), resp.CreatedAt.Unix())
	msg, ok := resp.FirstMessage()
	require.True(t, ok)
	assert.Equal(t, "get_year", msg.ToolCalls[0].Name)
	assert.JSONEq(t, `{"date":"2024-01-02"}`, string(msg.ToolCalls[0].Arguments))
}

func TestChatChoice_FilteredCategories(t *testing.T) {
	c := chatChoice{Filters: map[string]contentFilter{
		"hate":     {Filtered: false, Severity: "safe"},
		"violence": {Filtered: true, Severity: "high"},
	}}
	assert.Equal(t, []string{"violence"}, c.filteredCategories())
}

func TestParticipantName(t *testing.T) {
	assert.Equal(t, "", participantName(""))
	assert.Equal(t, "Software_Engineer", participantName("Software Engineer"))
	assert.Len(t, participantName(strings.Repeat("ab", 40)), 64)
}
