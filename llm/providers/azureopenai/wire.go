package azureopenai

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/BaSui01/agentcrew/llm"
)

// chat/completions 请求与响应的线上格式

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	Name       string         `json:"name,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	// 流式增量中 index 标识同一个调用的多个分片
	Index    *int   `json:"index,omitempty"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		Parameters  json.RawMessage `json:"parameters,omitempty"`
	} `json:"function"`
}

type chatRequest struct {
	Messages    []wireMessage `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	ToolChoice  any           `json:"tool_choice,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	TopP        float32       `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

// contentFilter 是 Azure 内容安全策略对单个类别的判定
type contentFilter struct {
	Filtered bool   `json:"filtered"`
	Severity string `json:"severity,omitempty"`
}

type chatChoice struct {
	Index        int                      `json:"index"`
	FinishReason string                   `json:"finish_reason"`
	Message      wireMessage              `json:"message"`
	Delta        *wireMessage             `json:"delta,omitempty"`
	Filters      map[string]contentFilter `json:"content_filter_results,omitempty"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Created int64        `json:"created,omitempty"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage,omitempty"`
}

func toWireMessages(msgs []llm.Message) []wireMessage {
	out := make([]wireMessage, len(msgs))
	for i, m := range msgs {
		wm := wireMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       participantName(m.Name),
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			call := wireToolCall{ID: tc.ID, Type: "function"}
			call.Function.Name = tc.Name
			call.Function.Arguments = string(tc.Arguments)
			wm.ToolCalls = append(wm.ToolCalls, call)
		}
		out[i] = wm
	}
	return out
}

func toWireTools(schemas []llm.ToolSchema) []wireTool {
	if len(schemas) == 0 {
		return nil
	}
	out := make([]wireTool, len(schemas))
	for i, s := range schemas {
		out[i].Type = "function"
		out[i].Function.Name = s.Name
		out[i].Function.Description = s.Description
		out[i].Function.Parameters = s.Parameters
	}
	return out
}

// toolChoice 把 "auto"/"none"/"required" 原样透传，其余视为函数名
func toolChoice(choice string) any {
	switch choice {
	case "":
		return nil
	case "auto", "none", "required":
		return choice
	default:
		return map[string]any{
			"type":     "function",
			"function": map[string]string{"name": choice},
		}
	}
}

func fromWireToolCalls(calls []wireToolCall) []llm.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]llm.ToolCall, len(calls))
	for i, tc := range calls {
		out[i] = llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		}
	}
	return out
}

func (u *chatUsage) toLLM() llm.ChatUsage {
	if u == nil {
		return llm.ChatUsage{}
	}
	return llm.ChatUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

func (r *chatResponse) toLLM() *llm.ChatResponse {
	resp := &llm.ChatResponse{
		ID:       r.ID,
		Provider: providerName,
		Model:    r.Model,
		Usage:    r.Usage.toLLM(),
		Choices:  make([]llm.ChatChoice, len(r.Choices)),
	}
	if r.Created != 0 {
		resp.CreatedAt = time.Unix(r.Created, 0)
	}
	for i, c := range r.Choices {
		resp.Choices[i] = llm.ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message: llm.Message{
				Role:      llm.RoleAssistant,
				Content:   c.Message.Content,
				Name:      c.Message.Name,
				ToolCalls: fromWireToolCalls(c.Message.ToolCalls),
			},
		}
	}
	return resp
}

// filteredCategories 返回被内容安全策略拦截的类别，未拦截时为空
func (c *chatChoice) filteredCategories() []string {
	var cats []string
	for name, f := range c.Filters {
		if f.Filtered {
			cats = append(cats, name)
		}
	}
	return cats
}

// participantName 按 name 字段约束清洗：字母数字、下划线与连字符，最长 64，空格转下划线
func participantName(name string) string {
	if name == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range name {
		if b.Len() >= 64 {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	return b.String()
}
