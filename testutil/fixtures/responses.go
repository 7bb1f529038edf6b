// =============================================================================
// 📦 测试数据工厂 - LLM 响应与三方对话样例
// =============================================================================
package fixtures

import (
	"encoding/json"
	"time"

	"github.com/BaSui01/agentcrew/llm"
	"github.com/BaSui01/agentcrew/types"
)

// =============================================================================
// 🎯 ChatResponse 工厂
// =============================================================================

// SimpleResponse 返回简单的文本响应
func SimpleResponse(content string) *llm.ChatResponse {
	return &llm.ChatResponse{
		ID:       "resp-001",
		Provider: "mock",
		Model:    "gpt-4o",
		Choices: []llm.ChatChoice{{
			Index:        0,
			FinishReason: "stop",
			Message:      llm.Message{Role: llm.RoleAssistant, Content: content},
		}},
		Usage:     llm.ChatUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
		CreatedAt: time.Now(),
	}
}

// ToolCallResponse 返回只包含一次工具调用的响应
func ToolCallResponse(id, name string, args any) *llm.ChatResponse {
	raw, _ := json.Marshal(args)
	resp := SimpleResponse("")
	resp.Choices[0].FinishReason = "tool_calls"
	resp.Choices[0].Message.ToolCalls = []llm.ToolCall{{ID: id, Name: name, Arguments: raw}}
	return resp
}

// EmptyResponse 返回没有 choices 的响应
func EmptyResponse() *llm.ChatResponse {
	return &llm.ChatResponse{ID: "resp-empty", Provider: "mock", Model: "gpt-4o"}
}

// =============================================================================
// 🎯 三方对话样例
// =============================================================================

// CalculatorRequest 是常用的用户需求
const CalculatorRequest = "Build a calculator app"

// AnalystPlan 是业务分析师的需求文档
const AnalystPlan = "Requirements: add, subtract, multiply, divide. Costing: 2 days."

// EngineerDelivery 是软件工程师交付的代码
const EngineerDelivery = "<html><script>function add(a,b){return a+b}</script></html>"

// ReviewApproved 是产品负责人的批准回复
const ReviewApproved = "All requirements met. %APPR%"

// ReviewRejected 是产品负责人要求工程师修改的回复
const ReviewRejected = "Division by zero is not handled, please fix the code."

// ReviewGap 是产品负责人指出需求缺口的回复
const ReviewGap = "The requirement for history is unclear, BusinessAnalyst please clarify."

// Transcript 构造 user 消息加上交替的参与者消息；pairs 为 author, content 成对出现
func Transcript(input string, pairs ...string) []types.Message {
	msgs := []types.Message{types.NewUserMessage(input)}
	for i := 0; i+1 < len(pairs); i += 2 {
		msgs = append(msgs, types.NewAssistantMessage(pairs[i], pairs[i+1]))
	}
	return msgs
}
