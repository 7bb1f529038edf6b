package api

import (
	"time"

	"github.com/BaSui01/agentcrew/types"
)

// =============================================================================
// 🤝 三方对话
// =============================================================================

// ConversationRequest 启动一次三方对话
// @Description 对话请求
type ConversationRequest struct {
	// 用户需求，作为对话的第一条用户消息
	Input string `json:"input" validate:"required,max=20000" example:"I need a calculator app"`
	// 覆盖默认的最大轮数
	MaxIterations int `json:"max_iterations,omitempty" validate:"omitempty,min=1,max=100" example:"20"`
}

// ConversationResponse 是一次对话的结果
// @Description 对话结果
type ConversationResponse struct {
	ID         string          `json:"id"`
	Reason     string          `json:"reason" example:"approved"`
	Approved   bool            `json:"approved"`
	Iterations int             `json:"iterations"`
	Tokens     int             `json:"tokens,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	EndedAt    time.Time       `json:"ended_at"`
	Transcript []types.Message `json:"transcript,omitempty"`
}

// RunSummary 是已保存运行的列表项
type RunSummary struct {
	ID         string    `json:"id"`
	Input      string    `json:"input"`
	Reason     string    `json:"reason"`
	Iterations int       `json:"iterations"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// 流式帧类型
const (
	FrameMessage = "message"
	FrameResult  = "result"
	FrameError   = "error"
)

// StreamFrame 是 websocket 上的一帧。
// 每条参与者消息一帧，最后一帧携带结束原因。
type StreamFrame struct {
	Type      string                `json:"type"`
	Iteration int                   `json:"iteration,omitempty"`
	Message   *types.Message        `json:"message,omitempty"`
	Result    *ConversationResponse `json:"result,omitempty"`
	Error     *ErrorBody            `json:"error,omitempty"`
}

// ErrorBody 是流中的错误信息
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// =============================================================================
// 💬 函数调用聊天
// =============================================================================

// ChatRequest 向会话发送一条消息；SessionID 为空时创建新会话
// @Description 聊天请求
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty" validate:"omitempty,max=128" example:"3f0c..."`
	Message   string `json:"message" validate:"required,max=8000" example:"What's the weather in Paris tomorrow?"`
}

// ToolCall 描述一次工具调用
type ToolCall struct {
	Name     string `json:"name"`
	Output   string `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

// ChatResponse 是聊天回复
// @Description 聊天响应
type ChatResponse struct {
	SessionID string     `json:"session_id"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Tokens    int        `json:"tokens"`
}
