package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcrew/api"
	"github.com/BaSui01/agentcrew/chat"
)

// =============================================================================
// 💬 函数调用聊天 Handler
// =============================================================================

// ChatService 是 chat.Manager 面向 HTTP 的子集
type ChatService interface {
	Send(ctx context.Context, sessionID, input string) (*chat.Reply, error)
	Delete(ctx context.Context, sessionID string) error
}

// ChatHandler 聊天处理器
type ChatHandler struct {
	service ChatService
	logger  *zap.Logger
}

// NewChatHandler 创建聊天处理器
func NewChatHandler(service ChatService, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		service: service,
		logger:  logger.With(zap.String("component", "chat_handler")),
	}
}

// HandleSend 向会话发送一条消息
// @Summary 函数调用聊天
// @Tags 聊天
// @Accept json
// @Produce json
// @Param request body api.ChatRequest true "聊天请求"
// @Success 200 {object} api.ChatResponse
// @Failure 400 {object} Response
// @Failure 502 {object} Response
// @Router /api/v1/chat [post]
func (h *ChatHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req api.ChatRequest
	if !DecodeRequest(w, r, &req, h.logger) {
		return
	}

	reply, err := h.service.Send(r.Context(), req.SessionID, req.Message)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	resp := api.ChatResponse{
		SessionID: reply.SessionID,
		Content:   reply.Content,
		Tokens:    reply.Tokens,
	}
	for _, tc := range reply.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, api.ToolCall{
			Name:     tc.Name,
			Output:   tc.Output,
			Error:    tc.Error,
			Duration: tc.Duration.String(),
		})
	}
	h.logger.Info("chat reply",
		zap.String("session_id", reply.SessionID),
		zap.Int("tool_calls", len(resp.ToolCalls)),
		zap.Int("tokens", reply.Tokens))
	WriteSuccess(w, r, resp)
}

// HandleDelete 删除会话及其历史
// @Summary 删除聊天会话
// @Tags 聊天
// @Param session path string true "会话 ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /api/v1/chat/{session} [delete]
func (h *ChatHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session")
	if err := h.service.Delete(r.Context(), id); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, map[string]string{"session_id": id})
}
