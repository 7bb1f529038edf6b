package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcrew/agent/conversation"
	"github.com/BaSui01/agentcrew/agent/persistence"
	"github.com/BaSui01/agentcrew/api"
	"github.com/BaSui01/agentcrew/types"
)

// =============================================================================
// 🤝 三方对话 Handler
// =============================================================================

// Runner 运行一次对话；conversation.Team 实现了该接口
type Runner interface {
	Run(ctx context.Context, input string, extra ...conversation.Option) (*conversation.Result, error)
}

// ConversationHandler 对话处理器
type ConversationHandler struct {
	runner         Runner
	store          persistence.RunStore
	originPatterns []string
	logger         *zap.Logger
}

// NewConversationHandler 创建对话处理器。store 为 nil 时不保存运行结果。
func NewConversationHandler(runner Runner, store persistence.RunStore, logger *zap.Logger) *ConversationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationHandler{
		runner: runner,
		store:  store,
		logger: logger.With(zap.String("component", "conversation_handler")),
	}
}

// WithOriginPatterns 设置 websocket 允许的跨域来源
func (h *ConversationHandler) WithOriginPatterns(patterns ...string) *ConversationHandler {
	h.originPatterns = patterns
	return h
}

// HandleRun 同步运行一次对话
// @Summary 运行三方对话
// @Tags 对话
// @Accept json
// @Produce json
// @Param request body api.ConversationRequest true "对话请求"
// @Success 200 {object} api.ConversationResponse
// @Failure 400 {object} Response
// @Failure 502 {object} Response
// @Router /api/v1/conversations [post]
func (h *ConversationHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req api.ConversationRequest
	if !DecodeRequest(w, r, &req, h.logger) {
		return
	}

	res, err := h.runner.Run(r.Context(), req.Input, conversation.WithMaxIterations(req.MaxIterations))
	h.save(r.Context(), res)
	if err != nil {
		WriteError(w, r, runError(err), h.logger)
		return
	}
	WriteSuccess(w, r, toResponse(res, true))
}

// HandleList 列出已保存的运行
// @Summary 列出对话
// @Tags 对话
// @Produce json
// @Param limit query int false "数量上限"
// @Param offset query int false "偏移"
// @Param reason query string false "结束原因"
// @Success 200 {array} api.RunSummary
// @Router /api/v1/conversations [get]
func (h *ConversationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		WriteError(w, r, types.NewError(types.ErrServiceUnavailable, "run storage is not configured"), h.logger)
		return
	}
	q := r.URL.Query()
	opts := persistence.ListOptions{Reason: q.Get("reason")}
	var err error
	if opts.Limit, err = intParam(q.Get("limit")); err != nil {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "limit must be an integer").WithCause(err), h.logger)
		return
	}
	if opts.Offset, err = intParam(q.Get("offset")); err != nil {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "offset must be an integer").WithCause(err), h.logger)
		return
	}

	runs, err := h.store.ListRuns(r.Context(), opts)
	if err != nil {
		WriteError(w, r, types.WrapError(err, types.ErrInternalError, "list runs"), h.logger)
		return
	}
	out := make([]api.RunSummary, len(runs))
	for i, run := range runs {
		out[i] = api.RunSummary{
			ID:         run.ID,
			Input:      run.Input,
			Reason:     run.Reason,
			Iterations: run.Iterations,
			StartedAt:  run.StartedAt,
			EndedAt:    run.EndedAt,
		}
	}
	WriteSuccess(w, r, out)
}

// HandleGet 返回一次已保存的运行
// @Summary 查询对话
// @Tags 对话
// @Produce json
// @Param id path string true "运行 ID"
// @Success 200 {object} api.ConversationResponse
// @Failure 404 {object} Response
// @Router /api/v1/conversations/{id} [get]
func (h *ConversationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		WriteError(w, r, types.NewError(types.ErrServiceUnavailable, "run storage is not configured"), h.logger)
		return
	}
	id := r.PathValue("id")
	run, err := h.store.GetRun(r.Context(), id)
	if errors.Is(err, persistence.ErrNotFound) {
		WriteError(w, r, types.NewError(types.ErrNotFound, "conversation not found: "+id), h.logger)
		return
	}
	if err != nil {
		WriteError(w, r, types.WrapError(err, types.ErrInternalError, "load run"), h.logger)
		return
	}
	WriteSuccess(w, r, api.ConversationResponse{
		ID:         run.ID,
		Reason:     run.Reason,
		Approved:   run.Reason == string(conversation.ReasonApproved),
		Iterations: run.Iterations,
		Tokens:     run.Tokens,
		Error:      run.Error,
		StartedAt:  run.StartedAt,
		EndedAt:    run.EndedAt,
		Transcript: run.Transcript,
	})
}

// HandleStream 通过 websocket 运行对话。
// 客户端先发送一个 ConversationRequest 帧，服务端每条消息推送一帧，
// 最后推送 result 或 error 帧并正常关闭连接。
// @Summary 流式对话（websocket）
// @Tags 对话
// @Router /api/v1/conversations/stream [get]
func (h *ConversationHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var req api.ConversationRequest
	if err := wsjson.Read(ctx, conn, &req); err != nil {
		h.writeFrameError(ctx, conn, types.NewError(types.ErrInvalidRequest, "invalid JSON frame").WithCause(err))
		conn.Close(websocket.StatusUnsupportedData, "invalid request")
		return
	}
	if err := validate.Struct(&req); err != nil {
		h.writeFrameError(ctx, conn, types.NewError(types.ErrInvalidRequest, validationMessage(err)))
		conn.Close(websocket.StatusPolicyViolation, "invalid request")
		return
	}

	// 客户端断开时停止对话
	ctx = conn.CloseRead(ctx)

	observer := conversation.WithObserver(func(msg types.Message, iteration int) {
		m := msg
		if err := wsjson.Write(ctx, conn, api.StreamFrame{Type: api.FrameMessage, Iteration: iteration, Message: &m}); err != nil {
			h.logger.Debug("stream write failed", zap.Error(err))
			cancel()
		}
	})
	res, err := h.runner.Run(ctx, req.Input, observer, conversation.WithMaxIterations(req.MaxIterations))
	h.save(context.WithoutCancel(ctx), res)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		h.writeFrameError(ctx, conn, runError(err))
		conn.Close(websocket.StatusInternalError, "conversation failed")
		return
	}

	if err := wsjson.Write(ctx, conn, api.StreamFrame{Type: api.FrameResult, Result: toResponse(res, false)}); err != nil {
		return
	}
	conn.Close(websocket.StatusNormalClosure, string(res.Reason))
}

func (h *ConversationHandler) writeFrameError(ctx context.Context, conn *websocket.Conn, err *types.Error) {
	frame := api.StreamFrame{Type: api.FrameError, Error: &api.ErrorBody{Code: string(err.Code), Message: err.Message}}
	if werr := wsjson.Write(ctx, conn, frame); werr != nil {
		h.logger.Debug("stream error frame not delivered", zap.Error(werr))
	}
}

func (h *ConversationHandler) save(ctx context.Context, res *conversation.Result) {
	if h.store == nil || res == nil || res.ID == "" || res.Iterations == 0 {
		return
	}
	if err := h.store.SaveRun(ctx, persistence.RecordFromResult(res)); err != nil {
		h.logger.Error("save run failed", zap.String("run_id", res.ID), zap.Error(err))
	}
}

func runError(err error) *types.Error {
	if e, ok := types.AsError(err); ok {
		return e
	}
	switch {
	case errors.Is(err, conversation.ErrEmptyInput):
		return types.NewError(types.ErrInvalidRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return types.WrapError(err, types.ErrUpstreamTimeout, "conversation timed out")
	case errors.Is(err, context.Canceled):
		return types.WrapError(err, types.ErrServiceUnavailable, "conversation cancelled")
	default:
		return types.WrapError(err, types.ErrInternalError, "conversation failed")
	}
}

func toResponse(res *conversation.Result, withTranscript bool) *api.ConversationResponse {
	out := &api.ConversationResponse{
		ID:         res.ID,
		Reason:     string(res.Reason),
		Approved:   res.Approved(),
		Iterations: res.Iterations,
		Tokens:     res.Tokens,
		Error:      res.Error,
		StartedAt:  res.StartedAt,
		EndedAt:    res.EndedAt,
	}
	if withTranscript {
		out.Transcript = res.Transcript
	}
	return out
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
