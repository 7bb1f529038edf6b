package chat

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcrew/llm"
	"github.com/BaSui01/agentcrew/llm/tools"
	"github.com/BaSui01/agentcrew/types"
)

// Config 单个聊天会话的补全参数
type Config struct {
	Model             string
	SystemPrompt      string
	Temperature       float32
	TopP              float32
	MaxTokens         int
	MaxToolIterations int
	// 每个会话保留的历史消息条数，<= 0 不限制
	MaxHistory int
}

// DefaultConfig 返回默认会话配置
func DefaultConfig() Config {
	return Config{
		SystemPrompt:      "You are a helpful assistant. Use the available functions when they help answer the user.",
		Temperature:       0.7,
		TopP:              0.95,
		MaxTokens:         800,
		MaxToolIterations: 8,
		MaxHistory:        50,
	}
}

// ToolInvocation 记录一次工具调用及其输出
type ToolInvocation struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Output    string          `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	Duration  time.Duration   `json:"duration"`
}

// Reply 是一次 Send 的结果
type Reply struct {
	SessionID string           `json:"session_id"`
	Content   string           `json:"content"`
	ToolCalls []ToolInvocation `json:"tool_calls,omitempty"`
	Tokens    int              `json:"tokens"`
	Steps     int              `json:"steps"`
}

// Session is a single tool-augmented conversation with the model.
// Sends on one session are serialized.
type Session struct {
	id       string
	cfg      Config
	provider llm.Provider
	registry tools.ToolRegistry
	executor tools.ToolExecutor
	history  HistoryStore
	logger   *zap.Logger

	mu       sync.Mutex
	lastUsed atomic.Int64
}

// NewSession creates a session. registry may be nil for a plain chat.
func NewSession(id string, cfg Config, provider llm.Provider, registry tools.ToolRegistry, executor tools.ToolExecutor, history HistoryStore, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if history == nil {
		history = NewMemoryHistory(cfg.MaxHistory)
	}
	if executor == nil && registry != nil {
		executor = tools.NewDefaultExecutor(registry, logger)
	}
	s := &Session{
		id:       id,
		cfg:      cfg,
		provider: provider,
		registry: registry,
		executor: executor,
		history:  history,
		logger:   logger.With(zap.String("component", "chat_session"), zap.String("session_id", id)),
	}
	s.touch()
	return s
}

func (s *Session) touch() { s.lastUsed.Store(time.Now().UnixNano()) }

// ID 返回会话 ID
func (s *Session) ID() string { return s.id }

// LastUsed 返回最近一次 Send 的时间
func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

// Send 发送用户输入，执行工具循环，返回最终回复。
// 失败时历史保持不变。
func (s *Session) Send(ctx context.Context, input string) (*Reply, error) {
	if strings.TrimSpace(input) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "chat input must not be empty")
	}
	if s.provider == nil {
		return nil, types.NewError(types.ErrServiceUnavailable, "no chat provider configured")
	}

	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()

	past, err := s.history.Load(ctx, s.id)
	if err != nil {
		return nil, types.WrapError(err, types.ErrInternalError, "load chat history")
	}

	user := llm.Message{Role: llm.RoleUser, Content: input}
	req := s.buildRequest(ctx, past, user)

	start := time.Now()
	resp, steps, err := s.run(ctx, req)
	if err != nil {
		s.logger.Warn("chat completion failed", zap.Int("steps", len(steps)), zap.Error(err))
		if ctx.Err() != nil {
			return nil, types.WrapError(ctx.Err(), types.ErrUpstreamTimeout, "chat cancelled")
		}
		return nil, types.WrapError(err, types.ErrCompletionFailure, "chat completion failed")
	}

	msg, _ := resp.FirstMessage()
	answer := llm.Message{Role: llm.RoleAssistant, Content: msg.Content}
	if err := s.history.Append(ctx, s.id, user, answer); err != nil {
		return nil, types.WrapError(err, types.ErrInternalError, "save chat history")
	}

	reply := &Reply{
		SessionID: s.id,
		Content:   msg.Content,
		ToolCalls: invocations(steps),
		Tokens:    tools.TotalTokens(steps),
		Steps:     len(steps),
	}
	s.logger.Debug("chat reply",
		zap.Int("steps", reply.Steps),
		zap.Int("tool_calls", len(reply.ToolCalls)),
		zap.Duration("latency", time.Since(start)))
	return reply, nil
}

func (s *Session) buildRequest(ctx context.Context, past []llm.Message, user llm.Message) *llm.ChatRequest {
	msgs := make([]llm.Message, 0, len(past)+2)
	if s.cfg.SystemPrompt != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: s.cfg.SystemPrompt})
	}
	msgs = append(msgs, past...)
	msgs = append(msgs, user)

	req := &llm.ChatRequest{
		Model:       s.cfg.Model,
		Messages:    msgs,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
		TopP:        s.cfg.TopP,
	}
	if traceID, ok := types.TraceID(ctx); ok {
		req.TraceID = traceID
	}
	if s.registry != nil {
		if schemas := s.registry.List(); len(schemas) > 0 {
			req.Tools = schemas
			req.ToolChoice = "auto"
		}
	}
	return req
}

func (s *Session) run(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, []tools.ReActStep, error) {
	if len(req.Tools) == 0 {
		resp, err := s.provider.Completion(ctx, req)
		if err != nil {
			return nil, nil, err
		}
		if _, ok := resp.FirstMessage(); !ok {
			return nil, nil, types.NewError(types.ErrCompletionFailure, "no choices in response")
		}
		return resp, []tools.ReActStep{{StepNumber: 1, TokensUsed: resp.Usage.TotalTokens}}, nil
	}
	react := tools.NewReActExecutor(s.provider, s.executor, tools.ReActConfig{MaxIterations: s.cfg.MaxToolIterations}, s.logger)
	return react.Execute(ctx, req)
}

// History 返回当前会话历史
func (s *Session) History(ctx context.Context) ([]llm.Message, error) {
	return s.history.Load(ctx, s.id)
}

// Reset 清空会话历史
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Clear(ctx, s.id)
}

func invocations(steps []tools.ReActStep) []ToolInvocation {
	var out []ToolInvocation
	for _, step := range steps {
		for i, call := range step.Actions {
			inv := ToolInvocation{Name: call.Name, Arguments: call.Arguments}
			if i < len(step.Observations) {
				obs := step.Observations[i]
				inv.Error = obs.Error
				inv.Duration = obs.Duration
				if obs.Error == "" {
					inv.Output = obs.ToMessage().Content
				}
			}
			out = append(out, inv)
		}
	}
	return out
}
