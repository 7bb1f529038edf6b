package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentcrew/llm"
)

// ToolResult represents tool execution result.
type ToolResult struct {
	ToolCallID string          `json:"tool_call_id"`
	Name       string          `json:"name"`
	Result     json.RawMessage `json:"result"`
	Error      string          `json:"error,omitempty"`
	Duration   time.Duration   `json:"duration"`
}

// ToMessage converts ToolResult to LLM Message.
func (tr ToolResult) ToMessage() llm.Message {
	msg := llm.Message{
		Role:       llm.RoleTool,
		ToolCallID: tr.ToolCallID,
		Name:       tr.Name,
	}
	if tr.Error != "" {
		msg.Content = fmt.Sprintf("Error: %s", tr.Error)
		return msg
	}
	// 字符串结果直接展开，避免把引号交给模型
	var s string
	if err := json.Unmarshal(tr.Result, &s); err == nil {
		msg.Content = s
	} else {
		msg.Content = string(tr.Result)
	}
	return msg
}

// ToolExecutor defines tool executor interface.
type ToolExecutor interface {
	Execute(ctx context.Context, calls []llm.ToolCall) []ToolResult
	ExecuteOne(ctx context.Context, call llm.ToolCall) ToolResult
}

// ExecutionObserver 接收每次工具执行结果（用于指标）。
type ExecutionObserver func(name string, ok bool, d time.Duration)

// DefaultExecutor 并发执行一批工具调用，结果顺序与调用顺序一致。
type DefaultExecutor struct {
	registry    ToolRegistry
	logger      *zap.Logger
	concurrency int
	observer    ExecutionObserver
}

// NewDefaultExecutor 创建默认的工具执行器。
func NewDefaultExecutor(registry ToolRegistry, logger *zap.Logger) *DefaultExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultExecutor{
		registry:    registry,
		logger:      logger.With(zap.String("component", "tool_executor")),
		concurrency: 4,
	}
}

// WithObserver sets the execution observer.
func (e *DefaultExecutor) WithObserver(obs ExecutionObserver) *DefaultExecutor {
	e.observer = obs
	return e
}

// WithConcurrency bounds parallel tool execution.
func (e *DefaultExecutor) WithConcurrency(n int) *DefaultExecutor {
	if n > 0 {
		e.concurrency = n
	}
	return e
}

func (e *DefaultExecutor) Execute(ctx context.Context, calls []llm.ToolCall) []ToolResult {
	results := make([]ToolResult, len(calls))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = e.ExecuteOne(ctx, call)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (e *DefaultExecutor) ExecuteOne(ctx context.Context, call llm.ToolCall) ToolResult {
	start := time.Now()
	result := ToolResult{ToolCallID: call.ID, Name: call.Name}
	finish := func() ToolResult {
		result.Duration = time.Since(start)
		if e.observer != nil {
			e.observer(call.Name, result.Error == "", result.Duration)
		}
		return result
	}

	fn, meta, err := e.registry.Get(call.Name)
	if err != nil {
		result.Error = fmt.Sprintf("tool not found: %s", err.Error())
		e.logger.Warn("tool not found", zap.String("name", call.Name))
		return finish()
	}

	if reg, ok := e.registry.(*DefaultRegistry); ok && !reg.allow(call.Name) {
		result.Error = "rate limit exceeded"
		e.logger.Warn("rate limit exceeded", zap.String("name", call.Name))
		return finish()
	}

	args := call.Arguments
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	if !json.Valid(args) {
		result.Error = "invalid arguments: not valid JSON"
		e.logger.Warn("invalid tool arguments", zap.String("name", call.Name))
		return finish()
	}

	execCtx, cancel := context.WithTimeout(ctx, meta.Timeout)
	defer cancel()

	type outcome struct {
		res json.RawMessage
		err error
	}
	// 带缓冲，超时后 goroutine 仍能退出
	done := make(chan outcome, 1)
	go func() {
		res, err := fn(execCtx, args)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		if o.err != nil && execCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			result.Error = fmt.Sprintf("execution timeout after %s", meta.Timeout)
			e.logger.Warn("tool execution timeout", zap.String("name", call.Name), zap.Duration("timeout", meta.Timeout))
		} else if o.err != nil {
			result.Error = o.err.Error()
			e.logger.Warn("tool execution failed", zap.String("name", call.Name), zap.Error(o.err))
		} else {
			result.Result = o.res
			e.logger.Debug("tool executed", zap.String("name", call.Name))
		}
	case <-execCtx.Done():
		result.Error = fmt.Sprintf("execution timeout after %s", meta.Timeout)
		e.logger.Warn("tool execution timeout", zap.String("name", call.Name), zap.Duration("timeout", meta.Timeout))
	}
	return finish()
}

// TextResult 将字符串结果编码为工具返回值。
func TextResult(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
