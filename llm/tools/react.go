package tools

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcrew/llm"
)

// ReActConfig defines ReAct loop configuration.
type ReActConfig struct {
	MaxIterations int  // Maximum iterations (prevents infinite loops)
	StopOnError   bool // Stop on tool execution error
}

// ReActExecutor 自动处理 "LLM -> Tool -> LLM" 多轮调用，直到模型不再请求工具。
type ReActExecutor struct {
	provider     llm.Provider
	toolExecutor ToolExecutor
	logger       *zap.Logger
	config       ReActConfig
}

// NewReActExecutor creates a ReAct executor.
func NewReActExecutor(provider llm.Provider, toolExecutor ToolExecutor, config ReActConfig, logger *zap.Logger) *ReActExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxIterations <= 0 {
		config.MaxIterations = 10
	}
	return &ReActExecutor{
		provider:     provider,
		toolExecutor: toolExecutor,
		logger:       logger.With(zap.String("component", "react")),
		config:       config,
	}
}

// ReActStep represents one step in the ReAct loop (Thought → Action → Observation).
type ReActStep struct {
	StepNumber   int            `json:"step_number"`
	Thought      string         `json:"thought,omitempty"`
	Actions      []llm.ToolCall `json:"actions,omitempty"`
	Observations []ToolResult   `json:"observations,omitempty"`
	TokensUsed   int            `json:"tokens_used,omitempty"`
}

// Execute runs the ReAct loop, returning final response and all steps.
func (r *ReActExecutor) Execute(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, []ReActStep, error) {
	steps := make([]ReActStep, 0)
	messages := append([]llm.Message{}, req.Messages...)

	for i := 0; i < r.config.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, steps, err
		}

		callReq := *req
		callReq.Messages = messages
		resp, err := r.provider.Completion(ctx, &callReq)
		if err != nil {
			return nil, steps, fmt.Errorf("LLM call failed at iteration %d: %w", i+1, err)
		}

		choiceMsg, ok := resp.FirstMessage()
		if !ok {
			return resp, steps, fmt.Errorf("no choices in LLM response")
		}

		step := ReActStep{
			StepNumber: i + 1,
			Thought:    choiceMsg.Content,
			TokensUsed: resp.Usage.TotalTokens,
		}

		if len(choiceMsg.ToolCalls) == 0 {
			steps = append(steps, step)
			r.logger.Debug("ReAct completed", zap.Int("iterations", i+1))
			return resp, steps, nil
		}

		step.Actions = choiceMsg.ToolCalls
		toolResults := r.toolExecutor.Execute(ctx, choiceMsg.ToolCalls)
		step.Observations = toolResults
		steps = append(steps, step)

		if r.config.StopOnError {
			for _, result := range toolResults {
				if result.Error != "" {
					return resp, steps, fmt.Errorf("tool %s failed: %s", result.Name, result.Error)
				}
			}
		}

		messages = append(messages, choiceMsg)
		for _, result := range toolResults {
			messages = append(messages, result.ToMessage())
		}
	}

	r.logger.Warn("ReAct max iterations reached", zap.Int("max", r.config.MaxIterations))
	return nil, steps, fmt.Errorf("max iterations reached (%d)", r.config.MaxIterations)
}

// TotalTokens sums token usage across steps.
func TotalTokens(steps []ReActStep) int {
	total := 0
	for _, s := range steps {
		total += s.TokensUsed
	}
	return total
}
