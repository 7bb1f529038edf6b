package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcrew/llm"
	"github.com/BaSui01/agentcrew/llm/retry"
	"github.com/BaSui01/agentcrew/types"
)

// Responder produces the reply text for a persona given the full transcript.
type Responder interface {
	Respond(ctx context.Context, persona string, transcript []types.Message) (string, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, persona string, transcript []types.Message) (string, error)

func (f ResponderFunc) Respond(ctx context.Context, persona string, transcript []types.Message) (string, error) {
	return f(ctx, persona, transcript)
}

// Participant is a named conversational role. It is immutable.
type Participant struct {
	name      string
	persona   string
	responder Responder
}

// NewParticipant creates a participant.
func NewParticipant(name, persona string, responder Responder) Participant {
	return Participant{name: name, persona: persona, responder: responder}
}

func (p Participant) Name() string    { return p.name }
func (p Participant) Persona() string { return p.persona }

// Respond produces exactly one assistant message authored by the participant,
// or a CompletionFailure. The transcript is never modified.
func (p Participant) Respond(ctx context.Context, transcript []types.Message) (types.Message, error) {
	if p.responder == nil {
		return types.Message{}, completionFailure(p.name, errors.New("no completion capability"))
	}
	content, err := p.responder.Respond(ctx, p.persona, transcript)
	if err != nil {
		return types.Message{}, completionFailure(p.name, err)
	}
	if strings.TrimSpace(content) == "" {
		return types.Message{}, completionFailure(p.name, errors.New("empty completion"))
	}
	return types.NewAssistantMessage(p.name, content), nil
}

// =============================================================================
// CompletionResponder
// =============================================================================

// ResponderConfig configures CompletionResponder.
type ResponderConfig struct {
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration      // 单次补全超时，0 表示不限制
	Retry       *retry.RetryPolicy // nil 表示不重试
}

// UsageObserver receives provider usage for every successful completion.
type UsageObserver func(provider, model string, usage llm.ChatUsage, latency time.Duration)

// CompletionResponder calls an llm.Provider with the persona as system message
// followed by the full ordered transcript.
type CompletionResponder struct {
	provider llm.Provider
	cfg      ResponderConfig
	retryer  *retry.Retryer
	onUsage  UsageObserver
	logger   *zap.Logger
}

// NewCompletionResponder creates a responder backed by provider.
func NewCompletionResponder(provider llm.Provider, cfg ResponderConfig, logger *zap.Logger) *CompletionResponder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &CompletionResponder{
		provider: provider,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "participant")),
	}
	if cfg.Retry != nil {
		r.retryer = retry.NewBackoffRetryer(cfg.Retry, r.logger)
	}
	return r
}

// WithUsageObserver sets the usage callback.
func (r *CompletionResponder) WithUsageObserver(fn UsageObserver) *CompletionResponder {
	r.onUsage = fn
	return r
}

func (r *CompletionResponder) Respond(ctx context.Context, persona string, transcript []types.Message) (string, error) {
	traceID, _ := types.TraceID(ctx)
	req := &llm.ChatRequest{
		TraceID:     traceID,
		Model:       r.cfg.Model,
		Messages:    BuildChatMessages(persona, transcript),
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
	}

	attempt := func(ctx context.Context) (string, error) {
		if r.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
			defer cancel()
		}
		start := time.Now()
		resp, err := r.provider.Completion(ctx, req)
		if err != nil {
			return "", err
		}
		msg, ok := resp.FirstMessage()
		if !ok {
			return "", &llm.Error{Code: llm.ErrMalformedResponse, Message: "completion returned no choices", Provider: r.provider.Name()}
		}
		if r.onUsage != nil {
			r.onUsage(r.provider.Name(), resp.Model, resp.Usage, time.Since(start))
		}
		return msg.Content, nil
	}

	if r.retryer == nil {
		return attempt(ctx)
	}
	return retry.Do(ctx, r.retryer, attempt)
}

// BuildChatMessages converts a transcript into provider messages, persona first.
// The author travels as the message name.
func BuildChatMessages(persona string, transcript []types.Message) []llm.Message {
	out := make([]llm.Message, 0, len(transcript)+1)
	if persona != "" {
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: persona})
	}
	for _, m := range transcript {
		out = append(out, llm.Message{
			Role:    toLLMRole(m.Role),
			Content: m.Content,
			Name:    m.Author,
		})
	}
	return out
}

func toLLMRole(r types.Role) llm.Role {
	switch r {
	case types.RoleSystem:
		return llm.RoleSystem
	case types.RoleAssistant:
		return llm.RoleAssistant
	case types.RoleTool:
		return llm.RoleTool
	default:
		return llm.RoleUser
	}
}
