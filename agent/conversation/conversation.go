package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcrew/types"
)

const tracerName = "github.com/BaSui01/agentcrew/agent/conversation"

// Config configures a conversation.
type Config struct {
	MaxIterations int      `json:"max_iterations"`
	ApprovalToken string   `json:"approval_token"`
	Approvers     []string `json:"approvers,omitempty"`
	// SeedPersonas 为 true 时，每个参与者的人设作为 system 消息写入对话开头
	SeedPersonas bool `json:"seed_personas"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxIterations: DefaultMaxIterations,
		ApprovalToken: DefaultApprovalToken,
		SeedPersonas:  true,
	}
}

// Observer receives every message appended by a participant, in order.
type Observer func(msg types.Message, iteration int)

// MetricsRecorder receives loop-level measurements.
type MetricsRecorder interface {
	RecordCycle(participant string, duration time.Duration, ok bool)
	RecordTermination(reason string, iterations int)
}

// Result is the outcome of one conversation run.
type Result struct {
	ID         string          `json:"id"`
	Input      string          `json:"input"`
	Transcript []types.Message `json:"transcript"`
	Messages   []types.Message `json:"messages"`
	Reason     Reason          `json:"reason"`
	Iterations int             `json:"iterations"`
	Tokens     int             `json:"tokens"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	EndedAt    time.Time       `json:"ended_at"`
}

// Approved reports whether the reviewer approved the delivery.
func (r *Result) Approved() bool { return r.Reason == ReasonApproved }

// Duration returns the wall time of the run.
func (r *Result) Duration() time.Duration { return r.EndedAt.Sub(r.StartedAt) }

// Option configures a Conversation.
type Option func(*Conversation)

// WithSelector replaces the default RuleSelector.
func WithSelector(s SpeakerSelector) Option {
	return func(c *Conversation) {
		if s != nil {
			c.selector = s
		}
	}
}

// WithEvaluator replaces the default ApprovalEvaluator.
func WithEvaluator(e TerminationEvaluator) Option {
	return func(c *Conversation) {
		if e != nil {
			c.evaluator = e
		}
	}
}

// WithObserver registers a message observer.
func WithObserver(fn Observer) Option {
	return func(c *Conversation) { c.observer = fn }
}

// WithMetrics registers a metrics recorder. Repeated options fan out to
// every registered recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(c *Conversation) {
		switch prev := c.metrics.(type) {
		case nil:
			c.metrics = m
		case recorders:
			c.metrics = append(prev, m)
		default:
			c.metrics = recorders{prev, m}
		}
	}
}

type recorders []MetricsRecorder

func (rs recorders) RecordCycle(participant string, d time.Duration, ok bool) {
	for _, r := range rs {
		r.RecordCycle(participant, d, ok)
	}
}

func (rs recorders) RecordTermination(reason string, iterations int) {
	for _, r := range rs {
		r.RecordTermination(reason, iterations)
	}
}

// WithSelectionFallback registers a callback invoked when the selector names
// a participant that is not part of the crew.
func WithSelectionFallback(fn FallbackObserver) Option {
	return func(c *Conversation) { c.onFallback = fn }
}

// WithMaxIterations overrides Config.MaxIterations for one conversation.
func WithMaxIterations(n int) Option {
	return func(c *Conversation) {
		if n > 0 {
			c.cfg.MaxIterations = n
		}
	}
}

// WithTokenCounter sets the counter used for Result.Tokens.
func WithTokenCounter(tc types.TokenCounter) Option {
	return func(c *Conversation) { c.counter = tc }
}

// Conversation drives selector, participants and evaluator until termination.
// Run resets the transcript; a Conversation runs one conversation at a time.
type Conversation struct {
	participants []Participant
	byName       map[string]Participant
	cfg          Config
	selector     SpeakerSelector
	evaluator    TerminationEvaluator
	observer     Observer
	onFallback   FallbackObserver
	metrics      MetricsRecorder
	counter      types.TokenCounter
	tracer       trace.Tracer
	logger       *zap.Logger
	running      atomic.Bool
}

// New creates a conversation over participants.
func New(participants []Participant, cfg Config, logger *zap.Logger, opts ...Option) (*Conversation, error) {
	if len(participants) == 0 {
		return nil, ErrNoParticipants
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.ApprovalToken == "" {
		cfg.ApprovalToken = DefaultApprovalToken
	}

	byName := make(map[string]Participant, len(participants))
	for _, p := range participants {
		if p.Name() == "" {
			return nil, errors.New("conversation: participant name is empty")
		}
		if _, dup := byName[p.Name()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, p.Name())
		}
		byName[p.Name()] = p
	}

	c := &Conversation{
		participants: append([]Participant(nil), participants...),
		byName:       byName,
		cfg:          cfg,
		selector:     NewRuleSelector(cfg.ApprovalToken),
		evaluator:    NewApprovalEvaluator(cfg.ApprovalToken, cfg.Approvers...),
		tracer:       otel.Tracer(tracerName),
		logger:       logger.With(zap.String("component", "conversation")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Participants returns the participant names in registration order.
func (c *Conversation) Participants() []string {
	names := make([]string, len(c.participants))
	for i, p := range c.participants {
		names[i] = p.Name()
	}
	return names
}

// Run executes a full conversation for the user's input.
//
// The returned Result is never nil. On CompletionFailure the Result holds the
// transcript up to the failed cycle and Reason is "error". On cancellation
// Reason is "cancelled" and the context error is returned.
func (c *Conversation) Run(ctx context.Context, input string) (*Result, error) {
	result := &Result{ID: uuid.NewString(), Input: input, StartedAt: time.Now().UTC()}
	if strings.TrimSpace(input) == "" {
		result.Reason = ReasonError
		result.Error = ErrEmptyInput.Error()
		result.EndedAt = result.StartedAt
		return result, ErrEmptyInput
	}
	if !c.running.CompareAndSwap(false, true) {
		err := types.NewError(types.ErrConversationBusy, "conversation is already running")
		result.Reason = ReasonError
		result.Error = err.Error()
		result.EndedAt = result.StartedAt
		return result, err
	}
	defer c.running.Store(false)

	if _, ok := types.RunID(ctx); !ok {
		ctx = types.WithRunID(ctx, result.ID)
	}
	ctx, span := c.tracer.Start(ctx, "conversation.run", trace.WithAttributes(
		attribute.String("conversation.id", result.ID),
		attribute.Int("conversation.max_iterations", c.cfg.MaxIterations),
	))
	defer span.End()

	transcript := NewTranscript(c.seed(input)...)
	seeded := transcript.Len()

	c.logger.Info("conversation started",
		zap.String("run_id", result.ID),
		zap.Strings("participants", c.Participants()),
		zap.Int("max_iterations", c.cfg.MaxIterations),
	)

	iteration := 0
	lastSpeaker := ""
	var runErr error

	for {
		if err := ctx.Err(); err != nil {
			result.Reason = ReasonCancelled
			runErr = err
			break
		}

		p, err := c.nextSpeaker(ctx, transcript.Messages(), lastSpeaker)
		if err != nil {
			result.Reason, runErr = c.failure(ctx, err)
			break
		}
		speaker := p.Name()

		msg, err := c.cycle(ctx, p, transcript, iteration+1)
		if err != nil {
			result.Reason, runErr = c.failure(ctx, err)
			break
		}

		transcript.Append(msg)
		lastSpeaker = speaker
		iteration++
		if c.observer != nil {
			c.observer(msg, iteration)
		}

		if reason, done := c.evaluator.Decide(transcript.Messages(), iteration, c.cfg.MaxIterations); done {
			result.Reason = reason
			break
		}
		// 上限由循环自身保证，与注入的评估器无关
		if iteration >= c.cfg.MaxIterations {
			result.Reason = ReasonMaxIterations
			break
		}
	}

	result.Transcript = transcript.Messages()
	result.Messages = transcript.Since(seeded)
	result.Iterations = iteration
	result.EndedAt = time.Now().UTC()
	if c.counter != nil {
		for _, m := range result.Messages {
			result.Tokens += c.counter.CountTokens(m.Content)
		}
	}
	if runErr != nil {
		result.Error = runErr.Error()
		span.RecordError(runErr)
		span.SetStatus(codes.Error, string(result.Reason))
	}
	span.SetAttributes(
		attribute.String("conversation.reason", string(result.Reason)),
		attribute.Int("conversation.iterations", iteration),
	)
	if c.metrics != nil {
		c.metrics.RecordTermination(string(result.Reason), iteration)
	}

	c.logger.Info("conversation ended",
		zap.String("run_id", result.ID),
		zap.String("reason", string(result.Reason)),
		zap.Int("iterations", iteration),
		zap.Duration("duration", result.Duration()),
	)
	return result, runErr
}

// cycle 调用一次参与者；失败时不改动对话记录。
func (c *Conversation) cycle(ctx context.Context, p Participant, transcript *Transcript, iteration int) (types.Message, error) {
	ctx, span := c.tracer.Start(ctx, "conversation.cycle", trace.WithAttributes(
		attribute.String("participant", p.Name()),
		attribute.Int("iteration", iteration),
	))
	defer span.End()

	start := time.Now()
	msg, err := p.Respond(ctx, transcript.Messages())
	if c.metrics != nil {
		c.metrics.RecordCycle(p.Name(), time.Since(start), err == nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		c.logger.Warn("participant failed",
			zap.String("participant", p.Name()),
			zap.Int("iteration", iteration),
			zap.Error(err),
		)
		return types.Message{}, err
	}
	c.logger.Debug("participant responded",
		zap.String("participant", p.Name()),
		zap.Int("iteration", iteration),
		zap.Int("content_length", len(msg.Content)),
	)
	return msg, nil
}

// nextSpeaker 询问选择器；名字无法识别时回退到规则选择，再回退到第一个参与者
func (c *Conversation) nextSpeaker(ctx context.Context, transcript []types.Message, lastSpeaker string) (Participant, error) {
	speaker, err := c.selector.Select(ctx, transcript, lastSpeaker)
	if err != nil && !errors.Is(err, ErrSelectionAmbiguity) {
		return Participant{}, err
	}
	if err == nil {
		if p, ok := c.byName[speaker]; ok {
			return p, nil
		}
		err = selectionAmbiguity(speaker, ErrUnknownParticipant)
	}

	p, ok := c.byName[NewRuleSelector(c.cfg.ApprovalToken).next(transcript, lastSpeaker)]
	if !ok {
		p = c.participants[0]
	}
	c.logger.Warn("speaker selection fell back to default",
		zap.String("answer", speaker),
		zap.String("fallback", p.Name()),
		zap.Error(err),
	)
	if c.onFallback != nil {
		c.onFallback("unknown_participant")
	}
	return p, nil
}

func (c *Conversation) failure(ctx context.Context, err error) (Reason, error) {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return ReasonCancelled, ctx.Err()
	}
	return ReasonError, err
}

func (c *Conversation) seed(input string) []types.Message {
	msgs := make([]types.Message, 0, len(c.participants)+1)
	if c.cfg.SeedPersonas {
		for _, p := range c.participants {
			msgs = append(msgs, types.NewSystemMessage(p.Name(), p.Persona()))
		}
	}
	return append(msgs, types.NewUserMessage(input))
}
