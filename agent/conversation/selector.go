package conversation

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcrew/llm"
	"github.com/BaSui01/agentcrew/types"
)

// SpeakerSelector chooses the next participant from the transcript and the
// last speaker ("" before any participant has spoken).
type SpeakerSelector interface {
	Select(ctx context.Context, transcript []types.Message, lastSpeaker string) (string, error)
}

// Selection policy names accepted by configuration.
const (
	SelectionPolicyRules  = "rules"
	SelectionPolicyPrompt = "prompt"
)

// DefaultGapCues are the review phrases that route a rejection back to the analyst.
var DefaultGapCues = []string{
	"unclear requirement",
	"missing requirement",
	"requirement is missing",
	"requirements are unclear",
	"requirements gap",
	"businessanalyst",
	"business analyst",
}

// =============================================================================
// RuleSelector
// =============================================================================

// RuleSelector is the deterministic analyst → engineer → reviewer state machine.
type RuleSelector struct {
	Analyst       string
	Engineer      string
	Reviewer      string
	ApprovalToken string
	GapCues       []string // 小写匹配
}

// NewRuleSelector returns the selector for the default crew.
func NewRuleSelector(approvalToken string) *RuleSelector {
	if approvalToken == "" {
		approvalToken = DefaultApprovalToken
	}
	return &RuleSelector{
		Analyst:       BusinessAnalyst,
		Engineer:      SoftwareEngineer,
		Reviewer:      ProductOwner,
		ApprovalToken: approvalToken,
		GapCues:       DefaultGapCues,
	}
}

func (s *RuleSelector) Select(_ context.Context, transcript []types.Message, lastSpeaker string) (string, error) {
	return s.next(transcript, lastSpeaker), nil
}

func (s *RuleSelector) next(transcript []types.Message, lastSpeaker string) string {
	last, ok := lastParticipantMessage(transcript)
	if !ok {
		return s.Analyst
	}
	if lastSpeaker == "" {
		lastSpeaker = last.Author
	}

	switch lastSpeaker {
	case s.Analyst:
		return s.Engineer
	case s.Engineer:
		return s.Reviewer
	case s.Reviewer:
		if last.Author == s.Reviewer && !strings.Contains(last.Content, s.ApprovalToken) && s.mentionsGap(last.Content) {
			return s.Analyst
		}
		return s.Engineer
	default:
		return s.Analyst
	}
}

func (s *RuleSelector) mentionsGap(content string) bool {
	lower := strings.ToLower(content)
	return lo.ContainsBy(s.GapCues, func(cue string) bool {
		return strings.Contains(lower, cue)
	})
}

// =============================================================================
// PromptSelector
// =============================================================================

// FallbackObserver is notified whenever the prompt selector falls back to rules.
type FallbackObserver func(reason string)

// PromptSelector asks the model for the next speaker and validates the answer.
// Unrecognized answers or failed calls fall back to the rule decision.
type PromptSelector struct {
	provider   llm.Provider
	model      string
	names      []string
	template   string
	fallback   SpeakerSelector
	onFallback FallbackObserver
	logger     *zap.Logger
}

// NewPromptSelector creates a prompt selector over the given participant names.
// A nil fallback uses NewRuleSelector with the default token.
func NewPromptSelector(provider llm.Provider, model string, names []string, fallback SpeakerSelector, logger *zap.Logger) *PromptSelector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fallback == nil {
		fallback = NewRuleSelector("")
	}
	return &PromptSelector{
		provider: provider,
		model:    model,
		names:    append([]string(nil), names...),
		template: SelectionPrompt,
		fallback: fallback,
		logger:   logger.With(zap.String("component", "prompt_selector")),
	}
}

// WithTemplate overrides the selection prompt.
func (s *PromptSelector) WithTemplate(tpl string) *PromptSelector {
	if tpl != "" {
		s.template = tpl
	}
	return s
}

// WithFallbackObserver sets the fallback callback.
func (s *PromptSelector) WithFallbackObserver(fn FallbackObserver) *PromptSelector {
	s.onFallback = fn
	return s
}

func (s *PromptSelector) Select(ctx context.Context, transcript []types.Message, lastSpeaker string) (string, error) {
	name, err := s.ask(ctx, transcript, lastSpeaker)
	if err == nil {
		return name, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	reason := "unrecognized"
	if !errors.Is(err, ErrSelectionAmbiguity) {
		reason = "call_failed"
	}
	s.logger.Warn("speaker selection fell back to rules", zap.String("reason", reason), zap.Error(err))
	if s.onFallback != nil {
		s.onFallback(reason)
	}
	return s.fallback.Select(ctx, transcript, lastSpeaker)
}

func (s *PromptSelector) ask(ctx context.Context, transcript []types.Message, lastSpeaker string) (string, error) {
	prompt := renderSelectionPrompt(s.template, s.names, transcript, lastSpeaker)
	resp, err := s.provider.Completion(ctx, &llm.ChatRequest{
		Model:       s.model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		MaxTokens:   16,
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	msg, ok := resp.FirstMessage()
	if !ok {
		return "", selectionAmbiguity("", errors.New("no choices"))
	}
	name, ok := MatchParticipant(msg.Content, s.names)
	if !ok {
		return "", selectionAmbiguity(msg.Content, nil)
	}
	return name, nil
}

// MatchParticipant maps a free-form answer onto exactly one participant name.
// Matching ignores case, whitespace and punctuation; an answer that mentions
// several names is ambiguous.
func MatchParticipant(answer string, names []string) (string, bool) {
	norm := normalizeName(answer)
	if norm == "" {
		return "", false
	}
	if name, ok := lo.Find(names, func(n string) bool { return normalizeName(n) == norm }); ok {
		return name, true
	}
	hits := lo.Filter(names, func(n string, _ int) bool {
		return strings.Contains(norm, normalizeName(n))
	})
	if len(hits) == 1 {
		return hits[0], true
	}
	return "", false
}

func normalizeName(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, s)
}
