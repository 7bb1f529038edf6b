package conversation

import (
	"strings"

	"github.com/samber/lo"

	"github.com/BaSui01/agentcrew/types"
)

// Reason explains why a conversation stopped.
type Reason string

const (
	ReasonApproved      Reason = "approved"
	ReasonMaxIterations Reason = "max_iterations"
	ReasonError         Reason = "error"
	ReasonCancelled     Reason = "cancelled"
)

// DefaultMaxIterations bounds a conversation when no limit is configured.
const DefaultMaxIterations = 20

// TerminationEvaluator decides, after every cycle, whether the loop stops.
type TerminationEvaluator interface {
	Decide(transcript []types.Message, iteration, max int) (Reason, bool)
}

// ApprovalEvaluator stops when the last message carries the approval token
// or when the iteration bound is reached. Only the last message is inspected.
type ApprovalEvaluator struct {
	Token     string
	Approvers []string // 为空表示任何作者都可批准
}

// NewApprovalEvaluator creates an evaluator; an empty token uses %APPR%.
func NewApprovalEvaluator(token string, approvers ...string) *ApprovalEvaluator {
	if token == "" {
		token = DefaultApprovalToken
	}
	return &ApprovalEvaluator{Token: token, Approvers: approvers}
}

// ShouldTerminate reports whether the loop must stop.
func (e *ApprovalEvaluator) ShouldTerminate(transcript []types.Message, iteration, max int) bool {
	_, done := e.Decide(transcript, iteration, max)
	return done
}

// Decide reports whether to stop and why. Approval wins over the bound when
// both hold on the same cycle.
func (e *ApprovalEvaluator) Decide(transcript []types.Message, iteration, max int) (Reason, bool) {
	if e.approved(transcript) {
		return ReasonApproved, true
	}
	if iteration >= max {
		return ReasonMaxIterations, true
	}
	return "", false
}

func (e *ApprovalEvaluator) approved(transcript []types.Message) bool {
	if len(transcript) == 0 {
		return false
	}
	last := transcript[len(transcript)-1]
	if !strings.Contains(last.Content, e.Token) {
		return false
	}
	return len(e.Approvers) == 0 || lo.Contains(e.Approvers, last.Author)
}
