package conversation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/BaSui01/agentcrew/types"
)

func TestApprovalEvaluator_Decide(t *testing.T) {
	po := func(content string) types.Message { return types.NewAssistantMessage(ProductOwner, content) }
	se := func(content string) types.Message { return types.NewAssistantMessage(SoftwareEngineer, content) }

	tests := []struct {
		name       string
		eval       *ApprovalEvaluator
		transcript []types.Message
		iteration  int
		max        int
		reason     Reason
		done       bool
	}{
		{"empty transcript", NewApprovalEvaluator(""), nil, 0, 20, "", false},
		{"empty transcript at bound", NewApprovalEvaluator(""), nil, 20, 20, ReasonMaxIterations, true},
		{"token in last message", NewApprovalEvaluator(""), []types.Message{po("%APPR%")}, 3, 20, ReasonApproved, true},
		{"token embedded in text", NewApprovalEvaluator(""), []types.Message{po("Looks good. %APPR% Ship it")}, 3, 20, ReasonApproved, true},
		{"token is case sensitive", NewApprovalEvaluator(""), []types.Message{po("%appr%")}, 3, 20, "", false},
		{"only last message counts", NewApprovalEvaluator(""), []types.Message{po("%APPR%"), se("more code")}, 5, 20, "", false},
		{"approval wins at bound", NewApprovalEvaluator(""), []types.Message{po("%APPR%")}, 20, 20, ReasonApproved, true},
		{"bound without approval", NewApprovalEvaluator(""), []types.Message{se("code")}, 20, 20, ReasonMaxIterations, true},
		{"restricted approvers reject others", NewApprovalEvaluator("", ProductOwner), []types.Message{se("%APPR%")}, 2, 20, "", false},
		{"restricted approvers accept reviewer", NewApprovalEvaluator("", ProductOwner), []types.Message{po("%APPR%")}, 3, 20, ReasonApproved, true},
		{"custom token", NewApprovalEvaluator("LGTM"), []types.Message{po("LGTM")}, 3, 20, ReasonApproved, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, done := tt.eval.Decide(tt.transcript, tt.iteration, tt.max)
			assert.Equal(t, tt.done, done)
			assert.Equal(t, tt.reason, reason)
			assert.Equal(t, tt.done, tt.eval.ShouldTerminate(tt.transcript, tt.iteration, tt.max))
		})
	}
}

func genMessage(t *rapid.T, label string) types.Message {
	author := rapid.SampledFrom([]string{BusinessAnalyst, SoftwareEngineer, ProductOwner}).Draw(t, label+"_author")
	content := rapid.String().Draw(t, label+"_content")
	return types.NewAssistantMessage(author, content)
}

func TestProperty_BoundAlwaysTerminates(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		max := rapid.IntRange(1, 50).Draw(t, "max")
		iteration := rapid.IntRange(max, max+50).Draw(t, "iteration")
		n := rapid.IntRange(0, 5).Draw(t, "n")
		transcript := make([]types.Message, n)
		for i := range transcript {
			transcript[i] = genMessage(t, "msg")
		}

		if !NewApprovalEvaluator("").ShouldTerminate(transcript, iteration, max) {
			t.Fatalf("iteration %d >= max %d must terminate", iteration, max)
		}
	})
}

func TestProperty_NoTokenNoTermination(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		max := rapid.IntRange(2, 50).Draw(t, "max")
		iteration := rapid.IntRange(0, max-1).Draw(t, "iteration")
		msg := genMessage(t, "last")
		if strings.Contains(msg.Content, DefaultApprovalToken) {
			return
		}

		reason, done := NewApprovalEvaluator("").Decide([]types.Message{msg}, iteration, max)
		if done {
			t.Fatalf("terminated with %q without token", reason)
		}
	})
}

func TestProperty_ReviewerApprovalTerminates(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		prefix := rapid.String().Draw(t, "prefix")
		suffix := rapid.String().Draw(t, "suffix")
		iteration := rapid.IntRange(0, 100).Draw(t, "iteration")
		msg := types.NewAssistantMessage(ProductOwner, prefix+DefaultApprovalToken+suffix)

		reason, done := NewApprovalEvaluator("", ProductOwner).Decide([]types.Message{msg}, iteration, 20)
		if !done || reason != ReasonApproved {
			t.Fatalf("expected approval, got %q %v", reason, done)
		}
	})
}

func TestTranscript(t *testing.T) {
	tr := NewTranscript(types.NewUserMessage("req"))
	_, ok := NewTranscript().Last()
	assert.False(t, ok)

	m := types.NewAssistantMessage(BusinessAnalyst, "plan")
	tr.Append(m)

	last, ok := tr.Last()
	assert.True(t, ok)
	assert.True(t, last.Equal(m))
	assert.Equal(t, 2, tr.Len())
	assert.Equal(t, 1, tr.ParticipantTurns())
	assert.Len(t, tr.Since(1), 1)
	assert.Nil(t, tr.Since(5))
	assert.Len(t, tr.Since(-1), 2)

	// Messages 返回副本
	cp := tr.Messages()
	cp[0].Content = "changed"
	assert.Equal(t, "req", tr.Messages()[0].Content)
}

func TestProperty_TranscriptAppendOnly(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 30).Draw(t, "n")
		tr := NewTranscript()
		var appended []types.Message
		for i := 0; i < n; i++ {
			m := genMessage(t, "m")
			tr.Append(m)
			appended = append(appended, m)

			last, ok := tr.Last()
			if !ok || !last.Equal(m) {
				t.Fatalf("Last() does not return the appended message")
			}
		}
		got := tr.Messages()
		if len(got) != len(appended) {
			t.Fatalf("length %d, want %d", len(got), len(appended))
		}
		for i := range got {
			if !got[i].Equal(appended[i]) {
				t.Fatalf("message %d reordered", i)
			}
		}
	})
}
