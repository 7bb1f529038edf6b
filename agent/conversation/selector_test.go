package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcrew/testutil/fixtures"
	"github.com/BaSui01/agentcrew/testutil/mocks"
	"github.com/BaSui01/agentcrew/types"
)

func TestRuleSelector(t *testing.T) {
	sel := NewRuleSelector("")

	tests := []struct {
		name        string
		transcript  []types.Message
		lastSpeaker string
		want        string
	}{
		{
			name:       "empty transcript starts with analyst",
			transcript: nil,
			want:       BusinessAnalyst,
		},
		{
			name:       "only user input starts with analyst",
			transcript: fixtures.Transcript(fixtures.CalculatorRequest),
			want:       BusinessAnalyst,
		},
		{
			name: "persona seeds are not turns",
			transcript: append([]types.Message{
				types.NewSystemMessage(ProductOwner, ProductOwnerPersona),
			}, fixtures.Transcript(fixtures.CalculatorRequest)...),
			lastSpeaker: "",
			want:        BusinessAnalyst,
		},
		{
			name:        "analyst hands over to engineer",
			transcript:  fixtures.Transcript(fixtures.CalculatorRequest, BusinessAnalyst, fixtures.AnalystPlan),
			lastSpeaker: BusinessAnalyst,
			want:        SoftwareEngineer,
		},
		{
			name: "engineer hands over to reviewer",
			transcript: fixtures.Transcript(fixtures.CalculatorRequest,
				BusinessAnalyst, fixtures.AnalystPlan, SoftwareEngineer, fixtures.EngineerDelivery),
			lastSpeaker: SoftwareEngineer,
			want:        ProductOwner,
		},
		{
			name: "rejection goes back to engineer",
			transcript: fixtures.Transcript(fixtures.CalculatorRequest,
				BusinessAnalyst, fixtures.AnalystPlan, SoftwareEngineer, fixtures.EngineerDelivery,
				ProductOwner, fixtures.ReviewRejected),
			lastSpeaker: ProductOwner,
			want:        SoftwareEngineer,
		},
		{
			name: "requirements gap goes back to analyst",
			transcript: fixtures.Transcript(fixtures.CalculatorRequest,
				BusinessAnalyst, fixtures.AnalystPlan, SoftwareEngineer, fixtures.EngineerDelivery,
				ProductOwner, fixtures.ReviewGap),
			lastSpeaker: ProductOwner,
			want:        BusinessAnalyst,
		},
		{
			name: "defect report mentioning requirements stays with engineer",
			transcript: fixtures.Transcript(fixtures.CalculatorRequest,
				BusinessAnalyst, fixtures.AnalystPlan, SoftwareEngineer, fixtures.EngineerDelivery,
				ProductOwner, "The requirements are not all implemented yet, the history panel is empty."),
			lastSpeaker: ProductOwner,
			want:        SoftwareEngineer,
		},
		{
			name: "missing requirement routes to analyst",
			transcript: fixtures.Transcript(fixtures.CalculatorRequest,
				BusinessAnalyst, fixtures.AnalystPlan, SoftwareEngineer, fixtures.EngineerDelivery,
				ProductOwner, "There is a missing requirement about rounding precision."),
			lastSpeaker: ProductOwner,
			want:        BusinessAnalyst,
		},
		{
			name: "spaced analyst name routes to analyst",
			transcript: fixtures.Transcript(fixtures.CalculatorRequest,
				BusinessAnalyst, fixtures.AnalystPlan, SoftwareEngineer, fixtures.EngineerDelivery,
				ProductOwner, "The Business Analyst must specify rounding."),
			lastSpeaker: ProductOwner,
			want:        BusinessAnalyst,
		},
		{
			name: "last speaker derived from transcript",
			transcript: fixtures.Transcript(fixtures.CalculatorRequest,
				BusinessAnalyst, fixtures.AnalystPlan),
			lastSpeaker: "",
			want:        SoftwareEngineer,
		},
		{
			name: "unknown last speaker restarts at analyst",
			transcript: fixtures.Transcript(fixtures.CalculatorRequest,
				"Stranger", "hello"),
			lastSpeaker: "Stranger",
			want:        BusinessAnalyst,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sel.Select(context.Background(), tt.transcript, tt.lastSpeaker)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchParticipant(t *testing.T) {
	names := []string{BusinessAnalyst, SoftwareEngineer, ProductOwner}

	tests := []struct {
		answer string
		want   string
		ok     bool
	}{
		{"ProductOwner", ProductOwner, true},
		{"  productowner.\n", ProductOwner, true},
		{"\"Software Engineer\"", SoftwareEngineer, true},
		{"**BusinessAnalyst**", BusinessAnalyst, true},
		{"Next speaker: SoftwareEngineer", SoftwareEngineer, true},
		{"SoftwareEngineer or ProductOwner", "", false},
		{"the tester", "", false},
		{"", "", false},
		{"!!!", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			got, ok := MatchParticipant(tt.answer, names)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPromptSelector_UsesModelAnswer(t *testing.T) {
	provider := mocks.NewScriptedProvider(" ProductOwner ")
	sel := NewPromptSelector(provider, "gpt-4o", []string{BusinessAnalyst, SoftwareEngineer, ProductOwner}, nil, nil)

	transcript := fixtures.Transcript(fixtures.CalculatorRequest, BusinessAnalyst, fixtures.AnalystPlan)
	got, err := sel.Select(context.Background(), transcript, BusinessAnalyst)
	require.NoError(t, err)
	assert.Equal(t, ProductOwner, got)

	req := provider.LastRequest()
	require.NotNil(t, req)
	require.Len(t, req.Messages, 1)
	prompt := req.Messages[0].Content
	assert.Contains(t, prompt, "Last agent to speak: BusinessAnalyst")
	assert.Contains(t, prompt, "BusinessAnalyst (assistant): "+fixtures.AnalystPlan)
	assert.Contains(t, prompt, "BusinessAnalyst, SoftwareEngineer, ProductOwner")
	assert.NotContains(t, prompt, "{{")
}

func TestPromptSelector_FallsBackToRules(t *testing.T) {
	transcript := fixtures.Transcript(fixtures.CalculatorRequest, BusinessAnalyst, fixtures.AnalystPlan)
	names := []string{BusinessAnalyst, SoftwareEngineer, ProductOwner}

	tests := []struct {
		name     string
		provider *mocks.MockProvider
		reason   string
	}{
		{"unrecognized answer", mocks.NewScriptedProvider("I think the tester"), "unrecognized"},
		{"ambiguous answer", mocks.NewScriptedProvider("SoftwareEngineer or ProductOwner"), "unrecognized"},
		{"call failure", mocks.NewMockProvider().WithError(errors.New("boom")), "call_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reasons []string
			sel := NewPromptSelector(tt.provider, "", names, nil, nil).
				WithFallbackObserver(func(r string) { reasons = append(reasons, r) })

			got, err := sel.Select(context.Background(), transcript, BusinessAnalyst)
			require.NoError(t, err)
			assert.Equal(t, SoftwareEngineer, got)
			assert.Equal(t, []string{tt.reason}, reasons)
		})
	}
}

func TestPromptSelector_InConversation(t *testing.T) {
	// 模型始终回答无效名称，对话按规则推进并被批准
	provider := mocks.NewMockProvider().WithResponse("nobody")
	fallbacks := 0
	sel := NewPromptSelector(provider, "", []string{BusinessAnalyst, SoftwareEngineer, ProductOwner}, nil, nil).
		WithFallbackObserver(func(string) { fallbacks++ })

	c, err := New(crew(scripted("plan"), scripted("code"), scripted(fixtures.ReviewApproved)), DefaultConfig(), nil,
		WithSelector(sel))
	require.NoError(t, err)

	res, err := c.Run(context.Background(), fixtures.CalculatorRequest)
	require.NoError(t, err)
	assert.Equal(t, ReasonApproved, res.Reason)
	assert.Equal(t, 3, fallbacks)
}

func TestPromptSelector_CustomTemplate(t *testing.T) {
	provider := mocks.NewScriptedProvider(BusinessAnalyst)
	sel := NewPromptSelector(provider, "", []string{BusinessAnalyst}, nil, nil).
		WithTemplate("who? {{last_agent}}")

	_, err := sel.Select(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Equal(t, "who? none", provider.LastRequest().Messages[0].Content)
}

// 规则选择器对任意对话记录都是确定的，且总是返回已知参与者。
func TestProperty_RuleSelectorDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	names := []string{BusinessAnalyst, SoftwareEngineer, ProductOwner}
	contents := []string{fixtures.AnalystPlan, fixtures.EngineerDelivery, fixtures.ReviewRejected, fixtures.ReviewGap, "ok"}
	sel := NewRuleSelector("")

	properties.Property("same transcript gives same speaker", prop.ForAll(
		func(authorIdx []int, contentIdx []int) bool {
			pairs := make([]string, 0, 2*len(authorIdx))
			for i, a := range authorIdx {
				c := contents[0]
				if i < len(contentIdx) {
					c = contents[contentIdx[i]]
				}
				pairs = append(pairs, names[a], c)
			}
			transcript := fixtures.Transcript(fixtures.CalculatorRequest, pairs...)

			first, err1 := sel.Select(context.Background(), transcript, "")
			second, err2 := sel.Select(context.Background(), transcript, "")
			if err1 != nil || err2 != nil || first != second {
				return false
			}
			for _, n := range names {
				if first == n {
					return true
				}
			}
			return false
		},
		gen.SliceOf(gen.IntRange(0, len(names)-1)),
		gen.SliceOf(gen.IntRange(0, len(contents)-1)),
	))

	properties.TestingRun(t)
}

// 审查者从不把请求转给自己。
func TestProperty_ReviewerNeverFollowsItself(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)
	sel := NewRuleSelector("")

	properties.Property("after ProductOwner comes SE or BA", prop.ForAll(
		func(review string) bool {
			transcript := fixtures.Transcript("req", ProductOwner, review)
			got, _ := sel.Select(context.Background(), transcript, ProductOwner)
			lower := strings.ToLower(review)
			wantBA := false
			for _, cue := range DefaultGapCues {
				wantBA = wantBA || strings.Contains(lower, cue)
			}
			if wantBA && !strings.Contains(review, DefaultApprovalToken) {
				return got == BusinessAnalyst
			}
			return got == SoftwareEngineer
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
