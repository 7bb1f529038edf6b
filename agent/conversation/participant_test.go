package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcrew/llm"
	"github.com/BaSui01/agentcrew/llm/retry"
	"github.com/BaSui01/agentcrew/testutil/fixtures"
	"github.com/BaSui01/agentcrew/testutil/mocks"
	"github.com/BaSui01/agentcrew/types"
)

func fastRetry(n int) *retry.RetryPolicy {
	return &retry.RetryPolicy{MaxRetries: n, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestCompletionResponder_BuildsRequest(t *testing.T) {
	provider := mocks.NewScriptedProvider("the plan")
	var usageSeen llm.ChatUsage
	r := NewCompletionResponder(provider, ResponderConfig{Model: "gpt-4o", Temperature: 0.2, MaxTokens: 512}, nil).
		WithUsageObserver(func(name, _ string, u llm.ChatUsage, _ time.Duration) {
			assert.Equal(t, "mock", name)
			usageSeen = u
		})

	transcript := []types.Message{
		types.NewSystemMessage(ProductOwner, ProductOwnerPersona),
		types.NewUserMessage(fixtures.CalculatorRequest),
		types.NewAssistantMessage(SoftwareEngineer, fixtures.EngineerDelivery),
	}
	ctx := types.WithTraceID(context.Background(), "trace-1")
	out, err := r.Respond(ctx, BusinessAnalystPersona, transcript)
	require.NoError(t, err)
	assert.Equal(t, "the plan", out)
	assert.Equal(t, 30, usageSeen.TotalTokens)

	req := provider.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "gpt-4o", req.Model)
	assert.Equal(t, "trace-1", req.TraceID)
	assert.Equal(t, 512, req.MaxTokens)
	require.Len(t, req.Messages, 4)
	assert.Equal(t, llm.Message{Role: llm.RoleSystem, Content: BusinessAnalystPersona}, req.Messages[0])
	assert.Equal(t, llm.RoleSystem, req.Messages[1].Role)
	assert.Equal(t, ProductOwner, req.Messages[1].Name)
	assert.Equal(t, llm.RoleUser, req.Messages[2].Role)
	assert.Equal(t, types.AuthorUser, req.Messages[2].Name)
	assert.Equal(t, llm.RoleAssistant, req.Messages[3].Role)
	assert.Equal(t, SoftwareEngineer, req.Messages[3].Name)
}

func TestCompletionResponder_RetriesTransientErrors(t *testing.T) {
	transient := &llm.Error{Code: llm.ErrRateLimited, Message: "slow down", Retryable: true}
	provider := mocks.NewMockProvider().WithScript(
		mocks.Reply{Err: transient},
		mocks.Reply{Content: "second try"},
	)
	r := NewCompletionResponder(provider, ResponderConfig{Retry: fastRetry(2)}, nil)

	out, err := r.Respond(context.Background(), "persona", nil)
	require.NoError(t, err)
	assert.Equal(t, "second try", out)
	assert.Equal(t, 2, provider.CallCount())
}

func TestCompletionResponder_DoesNotRetryPermanentErrors(t *testing.T) {
	permanent := &llm.Error{Code: llm.ErrUnauthorized, Message: "bad key"}
	provider := mocks.NewMockProvider().WithScript(mocks.Reply{Err: permanent}, mocks.Reply{Content: "never"})
	r := NewCompletionResponder(provider, ResponderConfig{Retry: fastRetry(3)}, nil)

	_, err := r.Respond(context.Background(), "persona", nil)
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, provider.CallCount())
}

func TestCompletionResponder_NoChoices(t *testing.T) {
	provider := mocks.NewMockProvider().WithCompletionFunc(func(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
		return fixtures.EmptyResponse(), nil
	})
	r := NewCompletionResponder(provider, ResponderConfig{}, nil)

	_, err := r.Respond(context.Background(), "persona", nil)
	lerr, ok := llm.AsError(err)
	require.True(t, ok)
	assert.Equal(t, llm.ErrMalformedResponse, lerr.Code)
}

func TestCompletionResponder_Timeout(t *testing.T) {
	provider := mocks.NewMockProvider().WithDelay(time.Second)
	r := NewCompletionResponder(provider, ResponderConfig{Timeout: 10 * time.Millisecond}, nil)

	start := time.Now()
	_, err := r.Respond(context.Background(), "persona", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestParticipant_Respond(t *testing.T) {
	p := NewParticipant(SoftwareEngineer, SoftwareEngineerPersona, scripted("code"))
	msg, err := p.Respond(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, SoftwareEngineer, msg.Author)
	assert.Equal(t, types.RoleAssistant, msg.Role)
	assert.Equal(t, "code", msg.Content)
	assert.NotEmpty(t, msg.ID)

	_, err = NewParticipant("Nobody", "", nil).Respond(context.Background(), nil)
	assert.ErrorIs(t, err, ErrCompletionFailure)

	failing := NewParticipant(ProductOwner, "", ResponderFunc(func(context.Context, string, []types.Message) (string, error) {
		return "", errors.New("down")
	}))
	_, err = failing.Respond(context.Background(), nil)
	assert.ErrorIs(t, err, ErrCompletionFailure)
	assert.Equal(t, types.ErrCompletionFailure, types.GetErrorCode(err))
}

func TestDefaultParticipants(t *testing.T) {
	ps := DefaultParticipants(scripted("x"), "")
	require.Len(t, ps, 3)
	assert.Equal(t, BusinessAnalyst, ps[0].Name())
	assert.Equal(t, SoftwareEngineer, ps[1].Name())
	assert.Equal(t, ProductOwner, ps[2].Name())
	assert.Contains(t, ps[2].Persona(), `responding "%APPR%"`)
	assert.NotContains(t, ps[2].Persona(), "{{token}}")

	custom := DefaultParticipants(scripted("x"), "SHIPIT")
	assert.Contains(t, custom[2].Persona(), "the token SHIPIT")
}
