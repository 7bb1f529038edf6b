package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcrew/llm"
	"github.com/BaSui01/agentcrew/testutil"
	"github.com/BaSui01/agentcrew/testutil/fixtures"
	"github.com/BaSui01/agentcrew/types"
)

// scripted 返回按顺序给出 replies 的 Responder；用尽后重复最后一条
func scripted(replies ...string) Responder {
	var mu sync.Mutex
	i := 0
	return ResponderFunc(func(_ context.Context, _ string, _ []types.Message) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		r := replies[min(i, len(replies)-1)]
		i++
		return r, nil
	})
}

func crew(ba, se, po Responder) []Participant {
	return []Participant{
		NewParticipant(BusinessAnalyst, BusinessAnalystPersona, ba),
		NewParticipant(SoftwareEngineer, SoftwareEngineerPersona, se),
		NewParticipant(ProductOwner, ProductOwnerPersona, po),
	}
}

type recordingMetrics struct {
	mu           sync.Mutex
	cycles       []string
	failed       int
	terminations []string
}

func (m *recordingMetrics) RecordCycle(participant string, _ time.Duration, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles = append(m.cycles, participant)
	if !ok {
		m.failed++
	}
}

func (m *recordingMetrics) RecordTermination(reason string, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminations = append(m.terminations, reason)
}

type lenCounter struct{}

func (lenCounter) CountTokens(s string) int { return len(s) }

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, DefaultConfig(), nil)
	assert.ErrorIs(t, err, ErrNoParticipants)

	dup := []Participant{
		NewParticipant("A", "", scripted("x")),
		NewParticipant("A", "", scripted("y")),
	}
	_, err = New(dup, DefaultConfig(), nil)
	assert.ErrorIs(t, err, ErrDuplicateName)

	c, err := New(crew(scripted("a"), scripted("b"), scripted("c")), Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxIterations, c.cfg.MaxIterations)
	assert.Equal(t, DefaultApprovalToken, c.cfg.ApprovalToken)
	assert.Equal(t, []string{BusinessAnalyst, SoftwareEngineer, ProductOwner}, c.Participants())
}

func TestRun_ApprovedOnFirstReview(t *testing.T) {
	metrics := &recordingMetrics{}
	var observed []types.Message
	c, err := New(
		crew(scripted(fixtures.AnalystPlan), scripted(fixtures.EngineerDelivery), scripted(fixtures.ReviewApproved)),
		DefaultConfig(), nil,
		WithMetrics(metrics),
		WithObserver(func(msg types.Message, _ int) { observed = append(observed, msg) }),
	)
	require.NoError(t, err)

	res, err := c.Run(testutil.TestContext(t), fixtures.CalculatorRequest)
	require.NoError(t, err)

	assert.Equal(t, ReasonApproved, res.Reason)
	assert.True(t, res.Approved())
	assert.Equal(t, 3, res.Iterations)
	testutil.AssertAuthors(t, []string{BusinessAnalyst, SoftwareEngineer, ProductOwner}, res.Messages)
	testutil.AssertMessagesEqual(t, res.Messages, observed)
	assert.Equal(t, []string{BusinessAnalyst, SoftwareEngineer, ProductOwner}, metrics.cycles)
	assert.Equal(t, []string{"approved"}, metrics.terminations)
	assert.Empty(t, res.Error)
	assert.NotEmpty(t, res.ID)
	assert.False(t, res.EndedAt.Before(res.StartedAt))
}

func TestRun_MetricsFanOut(t *testing.T) {
	first, second, third := &recordingMetrics{}, &recordingMetrics{}, &recordingMetrics{}
	c, err := New(
		crew(scripted("plan"), scripted("code"), scripted("ok %APPR%")),
		DefaultConfig(), nil,
		WithMetrics(first), WithMetrics(second), WithMetrics(third),
	)
	require.NoError(t, err)

	_, err = c.Run(testutil.TestContext(t), "build")
	require.NoError(t, err)
	for _, m := range []*recordingMetrics{first, second, third} {
		assert.Len(t, m.cycles, 3)
		assert.Equal(t, []string{"approved"}, m.terminations)
	}
}

func TestRun_TranscriptSeeding(t *testing.T) {
	participants := crew(scripted("plan"), scripted("code"), scripted(DefaultApprovalToken))

	t.Run("with personas", func(t *testing.T) {
		c, err := New(participants, DefaultConfig(), nil)
		require.NoError(t, err)
		res, err := c.Run(context.Background(), "make an app")
		require.NoError(t, err)

		require.Len(t, res.Transcript, 4+3)
		for i, name := range []string{BusinessAnalyst, SoftwareEngineer, ProductOwner} {
			assert.Equal(t, types.RoleSystem, res.Transcript[i].Role)
			assert.Equal(t, name, res.Transcript[i].Author)
		}
		assert.Equal(t, types.RoleUser, res.Transcript[3].Role)
		assert.Equal(t, types.AuthorUser, res.Transcript[3].Author)
		assert.Equal(t, "make an app", res.Transcript[3].Content)
		testutil.AssertMessagesEqual(t, res.Transcript[4:], res.Messages)
	})

	t.Run("without personas", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.SeedPersonas = false
		c, err := New(participants, cfg, nil)
		require.NoError(t, err)
		res, err := c.Run(context.Background(), "make an app")
		require.NoError(t, err)
		require.Len(t, res.Transcript, 1+3)
		assert.Equal(t, types.RoleUser, res.Transcript[0].Role)
	})
}

func TestRun_NeverApprovedStopsAtBound(t *testing.T) {
	c, err := New(
		crew(scripted("plan"), scripted("code v2"), scripted("Still buggy, please fix the code.")),
		DefaultConfig(), nil,
	)
	require.NoError(t, err)

	res, err := c.Run(context.Background(), fixtures.CalculatorRequest)
	require.NoError(t, err)

	assert.Equal(t, ReasonMaxIterations, res.Reason)
	assert.Equal(t, 20, res.Iterations)
	require.Len(t, res.Messages, 20)

	// BA, SE, PO, 之后 SE/PO 交替
	assert.Equal(t, BusinessAnalyst, res.Messages[0].Author)
	for i := 1; i < 20; i++ {
		want := SoftwareEngineer
		if i%2 == 0 {
			want = ProductOwner
		}
		assert.Equal(t, want, res.Messages[i].Author, "turn %d", i)
	}
}

func TestRun_WithMaxIterationsOverridesBound(t *testing.T) {
	team, err := NewTeam(
		crew(scripted("plan"), scripted("code"), scripted("Still buggy, please fix the code.")),
		DefaultConfig(), nil,
	)
	require.NoError(t, err)

	res, err := team.Run(context.Background(), fixtures.CalculatorRequest, WithMaxIterations(4))
	require.NoError(t, err)
	assert.Equal(t, ReasonMaxIterations, res.Reason)
	assert.Equal(t, 4, res.Iterations)
	assert.Equal(t, 20, team.Config().MaxIterations)
}

func TestRun_ReviewRoutesGapToAnalyst(t *testing.T) {
	c, err := New(
		crew(scripted("plan v1", "plan v2"), scripted("code v1", "code v2"), scripted(fixtures.ReviewGap, fixtures.ReviewApproved)),
		DefaultConfig(), nil,
	)
	require.NoError(t, err)

	res, err := c.Run(context.Background(), fixtures.CalculatorRequest)
	require.NoError(t, err)

	assert.Equal(t, ReasonApproved, res.Reason)
	testutil.AssertAuthors(t, []string{
		BusinessAnalyst, SoftwareEngineer, ProductOwner,
		BusinessAnalyst, SoftwareEngineer, ProductOwner,
	}, res.Messages)
}

func TestRun_CompletionFailureKeepsPartialTranscript(t *testing.T) {
	boom := &llm.Error{Code: llm.ErrUpstreamError, Message: "unreachable", Retryable: true}
	metrics := &recordingMetrics{}
	failing := ResponderFunc(func(context.Context, string, []types.Message) (string, error) {
		return "", boom
	})
	c, err := New(crew(scripted("plan"), failing, scripted("unused")), DefaultConfig(), nil, WithMetrics(metrics))
	require.NoError(t, err)

	res, err := c.Run(context.Background(), fixtures.CalculatorRequest)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCompletionFailure)
	assert.ErrorIs(t, err, boom)
	assert.True(t, types.IsRetryable(err))

	require.NotNil(t, res)
	assert.Equal(t, ReasonError, res.Reason)
	assert.Equal(t, 1, res.Iterations)
	testutil.AssertAuthors(t, []string{BusinessAnalyst}, res.Messages)
	assert.Contains(t, res.Error, "SoftwareEngineer")
	assert.Equal(t, 1, metrics.failed)
	assert.Equal(t, []string{"error"}, metrics.terminations)
}

func TestRun_EmptyCompletionIsFailure(t *testing.T) {
	c, err := New(crew(scripted("   "), scripted("x"), scripted("y")), DefaultConfig(), nil)
	require.NoError(t, err)

	res, err := c.Run(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrCompletionFailure)
	assert.Empty(t, res.Messages)
	assert.Equal(t, 0, res.Iterations)
}

func TestRun_Cancellation(t *testing.T) {
	t.Run("before first cycle", func(t *testing.T) {
		c, err := New(crew(scripted("a"), scripted("b"), scripted("c")), DefaultConfig(), nil)
		require.NoError(t, err)

		res, err := c.Run(testutil.CancelledContext(), "anything")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, ReasonCancelled, res.Reason)
		assert.Empty(t, res.Messages)
	})

	t.Run("between cycles", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		c, err := New(
			crew(scripted("plan"), scripted("code"), scripted("fix it")),
			DefaultConfig(), nil,
			WithObserver(func(_ types.Message, iteration int) {
				if iteration == 2 {
					cancel()
				}
			}),
		)
		require.NoError(t, err)

		res, err := c.Run(ctx, "anything")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, ReasonCancelled, res.Reason)
		assert.Equal(t, 2, res.Iterations)
	})

	t.Run("during completion", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		blocking := ResponderFunc(func(ctx context.Context, _ string, _ []types.Message) (string, error) {
			cancel()
			<-ctx.Done()
			return "", ctx.Err()
		})
		c, err := New(crew(blocking, scripted("b"), scripted("c")), DefaultConfig(), nil)
		require.NoError(t, err)

		res, err := c.Run(ctx, "anything")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, ReasonCancelled, res.Reason)
		assert.Empty(t, res.Messages)
	})
}

func TestRun_RejectsEmptyInput(t *testing.T) {
	c, err := New(crew(scripted("a"), scripted("b"), scripted("c")), DefaultConfig(), nil)
	require.NoError(t, err)

	res, err := c.Run(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Equal(t, ReasonError, res.Reason)
}

func TestRun_BusyWhileRunning(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	slow := ResponderFunc(func(context.Context, string, []types.Message) (string, error) {
		close(entered)
		<-release
		return DefaultApprovalToken, nil
	})
	c, err := New([]Participant{NewParticipant(BusinessAnalyst, "", slow)}, DefaultConfig(), nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := c.Run(context.Background(), "first")
		done <- err
	}()
	<-entered

	_, err = c.Run(context.Background(), "second")
	assert.ErrorIs(t, err, ErrConversationBusy)

	close(release)
	assert.NoError(t, <-done)
}

func TestRun_TokenCounter(t *testing.T) {
	c, err := New(crew(scripted("abc"), scripted("de"), scripted(DefaultApprovalToken)), DefaultConfig(), nil,
		WithTokenCounter(lenCounter{}))
	require.NoError(t, err)

	res, err := c.Run(context.Background(), "ignored by the counter")
	require.NoError(t, err)
	assert.Equal(t, 3+2+len(DefaultApprovalToken), res.Tokens)
}

func TestRun_UnknownSpeakerFallsBackToRules(t *testing.T) {
	sel := selectorFunc(func(context.Context, []types.Message, string) (string, error) {
		return "Ghost", nil
	})
	var fallbacks []string
	c, err := New(crew(scripted("plan"), scripted("code"), scripted(DefaultApprovalToken)), DefaultConfig(), nil,
		WithSelector(sel),
		WithSelectionFallback(func(reason string) { fallbacks = append(fallbacks, reason) }))
	require.NoError(t, err)

	res, err := c.Run(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, ReasonApproved, res.Reason)
	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, []string{BusinessAnalyst, SoftwareEngineer, ProductOwner},
		[]string{res.Messages[0].Author, res.Messages[1].Author, res.Messages[2].Author})
	assert.Equal(t, []string{"unknown_participant", "unknown_participant", "unknown_participant"}, fallbacks)
}

func TestRun_AmbiguousSelectionFallsBackToFirstParticipant(t *testing.T) {
	sel := selectorFunc(func(context.Context, []types.Message, string) (string, error) {
		return "", selectionAmbiguity("maybe", nil)
	})
	participants := []Participant{
		NewParticipant("Writer", "writes", scripted("draft")),
		NewParticipant("Editor", "edits", scripted(DefaultApprovalToken)),
	}
	cfg := DefaultConfig()
	cfg.MaxIterations = 2
	c, err := New(participants, cfg, nil, WithSelector(sel))
	require.NoError(t, err)

	res, err := c.Run(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, ReasonMaxIterations, res.Reason)
	for _, m := range res.Messages {
		assert.Equal(t, "Writer", m.Author)
	}
}

type neverStop struct{}

func (neverStop) Decide([]types.Message, int, int) (Reason, bool) { return "", false }

func TestRun_BoundEnforcedWithCustomEvaluator(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cfg := DefaultConfig()
	cfg.MaxIterations = 3
	c, err := New(crew(scripted("a"), scripted("b"), scripted(DefaultApprovalToken)), cfg, nil,
		WithEvaluator(neverStop{}))
	require.NoError(t, err)

	res, err := c.Run(ctx, "anything")
	require.NoError(t, err)
	assert.Equal(t, ReasonMaxIterations, res.Reason)
	assert.Equal(t, 3, res.Iterations)
	assert.Len(t, res.Messages, 3)
}

func TestRun_ParticipantSeesFullTranscript(t *testing.T) {
	var seen [][]types.Message
	var personas []string
	spy := ResponderFunc(func(_ context.Context, persona string, transcript []types.Message) (string, error) {
		seen = append(seen, transcript)
		personas = append(personas, persona)
		return fmt.Sprintf("turn %d", len(seen)), nil
	})
	cfg := DefaultConfig()
	cfg.MaxIterations = 3
	c, err := New(crew(spy, spy, spy), cfg, nil)
	require.NoError(t, err)

	_, err = c.Run(context.Background(), "req")
	require.NoError(t, err)

	require.Len(t, seen, 3)
	assert.Len(t, seen[0], 4)
	assert.Len(t, seen[1], 5)
	assert.Len(t, seen[2], 6)
	assert.Equal(t, "turn 1", seen[2][4].Content)
	assert.Equal(t, []string{BusinessAnalystPersona, SoftwareEngineerPersona, ProductOwnerPersona}, personas)
}

func TestTeam_ConcurrentRuns(t *testing.T) {
	team, err := NewTeam(crew(scripted("plan"), scripted("code"), scripted(DefaultApprovalToken)), DefaultConfig(), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*Result, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = team.Run(context.Background(), fmt.Sprintf("request %d", i))
		}(i)
	}
	wg.Wait()

	ids := map[string]bool{}
	for i, res := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, ReasonApproved, res.Reason)
		assert.Equal(t, fmt.Sprintf("request %d", i), res.Input)
		ids[res.ID] = true
	}
	assert.Len(t, ids, 8)
}

func TestTeam_RejectsInvalidCrew(t *testing.T) {
	_, err := NewTeam(nil, DefaultConfig(), nil)
	assert.True(t, errors.Is(err, ErrNoParticipants))
}

type selectorFunc func(ctx context.Context, transcript []types.Message, lastSpeaker string) (string, error)

func (f selectorFunc) Select(ctx context.Context, transcript []types.Message, lastSpeaker string) (string, error) {
	return f(ctx, transcript, lastSpeaker)
}
