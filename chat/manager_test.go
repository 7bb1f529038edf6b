package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcrew/testutil/mocks"
	"github.com/BaSui01/agentcrew/types"
)

func TestManager_SessionLifecycle(t *testing.T) {
	var mu sync.Mutex
	var observed []int
	m := NewManager(DefaultConfig(), mocks.NewMockProvider().WithResponse("pong"), nil, nil, nil, nil).
		WithObserver(func(n int) {
			mu.Lock()
			observed = append(observed, n)
			mu.Unlock()
		})

	reply, err := m.Send(context.Background(), "", "ping")
	require.NoError(t, err)
	require.NotEmpty(t, reply.SessionID)
	assert.Equal(t, "pong", reply.Content)

	s, ok := m.Get(reply.SessionID)
	require.True(t, ok)
	assert.Same(t, s, m.Session(reply.SessionID))
	assert.Equal(t, 1, m.Len())

	m.Session("named")
	assert.Equal(t, 2, m.Len())

	require.NoError(t, m.Reset(context.Background(), reply.SessionID))
	hist, _ := s.History(context.Background())
	assert.Empty(t, hist)

	require.NoError(t, m.Delete(context.Background(), "named"))
	assert.Equal(t, 1, m.Len())

	err = m.Delete(context.Background(), "named")
	assert.True(t, types.IsErrorCode(err, types.ErrNotFound))
	err = m.Reset(context.Background(), "missing")
	assert.True(t, types.IsErrorCode(err, types.ErrNotFound))

	mu.Lock()
	assert.Equal(t, []int{1, 2, 1}, observed)
	mu.Unlock()
}

func TestManager_DeleteClearsHistory(t *testing.T) {
	h := NewMemoryHistory(0)
	m := NewManager(DefaultConfig(), mocks.NewMockProvider(), nil, nil, h, nil)

	_, err := m.Send(context.Background(), "s", "hello")
	require.NoError(t, err)
	require.NoError(t, m.Delete(context.Background(), "s"))

	got, _ := h.Load(context.Background(), "s")
	assert.Empty(t, got)
}

func TestManager_Sweep(t *testing.T) {
	m := NewManager(DefaultConfig(), mocks.NewMockProvider(), nil, nil, nil, nil)
	m.Session("old")
	time.Sleep(20 * time.Millisecond)
	m.Session("fresh")

	assert.Equal(t, 1, m.Sweep(10*time.Millisecond))
	_, ok := m.Get("old")
	assert.False(t, ok)
	_, ok = m.Get("fresh")
	assert.True(t, ok)
}

func TestManager_ConcurrentSendsSerialized(t *testing.T) {
	provider := mocks.NewMockProvider().WithDelay(5 * time.Millisecond)
	m := NewManager(DefaultConfig(), provider, nil, nil, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Send(context.Background(), "shared", "hi")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	s, _ := m.Get("shared")
	hist, err := s.History(context.Background())
	require.NoError(t, err)
	assert.Len(t, hist, 10)
	// 串行执行时第 n 次调用看到 2(n-1) 条历史
	for i, call := range provider.Calls() {
		assert.Len(t, call.Request.Messages, 2+2*i)
	}
}
