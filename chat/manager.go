package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcrew/llm"
	"github.com/BaSui01/agentcrew/llm/tools"
	"github.com/BaSui01/agentcrew/types"
)

// SessionObserver 在活跃会话数变化时被调用（用于指标）
type SessionObserver func(active int)

// Manager owns the live chat sessions of a process. All sessions share
// one provider, tool registry and history store.
type Manager struct {
	cfg      Config
	provider llm.Provider
	registry tools.ToolRegistry
	executor tools.ToolExecutor
	history  HistoryStore
	logger   *zap.Logger
	observer SessionObserver

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager 创建会话管理器
func NewManager(cfg Config, provider llm.Provider, registry tools.ToolRegistry, executor tools.ToolExecutor, history HistoryStore, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if history == nil {
		history = NewMemoryHistory(cfg.MaxHistory)
	}
	if executor == nil && registry != nil {
		executor = tools.NewDefaultExecutor(registry, logger)
	}
	return &Manager{
		cfg:      cfg,
		provider: provider,
		registry: registry,
		executor: executor,
		history:  history,
		logger:   logger.With(zap.String("component", "chat_manager")),
		sessions: make(map[string]*Session),
	}
}

// WithObserver 设置会话数观察者
func (m *Manager) WithObserver(obs SessionObserver) *Manager {
	m.observer = obs
	return m
}

// Session 返回 id 对应的会话，不存在时创建；id 为空时生成新 ID
func (m *Manager) Session(id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		s = NewSession(id, m.cfg, m.provider, m.registry, m.executor, m.history, m.logger)
		m.sessions[id] = s
	}
	n := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		m.notify(n)
	}
	return s
}

// Get 返回已存在的会话
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Send 是 Session(id).Send 的简写
func (m *Manager) Send(ctx context.Context, id, input string) (*Reply, error) {
	return m.Session(id).Send(ctx, input)
}

// Reset 清空会话历史但保留会话
func (m *Manager) Reset(ctx context.Context, id string) error {
	s, ok := m.Get(id)
	if !ok {
		return types.NewError(types.ErrNotFound, "chat session not found: "+id)
	}
	return s.Reset(ctx)
}

// Delete 删除会话及其历史
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return types.NewError(types.ErrNotFound, "chat session not found: "+id)
	}
	m.notify(n)
	return m.history.Clear(ctx, id)
}

// Len 返回活跃会话数
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep 移除空闲超过 idle 的会话，返回移除数量。
// 历史存储不受影响，Redis 中的历史由 TTL 过期。
func (m *Manager) Sweep(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)
	m.mu.Lock()
	removed := 0
	for id, s := range m.sessions {
		if s.LastUsed().Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	if removed > 0 {
		m.logger.Debug("swept idle chat sessions", zap.Int("removed", removed), zap.Int("active", n))
		m.notify(n)
	}
	return removed
}

// RunSweeper 周期性清理空闲会话，直到 ctx 结束
func (m *Manager) RunSweeper(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(idle)
		}
	}
}

func (m *Manager) notify(n int) {
	if m.observer != nil {
		m.observer(n)
	}
}
