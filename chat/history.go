package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcrew/config"
	"github.com/BaSui01/agentcrew/internal/cache"
	"github.com/BaSui01/agentcrew/llm"
)

// HistoryStore keeps the user/assistant exchange of each session.
// Tool-call round trips are not stored.
type HistoryStore interface {
	Load(ctx context.Context, sessionID string) ([]llm.Message, error)
	Append(ctx context.Context, sessionID string, msgs ...llm.Message) error
	Clear(ctx context.Context, sessionID string) error
}

// NewHistoryStore selects the backend named by cfg.HistoryBackend.
func NewHistoryStore(cfg config.ChatConfig, cm *cache.Manager, maxMessages int, logger *zap.Logger) (HistoryStore, error) {
	switch cfg.HistoryBackend {
	case "", "memory":
		return NewMemoryHistory(maxMessages), nil
	case "redis":
		if cm == nil {
			return nil, fmt.Errorf("redis history backend requires a cache manager")
		}
		return NewRedisHistory(cm, cfg.HistoryTTL, maxMessages, logger), nil
	default:
		return nil, fmt.Errorf("unknown chat history backend %q", cfg.HistoryBackend)
	}
}

// =============================================================================
// 🧠 内存历史
// =============================================================================

// MemoryHistory is a process-local HistoryStore.
type MemoryHistory struct {
	mu   sync.RWMutex
	msgs map[string][]llm.Message
	max  int
}

// NewMemoryHistory keeps at most maxMessages per session; <= 0 means unbounded.
func NewMemoryHistory(maxMessages int) *MemoryHistory {
	return &MemoryHistory{msgs: make(map[string][]llm.Message), max: maxMessages}
}

func (h *MemoryHistory) Load(_ context.Context, sessionID string) ([]llm.Message, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]llm.Message(nil), h.msgs[sessionID]...), nil
}

func (h *MemoryHistory) Append(_ context.Context, sessionID string, msgs ...llm.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	all := append(h.msgs[sessionID], msgs...)
	if h.max > 0 && len(all) > h.max {
		all = append([]llm.Message(nil), all[len(all)-h.max:]...)
	}
	h.msgs[sessionID] = all
	return nil
}

func (h *MemoryHistory) Clear(_ context.Context, sessionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.msgs, sessionID)
	return nil
}

// =============================================================================
// 🗃️ Redis 历史
// =============================================================================

// RedisHistory stores one JSON-encoded message per list element under
// chat:<session>, refreshing the TTL on every append.
type RedisHistory struct {
	cache  *cache.Manager
	ttl    time.Duration
	max    int64
	logger *zap.Logger
}

// NewRedisHistory creates a Redis-backed HistoryStore.
func NewRedisHistory(cm *cache.Manager, ttl time.Duration, maxMessages int, logger *zap.Logger) *RedisHistory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisHistory{
		cache:  cm,
		ttl:    ttl,
		max:    int64(maxMessages),
		logger: logger.With(zap.String("component", "chat_history")),
	}
}

func historyKey(sessionID string) string { return "chat:" + sessionID }

func (h *RedisHistory) Load(ctx context.Context, sessionID string) ([]llm.Message, error) {
	raw, err := h.cache.Range(ctx, historyKey(sessionID), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("load chat history: %w", err)
	}
	out := make([]llm.Message, 0, len(raw))
	for _, r := range raw {
		var m llm.Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			h.logger.Warn("skipping corrupt history entry", zap.String("session_id", sessionID), zap.Error(err))
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (h *RedisHistory) Append(ctx context.Context, sessionID string, msgs ...llm.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	values := make([]string, len(msgs))
	for i, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode chat message: %w", err)
		}
		values[i] = string(b)
	}
	key := historyKey(sessionID)
	if err := h.cache.Append(ctx, key, h.ttl, values...); err != nil {
		return fmt.Errorf("append chat history: %w", err)
	}
	if h.max > 0 {
		if err := h.cache.Trim(ctx, key, h.max); err != nil {
			return fmt.Errorf("trim chat history: %w", err)
		}
	}
	return nil
}

func (h *RedisHistory) Clear(ctx context.Context, sessionID string) error {
	if err := h.cache.Delete(ctx, historyKey(sessionID)); err != nil {
		return fmt.Errorf("clear chat history: %w", err)
	}
	return nil
}
