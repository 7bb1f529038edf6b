package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcrew/config"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

type lookupCounter struct {
	mu     sync.Mutex
	lookup map[string][2]int
}

func (c *lookupCounter) RecordCacheLookup(ns string, hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lookup == nil {
		c.lookup = map[string][2]int{}
	}
	v := c.lookup[ns]
	if hit {
		v[0]++
	} else {
		v[1]++
	}
	c.lookup[ns] = v
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := DefaultConfig()
	cfg.Addr = mr.Addr()
	cfg.DefaultTTL = time.Minute
	cfg.HealthCheckInterval = 0

	manager, err := NewManager(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })
	return mr, manager
}

func TestNewManager_ConnectionFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:1"
	cfg.MaxRetries = -1
	_, err := NewManager(cfg, nil)
	assert.Error(t, err)
}

func TestConfigFrom(t *testing.T) {
	c := ConfigFrom(config.RedisConfig{Addr: "redis:6380", Password: "pw", DB: 2, PoolSize: 20, TLSEnabled: true})
	assert.Equal(t, "redis:6380", c.Addr)
	assert.Equal(t, "pw", c.Password)
	assert.Equal(t, 2, c.DB)
	assert.Equal(t, 20, c.PoolSize)
	assert.Equal(t, 2, c.MinIdleConns)
	assert.True(t, c.TLSEnabled)
	assert.Equal(t, "agentcrew:", c.KeyPrefix)
}

func TestManager_SetGet(t *testing.T) {
	mr, m := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "geo:seattle", "47.6,-122.3", 0))
	v, err := m.Get(ctx, "geo:seattle")
	require.NoError(t, err)
	assert.Equal(t, "47.6,-122.3", v)

	// 键前缀与默认 TTL
	assert.True(t, mr.Exists("agentcrew:geo:seattle"))
	assert.Equal(t, time.Minute, mr.TTL("agentcrew:geo:seattle"))

	_, err = m.Get(ctx, "geo:nowhere")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.True(t, IsCacheMiss(err))
}

func TestManager_JSON(t *testing.T) {
	_, m := setupTestRedis(t)
	ctx := context.Background()

	type point struct{ Lat, Lon float64 }
	require.NoError(t, m.SetJSON(ctx, "geo:paris", point{48.85, 2.35}, time.Hour))

	var got point
	require.NoError(t, m.GetJSON(ctx, "geo:paris", &got))
	assert.Equal(t, point{48.85, 2.35}, got)

	require.NoError(t, m.Set(ctx, "geo:broken", "{", 0))
	assert.Error(t, m.GetJSON(ctx, "geo:broken", &got))
}

func TestManager_DeleteExistsExpire(t *testing.T) {
	mr, m := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", "1", 0))
	require.NoError(t, m.Set(ctx, "b", "2", 0))
	n, err := m.Exists(ctx, "a", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, m.Expire(ctx, "a", 10*time.Second))
	assert.Equal(t, 10*time.Second, mr.TTL("agentcrew:a"))

	require.NoError(t, m.Delete(ctx, "a", "b"))
	require.NoError(t, m.Delete(ctx))
	n, err = m.Exists(ctx, "a", "b")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestManager_ListOps(t *testing.T) {
	mr, m := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, m.Append(ctx, "chat:s1", time.Hour, "m1", "m2"))
	require.NoError(t, m.Append(ctx, "chat:s1", time.Hour, "m3"))
	require.NoError(t, m.Append(ctx, "chat:s1", time.Hour))
	assert.Equal(t, time.Hour, mr.TTL("agentcrew:chat:s1"))

	all, err := m.Range(ctx, "chat:s1", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2", "m3"}, all)

	require.NoError(t, m.Trim(ctx, "chat:s1", 2))
	all, err = m.Range(ctx, "chat:s1", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m3"}, all)

	require.NoError(t, m.Trim(ctx, "chat:s1", 0))
	all, err = m.Range(ctx, "chat:s1", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestManager_StatsAndRecorder(t *testing.T) {
	_, m := setupTestRedis(t)
	rec := &lookupCounter{}
	m.WithRecorder(rec)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "geo:x", "1", 0))
	_, _ = m.Get(ctx, "geo:x")
	_, _ = m.Get(ctx, "geo:x")
	_, _ = m.Get(ctx, "geo:y")

	stats, err := m.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 1e-9)
	assert.Equal(t, int64(1), stats.Keys)
	assert.Equal(t, [2]int{2, 1}, rec.lookup["geo"])
}

func TestManager_Closed(t *testing.T) {
	_, m := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, m.Ping(ctx))
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	assert.ErrorIs(t, m.Ping(ctx), ErrClosed)
	_, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Set(ctx, "k", "v", 0), ErrClosed)
	assert.ErrorIs(t, m.Append(ctx, "k", 0, "v"), ErrClosed)
	_, err = m.GetStats(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNamespaceOf(t *testing.T) {
	assert.Equal(t, "geo", namespaceOf("geo:seattle"))
	assert.Equal(t, "plain", namespaceOf("plain"))
	assert.Equal(t, "", namespaceOf(":x"))
}
