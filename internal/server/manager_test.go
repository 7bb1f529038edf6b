package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentcrew/config"
)

func testHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	return mux
}

func localConfig() Config {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

func TestConfigFrom(t *testing.T) {
	sc := config.DefaultServerConfig()
	cfg := ConfigFrom(sc, 9000)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, sc.WriteTimeout, cfg.WriteTimeout)
	assert.Equal(t, sc.ShutdownTimeout, cfg.ShutdownTimeout)
	assert.Equal(t, 120*time.Second, cfg.IdleTimeout)

	cfg = ConfigFrom(config.ServerConfig{}, 1)
	assert.Equal(t, DefaultConfig().ReadTimeout, cfg.ReadTimeout)
}

func TestManager_StartShutdown(t *testing.T) {
	m := NewManager("api", testHandler(), localConfig(), zaptest.NewLogger(t))
	assert.False(t, m.IsRunning())

	require.NoError(t, m.Start())
	assert.True(t, m.IsRunning())
	assert.Error(t, m.Start())

	resp, err := http.Get("http://" + m.Addr() + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())
	assert.ErrorIs(t, m.Start(), ErrServerClosed)
}

func TestManager_RunStopsOnContextCancel(t *testing.T) {
	m := NewManager("metrics", testHandler(), localConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, m.IsRunning, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, m.IsRunning())
}

func TestManager_StartInvalidAddr(t *testing.T) {
	cfg := localConfig()
	cfg.Addr = "256.0.0.1:99999"
	m := NewManager("api", testHandler(), cfg, nil)
	assert.Error(t, m.Start())
	assert.Equal(t, cfg.Addr, m.Addr())
}
