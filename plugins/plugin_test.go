package plugins

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcrew/config"
	"github.com/BaSui01/agentcrew/llm/retry"
	"github.com/BaSui01/agentcrew/llm/tools"
	"github.com/BaSui01/agentcrew/testutil/mocks"
)

// 2024-01-03 是星期三
var fixedNow = time.Date(2024, 1, 3, 14, 30, 5, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func fastPolicy() *retry.RetryPolicy {
	return &retry.RetryPolicy{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func testFetcher() *fetcher {
	return newFetcher(http.DefaultClient, fastPolicy(), zap.NewNop())
}

func callTool(t *testing.T, r *tools.DefaultRegistry, name string, args any) string {
	t.Helper()
	fn, _, err := r.Get(name)
	require.NoError(t, err)

	raw, err := json.Marshal(args)
	require.NoError(t, err)
	out, err := fn(context.Background(), raw)
	require.NoError(t, err)

	var s string
	if json.Unmarshal(out, &s) == nil {
		return s
	}
	return string(out)
}

func TestDefault_RegistersExpectedTools(t *testing.T) {
	r := tools.NewDefaultRegistry(nil)
	ps := Default(Options{Config: config.DefaultPluginsConfig(), Clock: fixedClock})
	require.NoError(t, RegisterAll(r, ps...))

	for _, name := range []string{"current_time", "get_date", "get_year", "get_month", "get_day_of_week",
		"get_location", "get_weather_forecast", "get_forecast_for_location"} {
		assert.True(t, r.Has(name), name)
	}
	// 未配置搜索与图像服务时不注册
	assert.False(t, r.Has("query_handbook"))
	assert.False(t, r.Has("generate_image"))

	cfg := config.DefaultPluginsConfig()
	cfg.Search.Endpoint = "https://search.example"
	ps = Default(Options{
		Config:   cfg,
		Embedder: mocks.NewMockEmbedder(0.1),
		Images:   mocks.NewMockImageProvider("https://img.example/a.png"),
	})
	r = tools.NewDefaultRegistry(nil)
	require.NoError(t, RegisterAll(r, ps...))
	assert.True(t, r.Has("query_handbook"))
	assert.True(t, r.Has("generate_image"))

	// 重复注册报错并带插件名
	err := RegisterAll(r, ps[0])
	assert.ErrorContains(t, err, "register plugin time")
}

func TestFetcher_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var out struct{ OK bool }
	require.NoError(t, testFetcher().getJSON(context.Background(), srv.URL, nil, &out))
	assert.True(t, out.OK)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetcher_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "bad coordinates", http.StatusBadRequest)
	}))
	defer srv.Close()

	var out map[string]any
	err := testFetcher().getJSON(context.Background(), srv.URL, nil, &out)
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusBadRequest, serr.StatusCode)
	assert.Contains(t, serr.Body, "bad coordinates")
	assert.Equal(t, int32(1), calls.Load())
}
