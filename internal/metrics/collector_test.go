package metrics

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcrew/llm"
)

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollectorWithRegistry("test", reg, nil), reg
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordHTTPRequest("POST", "/api/v1/conversations", 200, 100*time.Millisecond, 2048)
	c.RecordHTTPRequest("POST", "/api/v1/conversations", 201, 50*time.Millisecond, 1024)
	c.RecordHTTPRequest("GET", "/api/v1/conversations/{id}", 404, time.Millisecond, 10)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/api/v1/conversations", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/api/v1/conversations/{id}", "4xx")))
}

func TestCollector_ObserveUsage(t *testing.T) {
	c, _ := newTestCollector(t)

	c.ObserveUsage("azure-openai", "gpt-4o", llm.ChatUsage{PromptTokens: 100, CompletionTokens: 40, TotalTokens: 140}, time.Second)
	c.RecordLLMRequest("azure-openai", "gpt-4o", "error", time.Second, 0, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.llmRequestsTotal.WithLabelValues("azure-openai", "gpt-4o", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.llmRequestsTotal.WithLabelValues("azure-openai", "gpt-4o", "error")))
	assert.Equal(t, 100.0, testutil.ToFloat64(c.llmTokensUsed.WithLabelValues("azure-openai", "gpt-4o", "prompt")))
	assert.Equal(t, 40.0, testutil.ToFloat64(c.llmTokensUsed.WithLabelValues("azure-openai", "gpt-4o", "completion")))
}

func TestCollector_ConversationMetrics(t *testing.T) {
	c, reg := newTestCollector(t)

	c.RecordCycle("BusinessAnalyst", time.Second, true)
	c.RecordCycle("SoftwareEngineer", 2*time.Second, true)
	c.RecordCycle("ProductOwner", time.Second, false)
	c.RecordTermination("approved", 3)
	c.RecordSelectionFallback("unknown_name")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.cyclesTotal.WithLabelValues("ProductOwner", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.terminationsTotal.WithLabelValues("approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.selectionFallbacks.WithLabelValues("unknown_name")))

	err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP test_conversation_terminations_total Finished conversations by termination reason
# TYPE test_conversation_terminations_total counter
test_conversation_terminations_total{reason="approved"} 1
`), "test_conversation_terminations_total")
	require.NoError(t, err)
}

func TestCollector_ToolAndChat(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordToolCall("get_weather_forecast", true, 200*time.Millisecond)
	c.RecordToolCall("get_weather_forecast", false, 10*time.Millisecond)
	c.SetActiveChatSessions(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.toolCallsTotal.WithLabelValues("get_weather_forecast", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.toolCallsTotal.WithLabelValues("get_weather_forecast", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.chatSessionsActive))
}

func TestCollector_CacheAndDB(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordCacheLookup("geo", true)
	c.RecordCacheLookup("geo", false)
	c.RecordCacheLookup("geo", false)
	c.RecordDBConnections("postgres", 10, 5)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheLookups.WithLabelValues("geo", "hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.cacheLookups.WithLabelValues("geo", "miss")))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.dbConnectionsOpen.WithLabelValues("postgres")))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.dbConnectionsIdle.WithLabelValues("postgres")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	c, _ := newTestCollector(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordHTTPRequest("GET", "/health", 200, time.Millisecond, 10)
			c.RecordCycle("SoftwareEngineer", time.Millisecond, true)
			c.RecordCacheLookup("chat", true)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/health", "2xx")))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.cyclesTotal.WithLabelValues("SoftwareEngineer", "success")))
}

func TestCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollectorWithRegistry("dup", reg, nil)
	assert.Panics(t, func() { NewCollectorWithRegistry("dup", reg, nil) })
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(204))
	assert.Equal(t, "3xx", statusCode(302))
	assert.Equal(t, "4xx", statusCode(429))
	assert.Equal(t, "5xx", statusCode(503))
	assert.Equal(t, "unknown", statusCode(101))
}
