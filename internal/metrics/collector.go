package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcrew/llm"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// LLM 指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec

	// 对话指标
	cyclesTotal        *prometheus.CounterVec
	cycleDuration      *prometheus.HistogramVec
	terminationsTotal  *prometheus.CounterVec
	runIterations      prometheus.Histogram
	selectionFallbacks *prometheus.CounterVec

	// 工具与聊天
	toolCallsTotal     *prometheus.CounterVec
	toolCallDuration   *prometheus.HistogramVec
	chatSessionsActive prometheus.Gauge

	// 缓存指标
	cacheLookups *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建注册到默认 registry 的指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWithRegistry 创建注册到指定 registry 的指标收集器
func NewCollectorWithRegistry(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := promauto.With(reg)
	c := &Collector{logger: logger.With(zap.String("component", "metrics"))}

	// HTTP 指标
	c.httpRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	c.httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	c.httpResponseSize = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// LLM 指标
	c.llmRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		},
		[]string{"provider", "model", "status"},
	)
	c.llmRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)
	c.llmTokensUsed = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion
	)

	// 对话指标
	c.cyclesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_cycles_total",
			Help:      "Participant turns taken in multi-agent conversations",
		},
		[]string{"participant", "status"},
	)
	c.cycleDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversation_cycle_duration_seconds",
			Help:      "Duration of a single participant turn",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"participant"},
	)
	c.terminationsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_terminations_total",
			Help:      "Finished conversations by termination reason",
		},
		[]string{"reason"},
	)
	c.runIterations = f.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversation_iterations",
			Help:      "Participant turns per finished conversation",
			Buckets:   []float64{1, 2, 3, 5, 8, 12, 20, 30},
		},
	)
	c.selectionFallbacks = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selection_fallbacks_total",
			Help:      "Model-driven speaker selections that fell back to rules",
		},
		[]string{"reason"},
	)

	// 工具与聊天
	c.toolCallsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Plugin function invocations",
		},
		[]string{"tool", "status"},
	)
	c.toolCallDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Plugin function latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)
	c.chatSessionsActive = f.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chat_sessions_active",
			Help:      "Chat sessions currently held in memory",
		},
	)

	// 缓存指标
	c.cacheLookups = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by namespace and result",
		},
		[]string{"namespace", "result"},
	)

	// 数据库指标
	c.dbConnectionsOpen = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)
	c.dbConnectionsIdle = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🤖 LLM 指标记录
// =============================================================================

// RecordLLMRequest 记录 LLM 请求
func (c *Collector) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
}

// ObserveUsage 匹配 conversation.UsageObserver，记录成功的补全请求
func (c *Collector) ObserveUsage(provider, model string, usage llm.ChatUsage, latency time.Duration) {
	c.RecordLLMRequest(provider, model, "success", latency, usage.PromptTokens, usage.CompletionTokens)
}

// =============================================================================
// 🎭 对话指标记录
// =============================================================================

// RecordCycle 记录一次参与者发言
func (c *Collector) RecordCycle(participant string, duration time.Duration, ok bool) {
	c.cyclesTotal.WithLabelValues(participant, okLabel(ok)).Inc()
	c.cycleDuration.WithLabelValues(participant).Observe(duration.Seconds())
}

// RecordTermination 记录对话结束原因与轮次
func (c *Collector) RecordTermination(reason string, iterations int) {
	c.terminationsTotal.WithLabelValues(reason).Inc()
	c.runIterations.Observe(float64(iterations))
}

// RecordSelectionFallback 记录模型选人回退到规则选人
func (c *Collector) RecordSelectionFallback(reason string) {
	c.selectionFallbacks.WithLabelValues(reason).Inc()
}

// =============================================================================
// 🔧 工具与聊天
// =============================================================================

// RecordToolCall 匹配 tools.ExecutionObserver
func (c *Collector) RecordToolCall(name string, ok bool, d time.Duration) {
	c.toolCallsTotal.WithLabelValues(name, okLabel(ok)).Inc()
	c.toolCallDuration.WithLabelValues(name).Observe(d.Seconds())
}

// SetActiveChatSessions 更新活跃会话数
func (c *Collector) SetActiveChatSessions(n int) {
	c.chatSessionsActive.Set(float64(n))
}

// =============================================================================
// 💾 缓存与数据库
// =============================================================================

// RecordCacheLookup 实现 cache.LookupRecorder
func (c *Collector) RecordCacheLookup(namespace string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(namespace, result).Inc()
}

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func okLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
