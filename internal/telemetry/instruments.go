package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ConversationInstruments 以 OTel 指标记录对话循环，随 OTLP 导出。
// 与 Prometheus collector 并存，满足 conversation.MetricsRecorder。
type ConversationInstruments struct {
	cycles      metric.Int64Counter
	cycleErrors metric.Int64Counter
	cycleTime   metric.Float64Histogram
	runs        metric.Int64Counter
	iterations  metric.Int64Histogram
}

// Meter 返回服务的 meter；未启用时为全局 meter（默认 noop）
func (p *Providers) Meter() metric.Meter {
	if p != nil && p.mp != nil {
		return p.mp.Meter(InstrumentationName)
	}
	return otel.Meter(InstrumentationName)
}

// ConversationInstruments 在 p 的 meter 上创建对话指标
func (p *Providers) ConversationInstruments() (*ConversationInstruments, error) {
	return NewConversationInstruments(p.Meter())
}

// NewConversationInstruments 创建对话指标
func NewConversationInstruments(meter metric.Meter) (*ConversationInstruments, error) {
	var (
		ci  ConversationInstruments
		err error
	)

	if ci.cycles, err = meter.Int64Counter("conversation.cycle.total",
		metric.WithDescription("Participant turns taken"),
		metric.WithUnit("{cycle}")); err != nil {
		return nil, fmt.Errorf("create cycle counter: %w", err)
	}
	if ci.cycleErrors, err = meter.Int64Counter("conversation.cycle.error.total",
		metric.WithDescription("Participant turns that failed"),
		metric.WithUnit("{cycle}")); err != nil {
		return nil, fmt.Errorf("create cycle error counter: %w", err)
	}
	if ci.cycleTime, err = meter.Float64Histogram("conversation.cycle.duration",
		metric.WithDescription("Participant turn latency"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create cycle histogram: %w", err)
	}
	if ci.runs, err = meter.Int64Counter("conversation.run.total",
		metric.WithDescription("Finished conversations by termination reason"),
		metric.WithUnit("{run}")); err != nil {
		return nil, fmt.Errorf("create run counter: %w", err)
	}
	if ci.iterations, err = meter.Int64Histogram("conversation.run.iterations",
		metric.WithDescription("Iterations per finished conversation"),
		metric.WithUnit("{iteration}")); err != nil {
		return nil, fmt.Errorf("create iterations histogram: %w", err)
	}
	return &ci, nil
}

// RecordCycle 记录一次发言
func (ci *ConversationInstruments) RecordCycle(participant string, duration time.Duration, ok bool) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("participant", participant))
	ci.cycles.Add(ctx, 1, attrs)
	ci.cycleTime.Record(ctx, duration.Seconds(), attrs)
	if !ok {
		ci.cycleErrors.Add(ctx, 1, attrs)
	}
}

// RecordTermination 记录一次对话结束
func (ci *ConversationInstruments) RecordTermination(reason string, iterations int) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("reason", reason))
	ci.runs.Add(ctx, 1, attrs)
	ci.iterations.Record(ctx, int64(iterations), attrs)
}
