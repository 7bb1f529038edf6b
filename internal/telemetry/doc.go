// Package telemetry 封装 OpenTelemetry SDK 初始化，为 AgentCrew 提供
// TracerProvider 与 MeterProvider。对话运行、参与者发言与工具调用的
// span 通过全局 provider 导出；禁用时使用 noop 实现。
//
// ConversationInstruments 把对话发言与结束原因记为 OTel 指标，
// 与 internal/metrics 的 Prometheus 指标同时上报。
package telemetry
