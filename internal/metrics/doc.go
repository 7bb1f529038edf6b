// 版权所有 2024 AgentCrew Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集。

Collector 的方法签名与各组件的观察者接口对齐，可直接挂接：

  - RecordCycle / RecordTermination：conversation.MetricsRecorder
  - ObserveUsage：conversation.UsageObserver
  - RecordSelectionFallback：conversation.FallbackObserver
  - RecordToolCall：tools.ExecutionObserver
  - RecordCacheLookup：cache.LookupRecorder

另有 HTTP 请求、聊天活跃会话与数据库连接池指标。
NewCollector 注册到默认 registry；测试中使用 NewCollectorWithRegistry 隔离。
*/
package metrics
