// 版权所有 2024 AgentCrew Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package main 提供 AgentCrew 的可执行入口。

# 概述

cmd/agentcrew 把 agentcrew.App 暴露为 HTTP 服务和命令行工具：
三方对话（BusinessAnalyst、SoftwareEngineer、ProductOwner）可以通过
REST、WebSocket 流或 `run` 子命令触发；函数调用聊天可以通过 REST 或
`chat` 交互式 REPL 使用。

# 子命令

  - serve：API 服务与独立的 /metrics 端口，SIGINT/SIGTERM 优雅关闭
  - run：运行一次对话，按 "# role - author: 'content'" 打印 transcript
  - chat：交互式聊天，输入 reset 清空历史，exit 退出
  - migrate：golang-migrate 迁移：up、down、steps、force、status、version
  - health：请求运行中服务的 /health
  - version：构建信息（Version、BuildTime、GitCommit 由 ldflags 注入）

# 中间件链

Recovery → RequestID → SecurityHeaders → RequestLogger → OTelTracing →
MetricsMiddleware → CORS → RateLimiter → APIKeyAuth 或 JWTAuth。
RequestID 同时作为 trace id 写入上下文，随模型请求一起下发。
*/
package main
