// 版权所有 2024 AgentCrew Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package api 定义 AgentCrew HTTP API 的请求与响应结构。
//
// # 端点
//
//   - POST   /api/v1/conversations          同步运行一次三方对话
//   - GET    /api/v1/conversations          列出已保存的运行
//   - GET    /api/v1/conversations/stream   websocket，逐条推送消息
//   - GET    /api/v1/conversations/{id}     查询已保存的运行
//   - POST   /api/v1/chat                   函数调用聊天
//   - DELETE /api/v1/chat/{session}         删除聊天会话
//   - GET    /health, /healthz, /ready, /version
//
// # 认证
//
// 配置了 JWT 密钥时，/api/ 下的端点需要 Authorization: Bearer <token>；
// 配置了 API Key 时也可使用 X-API-Key 头。
package api
