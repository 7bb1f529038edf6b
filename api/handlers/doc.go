// 版权所有 2024 AgentCrew Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package handlers 提供 AgentCrew HTTP API 的请求处理器。

# 核心类型

  - ConversationHandler：同步运行对话、websocket 流式对话、查询已保存的运行
  - ChatHandler：函数调用聊天的发送与会话删除
  - HealthHandler：/health、/ready、/version，可注册数据库、Redis 等就绪检查
  - Response / ErrorInfo：统一 JSON 响应结构

# 错误映射

处理器把 *types.Error 的错误码经 types.HTTPStatusFor 映射为状态码，
例如 COMPLETION_FAILURE → 502、CONVERSATION_BUSY → 409、NOT_FOUND → 404。
请求体经 DecodeRequest 解码（1 MB 上限、拒绝未知字段）并按 validate 标签校验。
*/
package handlers
