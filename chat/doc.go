// 版权所有 2024 AgentCrew Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 chat 提供单用户、带函数调用的聊天会话。

Session 每次 Send 组装 "系统提示 + 历史 + 用户输入"，注册表非空时附带全部工具
并以 ToolChoice "auto" 交给 tools.ReActExecutor 循环执行，直到模型给出不含
工具调用的回复。历史只保存用户输入与最终回复，不保存中间的工具往返；
Send 失败时历史不变。同一会话的 Send 串行执行。

HistoryStore 有两种实现：进程内的 MemoryHistory，以及基于 Redis 列表的
RedisHistory（键 chat:<session>，每次追加刷新 TTL）。Manager 按 ID 管理会话，
并可周期性清理空闲会话。
*/
package chat
