// 版权所有 2024 AgentCrew Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理，服务于地理编码结果缓存与聊天会话历史。

# 核心类型

  - Manager：持有 go-redis 客户端，提供 Get/Set/Delete/Exists/Expire、
    GetJSON/SetJSON，以及面向聊天历史的 Append/Range/Trim 列表操作。
    所有键自动加上 KeyPrefix。
  - Config：地址、密码、连接池、默认 TTL、TLS 与健康检查间隔；
    ConfigFrom 从应用配置的 redis 段构造。
  - LookupRecorder：命中/未命中回调，按键的命名空间（首个冒号前）打标签。
  - Stats：进程内命中统计与 Redis 键数量。

# 错误语义

ErrCacheMiss 表示键不存在，ErrClosed 表示管理器已关闭。
*/
package cache
