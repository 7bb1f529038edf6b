// Copyright (c) AgentCrew Authors.
// Licensed under the MIT License.

/*
Package types 提供 AgentCrew 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 agent/conversation、chat、
llm、api 等上层模块提供统一的类型契约。

# 核心类型

  - Message：对话消息（Role、Author、Content），追加后不可变
  - Error / ErrorCode：结构化错误体系，含 HTTP 状态码、Retryable 标记
  - TokenUsage：Token 消耗统计
  - TokenCounter：最小 Token 计数接口

# 主要能力

  - Context 传播：WithTraceID / WithTenantID / WithUserID / WithRunID / WithRoles
  - 错误工具链：WrapError / AsError / IsErrorCode / IsRetryable
*/
package types
