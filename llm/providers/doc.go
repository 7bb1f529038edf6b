// Copyright 2026 AgentCrew Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 providers 提供 HTTP Provider 共用的错误处理：状态码到 llm.Error 的映射、
上游错误体解析与响应体关闭。线上请求/响应结构由各 Provider 自行定义。

# 核心函数

  - MapHTTPError：将 HTTP 状态码映射为语义化的 llm.Error（含 Retryable 标记）
  - NetworkError / MalformedError：传输失败与响应不可用
  - ReadErrorMessage：解析上游错误体，失败时回退到原始文本
*/
package providers
