// Copyright 2026 AgentCrew Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 AgentCrew 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertAuthors / AssertMessagesEqual
  - 流式辅助: CollectStreamContent

# 子包

  - testutil/mocks: MockProvider（llm.Provider），支持固定响应、
    脚本化响应（NewScriptedProvider）、延迟与错误注入
  - testutil/fixtures: ChatResponse 工厂与三方对话样例
*/
package testutil
