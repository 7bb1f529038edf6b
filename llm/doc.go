/*
包 llm 提供 AgentCrew 的大语言模型接入层：Provider 抽象、统一的请求/响应模型
与错误语义。

# 核心接口

  - [Provider]：聊天补全接口，提供 Completion / Stream / HealthCheck / Name
  - [EmbeddingProvider]：文本向量化（handbook 检索插件使用）
  - [ImageProvider]：图像生成（image 插件使用）

# 子包

  - providers/azureopenai：Azure OpenAI 部署的 HTTP 实现（api-key 或 Azure AD 令牌）
  - retry：指数退避重试器，按 [Error.Retryable] 判定
  - tokenizer：基于 tiktoken 的 Token 计数，失败时回退估算器
  - tools：工具注册表、执行器与 ReAct 循环
*/
package llm
