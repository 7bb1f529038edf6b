// Package azureopenai 实现 Azure OpenAI 部署的 llm.Provider、llm.EmbeddingProvider
// 与 llm.ImageProvider。
//
// 请求地址形如 {endpoint}/openai/deployments/{deployment}/chat/completions?api-version=...；
// 配置了 APIKey 时使用 "api-key" 头鉴权，否则通过 azidentity 获取
// Cognitive Services 范围的 Azure AD 令牌。
package azureopenai
