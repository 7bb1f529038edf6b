// Package config 提供 AgentCrew 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 工作坊环境变量（AZURE_OPENAI_ENDPOINT、
// AI_SEARCH_URL、GEOCODING_API_KEY 等）→ AGENTCREW_* 环境变量 的顺序合并，
// 由 Validate 使用 validator 标签统一校验。核心包不直接读取环境变量，
// 配置由 cmd 加载后注入各组件构造函数。
package config
