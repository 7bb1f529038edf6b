// Package tokenizer 提供 Token 计数：OpenAI 系列模型使用 tiktoken，
// 编码数据不可用时回退到字符估算器。
package tokenizer
