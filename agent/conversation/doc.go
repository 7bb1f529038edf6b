// 版权所有 2024 AgentCrew Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 conversation 实现业务分析师、软件工程师、产品负责人三方协作的
回合制多智能体对话。

# 概述

conversation 解决三个问题：下一轮由谁发言、发言如何生成、何时终止。
对话以显式状态机驱动（RUNNING → TERMINATED），每个循环只调用一次
参与者，产生的消息追加到 Transcript 中，永不修改或重排。

# 核心接口

  - SpeakerSelector：发言人选择器，输入对话记录与上一位发言人，返回下一位参与者名称
  - TerminationEvaluator：终止判定器，返回是否终止以及终止原因
  - Responder：补全能力，输入人设与完整对话记录，返回回复文本

# 内置实现

  - RuleSelector：确定性规则（BA → SE → PO，PO 驳回回到 SE 或 BA）
  - PromptSelector：由 LLM 选择发言人，答案无法识别时回退到 RuleSelector
  - ApprovalEvaluator：检测最后一条消息中的批准令牌 %APPR% 与最大轮次
  - CompletionResponder：基于 llm.Provider 的补全调用，内置超时与重试

# 终止原因

  - approved：最后一条消息包含批准令牌
  - max_iterations：达到最大轮次（默认 20）
  - error：参与者补全失败，已产生的记录随结果返回
  - cancelled：调用方取消 context

# 与其他包协同

参与者的补全调用经由 llm/providers/azureopenai；运行结果可通过
agent/persistence 持久化；api/handlers 与 cmd/agentcrew 通过 Observer
实时输出每条消息。
*/
package conversation
