// 版权所有 2024 AgentCrew Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 persistence 保存已结束的多智能体对话运行记录，用于按 ID 回看与审计列表。

# 核心接口

  - Store: 基础接口，提供 Close 与 Ping 健康检查。
  - RunStore: 运行记录存储，支持保存（整体替换）、按 ID 查询、
    分页列表（不含对话记录）、删除与按结束时间清理。

# 后端实现

  - MemoryRunStore: 进程内存储，开发与测试默认使用，重启即丢失。
  - GormRunStore: 基于 internal/database 连接池的 SQL 存储，
    表结构由 internal/migration 的迁移脚本管理（conversation_runs、
    conversation_messages）。sqlite 开发库可开启 AutoMigrate 直接建表。

# 使用方式

	store, err := persistence.NewRunStore(cfg.Database, pool, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	rec := persistence.RecordFromResult(result)
	err = store.SaveRun(ctx, rec)

pool 为 nil 时 NewRunStore 返回 MemoryRunStore。
*/
package persistence
