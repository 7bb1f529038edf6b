// 版权所有 2024 AgentCrew Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理对话结果存储（conversation_runs / conversation_messages）
的数据库 Schema，基于 golang-migrate 实现，支持 PostgreSQL 与 MySQL。
SQLite 的表结构由运行记录库通过 GORM AutoMigrate 创建，这里返回
ErrSQLiteUnsupported。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌在 migrations/<dialect>/ 下，
版本号在所有方言间保持一致。DefaultMigrator 封装 golang-migrate 实例，
执行日志经 zap 输出。

# 核心类型

  - Migrator / DefaultMigrator：Up/Down/DownAll/Steps/Goto/Force/
    Version/Status/Info/Close
  - Config：数据库类型、连接 URL、迁移表名与锁超时
  - CLI：`agentcrew migrate` 子命令的格式化输出层
  - NewMigratorFromConfig：由应用配置的 database 段创建迁移器
*/
package migration
