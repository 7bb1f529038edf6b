// 版权所有 2024 AgentCrew Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接池管理，为对话结果存储
（agent/persistence.GormRunStore）提供连接、健康检查与事务重试。

# 核心类型

  - Open / Dialector：按 config.DatabaseConfig 打开 postgres、mysql
    或 sqlite（glebarez 纯 Go 驱动）连接。
  - PoolManager：持有 GORM DB 与底层 sql.DB。RunProbe 定期探活，
    并把连接池快照交给 StatsObserver（应用用它更新 Prometheus 指标）。
  - WithTransaction / WithTransactionRetry：事务执行；死锁、序列化
    失败与 sqlite 写锁冲突经 llm/retry 的退避重试器重试。
*/
package database
