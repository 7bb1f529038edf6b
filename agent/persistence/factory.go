package persistence

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcrew/config"
	"github.com/BaSui01/agentcrew/internal/database"
)

// NewRunStore selects the backend: SQL when a pool is given, memory otherwise.
func NewRunStore(cfg config.DatabaseConfig, pool *database.PoolManager, logger *zap.Logger) (RunStore, error) {
	if pool == nil {
		return NewMemoryRunStore(), nil
	}
	store, err := NewGormRunStore(pool, GormOptions{
		// sqlite 开发库在未执行迁移时直接建表
		AutoMigrate: cfg.AutoMigrate && cfg.Driver == "sqlite",
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create run store: %w", err)
	}
	return store, nil
}

// StoreTypeOf reports which backend a RunStore uses.
func StoreTypeOf(s RunStore) StoreType {
	if _, ok := s.(*GormRunStore); ok {
		return StoreTypeSQL
	}
	return StoreTypeMemory
}
