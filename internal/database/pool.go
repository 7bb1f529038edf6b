package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrPoolClosed is returned by every operation after Close.
var ErrPoolClosed = errors.New("pool is closed")

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	// ProbeInterval 后台探活间隔，<=0 关闭探活
	ProbeInterval time.Duration
}

// DefaultPoolConfig 返回默认连接池配置
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:    5,
		MaxOpenConns:    25,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		ProbeInterval:   15 * time.Second,
	}
}

// StatsObserver 在每次探活成功后收到连接池快照
type StatsObserver func(dialect string, stats sql.DBStats)

// PoolManager 持有运行记录库的 GORM 句柄
type PoolManager struct {
	db       *gorm.DB
	sqlDB    *sql.DB
	cfg      PoolConfig
	logger   *zap.Logger
	observer StatsObserver

	mu     sync.RWMutex
	closed bool
	once   sync.Once
	stop   chan struct{}
}

// NewPoolManager 应用连接池参数。探活由 RunProbe 驱动。
func NewPoolManager(db *gorm.DB, cfg PoolConfig, logger *zap.Logger) (*PoolManager, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pm := &PoolManager{
		db:     db,
		sqlDB:  sqlDB,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "db_pool"), zap.String("dialect", db.Dialector.Name())),
		stop:   make(chan struct{}),
	}
	pm.logger.Info("database pool ready",
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
	)
	return pm, nil
}

// WithStatsObserver 设置探活快照的接收者，须在 RunProbe 之前调用
func (pm *PoolManager) WithStatsObserver(fn StatsObserver) *PoolManager {
	pm.observer = fn
	return pm
}

// DB 返回 GORM 实例
func (pm *PoolManager) DB() *gorm.DB { return pm.db }

// Dialect 返回方言名（postgres / mysql / sqlite）
func (pm *PoolManager) Dialect() string { return pm.db.Dialector.Name() }

// Ping 检查数据库连接
func (pm *PoolManager) Ping(ctx context.Context) error {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	if pm.closed {
		return ErrPoolClosed
	}
	return pm.sqlDB.PingContext(ctx)
}

// Stats 返回 database/sql 的连接池统计
func (pm *PoolManager) Stats() sql.DBStats {
	return pm.sqlDB.Stats()
}

// RunProbe 按 ProbeInterval 探活并上报快照，直到 ctx 结束或连接池关闭
func (pm *PoolManager) RunProbe(ctx context.Context) {
	if pm.cfg.ProbeInterval <= 0 {
		return
	}
	ticker := time.NewTicker(pm.cfg.ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-pm.stop:
			return
		case <-ticker.C:
			pm.probe(ctx)
		}
	}
}

func (pm *PoolManager) probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pm.Ping(ctx); err != nil {
		if !errors.Is(err, ErrPoolClosed) && ctx.Err() == nil {
			pm.logger.Error("database probe failed", zap.Error(err))
		}
		return
	}
	stats := pm.Stats()
	pm.logger.Debug("database probe ok",
		zap.Int("open", stats.OpenConnections),
		zap.Int("in_use", stats.InUse),
		zap.Int("idle", stats.Idle),
	)
	if pm.observer != nil {
		pm.observer(pm.Dialect(), stats)
	}
}

// Close 关闭连接池，重复调用安全
func (pm *PoolManager) Close() error {
	var err error
	pm.once.Do(func() {
		pm.mu.Lock()
		pm.closed = true
		pm.mu.Unlock()
		close(pm.stop)
		pm.logger.Info("closing database pool")
		err = pm.sqlDB.Close()
	})
	return err
}
