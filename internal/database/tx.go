package database

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/BaSui01/agentcrew/llm/retry"
)

// TxFunc 在事务内执行的函数，返回错误时回滚
type TxFunc func(tx *gorm.DB) error

// WithTransaction 在单个事务中执行 fn
func (pm *PoolManager) WithTransaction(ctx context.Context, fn TxFunc) error {
	pm.mu.RLock()
	closed := pm.closed
	pm.mu.RUnlock()
	if closed {
		return ErrPoolClosed
	}
	return pm.db.WithContext(ctx).Transaction(fn)
}

// WithTransactionRetry 最多执行 attempts 次事务；只有锁冲突、序列化失败
// 与断连这类瞬时错误才会重试
func (pm *PoolManager) WithTransactionRetry(ctx context.Context, attempts int, fn TxFunc) error {
	if attempts < 1 {
		attempts = 1
	}
	r := retry.NewBackoffRetryer(&retry.RetryPolicy{
		MaxRetries:   attempts - 1,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2,
		Jitter:       true,
		ShouldRetry:  isTransientTxError,
	}, pm.logger)
	return r.Do(ctx, func(ctx context.Context) error {
		return pm.WithTransaction(ctx, fn)
	})
}

// 各方言驱动的错误文本片段（小写）
var transientTxFragments = []string{
	"deadlock",
	"40001", "serialization failure", "could not serialize",
	"lock wait timeout", "lock timeout",
	"database is locked", "sqlite_busy",
	"bad connection", "broken pipe", "connection reset", "connection refused",
}

func isTransientTxError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, f := range transientTxFragments {
		if strings.Contains(msg, f) {
			return true
		}
	}
	return false
}
