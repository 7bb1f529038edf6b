package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/agentcrew/internal/database"
	"github.com/BaSui01/agentcrew/types"
)

// =============================================================================
// 🗄️ GORM 对话存储
// =============================================================================

type runModel struct {
	ID         string         `gorm:"primaryKey;size:64"`
	Input      string         `gorm:"type:text;not null"`
	Reason     string         `gorm:"size:32;not null;index"`
	Iterations int            `gorm:"not null;default:0"`
	Tokens     int            `gorm:"not null;default:0"`
	Error      string         `gorm:"type:text;not null"`
	StartedAt  time.Time      `gorm:"not null;index"`
	EndedAt    time.Time      `gorm:"not null"`
	CreatedAt  time.Time      `gorm:"not null"`
	Messages   []messageModel `gorm:"foreignKey:RunID"`
}

func (runModel) TableName() string { return "conversation_runs" }

type messageModel struct {
	ID        string    `gorm:"primaryKey;size:64"`
	RunID     string    `gorm:"size:64;not null;uniqueIndex:uk_conversation_messages_run_seq"`
	Seq       int       `gorm:"not null;uniqueIndex:uk_conversation_messages_run_seq"`
	Role      string    `gorm:"size:16;not null"`
	Author    string    `gorm:"size:128;not null;default:''"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (messageModel) TableName() string { return "conversation_messages" }

// GormOptions configures GormRunStore.
type GormOptions struct {
	// AutoMigrate creates tables with gorm instead of the embedded migrations.
	// Intended for local sqlite use.
	AutoMigrate bool
	// MaxRetries bounds transaction retries on deadlocks and lock conflicts
	MaxRetries int
}

// GormRunStore persists runs through a database pool.
type GormRunStore struct {
	pool    *database.PoolManager
	retries int
	logger  *zap.Logger
}

// NewGormRunStore creates a SQL-backed RunStore.
func NewGormRunStore(pool *database.PoolManager, opts GormOptions, logger *zap.Logger) (*GormRunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}

	s := &GormRunStore{
		pool:    pool,
		retries: opts.MaxRetries,
		logger:  logger.With(zap.String("component", "run_store")),
	}
	if opts.AutoMigrate {
		if err := pool.DB().AutoMigrate(&runModel{}, &messageModel{}); err != nil {
			return nil, fmt.Errorf("auto migrate run store: %w", err)
		}
	}
	return s, nil
}

// Close closes the underlying pool
func (s *GormRunStore) Close() error {
	return s.pool.Close()
}

// Ping checks the database connection
func (s *GormRunStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		if errors.Is(err, database.ErrPoolClosed) {
			return ErrStoreClosed
		}
		return err
	}
	return nil
}

// SaveRun replaces the run row and its transcript in one transaction
func (s *GormRunStore) SaveRun(ctx context.Context, run *RunRecord) error {
	if err := validateRun(run); err != nil {
		return err
	}
	model := toRunModel(run)
	msgs := toMessageModels(run.ID, run.Transcript)

	err := s.pool.WithTransactionRetry(ctx, s.retries, func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", run.ID).Delete(&messageModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id = ?", run.ID).Delete(&runModel{}).Error; err != nil {
			return err
		}
		if err := tx.Omit("Messages").Create(&model).Error; err != nil {
			return err
		}
		if len(msgs) > 0 {
			return tx.CreateInBatches(msgs, 100).Error
		}
		return nil
	})
	if err != nil {
		return s.mapErr(fmt.Errorf("save run %s: %w", run.ID, err))
	}

	s.logger.Debug("run saved",
		zap.String("run_id", run.ID),
		zap.String("reason", run.Reason),
		zap.Int("messages", len(msgs)),
	)
	return nil
}

// GetRun loads a run and its transcript ordered by sequence
func (s *GormRunStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	var model runModel
	err := s.pool.DB().WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		Where("id = ?", id).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, s.mapErr(fmt.Errorf("get run %s: %w", id, err))
	}
	return fromRunModel(&model, true), nil
}

// ListRuns returns run summaries, newest first
func (s *GormRunStore) ListRuns(ctx context.Context, opts ListOptions) ([]*RunRecord, error) {
	opts = opts.normalized()

	q := s.pool.DB().WithContext(ctx).Model(&runModel{})
	if opts.Reason != "" {
		q = q.Where("reason = ?", opts.Reason)
	}

	var models []runModel
	if err := q.Order("started_at DESC").Order("id DESC").
		Limit(opts.Limit).Offset(opts.Offset).
		Find(&models).Error; err != nil {
		return nil, s.mapErr(fmt.Errorf("list runs: %w", err))
	}

	out := make([]*RunRecord, len(models))
	for i := range models {
		out[i] = fromRunModel(&models[i], false)
	}
	return out, nil
}

// DeleteRun removes a run and its messages
func (s *GormRunStore) DeleteRun(ctx context.Context, id string) error {
	var affected int64
	err := s.pool.WithTransactionRetry(ctx, s.retries, func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", id).Delete(&messageModel{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&runModel{})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return s.mapErr(fmt.Errorf("delete run %s: %w", id, err))
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteBefore removes runs that ended before t
func (s *GormRunStore) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	var affected int64
	err := s.pool.WithTransactionRetry(ctx, s.retries, func(tx *gorm.DB) error {
		old := tx.Model(&runModel{}).Select("id").Where("ended_at < ?", t.UTC())
		if err := tx.Where("run_id IN (?)", old).Delete(&messageModel{}).Error; err != nil {
			return err
		}
		res := tx.Where("ended_at < ?", t.UTC()).Delete(&runModel{})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, s.mapErr(fmt.Errorf("delete runs before %s: %w", t.Format(time.RFC3339), err))
	}
	if affected > 0 {
		s.logger.Info("expired runs removed", zap.Int64("count", affected))
	}
	return affected, nil
}

func (s *GormRunStore) mapErr(err error) error {
	if errors.Is(err, database.ErrPoolClosed) {
		return ErrStoreClosed
	}
	return err
}

// =============================================================================
// 🔁 模型转换
// =============================================================================

func toRunModel(r *RunRecord) runModel {
	return runModel{
		ID:         r.ID,
		Input:      r.Input,
		Reason:     r.Reason,
		Iterations: r.Iterations,
		Tokens:     r.Tokens,
		Error:      r.Error,
		StartedAt:  r.StartedAt.UTC(),
		EndedAt:    r.EndedAt.UTC(),
	}
}

func toMessageModels(runID string, transcript []types.Message) []messageModel {
	out := make([]messageModel, len(transcript))
	for i, m := range transcript {
		out[i] = messageModel{
			ID:        m.ID,
			RunID:     runID,
			Seq:       i,
			Role:      string(m.Role),
			Author:    m.Author,
			Content:   m.Content,
			CreatedAt: m.CreatedAt.UTC(),
		}
	}
	return out
}

func fromRunModel(m *runModel, withTranscript bool) *RunRecord {
	r := &RunRecord{
		ID:         m.ID,
		Input:      m.Input,
		Reason:     m.Reason,
		Iterations: m.Iterations,
		Tokens:     m.Tokens,
		Error:      m.Error,
		StartedAt:  m.StartedAt.UTC(),
		EndedAt:    m.EndedAt.UTC(),
	}
	if withTranscript {
		r.Transcript = make([]types.Message, len(m.Messages))
		for i, mm := range m.Messages {
			r.Transcript[i] = types.Message{
				ID:        mm.ID,
				Role:      types.Role(mm.Role),
				Author:    mm.Author,
				Content:   mm.Content,
				CreatedAt: mm.CreatedAt.UTC(),
			}
		}
	}
	return r
}
