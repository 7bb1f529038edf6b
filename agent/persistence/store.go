package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/agentcrew/agent/conversation"
	"github.com/BaSui01/agentcrew/types"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// StoreType represents the type of storage backend
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeSQL    StoreType = "sql"
)

// Store is the base interface for all persistent stores
type Store interface {
	// Close closes the store and releases resources
	Close() error

	// Ping checks if the store is healthy
	Ping(ctx context.Context) error
}

// RunRecord is a persisted conversation run.
type RunRecord struct {
	ID         string          `json:"id"`
	Input      string          `json:"input"`
	Reason     string          `json:"reason"`
	Iterations int             `json:"iterations"`
	Tokens     int             `json:"tokens"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	EndedAt    time.Time       `json:"ended_at"`
	Transcript []types.Message `json:"transcript"`
}

// Produced returns the messages written by participants, in order.
func (r *RunRecord) Produced() []types.Message {
	var out []types.Message
	for _, m := range r.Transcript {
		if m.Role == types.RoleAssistant {
			out = append(out, m)
		}
	}
	return out
}

// RecordFromResult converts a conversation result into a storable record.
func RecordFromResult(res *conversation.Result) *RunRecord {
	if res == nil {
		return nil
	}
	return &RunRecord{
		ID:         res.ID,
		Input:      res.Input,
		Reason:     string(res.Reason),
		Iterations: res.Iterations,
		Tokens:     res.Tokens,
		Error:      res.Error,
		StartedAt:  res.StartedAt,
		EndedAt:    res.EndedAt,
		Transcript: append([]types.Message(nil), res.Transcript...),
	}
}

// ListOptions filters ListRuns.
type ListOptions struct {
	// Limit defaults to 20, capped at 200
	Limit  int
	Offset int
	// Reason filters by termination reason when set
	Reason string
}

func (o ListOptions) normalized() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 200 {
		o.Limit = 200
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// RunStore persists conversation runs. Listing is newest first and does not
// load transcripts.
type RunStore interface {
	Store

	// SaveRun inserts or replaces a run together with its transcript
	SaveRun(ctx context.Context, run *RunRecord) error

	// GetRun returns ErrNotFound for unknown IDs
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns run summaries without transcripts
	ListRuns(ctx context.Context, opts ListOptions) ([]*RunRecord, error)

	// DeleteRun removes a run and its messages
	DeleteRun(ctx context.Context, id string) error

	// DeleteBefore removes runs that ended before t and returns how many were removed
	DeleteBefore(ctx context.Context, t time.Time) (int64, error)
}

func validateRun(run *RunRecord) error {
	if run == nil || run.ID == "" {
		return ErrInvalidInput
	}
	return nil
}
