package conversation

import (
	"context"

	"go.uber.org/zap"
)

// Team is a reusable crew definition. Each Run gets its own Conversation, so
// a Team may serve many conversations concurrently.
type Team struct {
	participants []Participant
	cfg          Config
	opts         []Option
	logger       *zap.Logger
}

// NewTeam validates the crew once and returns a Team.
func NewTeam(participants []Participant, cfg Config, logger *zap.Logger, opts ...Option) (*Team, error) {
	if _, err := New(participants, cfg, logger, opts...); err != nil {
		return nil, err
	}
	return &Team{
		participants: append([]Participant(nil), participants...),
		cfg:          cfg,
		opts:         append([]Option(nil), opts...),
		logger:       logger,
	}, nil
}

// Config returns the team configuration.
func (t *Team) Config() Config { return t.cfg }

// Run starts a fresh conversation. extra options apply to this run only,
// typically WithObserver for streaming.
func (t *Team) Run(ctx context.Context, input string, extra ...Option) (*Result, error) {
	opts := make([]Option, 0, len(t.opts)+len(extra))
	opts = append(opts, t.opts...)
	opts = append(opts, extra...)
	c, err := New(t.participants, t.cfg, t.logger, opts...)
	if err != nil {
		return nil, err
	}
	return c.Run(ctx, input)
}
