package cron

import (
	"context"
	"errors"
)

const sessionSweepJobName = "session-sweep"

type sweeper interface {
	Sweep() int
}

// SessionSweepJob evicts resident session stores that have been idle
// longer than the registry's idle TTL. Mirrored state is kept.
type SessionSweepJob struct {
	registry sweeper
}

func NewSessionSweepJob(registry sweeper) (*SessionSweepJob, error) {
	if registry == nil {
		return nil, errors.New("session registry required")
	}
	return &SessionSweepJob{registry: registry}, nil
}

func (j *SessionSweepJob) Name() string { return sessionSweepJobName }

func (j *SessionSweepJob) Run(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return int64(j.registry.Sweep()), nil
}
