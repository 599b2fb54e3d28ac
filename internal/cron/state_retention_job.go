package cron

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const stateRetentionJobName = "state-retention"

type pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// StateRetentionJobParams configure the state retention job.
type StateRetentionJobParams struct {
	Store     pruner
	Retention time.Duration
	Now       func() time.Time
}

// StateRetentionJob deletes persisted carts and favorites that have not been
// written within the retention window. Only backends without native key
// expiry need it.
type StateRetentionJob struct {
	store     pruner
	retention time.Duration
	now       func() time.Time
}

func NewStateRetentionJob(params StateRetentionJobParams) (*StateRetentionJob, error) {
	if params.Store == nil {
		return nil, errors.New("state store required")
	}
	if params.Retention <= 0 {
		return nil, errors.New("retention must be positive")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &StateRetentionJob{store: params.Store, retention: params.Retention, now: now}, nil
}

func (j *StateRetentionJob) Name() string { return stateRetentionJobName }

func (j *StateRetentionJob) Run(ctx context.Context) (int64, error) {
	cutoff := j.now().UTC().Add(-j.retention)
	removed, err := j.store.Prune(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune state before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return removed, nil
}
