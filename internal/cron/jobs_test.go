package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/buildmart/storefront/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionSweepJobEvictsIdleSessions(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	reg, err := state.NewRegistry(state.RegistryParams{
		KV:      state.NewMemoryKV(),
		IdleTTL: 30 * time.Minute,
		Now:     func() time.Time { return now },
	})
	require.NoError(t, err)
	_, err = reg.Session(context.Background(), "idle")
	require.NoError(t, err)

	now = now.Add(20 * time.Minute)
	_, err = reg.Session(context.Background(), "active")
	require.NoError(t, err)

	now = now.Add(15 * time.Minute)
	job, err := NewSessionSweepJob(reg)
	require.NoError(t, err)
	assert.Equal(t, "session-sweep", job.Name())

	evicted, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), evicted)
	assert.Equal(t, 1, reg.Len())
}

type fakePruner struct {
	cutoff  time.Time
	removed int64
	err     error
}

func (f *fakePruner) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.removed, f.err
}

func TestStateRetentionJobPrunesBeforeCutoff(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	store := &fakePruner{removed: 7}
	job, err := NewStateRetentionJob(StateRetentionJobParams{
		Store:     store,
		Retention: 720 * time.Hour,
		Now:       func() time.Time { return now },
	})
	require.NoError(t, err)
	assert.Equal(t, "state-retention", job.Name())

	removed, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), removed)
	assert.Equal(t, now.Add(-720*time.Hour), store.cutoff)

	store.err = errors.New("database is locked")
	_, err = job.Run(context.Background())
	require.ErrorIs(t, err, store.err)
}

func TestJobConstructorsValidate(t *testing.T) {
	_, err := NewSessionSweepJob(nil)
	require.Error(t, err)
	_, err = NewStateRetentionJob(StateRetentionJobParams{})
	require.Error(t, err)
	_, err = NewStateRetentionJob(StateRetentionJobParams{Store: &fakePruner{}})
	require.Error(t, err)
}
