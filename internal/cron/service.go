package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/buildmart/storefront/pkg/logger"
	"github.com/buildmart/storefront/pkg/metrics"
)

const defaultInterval = 5 * time.Minute

// Job is one maintenance task. Run reports how many sessions or rows it
// removed.
type Job interface {
	Name() string
	Run(ctx context.Context) (int64, error)
}

type ServiceParams struct {
	// Name labels the scheduler in logs.
	Name     string
	Logger   *logger.Logger
	Jobs     []Job
	Lock     Lock
	Metrics  *metrics.JobMetrics
	Interval time.Duration
	// JobTimeout bounds a single job run. Zero uses Interval.
	JobTimeout time.Duration
}

// Service runs its jobs in order every Interval while it holds Lock.
type Service struct {
	name     string
	logg     *logger.Logger
	jobs     []Job
	lock     Lock
	metrics  *metrics.JobMetrics
	interval time.Duration
	timeout  time.Duration
}

// NewService validates params. Nil jobs are skipped and duplicate names are
// rejected.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("cron: logger required")
	}
	seen := map[string]struct{}{}
	jobs := make([]Job, 0, len(params.Jobs))
	for _, job := range params.Jobs {
		if job == nil {
			continue
		}
		if _, dup := seen[job.Name()]; dup {
			return nil, fmt.Errorf("cron: job %q registered twice", job.Name())
		}
		seen[job.Name()] = struct{}{}
		jobs = append(jobs, job)
	}

	s := &Service{
		name:     params.Name,
		logg:     params.Logger,
		jobs:     jobs,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: params.Interval,
		timeout:  params.JobTimeout,
	}
	if s.name == "" {
		s.name = "maintenance"
	}
	if s.lock == nil {
		s.lock = &LocalLock{}
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.timeout <= 0 {
		s.timeout = s.interval
	}
	return s, nil
}

// Jobs lists the scheduled job names in run order.
func (s *Service) Jobs() []string {
	names := make([]string, len(s.jobs))
	for i, job := range s.jobs {
		names[i] = job.Name()
	}
	return names
}

// Run blocks until ctx is canceled. The first cycle fires one interval after
// start.
func (s *Service) Run(ctx context.Context) error {
	ctx = s.logg.WithField(ctx, "scheduler", s.name)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"interval": s.interval.String(),
		"jobs":     s.Jobs(),
	}), "scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil {
				s.logg.Error(ctx, "maintenance cycle failed", err)
			}
		}
	}
}

// runCycle runs every job even when an earlier one fails and returns the
// combined failures.
func (s *Service) runCycle(ctx context.Context) (err error) {
	locked, lockErr := s.lock.Acquire(ctx)
	if lockErr != nil {
		return fmt.Errorf("acquire lock: %w", lockErr)
	}
	if !locked {
		s.logg.Debug(ctx, "cycle held by another replica")
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			err = multierr.Append(err, fmt.Errorf("release lock: %w", relErr))
		}
	}()

	for _, job := range s.jobs {
		err = multierr.Append(err, s.runJob(ctx, job))
	}
	return err
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	name := job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": name, "event": "maintenance.job"})

	start := time.Now()
	affected, err := s.invoke(jobCtx, job)
	elapsed := time.Since(start)
	s.metrics.ObserveDuration(name, elapsed)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())

	if err != nil {
		s.metrics.IncFailure(name)
		s.logg.Warn(jobCtx, "job failed")
		return fmt.Errorf("%s: %w", name, err)
	}
	s.metrics.IncSuccess(name)
	s.metrics.AddAffected(name, affected)
	if affected == 0 {
		s.logg.Debug(jobCtx, "job completed")
		return nil
	}
	s.logg.Info(s.logg.WithField(jobCtx, "affected", affected), "job completed")
	return nil
}

// invoke applies the job timeout and converts a panic into an error.
func (s *Service) invoke(ctx context.Context, job Job) (affected int64, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			affected, err = 0, fmt.Errorf("panic: %v", r)
		}
	}()
	return job.Run(ctx)
}
