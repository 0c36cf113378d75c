package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/saakshy/saakshy-backend/pkg/logger"
	"github.com/saakshy/saakshy-backend/pkg/metrics"
)

const defaultInterval = time.Hour

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service runs the registry once per interval. A cycle only does work on the
// instance that wins the lock.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Lock == nil:
		return nil, errors.New("lock required")
	}
	svc := &Service{
		logg:     params.Logger,
		registry: params.Registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: params.Interval,
	}
	if svc.registry == nil {
		svc.registry, _ = NewRegistry()
	}
	if svc.interval <= 0 {
		svc.interval = defaultInterval
	}
	return svc, nil
}

// Run starts a cycle now and then every interval until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	for {
		s.report(ctx, s.RunOnce(ctx))

		wait := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			wait.Stop()
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-wait.C:
		}
	}
}

// RunOnce runs one locked cycle. With names only those jobs run. Jobs run in
// registration order and a failure does not stop later jobs; the returned
// error combines every job failure.
func (s *Service) RunOnce(ctx context.Context, only ...string) (err error) {
	jobs, err := s.registry.Jobs(only...)
	if err != nil {
		return err
	}

	won, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !won {
		s.logg.Info(ctx, "cron lock held elsewhere, skipping cycle")
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "cron lock release", relErr)
		}
	}()

	for _, job := range jobs {
		if ctx.Err() != nil {
			return multierr.Append(err, ctx.Err())
		}
		if jobErr := s.runJob(ctx, job); jobErr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", job.Name(), jobErr))
		}
	}
	return err
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	ctx = s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})

	start := time.Now()
	err := job.Run(ctx)
	took := time.Since(start)
	s.metrics.ObserveRun(job.Name(), took, err)

	ctx = s.logg.WithField(ctx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "job failed", err)
		return err
	}
	s.logg.Info(ctx, "job completed")
	return nil
}

func (s *Service) report(ctx context.Context, err error) {
	if err == nil {
		s.logg.Debug(ctx, "cron cycle finished")
		return
	}
	s.logg.Warn(s.logg.WithField(ctx, "failures", len(multierr.Errors(err))), "cron cycle finished with failures")
}
