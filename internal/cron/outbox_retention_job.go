package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/saakshy/saakshy-backend/pkg/logger"
)

// Delivered outbox rows are kept this long for replay debugging.
const defaultOutboxRetention = 30 * 24 * time.Hour

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	Repository publishedOutboxPruner
	Retention  time.Duration
}

type publishedOutboxPruner interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// OutboxRetentionJob drops outbox rows that were published before the
// retention window. It never touches unpublished rows or ledger events.
type OutboxRetentionJob struct {
	logg      *logger.Logger
	pruner    publishedOutboxPruner
	retention time.Duration
	clock     func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (*OutboxRetentionJob, error) {
	if params.Logger == nil || params.Repository == nil {
		return nil, errors.New("outbox retention job needs a logger and a repository")
	}
	job := &OutboxRetentionJob{
		logg:      params.Logger,
		pruner:    params.Repository,
		retention: params.Retention,
		clock:     time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	return job, nil
}

func (*OutboxRetentionJob) Name() string { return "outbox-retention" }

func (j *OutboxRetentionJob) cutoff() time.Time {
	return j.clock().UTC().Add(-j.retention)
}

func (j *OutboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.cutoff()
	n, err := j.pruner.DeletePublishedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune outbox before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if n > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"cutoff":       cutoff,
			"rows_deleted": n,
		}), "pruned published outbox rows")
	}
	return nil
}
