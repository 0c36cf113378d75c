package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/saakshy/saakshy-backend/pkg/enums"
	"github.com/saakshy/saakshy-backend/pkg/logger"
	"github.com/saakshy/saakshy-backend/pkg/metrics"
)

// ProjectionCache memoises verified projections keyed by the chain head they
// were built at. A new append moves the head, so stale entries are never read.
type ProjectionCache interface {
	Get(ctx context.Context, recordID string, head Head) (*RecordView, bool)
	Put(ctx context.Context, view *RecordView)
	Invalidate(ctx context.Context, recordID string, head Head)
}

// projectionStore is the slice of pkg/redis.Client the cache needs.
type projectionStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	ProjectionKey(recordID string, headSeq int64, headHash string) string
}

// RedisProjectionCache stores projections as JSON in Redis. Cache failures are
// logged and treated as misses.
type RedisProjectionCache struct {
	store   projectionStore
	ttl     time.Duration
	logg    *logger.Logger
	metrics *metrics.LedgerMetrics
}

func NewRedisProjectionCache(store projectionStore, ttl time.Duration, logg *logger.Logger, m *metrics.LedgerMetrics) *RedisProjectionCache {
	return &RedisProjectionCache{store: store, ttl: ttl, logg: logg, metrics: m}
}

func (c *RedisProjectionCache) Get(ctx context.Context, recordID string, head Head) (*RecordView, bool) {
	if c == nil || c.store == nil || head.Seq == 0 {
		return nil, false
	}
	raw, err := c.store.Get(ctx, c.store.ProjectionKey(recordID, head.Seq, head.Hash))
	if err != nil {
		if !errors.Is(err, redis.Nil) && c.logg != nil {
			c.logg.Warn(c.logg.WithRecordID(ctx, recordID), "projection cache read failed: "+err.Error())
		}
		c.metrics.IncCacheLookup(false)
		return nil, false
	}
	var view RecordView
	if err := json.Unmarshal([]byte(raw), &view); err != nil || view.HeadHash != head.Hash {
		c.metrics.IncCacheLookup(false)
		return nil, false
	}
	c.metrics.IncCacheLookup(true)
	return &view, true
}

func (c *RedisProjectionCache) Put(ctx context.Context, view *RecordView) {
	if c == nil || c.store == nil || view == nil || view.Status == enums.RecordStatusTampered {
		return
	}
	payload, err := json.Marshal(view)
	if err != nil {
		return
	}
	key := c.store.ProjectionKey(view.RecordID, view.HeadSeq, view.HeadHash)
	if err := c.store.Set(ctx, key, string(payload), c.ttl); err != nil && c.logg != nil {
		c.logg.Warn(c.logg.WithRecordID(ctx, view.RecordID), "projection cache write failed: "+err.Error())
	}
}

func (c *RedisProjectionCache) Invalidate(ctx context.Context, recordID string, head Head) {
	if c == nil || c.store == nil || head.Seq == 0 {
		return
	}
	if err := c.store.Del(ctx, c.store.ProjectionKey(recordID, head.Seq, head.Hash)); err != nil && c.logg != nil {
		c.logg.Warn(c.logg.WithRecordID(ctx, recordID), "projection cache delete failed: "+err.Error())
	}
}

type noopCache struct{}

func (noopCache) Get(context.Context, string, Head) (*RecordView, bool) { return nil, false }
func (noopCache) Put(context.Context, *RecordView)                      {}
func (noopCache) Invalidate(context.Context, string, Head)              {}
