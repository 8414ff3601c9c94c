package statecache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/soroban-registry/statecache/internal/cache"
	"github.com/soroban-registry/statecache/internal/snapshot"
	"github.com/soroban-registry/statecache/internal/stats"
)

// WarmUpResult reports what a warm-up loaded.
type WarmUpResult struct {
	Loaded   int
	Failed   int
	Duration time.Duration
}

// WarmUp preloads the cache with up to limit entries from src.
//
// Warm-up is best-effort: entries that cannot be cached are counted in
// Failed and skipped. An error is returned only when src itself fails or
// ctx ends; callers should log it and carry on serving. Entries are
// inserted oldest first so that, when src holds more than the cache
// capacity, the most recently updated ones stay resident.
func (c *Client) WarmUp(ctx context.Context, src snapshot.Source, limit int) (WarmUpResult, error) {
	start := time.Now()
	var res WarmUpResult

	if c.closed.Load() {
		return res, ErrClosed
	}
	if !c.config.Enabled {
		c.logger.Info("cache disabled, skipping warm-up")
		return res, nil
	}

	entries, err := src.Load(ctx, limit)
	if err != nil {
		res.Duration = time.Since(start)
		c.logger.Warn("warm-up source failed", zap.Error(err))
		return res, fmt.Errorf("loading snapshot: %w", err)
	}

	for i := len(entries) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			res.Duration = time.Since(start)
			c.report(res)
			return res, fmt.Errorf("warm-up interrupted: %w", err)
		}

		e := entries[i]
		if e.ContractID == "" || e.Key == "" {
			res.Failed++
			continue
		}
		k := cache.Key{ContractID: e.ContractID, StateKey: e.Key}
		if err := c.store.Put(k, e.Value, 0); err != nil {
			c.logger.Debug("warm-up entry skipped",
				zap.String("contract", e.ContractID),
				zap.String("key", e.Key),
				zap.Error(err),
			)
			res.Failed++
			continue
		}
		res.Loaded++
	}

	res.Duration = time.Since(start)
	c.report(res)
	return res, nil
}

func (c *Client) report(res WarmUpResult) {
	c.stats.IncCounter(stats.MetricWarmLoaded, int64(res.Loaded))
	c.stats.IncCounter(stats.MetricWarmFailed, int64(res.Failed))
	c.logger.Info("warm-up complete",
		zap.Int("loaded", res.Loaded),
		zap.Int("failed", res.Failed),
		zap.Duration("duration", res.Duration),
	)
}
