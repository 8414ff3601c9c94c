package statecachefx

import (
	"context"
	"fmt"
	"time"

	"github.com/soroban-registry/statecache"
	"github.com/soroban-registry/statecache/internal/codec"
	_ "github.com/soroban-registry/statecache/internal/codec/gzipcodec"
	_ "github.com/soroban-registry/statecache/internal/codec/noopcodec"
	_ "github.com/soroban-registry/statecache/internal/codec/zstdcodec"
	"github.com/soroban-registry/statecache/internal/config"
	"github.com/soroban-registry/statecache/internal/fetch"
	"github.com/soroban-registry/statecache/internal/fetch/diskfetch"
	"github.com/soroban-registry/statecache/internal/fetch/gcsfetch"
	"github.com/soroban-registry/statecache/internal/fetch/limitfetch"
	"github.com/soroban-registry/statecache/internal/fetch/s3fetch"
	"github.com/soroban-registry/statecache/internal/fetch/simfetch"
	"github.com/soroban-registry/statecache/internal/shard"
	"github.com/soroban-registry/statecache/internal/shard/fnvshard"
	"github.com/soroban-registry/statecache/internal/shard/xxshard"
	"github.com/soroban-registry/statecache/internal/snapshot/sqlsource"
)

// NewFetcher builds the fetcher selected by cfg.Backend, rate limited when
// cfg.RateLimit is set.
func NewFetcher(ctx context.Context, cfg config.FetchConfig) (fetch.Fetcher, error) {
	f, err := newBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.RateLimit > 0 {
		return limitfetch.New(f, cfg.RateLimit, cfg.Burst), nil
	}
	return f, nil
}

func newBackend(ctx context.Context, cfg config.FetchConfig) (fetch.Fetcher, error) {
	if cfg.Backend == config.BackendSim {
		return simfetch.New(
			simfetch.WithDelay(cfg.Delay),
			simfetch.WithWriteDelay(cfg.WriteDelay),
			simfetch.WithGenerator(simfetch.JSONGenerator(time.Now)),
		), nil
	}

	c, err := codec.Lookup(cfg.Codec)
	if err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case config.BackendDisk:
		return diskfetch.New(cfg.Root, c)
	case config.BackendS3:
		return s3fetch.New(ctx, cfg.Bucket, c,
			s3fetch.WithPrefix(cfg.Prefix),
			s3fetch.WithRegion(cfg.Region),
			s3fetch.WithEndpoint(cfg.Endpoint),
		)
	case config.BackendGCS:
		return gcsfetch.New(ctx, cfg.Bucket, c, gcsfetch.WithPrefix(cfg.Prefix))
	default:
		return nil, fmt.Errorf("unknown fetch backend %q", cfg.Backend)
	}
}

// NewSource opens the warm-up snapshot table. It returns nil when no
// snapshot driver is configured.
func NewSource(ctx context.Context, cfg config.SnapshotConfig) (*sqlsource.Source, error) {
	if cfg.Driver == "" {
		return nil, nil
	}
	src, err := sqlsource.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := src.Migrate(ctx); err != nil {
		_ = src.Close()
		return nil, err
	}
	return src, nil
}

// ShardStrategy returns the strategy registered under name, defaulting to FNV.
func ShardStrategy(name string) shard.Strategy {
	if name == "xxhash" {
		return xxshard.New()
	}
	return fnvshard.New()
}

// ClientOptions translates cfg into client options. The fetcher, stats and
// logger are supplied separately.
func ClientOptions(cfg *config.Config) []statecache.Option {
	opts := []statecache.Option{
		statecache.WithCacheEnabled(cfg.Cache.Enabled),
		statecache.WithTTL(cfg.Cache.TTL),
		statecache.WithMaxCapacity(cfg.Cache.MaxCapacity),
		statecache.WithShardStrategy(ShardStrategy(cfg.Cache.ShardStrategy)),
		statecache.WithJanitorInterval(cfg.Cache.JanitorInterval),
		statecache.WithCostModel(statecache.CostModel{
			BaseCPU:    cfg.Metering.BaseCPU,
			CPUPerByte: cfg.Metering.CPUPerByte,
			BaseMem:    cfg.Metering.BaseMem,
			MemPerByte: cfg.Metering.MemPerByte,
		}),
		statecache.WithDrainTimeout(cfg.Shutdown.Timeout),
		statecache.WithPollInterval(cfg.Shutdown.PollInterval),
	}
	if cfg.Cache.Shards > 0 {
		opts = append(opts, statecache.WithShards(cfg.Cache.Shards))
	}
	return opts
}
