// Package statecachefx provides an fx module for a configured statecache client.
package statecachefx

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/soroban-registry/statecache"
	"github.com/soroban-registry/statecache/internal/config"
	"github.com/soroban-registry/statecache/internal/fetch"
	"github.com/soroban-registry/statecache/internal/snapshot"
	"github.com/soroban-registry/statecache/internal/stats"
	"github.com/soroban-registry/statecache/internal/stats/logger"
	promstats "github.com/soroban-registry/statecache/internal/stats/prometheus"
)

// Module provides a *statecache.Client built from *config.Config, warmed up
// on start and drained then closed on stop, plus the *prometheus.Registry
// its metrics are registered in.
//
// Requires a *config.Config and a *zap.Logger to be provided. A
// fetch.Fetcher or snapshot.Source provided elsewhere replaces the one the
// config describes.
var Module = fx.Module("statecache",
	fx.Provide(
		newRegistry,
		newStatsCollector,
		newClient,
	),
)

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newStatsCollector(log *zap.Logger, reg *prometheus.Registry) stats.Collector {
	return stats.Multi{
		promstats.New(reg),
		logger.New(log.Named("statecache.stats")),
	}
}

// Params holds dependencies for creating the client.
type Params struct {
	fx.In

	Config    *config.Config
	Logger    *zap.Logger
	Collector stats.Collector
	Lifecycle fx.Lifecycle

	Fetcher fetch.Fetcher   `optional:"true"`
	Source  snapshot.Source `optional:"true"`
}

// Result holds the provided client.
type Result struct {
	fx.Out

	Client *statecache.Client
}

func newClient(p Params) (Result, error) {
	ctx := context.Background()
	log := p.Logger.Named("statecache")

	fetcher := p.Fetcher
	if fetcher == nil {
		f, err := NewFetcher(ctx, p.Config.Fetch)
		if err != nil {
			return Result{}, err
		}
		fetcher = f
	}

	source := p.Source
	var closeSource func() error
	if source == nil {
		src, err := NewSource(ctx, p.Config.Snapshot)
		if err != nil {
			_ = fetcher.Close()
			return Result{}, err
		}
		if src != nil {
			source, closeSource = src, src.Close
		}
	}

	opts := append(ClientOptions(p.Config),
		statecache.WithFetcher(fetcher),
		statecache.WithStats(p.Collector),
		statecache.WithLogger(p.Logger),
	)
	client, err := statecache.New(opts...)
	if err != nil {
		_ = fetcher.Close()
		if closeSource != nil {
			_ = closeSource()
		}
		return Result{}, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if source == nil {
				return nil
			}
			// Warm-up is best-effort; a failed source never blocks startup.
			if _, err := client.WarmUp(ctx, source, p.Config.Snapshot.Limit); err != nil {
				log.Warn("warm-up failed", zap.Error(err))
			}
			if closeSource != nil {
				return closeSource()
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			res := client.Shutdown(ctx)
			log.Info("client stopped",
				zap.Stringer("outcome", res.Outcome),
				zap.Int64("remaining", res.Remaining),
				zap.Duration("elapsed", res.Elapsed),
			)
			return client.Close()
		},
	})

	return Result{Client: client}, nil
}
