// Package config loads the statecache service configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Fetch backends.
const (
	BackendSim  = "sim"
	BackendDisk = "disk"
	BackendS3   = "s3"
	BackendGCS  = "gcs"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("config: invalid")

// Config holds all statecache service configuration.
type Config struct {
	Listen   string         `yaml:"listen"`
	Log      LogConfig      `yaml:"log"`
	Cache    CacheConfig    `yaml:"cache"`
	Metering MeteringConfig `yaml:"metering"`
	Shutdown ShutdownConfig `yaml:"shutdown"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

// LogConfig controls the zap logger.
// Format is "json" (default) or "console".
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CacheConfig controls the state cache.
type CacheConfig struct {
	Enabled         bool          `yaml:"enabled"`
	TTL             time.Duration `yaml:"ttl"`
	MaxCapacity     int           `yaml:"max_capacity"`
	Shards          int           `yaml:"shards"`
	ShardStrategy   string        `yaml:"shard_strategy"`
	JanitorInterval time.Duration `yaml:"janitor_interval"`
}

// MeteringConfig is the write cost model.
type MeteringConfig struct {
	BaseCPU    int64 `yaml:"base_cpu"`
	CPUPerByte int64 `yaml:"cpu_per_byte"`
	BaseMem    int64 `yaml:"base_mem"`
	MemPerByte int64 `yaml:"mem_per_byte"`
}

// ShutdownConfig controls draining.
type ShutdownConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// FetchConfig selects and configures the downstream state source.
type FetchConfig struct {
	Backend    string        `yaml:"backend"`
	Codec      string        `yaml:"codec"`
	Delay      time.Duration `yaml:"delay"`
	WriteDelay time.Duration `yaml:"write_delay"`
	RateLimit  float64       `yaml:"rate_limit"`
	Burst      int           `yaml:"burst"`

	Root     string `yaml:"root"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// SnapshotConfig points at the table used to warm the cache at startup.
// An empty Driver disables warm-up.
type SnapshotConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Limit  int    `yaml:"limit"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Cache: CacheConfig{
			Enabled:         true,
			TTL:             5 * time.Minute,
			MaxCapacity:     10000,
			Shards:          16,
			ShardStrategy:   "fnv32",
			JanitorInterval: 30 * time.Second,
		},
		Metering: MeteringConfig{
			BaseCPU:    180_000,
			CPUPerByte: 90,
			BaseMem:    1_200_000,
			MemPerByte: 64,
		},
		Shutdown: ShutdownConfig{
			Timeout:      30 * time.Second,
			PollInterval: 100 * time.Millisecond,
		},
		Fetch: FetchConfig{
			Backend:    BackendSim,
			Codec:      "zstd",
			Delay:      100 * time.Millisecond,
			WriteDelay: 200 * time.Millisecond,
		},
		Snapshot: SnapshotConfig{
			Limit: 1000,
		},
	}
}

// Load reads a YAML config file and expands environment variables.
// Keys absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config data after expanding environment variables.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch {
	case c.Listen == "":
		return fmt.Errorf("%w: listen is empty", ErrInvalid)
	case c.Cache.MaxCapacity <= 0:
		return fmt.Errorf("%w: cache.max_capacity must be positive, got %d", ErrInvalid, c.Cache.MaxCapacity)
	case c.Cache.TTL <= 0:
		return fmt.Errorf("%w: cache.ttl must be positive, got %s", ErrInvalid, c.Cache.TTL)
	case c.Cache.Shards < 0:
		return fmt.Errorf("%w: cache.shards must not be negative", ErrInvalid)
	case c.Cache.JanitorInterval < 0:
		return fmt.Errorf("%w: cache.janitor_interval must not be negative", ErrInvalid)
	case c.Shutdown.Timeout <= 0:
		return fmt.Errorf("%w: shutdown.timeout must be positive, got %s", ErrInvalid, c.Shutdown.Timeout)
	case c.Shutdown.PollInterval <= 0:
		return fmt.Errorf("%w: shutdown.poll_interval must be positive", ErrInvalid)
	case c.Metering.BaseCPU < 0 || c.Metering.CPUPerByte < 0 || c.Metering.BaseMem < 0 || c.Metering.MemPerByte < 0:
		return fmt.Errorf("%w: metering costs must not be negative", ErrInvalid)
	case c.Fetch.RateLimit < 0:
		return fmt.Errorf("%w: fetch.rate_limit must not be negative", ErrInvalid)
	case c.Snapshot.Driver != "" && c.Snapshot.DSN == "":
		return fmt.Errorf("%w: snapshot.dsn is required with driver %q", ErrInvalid, c.Snapshot.Driver)
	}

	switch c.Cache.ShardStrategy {
	case "", "fnv32", "xxhash":
	default:
		return fmt.Errorf("%w: unknown cache.shard_strategy %q", ErrInvalid, c.Cache.ShardStrategy)
	}

	switch c.Fetch.Backend {
	case BackendSim:
	case BackendDisk:
		if c.Fetch.Root == "" {
			return fmt.Errorf("%w: fetch.root is required for the disk backend", ErrInvalid)
		}
	case BackendS3, BackendGCS:
		if c.Fetch.Bucket == "" {
			return fmt.Errorf("%w: fetch.bucket is required for the %s backend", ErrInvalid, c.Fetch.Backend)
		}
	default:
		return fmt.Errorf("%w: unknown fetch.backend %q", ErrInvalid, c.Fetch.Backend)
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalid, err)
	}
	return nil
}

// Logger builds the zap logger described by the log section.
// verbose forces debug level.
func (l LogConfig) Logger(verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if l.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	return zc.Build()
}
