// Package shard defines how cache keys are spread over independently
// locked cache shards.
package shard

// Strategy maps a cache key to one of a fixed number of shards.
type Strategy interface {
	// Name returns a human-readable name for this strategy.
	Name() string

	// ShardID computes the shard index for a key.
	// The returned value is in the range [0, totalShards).
	// The same key must always map to the same shard.
	ShardID(key string, totalShards int) int
}
