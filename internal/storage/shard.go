// Package storage provides the write-through core shared by the aggregate
// stores: shard selection for the in-memory authoritative tier and the
// asynchronous replicator that trails mutations into the durable store.
//
// Contract: the in-memory tier is authoritative and always at least as
// current as the durable store. Durable writes lag, never lead.
package storage

import "hash/fnv"

// ShardIndex maps an entity key onto one of n shards. The same key always
// lands on the same shard, which is what serializes per-entity operations.
func ShardIndex(key string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}
