package alertengine

import (
	"hash/fnv"
	"sync"
)

const shardCount = 256

// shardedLocks implements the single-writer-per-fingerprint discipline
// from §5 as a fixed table of mutexes keyed by hash(fingerprint) % N.
// Distinct fingerprints proceed in parallel; a fingerprint colliding with
// another onto the same shard merely serializes with it too, which is an
// acceptable, bounded amount of extra contention.
type shardedLocks struct {
	mus [shardCount]sync.Mutex
}

func newShardedLocks() *shardedLocks {
	return &shardedLocks{}
}

func (s *shardedLocks) shardFor(fingerprint string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fingerprint))
	return &s.mus[h.Sum32()%shardCount]
}

// withLock serializes fn against every other caller sharing fingerprint's
// shard.
func (s *shardedLocks) withLock(fingerprint string, fn func() error) error {
	mu := s.shardFor(fingerprint)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}
