package topology

import (
	"encoding/hex"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tolelom/sumeragi/peer"
)

// cacheKey identifies a computed Topology by the inputs that determine it:
// every member's public key (in the order given), the seed and the
// view-change count. The cache is a pure performance optimization — the
// same set passed in another order just misses and recomputes, and it never
// serves a wrong answer for the wrong peer set.
type cacheKey string

func makeCacheKey(peerSet []peer.ID, seed []byte, viewChangeCount uint32) cacheKey {
	var members strings.Builder
	for _, p := range peerSet {
		members.WriteString(p.Key())
		members.WriteByte(',')
	}
	return cacheKey(fmt.Sprintf("%s:%s:%d", members.String(), hex.EncodeToString(seed), viewChangeCount))
}

// Cache memoizes recently computed Topologies, avoiding repeated O(N log N)
// sorts during a view-change storm where the same (seed, viewChangeCount)
// pair may be recomputed by several concurrent goroutines validating
// incoming messages.
type Cache struct {
	lru *lru.Cache[cacheKey, Topology]
}

// NewCache creates a Cache holding up to size recent Topologies. size<=0
// defaults to 64.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = 64
	}
	c, _ := lru.New[cacheKey, Topology](size)
	return &Cache{lru: c}
}

// Get computes (or returns the cached) Topology for the given inputs.
func (c *Cache) Get(peerSet []peer.ID, seed []byte, viewChangeCount uint32) Topology {
	key := makeCacheKey(peerSet, seed, viewChangeCount)
	if t, ok := c.lru.Get(key); ok {
		return t
	}
	t := New(peerSet, seed, viewChangeCount)
	c.lru.Add(key, t)
	return t
}
