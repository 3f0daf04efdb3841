// Package cache holds decoded chunks so repeated reads of the same region of
// an image do not pay for decompression again.
package cache

import (
	"strconv"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Chunks is a bounded cache of decoded chunks keyed by chunk number.
// A nil *Chunks is a valid, disabled cache.
// Chunks is safe for concurrent use.
type Chunks struct {
	lru    *lru.Cache[uint64, []byte]
	group  singleflight.Group // zero value is valid
	hits   atomic.Uint64
	misses atomic.Uint64

	// mu orders inserts against Invalidate. generation counts invalidations;
	// a fill that overlapped one is returned but not cached.
	mu         sync.Mutex
	generation uint64
}

// New returns a cache holding at most entries chunks. entries <= 0 returns a
// nil cache.
func New(entries int) (*Chunks, error) {
	if entries <= 0 {
		return nil, nil
	}
	l, err := lru.New[uint64, []byte](entries)
	if err != nil {
		return nil, err
	}
	return &Chunks{lru: l}, nil
}

// EntriesFor returns how many chunks of chunkSize fit in maxBytes.
func EntriesFor(maxBytes int64, chunkSize uint32) int {
	if maxBytes <= 0 || chunkSize == 0 {
		return 0
	}
	return int(max(1, maxBytes/int64(chunkSize)))
}

// Get returns the cached chunk. Callers must not modify the returned slice.
func (c *Chunks) Get(n uint64) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	data, ok := c.lru.Get(n)
	if ok {
		c.hits.Add(1)
	}
	return data, ok
}

// Load returns chunk n from the cache, calling fill on a miss. Concurrent
// misses for the same chunk share one fill call. A fill that races with
// Invalidate is not cached.
func (c *Chunks) Load(n uint64, fill func() ([]byte, error)) ([]byte, error) {
	if c == nil {
		return fill()
	}
	if data, ok := c.Get(n); ok {
		return data, nil
	}
	v, err, _ := c.group.Do(strconv.FormatUint(n, 10), func() (any, error) {
		if data, ok := c.lru.Get(n); ok {
			return data, nil
		}
		c.misses.Add(1)
		gen := c.currentGeneration()
		data, err := fill()
		if err != nil {
			return nil, err
		}
		c.add(n, data, gen)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil //nolint:forcetypeassert // fill always returns []byte
}

// Invalidate drops chunk n, for example after it was rewritten.
func (c *Chunks) Invalidate(n uint64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.group.Forget(strconv.FormatUint(n, 10))
	c.lru.Remove(n)
}

func (c *Chunks) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// add caches data unless an invalidation happened since gen was read.
func (c *Chunks) add(n uint64, data []byte, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return
	}
	c.lru.Add(n, data)
}

// Len returns the number of cached chunks.
func (c *Chunks) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

// Stats returns the hit and miss counters.
func (c *Chunks) Stats() (hits, misses uint64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}
