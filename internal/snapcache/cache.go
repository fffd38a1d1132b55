// Package snapcache keeps the most recent device snapshot per source so that
// repeated requests within a freshness window do not re-collect.
package snapcache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"insightd/internal/device"
)

// ErrCollection is matched by errors.Is when a snapshot could not be
// collected and no earlier snapshot was available.
var ErrCollection = errors.New("snapshot collection failed")

const defaultCollectTimeout = 20 * time.Second

// Entry is what GetOrCollect hands back.
type Entry struct {
	Snapshot device.Snapshot
	// Stale is set when the refresh failed and an older snapshot was served.
	Stale bool
	// Hit is set when no collection was needed.
	Hit bool
}

// Status describes one cached key for reporting.
type Status struct {
	Source string
	Age    time.Duration
	Stale  bool
}

type slot struct {
	snap  device.Snapshot
	stale bool
}

// Cache is safe for concurrent use. At most one collection per key is in
// flight; concurrent callers for the same key share its result.
type Cache struct {
	mu             sync.RWMutex
	slots          map[string]*slot
	group          singleflight.Group
	gen            map[string]uint64
	epoch          uint64
	known          map[string]struct{}
	collectTimeout time.Duration
	now            func() time.Time
	log            zerolog.Logger
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

// WithCollectTimeout bounds each collection.
func WithCollectTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.collectTimeout = d
		}
	}
}

// New returns an empty cache.
func New(log zerolog.Logger, opts ...Option) *Cache {
	c := &Cache{
		slots:          make(map[string]*slot),
		gen:            make(map[string]uint64),
		known:          make(map[string]struct{}),
		collectTimeout: defaultCollectTimeout,
		now:            time.Now,
		log:            log.With().Str("component", "cache").Logger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// GetOrCollect returns the cached snapshot for source when it is younger than
// freshness, otherwise runs collect. A failed refresh falls back to the older
// snapshot (Stale=true) when one exists. A non-positive freshness always
// collects.
func (c *Cache) GetOrCollect(ctx context.Context, source string, collect device.Collector, freshness time.Duration) (Entry, error) {
	if source == "" {
		source = device.DefaultSource
	}
	if e, ok := c.fresh(source, freshness); ok {
		cacheRequests.WithLabelValues("hit").Inc()
		return e, nil
	}
	cacheRequests.WithLabelValues("miss").Inc()

	c.mu.Lock()
	c.known[source] = struct{}{}
	c.mu.Unlock()
	ch := c.group.DoChan(source, func() (any, error) {
		return c.collect(ctx, source, collect)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return c.fallback(source, res.Err)
		}
		if res.Shared {
			c.log.Debug().Str("source", source).Msg("joined in-flight collection")
		}
		return Entry{Snapshot: res.Val.(device.Snapshot)}, nil
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	}
}

func (c *Cache) fresh(source string, freshness time.Duration) (Entry, bool) {
	if freshness <= 0 {
		return Entry{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.slots[source]
	if !ok || s.stale {
		return Entry{}, false
	}
	if c.now().Sub(s.snap.CollectedAt()) < freshness {
		return Entry{Snapshot: s.snap, Hit: true}, true
	}
	return Entry{}, false
}

// collect runs detached from the first caller's cancellation so that other
// waiters are not failed by it; the collect timeout still bounds the work.
func (c *Cache) collect(ctx context.Context, source string, collect device.Collector) (device.Snapshot, error) {
	c.mu.RLock()
	gen, epoch := c.gen[source], c.epoch
	c.mu.RUnlock()

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.collectTimeout)
	defer cancel()
	start := c.now()
	snap, err := collect.Collect(cctx)
	if err != nil {
		cacheCollections.WithLabelValues(source, "error").Inc()
		c.log.Warn().Err(err).Str("source", source).Msg("snapshot collection failed")
		return device.Snapshot{}, err
	}
	cacheCollections.WithLabelValues(source, "ok").Inc()

	c.mu.Lock()
	// An invalidation during collection bumps gen or epoch; the result is
	// still returned to waiters but not stored.
	if c.gen[source] == gen && c.epoch == epoch {
		c.slots[source] = &slot{snap: snap}
	}
	c.mu.Unlock()
	c.log.Debug().Str("source", source).Dur("dur", c.now().Sub(start)).Msg("snapshot collected")
	return snap, nil
}

func (c *Cache) fallback(source string, cause error) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[source]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s: %w", ErrCollection, source, cause)
	}
	s.stale = true
	cacheRequests.WithLabelValues("stale").Inc()
	return Entry{Snapshot: s.snap, Stale: true}, nil
}

// Invalidate drops one source.
func (c *Cache) Invalidate(source string) {
	if source == "" {
		source = device.DefaultSource
	}
	c.mu.Lock()
	delete(c.slots, source)
	c.gen[source]++
	c.mu.Unlock()
	c.group.Forget(source)
}

// InvalidateAll drops every source, including first collections still in
// flight. Every source ever requested is forgotten in the group.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	keys := make([]string, 0, len(c.known))
	for k := range c.known {
		keys = append(keys, k)
	}
	clear(c.slots)
	c.epoch++
	c.mu.Unlock()
	for _, k := range keys {
		c.group.Forget(k)
	}
}

// Entries reports every cached key, sorted by source.
func (c *Cache) Entries() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.now()
	out := make([]Status, 0, len(c.slots))
	for k, s := range c.slots {
		out = append(out, Status{Source: k, Age: now.Sub(s.snap.CollectedAt()), Stale: s.stale})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}
