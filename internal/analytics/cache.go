// Package analytics keeps the server-computed aggregates fresh. Projections
// are fetched when first observed and refetched whenever the store raises
// analyticsDataUpdated.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/franz/prms-console/internal/signal"
	"github.com/franz/prms-console/internal/store"
	"github.com/franz/prms-console/internal/util"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/singleflight"
)

// Fetcher loads one projection by endpoint name
type Fetcher interface {
	Projection(ctx context.Context, endpoint string) (json.RawMessage, error)
}

// Cache wires the analytics partitions of a store to a Fetcher
type Cache struct {
	store *store.Store
	api   Fetcher
	group singleflight.Group

	mu         sync.Mutex
	observed   map[store.Projection]bool
	generation uint64
	lastFetch  time.Time

	bg     conc.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	unsub  func()
}

// New creates a cache and subscribes it to the store's bus. Call Close to
// stop background refetches.
func New(s *store.Store, api Fetcher) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		store:    s,
		api:      api,
		observed: make(map[store.Projection]bool),
		ctx:      ctx,
		cancel:   cancel,
	}
	if bus := s.Bus(); bus != nil {
		c.unsub = bus.Subscribe(signal.AnalyticsDataUpdated, c.onUpdated)
	}
	return c
}

// Observe marks p as displayed and returns its data, fetching it if the
// partition is empty
func (c *Cache) Observe(ctx context.Context, p store.Projection) (store.AnalyticsData, error) {
	if p.Endpoint() == "" {
		return store.AnalyticsData{}, fmt.Errorf("%w: projection %q", util.ErrUnsupported, p)
	}
	c.mu.Lock()
	c.observed[p] = true
	c.mu.Unlock()

	if data := c.store.Analytics(p).Data(); !data.Empty() {
		return data, nil
	}
	return c.fetch(ctx, p)
}

// Forget stops refetching p. Its data stays until the next invalidation.
func (c *Cache) Forget(p store.Projection) {
	c.mu.Lock()
	delete(c.observed, p)
	c.mu.Unlock()
}

// Observed returns the projections marked by Observe, in display order
func (c *Cache) Observed() []store.Projection {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []store.Projection
	for _, p := range store.Projections {
		if c.observed[p] {
			out = append(out, p)
		}
	}
	return out
}

// Refresh drops every projection and refetches the observed ones, waiting for
// all of them. No signal is raised.
func (c *Cache) Refresh(ctx context.Context) error {
	c.store.ClearAnalytics()
	c.bumpGeneration()

	observed := c.Observed()
	util.DebugLog("Refreshing %d analytics projections", len(observed))

	p := pool.New().WithContext(ctx)
	for _, proj := range observed {
		p.Go(func(ctx context.Context) error {
			_, err := c.fetch(ctx, proj)
			return err
		})
	}
	return p.Wait()
}

// Wait blocks until background refetches started by a signal have finished
func (c *Cache) Wait() {
	c.bg.Wait()
}

// Close unsubscribes from the bus and waits for background refetches
func (c *Cache) Close() {
	if c.unsub != nil {
		c.unsub()
	}
	c.cancel()
	c.bg.Wait()
}

func (c *Cache) onUpdated(signal.Event) {
	c.store.ClearAnalytics()
	c.bumpGeneration()

	for _, p := range c.Observed() {
		c.bg.Go(func() {
			if _, err := c.fetch(c.ctx, p); err != nil {
				util.WarnLog("Analytics %s refetch failed: %v", p, err)
			}
		})
	}
}

func (c *Cache) bumpGeneration() {
	c.mu.Lock()
	c.generation++
	c.mu.Unlock()
}

// fetch loads p into its partition. Concurrent fetches of the same projection
// within one generation share a single request.
func (c *Cache) fetch(ctx context.Context, p store.Projection) (store.AnalyticsData, error) {
	part := c.store.Analytics(p)
	ticket := part.Begin()

	c.mu.Lock()
	key := fmt.Sprintf("%s#%d", p, c.generation)
	c.mu.Unlock()

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		util.DebugLog("Fetching analytics %s", p.Endpoint())
		raw, err := c.api.Projection(ctx, p.Endpoint())
		if err != nil {
			return nil, err
		}
		return store.AnalyticsData{Raw: raw, FetchedAt: c.stamp()}, nil
	})
	if err != nil {
		part.Failure(ticket, err)
		return store.AnalyticsData{}, err
	}
	if shared {
		util.DebugLog("Analytics %s shared an in-flight request", p)
	}

	data := v.(store.AnalyticsData)
	part.Success(ticket, data)
	return data, nil
}

// stamp returns a fetch time strictly later than the previous one
func (c *Cache) stamp() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if !now.After(c.lastFetch) {
		now = c.lastFetch.Add(time.Nanosecond)
	}
	c.lastFetch = now
	return now
}
