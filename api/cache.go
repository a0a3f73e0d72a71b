package api

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/pkg/errors"
	"github.com/qubic/go-vesting-ledger/entities"
)

type ScheduleProvider interface {
	Get(ctx context.Context, key entities.ScheduleKey) (*entities.VestingSchedule, error)
}

// ScheduleCache serves schedule lookups from memory for a short time. Mutations through the api
// invalidate the affected entry.
type ScheduleCache struct {
	provider ScheduleProvider
	cache    *ttlcache.Cache[string, entities.VestingSchedule]
	lock     sync.Mutex
}

func NewScheduleCache(provider ScheduleProvider, ttl time.Duration, capacity uint64) *ScheduleCache {
	cache := ttlcache.New[string, entities.VestingSchedule](
		ttlcache.WithTTL[string, entities.VestingSchedule](ttl),
		ttlcache.WithCapacity[string, entities.VestingSchedule](capacity),
		ttlcache.WithDisableTouchOnHit[string, entities.VestingSchedule](), // don't refresh ttl upon getting the item from cache
	)
	return &ScheduleCache{
		provider: provider,
		cache:    cache,
	}
}

// Start runs the expiration loop and blocks until Stop is called.
func (c *ScheduleCache) Start() {
	c.cache.Start()
}

func (c *ScheduleCache) Stop() {
	c.cache.Stop()
}

func (c *ScheduleCache) Get(ctx context.Context, key entities.ScheduleKey) (*entities.VestingSchedule, error) {
	c.lock.Lock() // lock so that we do not get multiple threads inside the `if`
	defer c.lock.Unlock()

	item := c.cache.Get(key.String())
	if item != nil {
		schedule := item.Value()
		return &schedule, nil
	}

	schedule, err := c.provider.Get(ctx, key)
	if err != nil {
		return nil, errors.Wrap(err, "loading schedule")
	}
	c.cache.Set(key.String(), *schedule, ttlcache.DefaultTTL)
	return schedule, nil
}

// Invalidate waits for a running load, otherwise the load could store a value read before the mutation.
func (c *ScheduleCache) Invalidate(key entities.ScheduleKey) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.cache.Delete(key.String())
}
