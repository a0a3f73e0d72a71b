package api

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/qubic/go-vesting-ledger/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingProvider returns an increasing claimed amount per load. Loads wait for release when it is set.
type blockingProvider struct {
	lock    sync.Mutex
	loads   uint64
	loading chan struct{}
	release chan struct{}
}

func (p *blockingProvider) Get(_ context.Context, key entities.ScheduleKey) (*entities.VestingSchedule, error) {
	p.lock.Lock()
	p.loads++
	claimed := p.loads * 100
	loading, release := p.loading, p.release
	p.loading, p.release = nil, nil
	p.lock.Unlock()

	if loading != nil {
		close(loading)
		<-release
	}
	return &entities.VestingSchedule{
		Beneficiary:   key.Beneficiary,
		Asset:         key.Asset,
		Name:          key.Name,
		TotalAmount:   1000,
		ClaimedAmount: claimed,
	}, nil
}

var cacheTestKey = entities.ScheduleKey{Beneficiary: "alice", Asset: "QU", Name: "team"}

func TestScheduleCache_Get(t *testing.T) {
	provider := &blockingProvider{}
	cache := NewScheduleCache(provider, time.Minute, 10)

	first, err := cache.Get(context.Background(), cacheTestKey)
	require.NoError(t, err)
	second, err := cache.Get(context.Background(), cacheTestKey)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, uint64(1), provider.loads)

	cache.Invalidate(cacheTestKey)
	third, err := cache.Get(context.Background(), cacheTestKey)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), third.ClaimedAmount)
}

func TestScheduleCache_Invalidate_givenRunningLoad_thenStaleValueIsNotKept(t *testing.T) {
	provider := &blockingProvider{loading: make(chan struct{}), release: make(chan struct{})}
	loading, release := provider.loading, provider.release
	cache := NewScheduleCache(provider, time.Minute, 10)

	loaded := make(chan *entities.VestingSchedule, 1)
	go func() {
		schedule, err := cache.Get(context.Background(), cacheTestKey)
		assert.NoError(t, err)
		loaded <- schedule
	}()
	<-loading

	invalidated := make(chan struct{})
	go func() {
		cache.Invalidate(cacheTestKey)
		close(invalidated)
	}()

	select {
	case <-invalidated:
		t.Fatal("invalidate returned while a load was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	assert.Equal(t, uint64(100), (<-loaded).ClaimedAmount)
	<-invalidated

	// the value loaded before the invalidation is gone
	schedule, err := cache.Get(context.Background(), cacheTestKey)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), schedule.ClaimedAmount)
}
