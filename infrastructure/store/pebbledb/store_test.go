package pebbledb

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/qubic/go-vesting-ledger/business/domain/vesting"
	"github.com/qubic/go-vesting-ledger/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	tempDir, err := os.MkdirTemp("", "vesting_store_test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(tempDir) })

	store, err := NewStore(tempDir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testSchedule(beneficiary, asset, name string) *entities.VestingSchedule {
	return &entities.VestingSchedule{
		Beneficiary:     beneficiary,
		Creator:         "creator",
		Asset:           asset,
		StartTime:       1000,
		EndTime:         2000,
		TotalAmount:     1000,
		CliffPercentage: 20,
		Name:            name,
		Revocable:       true,
		CreatedAt:       900,
	}
}

func TestStore_PutAndGetSchedule(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	schedule := testSchedule("alice", "QU", "team")
	schedule.PaymentInterval = 100
	schedule.ClaimedAmount = 300
	schedule.LastClaimedAt = 1600

	err := store.Update(ctx, func(tx vesting.Tx) error {
		return tx.PutSchedule(schedule)
	})
	require.NoError(t, err)

	retrieved, err := store.GetSchedule(ctx, schedule.Key())
	require.NoError(t, err)
	if diff := cmp.Diff(schedule, retrieved); diff != "" {
		t.Fatalf("Unexpected result: %v", diff)
	}
}

func TestStore_GetSchedule_givenUnknown_thenNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetSchedule(context.Background(), entities.ScheduleKey{Beneficiary: "a", Asset: "b", Name: "c"})
	require.ErrorIs(t, err, entities.ErrScheduleNotFound)
}

func TestStore_ListSchedules(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Update(ctx, func(tx vesting.Tx) error {
		for _, s := range []*entities.VestingSchedule{
			testSchedule("alice", "QU", "team"),
			testSchedule("alice", "ABC", "advisor"),
			testSchedule("alice2", "QU", "team"),
			testSchedule("alic", "QU", "team"),
			testSchedule("bob", "QU", "team"),
		} {
			if err := tx.PutSchedule(s); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	schedules, err := store.ListSchedules(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, schedules, 2)
	assert.Equal(t, "ABC", schedules[0].Asset)
	assert.Equal(t, "QU", schedules[1].Asset)

	schedules, err = store.ListSchedules(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, schedules)
}

func TestStore_Update_givenError_thenDiscardAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	schedule := testSchedule("alice", "QU", "team")

	failure := errors.New("test error")
	err := store.Update(ctx, func(tx vesting.Tx) error {
		if _, err := tx.Credit("creator", "QU", 500); err != nil {
			return err
		}
		if err := tx.PutSchedule(schedule); err != nil {
			return err
		}
		return failure
	})
	require.ErrorIs(t, err, failure)

	_, err = store.GetSchedule(ctx, schedule.Key())
	assert.ErrorIs(t, err, entities.ErrScheduleNotFound)
	balance, err := store.GetBalance(ctx, "creator", "QU")
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestStore_Update_readsOwnWrites(t *testing.T) {
	store := newTestStore(t)
	schedule := testSchedule("alice", "QU", "team")

	err := store.Update(context.Background(), func(tx vesting.Tx) error {
		if err := tx.PutSchedule(schedule); err != nil {
			return err
		}
		retrieved, err := tx.GetSchedule(schedule.Key())
		if err != nil {
			return err
		}
		assert.Equal(t, schedule, retrieved)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_Update_givenCancelledContext_thenError(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.Update(ctx, func(tx vesting.Tx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestPrefixUpperBound(t *testing.T) {
	assert.Equal(t, []byte{0x01, 'a', '0'}, prefixUpperBound([]byte{0x01, 'a', '/'}))
	assert.Equal(t, []byte{0x02}, prefixUpperBound([]byte{0x01, 0xff}))
	assert.Nil(t, prefixUpperBound([]byte{0xff, 0xff}))
}
