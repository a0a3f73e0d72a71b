package pebbledb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble/v2"
	"github.com/qubic/go-vesting-ledger/business/domain/vesting"
	"github.com/qubic/go-vesting-ledger/entities"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	scheduleKeyPrefix byte = 0x01
	balanceKeyPrefix  byte = 0x02
	custodyKeyPrefix  byte = 0x03
)

const keySeparator = '/'

type Store struct {
	db *pebble.DB
	// serializes read-modify-write transactions, reads do not take it
	writeLock sync.Mutex
}

func NewStore(storeDir string) (*Store, error) {
	db, err := pebble.Open(filepath.Join(storeDir, "vesting-ledger"), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble db: %w", err)
	}

	return &Store{db: db}, nil
}

// Update runs fn on an indexed batch and commits it if fn succeeds. Reads inside fn observe the
// writes fn already made.
func (s *Store) Update(ctx context.Context, fn func(tx vesting.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	batch := s.db.NewIndexedBatch()
	defer closeBatch(batch)

	if err := fn(&Txn{batch: batch}); err != nil {
		return err
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}
	return nil
}

func (s *Store) GetSchedule(_ context.Context, key entities.ScheduleKey) (*entities.VestingSchedule, error) {
	return getSchedule(s.db, key)
}

// ListSchedules returns all schedules of the beneficiary ordered by asset and name.
func (s *Store) ListSchedules(_ context.Context, beneficiary string) ([]*entities.VestingSchedule, error) {
	prefix := append([]byte{scheduleKeyPrefix}, beneficiary...)
	prefix = append(prefix, keySeparator)

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("creating iterator: %w", err)
	}
	defer iter.Close()

	schedules := make([]*entities.VestingSchedule, 0)
	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return nil, fmt.Errorf("getting value from iter: %w", err)
		}

		var schedule entities.VestingSchedule
		if err := msgpack.Unmarshal(value, &schedule); err != nil {
			return nil, fmt.Errorf("unmarshalling schedule [%s]: %w", string(iter.Key()[1:]), err)
		}
		schedules = append(schedules, &schedule)
	}

	return schedules, nil
}

func (s *Store) GetBalance(_ context.Context, account, asset string) (uint64, error) {
	return getBalance(s.db, account, asset)
}

func (s *Store) GetCustody(_ context.Context, key entities.ScheduleKey) (*entities.Custody, error) {
	return getCustody(s.db, key)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Txn is the view of one indexed batch. It is only valid inside Store.Update.
type Txn struct {
	batch *pebble.Batch
}

func (t *Txn) GetSchedule(key entities.ScheduleKey) (*entities.VestingSchedule, error) {
	return getSchedule(t.batch, key)
}

func (t *Txn) PutSchedule(schedule *entities.VestingSchedule) error {
	value, err := msgpack.Marshal(schedule)
	if err != nil {
		return fmt.Errorf("marshalling schedule: %w", err)
	}

	err = t.batch.Set(scheduleKey(schedule.Key()), value, nil)
	if err != nil {
		return fmt.Errorf("setting schedule: %w", err)
	}
	return nil
}

type reader interface {
	Get(key []byte) ([]byte, io.Closer, error)
}

func getSchedule(r reader, key entities.ScheduleKey) (*entities.VestingSchedule, error) {
	var schedule entities.VestingSchedule
	err := getValue(r, scheduleKey(key), &schedule)
	if errors.Is(err, entities.ErrStoreEntityNotFound) {
		return nil, entities.ErrScheduleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting schedule: %w", err)
	}
	return &schedule, nil
}

func getValue(r reader, key []byte, v any) error {
	value, closer, err := r.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return entities.ErrStoreEntityNotFound
	}
	if err != nil {
		return err
	}
	defer closeReader(closer)

	if err := msgpack.Unmarshal(value, v); err != nil {
		return fmt.Errorf("unmarshalling value: %w", err)
	}
	return nil
}

func scheduleKey(key entities.ScheduleKey) []byte {
	return append([]byte{scheduleKeyPrefix}, key.String()...)
}

// prefixUpperBound returns the smallest key greater than all keys with the given prefix.
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}
	return nil
}

func closeReader(closer io.Closer) {
	err := closer.Close()
	if err != nil {
		log.Printf("[ERROR]: Failed to close database get request: %v", err)
	}
}

func closeBatch(batch *pebble.Batch) {
	err := batch.Close()
	if err != nil {
		log.Printf("[ERROR]: Failed to close batch: %v", err)
	}
}
