package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/qubic/go-vesting-ledger/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

type MockKafkaClient struct {
	shouldError bool
	records     []*kgo.Record
	lock        sync.Mutex
}

func (mkc *MockKafkaClient) Produce(_ context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	mkc.lock.Lock()
	mkc.records = append(mkc.records, r)
	mkc.lock.Unlock()

	if mkc.shouldError {
		go promise(nil, errors.New("dummy error"))
		return
	}

	go promise(r, nil)
}

var testKey = entities.ScheduleKey{Beneficiary: "alice", Asset: "QU", Name: "team"}

func TestClient_PublishEvents(t *testing.T) {

	testData := []struct {
		name        string
		events      []entities.Event
		shouldError bool
	}{
		{
			name: "TestPublishEvents_1",
			events: []entities.Event{
				entities.NewScheduleCreatedEvent(entities.VestingSchedule{
					Beneficiary: "alice", Creator: "bob", Asset: "QU", Name: "team", TotalAmount: 1000, CreatedAt: 900,
				}),
				entities.NewTokensClaimedEvent(testKey, 600, 1500),
				entities.NewScheduleRevokedEvent(testKey, 400, 1600),
			},
			shouldError: false,
		},
		{
			name: "TestPublishEvents_2",
			events: []entities.Event{
				entities.NewTokensClaimedEvent(testKey, 600, 1500),
			},
			shouldError: true,
		},
	}

	for _, testRun := range testData {
		t.Run(testRun.name, func(t *testing.T) {

			mock := &MockKafkaClient{
				shouldError: testRun.shouldError,
			}
			kc := NewClient(mock)

			err := kc.PublishEvents(context.Background(), testRun.events)

			if testRun.shouldError {
				assert.Error(t, err)
				t.Logf("Err: %v", err)
				return
			}
			require.NoError(t, err)
			require.Len(t, mock.records, len(testRun.events))
			for _, record := range mock.records {
				assert.Equal(t, "alice/QU/team", string(record.Key))
			}
		})
	}
}

func TestCreateEventRecord(t *testing.T) {
	event := entities.NewTokensClaimedEvent(testKey, 600, 1500)

	record, err := createEventRecord(event)
	require.NoError(t, err)
	assert.Equal(t, []byte("alice/QU/team"), record.Key)
	require.Len(t, record.Headers, 1)
	assert.Equal(t, "tokens_claimed", string(record.Headers[0].Value))

	var decoded entities.Event
	require.NoError(t, json.Unmarshal(record.Value, &decoded))
	assert.Equal(t, event, decoded)
}

func TestUnmarshallEventRecord(t *testing.T) {
	record := &kgo.Record{
		Value:     []byte(`{"type":"schedule_revoked","schedule":"alice/QU/team","amount":400,"timestamp":1600}`),
		Partition: 3,
		Offset:    42,
	}

	eventRecord, err := unmarshallEventRecord(record)
	require.NoError(t, err)
	assert.Equal(t, &entities.EventRecord{
		Event:     entities.NewScheduleRevokedEvent(testKey, 400, 1600),
		Partition: 3,
		Offset:    42,
	}, eventRecord)

	_, err = unmarshallEventRecord(&kgo.Record{Value: []byte("not json")})
	assert.Error(t, err)
}
