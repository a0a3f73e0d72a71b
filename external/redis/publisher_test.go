package redis

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/qubic/go-vesting-ledger/entities"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestPublisher(t *testing.T) (*Publisher, *redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return NewPublisher(client, "vesting-events", 0), client, mr
}

func TestPublisher_PublishEvents(t *testing.T) {
	publisher, client, mr := setupTestPublisher(t)
	defer mr.Close()
	ctx := context.Background()

	key := entities.ScheduleKey{Beneficiary: "alice", Asset: "QU", Name: "team"}
	events := []entities.Event{
		entities.NewTokensClaimedEvent(key, 600, 1500),
		entities.NewScheduleRevokedEvent(key, 400, 1600),
	}
	err := publisher.PublishEvents(ctx, events)
	require.NoError(t, err)

	messages, err := client.XRange(ctx, "vesting-events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, messages, 2)

	for i, message := range messages {
		assert.Equal(t, string(events[i].Type), message.Values["type"])
		assert.Equal(t, "alice/QU/team", message.Values["schedule"])

		var decoded entities.Event
		require.NoError(t, json.Unmarshal([]byte(message.Values["payload"].(string)), &decoded))
		assert.Equal(t, events[i], decoded)
	}
}

func TestPublisher_PublishEvents_givenServerDown_thenError(t *testing.T) {
	publisher, _, mr := setupTestPublisher(t)
	mr.Close()

	err := publisher.PublishEvents(context.Background(), []entities.Event{{Type: entities.EventTokensClaimed, Schedule: "a/b/c"}})
	assert.Error(t, err)
}
