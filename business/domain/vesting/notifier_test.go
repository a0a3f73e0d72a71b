package vesting

import (
	"context"
	"testing"
	"time"

	"github.com/qubic/go-vesting-ledger/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type FakeNotificationMetrics struct {
	failed int
}

func (f *FakeNotificationMetrics) AddFailedNotifications(count int) {
	f.failed += count
}

type slowPublisher struct {
	deadlineSet bool
}

func (s *slowPublisher) PublishEvents(ctx context.Context, _ []entities.Event) error {
	_, s.deadlineSet = ctx.Deadline()
	<-ctx.Done()
	return ctx.Err()
}

func TestNotifier_PublishEvents_deliversToAllSinks(t *testing.T) {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	first := &MockPublisher{}
	second := &MockPublisher{}
	failing := &MockPublisher{shouldError: true}
	notificationMetrics := &FakeNotificationMetrics{}
	notifier := NewNotifier(time.Second, notificationMetrics, logger.Sugar(), first, failing, second)

	events := []entities.Event{
		entities.NewTokensClaimedEvent(entities.ScheduleKey{Beneficiary: "a", Asset: "b", Name: "c"}, 10, 1500),
		entities.NewScheduleRevokedEvent(entities.ScheduleKey{Beneficiary: "a", Asset: "b", Name: "c"}, 90, 1600),
	}
	err = notifier.PublishEvents(context.Background(), events)
	require.NoError(t, err)

	assert.Equal(t, events, first.events)
	assert.Equal(t, events, second.events)
	assert.Equal(t, 2, notificationMetrics.failed)
}

func TestNotifier_PublishEvents_givenCancelledRequest_thenStillDelivers(t *testing.T) {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	sink := &MockPublisher{}
	slow := &slowPublisher{}
	notificationMetrics := &FakeNotificationMetrics{}
	notifier := NewNotifier(50*time.Millisecond, notificationMetrics, logger.Sugar(), sink, slow)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = notifier.PublishEvents(ctx, []entities.Event{{Type: entities.EventTokensClaimed, Schedule: "a/b/c"}})
	require.NoError(t, err)
	assert.Len(t, sink.events, 1)
	assert.True(t, slow.deadlineSet)
	assert.Equal(t, 1, notificationMetrics.failed) // the slow sink timed out
}

func TestNotifier_PublishEvents_givenNoSinks_thenNoop(t *testing.T) {
	notifier := NewNotifier(time.Second, &FakeNotificationMetrics{}, zap.NewNop().Sugar())
	assert.NoError(t, notifier.PublishEvents(context.Background(), []entities.Event{{}}))
}
