package vesting

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/qubic/go-vesting-ledger/entities"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Publisher interface {
	PublishEvents(ctx context.Context, events []entities.Event) error
}

type NotificationMetrics interface {
	AddFailedNotifications(count int)
}

// Notifier delivers events to all configured sinks in parallel. Delivery is best effort, a failing sink
// is logged and counted but never reported to the caller.
type Notifier struct {
	sinks   []Publisher
	timeout time.Duration
	metrics NotificationMetrics
	logger  *zap.SugaredLogger
}

func NewNotifier(timeout time.Duration, metrics NotificationMetrics, logger *zap.SugaredLogger, sinks ...Publisher) *Notifier {
	return &Notifier{
		sinks:   sinks,
		timeout: timeout,
		metrics: metrics,
		logger:  logger,
	}
}

// PublishEvents always returns nil.
func (n *Notifier) PublishEvents(ctx context.Context, events []entities.Event) error {
	if len(n.sinks) == 0 || len(events) == 0 {
		return nil
	}

	// the operation is already committed, the request being cancelled must not drop the events
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	var eg errgroup.Group
	for i, sink := range n.sinks {
		eg.Go(func() error {
			err := sink.PublishEvents(ctx, events)
			if err != nil {
				n.metrics.AddFailedNotifications(len(events))
				n.logger.Errorw("Error publishing events", "sink", i, "count", len(events), "error", err)
				return errors.Wrapf(err, "publishing to sink [%d]", i)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		n.logger.Warnw("Events were not delivered to all sinks", "error", err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, events ...entities.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishEvents(ctx, events); err != nil {
		s.logger.Errorw("Error publishing events", "error", err)
	}
}
