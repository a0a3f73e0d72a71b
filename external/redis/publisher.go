package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/qubic/go-vesting-ledger/entities"
	"github.com/redis/go-redis/v9"
)

// Publisher appends events to a redis stream. The stream is trimmed approximately to maxLen entries.
type Publisher struct {
	rdb    redis.Cmdable
	stream string
	maxLen int64
}

func NewPublisher(rdb redis.Cmdable, stream string, maxLen int64) *Publisher {
	return &Publisher{
		rdb:    rdb,
		stream: stream,
		maxLen: maxLen,
	}
}

func (p *Publisher) PublishEvents(ctx context.Context, events []entities.Event) error {
	pipe := p.rdb.Pipeline()
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshalling event to json: %w", err)
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: p.stream,
			MaxLen: p.maxLen,
			Approx: p.maxLen > 0,
			Values: map[string]any{
				"type":     string(event.Type),
				"schedule": event.Schedule,
				"payload":  payload,
			},
		})
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("adding events to stream [%s]: %w", p.stream, err)
	}
	return nil
}
