package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/qubic/go-vesting-ledger/entities"
	"github.com/twmb/franz-go/pkg/kgo"
)

type KafkaClient interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

type Client struct {
	kcl KafkaClient
}

func NewClient(kafkaClient KafkaClient) *Client {
	return &Client{
		kcl: kafkaClient,
	}
}

// PublishEvents produces one record per event and waits until all of them are acknowledged. Nothing is
// produced if one of the events cannot be encoded.
func (kc *Client) PublishEvents(ctx context.Context, events []entities.Event) error {
	records := make([]*kgo.Record, 0, len(events))
	for _, event := range events {
		record, err := createEventRecord(event)
		if err != nil {
			return fmt.Errorf("creating record for [%s] event of [%s]: %w", event.Type, event.Schedule, err)
		}
		records = append(records, record)
	}

	var wg sync.WaitGroup
	var failed atomic.Int32
	wg.Add(len(records))
	for _, record := range records {
		kc.kcl.Produce(ctx, record, func(_ *kgo.Record, err error) {
			defer wg.Done()
			if err != nil {
				log.Printf("Error producing event record for [%s]: %v", string(record.Key), err)
				failed.Add(1)
			}
		})
	}
	wg.Wait()

	if count := failed.Load(); count > 0 {
		return fmt.Errorf("producing event records: [%d] of [%d] failed", count, len(records))
	}
	return nil
}

// createEventRecord keys records by schedule, so all events of one schedule land on the same partition in order.
func createEventRecord(event entities.Event) (*kgo.Record, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshalling event to json: %w", err)
	}

	return &kgo.Record{
		Key:   []byte(event.Schedule),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "type", Value: []byte(event.Type)},
		},
	}, nil
}
