package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/qubic/go-vesting-ledger/entities"
	"github.com/twmb/franz-go/pkg/kgo"
)

type Consumer struct {
	kcl       *kgo.Client
	batchSize int
}

func NewConsumer(kafkaClient *kgo.Client, batchSize int) *Consumer {
	return &Consumer{
		kcl:       kafkaClient,
		batchSize: batchSize,
	}
}

func (c *Consumer) PollEvents(ctx context.Context) ([]*entities.EventRecord, error) {
	fetches := c.kcl.PollRecords(ctx, c.batchSize)
	if errs := fetches.Errors(); len(errs) > 0 {
		for _, err := range errs {
			log.Printf("Error: %v", err)
		}
		return nil, errors.New("fetching records")
	}

	var messages []*entities.EventRecord
	iter := fetches.RecordIter()
	for !iter.Done() {
		record := iter.Next()
		eventRecord, err := unmarshallEventRecord(record)
		if err != nil {
			return nil, fmt.Errorf("unmarshalling record %s: %w", string(record.Value), err)
		}
		messages = append(messages, eventRecord)
	}
	return messages, nil
}

func (c *Consumer) AllowRebalance() {
	c.kcl.AllowRebalance()
}

func (c *Consumer) Commit(ctx context.Context) error {
	err := c.kcl.CommitUncommittedOffsets(ctx)
	if err != nil {
		return fmt.Errorf("committing offsets: %w", err)
	}
	return nil
}

func unmarshallEventRecord(record *kgo.Record) (*entities.EventRecord, error) {
	var event entities.Event
	err := json.Unmarshal(record.Value, &event)
	if err != nil {
		return nil, err
	}
	return &entities.EventRecord{
		Event:     event,
		Partition: record.Partition,
		Offset:    record.Offset,
	}, nil
}
