package consume

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/pkg/errors"
	"github.com/qubic/go-vesting-ledger/entities"
	"github.com/qubic/go-vesting-ledger/external/elastic"
)

type KafkaClient interface {
	PollEvents(ctx context.Context) ([]*entities.EventRecord, error)
	Commit(ctx context.Context) error
	AllowRebalance()
}

type ElasticClient interface {
	BulkIndex(ctx context.Context, data []*elastic.EsDocument) error
}

type Metrics interface {
	AddIndexedEvents(count int, lastTimestamp int64)
}

type EventProcessor struct {
	kafkaClient   KafkaClient
	elasticClient ElasticClient
	metrics       Metrics
}

func NewEventProcessor(kafkaClient KafkaClient, elasticClient ElasticClient, metrics Metrics) *EventProcessor {
	return &EventProcessor{
		kafkaClient:   kafkaClient,
		elasticClient: elasticClient,
		metrics:       metrics,
	}
}

// Consume indexes batches until the context is cancelled or a batch fails.
func (p *EventProcessor) Consume(ctx context.Context) error {
	log.Println("Starting consume loop")
	for ctx.Err() == nil {
		count, err := p.consumeBatch(ctx)
		if err != nil {
			// abort on error and fix issue
			log.Println("Error consuming batch.")
			return errors.Wrap(err, "consuming batch")
		}
		if count > 0 {
			log.Printf("Processed [%d] events.", count)
		}
		time.Sleep(100 * time.Millisecond)
	}
	return nil
}

func (p *EventProcessor) consumeBatch(ctx context.Context) (int, error) {
	defer p.kafkaClient.AllowRebalance()
	records, err := p.kafkaClient.PollEvents(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "polling kafka messages")
	}

	if len(records) > 0 {
		err = p.sendToElastic(ctx, records)
		if err != nil {
			return 0, errors.Wrap(err, "sending event batch to elastic")
		}
	}

	err = p.kafkaClient.Commit(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "committing kafka batch")
	}

	if len(records) > 0 {
		p.metrics.AddIndexedEvents(len(records), records[len(records)-1].Event.Timestamp)
	}
	return len(records), nil
}

func (p *EventProcessor) sendToElastic(ctx context.Context, records []*entities.EventRecord) error {
	documents := make([]*elastic.EsDocument, 0, len(records))
	for _, record := range records {
		document, err := convertToDocument(record)
		if err != nil {
			return errors.Wrap(err, "converting event to elastic document")
		}
		documents = append(documents, document)
	}
	err := p.elasticClient.BulkIndex(ctx, documents)
	if err != nil {
		return errors.Wrap(err, "bulk indexing elastic documents")
	}
	return nil
}

type eventDocument struct {
	entities.Event
	Partition int32 `json:"partition"`
	Offset    int64 `json:"offset"`
}

func convertToDocument(record *entities.EventRecord) (*elastic.EsDocument, error) {
	val, err := json.Marshal(eventDocument{
		Event:     record.Event,
		Partition: record.Partition,
		Offset:    record.Offset,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "marshalling event %+v", record.Event)
	}
	return &elastic.EsDocument{
		Id:      documentId(record),
		Payload: val,
	}, nil
}

// documentId is stable for a record, re-indexing after a failed commit overwrites instead of duplicating.
func documentId(record *entities.EventRecord) string {
	event := record.Event
	return fmt.Sprintf("%s-%s-%d-%d", event.Schedule, event.Type, event.Timestamp, record.Offset)
}
