package consume

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/qubic/go-vesting-ledger/entities"
	"github.com/qubic/go-vesting-ledger/external/elastic"
	"github.com/qubic/go-vesting-ledger/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var m = metrics.NewMetrics("test")

type FakeKafkaClient struct {
	records             []*entities.EventRecord
	err                 error
	commitCount         int
	allowRebalanceCount int
}

func (f *FakeKafkaClient) PollEvents(_ context.Context) ([]*entities.EventRecord, error) {
	return f.records, f.err
}

func (f *FakeKafkaClient) Commit(_ context.Context) error {
	f.commitCount++
	return nil
}

func (f *FakeKafkaClient) AllowRebalance() {
	f.allowRebalanceCount++
}

type FakeElasticClient struct {
	lastDocuments  []*elastic.EsDocument
	err            error
	bulkIndexCount int
}

func (f *FakeElasticClient) BulkIndex(_ context.Context, documents []*elastic.EsDocument) error {
	f.lastDocuments = documents
	f.bulkIndexCount++
	return f.err
}

var testKey = entities.ScheduleKey{Beneficiary: "alice", Asset: "QU", Name: "team"}

func testRecords() []*entities.EventRecord {
	return []*entities.EventRecord{
		{Event: entities.NewTokensClaimedEvent(testKey, 600, 1500), Partition: 1, Offset: 10},
		{Event: entities.NewScheduleRevokedEvent(testKey, 400, 1600), Partition: 1, Offset: 11},
	}
}

func TestProcessor_ConsumeBatch(t *testing.T) {
	records := testRecords()
	kafkaClient := &FakeKafkaClient{records: records}
	elasticClient := &FakeElasticClient{}
	processor := NewEventProcessor(kafkaClient, elasticClient, m)

	count, err := processor.consumeBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Equal(t, 1, kafkaClient.allowRebalanceCount)
	require.Equal(t, 1, kafkaClient.commitCount)
	require.Equal(t, 1, elasticClient.bulkIndexCount)
	require.Len(t, elasticClient.lastDocuments, 2)

	doc1, err := convertToDocument(records[0])
	require.NoError(t, err)
	assert.Equal(t, doc1, elasticClient.lastDocuments[0])

	doc2, err := convertToDocument(records[1])
	require.NoError(t, err)
	assert.Equal(t, doc2, elasticClient.lastDocuments[1])
}

func TestProcessor_ConsumeBatch_givenNoRecords_thenCommitWithoutIndexing(t *testing.T) {
	kafkaClient := &FakeKafkaClient{}
	elasticClient := &FakeElasticClient{}
	processor := NewEventProcessor(kafkaClient, elasticClient, m)

	count, err := processor.consumeBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, 1, kafkaClient.commitCount)
	assert.Zero(t, elasticClient.bulkIndexCount)
}

func TestProcessor_ConsumeBatch_givenElasticError_thenDoNotCommit(t *testing.T) {
	kafkaClient := &FakeKafkaClient{records: testRecords()}
	elasticClient := &FakeElasticClient{err: errors.New("test error")}
	processor := NewEventProcessor(kafkaClient, elasticClient, m)

	_, err := processor.consumeBatch(context.Background())
	require.Error(t, err)
	assert.Zero(t, kafkaClient.commitCount)
	assert.Equal(t, 1, kafkaClient.allowRebalanceCount)
}

func TestProcessor_ConsumeBatch_givenPollError_thenError(t *testing.T) {
	kafkaClient := &FakeKafkaClient{err: errors.New("test error")}
	processor := NewEventProcessor(kafkaClient, &FakeElasticClient{}, m)

	_, err := processor.consumeBatch(context.Background())
	require.Error(t, err)
	assert.Zero(t, kafkaClient.commitCount)
}

func TestProcessor_Consume_givenCancelledContext_thenReturn(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	processor := NewEventProcessor(&FakeKafkaClient{}, &FakeElasticClient{}, m)
	assert.NoError(t, processor.Consume(ctx))
}

func TestProcessor_ConvertToDocument(t *testing.T) {
	document, err := convertToDocument(testRecords()[0])
	require.NoError(t, err)
	require.Equal(t, "alice/QU/team-tokens_claimed-1500-10", document.Id)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(document.Payload, &payload))
	assert.Equal(t, map[string]any{
		"type":      "tokens_claimed",
		"schedule":  "alice/QU/team",
		"amount":    float64(600),
		"timestamp": float64(1500),
		"partition": float64(1),
		"offset":    float64(10),
	}, payload)
}
