package elastic

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
)

// EsDocument is a serialized document. Indexing the same id again replaces the document.
type EsDocument struct {
	Id      string
	Payload []byte
}

type Client struct {
	esClient  *elasticsearch.Client
	indexName string
}

func NewClient(esClient *elasticsearch.Client, indexName string) *Client {
	return &Client{
		esClient:  esClient,
		indexName: indexName,
	}
}

// BulkIndex indexes all documents and fails if elastic rejected any of them.
func (c *Client) BulkIndex(ctx context.Context, documents []*EsDocument) error {
	started := time.Now()
	indexer, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Index:      c.indexName,
		Client:     c.esClient,
		NumWorkers: min(runtime.NumCPU(), 8),
	})
	if err != nil {
		return fmt.Errorf("creating bulk indexer: %w", err)
	}

	failures := &rejectedDocuments{}
	for _, document := range documents {
		err = indexer.Add(ctx, esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: document.Id,
			Body:       bytes.NewReader(document.Payload),
			OnFailure:  failures.record,
		})
		if err != nil {
			return fmt.Errorf("adding document [%s] to bulk indexer: %w", document.Id, err)
		}
	}

	if err := indexer.Close(ctx); err != nil {
		return fmt.Errorf("closing bulk indexer: %w", err)
	}

	stats := indexer.Stats()
	if stats.NumFailed > 0 {
		return fmt.Errorf("%d errors indexing [%d] documents, first rejected [%s]", stats.NumFailed, stats.NumFlushed, failures.first())
	}
	log.Printf("Indexed %d documents (%d bytes, %d requests) in %dms.",
		stats.NumFlushed, stats.FlushedBytes, stats.NumRequests, time.Since(started).Milliseconds())
	return nil
}

// rejectedDocuments collects failures reported concurrently by the bulk indexer workers.
type rejectedDocuments struct {
	lock sync.Mutex
	ids  []string
}

func (r *rejectedDocuments) record(_ context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
	if err != nil {
		log.Printf("Error indexing document [%s]: %v", item.DocumentID, err)
	} else {
		log.Printf("Error indexing document [%s]: [%s: %s]", item.DocumentID, res.Error.Type, res.Error.Reason)
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	r.ids = append(r.ids, item.DocumentID)
}

func (r *rejectedDocuments) first() string {
	r.lock.Lock()
	defer r.lock.Unlock()
	if len(r.ids) == 0 {
		return ""
	}
	return r.ids[0]
}
