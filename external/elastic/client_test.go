package elastic

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bulkItem struct {
	Index struct {
		Id     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
	} `json:"index"`
}

// fakeBulkServer answers bulk requests, failing every document whose id is in failIds.
type fakeBulkServer struct {
	failIds   map[string]bool
	lock      sync.Mutex
	documents map[string]string
}

func (f *fakeBulkServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	if !strings.HasSuffix(r.URL.Path, "/_bulk") {
		_, _ = w.Write([]byte(`{}`))
		return
	}

	var items []map[string]bulkItem
	hasErrors := false
	scanner := bufio.NewScanner(r.Body)
	for scanner.Scan() {
		var action map[string]struct {
			Id string `json:"_id"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &action); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		scanner.Scan()
		id := action["index"].Id

		var item bulkItem
		item.Index.Id = id
		if f.failIds[id] {
			hasErrors = true
			item.Index.Status = http.StatusBadRequest
			item.Index.Error = &struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			}{Type: "mapper_parsing_exception", Reason: "test"}
		} else {
			item.Index.Status = http.StatusCreated
			f.lock.Lock()
			f.documents[id] = scanner.Text()
			f.lock.Unlock()
		}
		items = append(items, map[string]bulkItem{"index": item})
	}

	_ = json.NewEncoder(w).Encode(map[string]any{"took": 1, "errors": hasErrors, "items": items})
}

func newTestClient(t *testing.T, failIds ...string) (*Client, *fakeBulkServer) {
	fake := &fakeBulkServer{failIds: make(map[string]bool), documents: make(map[string]string)}
	for _, id := range failIds {
		fake.failIds[id] = true
	}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	esClient, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{server.URL}})
	require.NoError(t, err)
	return NewClient(esClient, "vesting-events"), fake
}

func TestClient_BulkIndex(t *testing.T) {
	client, fake := newTestClient(t)

	documents := []*EsDocument{
		{Id: "a/QU/x-tokens_claimed-1500-1", Payload: []byte(`{"amount":1}`)},
		{Id: "a/QU/x-tokens_claimed-1600-2", Payload: []byte(`{"amount":2}`)},
	}
	err := client.BulkIndex(context.Background(), documents)
	require.NoError(t, err)

	assert.Len(t, fake.documents, 2)
	assert.Equal(t, `{"amount":2}`, fake.documents["a/QU/x-tokens_claimed-1600-2"])
}

func TestClient_BulkIndex_givenFailedDocument_thenError(t *testing.T) {
	client, _ := newTestClient(t, "broken")

	documents := []*EsDocument{
		{Id: "ok", Payload: []byte(`{}`)},
		{Id: "broken", Payload: []byte(`{}`)},
	}
	err := client.BulkIndex(context.Background(), documents)
	assert.ErrorContains(t, err, "1 errors indexing")
	assert.ErrorContains(t, err, "first rejected [broken]")
}
