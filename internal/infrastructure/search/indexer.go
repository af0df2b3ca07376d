// Package search keeps the credential projection in Elasticsearch.
package search

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/samber/oops"

	"github.com/oksasatya/go-credential-service/internal/domain/entity"
)

const (
	defaultSize = 10
	maxSize     = 50
)

// NewClient creates an Elasticsearch client with optional basic auth.
func NewClient(addrs []string, username, password string) (*elasticsearch.Client, error) {
	cfg := elasticsearch.Config{
		Addresses: addrs,
		Username:  username,
		Password:  password,
		Transport: &http.Transport{
			MaxIdleConnsPerHost:   10,
			ResponseHeaderTimeout: 5 * time.Second,
			TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
			DialContext:           (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		},
	}
	return elasticsearch.NewClient(cfg)
}

type Indexer struct {
	es      *elasticsearch.Client
	index   string
	timeout time.Duration
}

func NewIndexer(es *elasticsearch.Client, index string) *Indexer {
	return &Indexer{es: es, index: index, timeout: 3 * time.Second}
}

// Index upserts v under its credential id.
func (i *Indexer) Index(ctx context.Context, v entity.View) error {
	b, err := json.Marshal(v)
	if err != nil {
		return oops.In("search").Wrap(err)
	}
	req := esapi.IndexRequest{Index: i.index, DocumentID: v.ID, Body: bytes.NewReader(b), Refresh: "false"}

	c, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	res, err := req.Do(c, i.es)
	if err != nil {
		return oops.In("search").Code("ES_INDEX_FAILED").With("credential_id", v.ID).Wrap(err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return oops.In("search").Code("ES_INDEX_FAILED").With("credential_id", v.ID).Errorf("index response: %s", res.Status())
	}
	return nil
}

// Search runs a multi_match query over email, names and phone.
func (i *Indexer) Search(ctx context.Context, q string, size int) ([]entity.View, error) {
	if size <= 0 || size > maxSize {
		size = defaultSize
	}
	query := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"fields": []string{"email^2", "first_name", "last_name", "middle_name", "phone_number"},
			},
		},
		"size": size,
	}
	b, err := json.Marshal(query)
	if err != nil {
		return nil, oops.In("search").Wrap(err)
	}

	c, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	res, err := i.es.Search(
		i.es.Search.WithContext(c),
		i.es.Search.WithIndex(i.index),
		i.es.Search.WithBody(bytes.NewReader(b)),
	)
	if err != nil {
		return nil, oops.In("search").Code("ES_SEARCH_FAILED").Wrap(err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.IsError() {
		return nil, oops.In("search").Code("ES_SEARCH_FAILED").Errorf("search response: %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string      `json:"_id"`
				Source entity.View `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, oops.In("search").Wrap(err)
	}

	out := make([]entity.View, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}
