// Package catalog serves product discovery from Elasticsearch and cart/order
// operations from the merchant's commerce backend.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"commerce-orchestrator/internal/common/errors"
	"commerce-orchestrator/internal/common/logger"
	"commerce-orchestrator/internal/models"
)

const defaultSearchSize = 5

// Product is one catalog hit returned to a handler.
type Product struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Brand    string  `json:"brand"`
	Color    string  `json:"color"`
	Size     string  `json:"size"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
	ImageURL string  `json:"imageUrl"`
	InStock  bool    `json:"inStock"`
}

// Search runs entity-filtered product queries against the merchant's index.
// The transport is satisfied by *elasticsearch.Client and by test fakes.
type Search struct {
	es     esapi.Transport
	index  string
	logger logger.Logger
}

func NewSearch(es esapi.Transport, index string, log logger.Logger) *Search {
	if index == "" {
		index = "products"
	}
	return &Search{
		es:     es,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "catalog-search"}),
	}
}

// Find returns up to defaultSearchSize in-stock products matching the carried
// entities for the merchant.
func (s *Search) Find(ctx context.Context, merchantID string, entities models.Entities) ([]Product, error) {
	body, err := json.Marshal(buildQuery(merchantID, entities, defaultSearchSize))
	if err != nil {
		return nil, errors.NewCatalogError("search", err)
	}

	req := esapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.es)
	if err != nil {
		return nil, errors.NewCatalogError("search", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, errors.NewCatalogError("search", fmt.Errorf("status %s", res.Status()))
	}
	return decodeHits(res.Body)
}

// buildQuery maps the extracted entities onto an ES bool query. Category is a
// full-text match; size, color and brand are exact term filters; budget bounds
// the price range. Out-of-stock items are always excluded.
func buildQuery(merchantID string, e models.Entities, size int) map[string]interface{} {
	filter := []map[string]interface{}{
		{"term": map[string]interface{}{"merchant_id": merchantID}},
		{"term": map[string]interface{}{"in_stock": true}},
	}
	var must []map[string]interface{}

	if e.Category != "" {
		must = append(must, map[string]interface{}{
			"match": map[string]interface{}{"category": e.Category},
		})
	}
	if e.Brand != "" {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"brand": e.Brand},
		})
	}
	if e.Color != "" {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"color": e.Color},
		})
	}
	if e.Size != "" {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"size": e.Size},
		})
	}
	if e.Budget != nil && e.Budget.Amount > 0 {
		filter = append(filter, map[string]interface{}{
			"range": map[string]interface{}{
				"price": map[string]interface{}{"lte": e.Budget.Amount},
			},
		})
	}

	boolQuery := map[string]interface{}{"filter": filter}
	if len(must) > 0 {
		boolQuery["must"] = must
	}

	return map[string]interface{}{
		"size":  size,
		"query": map[string]interface{}{"bool": boolQuery},
		"sort": []map[string]interface{}{
			{"price": map[string]interface{}{"order": "asc"}},
		},
	}
}

func decodeHits(body io.Reader) ([]Product, error) {
	var envelope struct {
		Hits struct {
			Hits []struct {
				Source Product `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(body).Decode(&envelope); err != nil {
		return nil, errors.NewCatalogError("search", fmt.Errorf("decode response: %w", err))
	}

	products := make([]Product, 0, len(envelope.Hits.Hits))
	for _, hit := range envelope.Hits.Hits {
		products = append(products, hit.Source)
	}
	return products, nil
}
