package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/eminsights/mention-radar/backend/internal/models"
)

// ActiveBrands returns every brand with active=true. The dispatcher calls
// this on each bucket tick; the brand population is small enough for one
// page.
func (c *Client) ActiveBrands(ctx context.Context) ([]models.Brand, error) {
	body := map[string]any{
		"size": 1000,
		"query": map[string]any{
			"term": map[string]any{
				"active": true,
			},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal brands query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.brandsIndex),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search brands: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search brands failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source models.Brand `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode brands response: %w", err)
	}

	brands := make([]models.Brand, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		brands = append(brands, hit.Source)
	}

	return brands, nil
}

// GetBrand fetches one brand by its unique name, which doubles as the
// document ID. Returns ErrNotFound when absent.
func (c *Client) GetBrand(ctx context.Context, brandName string) (*models.Brand, error) {
	req := esapi.GetRequest{
		Index:      c.brandsIndex,
		DocumentID: brandName,
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return nil, fmt.Errorf("get brand: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("get brand failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Source models.Brand `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode brand document: %w", err)
	}

	return &parsed.Source, nil
}

// UpdateGroupRunState writes lastRun/nextRun back into the embedded group.
// The update is a scripted in-place edit of the brand document with no
// locking; concurrent updates to the same group are last-write-wins, which
// matches the run-state contract.
func (c *Client) UpdateGroupRunState(ctx context.Context, brandName, groupID string, lastRun, nextRun time.Time) error {
	body := map[string]any{
		"script": map[string]any{
			"lang": "painless",
			"source": `
				for (g in ctx._source.keywordGroups) {
					if (g.id == params.groupId) {
						g.lastRun = params.lastRun;
						g.nextRun = params.nextRun;
					}
				}
			`,
			"params": map[string]any{
				"groupId": groupID,
				"lastRun": lastRun.UTC().Format(time.RFC3339),
				"nextRun": nextRun.UTC().Format(time.RFC3339),
			},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal run-state update: %w", err)
	}

	req := esapi.UpdateRequest{
		Index:      c.brandsIndex,
		DocumentID: brandName,
		Body:       bytes.NewReader(payload),
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("update run state: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("update run state failed: %s", strings.TrimSpace(string(data)))
	}

	return nil
}
