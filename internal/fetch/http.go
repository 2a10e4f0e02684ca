package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPFetcher talks to the platform search proxy: one endpoint per
// platform under a shared base URL, accepting a keyword plus filters and
// returning normalized results. The proxy owns the platform API specifics.
type HTTPFetcher struct {
	platform string
	url      string
	client   *http.Client
}

// NewHTTPFetcher builds a fetcher for one platform against the proxy base
// URL. The timeout bounds each search call end to end.
func NewHTTPFetcher(baseURL, platform string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{
		platform: platform,
		url:      strings.TrimRight(baseURL, "/") + "/" + platform + "/search",
		client:   &http.Client{Timeout: timeout},
	}
}

// NewRegistry builds a Registry with one HTTPFetcher per platform name.
func NewRegistry(baseURL string, platforms []string, timeout time.Duration) Registry {
	reg := make(Registry, len(platforms))
	for _, p := range platforms {
		reg[p] = NewHTTPFetcher(baseURL, p, timeout)
	}
	return reg
}

type searchRequest struct {
	Keyword string  `json:"keyword"`
	Filters Filters `json:"filters"`
}

// Search implements Fetcher.
func (h *HTTPFetcher) Search(ctx context.Context, keyword string, f Filters) ([]Result, error) {
	payload, err := json.Marshal(searchRequest{Keyword: keyword, Filters: f})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s search: %w", h.platform, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("%s search failed: status %d: %s", h.platform, res.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed struct {
		Results []Result `json:"results"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode %s search response: %w", h.platform, err)
	}

	return parsed.Results, nil
}
