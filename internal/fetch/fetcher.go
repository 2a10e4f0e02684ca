package fetch

import (
	"context"
	"time"
)

// Filters narrow a platform search to a group's refinement configuration
// and fetch window.
type Filters struct {
	IncludeKeywords []string  `json:"includeKeywords,omitempty"`
	ExcludeKeywords []string  `json:"excludeKeywords,omitempty"`
	Language        string    `json:"language,omitempty"`
	Country         string    `json:"country,omitempty"`
	StartDate       time.Time `json:"startDate"`
	EndDate         time.Time `json:"endDate"`
}

// Result is one normalized content item as returned by a platform search.
// Metrics hold platform-specific counters (views, likes, upvotes) as an
// opaque blob; the orchestrator never interprets them.
type Result struct {
	Author      string           `json:"author"`
	Content     string           `json:"content"`
	Metrics     map[string]int64 `json:"metrics,omitempty"`
	SourceURL   string           `json:"sourceUrl"`
	PublishedAt time.Time        `json:"publishedAt"`
}

// Fetcher is the per-platform search contract. Implementations wrap the
// platform's API; a call either yields normalized results or an error.
type Fetcher interface {
	Search(ctx context.Context, keyword string, f Filters) ([]Result, error)
}

// Registry maps platform names to their fetchers.
type Registry map[string]Fetcher

// Lookup returns the fetcher for a platform, or false if none is
// registered. An unregistered platform is treated by the executor like a
// failed fetch, isolated to its (platform, keyword) pair.
func (r Registry) Lookup(platform string) (Fetcher, bool) {
	f, ok := r[platform]
	return f, ok
}
