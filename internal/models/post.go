package models

import "time"

// IngestedPost is the canonical record persisted for one piece of matched
// platform content. The ID is derived from (platform, sourceUrl) so repeat
// fetches of the same item collide in the store instead of duplicating.
// Posts are never mutated after creation.
type IngestedPost struct {
	ID          string           `json:"id"`
	BrandName   string           `json:"brandName"`
	GroupID     string           `json:"groupId,omitempty"`
	Platform    string           `json:"platform"`
	Keyword     string           `json:"keyword"`
	Author      string           `json:"author"`
	Content     string           `json:"content"`
	Metrics     map[string]int64 `json:"metrics,omitempty"`
	SourceURL   string           `json:"sourceUrl"`
	PublishedAt time.Time        `json:"publishedAt"`
	FetchedAt   time.Time        `json:"fetchedAt"`
}

// RunRequest is the dispatch message the scheduler publishes for each
// selected group. GroupID is empty for brand-scope runs.
type RunRequest struct {
	BrandName  string    `json:"brandName"`
	GroupID    string    `json:"groupId,omitempty"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}
