package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eminsights/mention-radar/backend/internal/dedupe"
	"github.com/eminsights/mention-radar/backend/internal/fetch"
	"github.com/eminsights/mention-radar/backend/internal/metrics"
	"github.com/eminsights/mention-radar/backend/internal/models"
	"github.com/eminsights/mention-radar/backend/internal/processing"
	"github.com/eminsights/mention-radar/backend/internal/store"
)

const (
	// minLookback floors the fetch window so short cadences still cover
	// platform-side indexing drift between runs.
	minLookback = time.Hour

	// indexingLag trims the window's trailing edge to avoid racing items
	// that platforms are still indexing.
	indexingLag = 10 * time.Second

	// fallbackPeriod advances nextRun for groups whose stored cadence is
	// not a known bucket (the schema default is 30m).
	fallbackPeriod = 30 * time.Minute
)

// ResultStore is the slice of the store the executor needs.
type ResultStore interface {
	GetBrand(ctx context.Context, brandName string) (*models.Brand, error)
	BulkInsertPosts(ctx context.Context, posts []models.IngestedPost) (store.BulkResult, error)
	UpdateGroupRunState(ctx context.Context, brandName, groupID string, lastRun, nextRun time.Time) error
}

// Summary reports one completed run.
type Summary struct {
	BrandName   string    `json:"brandName"`
	GroupID     string    `json:"groupId,omitempty"`
	Fetched     int       `json:"fetched"`
	Persisted   int       `json:"persisted"`
	Duplicates  int       `json:"duplicates"`
	FailedPairs int       `json:"failedPairs"`
	LastRun     time.Time `json:"lastRun,omitzero"`
	NextRun     time.Time `json:"nextRun,omitzero"`
}

// Executor runs one ingestion pass for a group or brand scope: window
// computation, platform x keyword fan-out, aggregation, duplicate-tolerant
// persistence, and run-state advance.
type Executor struct {
	store        ResultStore
	fetchers     fetch.Registry
	cache        *dedupe.Cache
	log          *slog.Logger
	fetchTimeout time.Duration
	now          func() time.Time
}

// NewExecutor wires an executor. The cache is optional; with nil every
// candidate post goes straight to the store's create-only insert.
func NewExecutor(st ResultStore, fetchers fetch.Registry, cache *dedupe.Cache, log *slog.Logger, fetchTimeout time.Duration) *Executor {
	if fetchTimeout <= 0 {
		fetchTimeout = 30 * time.Second
	}
	return &Executor{
		store:        st,
		fetchers:     fetchers,
		cache:        cache,
		log:          log,
		fetchTimeout: fetchTimeout,
		now:          time.Now,
	}
}

// fetchWindow derives the window for one run. The lookback is
// max(cadence period, minLookback); the trailing edge is now-indexingLag.
func fetchWindow(now time.Time, cadence models.Cadence) (start, end time.Time) {
	lookback := minLookback
	if p := cadence.Period(); p > lookback {
		lookback = p
	}
	return now.Add(-lookback), now.Add(-indexingLag)
}

// RunGroup executes one ingestion pass for a single keyword group.
// Rejections (*Rejection) leave run-state untouched; only a completed pass
// advances lastRun/nextRun.
func (e *Executor) RunGroup(ctx context.Context, brandName, groupID string) (*Summary, error) {
	brand, err := e.store.GetBrand(ctx, brandName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrBrandNotFound
		}
		return nil, fmt.Errorf("load brand %q: %w", brandName, err)
	}

	group := brand.Group(groupID)
	if group == nil {
		return nil, ErrGroupNotFound
	}
	if group.Status == models.StatusPaused {
		return nil, ErrGroupPaused
	}

	now := e.now().UTC()
	start, end := fetchWindow(now, group.Cadence)

	filters := fetch.Filters{
		IncludeKeywords: group.IncludeKeywords,
		ExcludeKeywords: group.ExcludeKeywords,
		Language:        group.Language,
		Country:         group.Country,
		StartDate:       start,
		EndDate:         end,
	}

	summary := &Summary{BrandName: brandName, GroupID: groupID}
	posts := e.fanOut(ctx, scope{
		brandName: brandName,
		groupID:   groupID,
		keywords:  group.Keywords,
		platforms: group.Platforms,
		filters:   filters,
	}, summary)

	if err := e.persist(ctx, posts, summary); err != nil {
		metrics.RunsTotal.WithLabelValues("group", "failure").Inc()
		return nil, err
	}

	period := group.Cadence.Period()
	if period <= 0 {
		e.log.Warn("group has unknown cadence, using fallback period",
			slog.String("brand", brandName),
			slog.String("group", groupID),
			slog.String("cadence", string(group.Cadence)),
		)
		period = fallbackPeriod
	}

	summary.LastRun = now
	summary.NextRun = now.Add(period)
	if err := e.store.UpdateGroupRunState(ctx, brandName, groupID, summary.LastRun, summary.NextRun); err != nil {
		metrics.RunsTotal.WithLabelValues("group", "failure").Inc()
		return nil, fmt.Errorf("update run state for group %q: %w", groupID, err)
	}

	metrics.RunsTotal.WithLabelValues("group", "success").Inc()
	e.log.Info("group run completed",
		slog.String("brand", brandName),
		slog.String("group", groupID),
		slog.Int("fetched", summary.Fetched),
		slog.Int("persisted", summary.Persisted),
		slog.Int("duplicates", summary.Duplicates),
		slog.Int("failed_pairs", summary.FailedPairs),
	)
	return summary, nil
}

// RunBrand executes one ingestion pass over the union of all of a brand's
// group configurations. Brand runs are on-demand only and never write
// run-state.
func (e *Executor) RunBrand(ctx context.Context, brandName string) (*Summary, error) {
	brand, err := e.store.GetBrand(ctx, brandName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrBrandNotFound
		}
		return nil, fmt.Errorf("load brand %q: %w", brandName, err)
	}

	agg := aggregateScope(brand)
	if len(agg.keywords) == 0 {
		return nil, ErrNoKeywords
	}
	if len(agg.platforms) == 0 {
		return nil, ErrNoPlatforms
	}

	now := e.now().UTC()
	start, end := fetchWindow(now, "")
	agg.filters.StartDate = start
	agg.filters.EndDate = end
	agg.brandName = brandName

	summary := &Summary{BrandName: brandName}
	posts := e.fanOut(ctx, agg, summary)

	if err := e.persist(ctx, posts, summary); err != nil {
		metrics.RunsTotal.WithLabelValues("brand", "failure").Inc()
		return nil, err
	}

	metrics.RunsTotal.WithLabelValues("brand", "success").Inc()
	e.log.Info("brand run completed",
		slog.String("brand", brandName),
		slog.Int("fetched", summary.Fetched),
		slog.Int("persisted", summary.Persisted),
		slog.Int("duplicates", summary.Duplicates),
		slog.Int("failed_pairs", summary.FailedPairs),
	)
	return summary, nil
}

// scope is the resolved fan-out input for one run.
type scope struct {
	brandName string
	groupID   string
	keywords  []string
	platforms []string
	filters   fetch.Filters
}

// aggregateScope unions every group's keywords, refinements, and platforms
// into one brand-wide scope. Language/country come from the first group
// that sets them.
func aggregateScope(brand *models.Brand) scope {
	var s scope
	for _, group := range brand.KeywordGroups {
		s.keywords = appendUnique(s.keywords, group.Keywords...)
		s.platforms = appendUnique(s.platforms, group.Platforms...)
		s.filters.IncludeKeywords = appendUnique(s.filters.IncludeKeywords, group.IncludeKeywords...)
		s.filters.ExcludeKeywords = appendUnique(s.filters.ExcludeKeywords, group.ExcludeKeywords...)
		if s.filters.Language == "" {
			s.filters.Language = group.Language
		}
		if s.filters.Country == "" {
			s.filters.Country = group.Country
		}
	}
	return s
}

// fanOut queries every (platform, keyword) pair concurrently, each bounded
// by its own timeout. A pair failure contributes zero items and increments
// FailedPairs; it never fails the run. Item order within a pair is
// preserved; there is no ordering across pairs.
func (e *Executor) fanOut(ctx context.Context, s scope, summary *Summary) []models.IngestedPost {
	var (
		mu    sync.Mutex
		posts []models.IngestedPost
		wg    sync.WaitGroup
	)

	for _, platform := range s.platforms {
		fetcher, ok := e.fetchers.Lookup(platform)
		if !ok {
			e.log.Warn("no fetcher registered for platform", slog.String("platform", platform))
			mu.Lock()
			summary.FailedPairs += len(s.keywords)
			mu.Unlock()
			metrics.FetchFailures.WithLabelValues(platform).Add(float64(len(s.keywords)))
			continue
		}

		for _, keyword := range s.keywords {
			wg.Add(1)
			go func(platform, keyword string, fetcher fetch.Fetcher) {
				defer wg.Done()

				fctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
				defer cancel()

				results, err := fetcher.Search(fctx, keyword, s.filters)
				if err != nil {
					e.log.Warn("platform fetch failed",
						slog.String("platform", platform),
						slog.String("keyword", keyword),
						slog.Any("err", err),
					)
					metrics.FetchFailures.WithLabelValues(platform).Inc()
					mu.Lock()
					summary.FailedPairs++
					mu.Unlock()
					return
				}

				batch := e.tagResults(s, platform, keyword, results)
				mu.Lock()
				summary.Fetched += len(results)
				posts = append(posts, batch...)
				mu.Unlock()
			}(platform, keyword, fetcher)
		}
	}

	wg.Wait()
	return posts
}

// tagResults converts raw platform results into IngestedPosts. The
// include/exclude refinement terms are applied again on the normalized
// content regardless of what the platform side filtered.
func (e *Executor) tagResults(s scope, platform, keyword string, results []fetch.Result) []models.IngestedPost {
	now := e.now().UTC()
	posts := make([]models.IngestedPost, 0, len(results))
	for _, r := range results {
		if !processing.MatchesFilters(r.Content, s.filters.IncludeKeywords, s.filters.ExcludeKeywords) {
			continue
		}

		id := processing.BuildPostID(platform, r.SourceURL)
		if id == "" {
			id = uuid.NewString()
		}

		publishedAt := r.PublishedAt
		if publishedAt.IsZero() {
			publishedAt = now
		}

		posts = append(posts, models.IngestedPost{
			ID:          id,
			BrandName:   s.brandName,
			GroupID:     s.groupID,
			Platform:    platform,
			Keyword:     keyword,
			Author:      r.Author,
			Content:     r.Content,
			Metrics:     r.Metrics,
			SourceURL:   r.SourceURL,
			PublishedAt: publishedAt,
			FetchedAt:   now,
		})
	}
	return posts
}

// persist bulk-writes the aggregated posts. Store-side duplicates are
// normal operation (overlapping windows); any other persistence error
// fails the run with already-written items left in place.
func (e *Executor) persist(ctx context.Context, posts []models.IngestedPost, summary *Summary) error {
	if e.cache != nil {
		unseen := make(map[string]struct{})
		for _, id := range e.cache.FilterUnseen(postIDs(posts)) {
			unseen[id] = struct{}{}
		}
		kept := posts[:0]
		for _, p := range posts {
			if _, ok := unseen[p.ID]; ok {
				kept = append(kept, p)
			} else {
				summary.Duplicates++
			}
		}
		posts = kept
	}

	if len(posts) == 0 {
		return nil
	}

	result, err := e.store.BulkInsertPosts(ctx, posts)
	summary.Persisted += result.Created
	summary.Duplicates += result.Duplicates
	metrics.PostsPersisted.Add(float64(result.Created))
	metrics.PostsDuplicate.Add(float64(result.Duplicates))
	if err != nil {
		return fmt.Errorf("persist posts: %w", err)
	}

	if e.cache != nil {
		for _, p := range posts {
			e.cache.MarkSeen(p.ID)
		}
	}
	return nil
}

func postIDs(posts []models.IngestedPost) []string {
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		seen := false
		for _, existing := range dst {
			if existing == v {
				seen = true
				break
			}
		}
		if !seen {
			dst = append(dst, v)
		}
	}
	return dst
}
