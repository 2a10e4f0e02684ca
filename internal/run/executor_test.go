package run

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eminsights/mention-radar/backend/internal/dedupe"
	"github.com/eminsights/mention-radar/backend/internal/fetch"
	"github.com/eminsights/mention-radar/backend/internal/models"
	"github.com/eminsights/mention-radar/backend/internal/store"
)

type stateUpdate struct {
	brandName string
	groupID   string
	lastRun   time.Time
	nextRun   time.Time
}

type stubStore struct {
	mu         sync.Mutex
	brands     map[string]*models.Brand
	inserted   []models.IngestedPost
	known      map[string]struct{}
	failInsert error
	updates    []stateUpdate
}

func newStubStore(brands ...*models.Brand) *stubStore {
	s := &stubStore{
		brands: make(map[string]*models.Brand),
		known:  make(map[string]struct{}),
	}
	for _, b := range brands {
		s.brands[b.BrandName] = b
	}
	return s
}

func (s *stubStore) GetBrand(_ context.Context, brandName string) (*models.Brand, error) {
	b, ok := s.brands[brandName]
	if !ok {
		return nil, store.ErrNotFound
	}
	return b, nil
}

func (s *stubStore) BulkInsertPosts(_ context.Context, posts []models.IngestedPost) (store.BulkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failInsert != nil {
		return store.BulkResult{}, s.failInsert
	}

	var out store.BulkResult
	for _, p := range posts {
		if _, dup := s.known[p.ID]; dup {
			out.Duplicates++
			continue
		}
		s.known[p.ID] = struct{}{}
		s.inserted = append(s.inserted, p)
		out.Created++
	}
	return out, nil
}

func (s *stubStore) UpdateGroupRunState(_ context.Context, brandName, groupID string, lastRun, nextRun time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, stateUpdate{brandName, groupID, lastRun, nextRun})
	return nil
}

type fetcherFunc func(ctx context.Context, keyword string, f fetch.Filters) ([]fetch.Result, error)

func (fn fetcherFunc) Search(ctx context.Context, keyword string, f fetch.Filters) ([]fetch.Result, error) {
	return fn(ctx, keyword, f)
}

func staticResults(results ...fetch.Result) fetcherFunc {
	return func(context.Context, string, fetch.Filters) ([]fetch.Result, error) {
		return results, nil
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func launchBrand() *models.Brand {
	return &models.Brand{
		BrandName: "Acme",
		Active:    true,
		KeywordGroups: []models.KeywordGroup{{
			ID:        "g1",
			GroupName: "Launch",
			Keywords:  []string{"acme phone"},
			Platforms: []string{models.PlatformYouTube, models.PlatformReddit},
			Cadence:   models.Every30m,
			Status:    models.StatusRunning,
		}},
	}
}

func newTestExecutor(st *stubStore, fetchers fetch.Registry, cache *dedupe.Cache, now time.Time) *Executor {
	e := NewExecutor(st, fetchers, cache, testLogger(), time.Second)
	e.now = func() time.Time { return now }
	return e
}

func TestRunGroupQueriesEveryPairAndAdvancesState(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := newStubStore(launchBrand())

	var mu sync.Mutex
	calls := map[string][]string{}
	var gotFilters []fetch.Filters

	record := func(platform string, results ...fetch.Result) fetcherFunc {
		return func(_ context.Context, keyword string, f fetch.Filters) ([]fetch.Result, error) {
			mu.Lock()
			calls[platform] = append(calls[platform], keyword)
			gotFilters = append(gotFilters, f)
			mu.Unlock()
			return results, nil
		}
	}

	fetchers := fetch.Registry{
		models.PlatformYouTube: record(models.PlatformYouTube, fetch.Result{
			Author:      "reviewer",
			Content:     "acme phone first look",
			SourceURL:   "https://youtube.com/watch?v=1",
			PublishedAt: now.Add(-20 * time.Minute),
		}),
		models.PlatformReddit: record(models.PlatformReddit, fetch.Result{
			Author:      "u/gadgets",
			Content:     "acme phone thread",
			SourceURL:   "https://reddit.com/r/phones/1",
			PublishedAt: now.Add(-40 * time.Minute),
		}),
	}

	executor := newTestExecutor(st, fetchers, nil, now)
	summary, err := executor.RunGroup(context.Background(), "Acme", "g1")
	require.NoError(t, err)

	// One query per (platform, keyword) pair.
	require.Equal(t, []string{"acme phone"}, calls[models.PlatformYouTube])
	require.Equal(t, []string{"acme phone"}, calls[models.PlatformReddit])

	// 30m cadence is below the lookback floor: window is [now-1h, now-10s].
	for _, f := range gotFilters {
		require.Equal(t, now.Add(-time.Hour), f.StartDate)
		require.Equal(t, now.Add(-10*time.Second), f.EndDate)
	}

	require.Equal(t, 2, summary.Fetched)
	require.Equal(t, 2, summary.Persisted)
	require.Zero(t, summary.FailedPairs)

	require.Len(t, st.inserted, 2)
	for _, post := range st.inserted {
		require.Equal(t, "Acme", post.BrandName)
		require.Equal(t, "g1", post.GroupID)
		require.Equal(t, "acme phone", post.Keyword)
		require.NotEmpty(t, post.ID)
		require.Equal(t, now, post.FetchedAt)
	}

	require.Equal(t, now, summary.LastRun)
	require.Equal(t, now.Add(30*time.Minute), summary.NextRun)
	require.Len(t, st.updates, 1)
	require.Equal(t, stateUpdate{"Acme", "g1", now, now.Add(30 * time.Minute)}, st.updates[0])
}

func TestRunGroupPausedRejection(t *testing.T) {
	brand := launchBrand()
	brand.KeywordGroups[0].Status = models.StatusPaused
	st := newStubStore(brand)

	executor := newTestExecutor(st, fetch.Registry{}, nil, time.Now())
	_, err := executor.RunGroup(context.Background(), "Acme", "g1")

	require.ErrorIs(t, err, ErrGroupPaused)
	var rejection *Rejection
	require.ErrorAs(t, err, &rejection)
	require.Equal(t, ReasonGroupPaused, rejection.Reason)

	// A rejection must not touch run-state or the store.
	require.Empty(t, st.updates)
	require.Empty(t, st.inserted)
}

func TestRunGroupNotFoundRejections(t *testing.T) {
	st := newStubStore(launchBrand())
	executor := newTestExecutor(st, fetch.Registry{}, nil, time.Now())

	_, err := executor.RunGroup(context.Background(), "Nope", "g1")
	require.ErrorIs(t, err, ErrBrandNotFound)

	_, err = executor.RunGroup(context.Background(), "Acme", "missing")
	require.ErrorIs(t, err, ErrGroupNotFound)

	require.Empty(t, st.updates)
}

func TestRunGroupFetchFailureIsolated(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := newStubStore(launchBrand())

	fetchers := fetch.Registry{
		models.PlatformYouTube: fetcherFunc(func(context.Context, string, fetch.Filters) ([]fetch.Result, error) {
			return nil, errors.New("quota exceeded")
		}),
		models.PlatformReddit: staticResults(fetch.Result{
			Author:    "u/gadgets",
			Content:   "still works",
			SourceURL: "https://reddit.com/r/phones/2",
		}),
	}

	executor := newTestExecutor(st, fetchers, nil, now)
	summary, err := executor.RunGroup(context.Background(), "Acme", "g1")
	require.NoError(t, err)

	require.Equal(t, 1, summary.FailedPairs)
	require.Equal(t, 1, summary.Persisted)
	require.Len(t, st.inserted, 1)
	require.Equal(t, models.PlatformReddit, st.inserted[0].Platform)

	// Partial success still advances run-state.
	require.Len(t, st.updates, 1)
}

func TestRunGroupUnknownPlatformCountsPairs(t *testing.T) {
	brand := launchBrand()
	brand.KeywordGroups[0].Platforms = []string{"myspace"}
	st := newStubStore(brand)

	executor := newTestExecutor(st, fetch.Registry{}, nil, time.Now())
	summary, err := executor.RunGroup(context.Background(), "Acme", "g1")
	require.NoError(t, err)
	require.Equal(t, 1, summary.FailedPairs)
	require.Zero(t, summary.Persisted)
}

func TestRunGroupDoubleRunDoesNotDoublePersist(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := newStubStore(launchBrand())

	fetchers := fetch.Registry{
		models.PlatformYouTube: staticResults(fetch.Result{
			Author:    "reviewer",
			Content:   "acme phone first look",
			SourceURL: "https://youtube.com/watch?v=1",
		}),
		models.PlatformReddit: staticResults(fetch.Result{
			Author:    "u/gadgets",
			Content:   "acme phone thread",
			SourceURL: "https://reddit.com/r/phones/1",
		}),
	}

	executor := newTestExecutor(st, fetchers, nil, now)

	first, err := executor.RunGroup(context.Background(), "Acme", "g1")
	require.NoError(t, err)
	require.Equal(t, 2, first.Persisted)

	second, err := executor.RunGroup(context.Background(), "Acme", "g1")
	require.NoError(t, err)
	require.Zero(t, second.Persisted)
	require.Equal(t, 2, second.Duplicates)

	// Stored count after two identical runs equals the count after one.
	require.Len(t, st.inserted, 2)
}

func TestRunGroupDedupeCacheSkipsStoreRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := newStubStore(launchBrand())
	cache := dedupe.NewCache(100, time.Hour)

	fetchers := fetch.Registry{
		models.PlatformYouTube: staticResults(fetch.Result{
			Author:    "reviewer",
			Content:   "acme phone first look",
			SourceURL: "https://youtube.com/watch?v=1",
		}),
		models.PlatformReddit: staticResults(fetch.Result{
			Author:    "u/gadgets",
			Content:   "acme phone thread",
			SourceURL: "https://reddit.com/r/phones/1",
		}),
	}

	executor := newTestExecutor(st, fetchers, cache, now)

	_, err := executor.RunGroup(context.Background(), "Acme", "g1")
	require.NoError(t, err)

	second, err := executor.RunGroup(context.Background(), "Acme", "g1")
	require.NoError(t, err)
	require.Zero(t, second.Persisted)
	require.Equal(t, 2, second.Duplicates)
	require.Len(t, st.inserted, 2)
}

func TestRunGroupPersistFailureDoesNotAdvanceState(t *testing.T) {
	st := newStubStore(launchBrand())
	st.failInsert = errors.New("cluster red")

	fetchers := fetch.Registry{
		models.PlatformYouTube: staticResults(fetch.Result{
			Author:    "reviewer",
			Content:   "acme phone first look",
			SourceURL: "https://youtube.com/watch?v=1",
		}),
		models.PlatformReddit: staticResults(fetch.Result{
			Author:    "u/gadgets",
			Content:   "acme phone thread",
			SourceURL: "https://reddit.com/r/phones/1",
		}),
	}

	executor := newTestExecutor(st, fetchers, nil, time.Now())
	_, err := executor.RunGroup(context.Background(), "Acme", "g1")

	require.Error(t, err)
	var rejection *Rejection
	require.False(t, errors.As(err, &rejection))
	require.Empty(t, st.updates)
}

func TestRunGroupAppliesRefinementTerms(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	brand := launchBrand()
	brand.KeywordGroups[0].Platforms = []string{models.PlatformYouTube}
	brand.KeywordGroups[0].IncludeKeywords = []string{"review"}
	brand.KeywordGroups[0].ExcludeKeywords = []string{"giveaway"}
	st := newStubStore(brand)

	fetchers := fetch.Registry{
		models.PlatformYouTube: staticResults(
			fetch.Result{Content: "acme phone review", SourceURL: "https://youtube.com/1"},
			fetch.Result{Content: "acme phone giveaway review", SourceURL: "https://youtube.com/2"},
			fetch.Result{Content: "unrelated clip", SourceURL: "https://youtube.com/3"},
		),
	}

	executor := newTestExecutor(st, fetchers, nil, now)
	summary, err := executor.RunGroup(context.Background(), "Acme", "g1")
	require.NoError(t, err)

	require.Equal(t, 3, summary.Fetched)
	require.Equal(t, 1, summary.Persisted)
	require.Len(t, st.inserted, 1)
	require.Equal(t, "acme phone review", st.inserted[0].Content)
}

func TestFetchWindowDerivesFromCadence(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	start, end := fetchWindow(now, models.Every30m)
	require.Equal(t, now.Add(-time.Hour), start)
	require.Equal(t, now.Add(-10*time.Second), end)

	start, _ = fetchWindow(now, models.Every2h)
	require.Equal(t, now.Add(-2*time.Hour), start)

	// Brand scope has no cadence; the floor applies.
	start, _ = fetchWindow(now, "")
	require.Equal(t, now.Add(-time.Hour), start)
}

func TestRunBrandValidatesAggregateScope(t *testing.T) {
	empty := &models.Brand{BrandName: "Empty", Active: true}
	noPlatforms := &models.Brand{
		BrandName: "NoPlatforms",
		Active:    true,
		KeywordGroups: []models.KeywordGroup{{
			ID:       "g1",
			Keywords: []string{"something"},
		}},
	}
	st := newStubStore(empty, noPlatforms)
	executor := newTestExecutor(st, fetch.Registry{}, nil, time.Now())

	_, err := executor.RunBrand(context.Background(), "Empty")
	require.ErrorIs(t, err, ErrNoKeywords)

	_, err = executor.RunBrand(context.Background(), "NoPlatforms")
	require.ErrorIs(t, err, ErrNoPlatforms)

	_, err = executor.RunBrand(context.Background(), "Gone")
	require.ErrorIs(t, err, ErrBrandNotFound)
}

func TestRunBrandAggregatesAllGroups(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	brand := &models.Brand{
		BrandName: "Acme",
		Active:    true,
		KeywordGroups: []models.KeywordGroup{
			{
				ID:        "g1",
				Keywords:  []string{"acme phone"},
				Platforms: []string{models.PlatformYouTube},
				Cadence:   models.Every30m,
				Status:    models.StatusRunning,
			},
			{
				ID:        "g2",
				Keywords:  []string{"acme tablet", "acme phone"},
				Platforms: []string{models.PlatformReddit},
				Cadence:   models.Every1h,
				Status:    models.StatusPaused,
			},
		},
	}
	st := newStubStore(brand)

	var mu sync.Mutex
	pairs := map[string]int{}
	count := func(platform string) fetcherFunc {
		return func(_ context.Context, keyword string, _ fetch.Filters) ([]fetch.Result, error) {
			mu.Lock()
			pairs[platform+"|"+keyword]++
			mu.Unlock()
			return []fetch.Result{{Content: keyword, SourceURL: "https://" + platform + ".test/" + keyword}}, nil
		}
	}

	fetchers := fetch.Registry{
		models.PlatformYouTube: count(models.PlatformYouTube),
		models.PlatformReddit:  count(models.PlatformReddit),
	}

	executor := newTestExecutor(st, fetchers, nil, now)
	summary, err := executor.RunBrand(context.Background(), "Acme")
	require.NoError(t, err)

	// Union of 2 keywords x 2 platforms, each pair exactly once; paused
	// groups still contribute to the aggregate scope.
	require.Len(t, pairs, 4)
	for pair, n := range pairs {
		require.Equal(t, 1, n, pair)
	}

	require.Equal(t, 4, summary.Persisted)
	require.Zero(t, summary.LastRun)
	require.Zero(t, summary.NextRun)
	require.Empty(t, st.updates)

	for _, post := range st.inserted {
		require.Empty(t, post.GroupID)
		require.Equal(t, "Acme", post.BrandName)
	}
}
