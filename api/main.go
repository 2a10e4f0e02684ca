package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eminsights/mention-radar/backend/internal/config"
	"github.com/eminsights/mention-radar/backend/internal/fetch"
	"github.com/eminsights/mention-radar/backend/internal/logger"
	"github.com/eminsights/mention-radar/backend/internal/models"
	"github.com/eminsights/mention-radar/backend/internal/run"
	"github.com/eminsights/mention-radar/backend/internal/store"
)

var allPlatforms = []string{
	models.PlatformYouTube,
	models.PlatformTwitter,
	models.PlatformReddit,
	models.PlatformFacebook,
	models.PlatformInstagram,
}

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	st, err := store.New(cfg.ElasticsearchAddr, cfg.BrandsIndex, cfg.PostsIndex, log)
	if err != nil {
		log.Error("init store", slog.Any("err", err))
		os.Exit(1)
	}

	fetchers := fetch.NewRegistry(cfg.SearchAPIBase, allPlatforms, cfg.FetchTimeout)
	executor := run.NewExecutor(st, fetchers, nil, log, cfg.FetchTimeout)

	srv := &server{log: log, cfg: cfg, store: st, executor: executor}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", srv.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/posts", srv.handlePosts)
	r.Post("/search/brand-run", srv.handleBrandRun)
	r.Post("/search/group-run", srv.handleGroupRun)

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.RunTimeout + 15*time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

type server struct {
	log      *slog.Logger
	cfg      *config.API
	store    *store.Client
	executor *run.Executor
}

type errorResponse struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
	Error   string `json:"error"`
}

type runResponse struct {
	Success bool         `json:"success"`
	Summary *run.Summary `json:"summary"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleBrandRun triggers a synchronous aggregate run over all of a
// brand's keywords and platforms.
func (s *server) handleBrandRun(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BrandName string `json:"brandName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.BrandName) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "brandName is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RunTimeout)
	defer cancel()

	summary, err := s.executor.RunBrand(ctx, body.BrandName)
	if err != nil {
		s.writeRunError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, runResponse{Success: true, Summary: summary})
}

// handleGroupRun triggers a synchronous run for one keyword group.
func (s *server) handleGroupRun(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BrandName string `json:"brandName"`
		GroupID   string `json:"groupId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil ||
		strings.TrimSpace(body.BrandName) == "" || strings.TrimSpace(body.GroupID) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "brandName and groupId are required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RunTimeout)
	defer cancel()

	summary, err := s.executor.RunGroup(ctx, body.BrandName, body.GroupID)
	if err != nil {
		s.writeRunError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, runResponse{Success: true, Summary: summary})
}

// writeRunError maps rejection reason codes to statuses; anything else is
// a run failure.
func (s *server) writeRunError(w http.ResponseWriter, err error) {
	var rejection *run.Rejection
	if errors.As(err, &rejection) {
		status := http.StatusBadRequest
		if rejection.Reason == run.ReasonBrandNotFound || rejection.Reason == run.ReasonGroupNotFound {
			status = http.StatusNotFound
		}
		writeJSON(w, status, errorResponse{Reason: rejection.Reason, Error: rejection.Message})
		return
	}

	s.log.Error("run failed", slog.Any("err", err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

// handlePosts serves the dashboard read path over ingested posts.
func (s *server) handlePosts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	params := store.SearchParams{
		BrandName: strings.TrimSpace(r.URL.Query().Get("brand")),
		GroupID:   strings.TrimSpace(r.URL.Query().Get("group")),
		Platform:  strings.TrimSpace(r.URL.Query().Get("platform")),
		Keyword:   strings.TrimSpace(r.URL.Query().Get("keyword")),
		Query:     strings.TrimSpace(r.URL.Query().Get("q")),
		From:      clampInt(r.URL.Query().Get("from"), 0, 10_000),
		Size:      clampInt(r.URL.Query().Get("size"), s.cfg.DefaultPage, s.cfg.MaxPage),
		Sort:      strings.TrimSpace(r.URL.Query().Get("sort")),
	}
	if start := parseTime(r.URL.Query().Get("start")); start != nil {
		params.Start = start
	}
	if end := parseTime(r.URL.Query().Get("end")); end != nil {
		params.End = end
	}

	result, err := s.store.SearchPosts(ctx, params)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts
	}
	return nil
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// nothing better to do
	}
}
