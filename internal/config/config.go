package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Common contains Elasticsearch parameters shared by every service.
type Common struct {
	ElasticsearchAddr string
	BrandsIndex       string
	PostsIndex        string
}

// Scheduler holds configuration for the cadence dispatcher service.
type Scheduler struct {
	Common
	KafkaBrokers   []string
	KafkaTopic     string
	SelectTimeout  time.Duration
	PublishTimeout time.Duration
}

// Worker holds configuration for the Kafka -> run executor worker.
type Worker struct {
	Common
	KafkaBrokers   []string
	KafkaTopic     string
	KafkaConsumer  string
	SearchAPIBase  string
	FetchTimeout   time.Duration
	RunTimeout     time.Duration
	DedupeCapacity int
	DedupeTTL      time.Duration
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	BindAddr      string
	SearchAPIBase string
	FetchTimeout  time.Duration
	RunTimeout    time.Duration
	DefaultPage   int
	MaxPage       int
}

// Retention configures the posts cleanup loop.
type Retention struct {
	Common
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
}

func loadCommon() Common {
	return Common{
		ElasticsearchAddr: getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		BrandsIndex:       getEnv("ELASTICSEARCH_BRANDS_INDEX", "brands"),
		PostsIndex:        getEnv("ELASTICSEARCH_POSTS_INDEX", "social_posts"),
	}
}

// LoadScheduler builds a Scheduler config from environment variables.
func LoadScheduler() (*Scheduler, error) {
	c := &Scheduler{
		Common:         loadCommon(),
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "run_requests"),
		SelectTimeout:  getDuration("SCHEDULER_SELECT_TIMEOUT", "30s"),
		PublishTimeout: getDuration("SCHEDULER_PUBLISH_TIMEOUT", "10s"),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.SelectTimeout <= 0 {
		return nil, fmt.Errorf("SCHEDULER_SELECT_TIMEOUT must be positive")
	}
	if c.PublishTimeout <= 0 {
		return nil, fmt.Errorf("SCHEDULER_PUBLISH_TIMEOUT must be positive")
	}

	return c, nil
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	c := &Worker{
		Common:         loadCommon(),
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "run_requests"),
		KafkaConsumer:  getEnv("KAFKA_CONSUMER_GROUP", "run-worker"),
		SearchAPIBase:  getEnv("SEARCH_API_BASE", "http://search-proxy:8090"),
		FetchTimeout:   getDuration("WORKER_FETCH_TIMEOUT", "30s"),
		RunTimeout:     getDuration("WORKER_RUN_TIMEOUT", "4m"),
		DedupeCapacity: getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:      getDuration("WORKER_DEDUPE_TTL", "2h"),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.SearchAPIBase == "" {
		return nil, fmt.Errorf("SEARCH_API_BASE must be set")
	}
	if c.FetchTimeout <= 0 {
		return nil, fmt.Errorf("WORKER_FETCH_TIMEOUT must be positive")
	}
	if c.RunTimeout < c.FetchTimeout {
		return nil, fmt.Errorf("WORKER_RUN_TIMEOUT cannot be shorter than WORKER_FETCH_TIMEOUT")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}

	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	c := &API{
		Common:        loadCommon(),
		BindAddr:      getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		SearchAPIBase: getEnv("SEARCH_API_BASE", "http://search-proxy:8090"),
		FetchTimeout:  getDuration("API_FETCH_TIMEOUT", "30s"),
		RunTimeout:    getDuration("API_RUN_TIMEOUT", "2m"),
		DefaultPage:   getInt("API_PAGE_SIZE", 20),
		MaxPage:       getInt("API_MAX_PAGE_SIZE", 100),
	}

	if c.SearchAPIBase == "" {
		return nil, fmt.Errorf("SEARCH_API_BASE must be set")
	}
	if c.FetchTimeout <= 0 {
		return nil, fmt.Errorf("API_FETCH_TIMEOUT must be positive")
	}
	if c.RunTimeout < c.FetchTimeout {
		return nil, fmt.Errorf("API_RUN_TIMEOUT cannot be shorter than API_FETCH_TIMEOUT")
	}
	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	c := &Retention{
		Common:    loadCommon(),
		Interval:  getDuration("RETENTION_INTERVAL", "24h"),
		MaxAge:    getDuration("RETENTION_MAX_AGE", "2160h"), // 90 days
		BatchSize: getInt("RETENTION_BATCH_SIZE", 500),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_INTERVAL must be positive")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
