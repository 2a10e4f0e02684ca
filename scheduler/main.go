package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/eminsights/mention-radar/backend/internal/config"
	"github.com/eminsights/mention-radar/backend/internal/logger"
	"github.com/eminsights/mention-radar/backend/internal/models"
	"github.com/eminsights/mention-radar/backend/internal/scheduler"
	"github.com/eminsights/mention-radar/backend/internal/store"
)

func main() {
	log := logger.New("scheduler")
	cfg, err := config.LoadScheduler()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	st, err := connectStore(ctx, log, cfg)
	if err != nil {
		log.Error("connect store", slog.Any("err", err))
		os.Exit(1)
	}

	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.KafkaBrokers,
		Topic:        cfg.KafkaTopic,
		MaxAttempts:  3,
		WriteTimeout: cfg.PublishTimeout,
	})
	defer writer.Close()

	pub := &kafkaPublisher{writer: writer}
	d := scheduler.New(st, pub, log, cfg.SelectTimeout)

	log.Info("scheduler started",
		slog.String("topic", cfg.KafkaTopic),
		slog.Int("buckets", len(models.Cadences())),
	)

	d.Run(ctx)
	log.Info("shutdown signal received, scheduler stopped")
}

// connectStore retries the Elasticsearch connection with backoff so the
// scheduler survives the store coming up after it.
func connectStore(ctx context.Context, log *slog.Logger, cfg *config.Scheduler) (*store.Client, error) {
	retryDelay := 2 * time.Second
	maxRetries := 10

	for i := 0; i < maxRetries; i++ {
		st, err := store.New(cfg.ElasticsearchAddr, cfg.BrandsIndex, cfg.PostsIndex, log)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			pingErr := st.Ping(pingCtx)
			cancel()
			if pingErr == nil {
				return st, nil
			}
			err = pingErr
		}

		log.Warn("elasticsearch not ready, retrying",
			slog.Any("err", err),
			slog.Int("attempt", i+1),
			slog.Int("max_retries", maxRetries),
			slog.Duration("retry_in", retryDelay),
		)

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		retryDelay *= 2
		if retryDelay > 30*time.Second {
			retryDelay = 30 * time.Second
		}
	}

	return nil, fmt.Errorf("elasticsearch unreachable after %d attempts", maxRetries)
}

// kafkaPublisher adapts the kafka writer to the dispatcher's Publisher.
type kafkaPublisher struct {
	writer *kafka.Writer
}

func (p *kafkaPublisher) Publish(ctx context.Context, req models.RunRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal run request: %w", err)
	}

	// Key by brand+group so retries for one group land on one partition.
	msg := kafka.Message{
		Key:   []byte(req.BrandName + "/" + req.GroupID),
		Value: payload,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write run request: %w", err)
	}
	return nil
}
