package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/eminsights/mention-radar/backend/internal/config"
	"github.com/eminsights/mention-radar/backend/internal/dedupe"
	"github.com/eminsights/mention-radar/backend/internal/fetch"
	"github.com/eminsights/mention-radar/backend/internal/logger"
	"github.com/eminsights/mention-radar/backend/internal/metrics"
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

type runExecutor interface {
	RunGroup(ctx context.Context, brandName, groupID string) (*run.Summary, error)
	RunBrand(ctx context.Context, brandName string) (*run.Summary, error)
}

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	st, err := store.New(cfg.ElasticsearchAddr, cfg.BrandsIndex, cfg.PostsIndex, log)
	if err != nil {
		log.Error("init store", slog.Any("err", err))
		os.Exit(1)
	}

	cache := dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL)
	fetchers := fetch.NewRegistry(cfg.SearchAPIBase, allPlatforms, cfg.FetchTimeout)
	executor := run.NewExecutor(st, fetchers, cache, log, cfg.FetchTimeout)
	guard := run.NewGuard()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaTopic,
		GroupID:        cfg.KafkaConsumer,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // Disable auto-commit; manual commit only
	})
	defer reader.Close()

	dlqWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.KafkaTopic + "_dlq",
		MaxAttempts: 3,
	})
	defer dlqWriter.Close()

	log.Info("worker started",
		slog.String("topic", cfg.KafkaTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", cfg.KafkaTopic+"_dlq"),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := processMessage(ctx, log, executor, guard, cfg.RunTimeout, msg); err != nil {
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)

			if !sendToDLQ(ctx, log, dlqWriter, msg, err) {
				// Skip the commit so the message is reprocessed on restart.
				continue
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

// processMessage executes one run request. Rejections (paused group,
// missing brand or group) are definitive outcomes, logged and committed;
// only undecodable payloads and infrastructure failures return an error
// and go to the DLQ.
func processMessage(ctx context.Context, log *slog.Logger, executor runExecutor, guard *run.Guard, runTimeout time.Duration, msg kafka.Message) error {
	var req models.RunRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		return fmt.Errorf("decode run request: %w", err)
	}
	if req.BrandName == "" {
		return errors.New("run request missing brandName")
	}

	groupKey := req.BrandName + "/" + req.GroupID
	if !guard.TryAcquire(groupKey) {
		metrics.RunsSkipped.Inc()
		log.Info("run already in flight, skipping",
			slog.String("brand", req.BrandName),
			slog.String("group", req.GroupID),
		)
		return nil
	}
	defer guard.Release(groupKey)

	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	var (
		summary *run.Summary
		err     error
	)
	if req.GroupID != "" {
		summary, err = executor.RunGroup(runCtx, req.BrandName, req.GroupID)
	} else {
		summary, err = executor.RunBrand(runCtx, req.BrandName)
	}

	if err != nil {
		var rejection *run.Rejection
		if errors.As(err, &rejection) {
			log.Info("run rejected",
				slog.String("brand", req.BrandName),
				slog.String("group", req.GroupID),
				slog.String("reason", rejection.Reason),
			)
			return nil
		}
		return fmt.Errorf("run %s/%s: %w", req.BrandName, req.GroupID, err)
	}

	log.Debug("run finished",
		slog.String("brand", summary.BrandName),
		slog.String("group", summary.GroupID),
		slog.Int("persisted", summary.Persisted),
	)
	return nil
}

// sendToDLQ writes a failed message to the DLQ with retry and backoff.
// Returns false when every attempt failed.
func sendToDLQ(ctx context.Context, log *slog.Logger, dlqWriter *kafka.Writer, msg kafka.Message, cause error) bool {
	dlqMsg := kafka.Message{
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
			kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		),
	}

	for attempt := 0; attempt < 5; attempt++ {
		if err := dlqWriter.WriteMessages(ctx, dlqMsg); err == nil {
			log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true
		} else {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			log.Warn("DLQ write failed, retrying",
				slog.Any("err", err),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				log.Info("context canceled during DLQ retry")
				return false
			}
		}
	}

	log.Error("DLQ write exhausted retries, message may be lost if later messages commit",
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
	)
	return false
}
