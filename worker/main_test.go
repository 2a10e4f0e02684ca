package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/eminsights/mention-radar/backend/internal/models"
	"github.com/eminsights/mention-radar/backend/internal/run"
)

type stubExecutor struct {
	mu         sync.Mutex
	groupRuns  []string
	brandRuns  []string
	err        error
	block      chan struct{}
	runStarted chan struct{}
}

func (s *stubExecutor) RunGroup(_ context.Context, brandName, groupID string) (*run.Summary, error) {
	s.mu.Lock()
	s.groupRuns = append(s.groupRuns, brandName+"/"+groupID)
	s.mu.Unlock()
	if s.runStarted != nil {
		close(s.runStarted)
	}
	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return nil, s.err
	}
	return &run.Summary{BrandName: brandName, GroupID: groupID, Persisted: 1}, nil
}

func (s *stubExecutor) RunBrand(_ context.Context, brandName string) (*run.Summary, error) {
	s.mu.Lock()
	s.brandRuns = append(s.brandRuns, brandName)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &run.Summary{BrandName: brandName}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func requestMessage(t *testing.T, req models.RunRequest) kafka.Message {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	return kafka.Message{Value: data}
}

func TestProcessMessageRunsGroupScope(t *testing.T) {
	exec := &stubExecutor{}
	guard := run.NewGuard()
	msg := requestMessage(t, models.RunRequest{BrandName: "Acme", GroupID: "g1"})

	require.NoError(t, processMessage(context.Background(), testLogger(), exec, guard, time.Minute, msg))
	require.Equal(t, []string{"Acme/g1"}, exec.groupRuns)
	require.Empty(t, exec.brandRuns)

	// The guard must be released on completion.
	require.True(t, guard.TryAcquire("Acme/g1"))
}

func TestProcessMessageRunsBrandScopeWhenNoGroup(t *testing.T) {
	exec := &stubExecutor{}
	guard := run.NewGuard()
	msg := requestMessage(t, models.RunRequest{BrandName: "Acme"})

	require.NoError(t, processMessage(context.Background(), testLogger(), exec, guard, time.Minute, msg))
	require.Equal(t, []string{"Acme"}, exec.brandRuns)
	require.Empty(t, exec.groupRuns)
}

func TestProcessMessageRejectsMalformedPayload(t *testing.T) {
	exec := &stubExecutor{}
	guard := run.NewGuard()

	require.Error(t, processMessage(context.Background(), testLogger(), exec, guard, time.Minute, kafka.Message{Value: []byte("{not json")}))
	require.Error(t, processMessage(context.Background(), testLogger(), exec, guard, time.Minute, requestMessage(t, models.RunRequest{})))
	require.Empty(t, exec.groupRuns)
	require.Empty(t, exec.brandRuns)
}

func TestProcessMessageRejectionIsTerminalNotError(t *testing.T) {
	exec := &stubExecutor{err: run.ErrGroupPaused}
	guard := run.NewGuard()
	msg := requestMessage(t, models.RunRequest{BrandName: "Acme", GroupID: "g1"})

	// A paused group is a definitive outcome: commit, no DLQ.
	require.NoError(t, processMessage(context.Background(), testLogger(), exec, guard, time.Minute, msg))
}

func TestProcessMessageSkipsWhenRunInFlight(t *testing.T) {
	exec := &stubExecutor{
		block:      make(chan struct{}),
		runStarted: make(chan struct{}),
	}
	guard := run.NewGuard()
	msg := requestMessage(t, models.RunRequest{BrandName: "Acme", GroupID: "g1"})

	done := make(chan error, 1)
	go func() {
		done <- processMessage(context.Background(), testLogger(), exec, guard, time.Minute, msg)
	}()
	<-exec.runStarted

	// Second request for the same group while the first is in flight.
	require.NoError(t, processMessage(context.Background(), testLogger(), exec, guard, time.Minute, msg))
	require.Len(t, exec.groupRuns, 1)

	close(exec.block)
	require.NoError(t, <-done)
}
