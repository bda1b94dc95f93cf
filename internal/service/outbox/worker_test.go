package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/camisetas/internal/domain"
	"github.com/vladislavdragonenkov/camisetas/internal/metrics"
	"github.com/vladislavdragonenkov/camisetas/internal/storage/memory"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryBaseDelay = 0
	cfg.MaxAttempts = 3
	return cfg
}

func orderCreated(id string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: domain.AggregateOrder,
		AggregateID:   "1",
		EventType:     domain.EventOrderCreated,
		Payload:       []byte(`{"id":1}`),
	}
}

func TestWorker_ProcessOnce_MarkSent(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{orderCreated("msg-1")}}
	publisher := &stubPublisher{}

	worker := NewWorker(repo, publisher, fastConfig())

	require.Equal(t, 1, worker.ProcessOnce(context.Background()))
	require.Equal(t, []string{"msg-1"}, repo.sentIDs)
	require.Empty(t, repo.failedIDs)
	require.Equal(t, 1, publisher.calls())
}

func TestWorker_ProcessOnce_MarkFailedAndDLQAfterRetries(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{orderCreated("msg-2")}}
	publisher := &stubPublisher{err: errors.New("broker unavailable")}
	dlq := &stubPublisher{}

	worker := NewWorker(repo, publisher, fastConfig(), WithDLQPublisher(dlq))

	require.Zero(t, worker.ProcessOnce(context.Background()))
	require.Equal(t, 3, publisher.calls())
	require.Empty(t, repo.sentIDs)
	require.Equal(t, []string{"msg-2"}, repo.failedIDs)
	require.Equal(t, 1, dlq.calls())

	var envelope dlqEnvelope
	require.NoError(t, json.Unmarshal(dlq.last().Payload, &envelope))
	require.Equal(t, "msg-2", envelope.OutboxID)
	require.Contains(t, envelope.PublishError, "broker unavailable")
	require.JSONEq(t, `{"id":1}`, string(envelope.Payload))
}

func TestWorker_ProcessOnce_SuccessAfterRetry(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{orderCreated("msg-3")}}
	publisher := &stubPublisher{
		sequenceErrors: []error{errors.New("attempt 1"), errors.New("attempt 2"), nil},
	}
	reg := prometheus.NewRegistry()

	worker := NewWorker(repo, publisher, fastConfig(), WithMetrics(metrics.NewOutboxMetricsWithRegisterer(reg)))
	worker.ProcessOnce(context.Background())

	require.Equal(t, 3, publisher.calls())
	require.Len(t, repo.sentIDs, 1)
	require.Empty(t, repo.failedIDs)

	families, err := reg.Gather()
	require.NoError(t, err)
	results := map[string]float64{}
	for _, family := range families {
		if family.GetName() != "shop_outbox_publish_attempts_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			results[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
		}
	}
	require.Equal(t, 1.0, results[metrics.PublishSent])
	require.Equal(t, 2.0, results[metrics.PublishRetry])
}

func TestWorker_ProcessOnce_CanceledContext(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{orderCreated("msg-4")}}
	publisher := &stubPublisher{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Zero(t, NewWorker(repo, publisher, fastConfig()).ProcessOnce(ctx))
	require.Zero(t, publisher.calls())
}

func TestWorker_RunDrainsMemoryOutbox(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, id := range []string{"a", "b"} {
		_, err := repo.Enqueue(ctx, orderCreated(id))
		require.NoError(t, err)
	}

	publisher := &stubPublisher{}
	cfg := fastConfig()
	cfg.PollInterval = 10 * time.Millisecond
	worker := NewWorker(repo, publisher, cfg)

	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(repo.AllPending()) == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	require.Equal(t, 2, publisher.calls())
}

func TestWorker_RunDisabledWithoutPublisher(t *testing.T) {
	t.Parallel()

	worker := NewWorker(memory.NewOutboxRepository(), nil, fastConfig())
	done := make(chan struct{})
	go func() {
		worker.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker without publisher must return immediately")
	}
}

func TestConfigNormalized(t *testing.T) {
	cfg := Config{RetryBaseDelay: -time.Second}.normalized()
	require.Equal(t, defaultPollInterval, cfg.PollInterval)
	require.Equal(t, defaultBatchSize, cfg.BatchSize)
	require.Equal(t, defaultMaxAttempts, cfg.MaxAttempts)
	require.Zero(t, cfg.RetryBaseDelay)
}

type stubOutboxRepo struct {
	mu        sync.Mutex
	pending   []domain.OutboxMessage
	sentIDs   []string
	failedIDs []string
}

func (s *stubOutboxRepo) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	return msg, nil
}

func (s *stubOutboxRepo) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit >= len(s.pending) {
		return append([]domain.OutboxMessage(nil), s.pending...), nil
	}
	return append([]domain.OutboxMessage(nil), s.pending[:limit]...), nil
}

func (s *stubOutboxRepo) Stats(context.Context) (domain.OutboxStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := domain.OutboxStats{PendingCount: len(s.pending)}
	if len(s.pending) > 0 {
		stats.OldestPendingAt = time.Now().UTC().Add(-time.Second)
	}
	return stats, nil
}

func (s *stubOutboxRepo) MarkSent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sentIDs = append(s.sentIDs, id)
	return nil
}

func (s *stubOutboxRepo) MarkFailed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedIDs = append(s.failedIDs, id)
	return nil
}

type stubPublisher struct {
	mu             sync.Mutex
	err            error
	sequenceErrors []error
	callCount      int
	published      []domain.OutboxMessage
}

func (s *stubPublisher) Publish(_ context.Context, event domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	s.published = append(s.published, event)
	if len(s.sequenceErrors) > 0 {
		err := s.sequenceErrors[0]
		s.sequenceErrors = s.sequenceErrors[1:]
		return err
	}
	return s.err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

func (s *stubPublisher) last() domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published[len(s.published)-1]
}
