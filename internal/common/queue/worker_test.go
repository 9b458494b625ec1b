package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	commonerrors "oracle-worker/internal/common/errors"
	"oracle-worker/internal/common/logger"
	"oracle-worker/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource serves a fixed script of deliveries and errors, then reports
// an empty queue.
type fakeSource struct {
	mu     sync.Mutex
	script []interface{}
	acked  []string
	polls  int
}

func (s *fakeSource) Receive(ctx context.Context) (*Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	if len(s.script) == 0 {
		return nil, ErrQueueEmpty
	}
	next := s.script[0]
	s.script = s.script[1:]
	switch v := next.(type) {
	case error:
		return nil, v
	case *models.Job:
		return NewDelivery(v, func(context.Context) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.acked = append(s.acked, v.Message)
			return nil
		}), nil
	}
	return nil, ErrQueueEmpty
}

func (s *fakeSource) ackedMessages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.acked...)
}

type recordingHandler struct {
	mu      sync.Mutex
	handled []string
	fn      func(job *models.Job) error
}

func (h *recordingHandler) Handle(ctx context.Context, job *models.Job) error {
	h.mu.Lock()
	h.handled = append(h.handled, job.Message)
	h.mu.Unlock()
	if h.fn != nil {
		return h.fn(job)
	}
	return nil
}

func (h *recordingHandler) messages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.handled...)
}

func testWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency:               1,
		PollInterval:              time.Millisecond,
		MaxIdleBackoff:            5 * time.Millisecond,
		ErrorBackoff:              time.Millisecond,
		PollTimeout:               100 * time.Millisecond,
		JobTimeout:                time.Second,
		ShutdownGrace:             time.Second,
		MaxConsecutiveInfraErrors: 3,
	}
}

func runFor(t *testing.T, w *Worker, until func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	require.Eventually(t, until, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestWorker_ProcessesInOrderAndAcks(t *testing.T) {
	src := &fakeSource{script: []interface{}{
		&models.Job{UserID: "u1", Message: "one"},
		&models.Job{UserID: "u1", Message: "two"},
		&models.Job{UserID: "u2", Message: "three"},
	}}
	h := &recordingHandler{}
	w := NewWorker(src, h, testWorkerConfig(), logger.NewTestLogger(t))

	runFor(t, w, func() bool { return len(src.ackedMessages()) == 3 })

	assert.Equal(t, []string{"one", "two", "three"}, h.messages())
	assert.Equal(t, []string{"one", "two", "three"}, src.ackedMessages())
}

func TestWorker_ContinuesAfterJobFailure(t *testing.T) {
	src := &fakeSource{script: []interface{}{
		&models.Job{UserID: "u1", Message: "bad"},
		&models.Job{UserID: "u1", Message: "good"},
	}}
	h := &recordingHandler{fn: func(job *models.Job) error {
		if job.Message == "bad" {
			return commonerrors.NewGenerationFailedError(errors.New("upstream 500"))
		}
		return nil
	}}
	w := NewWorker(src, h, testWorkerConfig(), logger.NewTestLogger(t))

	runFor(t, w, func() bool { return len(h.messages()) == 2 })

	assert.Equal(t, []string{"bad", "good"}, h.messages())
	assert.NoError(t, w.Ready())
}

func TestWorker_RecoversPanic(t *testing.T) {
	src := &fakeSource{script: []interface{}{
		&models.Job{UserID: "u1", Message: "explode"},
		&models.Job{UserID: "u1", Message: "after"},
	}}
	h := &recordingHandler{fn: func(job *models.Job) error {
		if job.Message == "explode" {
			panic("nil map write")
		}
		return nil
	}}
	w := NewWorker(src, h, testWorkerConfig(), logger.NewTestLogger(t))

	runFor(t, w, func() bool { return len(src.ackedMessages()) == 2 })
	assert.Equal(t, []string{"explode", "after"}, h.messages())
}

func TestWorker_SkipsMalformedJobs(t *testing.T) {
	src := &fakeSource{script: []interface{}{
		ErrMalformedJob,
		&models.Job{UserID: "u1", Message: "valid"},
	}}
	h := &recordingHandler{}
	w := NewWorker(src, h, testWorkerConfig(), logger.NewTestLogger(t))

	runFor(t, w, func() bool { return len(h.messages()) == 1 })
	assert.Equal(t, []string{"valid"}, h.messages())
}

func TestWorker_ReadinessAfterConsecutiveInfraErrors(t *testing.T) {
	unavailable := errors.Join(ErrQueueUnavailable, errors.New("dial tcp: connection refused"))
	src := &fakeSource{script: []interface{}{unavailable, unavailable, unavailable}}
	w := NewWorker(src, &recordingHandler{}, testWorkerConfig(), logger.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for i := 0; i < 3; i++ {
		w.pollOnce(ctx, w.logger)
	}
	err := w.Ready()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUEUE_UNAVAILABLE")
	assert.Contains(t, err.Error(), "connection refused")

	// An empty poll means the queue answered again.
	w.pollOnce(ctx, w.logger)
	assert.NoError(t, w.Ready())
}

func TestWorker_PersistenceFailuresCountTowardReadiness(t *testing.T) {
	src := &fakeSource{script: []interface{}{
		&models.Job{UserID: "u1", Message: "a"},
		&models.Job{UserID: "u1", Message: "b"},
		&models.Job{UserID: "u1", Message: "c"},
	}}
	h := &recordingHandler{fn: func(job *models.Job) error {
		return commonerrors.NewPersistenceFailedError(errors.New("connection reset"))
	}}
	w := NewWorker(src, h, testWorkerConfig(), logger.NewTestLogger(t))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		w.pollOnce(ctx, w.logger)
	}
	err := w.Ready()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PERSISTENCE_FAILED: connection reset")
}

func TestWorker_InFlightJobFinishesAfterCancel(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	src := &fakeSource{script: []interface{}{&models.Job{UserID: "u1", Message: "slow"}}}
	h := &recordingHandler{fn: func(job *models.Job) error {
		close(started)
		<-release
		return nil
	}}
	w := NewWorker(src, h, testWorkerConfig(), logger.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	<-started
	cancel()
	close(release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, []string{"slow"}, src.ackedMessages())
}

func TestNextIdleBackoff(t *testing.T) {
	tests := []struct {
		current time.Duration
		max     time.Duration
		want    time.Duration
	}{
		{500 * time.Millisecond, 5 * time.Second, time.Second},
		{4 * time.Second, 5 * time.Second, 5 * time.Second},
		{5 * time.Second, 5 * time.Second, 5 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NextIdleBackoff(tt.current, tt.max))
	}
}
