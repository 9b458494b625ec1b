// internal/common/queue/worker.go
package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"oracle-worker/internal/common/config"
	commonerrors "oracle-worker/internal/common/errors"
	"oracle-worker/internal/common/logger"
	"oracle-worker/internal/common/metrics"
	"oracle-worker/internal/models"
)

// JobHandler processes one job. A returned error means the job was dropped;
// it is never re-queued by the worker.
type JobHandler interface {
	Handle(ctx context.Context, job *models.Job) error
}

// Source hands out jobs. *RedisQueue implements it.
type Source interface {
	Receive(ctx context.Context) (*Delivery, error)
}

// StaleRequeuer is implemented by sources that can recover abandoned claims.
type StaleRequeuer interface {
	RequeueStale(ctx context.Context, max int64) (int64, error)
}

// ErrJobPanicked wraps a recovered panic from a handler.
var ErrJobPanicked = errors.New("JOB_PANICKED")

type WorkerConfig struct {
	Concurrency               int
	PollInterval              time.Duration
	MaxIdleBackoff            time.Duration
	ErrorBackoff              time.Duration
	PollTimeout               time.Duration
	JobTimeout                time.Duration
	ShutdownGrace             time.Duration
	ReapInterval              time.Duration
	MaxConsecutiveInfraErrors int
}

// WorkerConfigFrom maps the application config onto the poll loop settings.
func WorkerConfigFrom(w config.WorkerConfig, q config.QueueConfig) WorkerConfig {
	return WorkerConfig{
		Concurrency:               w.Concurrency,
		PollInterval:              config.GetDuration(w.PollInterval),
		MaxIdleBackoff:            config.GetDuration(w.MaxIdleBackoff),
		ErrorBackoff:              config.GetDuration(w.ErrorBackoff),
		PollTimeout:               config.GetDuration(q.Timeout),
		JobTimeout:                config.GetDuration(w.JobTimeout),
		ShutdownGrace:             config.GetDuration(w.ShutdownGrace),
		ReapInterval:              config.GetDuration(q.ReapInterval),
		MaxConsecutiveInfraErrors: w.MaxConsecutiveInfraErrors,
	}
}

func (c *WorkerConfig) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.MaxIdleBackoff < c.PollInterval {
		c.MaxIdleBackoff = c.PollInterval
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = time.Second
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 2 * time.Second
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 3 * time.Minute
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 30 * time.Second
	}
	if c.MaxConsecutiveInfraErrors <= 0 {
		c.MaxConsecutiveInfraErrors = 5
	}
}

// Health tracks consecutive infrastructure failures for the /ready check.
type Health struct {
	consecutive atomic.Int64
	threshold   int64
	lastErr     atomic.Value
}

func NewHealth(threshold int) *Health {
	if threshold <= 0 {
		threshold = 1
	}
	return &Health{threshold: int64(threshold)}
}

func (h *Health) RecordSuccess() {
	h.consecutive.Store(0)
}

func (h *Health) RecordFailure(err error) {
	h.consecutive.Add(1)
	if err == nil {
		return
	}
	var stdErr *commonerrors.StandardError
	if errors.As(err, &stdErr) {
		h.lastErr.Store(string(stdErr.Code) + ": " + stdErr.Details)
		return
	}
	h.lastErr.Store(err.Error())
}

// Ready returns an error once the failure threshold has been reached.
func (h *Health) Ready() error {
	n := h.consecutive.Load()
	if n < h.threshold {
		return nil
	}
	last, _ := h.lastErr.Load().(string)
	return fmt.Errorf("%d consecutive infrastructure errors, last: %s", n, last)
}

// NextIdleBackoff doubles current, capped at max.
func NextIdleBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max || next <= 0 {
		return max
	}
	return next
}

type pollOutcome int

const (
	outcomeProcessed pollOutcome = iota
	outcomeEmpty
	outcomeInfraError
)

// Worker runs Concurrency pollers against one Source.
type Worker struct {
	source  Source
	handler JobHandler
	cfg     WorkerConfig
	health  *Health
	logger  logger.Logger
}

func NewWorker(source Source, handler JobHandler, cfg WorkerConfig, log logger.Logger) *Worker {
	cfg.applyDefaults()
	return &Worker{
		source:  source,
		handler: handler,
		cfg:     cfg,
		health:  NewHealth(cfg.MaxConsecutiveInfraErrors),
		logger:  log.WithFields(map[string]interface{}{"component": "queue-worker"}),
	}
}

// Ready reports readiness for the /ready endpoint.
func (w *Worker) Ready() error {
	return w.health.Ready()
}

// Run blocks until ctx is cancelled and every poller has returned. In-flight
// jobs finish under their own deadline.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started", map[string]interface{}{
		"concurrency": w.cfg.Concurrency,
	})

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			w.loop(ctx, n)
		}(i + 1)
	}

	if requeuer, ok := w.source.(StaleRequeuer); ok && w.cfg.ReapInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.reap(ctx, requeuer)
		}()
	}

	wg.Wait()
	w.logger.Info("worker stopped", nil)
}

func (w *Worker) loop(ctx context.Context, n int) {
	log := w.logger.WithFields(map[string]interface{}{"poller": n})
	idle := w.cfg.PollInterval

	for ctx.Err() == nil {
		var wait time.Duration
		switch w.pollOnce(ctx, log) {
		case outcomeProcessed:
			idle = w.cfg.PollInterval
			continue
		case outcomeEmpty:
			wait = idle
			idle = NextIdleBackoff(idle, w.cfg.MaxIdleBackoff)
		case outcomeInfraError:
			wait = w.cfg.ErrorBackoff
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (w *Worker) pollOnce(ctx context.Context, log logger.Logger) pollOutcome {
	recvCtx, cancel := context.WithTimeout(ctx, w.cfg.PollTimeout)
	delivery, err := w.source.Receive(recvCtx)
	cancel()

	switch {
	case err == nil:
	case errors.Is(err, ErrQueueEmpty):
		w.health.RecordSuccess()
		return outcomeEmpty
	case errors.Is(err, ErrMalformedJob):
		metrics.JobsFailed.WithLabelValues("dequeuing", string(commonerrors.ErrCodeMalformedJob)).Inc()
		return outcomeProcessed
	case ctx.Err() != nil:
		return outcomeEmpty
	default:
		stdErr := commonerrors.NewQueueUnavailableError(err)
		w.health.RecordFailure(stdErr)
		log.Error("Failed to receive job", map[string]interface{}{
			"errorCode": string(stdErr.Code),
			"details":   stdErr.Details,
		})
		return outcomeInfraError
	}

	w.process(ctx, delivery, log)
	return outcomeProcessed
}

func (w *Worker) process(ctx context.Context, delivery *Delivery, log logger.Logger) {
	// A job that has started is allowed to finish after shutdown begins,
	// bounded by the grace period.
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.JobTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, func() {
		time.AfterFunc(w.cfg.ShutdownGrace, cancel)
	})
	defer stop()

	metrics.JobsActive.Inc()
	err := w.safeHandle(jobCtx, delivery.Job)
	metrics.JobsActive.Dec()

	switch {
	case err == nil:
		w.health.RecordSuccess()
	case commonerrors.IsInfrastructure(err):
		w.health.RecordFailure(err)
	default:
		w.health.RecordSuccess()
	}

	if errors.Is(err, ErrJobPanicked) {
		log.Error("Job handler panicked", map[string]interface{}{
			"userId":  delivery.Job.UserID,
			"message": logger.Truncate(delivery.Job.Message, 80),
			"error":   err.Error(),
		})
	}

	ackCtx, ackCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer ackCancel()
	if ackErr := delivery.Ack(ackCtx); ackErr != nil {
		stdErr := commonerrors.NewQueueUnavailableError(ackErr)
		w.health.RecordFailure(stdErr)
		log.Error("Failed to ack job", map[string]interface{}{
			"userId":    delivery.Job.UserID,
			"errorCode": string(stdErr.Code),
			"details":   stdErr.Details,
		})
	}
}

func (w *Worker) safeHandle(ctx context.Context, job *models.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrJobPanicked, r, debug.Stack())
		}
	}()
	return w.handler.Handle(ctx, job)
}

func (w *Worker) reap(ctx context.Context, requeuer StaleRequeuer) {
	ticker := time.NewTicker(w.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := requeuer.RequeueStale(ctx, 100); err != nil && ctx.Err() == nil {
				w.logger.Warn("Failed to requeue stale jobs", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}
