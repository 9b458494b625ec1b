// Package queue implements the Redis-backed FIFO job queue and the poll loop
// that drains it.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"oracle-worker/internal/common/config"
	"oracle-worker/internal/common/logger"
	"oracle-worker/internal/common/metrics"
	"oracle-worker/internal/common/validation"
	"oracle-worker/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrQueueEmpty is returned by Dequeue and Receive when nothing is queued.
	ErrQueueEmpty       = errors.New("QUEUE_EMPTY")
	ErrQueueUnavailable = errors.New("QUEUE_UNAVAILABLE")
	// ErrMalformedJob means a payload was removed from the queue but could not
	// be decoded. The payload is dropped.
	ErrMalformedJob = errors.New("MALFORMED_JOB")
)

type Mode string

const (
	// ModeSimple pops the head and forgets it. A worker crash loses the job.
	ModeSimple Mode = "simple"
	// ModeReliable moves the head to a processing list until it is acked.
	ModeReliable Mode = "reliable"
)

type Config struct {
	Name              string
	Mode              Mode
	ProcessingKey     string
	DeadlinesKey      string
	ClaimsKey         string
	VisibilityTimeout time.Duration
}

// ConfigFrom derives queue keys from the application config.
func ConfigFrom(cfg config.QueueConfig) Config {
	processing := cfg.Name + cfg.ProcessingSuffix
	return Config{
		Name:              cfg.Name,
		Mode:              Mode(cfg.Mode),
		ProcessingKey:     processing,
		DeadlinesKey:      processing + ":deadlines",
		ClaimsKey:         processing + ":claims",
		VisibilityTimeout: config.GetDuration(cfg.VisibilityTimeout),
	}
}

// Delivery is a received job. Ack must be called once the job has been
// handled, successfully or not.
type Delivery struct {
	Job *models.Job
	ack func(ctx context.Context) error
}

// NewDelivery builds a delivery around an ack callback. A nil callback makes
// Ack a no-op.
func NewDelivery(job *models.Job, ack func(ctx context.Context) error) *Delivery {
	return &Delivery{Job: job, ack: ack}
}

func (d *Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

type RedisQueue struct {
	rdb       *redis.Client
	cfg       Config
	validator *validation.SchemaValidator
	logger    logger.Logger
	now       func() time.Time
}

func NewRedisQueue(rdb *redis.Client, cfg Config, log logger.Logger) (*RedisQueue, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeSimple
	}
	if cfg.Mode != ModeSimple && cfg.Mode != ModeReliable {
		return nil, fmt.Errorf("unknown queue mode %q", cfg.Mode)
	}
	if cfg.ProcessingKey == "" {
		cfg.ProcessingKey = cfg.Name + ":processing"
	}
	if cfg.DeadlinesKey == "" {
		cfg.DeadlinesKey = cfg.ProcessingKey + ":deadlines"
	}
	if cfg.ClaimsKey == "" {
		cfg.ClaimsKey = cfg.ProcessingKey + ":claims"
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 5 * time.Minute
	}

	v, err := validation.NewJobValidator()
	if err != nil {
		return nil, err
	}

	return &RedisQueue{
		rdb:       rdb,
		cfg:       cfg,
		validator: v,
		logger:    log.WithFields(map[string]interface{}{"queue": cfg.Name, "mode": string(cfg.Mode)}),
		now:       time.Now,
	}, nil
}

func (q *RedisQueue) Mode() Mode {
	return q.cfg.Mode
}

// Enqueue appends job to the tail of the queue.
func (q *RedisQueue) Enqueue(ctx context.Context, job *models.Job) error {
	if !job.Valid() {
		return fmt.Errorf("%w: userId and message are required", ErrMalformedJob)
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}

	if err := q.rdb.RPush(ctx, q.cfg.Name, string(payload)).Err(); err != nil {
		metrics.QueueErrors.WithLabelValues("enqueue", "unavailable").Inc()
		return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return nil
}

// Dequeue pops the head of the queue without blocking.
func (q *RedisQueue) Dequeue(ctx context.Context) (*models.Job, error) {
	raw, err := q.rdb.LPop(ctx, q.cfg.Name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		metrics.QueueErrors.WithLabelValues("dequeue", "unavailable").Inc()
		return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return q.decode(raw)
}

// Receive returns the next job according to the queue mode.
func (q *RedisQueue) Receive(ctx context.Context) (*Delivery, error) {
	if q.cfg.Mode == ModeSimple {
		job, err := q.Dequeue(ctx)
		if err != nil {
			return nil, err
		}
		return NewDelivery(job, nil), nil
	}
	return q.claim(ctx)
}

// claim moves the head into the processing list and records its visibility
// deadline under a fresh claim id. Deadlines are keyed by claim id so that
// identical payloads in flight at the same time are tracked separately.
func (q *RedisQueue) claim(ctx context.Context) (*Delivery, error) {
	raw, err := q.rdb.LMove(ctx, q.cfg.Name, q.cfg.ProcessingKey, "LEFT", "RIGHT").Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		metrics.QueueErrors.WithLabelValues("claim", "unavailable").Inc()
		return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	claimID := uuid.NewString()
	deadline := q.now().Add(q.cfg.VisibilityTimeout)
	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.cfg.ClaimsKey, claimID, raw)
		pipe.ZAdd(ctx, q.cfg.DeadlinesKey, redis.Z{
			Score:  float64(deadline.UnixMilli()),
			Member: claimID,
		})
		return nil
	})
	if err != nil {
		// The item stays in the processing list without a deadline. Put it
		// back so it is not stranded.
		_, pushErr := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, q.cfg.ProcessingKey, 1, raw)
			pipe.LPush(ctx, q.cfg.Name, raw)
			pipe.HDel(ctx, q.cfg.ClaimsKey, claimID)
			pipe.ZRem(ctx, q.cfg.DeadlinesKey, claimID)
			return nil
		})
		if pushErr != nil {
			q.logger.Error("Failed to return claimed job after deadline write failure", map[string]interface{}{
				"error": pushErr.Error(),
			})
		}
		return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	job, err := q.decode(raw)
	if err != nil {
		if ackErr := q.ack(ctx, claimID, raw); ackErr != nil {
			q.logger.Warn("Failed to drop malformed job from processing list", map[string]interface{}{
				"error": ackErr.Error(),
			})
		}
		return nil, err
	}

	return NewDelivery(job, func(ctx context.Context) error {
		return q.ack(ctx, claimID, raw)
	}), nil
}

// ack removes one copy of raw from the processing list along with the claim's
// deadline. Copies of an identical payload are interchangeable in the list.
func (q *RedisQueue) ack(ctx context.Context, claimID, raw string) error {
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.cfg.ProcessingKey, 1, raw)
		pipe.ZRem(ctx, q.cfg.DeadlinesKey, claimID)
		pipe.HDel(ctx, q.cfg.ClaimsKey, claimID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: ack: %v", ErrQueueUnavailable, err)
	}
	return nil
}

// RequeueStale returns up to max claimed jobs whose visibility deadline has
// passed to the head of the queue. Only meaningful in reliable mode.
func (q *RedisQueue) RequeueStale(ctx context.Context, max int64) (int64, error) {
	if q.cfg.Mode != ModeReliable {
		return 0, nil
	}

	stale, err := q.rdb.ZRangeByScore(ctx, q.cfg.DeadlinesKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(q.now().UnixMilli(), 10),
		Count: max,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	var moved int64
	for _, claimID := range stale {
		raw, err := q.rdb.HGet(ctx, q.cfg.ClaimsKey, claimID).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return moved, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
		}
		if err == nil {
			removed, err := q.rdb.LRem(ctx, q.cfg.ProcessingKey, 1, raw).Result()
			if err != nil {
				return moved, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
			}
			if removed > 0 {
				if err := q.rdb.LPush(ctx, q.cfg.Name, raw).Err(); err != nil {
					return moved, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
				}
				moved++
			}
		}
		_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRem(ctx, q.cfg.DeadlinesKey, claimID)
			pipe.HDel(ctx, q.cfg.ClaimsKey, claimID)
			return nil
		})
		if err != nil {
			return moved, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
		}
	}

	if moved > 0 {
		q.logger.Warn("Requeued stale jobs", map[string]interface{}{"count": moved})
	}
	return moved, nil
}

// Depth reports the queued and in-flight list lengths and publishes them as
// gauges.
func (q *RedisQueue) Depth(ctx context.Context) (queued, processing int64, err error) {
	queued, err = q.rdb.LLen(ctx, q.cfg.Name).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	metrics.QueueDepth.WithLabelValues("queued").Set(float64(queued))

	if q.cfg.Mode == ModeReliable {
		processing, err = q.rdb.LLen(ctx, q.cfg.ProcessingKey).Result()
		if err != nil {
			return queued, 0, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
		}
		metrics.QueueDepth.WithLabelValues("processing").Set(float64(processing))
	}
	return queued, processing, nil
}

func (q *RedisQueue) decode(raw string) (*models.Job, error) {
	result := q.validator.ValidateJSON([]byte(raw))
	if !result.Valid {
		metrics.QueueErrors.WithLabelValues("decode", "malformed").Inc()
		q.logger.Error("Dropping malformed job payload", map[string]interface{}{
			"payload": logger.Truncate(raw, 200),
			"errors":  result.Summary(),
		})
		return nil, fmt.Errorf("%w: %s", ErrMalformedJob, result.Summary())
	}

	var job models.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	if !job.Valid() {
		q.logger.Error("Dropping job with blank fields", map[string]interface{}{
			"payload": logger.Truncate(raw, 200),
		})
		return nil, fmt.Errorf("%w: blank userId or message", ErrMalformedJob)
	}
	return &job, nil
}
