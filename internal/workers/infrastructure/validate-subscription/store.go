// internal/workers/infrastructure/validate-subscription/store.go
package validatesubscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"oracle-worker/internal/models"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// ErrCacheUnavailable wraps failures of the backing cache store.
var ErrCacheUnavailable = errors.New("CACHE_UNAVAILABLE")

// Store caches health results per customer.
//
// Every customer has an invalidation generation. Invalidate bumps it, and Put
// only writes when the caller's generation is still current, so a result
// computed before an invalidation can never overwrite it.
type Store interface {
	// Get returns the cached result, or nil on a miss.
	Get(ctx context.Context, customerID string) (*models.HealthResult, error)
	Generation(ctx context.Context, customerID string) (int64, error)
	// Put stores result if generation is current and reports whether it did.
	Put(ctx context.Context, customerID string, result *models.HealthResult, generation int64) (bool, error)
	Invalidate(ctx context.Context, customerID string) error
}

// ==========================
// Redis
// ==========================

// generationTTL keeps generation counters around well past any result TTL.
const generationTTL = 24 * time.Hour

var putIfCurrent = redis.NewScript(`
local current = redis.call('GET', KEYS[2])
if not current then current = '0' end
if current ~= ARGV[1] then return 0 end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "sub:health:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(customerID string) string {
	return s.prefix + customerID
}

func (s *RedisStore) genKey(customerID string) string {
	return s.prefix + customerID + ":gen"
}

func (s *RedisStore) Get(ctx context.Context, customerID string) (*models.HealthResult, error) {
	raw, err := s.rdb.Get(ctx, s.key(customerID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	var result models.HealthResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		// Unreadable entries are dropped and treated as a miss.
		s.rdb.Del(ctx, s.key(customerID))
		return nil, nil
	}
	return &result, nil
}

func (s *RedisStore) Generation(ctx context.Context, customerID string) (int64, error) {
	gen, err := s.rdb.Get(ctx, s.genKey(customerID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return gen, nil
}

func (s *RedisStore) Put(ctx context.Context, customerID string, result *models.HealthResult, generation int64) (bool, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return false, fmt.Errorf("marshal health result: %w", err)
	}

	stored, err := putIfCurrent.Run(ctx, s.rdb,
		[]string{s.key(customerID), s.genKey(customerID)},
		strconv.FormatInt(generation, 10), string(payload), s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return stored == 1, nil
}

func (s *RedisStore) Invalidate(ctx context.Context, customerID string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, s.genKey(customerID))
		pipe.Expire(ctx, s.genKey(customerID), generationTTL)
		pipe.Del(ctx, s.key(customerID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// ==========================
// In-process LRU
// ==========================

type memoryEntry struct {
	result   models.HealthResult
	storedAt time.Time
}

// MemoryStore is a per-process LRU. Workers sharing customers should receive
// invalidations over the pub/sub bus.
type MemoryStore struct {
	mu      sync.Mutex
	entries *lru.Cache[string, memoryEntry]
	gens    *lru.Cache[string, int64]
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(size int, ttl time.Duration) (*MemoryStore, error) {
	if size <= 0 {
		size = 10000
	}
	entries, err := lru.New[string, memoryEntry](size)
	if err != nil {
		return nil, err
	}
	gens, err := lru.New[string, int64](size)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{entries: entries, gens: gens, ttl: ttl, now: time.Now}, nil
}

func (s *MemoryStore) Get(_ context.Context, customerID string) (*models.HealthResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries.Get(customerID)
	if !ok {
		return nil, nil
	}
	if s.ttl > 0 && s.now().Sub(entry.storedAt) >= s.ttl {
		s.entries.Remove(customerID)
		return nil, nil
	}
	result := entry.result
	return &result, nil
}

func (s *MemoryStore) Generation(_ context.Context, customerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen, _ := s.gens.Get(customerID)
	return gen, nil
}

func (s *MemoryStore) Put(_ context.Context, customerID string, result *models.HealthResult, generation int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, _ := s.gens.Get(customerID); current != generation {
		return false, nil
	}
	s.entries.Add(customerID, memoryEntry{result: *result, storedAt: s.now()})
	return true, nil
}

func (s *MemoryStore) Invalidate(_ context.Context, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	gen, _ := s.gens.Get(customerID)
	s.gens.Add(customerID, gen+1)
	s.entries.Remove(customerID)
	return nil
}

// Len reports the number of cached results.
func (s *MemoryStore) Len() int {
	return s.entries.Len()
}
