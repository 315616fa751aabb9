package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/fleetguard/governor/core"
)

// TelemetryStore persists unchained TelemetrySamples for a Run (spec.md
// §3). Unlike EventStore, samples carry no integrity chain and may be
// pruned or expired freely.
type TelemetryStore interface {
	Append(ctx context.Context, sample *core.TelemetrySample) error
	List(ctx context.Context, runID string, limit, offset int) ([]*core.TelemetrySample, error)
}

// InMemoryTelemetryStore is the default TelemetryStore backend.
type InMemoryTelemetryStore struct {
	mu      sync.RWMutex
	samples map[string][]*core.TelemetrySample
}

// NewInMemoryTelemetryStore returns an empty InMemoryTelemetryStore.
func NewInMemoryTelemetryStore() *InMemoryTelemetryStore {
	return &InMemoryTelemetryStore{samples: make(map[string][]*core.TelemetrySample)}
}

func (s *InMemoryTelemetryStore) Append(ctx context.Context, sample *core.TelemetrySample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples[sample.RunID] = append(s.samples[sample.RunID], sample)
	return nil
}

func (s *InMemoryTelemetryStore) List(ctx context.Context, runID string, limit, offset int) ([]*core.TelemetrySample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.samples[runID]
	if offset >= len(all) {
		return []*core.TelemetrySample{}, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]*core.TelemetrySample, end-offset)
	copy(out, all[offset:end])
	return out, nil
}

const defaultTelemetryStoreKeyPrefix = "governor:telemetry:"

// RedisTelemetryStoreOption configures a RedisTelemetryStore.
type RedisTelemetryStoreOption func(*redisTelemetryStoreConfig)

type redisTelemetryStoreConfig struct {
	redisDB   int
	logger    core.Logger
	keyPrefix string
	ttl       time.Duration
	capacity  int64 // LTRIM window; 0 disables trimming
}

// WithTelemetryStoreRedisDB selects a non-default Redis logical database.
func WithTelemetryStoreRedisDB(db int) RedisTelemetryStoreOption {
	return func(c *redisTelemetryStoreConfig) { c.redisDB = db }
}

// WithTelemetryStoreLogger sets the diagnostics logger.
func WithTelemetryStoreLogger(logger core.Logger) RedisTelemetryStoreOption {
	return func(c *redisTelemetryStoreConfig) { c.logger = logger }
}

// WithTelemetryStoreTTL sets a retention TTL per run's sample key.
func WithTelemetryStoreTTL(ttl time.Duration) RedisTelemetryStoreOption {
	return func(c *redisTelemetryStoreConfig) { c.ttl = ttl }
}

// WithTelemetryStoreCapacity caps the number of retained samples per run,
// trimming the oldest via LTRIM after each append. 0 means unbounded.
func WithTelemetryStoreCapacity(n int64) RedisTelemetryStoreOption {
	return func(c *redisTelemetryStoreConfig) { c.capacity = n }
}

// RedisTelemetryStore is a Redis-backed TelemetryStore using a capped list
// per run, mirroring RedisEventStore's layout.
type RedisTelemetryStore struct {
	client    *redis.Client
	logger    core.Logger
	keyPrefix string
	ttl       time.Duration
	capacity  int64
}

// NewRedisTelemetryStore dials redisURL and returns a ready store.
func NewRedisTelemetryStore(redisURL string, opts ...RedisTelemetryStoreOption) (*RedisTelemetryStore, error) {
	cfg := &redisTelemetryStoreConfig{
		logger:    core.NewNoOpLogger(),
		keyPrefix: defaultTelemetryStoreKeyPrefix,
		capacity:  10000,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	redisOpt, err := redis.ParseURL(redisURL)
	if err != nil {
		redisOpt = &redis.Options{Addr: redisURL}
	}
	if cfg.redisDB != 0 {
		redisOpt.DB = cfg.redisDB
	}
	client := redis.NewClient(redisOpt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: redis ping failed: %v", core.ErrStoreUnavailable, err)
	}

	return &RedisTelemetryStore{
		client:    client,
		logger:    cfg.logger,
		keyPrefix: cfg.keyPrefix,
		ttl:       cfg.ttl,
		capacity:  cfg.capacity,
	}, nil
}

func (s *RedisTelemetryStore) key(runID string) string {
	return s.keyPrefix + runID
}

func (s *RedisTelemetryStore) Append(ctx context.Context, sample *core.TelemetrySample) error {
	data, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.key(sample.RunID), data)
	if s.capacity > 0 {
		pipe.LTrim(ctx, s.key(sample.RunID), -s.capacity, -1)
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key(sample.RunID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisTelemetryStore) List(ctx context.Context, runID string, limit, offset int) ([]*core.TelemetrySample, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(offset + limit - 1)
	}
	raw, err := s.client.LRange(ctx, s.key(runID), int64(offset), stop).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	out := make([]*core.TelemetrySample, 0, len(raw))
	for _, r := range raw {
		var sample core.TelemetrySample
		if err := json.Unmarshal([]byte(r), &sample); err != nil {
			return nil, fmt.Errorf("%w: corrupt telemetry record: %v", core.ErrStoreUnavailable, err)
		}
		out = append(out, &sample)
	}
	return out, nil
}

// Close releases the underlying Redis client.
func (s *RedisTelemetryStore) Close() error {
	return s.client.Close()
}
