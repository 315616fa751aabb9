package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/fleetguard/governor/core"
)

const defaultEventStoreKeyPrefix = "governor:events:"

// RedisEventStoreOption configures a RedisEventStore, following the
// teacher's functional-options pattern for Redis-backed stores
// (orchestration.RedisExecutionDebugStoreOption).
type RedisEventStoreOption func(*redisEventStoreConfig)

type redisEventStoreConfig struct {
	redisDB        int
	logger         core.Logger
	circuitBreaker core.CircuitBreaker // optional, injected by application
	keyPrefix      string
	ttl            time.Duration
}

// WithEventStoreRedisDB selects a non-default Redis logical database.
func WithEventStoreRedisDB(db int) RedisEventStoreOption {
	return func(c *redisEventStoreConfig) { c.redisDB = db }
}

// WithEventStoreLogger sets the logger used for store diagnostics.
func WithEventStoreLogger(logger core.Logger) RedisEventStoreOption {
	return func(c *redisEventStoreConfig) { c.logger = logger }
}

// WithEventStoreCircuitBreaker injects an optional circuit breaker around
// Redis calls. Without one, the store makes a single attempt per call and
// surfaces ErrStoreUnavailable on failure; the Run Controller is
// responsible for retry/backoff at the tick level.
func WithEventStoreCircuitBreaker(cb core.CircuitBreaker) RedisEventStoreOption {
	return func(c *redisEventStoreConfig) { c.circuitBreaker = cb }
}

// WithEventStoreKeyPrefix overrides the default Redis key prefix.
func WithEventStoreKeyPrefix(prefix string) RedisEventStoreOption {
	return func(c *redisEventStoreConfig) { c.keyPrefix = prefix }
}

// WithEventStoreTTL sets a retention TTL applied to each run's event key.
// Zero means no expiry (chains persist until explicitly deleted).
func WithEventStoreTTL(ttl time.Duration) RedisEventStoreOption {
	return func(c *redisEventStoreConfig) { c.ttl = ttl }
}

// RedisEventStore is a Redis-backed EventStore. Each run's chain is stored
// as a Redis list of JSON-encoded events at key "<prefix><run_id>",
// appended with RPUSH so List order matches append order without a
// separate index structure.
type RedisEventStore struct {
	client         *redis.Client
	logger         core.Logger
	circuitBreaker core.CircuitBreaker
	keyPrefix      string
	ttl            time.Duration
}

// NewRedisEventStore dials redisURL and returns a ready RedisEventStore.
func NewRedisEventStore(redisURL string, opts ...RedisEventStoreOption) (*RedisEventStore, error) {
	cfg := &redisEventStoreConfig{
		logger:    core.NewNoOpLogger(),
		keyPrefix: defaultEventStoreKeyPrefix,
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

	cfg.logger.Info("redis event store initialized", map[string]interface{}{
		"key_prefix": cfg.keyPrefix,
		"ttl":        cfg.ttl.String(),
	})

	return &RedisEventStore{
		client:         client,
		logger:         cfg.logger,
		circuitBreaker: cfg.circuitBreaker,
		keyPrefix:      cfg.keyPrefix,
		ttl:            cfg.ttl,
	}, nil
}

func (s *RedisEventStore) key(runID string) string {
	return s.keyPrefix + runID
}

func (s *RedisEventStore) guard(ctx context.Context, op string, fn func() error) error {
	if s.circuitBreaker != nil {
		if err := s.circuitBreaker.Execute(ctx, fn); err != nil {
			return fmt.Errorf("%w: %s: %v", core.ErrStoreUnavailable, op, err)
		}
		return nil
	}
	if err := fn(); err != nil {
		return fmt.Errorf("%w: %s: %v", core.ErrStoreUnavailable, op, err)
	}
	return nil
}

func (s *RedisEventStore) Append(ctx context.Context, runID string, typ core.EventType, payload map[string]interface{}, ts time.Time) (*core.Event, error) {
	var ev *core.Event
	err := s.guard(ctx, "append", func() error {
		last, err := s.client.LRange(ctx, s.key(runID), -1, -1).Result()
		if err != nil {
			return err
		}
		prevHash := core.ZeroHash
		if len(last) == 1 {
			var prevEv core.Event
			if err := json.Unmarshal([]byte(last[0]), &prevEv); err != nil {
				return err
			}
			prevHash = prevEv.Hash
		}

		h, err := computeHash(runID, ts, typ, payload, prevHash)
		if err != nil {
			return err
		}
		length, err := s.client.LLen(ctx, s.key(runID)).Result()
		if err != nil {
			return err
		}
		ev = &core.Event{
			ID:        fmt.Sprintf("%s-ev-%d", runID, length),
			RunID:     runID,
			Timestamp: ts,
			Type:      typ,
			Payload:   payload,
			PrevHash:  prevHash,
			Hash:      h,
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if err := s.client.RPush(ctx, s.key(runID), data).Err(); err != nil {
			return err
		}
		if s.ttl > 0 {
			s.client.Expire(ctx, s.key(runID), s.ttl)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func (s *RedisEventStore) List(ctx context.Context, runID string, limit, offset int) ([]*core.Event, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(offset + limit - 1)
	}
	var raw []string
	err := s.guard(ctx, "list", func() error {
		var lerr error
		raw, lerr = s.client.LRange(ctx, s.key(runID), int64(offset), stop).Result()
		return lerr
	})
	if err != nil {
		return nil, err
	}
	out := make([]*core.Event, 0, len(raw))
	for _, r := range raw {
		var ev core.Event
		if err := json.Unmarshal([]byte(r), &ev); err != nil {
			return nil, fmt.Errorf("%w: corrupt event record: %v", core.ErrStoreUnavailable, err)
		}
		out = append(out, &ev)
	}
	return out, nil
}

func (s *RedisEventStore) Last(ctx context.Context, runID string) (*core.Event, error) {
	var raw []string
	err := s.guard(ctx, "last", func() error {
		var lerr error
		raw, lerr = s.client.LRange(ctx, s.key(runID), -1, -1).Result()
		return lerr
	})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var ev core.Event
	if err := json.Unmarshal([]byte(raw[0]), &ev); err != nil {
		return nil, fmt.Errorf("%w: corrupt event record: %v", core.ErrStoreUnavailable, err)
	}
	return &ev, nil
}

func (s *RedisEventStore) VerifyChain(events []*core.Event) (bool, error) {
	return verifyChain(events)
}

func (s *RedisEventStore) ExportBundle(ctx context.Context, run *core.Run, telemetry TelemetryStore) (*Bundle, error) {
	events, err := s.List(ctx, run.ID, 0, 0)
	if err != nil {
		return nil, err
	}
	valid, _ := s.VerifyChain(events)
	samples, err := listTelemetry(ctx, run.ID, telemetry)
	if err != nil {
		return nil, err
	}
	return buildBundle(run, events, samples, valid)
}

// Close releases the underlying Redis client.
func (s *RedisEventStore) Close() error {
	return s.client.Close()
}
