package project

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// DefaultKeyPrefix is the key prefix of project states in redis
const DefaultKeyPrefix = "relayconfig"

// RedisConfig contains the store connection settings
type RedisConfig struct {
	URL       string
	KeyPrefix string
	Timeout   time.Duration
	PoolSize  int
}

// getter is the part of the redis client the store needs
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisStore reads project states cached in redis under {prefix}:{projectID}
type RedisStore struct {
	client  getter
	closer  func() error
	prefix  string
	timeout time.Duration
	logger  *zap.Logger
	stats   *storeStats
}

// storeStats tracks lookup outcomes
type storeStats struct {
	hits   atomic.Int64
	misses atomic.Int64
}

// StoreStats is a snapshot of lookup outcomes
type StoreStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// NewRedisStore connects to redis and creates a new store
func NewRedisStore(config RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	// Parse Redis URL
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Project store initialized",
		zap.String("redis_url", maskRedisURL(config.URL)),
		zap.String("key_prefix", config.KeyPrefix),
		zap.Int("pool_size", opts.PoolSize))

	store := newRedisStore(client, config.KeyPrefix, config.Timeout, logger)
	store.closer = client.Close
	return store, nil
}

func newRedisStore(client getter, prefix string, timeout time.Duration, logger *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{
		client:  client,
		prefix:  prefix,
		timeout: timeout,
		logger:  logger,
		stats:   &storeStats{},
	}
}

// Get reads and decodes the state of a project
func (s *RedisStore) Get(ctx context.Context, projectID string) (*Config, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	key := s.key(projectID)
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		s.stats.misses.Add(1)
		s.logger.Debug("Project config miss", zap.String("key", key))
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("project config lookup failed: %w", err)
	}

	s.stats.hits.Add(1)
	return decodeState(projectID, data)
}

// Stats returns lookup statistics
func (s *RedisStore) Stats() StoreStats {
	return StoreStats{Hits: s.stats.hits.Load(), Misses: s.stats.misses.Load()}
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	if s.closer != nil {
		return s.closer()
	}
	return nil
}

func (s *RedisStore) key(projectID string) string {
	return s.prefix + ":" + projectID
}

// maskRedisURL masks the password of a Redis URL for logging
func maskRedisURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "redis://***"
	}
	return u.Redacted()
}
