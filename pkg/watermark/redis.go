package watermark

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the configuration for the Redis client.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
	Timeout  time.Duration
}

// RedisStore keeps the watermark under a single Redis key with no expiry.
type RedisStore struct {
	redisClient *redis.Client
	key         string
	logger      zerolog.Logger
}

// NewRedisStore creates and connects a RedisStore.
// It pings the Redis server to ensure connectivity before returning.
func NewRedisStore(ctx context.Context, cfg *RedisConfig, logger zerolog.Logger) (*RedisStore, error) {
	if cfg.Key == "" {
		return nil, fmt.Errorf("redis watermark key cannot be empty")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("redis_address", cfg.Addr).Str("key", cfg.Key).Msg("Successfully connected to Redis.")

	return &RedisStore{
		redisClient: rdb,
		key:         cfg.Key,
		logger:      logger.With().Str("component", "RedisStore").Logger(),
	}, nil
}

// Load fetches the stored value. A missing key or a non-integer value yields zero.
func (s *RedisStore) Load(ctx context.Context) (int64, error) {
	raw, err := s.redisClient.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.logger.Debug().Str("key", s.key).Msg("Watermark key not set, using zero.")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get watermark from redis: %w", err)
	}

	nanos, ok := parseNanos(raw)
	if !ok {
		s.logger.Warn().Str("key", s.key).Msg("Watermark value is not an integer, using zero.")
		return 0, nil
	}
	return nanos, nil
}

// Save stores the value without a TTL.
func (s *RedisStore) Save(ctx context.Context, nanos int64) error {
	if err := s.redisClient.Set(ctx, s.key, formatNanos(nanos), 0).Err(); err != nil {
		s.logger.Error().Err(err).Str("key", s.key).Msg("Failed to set watermark in Redis.")
		return fmt.Errorf("failed to set watermark in redis: %w", err)
	}
	s.logger.Debug().Str("key", s.key).Int64("nanos", nanos).Msg("Watermark saved.")
	return nil
}

// Close closes the Redis client connection.
func (s *RedisStore) Close() error {
	if s.redisClient != nil {
		s.logger.Info().Msg("Closing Redis client connection...")
		return s.redisClient.Close()
	}
	return nil
}
