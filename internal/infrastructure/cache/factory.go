package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/erp/marketplace/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SyncLock is the per-integration try-lock both implementations provide
type SyncLock interface {
	TryAcquire(ctx context.Context, integrationID uuid.UUID) (release func(), acquired bool, err error)
}

// Coordination bundles the state that must be shared between instances
type Coordination struct {
	Locks  SyncLock
	States integration.StateStore
	client *redis.Client
}

// Distributed reports whether locks and states live in Redis
func (c *Coordination) Distributed() bool {
	return c.client != nil
}

// Ping checks the Redis connection; in-memory coordination is always ready
func (c *Coordination) Ping(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// Close releases the Redis client when one is used
func (c *Coordination) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// CoordinationFactory creates coordination backends based on configuration
type CoordinationFactory struct {
	redisConfig           config.RedisConfig
	lockLease             time.Duration
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// CoordinationFactoryOption is a functional option for configuring the factory
type CoordinationFactoryOption func(*CoordinationFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) CoordinationFactoryOption {
	return func(f *CoordinationFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to process memory when Redis is unavailable
// Default is true (allow fallback)
func WithInMemoryFallback(allow bool) CoordinationFactoryOption {
	return func(f *CoordinationFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewCoordinationFactory creates a new factory. lockLease bounds how long a
// crashed instance can keep an integration locked.
func NewCoordinationFactory(cfg config.RedisConfig, lockLease time.Duration, opts ...CoordinationFactoryOption) *CoordinationFactory {
	f := &CoordinationFactory{
		redisConfig:           cfg,
		lockLease:             lockLease,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// CreateInMemory creates process-local coordination.
// WARNING: in-memory locks do not exclude syncs running on other instances.
func (f *CoordinationFactory) CreateInMemory() *Coordination {
	return &Coordination{
		Locks:  NewInMemorySyncLock(),
		States: NewInMemoryStateStore(),
	}
}

// Create uses Redis when enabled and reachable, otherwise falls back to memory
// when fallback is allowed
func (f *CoordinationFactory) Create(ctx context.Context) (*Coordination, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("Redis disabled, using in-memory sync locks and OAuth states")
		return f.CreateInMemory(), nil
	}

	client, err := NewRedisClient(ctx, f.redisConfig)
	if err == nil {
		f.logger.Info("Using Redis sync locks and OAuth states", zap.String("addr", f.redisConfig.Addr()))
		return &Coordination{
			Locks:  NewRedisSyncLock(client, f.redisConfig.KeyPrefix, f.lockLease),
			States: NewRedisStateStore(client, f.redisConfig.KeyPrefix),
			client: client,
		}, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for coordination but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory sync locks. "+
		"Concurrent instances may run the same integration twice.",
		zap.Error(err),
	)
	return f.CreateInMemory(), nil
}
