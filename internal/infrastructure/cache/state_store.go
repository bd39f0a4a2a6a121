package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

func pairKey(tenantID uuid.UUID, slug string) string {
	return tenantID.String() + ":" + slug
}

// ---------------------------------------------------------------------------
// In-memory
// ---------------------------------------------------------------------------

// InMemoryStateStore keeps pending OAuth states in process memory.
// Entries expire on their own; a token lost to expiry reads as invalid.
type InMemoryStateStore struct {
	mu     sync.Mutex
	states *gocache.Cache
	pairs  map[string]string
	now    func() time.Time
}

// NewInMemoryStateStore creates a new in-memory OAuth state store
func NewInMemoryStateStore() *InMemoryStateStore {
	return &InMemoryStateStore{
		states: gocache.New(integration.DefaultStateTTL, time.Minute),
		pairs:  make(map[string]string),
		now:    time.Now,
	}
}

// Issue stores state and invalidates any earlier token for the same pair
func (s *InMemoryStateStore) Issue(_ context.Context, state *integration.OAuthState) error {
	ttl := state.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return integration.ErrInvalidState
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(state.TenantID, state.ChannelSlug)
	if previous, ok := s.pairs[key]; ok {
		s.states.Delete(previous)
	}
	s.pairs[key] = state.Token
	stored := *state
	s.states.Set(state.Token, &stored, ttl)
	return nil
}

// Consume returns the state behind token exactly once
func (s *InMemoryStateStore) Consume(_ context.Context, token string) (*integration.OAuthState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.states.Get(token)
	if !ok {
		return nil, integration.ErrInvalidState
	}
	s.states.Delete(token)

	state := value.(*integration.OAuthState)
	key := pairKey(state.TenantID, state.ChannelSlug)
	if s.pairs[key] == token {
		delete(s.pairs, key)
	}
	return state, nil
}

// ---------------------------------------------------------------------------
// Redis
// ---------------------------------------------------------------------------

// RedisStateStore shares pending OAuth states across instances
type RedisStateStore struct {
	client    redis.UniversalClient
	keyPrefix string
	now       func() time.Time
}

// NewRedisStateStore creates a Redis-backed OAuth state store
func NewRedisStateStore(client redis.UniversalClient, keyPrefix string) *RedisStateStore {
	return &RedisStateStore{
		client:    client,
		keyPrefix: keyPrefix + "oauth-state:",
		now:       time.Now,
	}
}

func (s *RedisStateStore) tokenKey(token string) string {
	return s.keyPrefix + "token:" + token
}

func (s *RedisStateStore) pairKey(tenantID uuid.UUID, slug string) string {
	return s.keyPrefix + "pair:" + pairKey(tenantID, slug)
}

// Issue stores state and invalidates any earlier token for the same pair
func (s *RedisStateStore) Issue(ctx context.Context, state *integration.OAuthState) error {
	ttl := state.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return integration.ErrInvalidState
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode oauth state: %w", err)
	}

	if err := s.client.Set(ctx, s.tokenKey(state.Token), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store oauth state: %w", err)
	}
	previous, err := s.client.SetArgs(ctx, s.pairKey(state.TenantID, state.ChannelSlug), state.Token, redis.SetArgs{
		TTL: ttl,
		Get: true,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to index oauth state: %w", err)
	}
	if previous != "" && previous != state.Token {
		if err := s.client.Del(ctx, s.tokenKey(previous)).Err(); err != nil {
			return fmt.Errorf("failed to invalidate previous oauth state: %w", err)
		}
	}
	return nil
}

// Consume returns the state behind token exactly once using GETDEL
func (s *RedisStateStore) Consume(ctx context.Context, token string) (*integration.OAuthState, error) {
	payload, err := s.client.GetDel(ctx, s.tokenKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, integration.ErrInvalidState
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume oauth state: %w", err)
	}

	var state integration.OAuthState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, integration.ErrInvalidState
	}
	return &state, nil
}

// Ensure both stores implement the interface
var (
	_ integration.StateStore = (*InMemoryStateStore)(nil)
	_ integration.StateStore = (*RedisStateStore)(nil)
)
