package cache

import (
	"context"
	"testing"
	"time"

	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newState(t *testing.T, tenantID uuid.UUID, slug string, ttl time.Duration) *integration.OAuthState {
	t.Helper()
	state, err := integration.NewOAuthState(tenantID, slug, uuid.New(), ttl, time.Now())
	require.NoError(t, err)
	return state
}

func exerciseStateStore(t *testing.T, store integration.StateStore) {
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("single use", func(t *testing.T) {
		state := newState(t, tenantID, "mercado_livre", time.Minute)
		require.NoError(t, store.Issue(ctx, state))

		got, err := store.Consume(ctx, state.Token)
		require.NoError(t, err)
		assert.Equal(t, tenantID, got.TenantID)
		assert.Equal(t, "mercado_livre", got.ChannelSlug)
		assert.Equal(t, state.ActorID, got.ActorID)

		_, err = store.Consume(ctx, state.Token)
		assert.ErrorIs(t, err, integration.ErrInvalidState)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := store.Consume(ctx, "nope")
		assert.ErrorIs(t, err, integration.ErrInvalidState)
	})

	t.Run("new issue replaces the pair's pending token", func(t *testing.T) {
		first := newState(t, tenantID, "amazon", time.Minute)
		second := newState(t, tenantID, "amazon", time.Minute)
		other := newState(t, uuid.New(), "amazon", time.Minute)
		require.NoError(t, store.Issue(ctx, first))
		require.NoError(t, store.Issue(ctx, other))
		require.NoError(t, store.Issue(ctx, second))

		_, err := store.Consume(ctx, first.Token)
		assert.ErrorIs(t, err, integration.ErrInvalidState)

		_, err = store.Consume(ctx, second.Token)
		assert.NoError(t, err)
		_, err = store.Consume(ctx, other.Token)
		assert.NoError(t, err, "other tenants are untouched")
	})

	t.Run("expired tokens cannot be issued", func(t *testing.T) {
		state := newState(t, tenantID, "shopee", time.Minute)
		state.ExpiresAt = time.Now().Add(-time.Second)
		assert.ErrorIs(t, store.Issue(ctx, state), integration.ErrInvalidState)
	})

	t.Run("token lapses after its ttl", func(t *testing.T) {
		state := newState(t, tenantID, "bling", time.Minute)
		state.ExpiresAt = time.Now().Add(1100 * time.Millisecond)
		require.NoError(t, store.Issue(ctx, state))
		time.Sleep(1200 * time.Millisecond)
		_, err := store.Consume(ctx, state.Token)
		assert.ErrorIs(t, err, integration.ErrInvalidState)
	})
}

func TestInMemoryStateStore(t *testing.T) {
	exerciseStateStore(t, NewInMemoryStateStore())
}

func TestRedisStateStore(t *testing.T) {
	client := redisClientForTest(t)
	exerciseStateStore(t, NewRedisStateStore(client, "test:"+uuid.NewString()+":"))
}
