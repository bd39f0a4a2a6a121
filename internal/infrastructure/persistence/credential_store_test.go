package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/erp/marketplace/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormCredentialStore(t *testing.T) {
	db := setupMarketplaceTestDB(t)
	store := NewGormCredentialStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	cred := &models.IntegrationCredentialModel{
		ID:          uuid.New(),
		TenantID:    uuid.New(),
		ChannelSlug: "shopee",
		Ciphertext:  []byte{0x01, 0x02, 0x03},
		Nonce:       []byte{0x0a, 0x0b},
		KeyVersion:  1,
		CreatedAt:   now,
	}
	require.NoError(t, store.Insert(ctx, cred))

	found, err := store.FindByID(ctx, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, cred.Ciphertext, found.Ciphertext)
	assert.Equal(t, cred.Nonce, found.Nonce)
	assert.False(t, found.IsRevoked())

	require.NoError(t, store.Revoke(ctx, cred.ID, now))
	require.NoError(t, store.Revoke(ctx, cred.ID, now.Add(time.Minute)), "revoking twice is a no-op")

	found, err = store.FindByID(ctx, cred.ID)
	require.NoError(t, err)
	assert.True(t, found.IsRevoked())
	assert.Empty(t, found.Ciphertext)

	_, err = store.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, integration.ErrRefNotFound)
	assert.ErrorIs(t, store.Revoke(ctx, uuid.New(), now), integration.ErrRefNotFound)
}
