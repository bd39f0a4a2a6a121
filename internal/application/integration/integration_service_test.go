package integration

import (
	"context"
	"testing"

	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/erp/marketplace/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegrationService_TenantScope(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	target := env.connectShopee(t)
	foreign := integration.Actor{UserID: uuid.New(), TenantID: uuid.New(), Role: integration.RoleTenantAdmin}

	_, err := env.service.Get(ctx, foreign, target.ID)
	assert.ErrorIs(t, err, integration.ErrIntegrationNotFound)

	_, err = env.service.TriggerSync(ctx, foreign, target.ID, integration.DirectionImport)
	assert.ErrorIs(t, err, integration.ErrIntegrationNotFound)

	list, err := env.service.List(ctx, foreign)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = env.service.List(ctx, env.operator)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestIntegrationService_TriggerSyncAndLogs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	target := env.connectShopee(t)
	env.shopee.On("Sync", mockAny, mockAny).Return(&integration.SyncResult{RecordsProcessed: 4}, nil).Twice()

	for idx := 0; idx < 2; idx++ {
		entry, err := env.service.TriggerSync(ctx, env.operator, target.ID, "")
		require.NoError(t, err)
		assert.Equal(t, integration.DirectionImport, entry.Direction)
		assert.Equal(t, integration.TriggerManual, entry.Trigger)
	}

	logs, total, err := env.service.ListLogs(ctx, env.operator, target.ID, integration.SyncLogFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, logs, 2)

	_, _, err = env.service.ListLogs(ctx, env.operator, target.ID, integration.SyncLogFilter{Status: "weird"})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestIntegrationService_UpdateSettings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	target := env.connectShopee(t)

	off := false
	interval := 15
	hook := "https://erp.example.com/hooks/shopee"
	updated, err := env.service.UpdateSettings(ctx, env.operator, target.ID, UpdateSettingsCommand{
		AutoSyncEnabled:     &off,
		SyncIntervalMinutes: &interval,
		WebhookURL:          &hook,
	})
	require.NoError(t, err)
	assert.False(t, updated.AutoSyncEnabled)
	assert.Equal(t, 15, updated.SyncIntervalMinutes)
	require.NotNil(t, updated.WebhookURL)
	assert.Equal(t, hook, *updated.WebhookURL)

	zero := 0
	_, err = env.service.UpdateSettings(ctx, env.operator, target.ID, UpdateSettingsCommand{SyncIntervalMinutes: &zero})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	relative := "/hooks"
	_, err = env.service.UpdateSettings(ctx, env.operator, target.ID, UpdateSettingsCommand{WebhookURL: &relative})
	assert.ErrorIs(t, err, integration.ErrInvalidWebhookURL)

	cleared := ""
	updated, err = env.service.UpdateSettings(ctx, env.operator, target.ID, UpdateSettingsCommand{WebhookURL: &cleared})
	require.NoError(t, err)
	assert.Nil(t, updated.WebhookURL)
	assert.Equal(t, 15, updated.SyncIntervalMinutes, "unset fields are kept")
}

func TestIntegrationService_PauseResume(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	target := env.connectShopee(t)

	paused, err := env.service.Pause(ctx, env.operator, target.ID)
	require.NoError(t, err)
	assert.Equal(t, integration.StatusInactive, paused.Status)

	due, err := env.scheduler.DueIntegrations(ctx, paused.UpdatedAt)
	require.NoError(t, err)
	assert.Empty(t, due, "paused integrations are never due")

	_, err = env.service.Pause(ctx, env.operator, target.ID)
	assert.NoError(t, err, "pausing twice is a no-op")

	resumed, err := env.service.Resume(ctx, env.operator, target.ID)
	require.NoError(t, err)
	assert.Equal(t, integration.StatusActive, resumed.Status)
	env.shopee.AssertNumberOfCalls(t, "ValidateCredentials", 2)

	_, err = env.service.Resume(ctx, env.operator, target.ID)
	assert.ErrorIs(t, err, integration.ErrInvalidStatusChange)
}

func TestIntegrationService_ResumeWithRejectedCredentials(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.enable(t, env.tenantID, slugShopee)
	env.shopee.On("ValidateCredentials", mockAny, mockAny).
		Return(&integration.AccountInfo{ExternalAccountID: "shop-1"}, nil).Once()
	target, err := env.negotiator.ConnectWithAPIKey(ctx, env.operator, ConnectAPIKeyCommand{
		ChannelSlug: slugShopee,
		Fields:      shopeeFields(),
	})
	require.NoError(t, err)
	_, err = env.service.Pause(ctx, env.operator, target.ID)
	require.NoError(t, err)

	env.shopee.On("ValidateCredentials", mockAny, mockAny).Return(nil, integration.ErrChannelAuthFailed).Once()
	_, err = env.service.Resume(ctx, env.operator, target.ID)
	assert.ErrorIs(t, err, integration.ErrCredentialValidationFailed)
	assert.Equal(t, integration.StatusInactive, env.reload(t, target.ID).Status)
}

func TestIntegrationService_Delete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	target := env.connectShopee(t)

	require.NoError(t, env.service.Delete(ctx, env.operator, target.ID))

	_, err := env.service.Get(ctx, env.operator, target.ID)
	assert.ErrorIs(t, err, integration.ErrIntegrationNotFound)
	assert.Zero(t, env.vault.size())
	assert.Contains(t, env.vault.revoked, target.CredentialRef)

	t.Run("reconnect after delete creates a fresh integration", func(t *testing.T) {
		again, err := env.negotiator.ConnectWithAPIKey(ctx, env.operator, ConnectAPIKeyCommand{
			ChannelSlug: slugShopee,
			Fields:      shopeeFields(),
		})
		require.NoError(t, err)
		assert.NotEqual(t, target.ID, again.ID)
	})
}

func TestIntegrationService_MutationDuringSync(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	target := env.connectShopee(t)

	release, acquired, err := env.locks.TryAcquire(ctx, target.ID)
	require.NoError(t, err)
	require.True(t, acquired)
	defer release()

	_, err = env.service.Pause(ctx, env.operator, target.ID)
	assert.ErrorIs(t, err, integration.ErrSyncInProgress)
}
