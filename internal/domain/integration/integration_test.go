package integration

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChannel(t *testing.T, slug string, authType AuthType) *MarketplaceChannel {
	t.Helper()
	ch, err := NewMarketplaceChannel(slug, slug, authType, time.Now())
	require.NoError(t, err)
	return ch
}

func newActiveIntegration(t *testing.T, now time.Time) *Integration {
	t.Helper()
	i, err := NewIntegration(uuid.New(), newTestChannel(t, "shopee", AuthTypeAPIKey), "ref-1", "shop-1", uuid.New(), now)
	require.NoError(t, err)
	require.NoError(t, i.Activate(now))
	return i
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func TestNewIntegration(t *testing.T) {
	now := time.Now()
	ch := newTestChannel(t, "shopee", AuthTypeAPIKey)

	t.Run("starts pending with defaults", func(t *testing.T) {
		i, err := NewIntegration(uuid.New(), ch, "ref", "shop-9", uuid.New(), now)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, i.Status)
		assert.Equal(t, WebhookNone, i.WebhookStatus)
		assert.Equal(t, AuthTypeAPIKey, i.AuthType)
		assert.True(t, i.AutoSyncEnabled)
		assert.Equal(t, DefaultSyncIntervalMinutes, i.SyncIntervalMinutes)
		assert.NotEqual(t, uuid.Nil, i.ID)
		assert.Nil(t, i.LastSync)
	})

	t.Run("requires tenant", func(t *testing.T) {
		_, err := NewIntegration(uuid.Nil, ch, "ref", "", uuid.New(), now)
		assert.ErrorIs(t, err, ErrInvalidTenantID)
	})

	t.Run("requires credential ref", func(t *testing.T) {
		_, err := NewIntegration(uuid.New(), ch, "", "", uuid.New(), now)
		assert.ErrorIs(t, err, ErrMissingCredentialRef)
	})
}

// ---------------------------------------------------------------------------
// Status machine
// ---------------------------------------------------------------------------

func TestIntegration_StatusTransitions(t *testing.T) {
	now := time.Now()

	t.Run("active to error and back on successful retry", func(t *testing.T) {
		i := newActiveIntegration(t, now)
		i.RecordSyncFailure("channel timeout", true, now)
		assert.Equal(t, StatusError, i.Status)
		assert.Equal(t, "channel timeout", i.LastError)
		assert.Equal(t, 1, i.ConsecutiveFailures)

		i.RecordSyncSuccess(now.Add(time.Minute))
		assert.Equal(t, StatusActive, i.Status)
		assert.Empty(t, i.LastError)
		assert.Zero(t, i.ConsecutiveFailures)
		require.NotNil(t, i.LastSync)
	})

	t.Run("pause and resume", func(t *testing.T) {
		i := newActiveIntegration(t, now)
		require.NoError(t, i.Pause(now))
		assert.Equal(t, StatusInactive, i.Status)
		require.NoError(t, i.Pause(now), "pausing twice is a no-op")
		require.NoError(t, i.Resume(now))
		assert.Equal(t, StatusActive, i.Status)
	})

	t.Run("resume requires inactive", func(t *testing.T) {
		i := newActiveIntegration(t, now)
		assert.ErrorIs(t, i.Resume(now), ErrInvalidStatusChange)
	})

	t.Run("pending cannot be paused", func(t *testing.T) {
		i, err := NewIntegration(uuid.New(), newTestChannel(t, "bling", AuthTypeOAuth2), "r", "", uuid.New(), now)
		require.NoError(t, err)
		assert.ErrorIs(t, i.Pause(now), ErrInvalidStatusChange)
	})

	t.Run("sync outcome does not undo a pause", func(t *testing.T) {
		i := newActiveIntegration(t, now)
		require.NoError(t, i.Pause(now))
		i.RecordSyncFailure("boom", false, now)
		assert.Equal(t, StatusInactive, i.Status)
		i.RecordSyncSuccess(now)
		assert.Equal(t, StatusInactive, i.Status)
	})

	t.Run("deleted integration rejects mutation", func(t *testing.T) {
		i := newActiveIntegration(t, now)
		require.NoError(t, i.SoftDelete(now))
		assert.True(t, i.IsDeleted())
		assert.False(t, i.CanSync())
		assert.False(t, i.AutoSyncEnabled)
		assert.ErrorIs(t, i.Activate(now), ErrIntegrationDeleted)
		assert.ErrorIs(t, i.SoftDelete(now), ErrIntegrationDeleted)
	})
}

func TestIntegration_Rebind(t *testing.T) {
	now := time.Now()
	i := newActiveIntegration(t, now)

	prev, err := i.Rebind("ref-2", "", now)
	require.NoError(t, err)
	assert.Equal(t, CredentialRef("ref-1"), prev)
	assert.Equal(t, CredentialRef("ref-2"), i.CredentialRef)
	assert.Equal(t, "shop-1", i.ExternalAccountID)

	_, err = i.Rebind("", "", now)
	assert.ErrorIs(t, err, ErrMissingCredentialRef)
}

// ---------------------------------------------------------------------------
// Webhook state
// ---------------------------------------------------------------------------

func TestIntegration_WebhookState(t *testing.T) {
	now := time.Now()
	i := newActiveIntegration(t, now)

	i.RecordWebhook(now)
	assert.Equal(t, WebhookActive, i.WebhookStatus)
	require.NotNil(t, i.LastWebhookReceived)

	assert.True(t, i.MarkWebhookFailing(now))
	assert.False(t, i.MarkWebhookFailing(now))

	i.RecordWebhook(now.Add(time.Minute))
	assert.Equal(t, WebhookFailing, i.WebhookStatus, "valid delivery does not clear failing")

	i.ResetWebhookStatus(now.Add(2 * time.Minute))
	assert.Equal(t, WebhookActive, i.WebhookStatus)
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

func TestIntegration_UpdateSettings(t *testing.T) {
	now := time.Now()
	hook := "https://erp.example.com/hooks/shopee"
	bad := "not a url"
	empty := ""

	tests := []struct {
		name     string
		interval int
		url      *string
		wantErr  error
	}{
		{"valid", 15, &hook, nil},
		{"clears url", 15, &empty, nil},
		{"zero interval", 0, nil, ErrInvalidSyncInterval},
		{"bad url", 10, &bad, ErrInvalidWebhookURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i := newActiveIntegration(t, now)
			err := i.UpdateSettings(false, tt.interval, tt.url, now)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.False(t, i.AutoSyncEnabled)
			assert.Equal(t, tt.interval, i.SyncIntervalMinutes)
			if tt.url != nil && *tt.url == "" {
				assert.Nil(t, i.WebhookURL)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// SyncLog
// ---------------------------------------------------------------------------

func TestNewSyncLog(t *testing.T) {
	now := time.Now()
	i := newActiveIntegration(t, now)

	t.Run("success entry", func(t *testing.T) {
		log, err := NewSyncLog(i, DirectionImport, TriggerManual, SyncOutcome{
			EventType:        "product_import",
			RecordsProcessed: 42,
			Duration:         1500 * time.Millisecond,
		}, now)
		require.NoError(t, err)
		assert.Equal(t, LogSuccess, log.Status)
		assert.Equal(t, i.ID, log.IntegrationID)
		assert.Equal(t, i.TenantID, log.TenantID)
		assert.Equal(t, 42, log.RecordsProcessed)
		require.NotNil(t, log.DurationMs)
		assert.Equal(t, int64(1500), *log.DurationMs)
		assert.Nil(t, log.ErrorMessage)
	})

	t.Run("error entry carries message", func(t *testing.T) {
		log, err := NewSyncLog(i, DirectionExport, TriggerScheduled, SyncOutcome{Err: ErrSyncTimeout}, now)
		require.NoError(t, err)
		assert.Equal(t, LogError, log.Status)
		assert.Equal(t, "catalog_export", log.EventType)
		require.NotNil(t, log.ErrorMessage)
		assert.Contains(t, *log.ErrorMessage, "timed out")
	})

	t.Run("rejects negative counts", func(t *testing.T) {
		_, err := NewSyncLog(i, DirectionImport, TriggerManual, SyncOutcome{RecordsProcessed: -1}, now)
		assert.ErrorIs(t, err, ErrInvalidRecordCount)
	})

	t.Run("rejects unknown direction", func(t *testing.T) {
		_, err := NewSyncLog(i, SyncDirection("both"), TriggerManual, SyncOutcome{}, now)
		assert.ErrorIs(t, err, ErrInvalidDirection)
	})
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(ErrVaultUnavailable))
	assert.True(t, IsTransient(ErrSyncTimeout))
	assert.False(t, IsTransient(ErrRefNotFound))
	assert.False(t, IsTransient(ErrChannelAuthFailed))
}

// ---------------------------------------------------------------------------
// OAuthState
// ---------------------------------------------------------------------------

func TestNewOAuthState(t *testing.T) {
	now := time.Now()
	s, err := NewOAuthState(uuid.New(), "mercado_livre", uuid.New(), 0, now)
	require.NoError(t, err)
	assert.Len(t, s.Token, 43)
	assert.Equal(t, now.Add(DefaultStateTTL), s.ExpiresAt)
	assert.False(t, s.IsExpired(now.Add(9*time.Minute)))
	assert.True(t, s.IsExpired(now.Add(10*time.Minute)))

	other, err := NewOAuthState(s.TenantID, "mercado_livre", uuid.New(), 0, now)
	require.NoError(t, err)
	assert.NotEqual(t, s.Token, other.Token)
}
