package persistence

import (
	"testing"
	"time"

	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/erp/marketplace/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupMarketplaceTestDB creates an in-memory SQLite database with the marketplace tables
func setupMarketplaceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(Models()...))
	return db
}

func newTestIntegration(tenantID uuid.UUID, slug, account string, now time.Time) *integration.Integration {
	return &integration.Integration{
		TenantEntity: shared.TenantEntity{
			BaseEntity: shared.BaseEntity{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
			TenantID:   tenantID,
		},
		ChannelSlug:         slug,
		AuthType:            integration.AuthTypeAPIKey,
		CredentialRef:       integration.CredentialRef(uuid.NewString()),
		ExternalAccountID:   account,
		Status:              integration.StatusActive,
		AutoSyncEnabled:     true,
		SyncIntervalMinutes: integration.DefaultSyncIntervalMinutes,
		WebhookStatus:       integration.WebhookNone,
		CreatedBy:           uuid.New(),
	}
}
