package models

import (
	"time"

	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/erp/marketplace/internal/domain/shared"
	"github.com/google/uuid"
)

// IntegrationModel is the persistence model for a tenant's connection to a channel.
// Only the opaque credential reference is stored here, never the secret itself.
type IntegrationModel struct {
	BaseModel
	TenantID            uuid.UUID                     `gorm:"type:uuid;not null;index:idx_integrations_tenant_id;uniqueIndex:uq_integrations_tenant_channel_live,priority:1,where:deleted_at IS NULL"`
	ChannelSlug         string                        `gorm:"type:varchar(64);not null;uniqueIndex:uq_integrations_tenant_channel_live,priority:2,where:deleted_at IS NULL;uniqueIndex:uq_integrations_channel_account_live,priority:1,where:deleted_at IS NULL AND external_account_id <> ''"`
	AuthType            integration.AuthType          `gorm:"type:varchar(20);not null"`
	CredentialRef       string                        `gorm:"type:varchar(64);not null"`
	ExternalAccountID   string                        `gorm:"type:varchar(100);index:idx_integrations_external_account;uniqueIndex:uq_integrations_channel_account_live,priority:2,where:deleted_at IS NULL AND external_account_id <> ''"`
	Status              integration.IntegrationStatus `gorm:"type:varchar(20);not null;index:idx_integrations_status"`
	AutoSyncEnabled     bool                          `gorm:"not null"`
	SyncIntervalMinutes int                           `gorm:"not null"`
	WebhookURL          *string                       `gorm:"type:varchar(2048)"`
	WebhookStatus       integration.WebhookStatus     `gorm:"type:varchar(20);not null"`
	LastSync            *time.Time                    `gorm:"index:idx_integrations_last_sync"`
	LastWebhookReceived *time.Time
	LastError           string     `gorm:"type:text"`
	LastErrorTransient  bool       `gorm:"not null"`
	ConsecutiveFailures int        `gorm:"not null"`
	LastAttemptAt       *time.Time
	CreatedBy           uuid.UUID  `gorm:"type:uuid"`
	DeletedAt           *time.Time `gorm:"index:idx_integrations_deleted_at"`
}

// WebhookOwnedColumns are written only through WebhookStateColumns, never by a
// full-row save.
var WebhookOwnedColumns = []string{"webhook_status", "last_webhook_received"}

// TableName returns the table name for GORM
func (IntegrationModel) TableName() string {
	return "integrations"
}

// ToDomain converts the persistence model to a domain Integration.
func (m *IntegrationModel) ToDomain() *integration.Integration {
	return &integration.Integration{
		TenantEntity:        shared.TenantEntity{BaseEntity: m.BaseModel.ToDomain(), TenantID: m.TenantID},
		ChannelSlug:         m.ChannelSlug,
		AuthType:            m.AuthType,
		CredentialRef:       integration.CredentialRef(m.CredentialRef),
		ExternalAccountID:   m.ExternalAccountID,
		Status:              m.Status,
		AutoSyncEnabled:     m.AutoSyncEnabled,
		SyncIntervalMinutes: m.SyncIntervalMinutes,
		WebhookURL:          m.WebhookURL,
		WebhookStatus:       m.WebhookStatus,
		LastSync:            m.LastSync,
		LastWebhookReceived: m.LastWebhookReceived,
		LastError:           m.LastError,
		LastErrorTransient:  m.LastErrorTransient,
		ConsecutiveFailures: m.ConsecutiveFailures,
		LastAttemptAt:       m.LastAttemptAt,
		CreatedBy:           m.CreatedBy,
		DeletedAt:           m.DeletedAt,
	}
}

// FromDomain populates the persistence model from a domain Integration.
func (m *IntegrationModel) FromDomain(i *integration.Integration) {
	m.FromDomainBaseEntity(i.BaseEntity)
	m.TenantID = i.TenantID
	m.ChannelSlug = i.ChannelSlug
	m.AuthType = i.AuthType
	m.CredentialRef = i.CredentialRef.String()
	m.ExternalAccountID = i.ExternalAccountID
	m.Status = i.Status
	m.AutoSyncEnabled = i.AutoSyncEnabled
	m.SyncIntervalMinutes = i.SyncIntervalMinutes
	m.WebhookURL = i.WebhookURL
	m.WebhookStatus = i.WebhookStatus
	m.LastSync = i.LastSync
	m.LastWebhookReceived = i.LastWebhookReceived
	m.LastError = i.LastError
	m.LastErrorTransient = i.LastErrorTransient
	m.ConsecutiveFailures = i.ConsecutiveFailures
	m.LastAttemptAt = i.LastAttemptAt
	m.CreatedBy = i.CreatedBy
	m.DeletedAt = i.DeletedAt
}

// IntegrationModelFromDomain creates a new persistence model from a domain Integration.
func IntegrationModelFromDomain(i *integration.Integration) *IntegrationModel {
	m := &IntegrationModel{}
	m.FromDomain(i)
	return m
}

// SyncStateColumns returns the columns owned by the sync executor.
// Webhook columns are excluded so concurrent webhook receipts are not overwritten.
func (m *IntegrationModel) SyncStateColumns() map[string]any {
	return map[string]any{
		"status":               m.Status,
		"last_sync":            m.LastSync,
		"last_error":           m.LastError,
		"last_error_transient": m.LastErrorTransient,
		"consecutive_failures": m.ConsecutiveFailures,
		"last_attempt_at":      m.LastAttemptAt,
		"updated_at":           m.UpdatedAt,
	}
}

// WebhookStateColumns returns the columns owned by the webhook ingestor.
func (m *IntegrationModel) WebhookStateColumns() map[string]any {
	return map[string]any{
		"webhook_status":        m.WebhookStatus,
		"last_webhook_received": m.LastWebhookReceived,
		"updated_at":            m.UpdatedAt,
	}
}
