package integration

import (
	"time"

	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

// ConnectAPIKeyCommand carries the tenant-supplied credential fields
type ConnectAPIKeyCommand struct {
	ChannelSlug string            `json:"channel_slug" validate:"required,max=64"`
	Fields      map[string]string `json:"fields" validate:"required,min=1,dive,keys,required,max=64,endkeys,max=4096"`
}

// CompleteAuthorizationCommand carries the OAuth2 callback parameters
type CompleteAuthorizationCommand struct {
	State         string `json:"state" validate:"required"`
	Code          string `json:"code"`
	ProviderError string `json:"error,omitempty"`
}

// UpdateSettingsCommand changes tenant-editable sync settings
type UpdateSettingsCommand struct {
	AutoSyncEnabled     *bool   `json:"auto_sync_enabled,omitempty"`
	SyncIntervalMinutes *int    `json:"sync_interval_minutes,omitempty" validate:"omitempty,min=1,max=10080"`
	WebhookURL          *string `json:"webhook_url,omitempty" validate:"omitempty,max=2048"`
}

// ---------------------------------------------------------------------------
// Responses
// ---------------------------------------------------------------------------

// AuthorizationStart is returned when an OAuth2 flow begins
type AuthorizationStart struct {
	ChannelSlug      string    `json:"channel_slug"`
	AuthorizationURL string    `json:"authorization_url"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// ChannelResponse represents a catalog entry in API responses
type ChannelResponse struct {
	Slug                 string                      `json:"slug"`
	DisplayName          string                      `json:"display_name"`
	AuthType             integration.AuthType        `json:"auth_type"`
	LifecycleStatus      integration.LifecycleStatus `json:"lifecycle_status"`
	RequiredPlanFeatures []string                    `json:"required_plan_features"`
	CredentialFields     []string                    `json:"credential_fields,omitempty"`
	Description          string                      `json:"description,omitempty"`
	UpdatedAt            time.Time                   `json:"updated_at"`
}

// ToChannelResponse converts a domain channel to its API form
func ToChannelResponse(c *integration.MarketplaceChannel) ChannelResponse {
	features := c.RequiredPlanFeatures
	if features == nil {
		features = []string{}
	}
	return ChannelResponse{
		Slug:                 c.Slug,
		DisplayName:          c.DisplayName,
		AuthType:             c.AuthType,
		LifecycleStatus:      c.LifecycleStatus,
		RequiredPlanFeatures: features,
		CredentialFields:     c.CredentialFields,
		Description:          c.Description,
		UpdatedAt:            c.UpdatedAt,
	}
}

// EnablementResponse represents a channel enablement in API responses
type EnablementResponse struct {
	TenantID    uuid.UUID `json:"tenant_id"`
	ChannelSlug string    `json:"channel_slug"`
	IsEnabled   bool      `json:"is_enabled"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ToEnablementResponse converts a domain enablement to its API form
func ToEnablementResponse(e *integration.ChannelEnablement) EnablementResponse {
	return EnablementResponse{
		TenantID:    e.TenantID,
		ChannelSlug: e.ChannelSlug,
		IsEnabled:   e.IsEnabled,
		UpdatedAt:   e.UpdatedAt,
	}
}

// IntegrationResponse represents an integration in API responses.
// The credential reference is deliberately absent.
type IntegrationResponse struct {
	ID                  uuid.UUID                     `json:"id"`
	TenantID            uuid.UUID                     `json:"tenant_id"`
	ChannelSlug         string                        `json:"channel_slug"`
	AuthType            integration.AuthType          `json:"auth_type"`
	ExternalAccountID   string                        `json:"external_account_id,omitempty"`
	Status              integration.IntegrationStatus `json:"status"`
	AutoSyncEnabled     bool                          `json:"auto_sync_enabled"`
	SyncIntervalMinutes int                           `json:"sync_interval_minutes"`
	WebhookURL          *string                       `json:"webhook_url,omitempty"`
	WebhookStatus       integration.WebhookStatus     `json:"webhook_status"`
	LastSync            *time.Time                    `json:"last_sync,omitempty"`
	LastWebhookReceived *time.Time                    `json:"last_webhook_received,omitempty"`
	ErrorMessage        string                        `json:"error_message,omitempty"`
	CreatedAt           time.Time                     `json:"created_at"`
	UpdatedAt           time.Time                     `json:"updated_at"`
}

// ToIntegrationResponse converts a domain integration to its API form
func ToIntegrationResponse(i *integration.Integration) IntegrationResponse {
	resp := IntegrationResponse{
		ID:                  i.ID,
		TenantID:            i.TenantID,
		ChannelSlug:         i.ChannelSlug,
		AuthType:            i.AuthType,
		ExternalAccountID:   i.ExternalAccountID,
		Status:              i.Status,
		AutoSyncEnabled:     i.AutoSyncEnabled,
		SyncIntervalMinutes: i.SyncIntervalMinutes,
		WebhookURL:          i.WebhookURL,
		WebhookStatus:       i.WebhookStatus,
		LastSync:            i.LastSync,
		LastWebhookReceived: i.LastWebhookReceived,
		CreatedAt:           i.CreatedAt,
		UpdatedAt:           i.UpdatedAt,
	}
	if i.Status == integration.StatusError {
		resp.ErrorMessage = i.LastError
	}
	return resp
}

// SyncLogResponse represents a sync log entry in API responses
type SyncLogResponse struct {
	ID               uuid.UUID                 `json:"id"`
	IntegrationID    uuid.UUID                 `json:"integration_id"`
	EventType        string                    `json:"event_type"`
	Direction        integration.SyncDirection `json:"direction"`
	Status           integration.SyncLogStatus `json:"status"`
	Trigger          integration.SyncTrigger   `json:"trigger"`
	RecordsProcessed int                       `json:"records_processed"`
	DurationMs       *int64                    `json:"duration_ms,omitempty"`
	ErrorMessage     *string                   `json:"error_message,omitempty"`
	CreatedAt        time.Time                 `json:"created_at"`
}

// ToSyncLogResponse converts a domain log entry to its API form
func ToSyncLogResponse(l *integration.SyncLog) SyncLogResponse {
	return SyncLogResponse{
		ID:               l.ID,
		IntegrationID:    l.IntegrationID,
		EventType:        l.EventType,
		Direction:        l.Direction,
		Status:           l.Status,
		Trigger:          l.Trigger,
		RecordsProcessed: l.RecordsProcessed,
		DurationMs:       l.DurationMs,
		ErrorMessage:     l.ErrorMessage,
		CreatedAt:        l.CreatedAt,
	}
}

// WebhookAck is returned to the channel for an accepted delivery
type WebhookAck struct {
	IntegrationID uuid.UUID `json:"integration_id"`
	SyncEnqueued  bool      `json:"sync_enqueued"`
}

// Stats is the tenant-facing summary computed by StatsAggregator
type Stats struct {
	ActiveChannels        int                                     `json:"active_channels"`
	EnabledChannels       int                                     `json:"enabled_channels"`
	ConnectedIntegrations int64                                   `json:"connected_integrations"`
	IntegrationsByStatus  map[integration.IntegrationStatus]int64 `json:"integrations_by_status"`
	RecentSyncs           int64                                   `json:"recent_syncs"`
	RecentFailures        int64                                   `json:"recent_failures"`
	RecentSuccessRate     decimal.Decimal                         `json:"recent_success_rate"`
	WindowHours           int                                     `json:"window_hours"`
}
