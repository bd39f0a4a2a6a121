package integration

import (
	"context"
	"net/url"
	"time"

	"github.com/erp/marketplace/internal/domain/shared"
	"github.com/google/uuid"
)

// DefaultSyncIntervalMinutes is applied when a new integration is negotiated
const DefaultSyncIntervalMinutes = 60

// ---------------------------------------------------------------------------
// IntegrationStatus
// ---------------------------------------------------------------------------

// IntegrationStatus is the lifecycle state of a tenant's channel connection
type IntegrationStatus string

const (
	StatusPending  IntegrationStatus = "pending"
	StatusActive   IntegrationStatus = "active"
	StatusInactive IntegrationStatus = "inactive"
	StatusError    IntegrationStatus = "error"
)

// IsValid returns true if the status is valid
func (s IntegrationStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusActive, StatusInactive, StatusError:
		return true
	default:
		return false
	}
}

// String returns the string representation of IntegrationStatus
func (s IntegrationStatus) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// WebhookStatus
// ---------------------------------------------------------------------------

// WebhookStatus is the operator-visible health of inbound webhooks
type WebhookStatus string

const (
	WebhookNone    WebhookStatus = "none"
	WebhookActive  WebhookStatus = "active"
	WebhookFailing WebhookStatus = "failing"
)

// IsValid returns true if the webhook status is valid
func (s WebhookStatus) IsValid() bool {
	switch s {
	case WebhookNone, WebhookActive, WebhookFailing:
		return true
	default:
		return false
	}
}

// String returns the string representation of WebhookStatus
func (s WebhookStatus) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// Integration
// ---------------------------------------------------------------------------

// Integration is a tenant's live connection to a marketplace channel.
// It never holds raw secret material, only a CredentialRef into the vault.
type Integration struct {
	shared.TenantEntity
	ChannelSlug         string
	AuthType            AuthType
	CredentialRef       CredentialRef
	ExternalAccountID   string
	Status              IntegrationStatus
	AutoSyncEnabled     bool
	SyncIntervalMinutes int
	WebhookURL          *string
	WebhookStatus       WebhookStatus
	LastSync            *time.Time
	LastWebhookReceived *time.Time
	// LastError mirrors the error message of the most recent failed SyncLog
	LastError string
	// LastErrorTransient marks LastError as eligible for automatic retry
	LastErrorTransient  bool
	ConsecutiveFailures int
	LastAttemptAt       *time.Time
	CreatedBy           uuid.UUID
	DeletedAt           *time.Time
}

// NewIntegration creates a pending integration for a negotiated credential.
// The negotiator activates it once the credential has been validated.
func NewIntegration(tenantID uuid.UUID, channel *MarketplaceChannel, ref CredentialRef, externalAccountID string, createdBy uuid.UUID, now time.Time) (*Integration, error) {
	if tenantID == uuid.Nil {
		return nil, ErrInvalidTenantID
	}
	if channel == nil || channel.Slug == "" {
		return nil, ErrInvalidChannelSlug
	}
	if ref == "" {
		return nil, ErrMissingCredentialRef
	}
	return &Integration{
		TenantEntity:        shared.NewTenantEntity(tenantID, now),
		ChannelSlug:         channel.Slug,
		AuthType:            channel.AuthType,
		CredentialRef:       ref,
		ExternalAccountID:   externalAccountID,
		Status:              StatusPending,
		AutoSyncEnabled:     true,
		SyncIntervalMinutes: DefaultSyncIntervalMinutes,
		WebhookStatus:       WebhookNone,
		CreatedBy:           createdBy,
	}, nil
}

// IsDeleted reports whether the integration has been tombstoned
func (i *Integration) IsDeleted() bool {
	return i.DeletedAt != nil
}

// CanSync reports whether a sync pass may run against the integration
func (i *Integration) CanSync() bool {
	if i.IsDeleted() {
		return false
	}
	return i.Status == StatusActive || i.Status == StatusError
}

// Activate marks the integration active after a successful negotiation
func (i *Integration) Activate(now time.Time) error {
	if i.IsDeleted() {
		return ErrIntegrationDeleted
	}
	i.Status = StatusActive
	i.clearFailure()
	i.Touch(now)
	return nil
}

// Rebind swaps the credential after a re-negotiation and returns the previous ref
func (i *Integration) Rebind(ref CredentialRef, externalAccountID string, now time.Time) (CredentialRef, error) {
	if i.IsDeleted() {
		return "", ErrIntegrationDeleted
	}
	if ref == "" {
		return "", ErrMissingCredentialRef
	}
	previous := i.CredentialRef
	i.CredentialRef = ref
	if externalAccountID != "" {
		i.ExternalAccountID = externalAccountID
	}
	i.Touch(now)
	return previous, nil
}

// Pause moves an active or failing integration to inactive. Pausing twice is a no-op.
func (i *Integration) Pause(now time.Time) error {
	if i.IsDeleted() {
		return ErrIntegrationDeleted
	}
	switch i.Status {
	case StatusInactive:
		return nil
	case StatusActive, StatusError:
		i.Status = StatusInactive
		i.Touch(now)
		return nil
	default:
		return ErrInvalidStatusChange
	}
}

// Resume moves a paused integration back to active.
// Callers must re-validate credentials before calling it.
func (i *Integration) Resume(now time.Time) error {
	if i.IsDeleted() {
		return ErrIntegrationDeleted
	}
	if i.Status != StatusInactive {
		return ErrInvalidStatusChange
	}
	return i.Activate(now)
}

// RecordSyncSuccess stamps last_sync and recovers an errored integration.
// A pause that happened while the pass was running is preserved.
func (i *Integration) RecordSyncSuccess(now time.Time) {
	i.LastSync = &now
	i.LastAttemptAt = &now
	if i.Status == StatusError {
		i.Status = StatusActive
	}
	i.clearFailure()
	i.Touch(now)
}

// RecordSyncFailure stores the failure message and moves the integration to error
func (i *Integration) RecordSyncFailure(message string, transient bool, now time.Time) {
	i.LastAttemptAt = &now
	i.LastError = message
	i.LastErrorTransient = transient
	i.ConsecutiveFailures++
	if i.Status == StatusActive || i.Status == StatusPending {
		i.Status = StatusError
	}
	i.Touch(now)
}

// RecordWebhook stamps a verified delivery. A failing webhook stays failing
// until an operator resets it.
func (i *Integration) RecordWebhook(now time.Time) {
	i.LastWebhookReceived = &now
	if i.WebhookStatus != WebhookFailing {
		i.WebhookStatus = WebhookActive
	}
	i.Touch(now)
}

// MarkWebhookFailing flags repeated signature failures
func (i *Integration) MarkWebhookFailing(now time.Time) bool {
	if i.WebhookStatus == WebhookFailing {
		return false
	}
	i.WebhookStatus = WebhookFailing
	i.Touch(now)
	return true
}

// ResetWebhookStatus is the operator action that clears a failing webhook
func (i *Integration) ResetWebhookStatus(now time.Time) {
	if i.LastWebhookReceived != nil {
		i.WebhookStatus = WebhookActive
	} else {
		i.WebhookStatus = WebhookNone
	}
	i.Touch(now)
}

// UpdateSettings changes the tenant-editable sync settings
func (i *Integration) UpdateSettings(autoSync bool, intervalMinutes int, webhookURL *string, now time.Time) error {
	if i.IsDeleted() {
		return ErrIntegrationDeleted
	}
	if intervalMinutes < 1 {
		return ErrInvalidSyncInterval
	}
	if webhookURL != nil && *webhookURL != "" {
		u, err := url.Parse(*webhookURL)
		if err != nil || !u.IsAbs() || (u.Scheme != "https" && u.Scheme != "http") {
			return ErrInvalidWebhookURL
		}
	}
	if webhookURL != nil && *webhookURL == "" {
		webhookURL = nil
	}
	i.AutoSyncEnabled = autoSync
	i.SyncIntervalMinutes = intervalMinutes
	i.WebhookURL = webhookURL
	i.Touch(now)
	return nil
}

// SoftDelete tombstones the integration so its logs stay attributable
func (i *Integration) SoftDelete(now time.Time) error {
	if i.IsDeleted() {
		return ErrIntegrationDeleted
	}
	i.DeletedAt = &now
	i.Status = StatusInactive
	i.AutoSyncEnabled = false
	i.Touch(now)
	return nil
}

func (i *Integration) clearFailure() {
	i.LastError = ""
	i.LastErrorTransient = false
	i.ConsecutiveFailures = 0
}

// ---------------------------------------------------------------------------
// IntegrationRepository
// ---------------------------------------------------------------------------

// IntegrationRepository persists integrations. Lookups exclude tombstoned rows
// unless stated otherwise.
type IntegrationRepository interface {
	Save(ctx context.Context, integration *Integration) error
	// FindByID is tenant-scoped and returns ErrIntegrationNotFound across tenants
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Integration, error)
	// Get is the internal unscoped lookup used by background paths
	Get(ctx context.Context, id uuid.UUID) (*Integration, error)
	FindByTenantAndChannel(ctx context.Context, tenantID uuid.UUID, slug string) (*Integration, error)
	FindByExternalAccount(ctx context.Context, slug, externalAccountID string) (*Integration, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]Integration, error)
	// ListSyncCandidates returns active or errored integrations with auto sync on
	ListSyncCandidates(ctx context.Context) ([]Integration, error)
	// UpdateSyncState writes only the columns owned by the sync path
	UpdateSyncState(ctx context.Context, integration *Integration) error
	// UpdateWebhookState writes only the columns owned by the webhook path
	UpdateWebhookState(ctx context.Context, integration *Integration) error
	CountByStatus(ctx context.Context, tenantID uuid.UUID) (map[IntegrationStatus]int64, error)
}
