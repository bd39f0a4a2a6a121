package integration

import (
	"errors"

	"github.com/erp/marketplace/internal/domain/shared"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	// Lookup errors
	ErrChannelNotFound     = errors.New("integration: channel not found")
	ErrIntegrationNotFound = errors.New("integration: integration not found")
	ErrEnablementNotFound  = errors.New("integration: channel enablement not found")

	// Validation errors
	ErrInvalidTenantID       = errors.New("integration: invalid tenant ID")
	ErrInvalidChannelSlug    = errors.New("integration: invalid channel slug")
	ErrInvalidAuthType       = errors.New("integration: invalid auth type")
	ErrInvalidLifecycle      = errors.New("integration: invalid lifecycle status")
	ErrInvalidSyncInterval   = errors.New("integration: sync interval must be at least 1 minute")
	ErrInvalidWebhookURL     = errors.New("integration: invalid webhook URL")
	ErrInvalidDirection      = errors.New("integration: invalid sync direction")
	ErrInvalidTrigger        = errors.New("integration: invalid sync trigger")
	ErrInvalidRecordCount    = errors.New("integration: records processed cannot be negative")
	ErrInvalidDuration       = errors.New("integration: duration cannot be negative")
	ErrMissingCredentialRef  = errors.New("integration: credential reference is required")
	ErrInvalidStatusChange   = errors.New("integration: invalid status transition")
	ErrIntegrationDeleted    = errors.New("integration: integration has been deleted")
	ErrMissingEventType      = errors.New("integration: event type is required")
	ErrAuthTypeMismatch      = errors.New("integration: channel does not support this auth strategy")
	ErrChannelAdapterMissing = errors.New("integration: no connector registered for channel")
	ErrNotSyncable           = errors.New("integration: integration is not in a syncable state")
	ErrSyncNotDue            = errors.New("integration: integration is not due for sync")

	// Vault errors
	ErrVaultUnavailable = errors.New("integration: credential vault unavailable")
	ErrRefNotFound      = errors.New("integration: credential reference not found")

	// Connector errors
	ErrChannelRequestFailed   = errors.New("integration: channel request failed")
	ErrChannelAuthFailed      = errors.New("integration: channel authentication failed")
	ErrChannelRateLimited     = errors.New("integration: channel rate limited")
	ErrChannelInvalidResponse = errors.New("integration: invalid channel response")
	ErrSyncTimeout            = errors.New("integration: sync timed out")
)

// ---------------------------------------------------------------------------
// Typed errors surfaced to callers
// ---------------------------------------------------------------------------

var (
	// ErrChannelNotAvailable is returned when the channel is inactive, in maintenance,
	// not enabled for the tenant, or not covered by the tenant's plan.
	ErrChannelNotAvailable = shared.NewDomainError("CHANNEL_NOT_AVAILABLE", "Channel is not available for this tenant")
	// ErrInvalidState is returned for expired, reused, unknown or foreign OAuth state tokens.
	ErrInvalidState = shared.NewDomainError("INVALID_STATE", "Authorization state is invalid or expired")
	// ErrIntegrationExists is returned when a tenant already has a live integration for
	// the channel, or the remote account is bound to another live integration.
	ErrIntegrationExists = shared.ErrConflict.WithMessage("An integration for this channel or account already exists")
	// ErrSyncInProgress is returned when a sync for the same integration is already running.
	ErrSyncInProgress = shared.NewDomainError("SYNC_IN_PROGRESS", "A sync is already running for this integration")
	// ErrForbidden is returned by permission checks.
	ErrForbidden = shared.NewDomainError("FORBIDDEN", "Not allowed to perform this action")
	// ErrRejected is returned for webhooks that fail provenance validation.
	ErrRejected = shared.NewDomainError("WEBHOOK_REJECTED", "Webhook rejected")
	// ErrMissingCredentialFields is returned when an API-key connect omits required fields.
	ErrMissingCredentialFields = shared.NewDomainError("MISSING_CREDENTIAL_FIELDS", "Required credential fields are missing")
	// ErrCredentialValidationFailed is returned when the channel refuses the supplied credentials.
	ErrCredentialValidationFailed = shared.NewDomainError("CREDENTIAL_VALIDATION_FAILED", "Channel rejected the supplied credentials")
)

// IsTransient reports whether err is eligible for an automatic retry on the next pass.
func IsTransient(err error) bool {
	switch {
	case errors.Is(err, ErrVaultUnavailable),
		errors.Is(err, ErrSyncTimeout),
		errors.Is(err, ErrChannelRateLimited),
		errors.Is(err, ErrChannelRequestFailed):
		return true
	default:
		return false
	}
}
