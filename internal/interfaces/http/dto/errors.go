package dto

import (
	"errors"
	"net/http"

	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/erp/marketplace/internal/domain/shared"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	ErrCodeInternal    = "ERR_INTERNAL"
	ErrCodeUnavailable = "ERR_UNAVAILABLE"
	ErrCodeUpstream    = "ERR_UPSTREAM"
)

// Input error codes
const (
	ErrCodeValidation   = "ERR_VALIDATION"
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON  = "ERR_INVALID_JSON"
	ErrCodeTooLarge     = "ERR_REQUEST_TOO_LARGE"
)

// Authentication error codes
const (
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
	ErrCodeForbidden    = "ERR_FORBIDDEN"
)

// Resource error codes
const (
	ErrCodeNotFound = "ERR_NOT_FOUND"
	ErrCodeConflict = "ERR_CONFLICT"
)

// Marketplace error codes
const (
	ErrCodeChannelNotAvailable        = "ERR_CHANNEL_NOT_AVAILABLE"
	ErrCodeInvalidState               = "ERR_INVALID_STATE"
	ErrCodeSyncInProgress             = "ERR_SYNC_IN_PROGRESS"
	ErrCodeWebhookRejected            = "ERR_WEBHOOK_REJECTED"
	ErrCodeMissingCredentialFields    = "ERR_MISSING_CREDENTIAL_FIELDS"
	ErrCodeCredentialValidationFailed = "ERR_CREDENTIAL_VALIDATION_FAILED"
	ErrCodeRateLimited                = "ERR_RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:    http.StatusInternalServerError,
	ErrCodeUnavailable: http.StatusServiceUnavailable,
	ErrCodeUpstream:    http.StatusBadGateway,

	ErrCodeValidation:   http.StatusBadRequest,
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,
	ErrCodeTooLarge:     http.StatusRequestEntityTooLarge,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,

	ErrCodeNotFound: http.StatusNotFound,
	ErrCodeConflict: http.StatusConflict,

	ErrCodeChannelNotAvailable:        http.StatusUnprocessableEntity,
	ErrCodeInvalidState:               http.StatusBadRequest,
	ErrCodeSyncInProgress:             http.StatusConflict,
	ErrCodeWebhookRejected:            http.StatusUnauthorized,
	ErrCodeMissingCredentialFields:    http.StatusBadRequest,
	ErrCodeCredentialValidationFailed: http.StatusUnprocessableEntity,
	ErrCodeRateLimited:                http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to API error codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":                    ErrCodeNotFound,
	"INVALID_INPUT":                ErrCodeInvalidInput,
	"FORBIDDEN":                    ErrCodeForbidden,
	"INVALID_STATE":                ErrCodeInvalidState,
	"CONFLICT":                     ErrCodeConflict,
	"UNAVAILABLE":                  ErrCodeUnavailable,
	"CHANNEL_NOT_AVAILABLE":        ErrCodeChannelNotAvailable,
	"SYNC_IN_PROGRESS":             ErrCodeSyncInProgress,
	"WEBHOOK_REJECTED":             ErrCodeWebhookRejected,
	"MISSING_CREDENTIAL_FIELDS":    ErrCodeMissingCredentialFields,
	"CREDENTIAL_VALIDATION_FAILED": ErrCodeCredentialValidationFailed,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Unknown codes are returned as-is.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	return code
}

// sentinelCodes maps plain sentinel errors to API codes, checked in order
var sentinelCodes = []struct {
	err     error
	code    string
	message string
}{
	{integration.ErrChannelNotFound, ErrCodeNotFound, "Channel not found"},
	{integration.ErrIntegrationNotFound, ErrCodeNotFound, "Integration not found"},
	{integration.ErrEnablementNotFound, ErrCodeNotFound, "Channel enablement not found"},
	{integration.ErrInvalidTenantID, ErrCodeInvalidInput, "Invalid tenant ID"},
	{integration.ErrInvalidChannelSlug, ErrCodeInvalidInput, "Invalid channel slug"},
	{integration.ErrInvalidLifecycle, ErrCodeInvalidInput, "Invalid lifecycle status"},
	{integration.ErrInvalidSyncInterval, ErrCodeInvalidInput, "Sync interval must be at least 1 minute"},
	{integration.ErrInvalidWebhookURL, ErrCodeInvalidInput, "Invalid webhook URL"},
	{integration.ErrInvalidDirection, ErrCodeInvalidInput, "Invalid sync direction"},
	{integration.ErrAuthTypeMismatch, ErrCodeInvalidInput, "Channel does not support this authorization method"},
	{integration.ErrInvalidStatusChange, ErrCodeInvalidState, "Operation not allowed in current state"},
	{integration.ErrNotSyncable, ErrCodeInvalidState, "Integration is not in a syncable state"},
	{integration.ErrIntegrationDeleted, ErrCodeNotFound, "Integration not found"},
	{integration.ErrVaultUnavailable, ErrCodeUnavailable, "Credential vault unavailable"},
	{integration.ErrSyncTimeout, ErrCodeUpstream, "Channel did not respond in time"},
	{integration.ErrChannelRateLimited, ErrCodeUpstream, "Channel rate limit reached"},
	{integration.ErrChannelRequestFailed, ErrCodeUpstream, "Channel request failed"},
	{integration.ErrChannelAuthFailed, ErrCodeUpstream, "Channel rejected the stored credentials"},
	{integration.ErrChannelInvalidResponse, ErrCodeUpstream, "Channel returned an invalid response"},
	{integration.ErrChannelAdapterMissing, ErrCodeUnavailable, "Channel is not configured"},
}

// ResolveError converts a service error into an API code, status and message.
// Unrecognised errors resolve to a generic internal error.
func ResolveError(err error) (code string, status int, message string) {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code = NormalizeErrorCode(domainErr.Code)
		return code, GetHTTPStatus(code), domainErr.Message
	}
	for _, s := range sentinelCodes {
		if errors.Is(err, s.err) {
			return s.code, GetHTTPStatus(s.code), s.message
		}
	}
	return ErrCodeInternal, http.StatusInternalServerError, "An unexpected error occurred"
}
