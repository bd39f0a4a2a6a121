package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Sync enums
// ---------------------------------------------------------------------------

// SyncDirection is the data flow of a sync pass
type SyncDirection string

const (
	DirectionImport SyncDirection = "import"
	DirectionExport SyncDirection = "export"
)

// IsValid returns true if the direction is valid
func (d SyncDirection) IsValid() bool {
	return d == DirectionImport || d == DirectionExport
}

// String returns the string representation of SyncDirection
func (d SyncDirection) String() string {
	return string(d)
}

// SyncLogStatus is the outcome recorded in a SyncLog
type SyncLogStatus string

const (
	LogSuccess SyncLogStatus = "success"
	LogError   SyncLogStatus = "error"
	LogPending SyncLogStatus = "pending"
)

// IsValid returns true if the status is valid
func (s SyncLogStatus) IsValid() bool {
	switch s {
	case LogSuccess, LogError, LogPending:
		return true
	default:
		return false
	}
}

// String returns the string representation of SyncLogStatus
func (s SyncLogStatus) String() string {
	return string(s)
}

// SyncTrigger records what started a sync pass
type SyncTrigger string

const (
	TriggerManual    SyncTrigger = "manual"
	TriggerScheduled SyncTrigger = "scheduled"
	TriggerWebhook   SyncTrigger = "webhook"
	TriggerRetry     SyncTrigger = "retry"
)

// IsValid returns true if the trigger is valid
func (t SyncTrigger) IsValid() bool {
	switch t {
	case TriggerManual, TriggerScheduled, TriggerWebhook, TriggerRetry:
		return true
	default:
		return false
	}
}

// String returns the string representation of SyncTrigger
func (t SyncTrigger) String() string {
	return string(t)
}

// ---------------------------------------------------------------------------
// SyncLog
// ---------------------------------------------------------------------------

// SyncLog is an immutable audit record of one sync pass.
// Entries are appended when a pass completes, so CreatedAt reflects completion order.
type SyncLog struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	IntegrationID    uuid.UUID
	EventType        string
	Direction        SyncDirection
	Status           SyncLogStatus
	Trigger          SyncTrigger
	RecordsProcessed int
	DurationMs       *int64
	ErrorMessage     *string
	CreatedAt        time.Time
}

// SyncOutcome carries the measured result of a pass
type SyncOutcome struct {
	EventType        string
	RecordsProcessed int
	Duration         time.Duration
	Err              error
}

// NewSyncLog builds a log entry for the integration from a measured outcome
func NewSyncLog(integration *Integration, direction SyncDirection, trigger SyncTrigger, outcome SyncOutcome, now time.Time) (*SyncLog, error) {
	if !direction.IsValid() {
		return nil, ErrInvalidDirection
	}
	if !trigger.IsValid() {
		return nil, ErrInvalidTrigger
	}
	if outcome.RecordsProcessed < 0 {
		return nil, ErrInvalidRecordCount
	}
	if outcome.Duration < 0 {
		return nil, ErrInvalidDuration
	}
	eventType := outcome.EventType
	if eventType == "" {
		eventType = DefaultEventType(direction)
	}

	log := &SyncLog{
		ID:               uuid.New(),
		TenantID:         integration.TenantID,
		IntegrationID:    integration.ID,
		EventType:        eventType,
		Direction:        direction,
		Status:           LogSuccess,
		Trigger:          trigger,
		RecordsProcessed: outcome.RecordsProcessed,
		CreatedAt:        now,
	}
	ms := outcome.Duration.Milliseconds()
	log.DurationMs = &ms
	if outcome.Err != nil {
		msg := outcome.Err.Error()
		log.Status = LogError
		log.ErrorMessage = &msg
	}
	return log, nil
}

// DefaultEventType names a pass when the connector does not
func DefaultEventType(direction SyncDirection) string {
	if direction == DirectionExport {
		return "catalog_export"
	}
	return "order_import"
}

// ---------------------------------------------------------------------------
// SyncLogRepository
// ---------------------------------------------------------------------------

// SyncLogFilter pages a log listing
type SyncLogFilter struct {
	Status   SyncLogStatus
	Page     int
	PageSize int
}

// SyncLogCounts is an outcome histogram over a time window
type SyncLogCounts struct {
	Success int64
	Error   int64
	Pending int64
}

// Total returns the number of entries counted
func (c SyncLogCounts) Total() int64 {
	return c.Success + c.Error + c.Pending
}

// SyncLogRepository is append-only: there is no update or delete
type SyncLogRepository interface {
	Append(ctx context.Context, log *SyncLog) error
	// ListByIntegration returns entries newest first plus the total count
	ListByIntegration(ctx context.Context, tenantID, integrationID uuid.UUID, filter SyncLogFilter) ([]SyncLog, int64, error)
	CountSince(ctx context.Context, tenantID uuid.UUID, since time.Time) (SyncLogCounts, error)
}
