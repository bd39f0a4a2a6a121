package models

import (
	"time"

	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/google/uuid"
)

// SyncLogModel is an append-only audit row for one sync or webhook attempt.
type SyncLogModel struct {
	ID               uuid.UUID                 `gorm:"type:uuid;primary_key"`
	TenantID         uuid.UUID                 `gorm:"type:uuid;not null;index:idx_sync_logs_tenant_created,priority:1"`
	IntegrationID    uuid.UUID                 `gorm:"type:uuid;not null;index:idx_sync_logs_integration_created,priority:1"`
	EventType        string                    `gorm:"type:varchar(100);not null"`
	Direction        integration.SyncDirection `gorm:"type:varchar(10);not null"`
	Status           integration.SyncLogStatus `gorm:"type:varchar(20);not null"`
	Trigger          integration.SyncTrigger   `gorm:"column:sync_trigger;type:varchar(20);not null"`
	RecordsProcessed int                       `gorm:"not null"`
	DurationMs       *int64
	ErrorMessage     *string   `gorm:"type:text"`
	CreatedAt        time.Time `gorm:"not null;index:idx_sync_logs_tenant_created,priority:2;index:idx_sync_logs_integration_created,priority:2"`
}

// TableName returns the table name for GORM
func (SyncLogModel) TableName() string {
	return "sync_logs"
}

// ToDomain converts the persistence model to a domain SyncLog.
func (m *SyncLogModel) ToDomain() *integration.SyncLog {
	return &integration.SyncLog{
		ID:               m.ID,
		TenantID:         m.TenantID,
		IntegrationID:    m.IntegrationID,
		EventType:        m.EventType,
		Direction:        m.Direction,
		Status:           m.Status,
		Trigger:          m.Trigger,
		RecordsProcessed: m.RecordsProcessed,
		DurationMs:       m.DurationMs,
		ErrorMessage:     m.ErrorMessage,
		CreatedAt:        m.CreatedAt,
	}
}

// FromDomain populates the persistence model from a domain SyncLog.
func (m *SyncLogModel) FromDomain(l *integration.SyncLog) {
	m.ID = l.ID
	m.TenantID = l.TenantID
	m.IntegrationID = l.IntegrationID
	m.EventType = l.EventType
	m.Direction = l.Direction
	m.Status = l.Status
	m.Trigger = l.Trigger
	m.RecordsProcessed = l.RecordsProcessed
	m.DurationMs = l.DurationMs
	m.ErrorMessage = l.ErrorMessage
	m.CreatedAt = l.CreatedAt
}
