package models

import (
	"time"

	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/google/uuid"
)

// ChannelEnablementModel records whether a tenant may use a channel.
// The (tenant_id, channel_slug) pair is the primary key.
type ChannelEnablementModel struct {
	TenantID    uuid.UUID `gorm:"type:uuid;primary_key"`
	ChannelSlug string    `gorm:"type:varchar(64);primary_key"`
	IsEnabled   bool      `gorm:"not null"`
	UpdatedBy   uuid.UUID `gorm:"type:uuid"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ChannelEnablementModel) TableName() string {
	return "channel_enablements"
}

// ToDomain converts the persistence model to a domain ChannelEnablement.
func (m *ChannelEnablementModel) ToDomain() *integration.ChannelEnablement {
	return &integration.ChannelEnablement{
		TenantID:    m.TenantID,
		ChannelSlug: m.ChannelSlug,
		IsEnabled:   m.IsEnabled,
		UpdatedBy:   m.UpdatedBy,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain ChannelEnablement.
func (m *ChannelEnablementModel) FromDomain(e *integration.ChannelEnablement) {
	m.TenantID = e.TenantID
	m.ChannelSlug = e.ChannelSlug
	m.IsEnabled = e.IsEnabled
	m.UpdatedBy = e.UpdatedBy
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
}
