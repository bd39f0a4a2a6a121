package models

import (
	"time"

	"github.com/erp/marketplace/internal/domain/integration"
	"gorm.io/datatypes"
)

// MarketplaceChannelModel is the persistence model for the platform-wide channel catalog.
type MarketplaceChannelModel struct {
	Slug                 string                      `gorm:"type:varchar(64);primary_key"`
	DisplayName          string                      `gorm:"type:varchar(100);not null"`
	AuthType             integration.AuthType        `gorm:"type:varchar(20);not null"`
	LifecycleStatus      integration.LifecycleStatus `gorm:"type:varchar(20);not null;index:idx_marketplace_channels_lifecycle"`
	RequiredPlanFeatures datatypes.JSONSlice[string] `gorm:"not null"`
	CredentialFields     datatypes.JSONSlice[string] `gorm:"not null"`
	Description          string                      `gorm:"type:text"`
	CreatedAt            time.Time                   `gorm:"not null"`
	UpdatedAt            time.Time                   `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MarketplaceChannelModel) TableName() string {
	return "marketplace_channels"
}

// ToDomain converts the persistence model to a domain MarketplaceChannel.
func (m *MarketplaceChannelModel) ToDomain() *integration.MarketplaceChannel {
	return &integration.MarketplaceChannel{
		Slug:                 m.Slug,
		DisplayName:          m.DisplayName,
		AuthType:             m.AuthType,
		LifecycleStatus:      m.LifecycleStatus,
		RequiredPlanFeatures: []string(m.RequiredPlanFeatures),
		Description:          m.Description,
		CredentialFields:     []string(m.CredentialFields),
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain MarketplaceChannel.
func (m *MarketplaceChannelModel) FromDomain(c *integration.MarketplaceChannel) {
	m.Slug = c.Slug
	m.DisplayName = c.DisplayName
	m.AuthType = c.AuthType
	m.LifecycleStatus = c.LifecycleStatus
	m.RequiredPlanFeatures = nonNil(c.RequiredPlanFeatures)
	m.CredentialFields = nonNil(c.CredentialFields)
	m.Description = c.Description
	m.CreatedAt = c.CreatedAt
	m.UpdatedAt = c.UpdatedAt
}

// MarketplaceChannelModelFromDomain creates a new persistence model from a domain channel.
func MarketplaceChannelModelFromDomain(c *integration.MarketplaceChannel) *MarketplaceChannelModel {
	m := &MarketplaceChannelModel{}
	m.FromDomain(c)
	return m
}

// nonNil keeps JSON columns as [] rather than null
func nonNil(values []string) datatypes.JSONSlice[string] {
	if values == nil {
		return datatypes.JSONSlice[string]{}
	}
	return datatypes.JSONSlice[string](values)
}
