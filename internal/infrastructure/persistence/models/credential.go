package models

import (
	"time"

	"github.com/google/uuid"
)

// IntegrationCredentialModel holds one encrypted credential payload.
// The row ID is the opaque reference handed out by the vault.
type IntegrationCredentialModel struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key"`
	TenantID    uuid.UUID  `gorm:"type:uuid;not null;index:idx_integration_credentials_tenant"`
	ChannelSlug string     `gorm:"type:varchar(64);not null"`
	Ciphertext  []byte     `gorm:"not null"`
	Nonce       []byte     `gorm:"not null"`
	KeyVersion  int        `gorm:"not null"`
	RevokedAt   *time.Time `gorm:"index:idx_integration_credentials_revoked_at"`
	CreatedAt   time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (IntegrationCredentialModel) TableName() string {
	return "integration_credentials"
}

// IsRevoked reports whether the credential can no longer be read
func (m *IntegrationCredentialModel) IsRevoked() bool {
	return m.RevokedAt != nil
}
