package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/erp/marketplace/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormCredentialStore keeps sealed vault payloads in integration_credentials.
// It never sees plaintext.
type GormCredentialStore struct {
	db *gorm.DB
}

// NewGormCredentialStore creates a new GormCredentialStore
func NewGormCredentialStore(db *gorm.DB) *GormCredentialStore {
	return &GormCredentialStore{db: db}
}

// Insert stores a new sealed credential
func (s *GormCredentialStore) Insert(ctx context.Context, cred *models.IntegrationCredentialModel) error {
	return s.db.WithContext(ctx).Create(cred).Error
}

// FindByID returns a credential row, revoked or not
func (s *GormCredentialStore) FindByID(ctx context.Context, id uuid.UUID) (*models.IntegrationCredentialModel, error) {
	var model models.IntegrationCredentialModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrRefNotFound
		}
		return nil, err
	}
	return &model, nil
}

// Revoke marks a credential unreadable and wipes its ciphertext. Revoking twice is a no-op.
func (s *GormCredentialStore) Revoke(ctx context.Context, id uuid.UUID, at time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.IntegrationCredentialModel{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Updates(map[string]any{
			"revoked_at": at,
			"ciphertext": []byte{},
			"nonce":      []byte{},
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).
			Model(&models.IntegrationCredentialModel{}).
			Where("id = ?", id).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return integration.ErrRefNotFound
		}
	}
	return nil
}
