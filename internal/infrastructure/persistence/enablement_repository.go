package persistence

import (
	"context"
	"errors"

	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/erp/marketplace/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormEnablementRepository implements integration.EnablementRepository using GORM
type GormEnablementRepository struct {
	db *gorm.DB
}

// NewGormEnablementRepository creates a new GormEnablementRepository
func NewGormEnablementRepository(db *gorm.DB) *GormEnablementRepository {
	return &GormEnablementRepository{db: db}
}

// Find returns the enablement row for a (tenant, channel) pair
func (r *GormEnablementRepository) Find(ctx context.Context, tenantID uuid.UUID, slug string) (*integration.ChannelEnablement, error) {
	var model models.ChannelEnablementModel
	if err := r.db.WithContext(ctx).
		Scopes(forTenant(tenantID)).
		First(&model, "channel_slug = ?", slug).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrEnablementNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// IsEnabled reports whether the tenant may use the channel. A missing row means disabled.
func (r *GormEnablementRepository) IsEnabled(ctx context.Context, tenantID uuid.UUID, slug string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.ChannelEnablementModel{}).
		Scopes(forTenant(tenantID)).
		Where("channel_slug = ? AND is_enabled = ?", slug, true).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListByTenant returns every enablement row for a tenant
func (r *GormEnablementRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]integration.ChannelEnablement, error) {
	var rows []models.ChannelEnablementModel
	if err := r.db.WithContext(ctx).
		Scopes(forTenant(tenantID)).
		Order("channel_slug ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]integration.ChannelEnablement, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// Save upserts the enablement row keyed by (tenant_id, channel_slug)
func (r *GormEnablementRepository) Save(ctx context.Context, enablement *integration.ChannelEnablement) error {
	var model models.ChannelEnablementModel
	model.FromDomain(enablement)
	return r.db.WithContext(ctx).Save(&model).Error
}

// Ensure GormEnablementRepository implements the interface
var _ integration.EnablementRepository = (*GormEnablementRepository)(nil)
