package persistence

import (
	"context"
	"errors"

	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/erp/marketplace/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormChannelRepository implements integration.ChannelRepository using GORM
type GormChannelRepository struct {
	db *gorm.DB
}

// NewGormChannelRepository creates a new GormChannelRepository
func NewGormChannelRepository(db *gorm.DB) *GormChannelRepository {
	return &GormChannelRepository{db: db}
}

// List returns every channel in the catalog ordered by slug
func (r *GormChannelRepository) List(ctx context.Context) ([]integration.MarketplaceChannel, error) {
	var channelModels []models.MarketplaceChannelModel
	if err := r.db.WithContext(ctx).Order("slug ASC").Find(&channelModels).Error; err != nil {
		return nil, err
	}
	channels := make([]integration.MarketplaceChannel, len(channelModels))
	for i := range channelModels {
		channels[i] = *channelModels[i].ToDomain()
	}
	return channels, nil
}

// FindBySlug finds a channel by its slug
func (r *GormChannelRepository) FindBySlug(ctx context.Context, slug string) (*integration.MarketplaceChannel, error) {
	var model models.MarketplaceChannelModel
	if err := r.db.WithContext(ctx).First(&model, "slug = ?", slug).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrChannelNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save creates or updates a channel
func (r *GormChannelRepository) Save(ctx context.Context, channel *integration.MarketplaceChannel) error {
	model := models.MarketplaceChannelModelFromDomain(channel)
	return r.db.WithContext(ctx).Save(model).Error
}

// Ensure GormChannelRepository implements the interface
var _ integration.ChannelRepository = (*GormChannelRepository)(nil)
