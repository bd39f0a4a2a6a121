package cache

import (
	"context"
	"time"

	"github.com/erp/marketplace/internal/domain/integration"
	gocache "github.com/patrickmn/go-cache"
)

const channelListKey = "channels:all"

// CachedChannelRepository is a read-through cache over the channel catalog.
// Writes go to the underlying repository and flush the cache; other instances
// observe a catalog change after at most one TTL.
type CachedChannelRepository struct {
	next  integration.ChannelRepository
	cache *gocache.Cache
}

// NewCachedChannelRepository wraps next with a TTL cache
func NewCachedChannelRepository(next integration.ChannelRepository, ttl time.Duration) *CachedChannelRepository {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedChannelRepository{
		next:  next,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// List returns the catalog, served from cache when fresh
func (r *CachedChannelRepository) List(ctx context.Context) ([]integration.MarketplaceChannel, error) {
	if cached, ok := r.cache.Get(channelListKey); ok {
		return cloneChannels(cached.([]integration.MarketplaceChannel)), nil
	}
	channels, err := r.next.List(ctx)
	if err != nil {
		return nil, err
	}
	r.cache.SetDefault(channelListKey, cloneChannels(channels))
	return channels, nil
}

// FindBySlug returns one channel, served from cache when fresh
func (r *CachedChannelRepository) FindBySlug(ctx context.Context, slug string) (*integration.MarketplaceChannel, error) {
	key := "channel:" + slug
	if cached, ok := r.cache.Get(key); ok {
		c := cached.(integration.MarketplaceChannel)
		return &c, nil
	}
	channel, err := r.next.FindBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	r.cache.SetDefault(key, *channel)
	return channel, nil
}

// Save writes through and drops every cached entry
func (r *CachedChannelRepository) Save(ctx context.Context, channel *integration.MarketplaceChannel) error {
	if err := r.next.Save(ctx, channel); err != nil {
		return err
	}
	r.cache.Flush()
	return nil
}

func cloneChannels(in []integration.MarketplaceChannel) []integration.MarketplaceChannel {
	out := make([]integration.MarketplaceChannel, len(in))
	copy(out, in)
	return out
}

// Ensure CachedChannelRepository implements the interface
var _ integration.ChannelRepository = (*CachedChannelRepository)(nil)
