package channel

import (
	"fmt"
	"sort"

	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/erp/marketplace/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Registry resolves connectors by channel slug
type Registry struct {
	connectors map[string]integration.ChannelConnector
}

var _ integration.ConnectorRegistry = (*Registry)(nil)

// NewRegistry builds one connector per definition, using the endpoint settings
// configured under marketplace.channels
func NewRegistry(defs []Definition, endpoints map[string]config.ChannelEndpointConfig, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{connectors: make(map[string]integration.ChannelConnector, len(defs))}
	for _, def := range defs {
		endpoint := NewEndpoint(def, endpoints[def.Slug])
		switch def.AuthType {
		case integration.AuthTypeOAuth2:
			r.connectors[def.Slug] = NewOAuth2Connector(def.Slug, endpoint, logger)
		case integration.AuthTypeAPIKey:
			r.connectors[def.Slug] = NewAPIKeyConnector(def.Slug, endpoint, logger)
		default:
			return nil, fmt.Errorf("channel %s: unsupported auth type %q", def.Slug, def.AuthType)
		}
		if endpoint.BaseURL == "" {
			logger.Warn("Channel has no base_url configured, sync calls will fail",
				zap.String("channel", def.Slug))
		}
	}
	return r, nil
}

// Register adds or replaces a connector
func (r *Registry) Register(connector integration.ChannelConnector) {
	r.connectors[connector.Slug()] = connector
}

// Connector implements integration.ConnectorRegistry
func (r *Registry) Connector(slug string) (integration.ChannelConnector, error) {
	connector, ok := r.connectors[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %s", integration.ErrChannelAdapterMissing, slug)
	}
	return connector, nil
}

// Slugs lists the registered channel slugs in order
func (r *Registry) Slugs() []string {
	slugs := make([]string, 0, len(r.connectors))
	for slug := range r.connectors {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}
