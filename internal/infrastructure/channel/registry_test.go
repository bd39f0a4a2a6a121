package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/erp/marketplace/internal/infrastructure/config"
)

func configFor(baseURL string) config.ChannelEndpointConfig {
	return config.ChannelEndpointConfig{BaseURL: baseURL}
}

func TestNewRegistry_BuiltinCatalog(t *testing.T) {
	registry, err := NewRegistry(BuiltinCatalog(), map[string]config.ChannelEndpointConfig{
		"shopee": configFor("https://gw.example.com/shopee"),
	}, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, []string{"amazon", "b2w", "bling", "magalu", "mercado_livre", "shopee"}, registry.Slugs())

	ml, err := registry.Connector("mercado_livre")
	require.NoError(t, err)
	_, isOAuth := ml.(integration.OAuth2Connector)
	assert.True(t, isOAuth)
	_, isAPIKey := ml.(integration.APIKeyConnector)
	assert.False(t, isAPIKey)

	shopee, err := registry.Connector("shopee")
	require.NoError(t, err)
	_, isAPIKey = shopee.(integration.APIKeyConnector)
	assert.True(t, isAPIKey)
	_, isOAuth = shopee.(integration.OAuth2Connector)
	assert.False(t, isOAuth)
}

func TestRegistry_UnknownSlug(t *testing.T) {
	registry, err := NewRegistry(BuiltinCatalog(), nil, nil)
	require.NoError(t, err)

	_, err = registry.Connector("etsy")
	assert.ErrorIs(t, err, integration.ErrChannelAdapterMissing)
}

func TestRegistry_UnsupportedAuthType(t *testing.T) {
	_, err := NewRegistry([]Definition{{Slug: "odd", AuthType: integration.AuthType("saml")}}, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestRegistry_Register(t *testing.T) {
	registry, err := NewRegistry(nil, nil, zap.NewNop())
	require.NoError(t, err)

	registry.Register(NewAPIKeyConnector("custom", testEndpoint("http://unused"), zap.NewNop()))
	connector, err := registry.Connector("custom")
	require.NoError(t, err)
	assert.Equal(t, "custom", connector.Slug())
}

func TestBuiltinCatalog(t *testing.T) {
	defs := BuiltinCatalog()
	channels := Channels(defs)
	require.Len(t, channels, len(defs))

	for _, ch := range channels {
		assert.Equal(t, integration.LifecycleActive, ch.LifecycleStatus, ch.Slug)
		assert.Contains(t, ch.RequiredPlanFeatures, FeatureMarketplace, ch.Slug)
		if ch.AuthType == integration.AuthTypeAPIKey {
			assert.NotEmpty(t, ch.CredentialFields, ch.Slug)
		}
	}
}
