package integration

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const (
	slugShopee       = "shopee"
	slugAmazon       = "amazon"
	slugMercadoLivre = "mercado_livre"
)

type testEnv struct {
	channels     *fakeChannelRepo
	enablements  *fakeEnablementRepo
	integrations *fakeIntegrationRepo
	logs         *fakeSyncLogRepo
	vault        *fakeVault
	states       *fakeStateStore
	locks        *fakeLock
	tracker      *fakeTracker
	dispatcher   *fakeDispatcher

	shopee       *MockAPIKeyConnector
	amazon       *MockAPIKeyConnector
	mercadoLivre *MockOAuth2Connector

	gate       *PermissionGate
	registry   *ChannelRegistry
	negotiator *AuthNegotiator
	executor   *SyncExecutor
	ingestor   *WebhookIngestor
	service    *IntegrationService
	scheduler  *SyncScheduler
	stats      *StatsAggregator

	tenantID uuid.UUID
	admin    integration.Actor
	operator integration.Actor
}

func testChannels(now time.Time) []integration.MarketplaceChannel {
	return []integration.MarketplaceChannel{
		{
			Slug:             slugShopee,
			DisplayName:      "Shopee",
			AuthType:         integration.AuthTypeAPIKey,
			LifecycleStatus:  integration.LifecycleActive,
			CredentialFields: []string{"partner_id", "partner_key", "shop_id"},
			CreatedAt:        now,
			UpdatedAt:        now,
		},
		{
			Slug:             slugAmazon,
			DisplayName:      "Amazon",
			AuthType:         integration.AuthTypeAPIKey,
			LifecycleStatus:  integration.LifecycleActive,
			CredentialFields: []string{"seller_id", "mws_token"},
			CreatedAt:        now,
			UpdatedAt:        now,
		},
		{
			Slug:            slugMercadoLivre,
			DisplayName:     "Mercado Livre",
			AuthType:        integration.AuthTypeOAuth2,
			LifecycleStatus: integration.LifecycleActive,
			CreatedAt:       now,
			UpdatedAt:       now,
		},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	now := time.Now()
	logger := newTestLogger()

	env := &testEnv{
		channels:     newFakeChannelRepo(testChannels(now)...),
		enablements:  newFakeEnablementRepo(),
		integrations: newFakeIntegrationRepo(),
		logs:         &fakeSyncLogRepo{},
		vault:        newFakeVault(),
		states:       newFakeStateStore(),
		locks:        newFakeLock(),
		tracker:      newFakeTracker(),
		dispatcher:   &fakeDispatcher{},
		shopee:       &MockAPIKeyConnector{MockConnector{slug: slugShopee}},
		amazon:       &MockAPIKeyConnector{MockConnector{slug: slugAmazon}},
		mercadoLivre: &MockOAuth2Connector{MockConnector{slug: slugMercadoLivre}},
		tenantID:     uuid.New(),
	}
	env.admin = integration.Actor{UserID: uuid.New(), Role: integration.RolePlatformAdmin}
	env.operator = integration.Actor{UserID: uuid.New(), TenantID: env.tenantID, Role: integration.RoleOperator}

	connectors := staticConnectors{
		slugShopee:       env.shopee,
		slugAmazon:       env.amazon,
		slugMercadoLivre: env.mercadoLivre,
	}

	env.gate = NewPermissionGate()
	env.registry = NewChannelRegistry(env.channels, env.enablements, env.gate, logger)
	oauth := NewOAuth2Strategy(connectors, env.states, integration.DefaultStateTTL)
	apiKey := NewAPIKeyStrategy(connectors)
	env.negotiator = NewAuthNegotiator(env.registry, env.integrations, env.vault, env.locks, env.gate, oauth, apiKey, logger)
	env.executor = NewSyncExecutor(env.registry, env.integrations, env.logs, env.vault, connectors, env.locks,
		SyncExecutorConfig{Retry: integration.DefaultRetryPolicy()}, logger)
	env.ingestor = NewWebhookIngestor(env.registry, connectors, env.integrations, env.vault, env.locks, env.tracker, env.dispatcher,
		DefaultWebhookFailureThreshold, logger)
	env.service = NewIntegrationService(env.integrations, env.logs, env.vault, env.locks, env.gate, env.negotiator, env.executor, logger)
	env.service.SetSignatureTracker(env.tracker)
	env.scheduler = NewSyncScheduler(env.integrations, integration.DefaultRetryPolicy())
	env.stats = NewStatsAggregator(env.channels, env.enablements, env.integrations, env.logs, env.gate, DefaultStatsWindow)
	return env
}

func (e *testEnv) enable(t *testing.T, tenantID uuid.UUID, slug string) {
	t.Helper()
	_, err := e.registry.SetEnablement(context.Background(), e.admin, tenantID, slug, true)
	require.NoError(t, err)
}

func shopeeFields() map[string]string {
	return map[string]string{
		"partner_id":  "2001",
		"partner_key": "pk-live",
		"shop_id":     "shop-1",
	}
}

// connectShopee enables shopee for the operator's tenant and connects it
func (e *testEnv) connectShopee(t *testing.T) *integration.Integration {
	t.Helper()
	e.enable(t, e.tenantID, slugShopee)
	e.shopee.On("ValidateCredentials", mockAny, shopeeFields()).
		Return(&integration.AccountInfo{ExternalAccountID: "shop-1"}, nil).Maybe()

	created, err := e.negotiator.ConnectWithAPIKey(context.Background(), e.operator, ConnectAPIKeyCommand{
		ChannelSlug: slugShopee,
		Fields:      shopeeFields(),
	})
	require.NoError(t, err)
	return created
}

// seedIntegration stores creds in the vault and persists an active integration
func (e *testEnv) seedIntegration(t *testing.T, slug, account string, creds integration.Credentials) *integration.Integration {
	t.Helper()
	ctx := context.Background()
	e.enable(t, e.tenantID, slug)

	channel, err := e.channels.FindBySlug(ctx, slug)
	require.NoError(t, err)
	payload, err := encodeCredentials(creds)
	require.NoError(t, err)
	ref, err := e.vault.Store(ctx, e.tenantID, slug, payload)
	require.NoError(t, err)

	now := time.Now()
	created, err := integration.NewIntegration(e.tenantID, channel, ref, account, e.operator.UserID, now)
	require.NoError(t, err)
	require.NoError(t, created.Activate(now))
	require.NoError(t, e.integrations.Save(ctx, created))
	return created
}

func (e *testEnv) reload(t *testing.T, id uuid.UUID) *integration.Integration {
	t.Helper()
	got, err := e.integrations.Get(context.Background(), id)
	require.NoError(t, err)
	return got
}

func stateFromURL(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Query().Get("state")
}
