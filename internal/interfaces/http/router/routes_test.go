package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	appintegration "github.com/erp/marketplace/internal/application/integration"
	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/erp/marketplace/internal/infrastructure/auth"
	"github.com/erp/marketplace/internal/infrastructure/cache"
	"github.com/erp/marketplace/internal/infrastructure/channel"
	"github.com/erp/marketplace/internal/infrastructure/config"
	"github.com/erp/marketplace/internal/infrastructure/persistence"
	"github.com/erp/marketplace/internal/infrastructure/vault"
	"github.com/erp/marketplace/internal/interfaces/http/dto"
	"github.com/erp/marketplace/internal/interfaces/http/handler"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const webhookSecret = "whsec-test"

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []appintegration.SyncJob
}

func (d *recordingDispatcher) Dispatch(job appintegration.SyncJob) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
	return true
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.jobs)
}

type testServer struct {
	engine     *gin.Engine
	dispatcher *recordingDispatcher
	tenantID   uuid.UUID
	adminToken string
	opToken    string
	otherToken string
}

// newTestServer wires the full stack on in-memory sqlite. The shopee
// connector talks to a fake gateway that accepts any credentials.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	log := zap.NewNop()

	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/account":
			_, _ = w.Write([]byte(`{"account_id":"shop-1","name":"Test Shop"}`))
		case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/sync/"):
			_, _ = w.Write([]byte(`{"event_type":"orders","records_processed":3}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(gateway.Close)

	db, err := persistence.NewDatabase(&config.DatabaseConfig{
		Driver:   "sqlite",
		Path:     ":memory:",
		LogLevel: "silent",
	}, log)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })

	key, err := vault.GenerateKey()
	require.NoError(t, err)
	credentialVault, err := vault.New(persistence.NewGormCredentialStore(db.DB), key, log)
	require.NoError(t, err)

	connectors, err := channel.NewRegistry(channel.BuiltinCatalog(), map[string]config.ChannelEndpointConfig{
		"shopee": {BaseURL: gateway.URL, RequestsPerSec: 100},
	}, log)
	require.NoError(t, err)

	channels := cache.NewCachedChannelRepository(persistence.NewGormChannelRepository(db.DB), time.Minute)
	enablements := persistence.NewGormEnablementRepository(db.DB)
	integrations := persistence.NewGormIntegrationRepository(db.DB)
	logs := persistence.NewGormSyncLogRepository(db.DB)
	locks := cache.NewInMemorySyncLock()
	tracker := cache.NewSignatureFailureTracker(time.Hour, 100)
	dispatcher := &recordingDispatcher{}

	gate := appintegration.NewPermissionGate()
	registry := appintegration.NewChannelRegistry(channels, enablements, gate, log)
	require.NoError(t, registry.Bootstrap(ctx, channel.Channels(channel.BuiltinCatalog())))
	negotiator := appintegration.NewAuthNegotiator(registry, integrations, credentialVault, locks, gate,
		appintegration.NewOAuth2Strategy(connectors, cache.NewInMemoryStateStore(), integration.DefaultStateTTL),
		appintegration.NewAPIKeyStrategy(connectors), log)
	executor := appintegration.NewSyncExecutor(registry, integrations, logs, credentialVault, connectors, locks,
		appintegration.SyncExecutorConfig{Retry: integration.DefaultRetryPolicy()}, log)
	ingestor := appintegration.NewWebhookIngestor(registry, connectors, integrations, credentialVault, locks, tracker, dispatcher,
		appintegration.DefaultWebhookFailureThreshold, log)
	service := appintegration.NewIntegrationService(integrations, logs, credentialVault, locks, gate, negotiator, executor, log)
	service.SetSignatureTracker(tracker)
	stats := appintegration.NewStatsAggregator(channels, enablements, integrations, logs, gate, appintegration.DefaultStatsWindow)

	jwtService := auth.NewJWTService(config.JWTConfig{Secret: "router-test-secret", Issuer: "erp"})
	engine := NewEngine(Config{
		HTTP: config.HTTPConfig{MaxBodySize: 1 << 20},
		Marketplace: config.MarketplaceConfig{
			WebhookBodyLimit: 1024,
			WebhookRateLimit: 100,
			WebhookRateBurst: 100,
		},
		JWTService: jwtService,
		Logger:     log,
	}, Handlers{
		System: handler.NewSystemHandler("erp-marketplace", "test", map[string]handler.ReadinessCheck{
			"database": db.Ping,
		}),
		Channel:     handler.NewChannelHandler(registry, gate),
		Connect:     handler.NewConnectHandler(negotiator),
		Integration: handler.NewIntegrationHandler(service),
		Webhook:     handler.NewWebhookHandler(ingestor),
		Stats:       handler.NewStatsHandler(stats),
	})

	token := func(tenantID uuid.UUID, role integration.Role) string {
		signed, err := jwtService.GenerateToken(auth.GenerateTokenInput{
			TenantID:     tenantID,
			UserID:       uuid.New(),
			Role:         role,
			PlanFeatures: []string{channel.FeatureMarketplace},
		}, time.Hour)
		require.NoError(t, err)
		return signed
	}

	tenantID := uuid.New()
	return &testServer{
		engine:     engine,
		dispatcher: dispatcher,
		tenantID:   tenantID,
		adminToken: token(uuid.Nil, integration.RolePlatformAdmin),
		opToken:    token(tenantID, integration.RoleOperator),
		otherToken: token(uuid.New(), integration.RoleTenantAdmin),
	}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, dto.Response) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var resp dto.Response
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, resp
}

func (s *testServer) webhook(t *testing.T, payload []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/shopee", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(handler.SignatureHeaders[0], signature)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

// connectShopee enables shopee for the test tenant and connects it
func (s *testServer) connectShopee(t *testing.T) string {
	t.Helper()
	w, _ := s.do(t, http.MethodPut, "/api/v1/admin/tenants/"+s.tenantID.String()+"/enablements/shopee", s.adminToken,
		map[string]any{"enabled": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, resp := s.do(t, http.MethodPost, "/api/v1/channels/shopee/connect", s.opToken, map[string]any{
		"fields": map[string]string{
			"partner_id":                   "2001",
			"partner_key":                  "pk-live",
			"shop_id":                      "shop-1",
			integration.WebhookSecretField: webhookSecret,
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := resp.Data.(map[string]any)
	return data["id"].(string)
}

func TestEngine_SystemRoutes(t *testing.T) {
	s := newTestServer(t)

	w, resp := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w, _ = s.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEngine_Authentication(t *testing.T) {
	s := newTestServer(t)

	w, resp := s.do(t, http.MethodGet, "/api/v1/channels", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, dto.ErrCodeUnauthorized, resp.Error.Code)

	w, resp = s.do(t, http.MethodGet, "/api/v1/channels", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, dto.ErrCodeTokenInvalid, resp.Error.Code)

	w, resp = s.do(t, http.MethodGet, "/api/v1/channels", s.opToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data, len(channel.BuiltinCatalog()))
}

func TestEngine_ChannelAdministration(t *testing.T) {
	s := newTestServer(t)

	t.Run("tenant roles cannot change lifecycle", func(t *testing.T) {
		w, resp := s.do(t, http.MethodPut, "/api/v1/admin/channels/shopee/lifecycle", s.otherToken,
			map[string]any{"status": "maintenance"})
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, dto.ErrCodeForbidden, resp.Error.Code)
	})

	t.Run("invalid lifecycle is a validation error", func(t *testing.T) {
		w, resp := s.do(t, http.MethodPut, "/api/v1/admin/channels/shopee/lifecycle", s.adminToken,
			map[string]any{"status": "archived"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	})

	t.Run("enable then list", func(t *testing.T) {
		path := "/api/v1/admin/tenants/" + s.tenantID.String() + "/enablements"
		w, _ := s.do(t, http.MethodPut, path+"/amazon", s.adminToken, map[string]any{"enabled": true})
		require.Equal(t, http.StatusOK, w.Code)

		w, resp := s.do(t, http.MethodGet, path, s.adminToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, resp.Data, 1)

		w, resp = s.do(t, http.MethodGet, "/api/v1/enablements", s.opToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, resp.Data, 1)
	})

	t.Run("unknown channel", func(t *testing.T) {
		w, resp := s.do(t, http.MethodGet, "/api/v1/channels/ebay", s.opToken, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, dto.ErrCodeNotFound, resp.Error.Code)
	})
}

func TestEngine_ConnectRequiresEnablement(t *testing.T) {
	s := newTestServer(t)

	w, resp := s.do(t, http.MethodPost, "/api/v1/channels/shopee/connect", s.opToken, map[string]any{
		"fields": map[string]string{"partner_id": "1", "partner_key": "k", "shop_id": "shop-1"},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, dto.ErrCodeChannelNotAvailable, resp.Error.Code)
}

func TestEngine_IntegrationLifecycle(t *testing.T) {
	s := newTestServer(t)
	id := s.connectShopee(t)
	base := "/api/v1/integrations/" + id

	w, resp := s.do(t, http.MethodGet, base, s.opToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "active", data["status"])
	assert.Equal(t, "shop-1", data["external_account_id"])
	assert.NotContains(t, w.Body.String(), "pk-live")

	t.Run("other tenants cannot see it", func(t *testing.T) {
		w, _ := s.do(t, http.MethodGet, base, s.otherToken, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("manual sync writes a log", func(t *testing.T) {
		w, resp := s.do(t, http.MethodPost, base+"/sync", s.opToken, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		entry := resp.Data.(map[string]any)
		assert.Equal(t, "success", entry["status"])
		assert.Equal(t, "manual", entry["trigger"])
		assert.EqualValues(t, 3, entry["records_processed"])

		w, resp = s.do(t, http.MethodGet, base+"/logs?page=1&page_size=10", s.opToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, int64(1), resp.Meta.Total)
	})

	t.Run("invalid direction", func(t *testing.T) {
		w, _ := s.do(t, http.MethodPost, base+"/sync", s.opToken, map[string]any{"direction": "sideways"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("update settings", func(t *testing.T) {
		w, resp := s.do(t, http.MethodPatch, base, s.opToken, map[string]any{"sync_interval_minutes": 30})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.EqualValues(t, 30, resp.Data.(map[string]any)["sync_interval_minutes"])
	})

	t.Run("pause then sync is rejected", func(t *testing.T) {
		w, resp := s.do(t, http.MethodPost, base+"/pause", s.opToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "inactive", resp.Data.(map[string]any)["status"])

		w, resp = s.do(t, http.MethodPost, base+"/sync", s.opToken, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidState, resp.Error.Code)
	})

	t.Run("stats", func(t *testing.T) {
		w, resp := s.do(t, http.MethodGet, "/api/v1/stats", s.opToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		stats := resp.Data.(map[string]any)
		assert.EqualValues(t, 1, stats["enabled_channels"])
		assert.EqualValues(t, 1, stats["recent_syncs"])
	})

	t.Run("delete", func(t *testing.T) {
		w, _ := s.do(t, http.MethodDelete, base, s.opToken, nil)
		require.Equal(t, http.StatusNoContent, w.Code)

		w, _ = s.do(t, http.MethodGet, base, s.opToken, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestEngine_Webhooks(t *testing.T) {
	s := newTestServer(t)
	s.connectShopee(t)
	payload := []byte(`{"shop_id":"shop-1","code":3}`)

	t.Run("signed delivery is accepted without a token", func(t *testing.T) {
		w := s.webhook(t, payload, channel.SignHMACSHA256(payload, webhookSecret))
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
		assert.Equal(t, 1, s.dispatcher.count())
	})

	t.Run("bad signature is rejected", func(t *testing.T) {
		w := s.webhook(t, payload, channel.SignHMACSHA256(payload, "wrong"))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), dto.ErrCodeWebhookRejected)
		assert.Equal(t, 1, s.dispatcher.count())
	})

	t.Run("unknown account is rejected", func(t *testing.T) {
		other := []byte(`{"shop_id":"shop-9"}`)
		w := s.webhook(t, other, channel.SignHMACSHA256(other, webhookSecret))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("oversized body", func(t *testing.T) {
		big := []byte(`{"shop_id":"shop-1","blob":"` + strings.Repeat("x", 2048) + `"}`)
		w := s.webhook(t, big, "sig")
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}
