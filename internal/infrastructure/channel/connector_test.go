package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erp/marketplace/internal/domain/integration"
)

func testEndpoint(baseURL string) Endpoint {
	return Endpoint{
		BaseURL:        baseURL,
		AccountField:   "shop_id",
		EventField:     "code",
		RequestsPerSec: 100,
		RequestTimeout: 5 * time.Second,
	}
}

// ---------------------------------------------------------------------------
// Endpoint Tests
// ---------------------------------------------------------------------------

func TestNewEndpoint_Defaults(t *testing.T) {
	def := Definition{Slug: "shopee", AccountField: "shop_id", EventField: "code"}

	ep := NewEndpoint(def, configFor("https://gw.example.com/shopee/"))
	assert.Equal(t, "https://gw.example.com/shopee", ep.BaseURL)
	assert.Equal(t, "shop_id", ep.AccountField)
	assert.Equal(t, "code", ep.EventField)
	assert.Equal(t, float64(defaultRequestsPerSec), ep.RequestsPerSec)
	assert.Equal(t, defaultRequestTimeout, ep.RequestTimeout)

	bare := NewEndpoint(Definition{Slug: "custom"}, configFor(""))
	assert.Equal(t, "account_id", bare.AccountField)
	assert.Equal(t, "event_type", bare.EventField)
}

// ---------------------------------------------------------------------------
// API key connector Tests
// ---------------------------------------------------------------------------

func TestAPIKeyConnector_ValidateCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/account", r.URL.Path)
		assert.Equal(t, "p-1", r.Header.Get("X-Credential-Partner-Id"))
		assert.Equal(t, "s-9", r.Header.Get("X-Credential-Shop-Id"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"account_id": "s-9", "name": "Loja Nove"})
	}))
	defer server.Close()

	connector := NewAPIKeyConnector("shopee", testEndpoint(server.URL), zap.NewNop())
	info, err := connector.ValidateCredentials(context.Background(), map[string]string{
		"partner_id": "p-1",
		"shop_id":    "s-9",
	})
	require.NoError(t, err)
	assert.Equal(t, "s-9", info.ExternalAccountID)
	assert.Equal(t, "Loja Nove", info.Name)
}

func TestAPIKeyConnector_Sync(t *testing.T) {
	lastSync := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/sync/import", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "key", r.Header.Get("X-Credential-Partner-Key"))

		var body syncRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "s-9", body.AccountID)
		assert.Equal(t, "import", body.Direction)
		require.NotNil(t, body.Since)
		assert.True(t, lastSync.Equal(*body.Since))

		_ = json.NewEncoder(w).Encode(map[string]any{"event_type": "orders_imported", "records_processed": 42})
	}))
	defer server.Close()

	connector := NewAPIKeyConnector("shopee", testEndpoint(server.URL), zap.NewNop())
	result, err := connector.Sync(context.Background(), integration.SyncRequest{
		Integration: &integration.Integration{ExternalAccountID: "s-9", LastSync: &lastSync},
		Direction:   integration.DirectionImport,
		Credentials: integration.Credentials{Fields: map[string]string{"partner_key": "key"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "orders_imported", result.EventType)
	assert.Equal(t, 42, result.RecordsProcessed)
}

func TestAPIKeyConnector_ErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantErr   error
		transient bool
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{}`, wantErr: integration.ErrChannelAuthFailed},
		{name: "forbidden", status: http.StatusForbidden, body: `{}`, wantErr: integration.ErrChannelAuthFailed},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{}`, wantErr: integration.ErrChannelRateLimited, transient: true},
		{name: "server error", status: http.StatusBadGateway, body: `{}`, wantErr: integration.ErrChannelRequestFailed, transient: true},
		{name: "client error", status: http.StatusNotFound, body: `{}`, wantErr: integration.ErrChannelInvalidResponse},
		{name: "malformed body", status: http.StatusOK, body: `{not json`, wantErr: integration.ErrChannelInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			connector := NewAPIKeyConnector("shopee", testEndpoint(server.URL), zap.NewNop())
			_, err := connector.ValidateCredentials(context.Background(), map[string]string{"shop_id": "s-9"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.transient, integration.IsTransient(err))
		})
	}
}

func TestAPIKeyConnector_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	connector := NewAPIKeyConnector("shopee", testEndpoint(url), zap.NewNop())
	_, err := connector.ValidateCredentials(context.Background(), nil)
	assert.ErrorIs(t, err, integration.ErrChannelRequestFailed)
	assert.True(t, integration.IsTransient(err))
}

func TestAPIKeyConnector_MissingBaseURL(t *testing.T) {
	connector := NewAPIKeyConnector("shopee", testEndpoint(""), zap.NewNop())
	_, err := connector.ValidateCredentials(context.Background(), nil)
	assert.ErrorIs(t, err, integration.ErrChannelRequestFailed)
}

func TestAPIKeyConnector_CanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	connector := NewAPIKeyConnector("shopee", testEndpoint(server.URL), zap.NewNop())
	_, err := connector.ValidateCredentials(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHeaderName(t *testing.T) {
	assert.Equal(t, "Shop-Id", headerName("shop_id"))
	assert.Equal(t, "Account-Manager-Key", headerName("account_manager_key"))
	assert.Equal(t, "Api-Key", headerName("api-key"))
}

// ---------------------------------------------------------------------------
// Webhook parsing and signature Tests
// ---------------------------------------------------------------------------

func TestParseWebhook(t *testing.T) {
	connector := NewAPIKeyConnector("shopee", testEndpoint("http://unused"), zap.NewNop())

	t.Run("string account", func(t *testing.T) {
		env, err := connector.ParseWebhook([]byte(`{"shop_id":"s-9","code":"order_status"}`))
		require.NoError(t, err)
		assert.Equal(t, "s-9", env.ExternalAccountID)
		assert.Equal(t, "order_status", env.EventType)
	})

	t.Run("numeric account keeps all digits", func(t *testing.T) {
		env, err := connector.ParseWebhook([]byte(`{"shop_id":1234567890123,"code":3}`))
		require.NoError(t, err)
		assert.Equal(t, "1234567890123", env.ExternalAccountID)
		assert.Equal(t, "3", env.EventType)
	})

	t.Run("missing account", func(t *testing.T) {
		_, err := connector.ParseWebhook([]byte(`{"code":"order_status"}`))
		assert.ErrorIs(t, err, integration.ErrChannelInvalidResponse)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := connector.ParseWebhook([]byte(`shop_id=1`))
		assert.ErrorIs(t, err, integration.ErrChannelInvalidResponse)
	})
}

func TestVerifySignature(t *testing.T) {
	connector := NewAPIKeyConnector("shopee", testEndpoint("http://unused"), zap.NewNop())
	payload := []byte(`{"shop_id":"s-9"}`)
	signature := SignHMACSHA256(payload, "secret")

	assert.True(t, connector.VerifySignature(payload, signature, "secret"))
	assert.True(t, connector.VerifySignature(payload, "sha256="+signature, "secret"))
	assert.True(t, connector.VerifySignature(payload, strings.ToUpper(signature), "secret"))
	assert.False(t, connector.VerifySignature(payload, signature, "other"))
	assert.False(t, connector.VerifySignature([]byte(`{"shop_id":"s-8"}`), signature, "secret"))
	assert.False(t, connector.VerifySignature(payload, "not-hex", "secret"))
	assert.False(t, connector.VerifySignature(payload, "", "secret"))
	assert.False(t, connector.VerifySignature(payload, signature, ""))
}
