package channel

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/erp/marketplace/internal/domain/integration"
	"go.uber.org/zap"
)

// credentialHeaderPrefix prefixes each static credential field sent to the gateway
const credentialHeaderPrefix = "X-Credential-"

// APIKeyConnector talks to channels authenticated by static credentials
type APIKeyConnector struct {
	*httpConnector
}

var _ integration.APIKeyConnector = (*APIKeyConnector)(nil)

// NewAPIKeyConnector creates a connector for an api_key channel
func NewAPIKeyConnector(slug string, endpoint Endpoint, logger *zap.Logger) *APIKeyConnector {
	return &APIKeyConnector{httpConnector: newHTTPConnector(slug, endpoint, logger)}
}

// ValidateCredentials calls the account endpoint with the submitted fields
func (c *APIKeyConnector) ValidateCredentials(ctx context.Context, fields map[string]string) (*integration.AccountInfo, error) {
	return c.account(ctx, c.client, credentialHeaders(fields))
}

// Sync implements integration.ChannelConnector
func (c *APIKeyConnector) Sync(ctx context.Context, req integration.SyncRequest) (*integration.SyncResult, error) {
	return c.sync(ctx, c.client, credentialHeaders(req.Credentials.Fields), req)
}

// credentialHeaders maps shop_id to X-Credential-Shop-Id and so on
func credentialHeaders(fields map[string]string) http.Header {
	header := http.Header{}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		header.Set(credentialHeaderPrefix+headerName(key), fields[key])
	}
	return header
}

func headerName(field string) string {
	parts := strings.FieldsFunc(field, func(r rune) bool { return r == '_' || r == '-' })
	return http.CanonicalHeaderKey(strings.Join(parts, "-"))
}
