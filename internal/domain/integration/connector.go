package integration

import (
	"context"
	"time"
)

// WebhookSecretField is the optional credential field holding the webhook signing secret
const WebhookSecretField = "webhook_secret"

// Credentials is the secret payload kept in the vault, JSON encoded
type Credentials struct {
	Fields        map[string]string `json:"fields,omitempty"`
	AccessToken   string            `json:"access_token,omitempty"`
	RefreshToken  string            `json:"refresh_token,omitempty"`
	TokenType     string            `json:"token_type,omitempty"`
	Expiry        *time.Time        `json:"expiry,omitempty"`
	WebhookSecret string            `json:"webhook_secret,omitempty"`
}

// SigningSecret returns the material used to verify inbound webhooks
func (c Credentials) SigningSecret() string {
	if c.WebhookSecret != "" {
		return c.WebhookSecret
	}
	if s := c.Fields[WebhookSecretField]; s != "" {
		return s
	}
	return c.Fields["secret_key"]
}

// AccountInfo identifies the remote account behind a set of credentials
type AccountInfo struct {
	ExternalAccountID string
	Name              string
}

// TokenSet is the result of an authorization-code exchange
type TokenSet struct {
	AccessToken       string
	RefreshToken      string
	TokenType         string
	Expiry            time.Time
	ExternalAccountID string
	WebhookSecret     string
}

// SyncRequest is handed to a connector for one pass
type SyncRequest struct {
	Integration *Integration
	Direction   SyncDirection
	Credentials Credentials
}

// SyncResult is what a connector reports for a completed pass
type SyncResult struct {
	EventType        string
	RecordsProcessed int
}

// WebhookEnvelope is the routing information extracted from a webhook payload
type WebhookEnvelope struct {
	ExternalAccountID string
	EventType         string
}

// ---------------------------------------------------------------------------
// Channel connector ports
// ---------------------------------------------------------------------------

// ChannelConnector is the per-channel adapter to an external marketplace API
type ChannelConnector interface {
	Slug() string
	// Sync performs one import or export pass
	Sync(ctx context.Context, req SyncRequest) (*SyncResult, error)
	// ParseWebhook extracts the account identifier from a raw payload
	ParseWebhook(payload []byte) (*WebhookEnvelope, error)
	// VerifySignature checks the provider signature header against secret
	VerifySignature(payload []byte, signature, secret string) bool
}

// APIKeyConnector validates static credentials with a lightweight call
type APIKeyConnector interface {
	ChannelConnector
	ValidateCredentials(ctx context.Context, fields map[string]string) (*AccountInfo, error)
}

// OAuth2Connector drives the authorization-code flow
type OAuth2Connector interface {
	ChannelConnector
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*TokenSet, error)
	// Introspect validates stored tokens when a paused integration resumes
	Introspect(ctx context.Context, creds Credentials) (*AccountInfo, error)
}

// ConnectorRegistry resolves connectors by channel slug
type ConnectorRegistry interface {
	Connector(slug string) (ChannelConnector, error)
}
