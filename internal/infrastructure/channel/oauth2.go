package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/erp/marketplace/internal/domain/integration"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// webhookSecretExtra is the token response field some channels use to hand out a signing secret
const webhookSecretExtra = "webhook_secret"

// OAuth2Connector talks to channels using the authorization-code flow
type OAuth2Connector struct {
	*httpConnector
	oauth *oauth2.Config
}

var _ integration.OAuth2Connector = (*OAuth2Connector)(nil)

// NewOAuth2Connector creates a connector for an oauth2 channel
func NewOAuth2Connector(slug string, endpoint Endpoint, logger *zap.Logger) *OAuth2Connector {
	return &OAuth2Connector{
		httpConnector: newHTTPConnector(slug, endpoint, logger),
		oauth: &oauth2.Config{
			ClientID:     endpoint.ClientID,
			ClientSecret: endpoint.ClientSecret,
			RedirectURL:  endpoint.RedirectURL,
			Scopes:       endpoint.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  endpoint.AuthURL,
				TokenURL: endpoint.TokenURL,
			},
		},
	}
}

// AuthCodeURL returns the provider consent URL carrying state
func (c *OAuth2Connector) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange redeems an authorization code and resolves the remote account
func (c *OAuth2Connector) Exchange(ctx context.Context, code string) (*integration.TokenSet, error) {
	if c.endpoint.TokenURL == "" {
		return nil, fmt.Errorf("%w: %s has no token_url configured", integration.ErrChannelRequestFailed, c.slug)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	token, err := c.oauth.Exchange(c.clientContext(ctx), code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, fmt.Errorf("%w: %v", integration.ErrChannelAuthFailed, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", integration.ErrChannelRequestFailed, err)
	}

	set := &integration.TokenSet{
		AccessToken:       token.AccessToken,
		RefreshToken:      token.RefreshToken,
		TokenType:         token.TokenType,
		Expiry:            token.Expiry,
		ExternalAccountID: stringify(token.Extra(c.endpoint.AccountField)),
		WebhookSecret:     stringify(token.Extra(webhookSecretExtra)),
	}
	if set.WebhookSecret == "" {
		set.WebhookSecret = c.endpoint.ClientSecret
	}
	if set.ExternalAccountID == "" {
		info, err := c.Introspect(ctx, integration.Credentials{
			AccessToken:  set.AccessToken,
			RefreshToken: set.RefreshToken,
			TokenType:    set.TokenType,
		})
		if err != nil {
			return nil, err
		}
		set.ExternalAccountID = info.ExternalAccountID
	}
	return set, nil
}

// Introspect validates stored tokens against the account endpoint
func (c *OAuth2Connector) Introspect(ctx context.Context, creds integration.Credentials) (*integration.AccountInfo, error) {
	return c.account(ctx, c.tokenClient(ctx, creds), nil)
}

// Sync implements integration.ChannelConnector
func (c *OAuth2Connector) Sync(ctx context.Context, req integration.SyncRequest) (*integration.SyncResult, error) {
	return c.sync(ctx, c.tokenClient(ctx, req.Credentials), nil, req)
}

// clientContext makes the oauth2 package use the connector's bounded client
func (c *OAuth2Connector) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.client)
}

// tokenClient returns a client that sends the bearer token and refreshes it when expired
func (c *OAuth2Connector) tokenClient(ctx context.Context, creds integration.Credentials) *http.Client {
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    creds.TokenType,
	}
	if creds.Expiry != nil {
		token.Expiry = *creds.Expiry
	}
	client := oauth2.NewClient(c.clientContext(ctx), c.oauth.TokenSource(c.clientContext(ctx), token))
	client.Timeout = c.endpoint.RequestTimeout
	return client
}
