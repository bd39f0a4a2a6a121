package integration

import (
	"context"
	"errors"
	"time"

	"github.com/erp/marketplace/internal/domain/integration"
)

// OAuth2Strategy runs the authorization-code flow. Nothing is held in memory
// across the redirect: the single-use state token in the StateStore is the
// only link between Begin and Complete.
type OAuth2Strategy struct {
	connectors integration.ConnectorRegistry
	states     integration.StateStore
	stateTTL   time.Duration
}

// NewOAuth2Strategy creates a new OAuth2Strategy
func NewOAuth2Strategy(connectors integration.ConnectorRegistry, states integration.StateStore, stateTTL time.Duration) *OAuth2Strategy {
	if stateTTL <= 0 {
		stateTTL = integration.DefaultStateTTL
	}
	return &OAuth2Strategy{
		connectors: connectors,
		states:     states,
		stateTTL:   stateTTL,
	}
}

// AuthType implements AuthStrategy
func (s *OAuth2Strategy) AuthType() integration.AuthType {
	return integration.AuthTypeOAuth2
}

// Begin issues a state token and returns the channel's authorization URL.
// Issuing replaces any unconsumed token for the same tenant and channel.
func (s *OAuth2Strategy) Begin(ctx context.Context, actor integration.Actor, channel *integration.MarketplaceChannel, now time.Time) (string, *integration.OAuthState, error) {
	connector, err := s.oauthConnector(channel.Slug)
	if err != nil {
		return "", nil, err
	}
	state, err := integration.NewOAuthState(actor.TenantID, channel.Slug, actor.UserID, s.stateTTL, now)
	if err != nil {
		return "", nil, err
	}
	if err := s.states.Issue(ctx, state); err != nil {
		return "", nil, err
	}
	return connector.AuthCodeURL(state.Token), state, nil
}

// Redeem consumes the state token and validates it against the caller.
// The token is burned even when validation fails.
func (s *OAuth2Strategy) Redeem(ctx context.Context, actor integration.Actor, token string, now time.Time) (*integration.OAuthState, error) {
	if token == "" {
		return nil, integration.ErrInvalidState
	}
	state, err := s.states.Consume(ctx, token)
	if err != nil {
		if errors.Is(err, integration.ErrInvalidState) {
			return nil, integration.ErrInvalidState
		}
		return nil, err
	}
	if state.IsExpired(now) {
		return nil, integration.ErrInvalidState.WithMessage("Authorization state has expired")
	}
	if state.TenantID != actor.TenantID {
		return nil, integration.ErrInvalidState.WithMessage("Authorization state belongs to another tenant")
	}
	return state, nil
}

// Exchange trades the authorization code for tokens
func (s *OAuth2Strategy) Exchange(ctx context.Context, channel *integration.MarketplaceChannel, code string) (*negotiated, error) {
	connector, err := s.oauthConnector(channel.Slug)
	if err != nil {
		return nil, err
	}
	tokens, err := connector.Exchange(ctx, code)
	if err != nil {
		if errors.Is(err, integration.ErrChannelAuthFailed) {
			return nil, integration.ErrCredentialValidationFailed.Wrap(err)
		}
		return nil, err
	}

	creds := integration.Credentials{
		AccessToken:   tokens.AccessToken,
		RefreshToken:  tokens.RefreshToken,
		TokenType:     tokens.TokenType,
		WebhookSecret: tokens.WebhookSecret,
	}
	if !tokens.Expiry.IsZero() {
		expiry := tokens.Expiry
		creds.Expiry = &expiry
	}
	return &negotiated{
		credentials: creds,
		account:     integration.AccountInfo{ExternalAccountID: tokens.ExternalAccountID},
	}, nil
}

// Revalidate implements AuthStrategy
func (s *OAuth2Strategy) Revalidate(ctx context.Context, channel *integration.MarketplaceChannel, creds integration.Credentials) (*integration.AccountInfo, error) {
	connector, err := s.oauthConnector(channel.Slug)
	if err != nil {
		return nil, err
	}
	account, err := connector.Introspect(ctx, creds)
	if err != nil {
		if errors.Is(err, integration.ErrChannelAuthFailed) {
			return nil, integration.ErrCredentialValidationFailed.Wrap(err)
		}
		return nil, err
	}
	return account, nil
}

func (s *OAuth2Strategy) oauthConnector(slug string) (integration.OAuth2Connector, error) {
	connector, err := s.connectors.Connector(slug)
	if err != nil {
		return nil, err
	}
	oauth, ok := connector.(integration.OAuth2Connector)
	if !ok {
		return nil, integration.ErrAuthTypeMismatch
	}
	return oauth, nil
}
