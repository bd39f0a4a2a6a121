package integration

import (
	"context"
	"errors"
	"strings"

	"github.com/erp/marketplace/internal/domain/integration"
)

// APIKeyStrategy validates tenant-supplied static credentials with a
// synchronous call to the channel before anything is persisted.
type APIKeyStrategy struct {
	connectors integration.ConnectorRegistry
}

// NewAPIKeyStrategy creates a new APIKeyStrategy
func NewAPIKeyStrategy(connectors integration.ConnectorRegistry) *APIKeyStrategy {
	return &APIKeyStrategy{connectors: connectors}
}

// AuthType implements AuthStrategy
func (s *APIKeyStrategy) AuthType() integration.AuthType {
	return integration.AuthTypeAPIKey
}

// Negotiate checks the field set and validates it against the channel.
// On failure nothing is retained.
func (s *APIKeyStrategy) Negotiate(ctx context.Context, channel *integration.MarketplaceChannel, fields map[string]string) (*negotiated, error) {
	if missing := channel.MissingCredentialFields(fields); len(missing) > 0 {
		return nil, integration.ErrMissingCredentialFields.WithMessage(
			"Missing credential fields: " + strings.Join(missing, ", "))
	}

	// Only the declared fields and the optional signing secret are kept
	kept := make(map[string]string, len(channel.CredentialFields)+1)
	for _, name := range channel.CredentialFields {
		kept[name] = strings.TrimSpace(fields[name])
	}
	if secret := strings.TrimSpace(fields[integration.WebhookSecretField]); secret != "" {
		kept[integration.WebhookSecretField] = secret
	}

	creds := integration.Credentials{Fields: kept}
	account, err := s.Revalidate(ctx, channel, creds)
	if err != nil {
		return nil, err
	}
	return &negotiated{credentials: creds, account: *account}, nil
}

// Revalidate implements AuthStrategy
func (s *APIKeyStrategy) Revalidate(ctx context.Context, channel *integration.MarketplaceChannel, creds integration.Credentials) (*integration.AccountInfo, error) {
	connector, err := s.apiKeyConnector(channel.Slug)
	if err != nil {
		return nil, err
	}
	account, err := connector.ValidateCredentials(ctx, creds.Fields)
	if err != nil {
		if errors.Is(err, integration.ErrChannelAuthFailed) {
			return nil, integration.ErrCredentialValidationFailed.Wrap(err)
		}
		return nil, err
	}
	if account.ExternalAccountID == "" {
		account.ExternalAccountID = creds.Fields["shop_id"]
	}
	return account, nil
}

func (s *APIKeyStrategy) apiKeyConnector(slug string) (integration.APIKeyConnector, error) {
	connector, err := s.connectors.Connector(slug)
	if err != nil {
		return nil, err
	}
	apiKey, ok := connector.(integration.APIKeyConnector)
	if !ok {
		return nil, integration.ErrAuthTypeMismatch
	}
	return apiKey, nil
}
