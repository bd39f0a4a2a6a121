package integration

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/erp/marketplace/internal/domain/integration"
)

func encodeCredentials(creds integration.Credentials) ([]byte, error) {
	payload, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("encode credentials: %w", err)
	}
	return payload, nil
}

func decodeCredentials(payload []byte) (integration.Credentials, error) {
	var creds integration.Credentials
	if err := json.Unmarshal(payload, &creds); err != nil {
		return creds, fmt.Errorf("decode credentials: %w", err)
	}
	return creds, nil
}

// loadCredentials retrieves and decodes the secret behind ref
func loadCredentials(ctx context.Context, vault integration.CredentialVault, ref integration.CredentialRef) (integration.Credentials, error) {
	payload, err := vault.Retrieve(ctx, ref)
	if err != nil {
		return integration.Credentials{}, err
	}
	return decodeCredentials(payload)
}
