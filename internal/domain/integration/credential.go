package integration

import (
	"context"

	"github.com/google/uuid"
)

// CredentialRef is an opaque handle into the CredentialVault
type CredentialRef string

// String returns the string representation of CredentialRef
func (r CredentialRef) String() string {
	return string(r)
}

// CredentialVault stores per-tenant-per-channel secrets.
// Only the negotiator, executor and webhook ingestor may hold one.
// Implementations return ErrVaultUnavailable for transient backend failures
// and ErrRefNotFound for unknown or revoked refs.
type CredentialVault interface {
	Store(ctx context.Context, tenantID uuid.UUID, channelSlug string, payload []byte) (CredentialRef, error)
	Retrieve(ctx context.Context, ref CredentialRef) ([]byte, error)
	Revoke(ctx context.Context, ref CredentialRef) error
}
