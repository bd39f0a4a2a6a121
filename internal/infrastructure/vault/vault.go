// Package vault implements the credential vault on top of an encrypted table.
// Every tenant gets its own AES-256-GCM key derived from the master key with
// HKDF-SHA256, and every ciphertext is bound to its row, tenant and channel.
package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/erp/marketplace/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/hkdf"
)

const (
	keySize        = 32
	currentVersion = 1
	hkdfInfoPrefix = "erp-marketplace-vault/v1/"
)

// ErrIntegrity is returned when a ciphertext fails authentication
var ErrIntegrity = errors.New("vault: credential integrity check failed")

// Store persists sealed credentials
type Store interface {
	Insert(ctx context.Context, cred *models.IntegrationCredentialModel) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.IntegrationCredentialModel, error)
	Revoke(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Vault implements integration.CredentialVault
type Vault struct {
	store     Store
	masterKey []byte
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a Vault from a base64 encoded master key of at least 32 bytes
func New(store Store, encodedKey string, logger *zap.Logger) (*Vault, error) {
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("invalid vault master key format: %w", err)
	}
	if len(key) < keySize {
		return nil, fmt.Errorf("vault master key must be at least %d bytes", keySize)
	}
	return &Vault{
		store:     store,
		masterKey: key,
		logger:    logger.Named("vault"),
		now:       time.Now,
	}, nil
}

// GenerateKey returns a random base64 encoded master key
func GenerateKey() (string, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Store seals payload under the tenant key and returns an opaque reference
func (v *Vault) Store(ctx context.Context, tenantID uuid.UUID, channelSlug string, payload []byte) (integration.CredentialRef, error) {
	if tenantID == uuid.Nil {
		return "", integration.ErrInvalidTenantID
	}
	gcm, err := v.tenantCipher(tenantID, currentVersion)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	cred := &models.IntegrationCredentialModel{
		ID:          uuid.New(),
		TenantID:    tenantID,
		ChannelSlug: channelSlug,
		Nonce:       nonce,
		KeyVersion:  currentVersion,
		CreatedAt:   v.now().UTC(),
	}
	cred.Ciphertext = gcm.Seal(nil, nonce, payload, associatedData(cred))

	if err := v.store.Insert(ctx, cred); err != nil {
		v.logger.Warn("Credential store insert failed",
			zap.String("tenant_id", tenantID.String()),
			zap.String("channel", channelSlug),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: %w", integration.ErrVaultUnavailable, err)
	}
	return integration.CredentialRef(cred.ID.String()), nil
}

// Retrieve opens the payload behind ref. Revoked and unknown refs yield ErrRefNotFound.
func (v *Vault) Retrieve(ctx context.Context, ref integration.CredentialRef) ([]byte, error) {
	id, err := uuid.Parse(ref.String())
	if err != nil {
		return nil, integration.ErrRefNotFound
	}
	cred, err := v.store.FindByID(ctx, id)
	if err != nil {
		return nil, v.storeError(err)
	}
	if cred.IsRevoked() {
		return nil, integration.ErrRefNotFound
	}

	gcm, err := v.tenantCipher(cred.TenantID, cred.KeyVersion)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, cred.Nonce, cred.Ciphertext, associatedData(cred))
	if err != nil {
		v.logger.Error("Credential failed authentication",
			zap.String("credential_ref", ref.String()),
			zap.String("tenant_id", cred.TenantID.String()),
		)
		return nil, ErrIntegrity
	}
	return plaintext, nil
}

// Revoke makes ref permanently unreadable
func (v *Vault) Revoke(ctx context.Context, ref integration.CredentialRef) error {
	id, err := uuid.Parse(ref.String())
	if err != nil {
		return integration.ErrRefNotFound
	}
	if err := v.store.Revoke(ctx, id, v.now().UTC()); err != nil {
		return v.storeError(err)
	}
	v.logger.Info("Credential revoked", zap.String("credential_ref", ref.String()))
	return nil
}

func (v *Vault) storeError(err error) error {
	if errors.Is(err, integration.ErrRefNotFound) {
		return integration.ErrRefNotFound
	}
	return fmt.Errorf("%w: %w", integration.ErrVaultUnavailable, err)
}

// tenantCipher derives the tenant key for a key version
func (v *Vault) tenantCipher(tenantID uuid.UUID, version int) (cipher.AEAD, error) {
	if version != currentVersion {
		return nil, fmt.Errorf("vault: unsupported key version %d", version)
	}
	info := []byte(fmt.Sprintf("%s%s", hkdfInfoPrefix, tenantID))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, v.masterKey, nil, info), key); err != nil {
		return nil, fmt.Errorf("failed to derive tenant key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// associatedData binds a ciphertext to its row so rows cannot be swapped
func associatedData(cred *models.IntegrationCredentialModel) []byte {
	ad := make([]byte, 0, 32+len(cred.ChannelSlug))
	ad = append(ad, cred.ID[:]...)
	ad = append(ad, cred.TenantID[:]...)
	return append(ad, cred.ChannelSlug...)
}

// Ensure Vault implements the interface
var _ integration.CredentialVault = (*Vault)(nil)
