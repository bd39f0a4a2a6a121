package integration

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
)

// DefaultStateTTL bounds how long an authorization may stay open
const DefaultStateTTL = 10 * time.Minute

// OAuthState is a single-use token bound to a tenant and channel.
// It is the only thing persisted across the external redirect.
type OAuthState struct {
	Token       string
	TenantID    uuid.UUID
	ChannelSlug string
	ActorID     uuid.UUID
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// NewOAuthState issues a fresh random token for the pair
func NewOAuthState(tenantID uuid.UUID, slug string, actorID uuid.UUID, ttl time.Duration, now time.Time) (*OAuthState, error) {
	if tenantID == uuid.Nil {
		return nil, ErrInvalidTenantID
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return &OAuthState{
		Token:       base64.RawURLEncoding.EncodeToString(buf),
		TenantID:    tenantID,
		ChannelSlug: slug,
		ActorID:     actorID,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}, nil
}

// IsExpired reports whether the token can no longer be redeemed
func (s *OAuthState) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// StateStore keeps pending OAuth states.
// Issue replaces any unconsumed token for the same (tenant, channel) pair.
// Consume is atomic: a token is returned at most once, afterwards ErrInvalidState.
type StateStore interface {
	Issue(ctx context.Context, state *OAuthState) error
	Consume(ctx context.Context, token string) (*OAuthState, error)
}
