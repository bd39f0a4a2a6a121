package integration

import (
	"context"
	"slices"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ---------------------------------------------------------------------------
// AuthType
// ---------------------------------------------------------------------------

// AuthType identifies the authentication scheme a channel requires
type AuthType string

const (
	// AuthTypeOAuth2 is the OAuth2 authorization-code flow
	AuthTypeOAuth2 AuthType = "oauth2"
	// AuthTypeAPIKey is a static API key/secret pair supplied by the tenant
	AuthTypeAPIKey AuthType = "api_key"
)

// IsValid returns true if the auth type is valid
func (a AuthType) IsValid() bool {
	switch a {
	case AuthTypeOAuth2, AuthTypeAPIKey:
		return true
	default:
		return false
	}
}

// String returns the string representation of AuthType
func (a AuthType) String() string {
	return string(a)
}

// ---------------------------------------------------------------------------
// LifecycleStatus
// ---------------------------------------------------------------------------

// LifecycleStatus is the platform-controlled status of a catalog entry
type LifecycleStatus string

const (
	LifecycleActive      LifecycleStatus = "active"
	LifecycleMaintenance LifecycleStatus = "maintenance"
	LifecycleInactive    LifecycleStatus = "inactive"
)

// IsValid returns true if the lifecycle status is valid
func (s LifecycleStatus) IsValid() bool {
	switch s {
	case LifecycleActive, LifecycleMaintenance, LifecycleInactive:
		return true
	default:
		return false
	}
}

// String returns the string representation of LifecycleStatus
func (s LifecycleStatus) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// MarketplaceChannel
// ---------------------------------------------------------------------------

// MarketplaceChannel is a catalog entry describing an external sales channel.
// Channels are never deleted; they are deactivated by moving to LifecycleInactive.
type MarketplaceChannel struct {
	Slug                 string
	DisplayName          string
	AuthType             AuthType
	LifecycleStatus      LifecycleStatus
	RequiredPlanFeatures []string
	Description          string
	// CredentialFields lists the fields an API-key connect must supply.
	// OAuth2 channels leave it empty.
	CredentialFields []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewMarketplaceChannel creates a validated catalog entry in the active state
func NewMarketplaceChannel(slug, displayName string, authType AuthType, now time.Time) (*MarketplaceChannel, error) {
	normalized := NormalizeSlug(slug)
	if normalized == "" {
		return nil, ErrInvalidChannelSlug
	}
	if !authType.IsValid() {
		return nil, ErrInvalidAuthType
	}
	if displayName == "" {
		displayName = normalized
	}
	return &MarketplaceChannel{
		Slug:            normalized,
		DisplayName:     displayName,
		AuthType:        authType,
		LifecycleStatus: LifecycleActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// IsActive reports whether new integrations may be created against the channel
func (c *MarketplaceChannel) IsActive() bool {
	return c.LifecycleStatus == LifecycleActive
}

// SetLifecycleStatus moves the channel to the given status.
// It returns false when the channel was already in that status.
func (c *MarketplaceChannel) SetLifecycleStatus(status LifecycleStatus, now time.Time) (bool, error) {
	if !status.IsValid() {
		return false, ErrInvalidLifecycle
	}
	if c.LifecycleStatus == status {
		return false, nil
	}
	c.LifecycleStatus = status
	c.UpdatedAt = now
	return true, nil
}

// MissingCredentialFields returns the required fields absent (or blank) in fields
func (c *MarketplaceChannel) MissingCredentialFields(fields map[string]string) []string {
	var missing []string
	for _, name := range c.CredentialFields {
		if strings.TrimSpace(fields[name]) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// CoveredByPlan reports whether every required plan feature is in features
func (c *MarketplaceChannel) CoveredByPlan(features []string) bool {
	for _, required := range c.RequiredPlanFeatures {
		if !slices.Contains(features, required) {
			return false
		}
	}
	return true
}

// NormalizeSlug lower-cases a channel slug, strips diacritics and collapses
// separators to underscores, so "Magalú" and "magalu" address the same entry.
func NormalizeSlug(raw string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.TrimSpace(raw))
	if err != nil {
		return ""
	}

	var b strings.Builder
	lastSep := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSep = false
		case r == '-' || r == '_' || r == ' ' || r == '.':
			if b.Len() > 0 && !lastSep {
				b.WriteByte('_')
				lastSep = true
			}
		default:
			return ""
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// ---------------------------------------------------------------------------
// ChannelRepository
// ---------------------------------------------------------------------------

// ChannelRepository persists the platform-owned channel catalog
type ChannelRepository interface {
	// List returns all channels ordered by slug
	List(ctx context.Context) ([]MarketplaceChannel, error)
	// FindBySlug returns ErrChannelNotFound when the slug is unknown
	FindBySlug(ctx context.Context, slug string) (*MarketplaceChannel, error)
	// Save inserts or updates a channel
	Save(ctx context.Context, channel *MarketplaceChannel) error
}
