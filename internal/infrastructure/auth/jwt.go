package auth

import (
	"errors"
	"time"

	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/erp/marketplace/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrMissingTenantID  = errors.New("missing tenant_id in claims")
	ErrMissingUserID    = errors.New("missing user_id in claims")
	ErrUnknownRole      = errors.New("unknown role in claims")
)

// Claims are the identity claims issued by the platform identity provider.
// The marketplace core only verifies them.
type Claims struct {
	jwt.RegisteredClaims
	TenantID     string   `json:"tenant_id,omitempty"`
	UserID       string   `json:"user_id"`
	Role         string   `json:"role"`
	PlanFeatures []string `json:"plan_features,omitempty"`
}

// Actor converts the claims into the caller identity used by the services
func (c *Claims) Actor() (integration.Actor, error) {
	userID, err := uuid.Parse(c.UserID)
	if err != nil {
		return integration.Actor{}, ErrMissingUserID
	}
	role := integration.Role(c.Role)
	if !role.IsValid() {
		return integration.Actor{}, ErrUnknownRole
	}

	actor := integration.Actor{
		UserID:       userID,
		Role:         role,
		PlanFeatures: c.PlanFeatures,
	}
	if c.TenantID == "" {
		if role != integration.RolePlatformAdmin {
			return integration.Actor{}, ErrMissingTenantID
		}
		return actor, nil
	}
	tenantID, err := uuid.Parse(c.TenantID)
	if err != nil {
		return integration.Actor{}, ErrMissingTenantID
	}
	actor.TenantID = tenantID
	return actor, nil
}

// JWTService verifies caller tokens
type JWTService struct {
	secret []byte
	issuer string
}

// NewJWTService creates a new JWT service
func NewJWTService(cfg config.JWTConfig) *JWTService {
	return &JWTService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
	}
}

// GenerateTokenInput contains input for token generation
type GenerateTokenInput struct {
	TenantID     uuid.UUID
	UserID       uuid.UUID
	Role         integration.Role
	PlanFeatures []string
}

// GenerateToken signs a token with the shared secret.
// Production tokens come from the identity provider; this is used by tests and local tooling.
func (s *JWTService) GenerateToken(input GenerateTokenInput, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.issuer,
			Subject:   input.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		UserID:       input.UserID.String(),
		Role:         string(input.Role),
		PlanFeatures: input.PlanFeatures,
	}
	if input.TenantID != uuid.Nil {
		claims.TenantID = input.TenantID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken parses and verifies a token and returns its claims
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, opts...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrTokenNotYetValid
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if claims.UserID == "" {
		return nil, ErrMissingUserID
	}
	return claims, nil
}

// ValidateActor verifies a token and resolves the caller identity
func (s *JWTService) ValidateActor(tokenString string) (*Claims, integration.Actor, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, integration.Actor{}, err
	}
	actor, err := claims.Actor()
	if err != nil {
		return nil, integration.Actor{}, err
	}
	return claims, actor, nil
}
