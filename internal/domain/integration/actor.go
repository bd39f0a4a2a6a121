package integration

import "github.com/google/uuid"

// Role is the caller's capability level as supplied by the identity provider
type Role string

const (
	RolePlatformAdmin Role = "platform-admin"
	RoleTenantAdmin   Role = "tenant-admin"
	RoleOperator      Role = "operator"
)

// IsValid returns true if the role is valid
func (r Role) IsValid() bool {
	switch r {
	case RolePlatformAdmin, RoleTenantAdmin, RoleOperator:
		return true
	default:
		return false
	}
}

// AtLeastOperator reports whether the role can manage tenant integrations
func (r Role) AtLeastOperator() bool {
	return r == RoleTenantAdmin || r == RoleOperator
}

// Actor is the authenticated caller of a command.
// Platform admins act in platform scope and carry no tenant.
type Actor struct {
	UserID       uuid.UUID
	TenantID     uuid.UUID
	Role         Role
	PlanFeatures []string
}

// IsPlatformScope reports whether the actor is a platform admin without tenant
func (a Actor) IsPlatformScope() bool {
	return a.Role == RolePlatformAdmin
}
