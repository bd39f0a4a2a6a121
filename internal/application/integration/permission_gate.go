package integration

import (
	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/google/uuid"
)

// PermissionGate is the two-tier authorization check. It holds no state: role and
// tenant come from the actor resolved by the identity provider.
type PermissionGate struct{}

// NewPermissionGate creates a new PermissionGate
func NewPermissionGate() *PermissionGate {
	return &PermissionGate{}
}

// CanToggleChannel reports whether the actor may change the channel catalog or enablements
func (g *PermissionGate) CanToggleChannel(actor integration.Actor) bool {
	return actor.Role == integration.RolePlatformAdmin
}

// CanOperateTenant reports whether the actor may manage integrations of tenantID
func (g *PermissionGate) CanOperateTenant(actor integration.Actor, tenantID uuid.UUID) bool {
	if tenantID == uuid.Nil || actor.TenantID != tenantID {
		return false
	}
	return actor.Role.AtLeastOperator()
}

// CanManageIntegration reports whether the actor belongs to the integration's
// tenant and holds at least operator level there
func (g *PermissionGate) CanManageIntegration(actor integration.Actor, i *integration.Integration) bool {
	if i == nil || !i.BelongsTo(actor.TenantID) {
		return false
	}
	return actor.Role.AtLeastOperator()
}

// RequireToggleChannel returns ErrForbidden unless the actor is a platform admin
func (g *PermissionGate) RequireToggleChannel(actor integration.Actor) error {
	if !g.CanToggleChannel(actor) {
		return integration.ErrForbidden
	}
	return nil
}

// RequireOperator returns ErrForbidden unless the actor operates its own tenant
func (g *PermissionGate) RequireOperator(actor integration.Actor) error {
	if !g.CanOperateTenant(actor, actor.TenantID) {
		return integration.ErrForbidden
	}
	return nil
}

// RequireManageIntegration returns ErrForbidden for foreign or under-privileged actors
func (g *PermissionGate) RequireManageIntegration(actor integration.Actor, i *integration.Integration) error {
	if !g.CanManageIntegration(actor, i) {
		return integration.ErrForbidden
	}
	return nil
}
