// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Key Principles:
// 1. Domain entities should be free of GORM tags and infrastructure concerns
// 2. Persistence models contain all GORM annotations and table mappings
// 3. Mappers convert between domain entities and persistence models
// 4. Repositories use persistence models for database operations
//
// Structure:
// - base.go: BaseModel shared by the tenant-owned models
// - channel.go, enablement.go: platform catalog and per-tenant enablement
// - integration.go, sync_log.go: tenant integrations and their audit trail
// - credential.go: encrypted vault rows, never mapped to a domain entity
package models
