// Package integration contains the Marketplace Integration bounded context.
// It models how a tenant connects external sales channels and keeps them in sync.
//
// Key concepts:
//   - MarketplaceChannel: platform-owned catalog entry (Mercado Livre, Shopee, Amazon, ...)
//   - ChannelEnablement: per-tenant flag that makes a channel usable
//   - Integration: a tenant's live connection to a channel, created only by auth negotiation
//   - SyncLog: append-only audit record of a sync pass
//   - CredentialVault: opaque secret store addressed by CredentialRef
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
