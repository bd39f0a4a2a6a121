package integration

import (
	"context"

	"github.com/erp/marketplace/internal/domain/integration"
)

// AuthStrategy is one authentication scheme. The negotiator picks the strategy
// from the channel's declared auth type, never from the channel name.
type AuthStrategy interface {
	AuthType() integration.AuthType
	// Revalidate confirms stored credentials still work before a resume
	Revalidate(ctx context.Context, channel *integration.MarketplaceChannel, creds integration.Credentials) (*integration.AccountInfo, error)
}

// negotiated is the output of a successful strategy run
type negotiated struct {
	credentials integration.Credentials
	account     integration.AccountInfo
}
