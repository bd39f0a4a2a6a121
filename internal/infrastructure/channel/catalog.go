package channel

import (
	"github.com/erp/marketplace/internal/domain/integration"
)

// Plan features gating channel use
const (
	FeatureMarketplace = "marketplace"
	FeatureERPHub      = "erp_hub"
)

// Definition is a built-in channel: its catalog entry plus the payload
// conventions of its webhooks.
type Definition struct {
	Slug                 string
	DisplayName          string
	AuthType             integration.AuthType
	Description          string
	CredentialFields     []string
	RequiredPlanFeatures []string
	// AccountField names the payload and token field carrying the remote account id
	AccountField string
	// EventField names the payload field carrying the event type
	EventField string
}

// Channel returns the catalog entry for the definition
func (d Definition) Channel() integration.MarketplaceChannel {
	return integration.MarketplaceChannel{
		Slug:                 d.Slug,
		DisplayName:          d.DisplayName,
		AuthType:             d.AuthType,
		LifecycleStatus:      integration.LifecycleActive,
		RequiredPlanFeatures: append([]string(nil), d.RequiredPlanFeatures...),
		Description:          d.Description,
		CredentialFields:     append([]string(nil), d.CredentialFields...),
	}
}

// BuiltinCatalog returns the channels seeded at startup
func BuiltinCatalog() []Definition {
	return []Definition{
		{
			Slug:                 "mercado_livre",
			DisplayName:          "Mercado Livre",
			AuthType:             integration.AuthTypeOAuth2,
			Description:          "Mercado Livre marketplace, connected through the seller's OAuth authorization.",
			RequiredPlanFeatures: []string{FeatureMarketplace},
			AccountField:         "user_id",
			EventField:           "topic",
		},
		{
			Slug:                 "shopee",
			DisplayName:          "Shopee",
			AuthType:             integration.AuthTypeAPIKey,
			Description:          "Shopee Open Platform using partner credentials and a shop id.",
			CredentialFields:     []string{"partner_id", "partner_key", "shop_id"},
			RequiredPlanFeatures: []string{FeatureMarketplace},
			AccountField:         "shop_id",
			EventField:           "code",
		},
		{
			Slug:                 "amazon",
			DisplayName:          "Amazon",
			AuthType:             integration.AuthTypeAPIKey,
			Description:          "Amazon Seller Central using the seller id and MWS auth token.",
			CredentialFields:     []string{"seller_id", "mws_token"},
			RequiredPlanFeatures: []string{FeatureMarketplace},
			AccountField:         "seller_id",
			EventField:           "notification_type",
		},
		{
			Slug:                 "magalu",
			DisplayName:          "Magalu",
			AuthType:             integration.AuthTypeOAuth2,
			Description:          "Magazine Luiza marketplace through ID Magalu OAuth.",
			RequiredPlanFeatures: []string{FeatureMarketplace},
			AccountField:         "seller_id",
			EventField:           "topic",
		},
		{
			Slug:                 "b2w",
			DisplayName:          "B2W (Americanas)",
			AuthType:             integration.AuthTypeAPIKey,
			Description:          "Americanas marketplace using the API key and account manager key.",
			CredentialFields:     []string{"api_key", "account_manager_key", "seller_id"},
			RequiredPlanFeatures: []string{FeatureMarketplace},
			AccountField:         "seller_id",
			EventField:           "event",
		},
		{
			Slug:                 "bling",
			DisplayName:          "Bling",
			AuthType:             integration.AuthTypeOAuth2,
			Description:          "Bling ERP hub through OAuth authorization.",
			RequiredPlanFeatures: []string{FeatureMarketplace, FeatureERPHub},
			AccountField:         "company_id",
			EventField:           "event",
		},
	}
}

// Channels returns the catalog entries of defs
func Channels(defs []Definition) []integration.MarketplaceChannel {
	out := make([]integration.MarketplaceChannel, len(defs))
	for i, def := range defs {
		out[i] = def.Channel()
	}
	return out
}
