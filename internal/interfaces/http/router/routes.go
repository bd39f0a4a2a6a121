package router

import (
	"github.com/erp/marketplace/internal/infrastructure/auth"
	"github.com/erp/marketplace/internal/infrastructure/config"
	"github.com/erp/marketplace/internal/infrastructure/logger"
	"github.com/erp/marketplace/internal/interfaces/http/handler"
	"github.com/erp/marketplace/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers groups the HTTP handlers mounted by NewEngine
type Handlers struct {
	System      *handler.SystemHandler
	Channel     *handler.ChannelHandler
	Connect     *handler.ConnectHandler
	Integration *handler.IntegrationHandler
	Webhook     *handler.WebhookHandler
	Stats       *handler.StatsHandler
}

// Config carries the settings of the HTTP surface
type Config struct {
	HTTP        config.HTTPConfig
	Marketplace config.MarketplaceConfig
	JWTService  *auth.JWTService
	Logger      *zap.Logger
	// Tracing mounts the otelgin middleware
	Tracing bool
}

// NewEngine builds the gin engine with the full marketplace route table.
//
// Webhook deliveries are unauthenticated and limited per channel; every other
// /api/v1 route requires a bearer token and is limited per tenant.
func NewEngine(cfg Config, h Handlers) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			cfg.Logger.Warn("Invalid trusted proxies, ignoring", zap.Error(err))
		}
	}
	engine.Use(logger.GinMiddleware(cfg.Logger), logger.Recovery(cfg.Logger))
	if cfg.Tracing {
		engine.Use(middleware.Tracing(), middleware.SpanErrorMarker())
	}
	engine.Use(middleware.Secure())

	engine.GET("/health", h.System.Health)
	engine.GET("/ready", h.System.Ready)

	webhookLimiter := middleware.NewRateLimiterRPS(cfg.Marketplace.WebhookRateLimit, cfg.Marketplace.WebhookRateBurst)
	webhooks := engine.Group("/api/v1/webhooks",
		middleware.BodyLimit(cfg.Marketplace.WebhookBodyLimit),
		middleware.RateLimitByKey(webhookLimiter, middleware.KeyByParam("channel_slug")),
	)
	webhooks.POST("/:channel_slug", h.Webhook.Receive)

	authenticated := []gin.HandlerFunc{
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
		middleware.JWTAuthMiddlewareWithConfig(middleware.JWTMiddlewareConfig{
			JWTService: cfg.JWTService,
			Logger:     cfg.Logger,
		}),
	}
	if cfg.Tracing {
		authenticated = append(authenticated, middleware.SpanAttributes())
	}
	if cfg.HTTP.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		authenticated = append(authenticated, middleware.RateLimitByKey(limiter, middleware.KeyByActor))
	}

	NewRouter(engine, WithMiddleware(authenticated...)).
		Register(channelRoutes(h.Channel, h.Connect)).
		Register(adminRoutes(h.Channel)).
		Register(integrationRoutes(h.Integration)).
		Register(NewDomainGroup("oauth", "/oauth").POST("/callback", h.Connect.CompleteAuthorization)).
		Register(NewDomainGroup("enablements", "/enablements").GET("", h.Channel.ListMyEnablements)).
		Register(NewDomainGroup("stats", "/stats").GET("", h.Stats.TenantStats)).
		Setup()

	return engine
}

func channelRoutes(channels *handler.ChannelHandler, connect *handler.ConnectHandler) *DomainGroup {
	return NewDomainGroup("channels", "/channels").
		GET("", channels.ListChannels).
		GET("/:channel_slug", channels.GetChannel).
		POST("/:channel_slug/authorize", connect.BeginAuthorization).
		POST("/:channel_slug/connect", connect.ConnectWithAPIKey)
}

func adminRoutes(channels *handler.ChannelHandler) *DomainGroup {
	admin := NewDomainGroup("admin", "/admin")
	admin.Group("channels", "/channels").
		PUT("/:channel_slug/lifecycle", channels.SetLifecycle)
	admin.Group("tenants", "/tenants").
		GET("/:tenant_id/enablements", channels.ListTenantEnablements).
		PUT("/:tenant_id/enablements/:channel_slug", channels.SetEnablement)
	return admin
}

func integrationRoutes(integrations *handler.IntegrationHandler) *DomainGroup {
	return NewDomainGroup("integrations", "/integrations").
		GET("", integrations.List).
		GET("/:id", integrations.Get).
		PATCH("/:id", integrations.UpdateSettings).
		DELETE("/:id", integrations.Delete).
		POST("/:id/pause", integrations.Pause).
		POST("/:id/resume", integrations.Resume).
		POST("/:id/webhook/reset", integrations.ResetWebhook).
		POST("/:id/sync", integrations.TriggerSync).
		GET("/:id/logs", integrations.ListLogs)
}
