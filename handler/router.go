package handler

import (
	"net/http"
	"time"

	"nfcunha/vigil/core/service"
	"nfcunha/vigil/utils/config"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Dependencies are the services the router exposes.
type Dependencies struct {
	Config    *config.Config
	Auth      *service.AuthService
	Limiter   *service.RateLimiter
	Sampler   service.SnapshotSampler
	System    *service.SystemService
	Workloads *service.WorkloadController
	Logs      *service.LogService
	Hub       *service.Hub
	Metrics   http.Handler // nil disables /metrics
}

// NewRouter builds the gin engine with every route under the configured base path.
func NewRouter(d Dependencies) *gin.Engine {
	cfg := d.Config

	engine := gin.New()
	engine.Use(gin.Recovery())
	if cfg.Server.Mode != "release" {
		engine.Use(gin.Logger())
	}

	engine.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	gateway := SessionGateway(d.Auth, cfg.Session.CookieName, cfg.Server.BasePath)
	apiLimit := RateLimit(d.Limiter, service.BucketAPI, SessionOrIP)
	authLimit := RateLimit(d.Limiter, service.BucketAuth, ClientIP)

	authHandler := NewAuthHandler(d.Auth, cfg.Session.CookieName, cfg.Session.CookieSecure)
	systemHandler := NewSystemHandler(d.Sampler, d.System, cfg)

	api := engine.Group(cfg.Server.BasePath)
	{
		api.GET("/health", systemHandler.Health)
		api.POST("/login", authLimit, authHandler.Login)

		if cfg.Features.Push {
			pushHandler := NewPushHandler(d.Auth, d.Hub, cfg.Session.CookieName, cfg.Push.QueueSize, cfg.Push.WriteTimeout, cfg.Server.AllowedOrigins)
			api.GET("/ws", pushHandler.Serve)
		}

		protected := api.Group("", gateway, apiLimit)
		{
			protected.POST("/logout", authHandler.Logout)
			protected.GET("/auth/check", authHandler.Check)
			protected.GET("/client/config", systemHandler.ClientConfig)

			protected.GET("/system/stats", systemHandler.Stats)
			protected.GET("/system/info", systemHandler.Info)
			protected.GET("/security/connections", systemHandler.Connections)

			workloadHandler := NewWorkloadHandler(d.Workloads)
			workloads := protected.Group("/workloads", RequireFeature(cfg.Features.Workloads, "Workload management is disabled"))
			{
				workloads.GET("", workloadHandler.List)
				workloads.POST("/batch/:action", workloadHandler.Batch)
				workloads.POST("/:id/:action", workloadHandler.Act)
			}

			logHandler := NewLogHandler(d.Logs)
			protected.GET("/logs", RequireFeature(cfg.Features.Logs, "Log access is disabled"), logHandler.Tail)

			if d.Metrics != nil {
				protected.GET("/metrics", gin.WrapH(d.Metrics))
			}
		}
	}

	engine.GET("/login", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "POST credentials to " + cfg.Server.BasePath + "/login"})
	})
	engine.NoRoute(gateway, func(c *gin.Context) {
		respondError(c, http.StatusNotFound, "not_found", "Not found", nil)
	})

	return engine
}
