package routes

import (
	"net/http"

	"github.com/batchtrack/batchtrack/internal/handlers"
	"github.com/batchtrack/batchtrack/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter creates the Gin router and defines all our API routes.
// It takes our 'Handlers' struct as a dependency.
func SetupRouter(h *handlers.Handlers) *gin.Engine {
	if h.Cfg.Core.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(h.Cfg.Security.AllowedOrigin))
	router.Use(middleware.RequestLogger(h.Log))
	router.Use(middleware.MetricsMiddleware(h.Metrics))

	// Prometheus scrape endpoint, outside /v1 and outside auth.
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// One shared limiter for the whole API. On public routes the key is the
	// client IP; on authenticated groups it runs AFTER AuthMiddleware so the
	// key is the user ID from the token.
	limiter := middleware.NewRateLimiter(h.Cfg.Security.RateLimitPerSec, h.Cfg.Security.RateLimitBurst)

	v1 := router.Group("/v1")
	{
		// --- Public Routes (IP-keyed rate limit) ---
		public := v1.Group("/")
		public.Use(limiter.Handler())
		{
			public.GET("/ping", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{
					"message": "pong! The BatchTrack API is running.",
				})
			})

			// --- Auth Routes ---
			public.POST("/register", h.RegisterOrganization)
			public.POST("/login", h.Login)
			public.POST("/auth/verify-email", h.VerifyEmail)
			public.POST("/auth/resend-code", h.ResendVerificationCode)

			// --- Public Marketing Routes ---
			public.GET("/tiers", h.GetSubscriptionTiers)
			public.POST("/waitlist", h.JoinWaitlist)

			// --- Billing Provider Webhooks (verified by signature, not JWT) ---
			public.POST("/billing/webhook/:provider", h.BillingWebhook)
		}

		// --- Protected Routes (Login Required) ---
		// Everything under /v1/org is scoped to the caller's organization
		// by the orgID the middleware puts in the context.
		org := v1.Group("/org")
		org.Use(middleware.AuthMiddleware(h.DB))
		org.Use(limiter.Handler())
		{
			org.GET("/me", h.GetMyOrganization)
			org.GET("/dashboard", h.GetOrgStats)
			org.GET("/subscription", h.GetMySubscription)

			// Inventory Routes
			org.POST("/inventory", h.CreateInventoryItem)
			org.GET("/inventory", h.GetMyInventoryItems)
			org.PUT("/inventory/:id", h.UpdateInventoryItem)
			org.DELETE("/inventory/:id", h.ArchiveInventoryItem)
			org.POST("/inventory/:id/restock", h.RestockItem)
			org.POST("/inventory/:id/recount", h.RecountItem)
			org.POST("/inventory/:id/write-off", h.WriteOffItem)
			org.GET("/inventory/:id/lots", h.GetItemLots)
			org.GET("/inventory/:id/history", h.GetItemHistory)

			// Recipe Routes
			org.POST("/recipes", h.CreateRecipe)
			org.GET("/recipes", h.GetMyRecipes)
			org.GET("/recipes/:id", h.GetRecipe)
			org.PATCH("/recipes/:id/activate", h.ActivateRecipe)
			org.DELETE("/recipes/:id", h.ArchiveRecipe)
			org.POST("/recipes/:id/versions", h.NewRecipeVersion)

			// Batch Routes
			org.POST("/batches", h.PlanBatch)
			org.GET("/batches", h.GetMyBatches)
			org.GET("/batches/:id", h.GetBatchDetails)
			org.POST("/batches/:id/start", h.StartBatch)
			org.POST("/batches/:id/complete", h.CompleteBatch)
			org.POST("/batches/:id/fail", h.FailBatch)
			org.POST("/batches/:id/cancel", h.CancelBatch)

			// Product Routes
			org.POST("/products", h.CreateProduct)
			org.GET("/products", h.GetMyProducts)
			org.PUT("/products/:id", h.UpdateProduct)
			org.POST("/products/:id/skus", h.CreateProductSKU)
			org.GET("/products/:id/skus", h.GetProductSKUs)

			// Report Routes
			org.GET("/reports/missing-ingredients", h.GetMissingIngredients)
			org.GET("/reports/batch-costs", h.GetBatchCostReport)

			// --- Org-Admin Routes (Login + owner/admin Role Required) ---
			orgAdmin := org.Group("/")
			orgAdmin.Use(middleware.RequireOrgAdmin())
			{
				orgAdmin.PUT("/me", h.UpdateMyOrganization)
				orgAdmin.GET("/members", h.ListMembers)
				orgAdmin.POST("/members", h.InviteMember)
				orgAdmin.DELETE("/members/:id", h.DeactivateMember)
			}
		}

		// --- Platform-Admin Routes (Login + platform_admin Role Required) ---
		admin := v1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(h.DB))
		admin.Use(limiter.Handler())
		admin.Use(middleware.RequirePlatformAdmin())
		{
			admin.GET("/stats", h.GetPlatformStats)
			admin.GET("/organizations", h.ListOrganizations)
			admin.GET("/waitlist", h.GetWaitlist)
			admin.GET("/settings", h.GetSettings)
			admin.PUT("/settings/:key", h.UpdateSetting)
			admin.PUT("/tiers/:key", h.UpsertTier)
			admin.POST("/subscriptions", h.AssignSubscription)
		}
	}

	return router
}
