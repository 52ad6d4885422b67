// Package gateway assembles the HTTP API in front of the service handlers.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pos-system/internal/database/models"
	"pos-system/internal/gateway/handlers"
	"pos-system/internal/gateway/middleware"
	catalog "pos-system/internal/services/catalog/handler"
	identity "pos-system/internal/services/identity/handler"
	ledger "pos-system/internal/services/ledger/handler"
	loyalty "pos-system/internal/services/loyalty/handler"
	promotions "pos-system/internal/services/promotions/handler"
	"pos-system/internal/utils"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger func(ctx context.Context) error

type Deps struct {
	Identity   *identity.IdentityHandler
	Catalog    *catalog.CatalogHandler
	Promotions *promotions.PromotionsHandler
	Loyalty    *loyalty.LoyaltyHandler
	Ledger     *ledger.LedgerHandler

	// RemoteLedger, when set, serves purchase and refund creation instead
	// of the in-process ledger.
	RemoteLedger handlers.Ledger

	JWT       *utils.JWTManager
	Metrics   *middleware.Metrics
	RateLimit gin.HandlerFunc

	// Checks are reported by /health, keyed by dependency name.
	Checks map[string]Pinger
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS())
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware())
	}
	if d.RateLimit != nil {
		r.Use(d.RateLimit)
	}

	var ledgerService handlers.Ledger = d.Ledger
	if d.RemoteLedger != nil {
		ledgerService = d.RemoteLedger
	}

	identityHandler := handlers.NewIdentityHTTPHandler(d.Identity, d.JWT)
	catalogHandler := handlers.NewCatalogHTTPHandler(d.Catalog)
	promotionsHandler := handlers.NewPromotionsHTTPHandler(d.Promotions)
	loyaltyHandler := handlers.NewLoyaltyHTTPHandler(d.Loyalty)
	ledgerHandler := handlers.NewLedgerHTTPHandler(ledgerService, d.Ledger)

	gate := func(p models.Permission) gin.HandlerFunc {
		return middleware.RequirePermission(d.Identity, p)
	}

	// --- Public API Group ---
	public := r.Group("/api/v1")
	{
		public.POST("/auth/login", identityHandler.Login)
	}

	// --- Protected API Group ---
	protected := r.Group("/api/v1")
	protected.Use(middleware.JWTAuth(d.JWT))
	{
		employees := protected.Group("/employees", gate(models.PermissionA))
		{
			employees.POST("", identityHandler.CreateEmployee)
			employees.GET("", identityHandler.ListEmployees)
			employees.GET("/:id", identityHandler.GetEmployee)
			employees.PUT("/:id/active", identityHandler.SetEmployeeActive)
			employees.DELETE("/:id", identityHandler.DeleteEmployee)
			employees.POST("/:id/roles/:role_id", identityHandler.AssignRole)
			employees.DELETE("/:id/roles/:role_id", identityHandler.RevokeRole)
			employees.GET("/:id/audit", identityHandler.ListRoleAudit)
		}

		roles := protected.Group("/roles", gate(models.PermissionA))
		{
			roles.POST("", identityHandler.CreateRole)
			roles.GET("", identityHandler.ListRoles)
			roles.GET("/:id", identityHandler.GetRole)
			roles.PUT("/:id/active", identityHandler.SetRoleActive)
			roles.DELETE("/:id", identityHandler.DeleteRole)
			roles.POST("/:id/permissions", identityHandler.GrantPermission)
			roles.DELETE("/:id/permissions", identityHandler.RevokePermission)
			roles.GET("/:id/audit", identityHandler.ListPermissionAudit)
		}

		products := protected.Group("/products", gate(models.PermissionB))
		{
			products.POST("", catalogHandler.CreateProduct)
			products.GET("", catalogHandler.ListProducts)
			products.GET("/:id", catalogHandler.GetProduct)
			products.PUT("/:id/active", catalogHandler.SetProductActive)
			products.DELETE("/:id", catalogHandler.DeleteProduct)
			products.POST("/:id/stock", catalogHandler.AdjustStock)
			products.POST("/:id/prices", catalogHandler.SetPrice)
			products.GET("/:id/price", catalogHandler.GetPrice)
			products.GET("/:id/prices", catalogHandler.PriceHistory)
		}
		protected.GET("/skus/:sku", gate(models.PermissionB), catalogHandler.GetProductBySKU)

		categories := protected.Group("/categories", gate(models.PermissionB))
		{
			categories.POST("", catalogHandler.CreateCategory)
			categories.GET("", catalogHandler.ListCategories)
			categories.DELETE("/:id", catalogHandler.DeleteCategory)
			categories.GET("/:id/products", catalogHandler.ListCategoryProducts)
			categories.POST("/:id/products/:product_id", catalogHandler.AddProductToCategory)
			categories.DELETE("/:id/products/:product_id", catalogHandler.RemoveProductFromCategory)
		}

		promos := protected.Group("/promotions", gate(models.PermissionB))
		{
			promos.POST("", promotionsHandler.CreatePromotion)
			promos.GET("", promotionsHandler.ListPromotions)
			promos.GET("/:id", promotionsHandler.GetPromotion)
			promos.PUT("/:id", promotionsHandler.UpdatePromotion)
			promos.POST("/:id/deactivate", promotionsHandler.DeactivatePromotion)
			promos.POST("/:id/activate", promotionsHandler.ActivatePromotion)
			promos.GET("/:id/audit", promotionsHandler.ListAudit)
		}

		rewards := protected.Group("/rewards", gate(models.PermissionB))
		{
			rewards.POST("", loyaltyHandler.SetRewardsSetting)
			rewards.GET("", loyaltyHandler.CurrentRewards)
			rewards.GET("/history", loyaltyHandler.RewardsHistory)
		}

		customers := protected.Group("/customers", gate(models.PermissionC))
		{
			customers.POST("", loyaltyHandler.CreateCustomer)
			customers.GET("", loyaltyHandler.FindCustomer)
			customers.GET("/:id", loyaltyHandler.GetCustomer)
			customers.GET("/:id/purchases", ledgerHandler.ListCustomerPurchases)
		}

		purchases := protected.Group("/purchases", gate(models.PermissionC))
		{
			purchases.POST("", ledgerHandler.CreatePurchase)
			purchases.GET("/:id", ledgerHandler.GetPurchase)
			purchases.DELETE("/:id", ledgerHandler.DeletePurchase)
			purchases.POST("/:id/refunds", ledgerHandler.CreateRefund)
			purchases.GET("/:id/refunds", ledgerHandler.ListRefunds)
		}
	}

	r.GET("/health", healthCheckHandler(d.Checks))
	if d.Metrics != nil {
		r.GET("/metrics", d.Metrics.Handler())
	}

	return r
}

func healthCheckHandler(checks map[string]Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		status := "healthy"
		httpStatus := http.StatusOK

		services := map[string]string{}
		for name, ping := range checks {
			if err := ping(ctx); err != nil {
				services[name] = "unavailable: " + err.Error()
				status = "degraded"
				httpStatus = http.StatusServiceUnavailable
				continue
			}
			services[name] = "healthy"
		}

		c.JSON(httpStatus, gin.H{
			"status":    status,
			"services":  services,
			"timestamp": time.Now(),
		})
	}
}
