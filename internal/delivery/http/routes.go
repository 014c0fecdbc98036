package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pantrylens/backend/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, logger *zap.Logger) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	router.GET("/health", handler.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		offerRoutes := v1.Group("/offers")
		{
			offerRoutes.GET("/best", handler.BestOffer)
			offerRoutes.POST("/refresh", handler.RefreshOffers)
		}

		list := v1.Group("/shopping-list")
		{
			list.POST("/generate", handler.GenerateShoppingList)
			list.POST("/notes", handler.UpdateShoppingListNotes)
			list.DELETE("/notes", handler.ClearShoppingListNotes)
		}

		v1.GET("/forecast/:productId", handler.ForecastConsumption)
		v1.GET("/products/data/:barcode", handler.GetProductData)
		v1.POST("/products/match", handler.MatchProducts)
		v1.POST("/products/reconcile", handler.ReconcileProducts)
		v1.POST("/quantity/parse", handler.ParseQuantity)
	}

	return router
}
