package routes

import (
	"github.com/gin-gonic/gin"

	"daemon/internal/handlers"
)

// SetupWalletRoutes registers the custodial wallet endpoints
func SetupWalletRoutes(r *gin.Engine) {
	wallets := r.Group("/wallets")
	{
		wallets.POST("", handlers.CreateWallet)
		wallets.GET("/:user_id", handlers.GetWallet)
		wallets.DELETE("/:user_id", handlers.DeleteWallet)
		wallets.GET("/:user_id/balance", handlers.GetWalletBalance)
	}
}
