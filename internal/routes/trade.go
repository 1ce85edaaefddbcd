package routes

import (
	"github.com/gin-gonic/gin"

	"daemon/internal/handlers"
)

// SetupTradeRoutes registers the trade history endpoints
func SetupTradeRoutes(r *gin.Engine) {
	r.GET("/trades", handlers.ListTrades)
}
