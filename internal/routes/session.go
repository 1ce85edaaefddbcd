package routes

import (
	"github.com/gin-gonic/gin"

	"daemon/internal/handlers"
)

// SetupSessionRoutes registers the auto-trade session endpoints
func SetupSessionRoutes(r *gin.Engine) {
	sessions := r.Group("/sessions")
	{
		sessions.POST("/start", handlers.StartSession)
		sessions.POST("/stop", handlers.StopSession)
		sessions.GET("/:user_id", handlers.GetSession)
	}
}
