package routes

import (
	"github.com/gin-gonic/gin"

	"daemon/internal/handlers"
)

// SetupFollowerRoutes registers the copy-trade graph endpoints
func SetupFollowerRoutes(r *gin.Engine) {
	followers := r.Group("/followers")
	{
		followers.POST("", handlers.Follow)
		followers.DELETE("", handlers.Unfollow)
		followers.GET("/:lead_address", handlers.ListFollowers)
	}
}
