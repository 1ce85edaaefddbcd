package routes

import (
	"github.com/gin-gonic/gin"

	"daemon/internal/handlers"
	"daemon/internal/middleware"
)

// SetupAdminSettingRoutes registers the token-guarded admin endpoints
func SetupAdminSettingRoutes(r *gin.Engine) {
	admin := r.Group("/admin", middleware.AdminAuth())
	{
		admin.GET("/settings/:key", handlers.GetAdminSetting)
		admin.PUT("/settings/:key", handlers.PutAdminSetting)
	}
}
