package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetAdminSetting returns the current value of one runtime setting
func GetAdminSetting(c *gin.Context) {
	key := c.Param("key")

	value, err := svc.Settings.Get(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"key": key, "value": value})
}

// PutAdminSettingRequest is the request body for updating a setting
type PutAdminSettingRequest struct {
	Value string `json:"value" binding:"required"`
}

// PutAdminSetting validates and stores a runtime setting. The caller
// identity comes from the admin auth middleware.
func PutAdminSetting(c *gin.Context) {
	key := c.Param("key")

	var request PutAdminSettingRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updatedBy := c.GetString("admin_caller")
	if updatedBy == "" {
		updatedBy = "admin"
	}

	if err := svc.Settings.Put(c.Request.Context(), key, request.Value, updatedBy); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"key": key, "value": request.Value})
}
