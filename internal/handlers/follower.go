package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"daemon/internal/copytrade"
)

// FollowRequest is the request body for creating or updating a follow edge
type FollowRequest struct {
	FollowerAddress string   `json:"follower_address" binding:"required"`
	LeadAddress     string   `json:"lead_address" binding:"required"`
	CopyTrades      *bool    `json:"copy_trades"`
	StopLossPct     *float64 `json:"stop_loss_pct"`
	TakeProfitPct   *float64 `json:"take_profit_pct"`
}

// Follow creates or updates a follower edge. Re-following replaces the
// edge settings in place.
func Follow(c *gin.Context) {
	var request FollowRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	copyTrades := true
	if request.CopyTrades != nil {
		copyTrades = *request.CopyTrades
	}

	err := svc.Following.Follow(c.Request.Context(), request.FollowerAddress, request.LeadAddress, copytrade.FollowSettings{
		CopyTrades:    copyTrades,
		StopLossPct:   request.StopLossPct,
		TakeProfitPct: request.TakeProfitPct,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"follower_address": request.FollowerAddress,
		"lead_address":     request.LeadAddress,
	})
}

// UnfollowRequest is the request body for removing follow edges
type UnfollowRequest struct {
	FollowerAddress string `json:"follower_address" binding:"required"`
	LeadAddress     string `json:"lead_address"`
}

// Unfollow removes one edge, or every edge of the follower when no lead
// address is given.
func Unfollow(c *gin.Context) {
	var request UnfollowRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	var err error
	if request.LeadAddress == "" {
		err = svc.Following.UnfollowAll(ctx, request.FollowerAddress)
	} else {
		err = svc.Following.Unfollow(ctx, request.FollowerAddress, request.LeadAddress)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"follower_address": request.FollowerAddress})
}

// ListFollowers returns the follower edges of a lead address
func ListFollowers(c *gin.Context) {
	leadAddress := c.Param("lead_address")

	edges, err := svc.Store.ListFollowers(c.Request.Context(), leadAddress)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, edges)
}
