package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"daemon/internal/scheduler"
	"daemon/internal/trading"
)

// StartSessionRequest is the request body for starting an auto-trade session
type StartSessionRequest struct {
	UserID          string  `json:"user_id" binding:"required"`
	TokenAddress    string  `json:"token_address" binding:"required"`
	AmountSOL       float64 `json:"amount_sol" binding:"required,gt=0"`
	IntervalMinutes int     `json:"interval_minutes" binding:"required,gt=0"`
	Exchange        string  `json:"exchange"`
	SlippageBps     int     `json:"slippage_bps"`
}

// StartSession starts a recurring buy loop for the user's wallet
func StartSession(c *gin.Context) {
	var request StartSessionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := svc.Sessions.Start(c.Request.Context(), scheduler.StartParams{
		UserID:          request.UserID,
		TokenAddress:    request.TokenAddress,
		AmountPerTrade:  uint64(request.AmountSOL * 1e9),
		IntervalMinutes: request.IntervalMinutes,
		Exchange:        trading.ExchangeKind(request.Exchange),
		SlippageBps:     request.SlippageBps,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user_id": request.UserID, "status": "active"})
}

// StopSessionRequest is the request body for stopping a session
type StopSessionRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// StopSession stops the user's active session. Stopping an already
// stopped session is a no-op.
func StopSession(c *gin.Context) {
	var request StopSessionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := svc.Sessions.Stop(c.Request.Context(), request.UserID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": request.UserID, "status": "stopped"})
}

// GetSession returns the user's active session, if any
func GetSession(c *gin.Context) {
	userID := c.Param("user_id")

	session, err := svc.Store.GetActiveSession(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}
