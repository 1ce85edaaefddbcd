package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const defaultTradeLimit = 50

// ListTrades returns a bot's trade history, newest first. ?limit= caps
// the page size.
func ListTrades(c *gin.Context) {
	botAddress := c.Query("bot")
	if botAddress == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bot query parameter is required"})
		return
	}

	limit := defaultTradeLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	trades, err := svc.Store.ListTradesByBot(c.Request.Context(), botAddress, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, trades)
}
