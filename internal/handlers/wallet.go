package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CreateWalletRequest is the request body for wallet creation
type CreateWalletRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// CreateWallet generates a custodial wallet for a user and returns its
// public address. The secret never leaves the custody store.
func CreateWallet(c *gin.Context) {
	var request CreateWalletRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	address, err := svc.Custody.Create(c.Request.Context(), request.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user_id": request.UserID,
		"address": address,
	})
}

// GetWallet returns the public address for a user's wallet
func GetWallet(c *gin.Context) {
	userID := c.Param("user_id")

	address, err := svc.Custody.Address(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id": userID,
		"address": address,
	})
}

// DeleteWallet removes a user's wallet record and its follower edges
func DeleteWallet(c *gin.Context) {
	userID := c.Param("user_id")
	ctx := c.Request.Context()

	address, err := svc.Custody.Address(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	// Best effort: a stale edge only costs a no-op copy attempt later.
	if err := svc.Following.UnfollowAll(ctx, address); err != nil {
		respondError(c, err)
		return
	}

	if err := svc.Custody.Remove(ctx, userID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": userID})
}

// GetWalletBalance returns the wallet's SOL balance, and a token balance
// when ?mint= is given.
func GetWalletBalance(c *gin.Context) {
	userID := c.Param("user_id")
	ctx := c.Request.Context()

	address, err := svc.Custody.Address(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	lamports, err := svc.Balances.NativeBalance(ctx, address)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{
		"address":  address,
		"lamports": lamports,
		"sol":      float64(lamports) / 1e9,
	}

	if mint := c.Query("mint"); mint != "" {
		tokens, err := svc.Balances.TokenBalance(ctx, address, mint)
		if err != nil {
			respondError(c, err)
			return
		}
		resp["mint"] = mint
		resp["token_balance"] = tokens
	}

	c.JSON(http.StatusOK, resp)
}
