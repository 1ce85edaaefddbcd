package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"daemon/internal/copytrade"
	"daemon/internal/scheduler"
	"daemon/internal/storage"
	"daemon/internal/trading"
)

// Custody is the wallet-key surface the handlers drive.
type Custody interface {
	Create(ctx context.Context, userID string) (string, error)
	Address(ctx context.Context, userID string) (string, error)
	Remove(ctx context.Context, userID string) error
}

// Balances reads on-chain balances.
type Balances interface {
	NativeBalance(ctx context.Context, address string) (uint64, error)
	TokenBalance(ctx context.Context, address, mint string) (uint64, error)
}

// Sessions controls auto-trade sessions.
type Sessions interface {
	Start(ctx context.Context, p scheduler.StartParams) error
	Stop(ctx context.Context, userID string) error
}

// Following mutates the follower graph.
type Following interface {
	Follow(ctx context.Context, followerAddress, leadAddress string, settings copytrade.FollowSettings) error
	Unfollow(ctx context.Context, followerAddress, leadAddress string) error
	UnfollowAll(ctx context.Context, followerAddress string) error
}

// SettingsService exposes the runtime admin settings.
type SettingsService interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value, updatedBy string) error
}

// Services bundles everything the HTTP layer calls into.
type Services struct {
	Store     storage.DataStore
	Custody   Custody
	Balances  Balances
	Sessions  Sessions
	Following Following
	Settings  SettingsService
}

var svc *Services

// Init wires the handler package to its services. Must run before the
// router is built.
func Init(s *Services) { svc = s }

// respondError maps engine error kinds onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, trading.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, trading.ErrAlreadyExists),
		errors.Is(err, trading.ErrSessionAlreadyActive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, trading.ErrInvalidAddress),
		errors.Is(err, trading.ErrSelfFollow),
		errors.Is(err, trading.ErrInvalidSetting),
		errors.Is(err, trading.ErrInsufficientBalance):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, trading.ErrBalanceUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
