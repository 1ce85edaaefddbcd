package storage

import (
	"context"

	"daemon/internal/models"
)

// DataStore is the persistence boundary of the trading engine. The engine
// components depend on this interface so tests can run against the
// in-memory implementation.
type DataStore interface {
	// Wallet operations
	GetWallet(ctx context.Context, userID string) (*models.Wallet, error)
	GetWalletByAddress(ctx context.Context, address string) (*models.Wallet, error)
	CreateWallet(ctx context.Context, w *models.Wallet) error
	DeleteWallet(ctx context.Context, userID string) error

	// Trade session operations
	GetActiveSession(ctx context.Context, userID string) (*models.TradeSession, error)
	ListActiveSessions(ctx context.Context) ([]models.TradeSession, error)
	CreateSession(ctx context.Context, s *models.TradeSession) error
	UpdateSession(ctx context.Context, s *models.TradeSession) error

	// Trade record operations
	CreateTrade(ctx context.Context, t *models.Trade) error
	ListActiveTrades(ctx context.Context) ([]models.Trade, error)
	GetActiveTrade(ctx context.Context, botAddress, tokenAddress string) (*models.Trade, error)
	CloseTrade(ctx context.Context, id uint, reason string, closePrice float64) error
	ListTradesByBot(ctx context.Context, botAddress string, limit int) ([]models.Trade, error)

	// Follower graph operations
	UpsertEdge(ctx context.Context, e *models.FollowerEdge) error
	ListFollowers(ctx context.Context, leadAddress string) ([]models.FollowerEdge, error)
	ListEdgesByFollower(ctx context.Context, followerAddress string) ([]models.FollowerEdge, error)
	DeleteEdge(ctx context.Context, followerAddress, leadAddress string) error
	DeleteEdgesByFollower(ctx context.Context, followerAddress string) error
	DeleteEdgesByLead(ctx context.Context, leadAddress string) error

	// Admin settings
	GetSetting(ctx context.Context, key string) (*models.AdminSetting, error)
	PutSetting(ctx context.Context, s *models.AdminSetting) error
}

// ErrNotFound is returned by Get* methods when no row matches. It is
// distinct from trading.ErrNotFound so storage stays decoupled from the
// engine's error taxonomy; callers translate at the boundary.
type notFoundError struct{}

func (notFoundError) Error() string { return "storage: record not found" }

var ErrNotFound error = notFoundError{}

var (
	_ DataStore = (*PostgresStore)(nil)
	_ DataStore = (*MemoryStore)(nil)
)
