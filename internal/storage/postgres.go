package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"daemon/internal/models"
)

// PostgresStore is the gorm-backed DataStore used in production.
type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *PostgresStore) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	var w models.Wallet
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&w).Error; err != nil {
		return nil, translate(err)
	}
	return &w, nil
}

func (s *PostgresStore) GetWalletByAddress(ctx context.Context, address string) (*models.Wallet, error) {
	var w models.Wallet
	if err := s.db.WithContext(ctx).Where("public_address = ?", address).First(&w).Error; err != nil {
		return nil, translate(err)
	}
	return &w, nil
}

func (s *PostgresStore) CreateWallet(ctx context.Context, w *models.Wallet) error {
	return s.db.WithContext(ctx).Create(w).Error
}

func (s *PostgresStore) DeleteWallet(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Wallet{}).Error
}

func (s *PostgresStore) GetActiveSession(ctx context.Context, userID string) (*models.TradeSession, error) {
	var sess models.TradeSession
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.SessionActive).
		First(&sess).Error
	if err != nil {
		return nil, translate(err)
	}
	return &sess, nil
}

func (s *PostgresStore) ListActiveSessions(ctx context.Context) ([]models.TradeSession, error) {
	var sessions []models.TradeSession
	err := s.db.WithContext(ctx).
		Where("status = ?", models.SessionActive).
		Find(&sessions).Error
	return sessions, err
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess *models.TradeSession) error {
	return s.db.WithContext(ctx).Create(sess).Error
}

func (s *PostgresStore) UpdateSession(ctx context.Context, sess *models.TradeSession) error {
	return s.db.WithContext(ctx).Save(sess).Error
}

func (s *PostgresStore) CreateTrade(ctx context.Context, t *models.Trade) error {
	return s.db.WithContext(ctx).Create(t).Error
}

func (s *PostgresStore) ListActiveTrades(ctx context.Context) ([]models.Trade, error) {
	var trades []models.Trade
	err := s.db.WithContext(ctx).
		Where("status = ?", models.TradeActive).
		Find(&trades).Error
	return trades, err
}

func (s *PostgresStore) GetActiveTrade(ctx context.Context, botAddress, tokenAddress string) (*models.Trade, error) {
	var t models.Trade
	err := s.db.WithContext(ctx).
		Where("bot_address = ? AND token_address = ? AND status = ?",
			botAddress, tokenAddress, models.TradeActive).
		First(&t).Error
	if err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (s *PostgresStore) CloseTrade(ctx context.Context, id uint, reason string, closePrice float64) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&models.Trade{}).
		Where("id = ? AND status = ?", id, models.TradeActive).
		Updates(map[string]interface{}{
			"status":       models.TradeClosed,
			"close_reason": reason,
			"close_price":  closePrice,
			"closed_at":    &now,
		}).Error
}

func (s *PostgresStore) ListTradesByBot(ctx context.Context, botAddress string, limit int) ([]models.Trade, error) {
	var trades []models.Trade
	q := s.db.WithContext(ctx).Where("bot_address = ?", botAddress).Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&trades).Error
	return trades, err
}

func (s *PostgresStore) UpsertEdge(ctx context.Context, e *models.FollowerEdge) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "lead_address"}, {Name: "follower_address"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"copy_trades", "stop_loss_pct", "take_profit_pct", "updated_at",
		}),
	}).Create(e).Error
}

func (s *PostgresStore) ListFollowers(ctx context.Context, leadAddress string) ([]models.FollowerEdge, error) {
	var edges []models.FollowerEdge
	err := s.db.WithContext(ctx).
		Where("lead_address = ?", leadAddress).
		Find(&edges).Error
	return edges, err
}

func (s *PostgresStore) ListEdgesByFollower(ctx context.Context, followerAddress string) ([]models.FollowerEdge, error) {
	var edges []models.FollowerEdge
	err := s.db.WithContext(ctx).
		Where("follower_address = ?", followerAddress).
		Find(&edges).Error
	return edges, err
}

func (s *PostgresStore) DeleteEdge(ctx context.Context, followerAddress, leadAddress string) error {
	return s.db.WithContext(ctx).
		Where("follower_address = ? AND lead_address = ?", followerAddress, leadAddress).
		Delete(&models.FollowerEdge{}).Error
}

func (s *PostgresStore) DeleteEdgesByFollower(ctx context.Context, followerAddress string) error {
	return s.db.WithContext(ctx).
		Where("follower_address = ?", followerAddress).
		Delete(&models.FollowerEdge{}).Error
}

func (s *PostgresStore) DeleteEdgesByLead(ctx context.Context, leadAddress string) error {
	return s.db.WithContext(ctx).
		Where("lead_address = ?", leadAddress).
		Delete(&models.FollowerEdge{}).Error
}

func (s *PostgresStore) GetSetting(ctx context.Context, key string) (*models.AdminSetting, error) {
	var setting models.AdminSetting
	if err := s.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error; err != nil {
		return nil, translate(err)
	}
	return &setting, nil
}

func (s *PostgresStore) PutSetting(ctx context.Context, setting *models.AdminSetting) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at", "updated_by"}),
	}).Create(setting).Error
}
