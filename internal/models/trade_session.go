package models

import "time"

// Trade session lifecycle. A session only ever moves stopped -> active ->
// stopped; starting never replaces an active session.
const (
	SessionActive  = "active"
	SessionStopped = "stopped"
)

// TradeSession is one recurring auto-trade task. Persisted so the worker
// can recover active sessions after a restart instead of losing them.
type TradeSession struct {
	ID              uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          string     `gorm:"size:100;index;not null" json:"user_id"`
	TokenAddress    string     `gorm:"size:100;not null" json:"token_address"`
	AmountPerTrade  uint64     `gorm:"not null" json:"amount_per_trade"`
	IntervalMinutes int        `gorm:"not null" json:"interval_minutes"`
	ExchangeKind    string     `gorm:"size:20;not null;default:'pool'" json:"exchange_kind"`
	SlippageBps     int        `gorm:"not null;default:50" json:"slippage_bps"`
	Status          string     `gorm:"size:20;not null;default:'active'" json:"status"`
	StartedAt       time.Time  `gorm:"autoCreateTime" json:"started_at"`
	StoppedAt       *time.Time `json:"stopped_at,omitempty"`
	LastSignature   string     `gorm:"size:120" json:"last_signature"`
}

func (TradeSession) TableName() string {
	return "trade_sessions"
}
