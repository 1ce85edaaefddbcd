package models

import "time"

// Trade status is a closed set: a trade is active until it is closed, and
// closed is terminal.
const (
	TradeActive = "active"
	TradeClosed = "closed"
)

// Close reasons recorded on terminal trades. Copy-trade closures carry the
// originating reason as "copy-of:<reason>".
const (
	CloseManual      = "manual"
	CloseStopLoss    = "stop-loss"
	CloseTakeProfit  = "take-profit"
	CloseLiquidation = "low-balance-liquidation"
	CloseCopyPrefix  = "copy-of:"
)

// Trade is one executed swap and, while active, an open position the
// stop-loss monitor watches.
type Trade struct {
	ID           uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	BotAddress   string     `gorm:"size:100;index;not null" json:"bot_address"`
	TokenAddress string     `gorm:"size:100;index;not null" json:"token_address"`
	Side         string     `gorm:"size:10;not null" json:"side"`
	InAmount     uint64     `gorm:"not null" json:"in_amount"`
	OutAmount    uint64     `gorm:"not null" json:"out_amount"`
	Price        float64    `json:"price"`
	PriceImpact  float64    `json:"price_impact"`
	SlippageBps  int        `json:"slippage_bps"`
	ExchangeKind string     `gorm:"size:20;not null;default:'pool'" json:"exchange_kind"`
	Signature    string     `gorm:"size:120" json:"signature"`
	Status       string     `gorm:"size:20;not null;default:'active';index" json:"status"`
	CloseReason  string     `gorm:"size:60" json:"close_reason,omitempty"`
	ClosePrice   float64    `json:"close_price,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
}

func (Trade) TableName() string {
	return "trades"
}
