package models

import "time"

// FollowerEdge links a follower bot to a lead bot. Unique per
// (lead, follower); re-following updates the settings in place.
type FollowerEdge struct {
	ID              uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	LeadAddress     string    `gorm:"size:100;index:idx_lead_follower,unique;not null" json:"lead_address"`
	FollowerAddress string    `gorm:"size:100;index:idx_lead_follower,unique;index;not null" json:"follower_address"`
	CopyTrades      bool      `gorm:"not null;default:true" json:"copy_trades"`
	StopLossPct     *float64  `json:"stop_loss_pct,omitempty"`
	TakeProfitPct   *float64  `json:"take_profit_pct,omitempty"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (FollowerEdge) TableName() string {
	return "follower_edges"
}
