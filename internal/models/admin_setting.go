package models

import "time"

// Admin setting keys read by the trading engine.
const (
	SettingServiceFee = "serviceFee"
	SettingFeeAddress = "feeAddress"
)

// AdminSetting is a global key/value mutated only through the
// authenticated admin surface.
type AdminSetting struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Key       string    `gorm:"size:60;uniqueIndex;not null" json:"key"`
	Value     string    `gorm:"size:200;not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	UpdatedBy string    `gorm:"size:100" json:"updated_by"`
}

func (AdminSetting) TableName() string {
	return "admin_settings"
}
