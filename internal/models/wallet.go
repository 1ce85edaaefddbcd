package models

import "time"

// Wallet is the custody record for one user. The secret is stored as
// base64(salt || nonce || ciphertext); the public address is derived once
// at creation and never changes.
type Wallet struct {
	ID              uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          string    `gorm:"size:100;uniqueIndex;not null" json:"user_id"`
	PublicAddress   string    `gorm:"size:100;uniqueIndex;not null" json:"public_address"`
	EncryptedSecret string    `gorm:"type:text;not null" json:"-"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Wallet) TableName() string {
	return "wallets"
}
