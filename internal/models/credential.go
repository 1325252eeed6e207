package models

import "time"

// APICredential holds a user's Binance API key pair.
// SecretKey is the encrypted form whenever the value is at rest.
type APICredential struct {
	UserID    string    `gorm:"primaryKey" json:"user_id"`
	APIKey    string    `gorm:"column:api_key;not null" json:"api_key"`
	SecretKey string    `gorm:"not null" json:"-"`
	IsTestnet bool      `json:"is_testnet"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (APICredential) TableName() string { return "api_credentials" }
