package models

import "time"

// Log levels written by the bot.
const (
	LogInfo  = "info"
	LogWarn  = "warn"
	LogError = "error"
)

// BotLog is a user-visible activity record.
type BotLog struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"index;not null" json:"user_id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Symbol    string    `json:"symbol,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (BotLog) TableName() string { return "bot_logs" }
