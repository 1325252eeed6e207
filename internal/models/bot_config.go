package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/config"
)

// BotConfig is the per-user bot configuration. It is overwritten wholesale on save.
type BotConfig struct {
	UserID              string    `gorm:"primaryKey" json:"user_id"`
	Symbol              string    `json:"symbol"`
	Interval            string    `json:"interval"`
	Enabled             bool      `json:"enabled"`
	DryRun              bool      `json:"dry_run"`
	Balance             float64   `json:"balance"`
	TradeAmount         float64   `json:"trade_amount"`
	BollingerPeriod     int       `json:"bollinger_period"`
	BollingerMultiplier float64   `json:"bollinger_multiplier"`
	RSIPeriod           int       `gorm:"column:rsi_period" json:"rsi_period"`
	RSIOversold         float64   `gorm:"column:rsi_oversold" json:"rsi_oversold"`
	RSIOverbought       float64   `gorm:"column:rsi_overbought" json:"rsi_overbought"`
	BuyThresholdPct     float64   `json:"buy_threshold_pct"`
	TakeProfitPct       float64   `json:"take_profit_pct"`
	StopLossPct         float64   `json:"stop_loss_pct"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// TableName matches the hosted table name.
func (BotConfig) TableName() string { return "bot_configurations" }

// DefaultBotConfig builds the configuration used for a user that never saved one.
func DefaultBotConfig(userID string, s config.Strategy) *BotConfig {
	return &BotConfig{
		UserID:              userID,
		Symbol:              s.Symbol,
		Interval:            s.Interval,
		Enabled:             s.Enabled,
		DryRun:              s.DryRun,
		Balance:             s.Balance,
		TradeAmount:         s.TradeAmount,
		BollingerPeriod:     s.BollingerPeriod,
		BollingerMultiplier: s.BollingerMultiplier,
		RSIPeriod:           s.RSIPeriod,
		RSIOversold:         s.RSIOversold,
		RSIOverbought:       s.RSIOverbought,
		BuyThresholdPct:     s.BuyThresholdPct,
		TakeProfitPct:       s.TakeProfitPct,
		StopLossPct:         s.StopLossPct,
	}
}

// ErrInvalidConfig wraps every BotConfig validation failure.
var ErrInvalidConfig = errors.New("invalid bot configuration")

// Validate rejects configurations the strategy cannot evaluate.
func (c *BotConfig) Validate() error {
	switch {
	case c.UserID == "":
		return fmt.Errorf("%w: user_id is required", ErrInvalidConfig)
	case c.Symbol == "":
		return fmt.Errorf("%w: symbol is required", ErrInvalidConfig)
	case c.Interval == "":
		return fmt.Errorf("%w: interval is required", ErrInvalidConfig)
	case c.BollingerPeriod < 2:
		return fmt.Errorf("%w: bollinger_period must be at least 2", ErrInvalidConfig)
	case c.BollingerMultiplier < 0:
		return fmt.Errorf("%w: bollinger_multiplier must not be negative", ErrInvalidConfig)
	case c.RSIPeriod < 1:
		return fmt.Errorf("%w: rsi_period must be at least 1", ErrInvalidConfig)
	case c.RSIOversold < 0 || c.RSIOverbought > 100 || c.RSIOversold >= c.RSIOverbought:
		return fmt.Errorf("%w: need 0 <= rsi_oversold < rsi_overbought <= 100", ErrInvalidConfig)
	case c.BuyThresholdPct < 0 || c.TakeProfitPct < 0 || c.StopLossPct < 0:
		return fmt.Errorf("%w: percentage thresholds must not be negative", ErrInvalidConfig)
	case c.TradeAmount < 0 || c.Balance < 0:
		return fmt.Errorf("%w: balance and trade_amount must not be negative", ErrInvalidConfig)
	}
	return nil
}

// WindowSize is the number of closing prices needed to evaluate both indicators.
func (c *BotConfig) WindowSize() int {
	if c.RSIPeriod+1 > c.BollingerPeriod {
		return c.RSIPeriod + 1
	}
	return c.BollingerPeriod
}
