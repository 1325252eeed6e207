package models

import "time"

// Side values shared by trades and signals.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
	SideHold = "HOLD"
)

// Trade status values.
const (
	TradeStatusFilled    = "FILLED"
	TradeStatusSimulated = "SIMULATED"
	TradeStatusClosed    = "CLOSED"
)

// Trade represents an executed or simulated order.
// A BUY is an open position while ProfitLoss is nil.
type Trade struct {
	ID            string     `gorm:"primaryKey;size:36" json:"id"`
	UserID        string     `gorm:"index;not null" json:"user_id"`
	Symbol        string     `gorm:"index;not null" json:"symbol"`
	Side          string     `gorm:"not null" json:"side"` // "BUY" or "SELL"
	Price         float64    `json:"price"`
	Quantity      float64    `json:"quantity"`
	QuoteQuantity float64    `json:"quote_quantity"`
	Status        string     `json:"status"`
	IsSimulation  bool       `json:"is_simulation"`
	OrderID       int64      `json:"order_id"`
	ClientOrderID string     `json:"client_order_id"`
	ProfitLoss    *float64   `json:"profit_loss"`
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
}

// TableName keeps the table name identical across the sqlite and postgres backends.
func (Trade) TableName() string { return "trades" }

// IsOpen reports whether the trade is a BUY that has not been closed yet.
func (t *Trade) IsOpen() bool {
	return t.Side == SideBuy && t.ProfitLoss == nil
}

// TradeFilter narrows ListTrades results. Zero values mean "no filter".
type TradeFilter struct {
	UserID string
	Symbol string
	Limit  int
}
