package models

import "time"

// Signal is the outcome of one strategy evaluation.
type Signal struct {
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason"`
	Price      float64   `json:"price"`
	RSI        float64   `json:"rsi"`
	Upper      float64   `json:"upper_band"`
	Middle     float64   `json:"middle_band"`
	Lower      float64   `json:"lower_band"`
	PercentB   float64   `json:"percent_b"`
	Time       time.Time `json:"time"`
}

// Actionable reports whether the signal asks for an order.
func (s Signal) Actionable() bool {
	return s.Side == SideBuy || s.Side == SideSell
}
