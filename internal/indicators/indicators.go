// Package indicators implements the technical indicators used by the strategy.
// Every function is stateless and works on the trailing window of a price series.
package indicators

import (
	"errors"
	"math"
)

var (
	// ErrInvalidPeriod is returned for a non-positive window length.
	ErrInvalidPeriod = errors.New("indicators: invalid period")
	// ErrInsufficientData is returned when the series is shorter than the window.
	ErrInsufficientData = errors.New("indicators: insufficient data")
)

func window(prices []float64, period int) ([]float64, error) {
	if period < 1 {
		return nil, ErrInvalidPeriod
	}
	if len(prices) < period {
		return nil, ErrInsufficientData
	}
	return prices[len(prices)-period:], nil
}

// SMA returns the simple moving average of the last period prices.
func SMA(prices []float64, period int) (float64, error) {
	w, err := window(prices, period)
	if err != nil {
		return 0, err
	}
	sum := 0.0
	for _, p := range w {
		sum += p
	}
	return sum / float64(period), nil
}

// StdDev returns the population standard deviation of the last period prices.
func StdDev(prices []float64, period int) (float64, error) {
	mean, err := SMA(prices, period)
	if err != nil {
		return 0, err
	}
	sumSqDiff := 0.0
	for _, p := range prices[len(prices)-period:] {
		diff := p - mean
		sumSqDiff += diff * diff
	}
	return math.Sqrt(sumSqDiff / float64(period)), nil
}
