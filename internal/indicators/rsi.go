package indicators

// RSI computes the Relative Strength Index over the last period price changes,
// using the simple average of gains and of losses. It needs period+1 prices.
// An average loss of zero yields 100, including for a flat series.
func RSI(prices []float64, period int) (float64, error) {
	if period < 1 {
		return 0, ErrInvalidPeriod
	}
	if len(prices) < period+1 {
		return 0, ErrInsufficientData
	}

	gains := 0.0
	losses := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100, nil
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), nil
}
