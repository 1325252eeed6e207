package indicators

// Bands holds one Bollinger Bands reading.
type Bands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
	StdDev float64 `json:"std_dev"`
}

// BollingerBands computes the bands over the last period prices:
// middle = SMA, upper/lower = middle ± multiplier·stddev.
func BollingerBands(prices []float64, period int, multiplier float64) (Bands, error) {
	if multiplier < 0 {
		return Bands{}, ErrInvalidPeriod
	}
	ma, err := SMA(prices, period)
	if err != nil {
		return Bands{}, err
	}
	stdDev, err := StdDev(prices, period)
	if err != nil {
		return Bands{}, err
	}
	return Bands{
		Upper:  ma + multiplier*stdDev,
		Middle: ma,
		Lower:  ma - multiplier*stdDev,
		StdDev: stdDev,
	}, nil
}

// PercentB locates price relative to the bands: 0 at the lower band, 1 at the upper band.
// Collapsed bands report 0.5.
func (b Bands) PercentB(price float64) float64 {
	width := b.Upper - b.Lower
	if width == 0 {
		return 0.5
	}
	return (price - b.Lower) / width
}
