package trader

import (
	"errors"
	"fmt"

	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/indicators"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/models"
)

// MeanReversionName is the registry name of MeanReversionStrategy.
const MeanReversionName = "mean_reversion"

// Confidence values attached to each rule.
const (
	confidenceStopLoss   = 95
	confidenceTakeProfit = 90
	confidenceOverbought = 80
	confidenceOversold   = 85
	confidenceBelowMean  = 65
	confidenceHold       = 50
)

// MeanReversionStrategy buys dips below the Bollinger mean confirmed by RSI
// and exits on stop loss, take profit or an overbought upper-band touch.
// Rules are checked in order; the first match wins.
type MeanReversionStrategy struct{}

func (s *MeanReversionStrategy) Name() string { return MeanReversionName }

func (s *MeanReversionStrategy) Evaluate(snap Snapshot) (models.Signal, error) {
	cfg := snap.Config
	if cfg == nil {
		return models.Signal{}, errors.New("snapshot has no config")
	}
	if len(snap.Prices) == 0 {
		return models.Signal{}, fmt.Errorf("no prices for %s: %w", cfg.Symbol, indicators.ErrInsufficientData)
	}

	bands, err := indicators.BollingerBands(snap.Prices, cfg.BollingerPeriod, cfg.BollingerMultiplier)
	if err != nil {
		return models.Signal{}, fmt.Errorf("bollinger bands: %w", err)
	}
	rsi, err := indicators.RSI(snap.Prices, cfg.RSIPeriod)
	if err != nil {
		return models.Signal{}, fmt.Errorf("rsi: %w", err)
	}

	price := snap.Prices[len(snap.Prices)-1]
	signal := models.Signal{
		Symbol:   cfg.Symbol,
		Side:     models.SideHold,
		Price:    price,
		RSI:      rsi,
		Upper:    bands.Upper,
		Middle:   bands.Middle,
		Lower:    bands.Lower,
		PercentB: bands.PercentB(price),
		Time:     snap.Time,
	}

	if snap.Position != nil {
		s.exitRules(&signal, cfg, snap.Position.Price)
	} else {
		s.entryRules(&signal, cfg)
	}
	return signal, nil
}

func (s *MeanReversionStrategy) exitRules(signal *models.Signal, cfg *models.BotConfig, entry float64) {
	change := 0.0
	if entry > 0 {
		change = (signal.Price - entry) / entry * 100
	}

	switch {
	case change <= -cfg.StopLossPct:
		decide(signal, models.SideSell, confidenceStopLoss, fmt.Sprintf("stop loss: %.2f%% from entry", change))
	case change >= cfg.TakeProfitPct:
		decide(signal, models.SideSell, confidenceTakeProfit, fmt.Sprintf("take profit: +%.2f%% from entry", change))
	case signal.Price >= signal.Upper && signal.RSI >= cfg.RSIOverbought:
		decide(signal, models.SideSell, confidenceOverbought, fmt.Sprintf("overbought at upper band (RSI %.1f)", signal.RSI))
	default:
		decide(signal, models.SideHold, confidenceHold, fmt.Sprintf("holding position: %.2f%% from entry", change))
	}
}

func (s *MeanReversionStrategy) entryRules(signal *models.Signal, cfg *models.BotConfig) {
	deviation := 0.0
	if signal.Middle > 0 {
		deviation = (signal.Middle - signal.Price) / signal.Middle * 100
	}

	switch {
	case signal.Price <= signal.Lower && signal.RSI <= cfg.RSIOversold:
		decide(signal, models.SideBuy, confidenceOversold, fmt.Sprintf("oversold at lower band (RSI %.1f)", signal.RSI))
	case deviation >= cfg.BuyThresholdPct && signal.RSI < 50:
		decide(signal, models.SideBuy, confidenceBelowMean, fmt.Sprintf("%.2f%% below mean (RSI %.1f)", deviation, signal.RSI))
	default:
		decide(signal, models.SideHold, confidenceHold, "no entry condition met")
	}
}

func decide(signal *models.Signal, side string, confidence float64, reason string) {
	signal.Side = side
	signal.Confidence = confidence
	signal.Reason = reason
}
