package trader

import (
	"fmt"
	"sort"
	"time"

	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/models"
)

// Snapshot is everything a strategy sees on one tick.
type Snapshot struct {
	Config *models.BotConfig
	// Prices are closing prices, oldest first.
	Prices []float64
	// Position is the open BUY for the symbol, or nil when flat.
	Position *models.Trade
	Time     time.Time
}

// Strategy defines the interface for a trading strategy.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// Evaluate turns a snapshot into a BUY, SELL or HOLD signal.
	Evaluate(s Snapshot) (models.Signal, error)
}

var strategies = map[string]func() Strategy{
	MeanReversionName: func() Strategy { return &MeanReversionStrategy{} },
}

// NewStrategy returns the strategy registered under name.
func NewStrategy(name string) (Strategy, error) {
	factory, ok := strategies[name]
	if !ok {
		names := make([]string, 0, len(strategies))
		for n := range strategies {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown strategy %q (available: %v)", name, names)
	}
	return factory(), nil
}
