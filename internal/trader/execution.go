package trader

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/binance"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/events"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/models"
)

// ErrQuantityTooSmall is returned when a quantity falls below the symbol's LOT_SIZE minQty.
var ErrQuantityTooSmall = errors.New("quantity below minimum lot size")

// execute turns an actionable signal into a persisted trade.
// A nil trade with a nil error means the signal was skipped.
func (e *Engine) execute(ctx context.Context, cfg *models.BotConfig, signal models.Signal, position *models.Trade) (*models.Trade, error) {
	var (
		trade *models.Trade
		err   error
	)
	switch {
	case signal.Side == models.SideBuy && position == nil:
		trade, err = e.openPosition(ctx, cfg, signal)
	case signal.Side == models.SideSell && position != nil:
		trade, err = e.closePosition(ctx, cfg, signal, position)
	default:
		return nil, nil
	}
	if err != nil || trade == nil {
		return nil, err
	}

	e.metrics.ObserveTrade(trade)
	e.publish(ctx, events.TypeTrade, trade)

	message := fmt.Sprintf("%s %.8g %s at %.8g", trade.Side, trade.Quantity, trade.Symbol, trade.Price)
	if trade.ProfitLoss != nil {
		message += fmt.Sprintf(" (P/L %.4f)", *trade.ProfitLoss)
	}
	if trade.IsSimulation {
		message = "[dry run] " + message
	}
	e.record(ctx, models.LogInfo, trade.Symbol, message)
	return trade, nil
}

func (e *Engine) openPosition(ctx context.Context, cfg *models.BotConfig, signal models.Signal) (*models.Trade, error) {
	l := e.logger.With(zap.String("symbol", cfg.Symbol), zap.String("side", models.SideBuy))

	if signal.Price <= 0 {
		return nil, fmt.Errorf("invalid price %v", signal.Price)
	}
	if cfg.TradeAmount <= 0 {
		return nil, errors.New("trade_amount must be positive")
	}
	if cfg.DryRun && cfg.Balance < cfg.TradeAmount {
		l.Warn("Insufficient paper balance, skipping buy",
			zap.Float64("balance", cfg.Balance), zap.Float64("trade_amount", cfg.TradeAmount))
		e.record(ctx, models.LogWarn, cfg.Symbol,
			fmt.Sprintf("insufficient balance %.2f for trade amount %.2f", cfg.Balance, cfg.TradeAmount))
		return nil, nil
	}

	quantity, err := e.formatQuantity(cfg.Symbol, cfg.TradeAmount/signal.Price)
	if err != nil {
		return nil, err
	}

	trade := &models.Trade{
		UserID:        e.userID,
		Symbol:        cfg.Symbol,
		Side:          models.SideBuy,
		ClientOrderID: uuid.NewString(),
	}
	if cfg.DryRun {
		l.Warn("Dry run enabled. No real trade will be executed.")
		simulate(trade, signal.Price, quantity)
	} else {
		if err := e.placeOrder(ctx, trade, quantity, signal.Price); err != nil {
			return nil, err
		}
	}

	if err := e.store.CreateTrade(ctx, trade); err != nil {
		return nil, err
	}

	if cfg.DryRun {
		cfg.Balance -= trade.QuoteQuantity
		if err := e.store.SaveBotConfig(ctx, cfg); err != nil {
			return trade, fmt.Errorf("trade %s saved but balance update failed: %w", trade.ID, err)
		}
	}

	l.Info("Position opened", zap.String("trade_id", trade.ID), zap.Float64("quantity", trade.Quantity), zap.Float64("price", trade.Price))
	return trade, nil
}

func (e *Engine) closePosition(ctx context.Context, cfg *models.BotConfig, signal models.Signal, position *models.Trade) (*models.Trade, error) {
	l := e.logger.With(zap.String("symbol", cfg.Symbol), zap.String("side", models.SideSell), zap.String("buy_id", position.ID))

	trade := &models.Trade{
		UserID:        e.userID,
		Symbol:        position.Symbol,
		Side:          models.SideSell,
		ClientOrderID: uuid.NewString(),
	}
	// A position is closed the way it was opened, whatever dry_run says now.
	if position.IsSimulation {
		simulate(trade, signal.Price, position.Quantity)
	} else {
		quantity, err := e.formatQuantity(position.Symbol, position.Quantity)
		if err != nil {
			return nil, err
		}
		if err := e.placeOrder(ctx, trade, quantity, signal.Price); err != nil {
			return nil, err
		}
	}

	profit := (trade.Price - position.Price) * trade.Quantity
	trade.ProfitLoss = &profit

	if err := e.store.CloseTrade(ctx, position.ID, trade); err != nil {
		return nil, err
	}

	if trade.IsSimulation {
		cfg.Balance += trade.QuoteQuantity
		if err := e.store.SaveBotConfig(ctx, cfg); err != nil {
			return trade, fmt.Errorf("trade %s saved but balance update failed: %w", trade.ID, err)
		}
	}

	l.Info("Position closed", zap.String("trade_id", trade.ID), zap.Float64("profit_loss", profit))
	return trade, nil
}

func simulate(trade *models.Trade, price, quantity float64) {
	trade.Price = price
	trade.Quantity = quantity
	trade.QuoteQuantity = price * quantity
	trade.Status = models.TradeStatusSimulated
	trade.IsSimulation = true
}

// placeOrder sends a MARKET order and fills trade from the exchange response.
// fallbackPrice is used when the response carries no fills.
func (e *Engine) placeOrder(ctx context.Context, trade *models.Trade, quantity, fallbackPrice float64) error {
	resp, err := e.client.CreateOrder(ctx, binance.OrderRequest{
		Symbol:        trade.Symbol,
		Side:          trade.Side,
		Quantity:      quantity,
		ClientOrderID: trade.ClientOrderID,
	})
	if err != nil {
		return err
	}

	executed, _ := strconv.ParseFloat(resp.ExecutedQuantity, 64)
	quote, _ := strconv.ParseFloat(resp.CummulativeQuoteQty, 64)
	if executed == 0 {
		executed = quantity
	}
	price := resp.AveragePrice()
	if price == 0 {
		price = fallbackPrice
	}
	if quote == 0 {
		quote = price * executed
	}

	trade.OrderID = resp.OrderID
	trade.Price = price
	trade.Quantity = executed
	trade.QuoteQuantity = quote
	trade.Status = models.TradeStatusFilled
	return nil
}

// formatQuantity floors quantity to the precision of the symbol's LOT_SIZE stepSize.
func (e *Engine) formatQuantity(symbol string, quantity float64) (float64, error) {
	rule, ok := e.exchangeRules[symbol]
	if !ok {
		e.logger.Warn("No exchange rule found for symbol, using default formatting", zap.String("symbol", symbol))
		return quantity, nil
	}

	lot, ok := rule.LotSize()
	step, err := strconv.ParseFloat(lot.StepSize, 64)
	if !ok || err != nil || step <= 0 {
		e.logger.Warn("LOT_SIZE filter not found, using default formatting", zap.String("symbol", symbol))
		return quantity, nil
	}

	minQty, _ := strconv.ParseFloat(lot.MinQty, 64)
	if quantity < minQty {
		return 0, fmt.Errorf("%w: %.8f < %.8f for %s", ErrQuantityTooSmall, quantity, minQty, symbol)
	}

	// quantity/step can land just below an integer; take the next step only if it still fits.
	steps := math.Floor(quantity / step)
	if (steps+1)*step <= quantity {
		steps++
	}
	floored, _ := strconv.ParseFloat(strconv.FormatFloat(steps*step, 'f', stepPrecision(lot.StepSize), 64), 64)

	if floored < minQty || floored <= 0 {
		return 0, fmt.Errorf("%w: formatted %.8f < %.8f for %s", ErrQuantityTooSmall, floored, minQty, symbol)
	}
	return floored, nil
}

// stepPrecision counts significant decimals: "0.00100000" -> 3, "1.00000000" -> 0.
func stepPrecision(stepSize string) int {
	dot := strings.IndexByte(stepSize, '.')
	if dot < 0 {
		return 0
	}
	decimals := strings.TrimRight(stepSize[dot+1:], "0")
	return len(decimals)
}
