package trader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/binance"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/config"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/database"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/events"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/metrics"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/models"
)

// Engine is the core trading engine. On every tick it reloads the bot configuration,
// evaluates the strategy on fresh klines and executes actionable signals.
type Engine struct {
	UUID      string
	Name      string
	StartTime time.Time

	logger    *zap.Logger
	cfg       *config.Config
	userID    string
	client    binance.RestClientInterface
	store     database.Store
	strategy  Strategy
	publisher events.Publisher
	metrics   *metrics.Metrics

	exchangeRules map[string]binance.SymbolInfo

	mu         sync.RWMutex
	lastSignal *models.Signal
	lastTick   time.Time
}

// NewEngine creates a new trading engine.
func NewEngine(
	logger *zap.Logger,
	cfg *config.Config,
	client binance.RestClientInterface,
	store database.Store,
	strategy Strategy,
	publisher events.Publisher,
	m *metrics.Metrics,
) *Engine {
	return &Engine{
		UUID:          uuid.NewString(),
		Name:          cfg.Bot.Name,
		StartTime:     time.Now(),
		logger:        logger,
		cfg:           cfg,
		userID:        cfg.Bot.UserID,
		client:        client,
		store:         store,
		strategy:      strategy,
		publisher:     publisher,
		metrics:       m,
		exchangeRules: make(map[string]binance.SymbolInfo),
	}
}

// Run starts the trading engine's main loop and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("Initializing trading engine...")
	if err := e.initialize(ctx); err != nil {
		return err
	}
	e.logger.Info("Engine initialized successfully.")

	interval := time.Duration(e.cfg.Bot.TickInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Starting trading loop", zap.Duration("interval", interval), zap.String("strategy", e.strategy.Name()))
	e.runTick(ctx)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping trading engine...")
			return nil
		case <-ticker.C:
			e.runTick(ctx)
		}
	}
}

// initialize caches the exchange trading rules used to format order quantities.
func (e *Engine) initialize(ctx context.Context) error {
	e.logger.Info("Fetching exchange information...")
	info, err := e.client.GetExchangeInfo(ctx)
	if err != nil {
		return fmt.Errorf("could not get exchange info: %w", err)
	}
	for _, s := range info.Symbols {
		e.exchangeRules[s.Symbol] = s
	}
	e.logger.Info("Successfully cached exchange information for symbols", zap.Int("count", len(e.exchangeRules)))
	return nil
}

func (e *Engine) runTick(ctx context.Context) {
	if _, err := e.Tick(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		e.metrics.TickFailed()
		e.logger.Error("Tick failed", zap.Error(err))
		e.record(ctx, models.LogError, "", fmt.Sprintf("tick failed: %v", err))
	}
}

// Tick runs one evaluation. It returns a nil signal when the bot is disabled.
func (e *Engine) Tick(ctx context.Context) (*models.Signal, error) {
	e.mu.Lock()
	e.lastTick = time.Now().UTC()
	e.mu.Unlock()

	cfg, err := e.store.GetBotConfig(ctx, e.userID)
	if err != nil {
		return nil, fmt.Errorf("could not load bot config: %w", err)
	}
	if !cfg.Enabled {
		e.logger.Debug("Bot disabled, skipping tick", zap.String("user_id", e.userID))
		return nil, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := e.logger.With(zap.String("symbol", cfg.Symbol), zap.String("interval", cfg.Interval))

	klines, err := e.client.GetKlines(ctx, cfg.Symbol, cfg.Interval, cfg.WindowSize())
	if err != nil {
		return nil, fmt.Errorf("could not get klines: %w", err)
	}

	open, err := e.store.OpenTrades(ctx, e.userID, cfg.Symbol)
	if err != nil {
		return nil, fmt.Errorf("could not load open trades: %w", err)
	}
	var position *models.Trade
	if len(open) > 0 {
		position = &open[0]
	}

	signal, err := e.strategy.Evaluate(Snapshot{
		Config:   cfg,
		Prices:   binance.ClosePrices(klines),
		Position: position,
		Time:     time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("strategy %s failed: %w", e.strategy.Name(), err)
	}

	e.setLastSignal(signal)
	e.metrics.ObserveSignal(signal)
	e.publish(ctx, events.TypeSignal, signal)

	l.Info("Signal evaluated",
		zap.String("side", signal.Side),
		zap.Float64("confidence", signal.Confidence),
		zap.Float64("price", signal.Price),
		zap.Float64("rsi", signal.RSI),
		zap.String("reason", signal.Reason),
	)

	if !signal.Actionable() {
		return &signal, nil
	}

	e.record(ctx, models.LogInfo, cfg.Symbol,
		fmt.Sprintf("%s signal at %.8g (%s, confidence %.0f)", signal.Side, signal.Price, signal.Reason, signal.Confidence))
	if _, err := e.execute(ctx, cfg, signal, position); err != nil {
		return &signal, fmt.Errorf("could not execute %s: %w", signal.Side, err)
	}
	return &signal, nil
}

func (e *Engine) setLastSignal(s models.Signal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSignal = &s
}

// LastSignal returns a copy of the most recent signal, or nil before the first evaluation.
func (e *Engine) LastSignal() *models.Signal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastSignal == nil {
		return nil
	}
	s := *e.lastSignal
	return &s
}

// LastTick returns when the last tick started.
func (e *Engine) LastTick() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastTick
}

// StrategyName is the name of the configured strategy.
func (e *Engine) StrategyName() string { return e.strategy.Name() }

// record persists a user-visible log line and pushes it to live clients.
func (e *Engine) record(ctx context.Context, level, symbol, message string) {
	entry := &models.BotLog{UserID: e.userID, Level: level, Symbol: symbol, Message: message}
	if err := e.store.AppendLog(ctx, entry); err != nil {
		e.logger.Warn("Failed to persist bot log", zap.Error(err))
	}
	e.publish(ctx, events.TypeLog, entry)
}

func (e *Engine) publish(ctx context.Context, eventType string, payload interface{}) {
	event, err := events.New(eventType, e.userID, payload)
	if err != nil {
		e.logger.Warn("Failed to build event", zap.String("type", eventType), zap.Error(err))
		return
	}
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Warn("Failed to publish event", zap.String("type", eventType), zap.Error(err))
	}
}
