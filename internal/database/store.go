// Package database persists trades, bot configurations, activity logs and API credentials.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/config"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// defaultLogLimit caps ListLogs when the caller passes no limit.
const defaultLogLimit = 100

// Store is implemented by every backend.
type Store interface {
	// CreateTrade inserts trade, assigning an ID and CreatedAt when unset.
	CreateTrade(ctx context.Context, trade *models.Trade) error
	// CloseTrade marks the open BUY buyID as closed with sell's profit and inserts sell.
	// It returns ErrNotFound when buyID is not an open position.
	CloseTrade(ctx context.Context, buyID string, sell *models.Trade) error
	// ListTrades returns trades most recent first.
	ListTrades(ctx context.Context, filter models.TradeFilter) ([]models.Trade, error)
	// OpenTrades returns open BUY positions oldest first. An empty symbol matches all symbols.
	OpenTrades(ctx context.Context, userID, symbol string) ([]models.Trade, error)
	// GetBotConfig returns the saved configuration or the defaults when none was saved.
	GetBotConfig(ctx context.Context, userID string) (*models.BotConfig, error)
	SaveBotConfig(ctx context.Context, cfg *models.BotConfig) error
	AppendLog(ctx context.Context, entry *models.BotLog) error
	// ListLogs returns log entries most recent first.
	ListLogs(ctx context.Context, userID string, limit int) ([]models.BotLog, error)
	SaveCredentials(ctx context.Context, cred *models.APICredential) error
	// GetCredentials returns ErrNotFound when the user never stored a key pair.
	GetCredentials(ctx context.Context, userID string) (*models.APICredential, error)
	Close() error
}

// Open selects the backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.Database, defaults config.Strategy, logger *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return NewSQLiteStore(cfg.DSN, defaults, logger)
	case "postgres":
		return NewPostgresStore(ctx, cfg, defaults, logger)
	case "json":
		return NewFileStore(cfg.Dir, defaults, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func prepareTrade(trade *models.Trade) {
	if trade.ID == "" {
		trade.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = now
	}
	trade.UpdatedAt = now
}

func prepareLog(entry *models.BotLog) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Level == "" {
		entry.Level = models.LogInfo
	}
}

func validateClose(sell *models.Trade) error {
	if sell == nil || sell.ProfitLoss == nil {
		return errors.New("closing trade requires a sell with profit_loss")
	}
	return nil
}

func logLimit(limit int) int {
	if limit <= 0 {
		return defaultLogLimit
	}
	return limit
}
