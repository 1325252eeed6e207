package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/config"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/models"
)

// SQLiteStore is the gorm backend used for local single-user mode.
type SQLiteStore struct {
	db       *gorm.DB
	defaults config.Strategy
	logger   *zap.Logger
}

// NewSQLiteStore opens dsn and migrates the schema.
func NewSQLiteStore(dsn string, defaults config.Strategy, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Every connection to an in-memory database sees its own empty database.
	if strings.Contains(dsn, ":memory:") {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}

	logger.Info("SQLite store ready", zap.String("dsn", dsn))
	return &SQLiteStore{db: db, defaults: defaults, logger: logger}, nil
}

// AutoMigrate creates or updates the tables for all persisted models. Existing rows are kept.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Trade{}, &models.BotConfig{}, &models.BotLog{}, &models.APICredential{}); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateTrade(ctx context.Context, trade *models.Trade) error {
	prepareTrade(trade)
	if err := s.db.WithContext(ctx).Create(trade).Error; err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CloseTrade(ctx context.Context, buyID string, sell *models.Trade) error {
	if err := validateClose(sell); err != nil {
		return err
	}
	prepareTrade(sell)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Trade{}).
			Where("id = ? AND side = ? AND profit_loss IS NULL", buyID, models.SideBuy).
			Updates(map[string]interface{}{
				"profit_loss": *sell.ProfitLoss,
				"closed_at":   sell.CreatedAt,
				"status":      models.TradeStatusClosed,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to close trade %s: %w", buyID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("open trade %s: %w", buyID, ErrNotFound)
		}
		if err := tx.Create(sell).Error; err != nil {
			return fmt.Errorf("failed to create sell trade: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) ListTrades(ctx context.Context, filter models.TradeFilter) ([]models.Trade, error) {
	q := s.db.WithContext(ctx).Order("created_at desc")
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Symbol != "" {
		q = q.Where("symbol = ?", filter.Symbol)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var trades []models.Trade
	if err := q.Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, nil
}

func (s *SQLiteStore) OpenTrades(ctx context.Context, userID, symbol string) ([]models.Trade, error) {
	q := s.db.WithContext(ctx).
		Where("user_id = ? AND side = ? AND profit_loss IS NULL", userID, models.SideBuy).
		Order("created_at asc")
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}

	var trades []models.Trade
	if err := q.Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to list open trades: %w", err)
	}
	return trades, nil
}

func (s *SQLiteStore) GetBotConfig(ctx context.Context, userID string) (*models.BotConfig, error) {
	var cfg models.BotConfig
	err := s.db.WithContext(ctx).First(&cfg, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.DefaultBotConfig(userID, s.defaults), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bot config: %w", err)
	}
	return &cfg, nil
}

func (s *SQLiteStore) SaveBotConfig(ctx context.Context, cfg *models.BotConfig) error {
	cfg.UpdatedAt = time.Now().UTC()
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, UpdateAll: true}).
		Create(cfg).Error
	if err != nil {
		return fmt.Errorf("failed to save bot config: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AppendLog(ctx context.Context, entry *models.BotLog) error {
	prepareLog(entry)
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListLogs(ctx context.Context, userID string, limit int) ([]models.BotLog, error) {
	var logs []models.BotLog
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(logLimit(limit)).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	return logs, nil
}

func (s *SQLiteStore) SaveCredentials(ctx context.Context, cred *models.APICredential) error {
	now := time.Now().UTC()
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"api_key", "secret_key", "is_testnet", "updated_at"}),
		}).
		Create(cred).Error
	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetCredentials(ctx context.Context, userID string) (*models.APICredential, error) {
	var cred models.APICredential
	err := s.db.WithContext(ctx).First(&cred, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("credentials for %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credentials: %w", err)
	}
	return &cred, nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
