package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/config"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/models"
)

const (
	configFile      = "config.json"
	tradesFile      = "trades.json"
	logsFile        = "logs.json"
	credentialsFile = "credentials.json"

	// maxFileLogs is how many log entries the file store keeps; older ones are dropped.
	maxFileLogs = 1000
)

// storedCredential exists because APICredential hides SecretKey from JSON.
type storedCredential struct {
	UserID    string    `json:"user_id"`
	APIKey    string    `json:"api_key"`
	SecretKey string    `json:"secret_key"`
	IsTestnet bool      `json:"is_testnet"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileStore keeps everything in flat JSON files under one directory.
// All state is held in memory and every mutation rewrites the affected file.
type FileStore struct {
	mu       sync.RWMutex
	dir      string
	defaults config.Strategy
	logger   *zap.Logger

	configs     map[string]*models.BotConfig
	trades      []models.Trade
	logs        []models.BotLog
	credentials map[string]storedCredential
}

// NewFileStore creates dir if needed and loads any existing files.
func NewFileStore(dir string, defaults config.Strategy, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data dir %s: %w", dir, err)
	}

	s := &FileStore{
		dir:         dir,
		defaults:    defaults,
		logger:      logger,
		configs:     map[string]*models.BotConfig{},
		credentials: map[string]storedCredential{},
	}

	for name, dst := range map[string]interface{}{
		configFile:      &s.configs,
		tradesFile:      &s.trades,
		logsFile:        &s.logs,
		credentialsFile: &s.credentials,
	} {
		if err := s.load(name, dst); err != nil {
			return nil, err
		}
	}

	logger.Info("File store ready", zap.String("dir", dir), zap.Int("trades", len(s.trades)))
	return s, nil
}

func (s *FileStore) load(name string, dst interface{}) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}

// save writes v to name through a temp file and a rename, so readers never see a partial file.
// Callers hold s.mu.
func (s *FileStore) save(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) CreateTrade(_ context.Context, trade *models.Trade) error {
	prepareTrade(trade)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, *trade)
	if err := s.save(tradesFile, s.trades); err != nil {
		s.trades = s.trades[:len(s.trades)-1]
		return err
	}
	return nil
}

func (s *FileStore) CloseTrade(_ context.Context, buyID string, sell *models.Trade) error {
	if err := validateClose(sell); err != nil {
		return err
	}
	prepareTrade(sell)

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.trades {
		if s.trades[i].ID == buyID && s.trades[i].IsOpen() {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("open trade %s: %w", buyID, ErrNotFound)
	}

	previous := s.trades[idx]
	pl := *sell.ProfitLoss
	closedAt := sell.CreatedAt
	s.trades[idx].ProfitLoss = &pl
	s.trades[idx].ClosedAt = &closedAt
	s.trades[idx].Status = models.TradeStatusClosed
	s.trades[idx].UpdatedAt = closedAt
	s.trades = append(s.trades, *sell)

	if err := s.save(tradesFile, s.trades); err != nil {
		s.trades = s.trades[:len(s.trades)-1]
		s.trades[idx] = previous
		return err
	}
	return nil
}

func (s *FileStore) ListTrades(_ context.Context, filter models.TradeFilter) ([]models.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Trade
	for _, t := range s.trades {
		if filter.UserID != "" && t.UserID != filter.UserID {
			continue
		}
		if filter.Symbol != "" && t.Symbol != filter.Symbol {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *FileStore) OpenTrades(_ context.Context, userID, symbol string) ([]models.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Trade
	for _, t := range s.trades {
		if t.UserID == userID && t.IsOpen() && (symbol == "" || t.Symbol == symbol) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *FileStore) GetBotConfig(_ context.Context, userID string) (*models.BotConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.configs[userID]; ok {
		cp := *c
		return &cp, nil
	}
	return models.DefaultBotConfig(userID, s.defaults), nil
}

func (s *FileStore) SaveBotConfig(_ context.Context, cfg *models.BotConfig) error {
	cfg.UpdatedAt = time.Now().UTC()
	cp := *cfg

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, existed := s.configs[cfg.UserID]
	s.configs[cfg.UserID] = &cp
	if err := s.save(configFile, s.configs); err != nil {
		if existed {
			s.configs[cfg.UserID] = previous
		} else {
			delete(s.configs, cfg.UserID)
		}
		return err
	}
	return nil
}

func (s *FileStore) AppendLog(_ context.Context, entry *models.BotLog) error {
	prepareLog(entry)

	s.mu.Lock()
	defer s.mu.Unlock()

	logs := append(s.logs, *entry)
	if len(logs) > maxFileLogs {
		logs = logs[len(logs)-maxFileLogs:]
	}
	if err := s.save(logsFile, logs); err != nil {
		return err
	}
	s.logs = logs
	return nil
}

func (s *FileStore) ListLogs(_ context.Context, userID string, limit int) ([]models.BotLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit = logLimit(limit)
	var out []models.BotLog
	for i := len(s.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if s.logs[i].UserID == userID {
			out = append(out, s.logs[i])
		}
	}
	return out, nil
}

func (s *FileStore) SaveCredentials(_ context.Context, cred *models.APICredential) error {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, existed := s.credentials[cred.UserID]
	stored := storedCredential{
		UserID:    cred.UserID,
		APIKey:    cred.APIKey,
		SecretKey: cred.SecretKey,
		IsTestnet: cred.IsTestnet,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existed {
		stored.CreatedAt = previous.CreatedAt
	}
	s.credentials[cred.UserID] = stored

	if err := s.save(credentialsFile, s.credentials); err != nil {
		if existed {
			s.credentials[cred.UserID] = previous
		} else {
			delete(s.credentials, cred.UserID)
		}
		return err
	}
	cred.CreatedAt, cred.UpdatedAt = stored.CreatedAt, stored.UpdatedAt
	return nil
}

func (s *FileStore) GetCredentials(_ context.Context, userID string) (*models.APICredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.credentials[userID]
	if !ok {
		return nil, fmt.Errorf("credentials for %s: %w", userID, ErrNotFound)
	}
	return &models.APICredential{
		UserID:    c.UserID,
		APIKey:    c.APIKey,
		SecretKey: c.SecretKey,
		IsTestnet: c.IsTestnet,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}, nil
}

func (s *FileStore) Close() error { return nil }
