package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/config"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/models"
)

var testDefaults = config.Strategy{
	Symbol:              "BTCUSDT",
	Interval:            "1m",
	DryRun:              true,
	Balance:             1000,
	TradeAmount:         100,
	BollingerPeriod:     20,
	BollingerMultiplier: 2,
	RSIPeriod:           14,
	RSIOversold:         30,
	RSIOverbought:       70,
	BuyThresholdPct:     2,
	TakeProfitPct:       3,
	StopLossPct:         2,
}

func floatPtr(v float64) *float64 { return &v }

// runStoreSuite exercises the behaviour every backend must share.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("TradesLifecycle", func(t *testing.T) {
		s := newStore(t)

		buy := &models.Trade{UserID: "u1", Symbol: "BTCUSDT", Side: models.SideBuy, Price: 100, Quantity: 1,
			Status: models.TradeStatusSimulated, IsSimulation: true, CreatedAt: base}
		require.NoError(t, s.CreateTrade(ctx, buy))
		assert.NotEmpty(t, buy.ID)

		other := &models.Trade{UserID: "u1", Symbol: "ETHUSDT", Side: models.SideBuy, Price: 10, Quantity: 2,
			CreatedAt: base.Add(time.Minute)}
		require.NoError(t, s.CreateTrade(ctx, other))
		require.NoError(t, s.CreateTrade(ctx, &models.Trade{UserID: "u2", Symbol: "BTCUSDT", Side: models.SideBuy,
			Price: 1, Quantity: 1, CreatedAt: base}))

		open, err := s.OpenTrades(ctx, "u1", "")
		require.NoError(t, err)
		require.Len(t, open, 2)
		assert.Equal(t, buy.ID, open[0].ID)

		open, err = s.OpenTrades(ctx, "u1", "BTCUSDT")
		require.NoError(t, err)
		require.Len(t, open, 1)

		sell := &models.Trade{UserID: "u1", Symbol: "BTCUSDT", Side: models.SideSell, Price: 110, Quantity: 1,
			ProfitLoss: floatPtr(10), CreatedAt: base.Add(2 * time.Minute)}
		require.NoError(t, s.CloseTrade(ctx, buy.ID, sell))

		open, err = s.OpenTrades(ctx, "u1", "BTCUSDT")
		require.NoError(t, err)
		assert.Empty(t, open)

		trades, err := s.ListTrades(ctx, models.TradeFilter{UserID: "u1"})
		require.NoError(t, err)
		require.Len(t, trades, 3)
		assert.Equal(t, models.SideSell, trades[0].Side)
		assert.Equal(t, other.ID, trades[1].ID)
		closed := trades[2]
		assert.Equal(t, buy.ID, closed.ID)
		require.NotNil(t, closed.ProfitLoss)
		assert.InDelta(t, 10, *closed.ProfitLoss, 1e-9)
		assert.Equal(t, models.TradeStatusClosed, closed.Status)
		require.NotNil(t, closed.ClosedAt)
		assert.False(t, closed.IsOpen())

		trades, err = s.ListTrades(ctx, models.TradeFilter{UserID: "u1", Symbol: "BTCUSDT", Limit: 1})
		require.NoError(t, err)
		require.Len(t, trades, 1)
		assert.Equal(t, models.SideSell, trades[0].Side)

		all, err := s.ListTrades(ctx, models.TradeFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 4)
	})

	t.Run("CloseTradeNotOpen", func(t *testing.T) {
		s := newStore(t)

		err := s.CloseTrade(ctx, "missing", &models.Trade{UserID: "u1", Side: models.SideSell, ProfitLoss: floatPtr(1)})
		assert.ErrorIs(t, err, ErrNotFound)

		buy := &models.Trade{UserID: "u1", Symbol: "BTCUSDT", Side: models.SideBuy, Price: 1, Quantity: 1}
		require.NoError(t, s.CreateTrade(ctx, buy))
		require.NoError(t, s.CloseTrade(ctx, buy.ID, &models.Trade{UserID: "u1", Symbol: "BTCUSDT", Side: models.SideSell, ProfitLoss: floatPtr(0)}))

		err = s.CloseTrade(ctx, buy.ID, &models.Trade{UserID: "u1", Symbol: "BTCUSDT", Side: models.SideSell, ProfitLoss: floatPtr(0)})
		assert.ErrorIs(t, err, ErrNotFound)

		err = s.CloseTrade(ctx, buy.ID, &models.Trade{UserID: "u1", Side: models.SideSell})
		assert.Error(t, err)
	})

	t.Run("BotConfig", func(t *testing.T) {
		s := newStore(t)

		cfg, err := s.GetBotConfig(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "u1", cfg.UserID)
		assert.Equal(t, "BTCUSDT", cfg.Symbol)
		assert.Equal(t, 20, cfg.BollingerPeriod)

		cfg.Symbol = "ETHUSDT"
		cfg.Enabled = true
		cfg.Balance = 500
		require.NoError(t, s.SaveBotConfig(ctx, cfg))

		cfg.Balance = 400
		require.NoError(t, s.SaveBotConfig(ctx, cfg))

		got, err := s.GetBotConfig(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "ETHUSDT", got.Symbol)
		assert.True(t, got.Enabled)
		assert.InDelta(t, 400, got.Balance, 1e-9)

		other, err := s.GetBotConfig(ctx, "u2")
		require.NoError(t, err)
		assert.Equal(t, "BTCUSDT", other.Symbol)
	})

	t.Run("Logs", func(t *testing.T) {
		s := newStore(t)

		for i := 0; i < 3; i++ {
			require.NoError(t, s.AppendLog(ctx, &models.BotLog{UserID: "u1", Message: string(rune('a' + i)),
				CreatedAt: base.Add(time.Duration(i) * time.Second)}))
		}
		require.NoError(t, s.AppendLog(ctx, &models.BotLog{UserID: "u2", Level: models.LogError, Message: "x"}))

		logs, err := s.ListLogs(ctx, "u1", 2)
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, "c", logs[0].Message)
		assert.Equal(t, "b", logs[1].Message)
		assert.Equal(t, models.LogInfo, logs[0].Level)

		logs, err = s.ListLogs(ctx, "u1", 0)
		require.NoError(t, err)
		assert.Len(t, logs, 3)
	})

	t.Run("Credentials", func(t *testing.T) {
		s := newStore(t)

		_, err := s.GetCredentials(ctx, "u1")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.SaveCredentials(ctx, &models.APICredential{UserID: "u1", APIKey: "k1", SecretKey: "enc1"}))
		require.NoError(t, s.SaveCredentials(ctx, &models.APICredential{UserID: "u1", APIKey: "k2", SecretKey: "enc2", IsTestnet: true}))

		cred, err := s.GetCredentials(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "k2", cred.APIKey)
		assert.Equal(t, "enc2", cred.SecretKey)
		assert.True(t, cred.IsTestnet)
	})
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		s, err := NewSQLiteStore("file::memory:", testDefaults, zap.NewNop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestFileStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		s, err := NewFileStore(t.TempDir(), testDefaults, zap.NewNop())
		require.NoError(t, err)
		return s
	})
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	runStoreSuite(t, func(t *testing.T) Store {
		ctx := context.Background()
		s, err := NewPostgresStore(ctx, config.Database{DSN: dsn, MaxConns: 2}, testDefaults, zap.NewNop())
		require.NoError(t, err)
		for _, table := range []string{"trades", "bot_configurations", "bot_logs", "api_credentials"} {
			_, err := s.pool.Exec(ctx, "truncate "+table)
			require.NoError(t, err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewFileStore(dir, testDefaults, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.CreateTrade(ctx, &models.Trade{UserID: "u1", Symbol: "BTCUSDT", Side: models.SideBuy, Price: 1, Quantity: 1}))
	require.NoError(t, s.SaveCredentials(ctx, &models.APICredential{UserID: "u1", APIKey: "k", SecretKey: "sealed"}))

	for _, name := range []string{tradesFile, credentialsFile} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*.tmp"))
	assert.Empty(t, matches)

	reopened, err := NewFileStore(dir, testDefaults, zap.NewNop())
	require.NoError(t, err)

	open, err := reopened.OpenTrades(ctx, "u1", "BTCUSDT")
	require.NoError(t, err)
	assert.Len(t, open, 1)

	cred, err := reopened.GetCredentials(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "sealed", cred.SecretKey)
}

func TestFileStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, tradesFile), []byte("{not json"), 0o600))

	_, err := NewFileStore(dir, testDefaults, zap.NewNop())
	assert.ErrorContains(t, err, "failed to decode trades.json")
}

func TestEnsureSSLMode(t *testing.T) {
	assert.Equal(t, "postgres://u:p@host:5432/db?sslmode=require", ensureSSLMode("postgres://u:p@host:5432/db"))
	assert.Equal(t, "postgres://u:p@host:5432/db?sslmode=disable", ensureSSLMode("postgres://u:p@host:5432/db?sslmode=disable"))
	assert.Equal(t, "host=localhost dbname=x", ensureSSLMode("host=localhost dbname=x"))
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), config.Database{Driver: "json", Dir: t.TempDir()}, testDefaults, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = Open(context.Background(), config.Database{Driver: "mongo"}, testDefaults, zap.NewNop())
	assert.ErrorContains(t, err, `unsupported database driver "mongo"`)
}
