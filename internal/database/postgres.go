package database

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/config"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/models"
)

// PostgresStore talks to the hosted Supabase Postgres database.
type PostgresStore struct {
	pool     *pgxpool.Pool
	defaults config.Strategy
	logger   *zap.Logger
}

// NewPostgresStore connects a pool and creates missing tables.
func NewPostgresStore(ctx context.Context, cfg config.Database, defaults config.Strategy, logger *zap.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(ensureSSLMode(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns >= 0 && cfg.MinConns <= poolCfg.MaxConns {
		poolCfg.MinConns = cfg.MinConns
	}
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("Postgres store ready", zap.Int32("max_conns", poolCfg.MaxConns))
	return &PostgresStore{pool: pool, defaults: defaults, logger: logger}, nil
}

// ensureSSLMode adds sslmode=require unless the URL sets a mode. Supabase refuses plain connections.
func ensureSSLMode(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return dsn
	}
	q := u.Query()
	if q.Get("sslmode") == "" {
		q.Set("sslmode", "require")
		u.RawQuery = q.Encode()
	}
	return strings.TrimSpace(u.String())
}

// Migrate creates the tables used by the app when they do not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`create table if not exists trades (
			id text primary key,
			user_id text not null,
			symbol text not null,
			side text not null,
			price double precision not null default 0,
			quantity double precision not null default 0,
			quote_quantity double precision not null default 0,
			status text not null default '',
			is_simulation boolean not null default false,
			order_id bigint not null default 0,
			client_order_id text not null default '',
			profit_loss double precision null,
			created_at timestamptz not null default now(),
			updated_at timestamptz not null default now(),
			closed_at timestamptz null
		);`,
		`create index if not exists idx_trades_user_created on trades(user_id, created_at desc);`,
		`create table if not exists bot_configurations (
			user_id text primary key,
			symbol text not null,
			"interval" text not null,
			enabled boolean not null default false,
			dry_run boolean not null default true,
			balance double precision not null default 0,
			trade_amount double precision not null default 0,
			bollinger_period int not null,
			bollinger_multiplier double precision not null,
			rsi_period int not null,
			rsi_oversold double precision not null,
			rsi_overbought double precision not null,
			buy_threshold_pct double precision not null default 0,
			take_profit_pct double precision not null default 0,
			stop_loss_pct double precision not null default 0,
			updated_at timestamptz not null default now()
		);`,
		`create table if not exists bot_logs (
			id text primary key,
			user_id text not null,
			level text not null,
			message text not null,
			symbol text not null default '',
			created_at timestamptz not null default now()
		);`,
		`create index if not exists idx_bot_logs_user_created on bot_logs(user_id, created_at desc);`,
		`create table if not exists api_credentials (
			user_id text primary key,
			api_key text not null,
			secret_key text not null,
			is_testnet boolean not null default false,
			created_at timestamptz not null default now(),
			updated_at timestamptz not null default now()
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	return nil
}

const tradeColumns = `id, user_id, symbol, side, price, quantity, quote_quantity, status,
	is_simulation, order_id, client_order_id, profit_loss, created_at, updated_at, closed_at`

const insertTrade = `insert into trades(` + tradeColumns + `)
	values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`

func tradeArgs(t *models.Trade) []interface{} {
	return []interface{}{
		t.ID, t.UserID, t.Symbol, t.Side, t.Price, t.Quantity, t.QuoteQuantity, t.Status,
		t.IsSimulation, t.OrderID, t.ClientOrderID, t.ProfitLoss, t.CreatedAt, t.UpdatedAt, t.ClosedAt,
	}
}

func scanTrades(rows pgx.Rows) ([]models.Trade, error) {
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.Symbol, &t.Side, &t.Price, &t.Quantity, &t.QuoteQuantity, &t.Status,
			&t.IsSimulation, &t.OrderID, &t.ClientOrderID, &t.ProfitLoss, &t.CreatedAt, &t.UpdatedAt, &t.ClosedAt,
		); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *PostgresStore) CreateTrade(ctx context.Context, trade *models.Trade) error {
	prepareTrade(trade)
	if _, err := s.pool.Exec(ctx, insertTrade, tradeArgs(trade)...); err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}
	return nil
}

func (s *PostgresStore) CloseTrade(ctx context.Context, buyID string, sell *models.Trade) error {
	if err := validateClose(sell); err != nil {
		return err
	}
	prepareTrade(sell)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		update trades set profit_loss = $2, closed_at = $3, status = $4, updated_at = $3
		where id = $1 and side = 'BUY' and profit_loss is null
	`, buyID, *sell.ProfitLoss, sell.CreatedAt, models.TradeStatusClosed)
	if err != nil {
		return fmt.Errorf("failed to close trade %s: %w", buyID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("open trade %s: %w", buyID, ErrNotFound)
	}
	if _, err := tx.Exec(ctx, insertTrade, tradeArgs(sell)...); err != nil {
		return fmt.Errorf("failed to create sell trade: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ListTrades(ctx context.Context, filter models.TradeFilter) ([]models.Trade, error) {
	query := `select ` + tradeColumns + ` from trades where ($1 = '' or user_id = $1) and ($2 = '' or symbol = $2)
		order by created_at desc`
	args := []interface{}{filter.UserID, filter.Symbol}
	if filter.Limit > 0 {
		query += ` limit $3`
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	trades, err := scanTrades(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan trades: %w", err)
	}
	return trades, nil
}

func (s *PostgresStore) OpenTrades(ctx context.Context, userID, symbol string) ([]models.Trade, error) {
	rows, err := s.pool.Query(ctx, `select `+tradeColumns+` from trades
		where user_id = $1 and side = 'BUY' and profit_loss is null and ($2 = '' or symbol = $2)
		order by created_at asc`, userID, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to list open trades: %w", err)
	}
	trades, err := scanTrades(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan open trades: %w", err)
	}
	return trades, nil
}

func (s *PostgresStore) GetBotConfig(ctx context.Context, userID string) (*models.BotConfig, error) {
	var c models.BotConfig
	err := s.pool.QueryRow(ctx, `
		select user_id, symbol, "interval", enabled, dry_run, balance, trade_amount,
			bollinger_period, bollinger_multiplier, rsi_period, rsi_oversold, rsi_overbought,
			buy_threshold_pct, take_profit_pct, stop_loss_pct, updated_at
		from bot_configurations where user_id = $1
	`, userID).Scan(
		&c.UserID, &c.Symbol, &c.Interval, &c.Enabled, &c.DryRun, &c.Balance, &c.TradeAmount,
		&c.BollingerPeriod, &c.BollingerMultiplier, &c.RSIPeriod, &c.RSIOversold, &c.RSIOverbought,
		&c.BuyThresholdPct, &c.TakeProfitPct, &c.StopLossPct, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.DefaultBotConfig(userID, s.defaults), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bot config: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) SaveBotConfig(ctx context.Context, c *models.BotConfig) error {
	c.UpdatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		insert into bot_configurations(
			user_id, symbol, "interval", enabled, dry_run, balance, trade_amount,
			bollinger_period, bollinger_multiplier, rsi_period, rsi_oversold, rsi_overbought,
			buy_threshold_pct, take_profit_pct, stop_loss_pct, updated_at
		) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		on conflict (user_id) do update set
			symbol = excluded.symbol,
			"interval" = excluded."interval",
			enabled = excluded.enabled,
			dry_run = excluded.dry_run,
			balance = excluded.balance,
			trade_amount = excluded.trade_amount,
			bollinger_period = excluded.bollinger_period,
			bollinger_multiplier = excluded.bollinger_multiplier,
			rsi_period = excluded.rsi_period,
			rsi_oversold = excluded.rsi_oversold,
			rsi_overbought = excluded.rsi_overbought,
			buy_threshold_pct = excluded.buy_threshold_pct,
			take_profit_pct = excluded.take_profit_pct,
			stop_loss_pct = excluded.stop_loss_pct,
			updated_at = excluded.updated_at
	`,
		c.UserID, c.Symbol, c.Interval, c.Enabled, c.DryRun, c.Balance, c.TradeAmount,
		c.BollingerPeriod, c.BollingerMultiplier, c.RSIPeriod, c.RSIOversold, c.RSIOverbought,
		c.BuyThresholdPct, c.TakeProfitPct, c.StopLossPct, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save bot config: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendLog(ctx context.Context, entry *models.BotLog) error {
	prepareLog(entry)
	_, err := s.pool.Exec(ctx, `
		insert into bot_logs(id, user_id, level, message, symbol, created_at)
		values ($1,$2,$3,$4,$5,$6)
	`, entry.ID, entry.UserID, entry.Level, entry.Message, entry.Symbol, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListLogs(ctx context.Context, userID string, limit int) ([]models.BotLog, error) {
	rows, err := s.pool.Query(ctx, `
		select id, user_id, level, message, symbol, created_at
		from bot_logs where user_id = $1
		order by created_at desc limit $2
	`, userID, logLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	defer rows.Close()

	var logs []models.BotLog
	for rows.Next() {
		var l models.BotLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.Level, &l.Message, &l.Symbol, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (s *PostgresStore) SaveCredentials(ctx context.Context, cred *models.APICredential) error {
	now := time.Now().UTC()
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
		insert into api_credentials(user_id, api_key, secret_key, is_testnet, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6)
		on conflict (user_id) do update set
			api_key = excluded.api_key,
			secret_key = excluded.secret_key,
			is_testnet = excluded.is_testnet,
			updated_at = excluded.updated_at
	`, cred.UserID, cred.APIKey, cred.SecretKey, cred.IsTestnet, cred.CreatedAt, cred.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCredentials(ctx context.Context, userID string) (*models.APICredential, error) {
	var c models.APICredential
	err := s.pool.QueryRow(ctx, `
		select user_id, api_key, secret_key, is_testnet, created_at, updated_at
		from api_credentials where user_id = $1
	`, userID).Scan(&c.UserID, &c.APIKey, &c.SecretKey, &c.IsTestnet, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("credentials for %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credentials: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
