package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Binance     Binance     `mapstructure:"binance"`
	Bot         Bot         `mapstructure:"bot"`
	Strategy    Strategy    `mapstructure:"strategy"`
	Logger      Logger      `mapstructure:"logger"`
	Server      Server      `mapstructure:"server"`
	Database    Database    `mapstructure:"database"`
	Redis       Redis       `mapstructure:"redis"`
	Auth        Auth        `mapstructure:"auth"`
	Credentials Credentials `mapstructure:"credentials"`
}

// Binance holds the configuration for the Binance API.
type Binance struct {
	ApiKey         string  `mapstructure:"apiKey"`
	SecretKey      string  `mapstructure:"secretKey"`
	Testnet        bool    `mapstructure:"testnet"`
	BaseURL        string  `mapstructure:"base_url"`
	ProxyBaseURL   string  `mapstructure:"proxy_base_url"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// Bot holds the configuration of the trading loop.
type Bot struct {
	Name         string `mapstructure:"name"`
	UserID       string `mapstructure:"user_id"`
	TickInterval int    `mapstructure:"tick_interval"`
	Strategy     string `mapstructure:"strategy"`
	ApiPort      int    `mapstructure:"api_port"`
}

// Strategy holds the defaults used when a user has not saved a bot configuration yet.
type Strategy struct {
	Symbol              string  `mapstructure:"symbol"`
	Interval            string  `mapstructure:"interval"`
	Enabled             bool    `mapstructure:"enabled"`
	DryRun              bool    `mapstructure:"dry_run"`
	Balance             float64 `mapstructure:"balance"`
	TradeAmount         float64 `mapstructure:"trade_amount"`
	BollingerPeriod     int     `mapstructure:"bollinger_period"`
	BollingerMultiplier float64 `mapstructure:"bollinger_multiplier"`
	RSIPeriod           int     `mapstructure:"rsi_period"`
	RSIOversold         float64 `mapstructure:"rsi_oversold"`
	RSIOverbought       float64 `mapstructure:"rsi_overbought"`
	BuyThresholdPct     float64 `mapstructure:"buy_threshold_pct"`
	TakeProfitPct       float64 `mapstructure:"take_profit_pct"`
	StopLossPct         float64 `mapstructure:"stop_loss_pct"`
}

// Server holds the configuration for the dashboard server.
type Server struct {
	Port        int      `mapstructure:"port"`
	StaticDir   string   `mapstructure:"static_dir"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// Database holds the configuration for the database.
// Driver is one of "sqlite", "postgres" or "json".
type Database struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Dir      string `mapstructure:"dir"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// Redis holds the configuration of the event bus.
type Redis struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// Auth holds the configuration for bearer token validation.
type Auth struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// Credentials holds the key material used to encrypt stored API secrets.
type Credentials struct {
	EncryptionKey string `mapstructure:"encryption_key"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("binance.base_url", "https://api.binance.com")
	v.SetDefault("binance.proxy_base_url", "https://api.binance.me")
	v.SetDefault("binance.rate_limit", 20)      // requests per second
	v.SetDefault("binance.rate_limit_burst", 5) // burst size
	v.SetDefault("binance.timeout_seconds", 10)

	v.SetDefault("bot.name", "volatile-trader")
	v.SetDefault("bot.user_id", "local")
	v.SetDefault("bot.tick_interval", 60)
	v.SetDefault("bot.strategy", "mean_reversion")
	v.SetDefault("bot.api_port", 8081)

	v.SetDefault("strategy.symbol", "BTCUSDT")
	v.SetDefault("strategy.interval", "1m")
	v.SetDefault("strategy.enabled", false)
	v.SetDefault("strategy.dry_run", true)
	v.SetDefault("strategy.balance", 1000)
	v.SetDefault("strategy.trade_amount", 100)
	v.SetDefault("strategy.bollinger_period", 20)
	v.SetDefault("strategy.bollinger_multiplier", 2)
	v.SetDefault("strategy.rsi_period", 14)
	v.SetDefault("strategy.rsi_oversold", 30)
	v.SetDefault("strategy.rsi_overbought", 70)
	v.SetDefault("strategy.buy_threshold_pct", 2)
	v.SetDefault("strategy.take_profit_pct", 3)
	v.SetDefault("strategy.stop_loss_pct", 2)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.static_dir", "web")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "volatile-trader.db")
	v.SetDefault("database.dir", "data")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.channel", "volatile-trader:events")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults and the environment still apply.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to decode config: %w", err)
	}
	return config, config.Validate()
}

// Validate checks the settings the binaries cannot start without.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres", "json":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Bot.TickInterval <= 0 {
		return fmt.Errorf("bot.tick_interval must be positive, got %d", c.Bot.TickInterval)
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth is enabled")
	}
	return nil
}
