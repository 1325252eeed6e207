package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/auth"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/binance"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/config"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/credentials"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/database"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/events"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/logger"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/metrics"
)

// app bundles the dashboard dependencies so tests can build the same router.
type app struct {
	cfg       *config.Config
	log       *zap.Logger
	api       *APIHandler
	proxy     *ProxyHandler
	functions *FunctionsHandler
	hub       *Hub
	metrics   *metrics.Metrics
}

// userMiddleware authenticates bearer tokens, or pins every request to bot.user_id in local mode.
func (a *app) userMiddleware() func(http.Handler) http.Handler {
	if a.cfg.Auth.Enabled {
		return auth.Middleware(auth.NewVerifier(a.cfg.Auth.JWTSecret, a.cfg.Auth.Issuer))
	}
	return auth.Static(a.cfg.Bot.UserID)
}

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()
	user := a.userMiddleware()
	get := func(h http.HandlerFunc) http.Handler { return user(allowMethods(a.log, h, http.MethodGet)) }
	post := func(h http.HandlerFunc) http.Handler { return user(allowMethods(a.log, h, http.MethodPost)) }

	// API endpoints
	mux.Handle("/api/trades", get(a.api.TradesHandler))
	mux.Handle("/api/trades/open", get(a.api.OpenTradesHandler))
	mux.Handle("/api/statistics", get(a.api.StatisticsHandler))
	mux.Handle("/api/config", user(allowMethods(a.log, a.api.ConfigHandler, http.MethodGet, http.MethodPut)))
	mux.Handle("/api/logs", get(a.api.LogsHandler))
	mux.Handle("/api/status", get(a.api.StatusHandler))
	mux.Handle("/api/binance-proxy", allowMethods(a.log, a.proxy.ServeHTTP, http.MethodGet, http.MethodPost))

	mux.Handle("/functions/v1/store-api-credentials", post(a.functions.StoreCredentials))
	mux.Handle("/functions/v1/binance-get-balance", post(a.functions.GetBalance))
	mux.Handle("/functions/v1/binance-execute-trade", post(a.functions.ExecuteTrade))

	mux.Handle("/ws", queryToken(user(a.hub)))
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	})

	// Static file serving for CSS, JS, etc.
	staticDir := a.cfg.Server.StaticDir
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(filepath.Join(staticDir, "static")))))

	// HTML template serving
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, filepath.Join(staticDir, "templates", "index.html"))
	})

	return withCORS(a.cfg.Server.CORSOrigins)(mux)
}

// clientFactory signs with per-user keys against mainnet or testnet, sharing the base clients.
func clientFactory(cfg *config.Binance, log *zap.Logger) ClientFactory {
	mainnet := binance.NewRestClient(cfg, log)
	testnet := mainnet.WithBaseURL(binance.TestnetBaseURL())
	return func(apiKey, secretKey string, isTestnet bool) binance.RestClientInterface {
		if isTestnet {
			return testnet.WithCredentials(apiKey, secretKey)
		}
		return mainnet.WithCredentials(apiKey, secretKey)
	}
}

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to the database
	store, err := database.Open(ctx, cfg.Database, cfg.Strategy, logger.Component(log, "store"))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer store.Close()

	cipher, err := credentials.NewCipher(cfg.Credentials.EncryptionKey)
	if err != nil {
		log.Fatal("Failed to initialize credential cipher", zap.Error(err))
	}

	m := metrics.New()
	hub := NewHub(logger.Component(log, "websocket"), originChecker(cfg.Server.CORSOrigins))
	go hub.Run(ctx)

	if cfg.Redis.Enabled {
		bus, err := events.Connect(ctx, cfg.Redis, logger.Component(log, "events"))
		if err != nil {
			log.Fatal("Failed to connect to event bus", zap.Error(err))
		}
		defer bus.Close()

		sub, err := bus.Subscribe(ctx)
		if err != nil {
			log.Fatal("Failed to subscribe to event bus", zap.Error(err))
		}
		go hub.Pump(sub)
	} else {
		log.Info("Event bus disabled, live updates are off")
	}

	proxyTimeout := time.Duration(cfg.Binance.TimeoutSeconds) * time.Second
	a := &app{
		cfg:       &cfg,
		log:       log,
		api:       NewAPIHandler(logger.Component(log, "api"), store),
		proxy:     NewProxyHandler(logger.Component(log, "proxy"), binance.NewProxy(cfg.Binance.ProxyBaseURL, proxyTimeout, log), m),
		functions: NewFunctionsHandler(logger.Component(log, "functions"), store, cipher, clientFactory(&cfg.Binance, logger.Component(log, "binance"))),
		hub:       hub,
		metrics:   m,
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("Shutdown signal received, stopping web server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info("Starting web server", zap.String("address", server.Addr), zap.Bool("auth", cfg.Auth.Enabled))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("Web server failed", zap.Error(err))
	}
	log.Info("Web server stopped")
}
