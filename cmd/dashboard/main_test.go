package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/auth"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/binance"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/config"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/credentials"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/database"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/metrics"
)

const testUser = "local"

func testStrategy() config.Strategy {
	return config.Strategy{
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
}

type testApp struct {
	*app
	store  database.Store
	client *MockRestClient
	cipher *credentials.Cipher
}

// newTestApp builds the full router over an in-memory store and a mocked Binance client.
func newTestApp(t *testing.T, configure func(cfg *config.Config)) *testApp {
	t.Helper()

	cfg := &config.Config{
		Bot:      config.Bot{UserID: testUser},
		Strategy: testStrategy(),
		Server:   config.Server{StaticDir: t.TempDir()},
	}
	if configure != nil {
		configure(cfg)
	}

	store, err := database.NewSQLiteStore(":memory:", cfg.Strategy, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cipher, err := credentials.NewCipher("test-encryption-key")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := NewHub(zap.NewNop(), nil)
	go hub.Run(ctx)

	client := new(MockRestClient)
	m := metrics.New()
	log := zap.NewNop()
	return &testApp{
		app: &app{
			cfg:     cfg,
			log:     log,
			api:     NewAPIHandler(log, store),
			proxy:   NewProxyHandler(log, binance.NewProxy("http://127.0.0.1:1", time.Second, log), m),
			hub:     hub,
			metrics: m,
			functions: NewFunctionsHandler(log, store, cipher, func(apiKey, secretKey string, testnet bool) binance.RestClientInterface {
				client.apiKey, client.secretKey, client.testnet = apiKey, secretKey, testnet
				return client
			}),
		},
		store:  store,
		client: client,
		cipher: cipher,
	}
}

func TestRoutes(t *testing.T) {
	t.Run("Health", func(t *testing.T) {
		a := newTestApp(t, nil)
		rec := httptest.NewRecorder()
		a.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "OK\n", rec.Body.String())
	})

	t.Run("MethodNotAllowed", func(t *testing.T) {
		a := newTestApp(t, nil)
		rec := httptest.NewRecorder()
		a.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/trades", nil))

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		assert.Equal(t, "GET", rec.Header().Get("Allow"))
	})

	t.Run("FunctionsArePostOnly", func(t *testing.T) {
		a := newTestApp(t, nil)
		rec := httptest.NewRecorder()
		a.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/functions/v1/binance-get-balance", nil))

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("MetricsEndpoint", func(t *testing.T) {
		a := newTestApp(t, nil)
		a.metrics.ObserveProxy(http.MethodGet, http.StatusOK, time.Millisecond)

		rec := httptest.NewRecorder()
		a.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "dashboard_proxy_request_duration_seconds")
	})

	t.Run("IndexAndStatic", func(t *testing.T) {
		a := newTestApp(t, nil)
		dir := a.cfg.Server.StaticDir
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "templates"), 0o755))
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "static"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "templates", "index.html"), []byte("<h1>dashboard</h1>"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "static", "app.js"), []byte("console.log(1)"), 0o644))
		router := a.routes()

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "dashboard")

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "console.log(1)", rec.Body.String())

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("AuthEnabled", func(t *testing.T) {
		a := newTestApp(t, func(cfg *config.Config) {
			cfg.Auth = config.Auth{Enabled: true, JWTSecret: "secret", Issuer: "test"}
		})
		router := a.routes()

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		token, err := auth.NewVerifier("secret", "test").Sign("user-42", time.Hour)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"user_id":"user-42"`)
	})

	t.Run("ProxyNeedsNoUser", func(t *testing.T) {
		a := newTestApp(t, func(cfg *config.Config) {
			cfg.Auth = config.Auth{Enabled: true, JWTSecret: "secret"}
		})
		rec := httptest.NewRecorder()
		a.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/binance-proxy", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
