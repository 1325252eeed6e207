package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/binance"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/models"
)

// MockRestClient is a mock implementation of the RestClientInterface.
// It also records the credentials the factory was called with.
type MockRestClient struct {
	mock.Mock
	apiKey    string
	secretKey string
	testnet   bool
}

func (m *MockRestClient) GetServerTime(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRestClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]binance.Kline, error) {
	args := m.Called(ctx, symbol, interval, limit)
	klines, _ := args.Get(0).([]binance.Kline)
	return klines, args.Error(1)
}

func (m *MockRestClient) GetExchangeInfo(ctx context.Context) (*binance.ExchangeInfoResponse, error) {
	args := m.Called(ctx)
	info, _ := args.Get(0).(*binance.ExchangeInfoResponse)
	return info, args.Error(1)
}

func (m *MockRestClient) GetAccount(ctx context.Context) (*binance.AccountInfo, error) {
	args := m.Called(ctx)
	info, _ := args.Get(0).(*binance.AccountInfo)
	return info, args.Error(1)
}

func (m *MockRestClient) CreateOrder(ctx context.Context, order binance.OrderRequest) (*binance.CreateOrderResponse, error) {
	args := m.Called(ctx, order)
	resp, _ := args.Get(0).(*binance.CreateOrderResponse)
	return resp, args.Error(1)
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func (a *testApp) storeCredentials(t *testing.T, testnet bool) {
	t.Helper()
	sealed, err := a.cipher.Encrypt("my-secret")
	require.NoError(t, err)
	require.NoError(t, a.store.SaveCredentials(context.Background(), &models.APICredential{
		UserID: testUser, APIKey: "my-key", SecretKey: sealed, IsTestnet: testnet,
	}))
}

func TestStoreCredentials(t *testing.T) {
	t.Run("EncryptsSecret", func(t *testing.T) {
		a := newTestApp(t, nil)
		rec := post(t, a.routes(), "/functions/v1/store-api-credentials",
			`{"apiKey":" my-key ","secretKey":"my-secret","isTestnet":true}`)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"success":true}`, rec.Body.String())

		cred, err := a.store.GetCredentials(context.Background(), testUser)
		require.NoError(t, err)
		assert.Equal(t, "my-key", cred.APIKey)
		assert.True(t, cred.IsTestnet)
		assert.NotEqual(t, "my-secret", cred.SecretKey)

		secret, err := a.cipher.Decrypt(cred.SecretKey)
		require.NoError(t, err)
		assert.Equal(t, "my-secret", secret)
	})

	t.Run("MissingFields", func(t *testing.T) {
		a := newTestApp(t, nil)
		rec := post(t, a.routes(), "/functions/v1/store-api-credentials", `{"apiKey":"my-key"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "apiKey and secretKey are required")
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		a := newTestApp(t, nil)
		rec := post(t, a.routes(), "/functions/v1/store-api-credentials", `{`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("NoUser", func(t *testing.T) {
		a := newTestApp(t, nil)
		rec := post(t, http.HandlerFunc(a.functions.StoreCredentials), "/", `{"apiKey":"k","secretKey":"s"}`)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestGetBalance(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		a := newTestApp(t, nil)
		a.storeCredentials(t, true)
		a.client.On("GetAccount", mock.Anything).Return(&binance.AccountInfo{
			CanTrade:   true,
			UpdateTime: 1700000000000,
			Balances:   []binance.Balance{{Asset: "USDT", Free: "100.5", Locked: "0"}},
		}, nil)

		rec := post(t, a.routes(), "/functions/v1/binance-get-balance", `{}`)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"balances":[{"asset":"USDT","free":"100.5","locked":"0"}],"canTrade":true,"updatedAt":1700000000000}`, rec.Body.String())
		assert.Equal(t, "my-key", a.client.apiKey)
		assert.Equal(t, "my-secret", a.client.secretKey)
		assert.True(t, a.client.testnet)
		a.client.AssertExpectations(t)
	})

	t.Run("NotConfigured", func(t *testing.T) {
		a := newTestApp(t, nil)
		rec := post(t, a.routes(), "/functions/v1/binance-get-balance", `{}`)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "API credentials not configured")
	})

	t.Run("UndecryptableSecret", func(t *testing.T) {
		a := newTestApp(t, nil)
		require.NoError(t, a.store.SaveCredentials(context.Background(), &models.APICredential{
			UserID: testUser, APIKey: "my-key", SecretKey: "not-sealed",
		}))

		rec := post(t, a.routes(), "/functions/v1/binance-get-balance", `{}`)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("BinanceError", func(t *testing.T) {
		a := newTestApp(t, nil)
		a.storeCredentials(t, false)
		a.client.On("GetAccount", mock.Anything).Return(nil,
			&binance.APIError{StatusCode: http.StatusUnauthorized, Code: -2015, Message: "Invalid API-key"})

		rec := post(t, a.routes(), "/functions/v1/binance-get-balance", `{}`)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		var body errorBody
		decode(t, rec, &body)
		assert.Equal(t, "Invalid API-key", body.Error)
		assert.Equal(t, -2015, body.Code)
	})
}

func TestExecuteTrade(t *testing.T) {
	t.Run("RecordsFilledTrade", func(t *testing.T) {
		a := newTestApp(t, nil)
		a.storeCredentials(t, false)
		a.client.On("CreateOrder", mock.Anything, mock.MatchedBy(func(o binance.OrderRequest) bool {
			return o.Symbol == "BTCUSDT" && o.Side == "BUY" && o.Quantity == 0.01 && o.ClientOrderID != ""
		})).Return(&binance.CreateOrderResponse{
			Symbol:              "BTCUSDT",
			OrderID:             12345,
			ClientOrderID:       "abc",
			ExecutedQuantity:    "0.01",
			CummulativeQuoteQty: "500",
			Status:              "FILLED",
			Side:                "BUY",
		}, nil)

		rec := post(t, a.routes(), "/functions/v1/binance-execute-trade", `{"symbol":"btcusdt","side":"buy","quantity":0.01}`)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp struct {
			Success bool         `json:"success"`
			Trade   models.Trade `json:"trade"`
		}
		decode(t, rec, &resp)
		assert.True(t, resp.Success)
		assert.Equal(t, models.TradeStatusFilled, resp.Trade.Status)
		assert.InDelta(t, 50000.0, resp.Trade.Price, 1e-9)

		trades, err := a.store.ListTrades(context.Background(), models.TradeFilter{UserID: testUser})
		require.NoError(t, err)
		require.Len(t, trades, 1)
		assert.Equal(t, int64(12345), trades[0].OrderID)
		assert.False(t, trades[0].IsSimulation)
		a.client.AssertExpectations(t)
	})

	t.Run("Validation", func(t *testing.T) {
		a := newTestApp(t, nil)
		router := a.routes()
		for _, body := range []string{
			`{"side":"BUY","quantity":1}`,
			`{"symbol":"BTCUSDT","side":"HOLD","quantity":1}`,
			`{"symbol":"BTCUSDT","side":"SELL","quantity":0}`,
			`not json`,
		} {
			rec := post(t, router, "/functions/v1/binance-execute-trade", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		}
		a.client.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
	})

	t.Run("OrderRejected", func(t *testing.T) {
		a := newTestApp(t, nil)
		a.storeCredentials(t, false)
		a.client.On("CreateOrder", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

		rec := post(t, a.routes(), "/functions/v1/binance-execute-trade", `{"symbol":"BTCUSDT","side":"SELL","quantity":1}`)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Contains(t, rec.Body.String(), "connection reset")

		trades, err := a.store.ListTrades(context.Background(), models.TradeFilter{UserID: testUser})
		require.NoError(t, err)
		assert.Empty(t, trades)
	})
}
