package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/binance"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/credentials"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/database"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/models"
)

// ClientFactory builds a signing client for one user's key pair.
type ClientFactory func(apiKey, secretKey string, testnet bool) binance.RestClientInterface

// FunctionsHandler implements the server-side functions that need the user's secret key.
type FunctionsHandler struct {
	log       *zap.Logger
	store     database.Store
	cipher    *credentials.Cipher
	newClient ClientFactory
}

func NewFunctionsHandler(log *zap.Logger, store database.Store, cipher *credentials.Cipher, newClient ClientFactory) *FunctionsHandler {
	return &FunctionsHandler{log: log, store: store, cipher: cipher, newClient: newClient}
}

func decodeBody(r *http.Request, w http.ResponseWriter, dst interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(dst)
}

// binanceError maps a Binance failure to 502, keeping Binance's own error code when there is one.
func (h *FunctionsHandler) binanceError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error()}
	var apiErr *binance.APIError
	if errors.As(err, &apiErr) {
		body.Error = apiErr.Message
		body.Code = apiErr.Code
	}
	h.log.Warn("Binance request failed", zap.Error(err))
	writeJSON(w, h.log, http.StatusBadGateway, body)
}

type storeCredentialsRequest struct {
	APIKey    string `json:"apiKey"`
	SecretKey string `json:"secretKey"`
	IsTestnet bool   `json:"isTestnet"`
}

// StoreCredentials encrypts and upserts the caller's Binance key pair.
func (h *FunctionsHandler) StoreCredentials(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromContext(w, r, h.log)
	if !ok {
		return
	}

	var req storeCredentialsRequest
	if err := decodeBody(r, w, &req); err != nil {
		writeError(w, h.log, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.APIKey = strings.TrimSpace(req.APIKey)
	req.SecretKey = strings.TrimSpace(req.SecretKey)
	if req.APIKey == "" || req.SecretKey == "" {
		writeError(w, h.log, http.StatusBadRequest, "apiKey and secretKey are required")
		return
	}

	sealed, err := h.cipher.Encrypt(req.SecretKey)
	if err != nil {
		h.log.Error("Failed to encrypt secret key", zap.Error(err))
		writeError(w, h.log, http.StatusInternalServerError, "failed to store credentials")
		return
	}

	cred := &models.APICredential{UserID: userID, APIKey: req.APIKey, SecretKey: sealed, IsTestnet: req.IsTestnet}
	if err := h.store.SaveCredentials(r.Context(), cred); err != nil {
		h.log.Error("Failed to save credentials", zap.Error(err))
		writeError(w, h.log, http.StatusInternalServerError, "failed to store credentials")
		return
	}

	h.log.Info("API credentials stored", zap.String("user_id", userID), zap.Bool("testnet", req.IsTestnet))
	writeJSON(w, h.log, http.StatusOK, map[string]bool{"success": true})
}

// client loads and decrypts the caller's credentials. It writes the error response itself.
func (h *FunctionsHandler) client(w http.ResponseWriter, r *http.Request, userID string) (binance.RestClientInterface, bool) {
	cred, err := h.store.GetCredentials(r.Context(), userID)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, h.log, http.StatusNotFound, "API credentials not configured")
		return nil, false
	}
	if err != nil {
		h.log.Error("Failed to load credentials", zap.Error(err))
		writeError(w, h.log, http.StatusInternalServerError, "failed to load credentials")
		return nil, false
	}

	secret, err := h.cipher.Decrypt(cred.SecretKey)
	if err != nil {
		h.log.Error("Failed to decrypt credentials", zap.String("user_id", userID), zap.Error(err))
		writeError(w, h.log, http.StatusInternalServerError, "failed to decrypt credentials")
		return nil, false
	}
	return h.newClient(cred.APIKey, secret, cred.IsTestnet), true
}

// GetBalance returns the caller's non-zero spot balances.
func (h *FunctionsHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromContext(w, r, h.log)
	if !ok {
		return
	}
	client, ok := h.client(w, r, userID)
	if !ok {
		return
	}

	account, err := client.GetAccount(r.Context())
	if err != nil {
		h.binanceError(w, err)
		return
	}
	balances := account.Balances
	if balances == nil {
		balances = []binance.Balance{}
	}
	writeJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"balances":  balances,
		"canTrade":  account.CanTrade,
		"updatedAt": account.UpdateTime,
	})
}

type executeTradeRequest struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
}

// ExecuteTrade places a MARKET order with the caller's keys and records the fill.
func (h *FunctionsHandler) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromContext(w, r, h.log)
	if !ok {
		return
	}

	var req executeTradeRequest
	if err := decodeBody(r, w, &req); err != nil {
		writeError(w, h.log, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	req.Side = strings.ToUpper(strings.TrimSpace(req.Side))
	switch {
	case req.Symbol == "":
		writeError(w, h.log, http.StatusBadRequest, "symbol is required")
		return
	case req.Side != models.SideBuy && req.Side != models.SideSell:
		writeError(w, h.log, http.StatusBadRequest, "side must be BUY or SELL")
		return
	case req.Quantity <= 0:
		writeError(w, h.log, http.StatusBadRequest, "quantity must be positive")
		return
	}

	client, ok := h.client(w, r, userID)
	if !ok {
		return
	}

	order, err := client.CreateOrder(r.Context(), binance.OrderRequest{
		Symbol:        req.Symbol,
		Side:          req.Side,
		Quantity:      req.Quantity,
		ClientOrderID: uuid.NewString(),
	})
	if err != nil {
		h.binanceError(w, err)
		return
	}

	executed, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)
	quote, _ := strconv.ParseFloat(order.CummulativeQuoteQty, 64)
	trade := &models.Trade{
		UserID:        userID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Price:         order.AveragePrice(),
		Quantity:      executed,
		QuoteQuantity: quote,
		Status:        models.TradeStatusFilled,
		OrderID:       order.OrderID,
		ClientOrderID: order.ClientOrderID,
	}
	if err := h.store.CreateTrade(r.Context(), trade); err != nil {
		h.log.Error("Order placed but trade not recorded", zap.Int64("order_id", order.OrderID), zap.Error(err))
		writeError(w, h.log, http.StatusInternalServerError, "order placed but trade could not be recorded")
		return
	}

	h.log.Info("Manual order executed", zap.String("user_id", userID), zap.String("symbol", req.Symbol),
		zap.String("side", req.Side), zap.Int64("order_id", order.OrderID))
	writeJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"success": true,
		"order":   order,
		"trade":   trade,
	})
}
