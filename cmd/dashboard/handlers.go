package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/auth"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/database"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/models"
)

const (
	defaultTradeLimit = 50
	maxListLimit      = 500
)

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log   *zap.Logger
	store database.Store
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, store database.Store) *APIHandler {
	return &APIHandler{log: log, store: store}
}

// userFromContext reads the id set by the auth middleware, or by the static one in single-user mode.
func userFromContext(w http.ResponseWriter, r *http.Request, log *zap.Logger) (string, bool) {
	id, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, log, http.StatusUnauthorized, "unauthenticated")
	}
	return id, ok
}

func (h *APIHandler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	return userFromContext(w, r, h.log)
}

func parseLimit(r *http.Request, fallback int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, nil
}

// TradesHandler returns the caller's trades, most recent first.
func (h *APIHandler) TradesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	limit, err := parseLimit(r, defaultTradeLimit)
	if err != nil {
		writeError(w, h.log, http.StatusBadRequest, err.Error())
		return
	}

	trades, err := h.store.ListTrades(r.Context(), models.TradeFilter{
		UserID: userID,
		Symbol: r.URL.Query().Get("symbol"),
		Limit:  limit,
	})
	if err != nil {
		h.log.Error("Failed to get trades from database", zap.Error(err))
		writeError(w, h.log, http.StatusInternalServerError, "failed to get trades")
		return
	}
	if trades == nil {
		trades = []models.Trade{}
	}
	writeJSON(w, h.log, http.StatusOK, trades)
}

// OpenTradesHandler returns BUY positions that have not been closed.
func (h *APIHandler) OpenTradesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	trades, err := h.store.OpenTrades(r.Context(), userID, r.URL.Query().Get("symbol"))
	if err != nil {
		h.log.Error("Failed to get open trades", zap.Error(err))
		writeError(w, h.log, http.StatusInternalServerError, "failed to get open trades")
		return
	}
	if trades == nil {
		trades = []models.Trade{}
	}
	writeJSON(w, h.log, http.StatusOK, trades)
}

// StatsDetail holds calculated statistics for a given period.
type StatsDetail struct {
	TotalTrades      int64   `json:"total_trades"`
	ProfitableTrades int64   `json:"profitable_trades"`
	WinRate          float64 `json:"win_rate"`
	TotalProfit      float64 `json:"total_profit"`
}

func (s *StatsDetail) add(profit float64) {
	s.TotalTrades++
	if profit > 0 {
		s.ProfitableTrades++
	}
	s.TotalProfit += profit
}

func (s *StatsDetail) finish() {
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.ProfitableTrades) / float64(s.TotalTrades)
	}
}

// StatisticsResponse is the structure for the /api/statistics endpoint.
type StatisticsResponse struct {
	Since24h StatsDetail `json:"since_24h"`
	AllTime  StatsDetail `json:"all_time"`
}

// computeStatistics counts closed round trips, which are the SELL trades carrying a profit_loss.
func computeStatistics(trades []models.Trade, now time.Time) StatisticsResponse {
	since24h := now.Add(-24 * time.Hour)

	var resp StatisticsResponse
	for _, trade := range trades {
		if trade.Side != models.SideSell || trade.ProfitLoss == nil {
			continue
		}
		resp.AllTime.add(*trade.ProfitLoss)
		if trade.CreatedAt.After(since24h) {
			resp.Since24h.add(*trade.ProfitLoss)
		}
	}
	resp.AllTime.finish()
	resp.Since24h.finish()
	return resp
}

// StatisticsHandler calculates and returns trading statistics.
func (h *APIHandler) StatisticsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	trades, err := h.store.ListTrades(r.Context(), models.TradeFilter{UserID: userID})
	if err != nil {
		h.log.Error("Failed to get trades for statistics", zap.Error(err))
		writeError(w, h.log, http.StatusInternalServerError, "failed to calculate statistics")
		return
	}
	writeJSON(w, h.log, http.StatusOK, computeStatistics(trades, time.Now()))
}

// ConfigHandler serves GET (current or default configuration) and PUT (wholesale overwrite).
func (h *APIHandler) ConfigHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet {
		cfg, err := h.store.GetBotConfig(r.Context(), userID)
		if err != nil {
			h.log.Error("Failed to get bot config", zap.Error(err))
			writeError(w, h.log, http.StatusInternalServerError, "failed to get config")
			return
		}
		writeJSON(w, h.log, http.StatusOK, cfg)
		return
	}

	var cfg models.BotConfig
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&cfg); err != nil {
		writeError(w, h.log, http.StatusBadRequest, "invalid JSON body")
		return
	}
	cfg.UserID = userID
	if err := cfg.Validate(); err != nil {
		writeError(w, h.log, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.SaveBotConfig(r.Context(), &cfg); err != nil {
		h.log.Error("Failed to save bot config", zap.Error(err))
		writeError(w, h.log, http.StatusInternalServerError, "failed to save config")
		return
	}

	h.log.Info("Bot config updated", zap.String("user_id", userID), zap.String("symbol", cfg.Symbol), zap.Bool("enabled", cfg.Enabled))
	writeJSON(w, h.log, http.StatusOK, &cfg)
}

// LogsHandler returns the caller's activity log, most recent first.
func (h *APIHandler) LogsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	limit, err := parseLimit(r, 100)
	if err != nil {
		writeError(w, h.log, http.StatusBadRequest, err.Error())
		return
	}

	logs, err := h.store.ListLogs(r.Context(), userID, limit)
	if err != nil {
		h.log.Error("Failed to get logs", zap.Error(err))
		writeError(w, h.log, http.StatusInternalServerError, "failed to get logs")
		return
	}
	if logs == nil {
		logs = []models.BotLog{}
	}
	writeJSON(w, h.log, http.StatusOK, logs)
}

// StatusResponse summarizes the bot for the dashboard header.
type StatusResponse struct {
	UserID        string         `json:"user_id"`
	Symbol        string         `json:"symbol"`
	Interval      string         `json:"interval"`
	Enabled       bool           `json:"enabled"`
	DryRun        bool           `json:"dry_run"`
	Balance       float64        `json:"balance"`
	TradeAmount   float64        `json:"trade_amount"`
	OpenPositions int            `json:"open_positions"`
	LastLog       *models.BotLog `json:"last_log,omitempty"`
}

// StatusHandler combines the configuration, open positions and the latest log entry.
func (h *APIHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	cfg, err := h.store.GetBotConfig(ctx, userID)
	if err != nil {
		h.log.Error("Failed to get bot config", zap.Error(err))
		writeError(w, h.log, http.StatusInternalServerError, "failed to get status")
		return
	}
	open, err := h.store.OpenTrades(ctx, userID, "")
	if err != nil {
		h.log.Error("Failed to get open trades", zap.Error(err))
		writeError(w, h.log, http.StatusInternalServerError, "failed to get status")
		return
	}
	logs, err := h.store.ListLogs(ctx, userID, 1)
	if err != nil {
		h.log.Error("Failed to get logs", zap.Error(err))
		writeError(w, h.log, http.StatusInternalServerError, "failed to get status")
		return
	}

	status := StatusResponse{
		UserID:        userID,
		Symbol:        cfg.Symbol,
		Interval:      cfg.Interval,
		Enabled:       cfg.Enabled,
		DryRun:        cfg.DryRun,
		Balance:       cfg.Balance,
		TradeAmount:   cfg.TradeAmount,
		OpenPositions: len(open),
	}
	if len(logs) > 0 {
		status.LastLog = &logs[0]
	}
	writeJSON(w, h.log, http.StatusOK, status)
}
