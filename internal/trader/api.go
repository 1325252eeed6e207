package trader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/models"
)

// APIServer provides an HTTP interface for the trading engine.
type APIServer struct {
	server *http.Server
	engine *Engine
	logger *zap.Logger
}

// StatusResponse is the body of /status.
type StatusResponse struct {
	UUID       string         `json:"uuid"`
	Name       string         `json:"name"`
	UserID     string         `json:"user_id"`
	Strategy   string         `json:"strategy"`
	StartTime  string         `json:"start_time"`
	Uptime     string         `json:"uptime"`
	LastTick   *time.Time     `json:"last_tick,omitempty"`
	LastSignal *models.Signal `json:"last_signal,omitempty"`
}

// NewAPIServer creates a new APIServer listening on bot.api_port.
func NewAPIServer(engine *Engine, logger *zap.Logger) *APIServer {
	s := &APIServer{
		engine: engine,
		logger: logger.Named("api-server"),
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", engine.cfg.Bot.ApiPort),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routes of the internal API.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.Handle("/metrics", s.engine.metrics.Handler())
	return mux
}

// Start runs the HTTP server in a new goroutine.
func (s *APIServer) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

func (s *APIServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := StatusResponse{
		UUID:       s.engine.UUID,
		Name:       s.engine.Name,
		UserID:     s.engine.userID,
		Strategy:   s.engine.StrategyName(),
		StartTime:  s.engine.StartTime.Format(time.RFC3339),
		Uptime:     time.Since(s.engine.StartTime).Round(time.Second).String(),
		LastSignal: s.engine.LastSignal(),
	}
	if last := s.engine.LastTick(); !last.IsZero() {
		status.LastTick = &last
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("Failed to write status response", zap.Error(err))
		http.Error(w, "Failed to encode status", http.StatusInternalServerError)
	}
}

func (s *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}
