package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/binance"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/metrics"
)

// forwarder is the part of binance.Proxy the handler needs.
type forwarder interface {
	Forward(ctx context.Context, r binance.ProxyRequest) (*binance.ProxyResponse, error)
}

// ProxyHandler relays browser requests to Binance so the app avoids CORS and regional blocks.
type ProxyHandler struct {
	log     *zap.Logger
	proxy   forwarder
	metrics *metrics.Metrics
}

func NewProxyHandler(log *zap.Logger, proxy forwarder, m *metrics.Metrics) *ProxyHandler {
	return &ProxyHandler{log: log, proxy: proxy, metrics: m}
}

func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	query := r.URL.Query()
	path := query.Get("path")
	query.Del("path")

	var body []byte
	if r.Method != http.MethodGet {
		var err error
		body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			writeError(w, h.log, http.StatusBadRequest, "failed to read request body")
			return
		}
	}

	resp, err := h.proxy.Forward(r.Context(), binance.ProxyRequest{
		Method: r.Method,
		Path:   path,
		Query:  query,
		APIKey: r.Header.Get("X-MBX-APIKEY"),
		Body:   body,
	})
	if errors.Is(err, binance.ErrInvalidProxyPath) {
		writeError(w, h.log, http.StatusBadRequest, "query parameter path must be a Binance endpoint starting with /")
		return
	}
	if err != nil {
		h.metrics.ObserveProxy(r.Method, http.StatusBadGateway, time.Since(start))
		writeError(w, h.log, http.StatusBadGateway, err.Error())
		return
	}

	h.metrics.ObserveProxy(r.Method, resp.StatusCode, time.Since(start))
	w.Header().Set("Content-Type", resp.ContentType)
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(resp.Body); err != nil {
		h.log.Warn("Failed to write proxied response", zap.String("path", path), zap.Error(err))
	}
}
