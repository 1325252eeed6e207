// Package metrics holds the Prometheus collectors shared by the trader and the dashboard.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/models"
)

// Metrics owns a registry so each binary (and each test) exposes only its own collectors.
type Metrics struct {
	registry *prometheus.Registry

	price         *prometheus.GaugeVec
	rsi           *prometheus.GaugeVec
	bands         *prometheus.GaugeVec
	signals       *prometheus.CounterVec
	trades        *prometheus.CounterVec
	tickErrors    prometheus.Counter
	proxyDuration *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry, plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		price: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trader_last_price",
			Help: "Last closing price seen by the strategy",
		}, []string{"symbol"}),
		rsi: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trader_rsi",
			Help: "Relative strength index of the last evaluation",
		}, []string{"symbol"}),
		bands: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trader_bollinger_band",
			Help: "Bollinger band values of the last evaluation",
		}, []string{"symbol", "band"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_signals_total",
			Help: "Strategy signals by side",
		}, []string{"symbol", "side"}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_trades_total",
			Help: "Executed trades by side and mode (live or dry_run)",
		}, []string{"symbol", "side", "mode"}),
		tickErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_tick_errors_total",
			Help: "Ticks that ended with an error",
		}),
		proxyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dashboard_proxy_request_duration_seconds",
			Help:    "Duration of proxied Binance requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.price, m.rsi, m.bands, m.signals, m.trades, m.tickErrors, m.proxyDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveSignal records the indicator values and counts the signal.
func (m *Metrics) ObserveSignal(s models.Signal) {
	m.price.WithLabelValues(s.Symbol).Set(s.Price)
	m.rsi.WithLabelValues(s.Symbol).Set(s.RSI)
	m.bands.WithLabelValues(s.Symbol, "upper").Set(s.Upper)
	m.bands.WithLabelValues(s.Symbol, "middle").Set(s.Middle)
	m.bands.WithLabelValues(s.Symbol, "lower").Set(s.Lower)
	m.signals.WithLabelValues(s.Symbol, s.Side).Inc()
}

// ObserveTrade counts an executed trade.
func (m *Metrics) ObserveTrade(t *models.Trade) {
	mode := "live"
	if t.IsSimulation {
		mode = "dry_run"
	}
	m.trades.WithLabelValues(t.Symbol, t.Side, mode).Inc()
}

// TickFailed counts a failed tick.
func (m *Metrics) TickFailed() { m.tickErrors.Inc() }

// ObserveProxy records the duration of one proxied request.
func (m *Metrics) ObserveProxy(method string, status int, elapsed time.Duration) {
	m.proxyDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
