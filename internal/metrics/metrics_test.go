package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/models"
)

func TestObserveSignal(t *testing.T) {
	m := New()
	m.ObserveSignal(models.Signal{Symbol: "BTCUSDT", Side: models.SideBuy, Price: 100, RSI: 25, Upper: 110, Middle: 105, Lower: 100})
	m.ObserveSignal(models.Signal{Symbol: "BTCUSDT", Side: models.SideBuy, Price: 99})

	assert.Equal(t, 99.0, testutil.ToFloat64(m.price.WithLabelValues("BTCUSDT")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.signals.WithLabelValues("BTCUSDT", models.SideBuy)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.signals.WithLabelValues("BTCUSDT", models.SideSell)))
}

func TestObserveTrade(t *testing.T) {
	m := New()
	m.ObserveTrade(&models.Trade{Symbol: "ETHUSDT", Side: models.SideBuy, IsSimulation: true})
	m.ObserveTrade(&models.Trade{Symbol: "ETHUSDT", Side: models.SideSell})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.trades.WithLabelValues("ETHUSDT", models.SideBuy, "dry_run")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.trades.WithLabelValues("ETHUSDT", models.SideSell, "live")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.TickFailed()
	m.ObserveProxy("GET", 200, 150*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "trader_tick_errors_total 1")
	assert.Contains(t, string(body), `dashboard_proxy_request_duration_seconds_count{method="GET",status="200"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
