package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/events"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/models"
)

func dialHub(t *testing.T, a *testApp) (*websocket.Conn, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(a.routes())
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return a.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	return conn, server
}

func TestHub(t *testing.T) {
	t.Run("DeliversOnlyOwnEvents", func(t *testing.T) {
		a := newTestApp(t, nil)
		conn, _ := dialHub(t, a)

		other, err := events.New(events.TypeLog, "someone-else", models.BotLog{Message: "not for you"})
		require.NoError(t, err)
		own, err := events.New(events.TypeSignal, testUser, models.Signal{Symbol: "BTCUSDT", Side: models.SideBuy})
		require.NoError(t, err)

		a.hub.Broadcast(other)
		a.hub.Broadcast(own)

		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var got events.Event
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, events.TypeSignal, got.Type)
		assert.Equal(t, testUser, got.UserID)
		assert.Contains(t, string(got.Payload), "BTCUSDT")
	})

	t.Run("PumpForwardsChannel", func(t *testing.T) {
		a := newTestApp(t, nil)
		conn, _ := dialHub(t, a)

		ch := make(chan events.Event, 1)
		event, err := events.New(events.TypeTrade, testUser, models.Trade{Symbol: "ETHUSDT"})
		require.NoError(t, err)
		ch <- event
		close(ch)
		a.hub.Pump(ch)

		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Contains(t, string(data), `"type":"trade"`)
	})

	t.Run("UnregistersOnClose", func(t *testing.T) {
		a := newTestApp(t, nil)
		conn, _ := dialHub(t, a)

		require.NoError(t, conn.Close())
		assert.Eventually(t, func() bool { return a.hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
	})

	t.Run("RejectsForeignOrigin", func(t *testing.T) {
		check := originChecker([]string{"http://localhost:5173"})
		require.NotNil(t, check)

		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.Header.Set("Origin", "http://evil.example")
		assert.False(t, check(req))

		req.Header.Set("Origin", "http://localhost:5173")
		assert.True(t, check(req))

		assert.Nil(t, originChecker([]string{"*"}))
	})
}
