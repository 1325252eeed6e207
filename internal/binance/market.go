package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Kline is one candlestick.
type Kline struct {
	OpenTime  int64   `json:"open_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	CloseTime int64   `json:"close_time"`
}

// ClosePrices extracts the closing prices in chronological order.
func ClosePrices(klines []Kline) []float64 {
	closes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
	}
	return closes
}

// GetKlines fetches the most recent limit candlesticks for symbol.
// Binance encodes each candle as a positional array of mixed numbers and strings.
func (c *RestClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	var raw [][]json.RawMessage

	req := c.client.R().
		SetQueryParam("symbol", symbol).
		SetQueryParam("interval", interval).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetResult(&raw)

	resp, err := c.doRequest(ctx, http.MethodGet, "/api/v3/klines", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get klines for %s: %w", symbol, err)
	}

	rows := *resp.Result().(*[][]json.RawMessage)
	klines := make([]Kline, 0, len(rows))
	for i, row := range rows {
		k, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("failed to parse kline %d for %s: %w", i, symbol, err)
		}
		klines = append(klines, k)
	}
	return klines, nil
}

func parseKline(row []json.RawMessage) (Kline, error) {
	if len(row) < 7 {
		return Kline{}, fmt.Errorf("expected at least 7 fields, got %d", len(row))
	}

	var k Kline
	if err := json.Unmarshal(row[0], &k.OpenTime); err != nil {
		return Kline{}, err
	}
	if err := json.Unmarshal(row[6], &k.CloseTime); err != nil {
		return Kline{}, err
	}

	fields := []*float64{&k.Open, &k.High, &k.Low, &k.Close, &k.Volume}
	for i, dst := range fields {
		var s string
		if err := json.Unmarshal(row[i+1], &s); err != nil {
			return Kline{}, err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Kline{}, err
		}
		*dst = v
	}
	return k, nil
}

// Balance is one asset line of the spot account.
type Balance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

// AccountInfo is the subset of /api/v3/account the dashboard shows.
type AccountInfo struct {
	CanTrade    bool      `json:"canTrade"`
	AccountType string    `json:"accountType"`
	UpdateTime  int64     `json:"updateTime"`
	Balances    []Balance `json:"balances"`
}

// GetAccount fetches the signed account snapshot and keeps only non-zero balances.
func (c *RestClient) GetAccount(ctx context.Context) (*AccountInfo, error) {
	var info AccountInfo

	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetResult(&info)

	// The signed query goes into the URL verbatim; resty would re-sort query params.
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/v3/account?"+c.signedQuery(url.Values{}), req)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	result := resp.Result().(*AccountInfo)
	nonZero := result.Balances[:0]
	for _, b := range result.Balances {
		free, _ := strconv.ParseFloat(b.Free, 64)
		locked, _ := strconv.ParseFloat(b.Locked, 64)
		if free+locked > 0 {
			nonZero = append(nonZero, b)
		}
	}
	result.Balances = nonZero
	return result, nil
}
