package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL  = "https://api.binance.com"
	testnetBaseURL  = "https://testnet.binance.vision"
	recvWindow      = "5000" // How long a request is valid in milliseconds
	maxRetries      = 3
	OrderTypeMarket = "MARKET"
	OrderSideBuy    = "BUY"
	OrderSideSell   = "SELL"
)

// RestClientInterface defines the interface for the Binance REST API client.
type RestClientInterface interface {
	GetServerTime(ctx context.Context) (int64, error)
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error)
	GetExchangeInfo(ctx context.Context) (*ExchangeInfoResponse, error)
	GetAccount(ctx context.Context) (*AccountInfo, error)
	CreateOrder(ctx context.Context, order OrderRequest) (*CreateOrderResponse, error)
}

// RestClient is a client for the Binance REST API.
// It implements the RestClientInterface.
type RestClient struct {
	client    *resty.Client
	apiKey    string
	secretKey string
	logger    *zap.Logger
	limiter   *rate.Limiter
}

// ensure RestClient implements the interface
var _ RestClientInterface = (*RestClient)(nil)

// APIError is a non-2xx answer from Binance.
type APIError struct {
	StatusCode int
	Code       int    `json:"code"`
	Message    string `json:"msg"`
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != 0 || e.Message != "" {
		return fmt.Sprintf("request failed with status %d (code=%d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}

func newAPIError(resp *resty.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode(), Body: resp.String()}
	_ = json.Unmarshal(resp.Body(), apiErr)
	return apiErr
}

// NewRestClient creates a new Binance REST API client.
func NewRestClient(cfg *config.Binance, logger *zap.Logger) *RestClient {
	url := cfg.BaseURL
	switch {
	case cfg.Testnet:
		url = testnetBaseURL
		logger.Warn("Using Binance Testnet")
	case url == "":
		url = defaultBaseURL
		logger.Info("Using Binance Production API")
	default:
		logger.Info("Using Binance API", zap.String("base_url", url))
	}

	client := resty.New().SetBaseURL(url)
	if cfg.TimeoutSeconds > 0 {
		client.SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second)
	}

	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateLimitBurst
	if burst < 1 {
		burst = 1
	}

	return &RestClient{
		client:    client,
		apiKey:    cfg.ApiKey,
		secretKey: cfg.SecretKey,
		logger:    logger,
		limiter:   rate.NewLimiter(limit, burst),
	}
}

// WithCredentials returns a client that signs with another key pair.
// The copy shares the HTTP client and the rate limiter with c.
func (c *RestClient) WithCredentials(apiKey, secretKey string) *RestClient {
	cp := *c
	cp.apiKey = apiKey
	cp.secretKey = secretKey
	return &cp
}

// WithBaseURL returns a client bound to another Binance host, for example the testnet.
// The copy keeps the credentials and the rate limiter.
func (c *RestClient) WithBaseURL(baseURL string) *RestClient {
	cp := *c
	cp.client = resty.New().
		SetBaseURL(baseURL).
		SetTimeout(c.client.GetClient().Timeout)
	return &cp
}

// TestnetBaseURL is the spot testnet host used for testnet credentials.
func TestnetBaseURL() string { return testnetBaseURL }

// sign creates a HMAC-SHA256 signature for the request.
func (c *RestClient) sign(data string) string {
	h := hmac.New(sha256.New, []byte(c.secretKey))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// signedQuery adds timestamp and recvWindow to params and appends the signature last,
// so the signed payload is exactly the prefix Binance verifies.
func (c *RestClient) signedQuery(params url.Values) string {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", recvWindow)
	query := params.Encode()
	return query + "&signature=" + c.sign(query)
}

// GetServerTime fetches the current server time from Binance.
// This is a good endpoint to test connectivity.
func (c *RestClient) GetServerTime(ctx context.Context) (int64, error) {
	type ServerTimeResponse struct {
		ServerTime int64 `json:"serverTime"`
	}

	req := c.client.R().
		SetResult(&ServerTimeResponse{})

	resp, err := c.doRequest(ctx, http.MethodGet, "/api/v3/time", req)
	if err != nil {
		c.logger.Error("Failed to get server time", zap.Error(err))
		return 0, fmt.Errorf("failed to get server time: %w", err)
	}

	result := resp.Result().(*ServerTimeResponse)
	return result.ServerTime, nil
}

// doRequest handles the actual request execution with rate limiting and retry logic.
// Only GET requests are retried; an order that may have reached the exchange is never resent.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error

	attempts := 1
	if method == http.MethodGet {
		attempts = maxRetries
	}

	tried := 0
	for i := 0; i < attempts; i++ {
		tried++
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.SetContext(ctx).Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration
		backoff := true

		if err == nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests || statusCode == 418 { // HTTP 429 or 418
				shouldRetry = true
				if seconds, convErr := strconv.Atoi(resp.Header().Get("Retry-After")); convErr == nil && seconds >= 0 {
					retryAfter = time.Duration(seconds) * time.Second
					backoff = false
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
			err = newAPIError(resp)
		} else { // Network or other client-side errors
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			shouldRetry = true
		}

		if !shouldRetry || i == attempts-1 {
			break
		}

		// If we should retry, calculate wait time
		if backoff {
			// Exponential backoff: 1s, 2s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if tried > 1 {
		return nil, fmt.Errorf("request failed after %d attempts: %w", tried, err)
	}
	return nil, err
}

// ExchangeInfoResponse represents the full response from the /exchangeInfo endpoint.
type ExchangeInfoResponse struct {
	Symbols []SymbolInfo `json:"symbols"`
}

// SymbolInfo contains information about a specific trading symbol.
type SymbolInfo struct {
	Symbol  string   `json:"symbol"`
	Status  string   `json:"status"`
	Filters []Filter `json:"filters"`
}

// Filter represents a single filter for a symbol.
// We are interested in the LOT_SIZE filter to get the stepSize.
type Filter struct {
	FilterType string `json:"filterType"`
	MinQty     string `json:"minQty,omitempty"`
	MaxQty     string `json:"maxQty,omitempty"`
	StepSize   string `json:"stepSize,omitempty"`
}

// LotSize returns the LOT_SIZE filter of the symbol, if any.
func (s SymbolInfo) LotSize() (Filter, bool) {
	for _, f := range s.Filters {
		if f.FilterType == "LOT_SIZE" {
			return f, true
		}
	}
	return Filter{}, false
}

// GetExchangeInfo fetches exchange trading rules and symbol information.
func (c *RestClient) GetExchangeInfo(ctx context.Context) (*ExchangeInfoResponse, error) {
	var exchangeInfo ExchangeInfoResponse

	req := c.client.R().
		SetResult(&exchangeInfo)

	resp, err := c.doRequest(ctx, http.MethodGet, "/api/v3/exchangeInfo", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get exchange info: %w", err)
	}

	return resp.Result().(*ExchangeInfoResponse), nil
}

// OrderRequest describes a MARKET order. Either Quantity or QuoteOrderQty must be set.
type OrderRequest struct {
	Symbol        string
	Side          string
	Quantity      float64
	QuoteOrderQty float64
	ClientOrderID string
}

// CreateOrderResponse represents the response from creating a new order.
type CreateOrderResponse struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId"`
	TransactTime        int64  `json:"transactTime"`
	Price               string `json:"price"`
	OrigQuantity        string `json:"origQty"`
	ExecutedQuantity    string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Status              string `json:"status"`
	TimeInForce         string `json:"timeInForce"`
	Type                string `json:"type"`
	Side                string `json:"side"`
}

// AveragePrice is the quote amount paid per unit, or 0 for an unfilled order.
func (r *CreateOrderResponse) AveragePrice() float64 {
	executed, _ := strconv.ParseFloat(r.ExecutedQuantity, 64)
	quote, _ := strconv.ParseFloat(r.CummulativeQuoteQty, 64)
	if executed == 0 {
		return 0
	}
	return quote / executed
}

// CreateOrder places a new MARKET order on Binance.
func (c *RestClient) CreateOrder(ctx context.Context, order OrderRequest) (*CreateOrderResponse, error) {
	if order.Side != OrderSideBuy && order.Side != OrderSideSell {
		return nil, fmt.Errorf("invalid order side %q", order.Side)
	}
	if order.Quantity <= 0 && order.QuoteOrderQty <= 0 {
		return nil, fmt.Errorf("order for %s needs a positive quantity", order.Symbol)
	}

	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("side", order.Side)
	params.Set("type", OrderTypeMarket)
	if order.Quantity > 0 {
		params.Set("quantity", strconv.FormatFloat(order.Quantity, 'f', -1, 64))
	} else {
		params.Set("quoteOrderQty", strconv.FormatFloat(order.QuoteOrderQty, 'f', -1, 64))
	}
	if order.ClientOrderID != "" {
		params.Set("newClientOrderId", order.ClientOrderID)
	}
	params.Set("newOrderRespType", "RESULT")

	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(c.signedQuery(params)).
		SetResult(&CreateOrderResponse{})

	resp, err := c.doRequest(ctx, http.MethodPost, "/api/v3/order", req)
	if err != nil {
		c.logger.Error("Failed to create order",
			zap.Error(err),
			zap.String("symbol", order.Symbol),
			zap.String("side", order.Side),
		)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	result := resp.Result().(*CreateOrderResponse)
	c.logger.Info("Successfully created order", zap.Any("order", result))
	return result, nil
}
