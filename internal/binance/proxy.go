package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrInvalidProxyPath is returned when the requested Binance endpoint is not an absolute path.
var ErrInvalidProxyPath = errors.New("binance proxy: path must start with /")

// ProxyRequest is one request relayed to Binance without interpretation.
type ProxyRequest struct {
	Method string
	Path   string
	Query  url.Values
	APIKey string
	Body   []byte
}

// ProxyResponse carries the upstream answer back unchanged.
type ProxyResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Proxy forwards requests to a fixed Binance host.
// It never retries: a failure is reported to the caller as is.
type Proxy struct {
	client *resty.Client
	logger *zap.Logger
}

// NewProxy creates a proxy bound to baseURL.
func NewProxy(baseURL string, timeout time.Duration, logger *zap.Logger) *Proxy {
	client := resty.New().SetBaseURL(strings.TrimRight(baseURL, "/"))
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &Proxy{client: client, logger: logger}
}

// Forward relays r and returns the upstream status and body.
// Only transport failures are returned as errors; HTTP error statuses are part of the response.
func (p *Proxy) Forward(ctx context.Context, r ProxyRequest) (*ProxyResponse, error) {
	if !strings.HasPrefix(r.Path, "/") || strings.Contains(r.Path, "..") {
		return nil, ErrInvalidProxyPath
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	req := p.client.R().
		SetContext(ctx).
		SetQueryParamsFromValues(r.Query)
	if r.APIKey != "" {
		req.SetHeader("X-MBX-APIKEY", r.APIKey)
	}
	if len(r.Body) > 0 && method != http.MethodGet {
		req.SetHeader("Content-Type", "application/json").SetBody(r.Body)
	}

	p.logger.Debug("Forwarding request", zap.String("method", method), zap.String("path", r.Path))
	resp, err := req.Execute(method, r.Path)
	if err != nil {
		p.logger.Error("Proxy request failed", zap.String("path", r.Path), zap.Error(err))
		return nil, fmt.Errorf("proxy request to %s failed: %w", r.Path, err)
	}

	contentType := resp.Header().Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	return &ProxyResponse{
		StatusCode:  resp.StatusCode(),
		ContentType: contentType,
		Body:        resp.Body(),
	}, nil
}
