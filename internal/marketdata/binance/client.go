// Package binance is a REST client for the Binance spot API: public market
// data (klines, 24h tickers, prices) and the signed account and order
// endpoints.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	MainnetURL = "https://api.binance.com"
	TestnetURL = "https://testnet.binance.vision"

	defaultTimeout = 10 * time.Second
	defaultRPS     = 10
	recvWindow     = "5000"
)

// Config configures a Client.
type Config struct {
	BaseURL    string        // default: MainnetURL
	APIKey     string        // only needed for signed endpoints
	APISecret  string        // only needed for signed endpoints
	RPS        float64       // client-side request rate limit (default 10)
	Timeout    time.Duration // per-request timeout (default 10s)
	HTTPClient *http.Client  // optional, overrides Timeout
}

// Client talks to one Binance REST base URL.
type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string

	http    *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

// APIError is an error payload returned by Binance.
type APIError struct {
	Status int    `json:"-"`
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("binance: http %d", e.Status)
	}
	return fmt.Sprintf("binance: http %d: code=%d %s", e.Status, e.Code, e.Msg)
}

// ClientError reports a request Binance rejected on its merits. Rate limit
// (429) and ban (418) responses are excluded: those mean back off.
func (e *APIError) ClientError() bool {
	switch e.Status {
	case http.StatusTooManyRequests, http.StatusTeapot:
		return false
	}
	return e.Status >= 400 && e.Status < 500
}

// New creates a Binance client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = MainnetURL
	}
	if cfg.RPS <= 0 {
		cfg.RPS = defaultRPS
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		http:      hc,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RPS), max(1, int(cfg.RPS))),
		now:       time.Now,
	}
}

// WithCredentials returns a copy of c that signs requests with the given
// keys against baseURL. The copy shares c's rate limiter and HTTP client.
func (c *Client) WithCredentials(baseURL, apiKey, apiSecret string) *Client {
	cp := *c
	if baseURL != "" {
		cp.baseURL = strings.TrimRight(baseURL, "/")
	}
	cp.apiKey = apiKey
	cp.apiSecret = apiSecret
	return &cp
}

// BaseURL returns the REST base URL the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// get performs an unsigned GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, params.Encode(), false, out)
}

// signed performs a request signed with HMAC-SHA256 over the query string.
func (c *Client) signed(ctx context.Context, method, path string, params url.Values, out any) error {
	if c.apiKey == "" || c.apiSecret == "" {
		return fmt.Errorf("binance: %s %s: missing API credentials", method, path)
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	params.Set("recvWindow", recvWindow)
	query := params.Encode()
	query += "&signature=" + Sign(c.apiSecret, query)
	return c.do(ctx, method, path, query, true, out)
}

func (c *Client) do(ctx context.Context, method, path, query string, withKey bool, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("binance: rate limit wait: %w", err)
	}

	u := c.baseURL + path
	if query != "" {
		u += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("binance: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if withKey {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("binance: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("binance: read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("binance: decode %s: %w", path, err)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of payload keyed by secret.
func Sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
