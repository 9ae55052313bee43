package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"fuelops/internal/core/apperror"
	"fuelops/pkg/logger"
)

// ClientConfig holds HTTP client configuration.
type ClientConfig struct {
	// BaseURL of the rates API, e.g. "https://api.exchangerate.host"
	BaseURL string

	// APIKey is sent as access_key when non-empty.
	APIKey string

	// Timeout bounds one fetch. Failures are fatal to a calculation,
	// so keep this short.
	Timeout time.Duration
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
	}
}

// Client fetches rate tables over HTTP.
type Client struct {
	cfg  ClientConfig
	http *http.Client
	log  *logger.Logger
}

// NewClient creates a rate API client.
func NewClient(cfg ClientConfig, log *logger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log.WithComponent("exchange_client"),
	}
}

// ratesResponse mirrors the wire format of the rates API.
type ratesResponse struct {
	Success   bool              `json:"success"`
	Base      string            `json:"base"`
	Timestamp int64             `json:"timestamp"`
	Rates     map[string]string `json:"rates"`
	Error     *struct {
		Code int    `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

// Rates implements Provider. asOf == Latest fetches /latest, otherwise
// the historical table for that date.
func (c *Client) Rates(ctx context.Context, base string, asOf time.Time) (*Rates, error) {
	path := "latest"
	if !asOf.IsZero() {
		path = asOf.UTC().Format("2006-01-02")
	}

	q := url.Values{}
	q.Set("base", base)
	if c.cfg.APIKey != "" {
		q.Set("access_key", c.cfg.APIKey)
	}
	endpoint := fmt.Sprintf("%s/%s?%s", c.cfg.BaseURL, path, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build rates request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperror.NewExchangeRate(base, "*", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperror.NewExchangeRate(base, "*", fmt.Errorf("rates API returned %d", resp.StatusCode))
	}

	var body ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode rates response: %w", err)
	}
	if body.Error != nil {
		return nil, apperror.NewExchangeRate(base, "*",
			fmt.Errorf("rates API error %d: %s", body.Error.Code, body.Error.Info))
	}

	table := &Rates{
		Base:      base,
		Timestamp: time.Unix(body.Timestamp, 0).UTC(),
		Source:    c.cfg.BaseURL,
		Rates:     make(map[string]decimal.Decimal, len(body.Rates)),
	}
	for code, raw := range body.Rates {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			c.log.Warnw("skipping unparseable rate", "currency", code, "value", raw)
			continue
		}
		table.Rates[code] = rate
	}

	c.log.Debugw("fetched rate table",
		"base", base,
		"as_of", path,
		"currencies", len(table.Rates),
	)

	return table, nil
}
