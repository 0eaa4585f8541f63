package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/blackscythe123/track-my-crypto/internal/metrics"
)

const (
	marketsPath = "/coins/markets"
	searchPath  = "/search"
)

// Options parameterise the CoinGecko client.
type Options struct {
	BaseURL           string
	APIKey            string
	VsCurrency        string
	BatchSize         int
	Timeout           time.Duration
	RequestsPerSecond float64
	UserAgent         string
}

// Client fetches market data from CoinGecko.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

// NewClient constructs a market data client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}

	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}

	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "market_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		baseURL: baseURL,
	}
}

// GetPrices resolves coin ids to current prices. Ids are deduplicated and
// lowercased; requests are split into sequential batches. A rate-limited
// batch stops all further requests and the partial map is returned with no
// error; any other batch failure is logged and skipped.
func (c *Client) GetPrices(ctx context.Context, coinIDs []string) (map[string]PriceInfo, error) {
	result := make(map[string]PriceInfo)
	if len(coinIDs) == 0 {
		return result, nil
	}

	ids := lo.Uniq(lo.Map(coinIDs, func(id string, _ int) string {
		return strings.ToLower(strings.TrimSpace(id))
	}))
	ids = lo.Filter(ids, func(id string, _ int) bool { return id != "" })
	sort.Strings(ids)

	for offset := 0; offset < len(ids); offset += c.opts.BatchSize {
		end := offset + c.opts.BatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[offset:end]

		if err := c.limiter.Wait(ctx); err != nil {
			return result, err
		}

		limited, err := c.fetchBatch(ctx, batch, result)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return result, err
			}
			c.logger.Warn().Err(err).Int("batch_size", len(batch)).Msg("price batch failed, skipping")
			continue
		}
		if limited {
			metrics.IncRateLimitHit()
			c.logger.Warn().Int("collected", len(result)).Msg("rate limit hit, returning partial prices")
			break
		}
	}

	return result, nil
}

// fetchBatch issues one markets request. The bool result reports an upstream
// rate-limit signal.
func (c *Client) fetchBatch(ctx context.Context, batch []string, out map[string]PriceInfo) (bool, error) {
	metrics.IncPriceBatch()

	params := url.Values{}
	params.Set("vs_currency", c.vsCurrency())
	params.Set("ids", strings.Join(batch, ","))
	params.Set("price_change_percentage", "1h,24h")

	endpoint := c.baseURL + marketsPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return true, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, parseHTTPError(resp.StatusCode, payload)
	}

	var rows []marketRow
	if err := json.Unmarshal(payload, &rows); err != nil {
		return false, fmt.Errorf("decode markets response: %w", err)
	}

	for _, row := range rows {
		if row.ID == "" {
			continue
		}
		out[row.ID] = row.toPriceInfo()
	}
	return false, nil
}

// SearchCoin resolves a name or symbol to the first matching coin id.
func (c *Client) SearchCoin(ctx context.Context, query string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("query", query)

	endpoint := c.baseURL + searchPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", parseHTTPError(resp.StatusCode, payload)
	}

	var result struct {
		Coins []struct {
			ID string `json:"id"`
		} `json:"coins"`
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		return "", fmt.Errorf("decode search response: %w", err)
	}
	if len(result.Coins) == 0 {
		return "", fmt.Errorf("no coin found for %q", query)
	}
	return result.Coins[0].ID, nil
}

func (c *Client) vsCurrency() string {
	if c.opts.VsCurrency != "" {
		return strings.ToLower(c.opts.VsCurrency)
	}
	return "inr"
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "trackmycrypto/1.0")
	}
	if c.opts.APIKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.opts.APIKey)
	}
}

type marketRow struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Symbol       string   `json:"symbol"`
	CurrentPrice *float64 `json:"current_price"`
	Change1h     *float64 `json:"price_change_percentage_1h_in_currency"`
	Change24h    *float64 `json:"price_change_percentage_24h_in_currency"`
}

func (r marketRow) toPriceInfo() PriceInfo {
	info := PriceInfo{
		Name:   r.Name,
		Symbol: strings.ToUpper(r.Symbol),
	}
	if info.Name == "" {
		info.Name = r.ID
	}
	if r.CurrentPrice != nil {
		info.Price = decimal.NewFromFloat(*r.CurrentPrice)
	}
	if r.Change1h != nil {
		info.Change1h = decimal.NewFromFloat(*r.Change1h)
	}
	if r.Change24h != nil {
		info.Change24h = decimal.NewFromFloat(*r.Change24h)
	}
	return info
}

type errorResponse struct {
	Status struct {
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
	Error string `json:"error"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Status.ErrorMessage != "" {
			return fmt.Errorf("coingecko api error (%d): %s", status, apiErr.Status.ErrorMessage)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("coingecko api error (%d): %s", status, apiErr.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("coingecko api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("coingecko api error (%d)", status)
}

var _ PriceSource = (*Client)(nil)
var _ CoinSearcher = (*Client)(nil)
