package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var satoshisPerBTC = decimal.NewFromInt(100_000_000)

// BitcoinOptions parameterise the UTXO provider.
type BitcoinOptions struct {
	BaseURL string
	Timeout time.Duration
}

// BitcoinProvider queries the BlockCypher address balance endpoint.
type BitcoinProvider struct {
	opts    BitcoinOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewBitcoinProvider constructs the Bitcoin provider.
func NewBitcoinProvider(opts BitcoinOptions, logger zerolog.Logger) *BitcoinProvider {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.blockcypher.com/v1/btc/main"
	}

	return &BitcoinProvider{
		opts:    opts,
		logger:  logger.With().Str("component", "bitcoin_provider").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchBalances returns the confirmed BTC balance for an address.
func (p *BitcoinProvider) FetchBalances(ctx context.Context, address string, chain Chain) ([]Balance, error) {
	endpoint := fmt.Sprintf("%s/addrs/%s/balance", p.baseURL, address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("blockcypher api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var result struct {
		FinalBalance int64 `json:"final_balance"`
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode balance response: %w", err)
	}

	amount := decimal.NewFromInt(result.FinalBalance).Div(satoshisPerBTC)
	if amount.Sign() <= 0 {
		return nil, nil
	}

	return []Balance{{CoinID: "bitcoin", Amount: amount, Chain: chain}}, nil
}
