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

// SolanaOptions parameterise the Solana provider.
type SolanaOptions struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// SolanaProvider queries the Moralis Solana gateway portfolio endpoint.
type SolanaProvider struct {
	opts    SolanaOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewSolanaProvider constructs the Solana provider.
func NewSolanaProvider(opts SolanaOptions, logger zerolog.Logger) *SolanaProvider {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://solana-gateway.moralis.io"
	}

	return &SolanaProvider{
		opts:    opts,
		logger:  logger.With().Str("component", "solana_provider").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchBalances returns native SOL plus all non-zero SPL token balances.
func (p *SolanaProvider) FetchBalances(ctx context.Context, address string, chain Chain) ([]Balance, error) {
	if p.opts.APIKey == "" {
		return nil, fmt.Errorf("moralis api key not configured")
	}

	endpoint := fmt.Sprintf("%s/account/mainnet/%s/portfolio", p.baseURL, address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", p.opts.APIKey)

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
		return nil, fmt.Errorf("solana gateway error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var portfolio struct {
		NativeBalance *struct {
			Solana string `json:"solana"`
		} `json:"nativeBalance"`
		Tokens []struct {
			Name   string `json:"name"`
			Symbol string `json:"symbol"`
			Amount string `json:"amount"`
		} `json:"tokens"`
	}
	if err := json.Unmarshal(payload, &portfolio); err != nil {
		return nil, fmt.Errorf("decode portfolio response: %w", err)
	}

	var balances []Balance

	if portfolio.NativeBalance != nil && portfolio.NativeBalance.Solana != "" {
		sol, err := decimal.NewFromString(portfolio.NativeBalance.Solana)
		if err == nil && sol.Sign() > 0 {
			balances = append(balances, Balance{CoinID: "solana", Amount: sol, Chain: chain})
		}
	}

	for _, token := range portfolio.Tokens {
		amount, err := decimal.NewFromString(token.Amount)
		if err != nil || amount.Sign() <= 0 {
			continue
		}
		balances = append(balances, Balance{
			CoinID: MapToken(token.Symbol, token.Name),
			Amount: amount,
			Chain:  chain,
		})
	}

	return balances, nil
}
