package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// EVMOptions parameterise the EVM-family provider.
type EVMOptions struct {
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	ChainHexIDs map[string]string
	RPCURLs     map[string]string
	RPCTimeout  time.Duration
}

// EVMProvider queries native and ERC-20 balances for EVM-compatible chains
// via the Moralis deep-index API, with an optional JSON-RPC fallback for the
// native balance.
type EVMProvider struct {
	opts    EVMOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string

	rpcMux     sync.Mutex
	rpcClients map[string]*ethclient.Client
}

// NewEVMProvider constructs the EVM-family provider.
func NewEVMProvider(opts EVMOptions, logger zerolog.Logger) *EVMProvider {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://deep-index.moralis.io/api/v2.2"
	}

	return &EVMProvider{
		opts:       opts,
		logger:     logger.With().Str("component", "evm_provider").Logger(),
		client:     &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		rpcClients: make(map[string]*ethclient.Client),
	}
}

// FetchBalances returns the native balance plus all non-zero ERC-20 token
// balances for an address.
func (p *EVMProvider) FetchBalances(ctx context.Context, address string, chain Chain) ([]Balance, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid evm address %q", address)
	}
	chainHex, ok := p.opts.ChainHexIDs[chain.String()]
	if !ok {
		return nil, fmt.Errorf("chain %s not configured for moralis", chain)
	}
	if p.opts.APIKey == "" {
		return nil, fmt.Errorf("moralis api key not configured")
	}

	var balances []Balance

	native, err := p.fetchNative(ctx, address, chain, chainHex)
	if err != nil {
		p.logger.Warn().Err(err).Str("chain", chain.String()).Msg("native balance fetch failed")
	} else if native.Sign() > 0 {
		balances = append(balances, Balance{
			CoinID: NativeCoinID(chain),
			Amount: native,
			Chain:  chain,
		})
	}

	tokens, err := p.fetchTokens(ctx, address, chain, chainHex)
	if err != nil {
		return balances, fmt.Errorf("fetch token balances: %w", err)
	}
	balances = append(balances, tokens...)

	return balances, nil
}

func (p *EVMProvider) fetchNative(ctx context.Context, address string, chain Chain, chainHex string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/%s/balance?chain=%s", p.baseURL, address, chainHex)
	payload, err := p.get(ctx, endpoint)
	if err != nil {
		if fallback, rpcErr := p.nativeViaRPC(ctx, address, chain); rpcErr == nil {
			return fallback, nil
		}
		return decimal.Decimal{}, err
	}

	var resp struct {
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode native balance: %w", err)
	}
	if resp.Balance == "" {
		return decimal.Zero, nil
	}

	wei, err := decimal.NewFromString(resp.Balance)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse native balance: %w", err)
	}
	return wei.Shift(-18), nil
}

func (p *EVMProvider) fetchTokens(ctx context.Context, address string, chain Chain, chainHex string) ([]Balance, error) {
	endpoint := fmt.Sprintf("%s/%s/erc20?chain=%s", p.baseURL, address, chainHex)
	payload, err := p.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var tokens []struct {
		Symbol   string `json:"symbol"`
		Name     string `json:"name"`
		Balance  string `json:"balance"`
		Decimals int32  `json:"decimals"`
	}
	if err := json.Unmarshal(payload, &tokens); err != nil {
		return nil, fmt.Errorf("decode token balances: %w", err)
	}

	balances := make([]Balance, 0, len(tokens))
	for _, token := range tokens {
		raw, err := decimal.NewFromString(token.Balance)
		if err != nil {
			p.logger.Warn().Str("symbol", token.Symbol).Msg("unparseable token balance, skipping")
			continue
		}
		decimals := token.Decimals
		if decimals <= 0 {
			decimals = 18
		}
		amount := raw.Shift(-decimals)
		if amount.Sign() <= 0 {
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

// nativeViaRPC queries the chain directly when the indexer is unavailable.
func (p *EVMProvider) nativeViaRPC(ctx context.Context, address string, chain Chain) (decimal.Decimal, error) {
	rpcURL, ok := p.opts.RPCURLs[chain.String()]
	if !ok || rpcURL == "" {
		return decimal.Decimal{}, fmt.Errorf("no rpc url configured for chain %s", chain)
	}

	timeout := p.opts.RPCTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := p.getRPCClient(ctx, chain.String(), rpcURL)
	if err != nil {
		return decimal.Decimal{}, err
	}

	balance, err := client.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("rpc balance query: %w", err)
	}
	return decimal.NewFromBigInt(balance, -18), nil
}

func (p *EVMProvider) getRPCClient(ctx context.Context, chain, rpcURL string) (*ethclient.Client, error) {
	p.rpcMux.Lock()
	defer p.rpcMux.Unlock()

	if client, ok := p.rpcClients[chain]; ok {
		return client, nil
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	p.rpcClients[chain] = client
	return client, nil
}

func (p *EVMProvider) get(ctx context.Context, endpoint string) ([]byte, error) {
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
		return nil, fmt.Errorf("moralis api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	return payload, nil
}
