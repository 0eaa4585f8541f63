// Package wallet resolves on-chain addresses to holdings, one provider per
// chain family.
package wallet

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Balance is one observed (coin, quantity) pair for a wallet.
type Balance struct {
	CoinID string
	Amount decimal.Decimal
	Chain  Chain
}

// Provider fetches all balances for an address on one chain. Implementations
// cover one chain family each; a failed query yields an empty result plus
// the error, never a partial panic.
type Provider interface {
	FetchBalances(ctx context.Context, address string, chain Chain) ([]Balance, error)
}

// Resolver dispatches balance lookups to the provider for a chain's family.
type Resolver struct {
	evm *EVMProvider
	sol *SolanaProvider
	btc *BitcoinProvider
}

// NewResolver wires the per-family providers.
func NewResolver(evm *EVMProvider, sol *SolanaProvider, btc *BitcoinProvider) *Resolver {
	return &Resolver{evm: evm, sol: sol, btc: btc}
}

// FetchBalances routes to the chain family's provider.
func (r *Resolver) FetchBalances(ctx context.Context, address string, chain Chain) ([]Balance, error) {
	switch chain.Family() {
	case FamilyEVM:
		return r.evm.FetchBalances(ctx, address, chain)
	case FamilySolana:
		return r.sol.FetchBalances(ctx, address, chain)
	case FamilyBitcoin:
		return r.btc.FetchBalances(ctx, address, chain)
	default:
		return nil, fmt.Errorf("no provider for chain %s", chain)
	}
}

var _ Provider = (*Resolver)(nil)
