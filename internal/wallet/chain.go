package wallet

import (
	"fmt"
	"strings"
)

// Chain identifies a supported blockchain.
type Chain string

const (
	ChainETH   Chain = "eth"
	ChainBSC   Chain = "bsc"
	ChainMatic Chain = "matic"
	ChainAvax  Chain = "avax"
	ChainFTM   Chain = "ftm"
	ChainArb   Chain = "arb"
	ChainOP    Chain = "op"
	ChainBase  Chain = "base"
	ChainSOL   Chain = "sol"
	ChainBTC   Chain = "btc"
)

// Family classifies chains by their balance query model.
type Family string

const (
	FamilyEVM     Family = "evm"
	FamilySolana  Family = "solana"
	FamilyBitcoin Family = "bitcoin"
)

var supportedChains = []Chain{
	ChainETH, ChainBSC, ChainMatic, ChainAvax, ChainFTM,
	ChainArb, ChainOP, ChainBase, ChainSOL, ChainBTC,
}

// Supported returns all chains accepted by ParseChain.
func Supported() []Chain {
	out := make([]Chain, len(supportedChains))
	copy(out, supportedChains)
	return out
}

// ParseChain validates a user-supplied chain name.
func ParseChain(s string) (Chain, error) {
	c := Chain(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range supportedChains {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unsupported chain %q", s)
}

// Family returns the chain's balance query family.
func (c Chain) Family() Family {
	switch c {
	case ChainSOL:
		return FamilySolana
	case ChainBTC:
		return FamilyBitcoin
	default:
		return FamilyEVM
	}
}

func (c Chain) String() string { return string(c) }
