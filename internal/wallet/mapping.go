package wallet

import "strings"

// nativeCoinIDs maps each chain to the canonical id of its native coin.
var nativeCoinIDs = map[Chain]string{
	ChainETH:   "ethereum",
	ChainBSC:   "binancecoin",
	ChainMatic: "matic-network",
	ChainAvax:  "avalanche-2",
	ChainFTM:   "fantom",
	ChainArb:   "arbitrum",
	ChainOP:    "optimism",
	ChainBase:  "ethereum",
	ChainSOL:   "solana",
	ChainBTC:   "bitcoin",
}

// tokenCoinIDs maps common token symbols to canonical coin ids.
var tokenCoinIDs = map[string]string{
	"WETH": "ethereum",
	"USDT": "tether",
	"USDC": "usd-coin",
	"DAI":  "dai",
	"LINK": "chainlink",
	"UNI":  "uniswap",
	"WBTC": "bitcoin",
}

// NativeCoinID returns the canonical id for a chain's native coin.
func NativeCoinID(chain Chain) string {
	if id, ok := nativeCoinIDs[chain]; ok {
		return id
	}
	return "ethereum"
}

// MapToken maps a token symbol to a canonical coin id, falling back to a
// derived id (lowercased display name, spaces to hyphens) so unmapped
// tokens are never dropped.
func MapToken(symbol, name string) string {
	if id, ok := tokenCoinIDs[strings.ToUpper(symbol)]; ok {
		return id
	}
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}
