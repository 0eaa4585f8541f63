// Package command defines the tagged command variant the chat glue hands to
// the core. How a command was derived (slash command, form submission, AI
// intent parsing) is a collaborator concern; the core only sees a validated
// Command.
package command

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/blackscythe123/track-my-crypto/internal/wallet"
)

// Kind tags the command variant.
type Kind string

const (
	KindPrice      Kind = "price"
	KindReasons    Kind = "reasons"
	KindAddCoin    Kind = "addcoin"
	KindRemove     Kind = "remove"
	KindPortfolio  Kind = "portfolio"
	KindLinkWallet Kind = "linkwallet"
	KindClear      Kind = "clear"
	KindChat       Kind = "chat"
	KindHelp       Kind = "help"
)

// Command is one validated user instruction.
type Command struct {
	Kind    Kind
	Coin    string
	Amount  decimal.Decimal
	Chain   wallet.Chain
	Address string
	Text    string
}

// Parse validates a raw command name and argument string into a Command.
// Aliases are normalised (link → linkwallet, clearportfolio → clear) and a
// leading slash on the name is tolerated.
func Parse(name, args string) (Command, error) {
	name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "/")))
	args = strings.TrimSpace(args)

	switch name {
	case "price":
		return parseCoinArg(KindPrice, args, "usage: /price <coin>")
	case "reasons":
		return parseCoinArg(KindReasons, args, "usage: /reasons <coin>")
	case "remove":
		return parseCoinArg(KindRemove, args, "usage: /remove <coin>")
	case "addcoin":
		return parseAddCoin(args)
	case "portfolio":
		return Command{Kind: KindPortfolio}, nil
	case "link", "linkwallet":
		return parseLinkWallet(args)
	case "clear", "clearportfolio":
		return Command{Kind: KindClear}, nil
	case "chat":
		return Command{Kind: KindChat, Text: args}, nil
	case "help":
		return Command{Kind: KindHelp}, nil
	default:
		return Command{}, fmt.Errorf("unknown command %q", name)
	}
}

func parseCoinArg(kind Kind, args, usage string) (Command, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%s", usage)
	}
	return Command{Kind: kind, Coin: strings.ToLower(fields[0])}, nil
}

// parseAddCoin accepts both "<coin> <amount>" and "<amount> <coin>".
func parseAddCoin(args string) (Command, error) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return Command{}, fmt.Errorf("usage: /addcoin <coin> <amount>")
	}

	coin := fields[0]
	amount, err := decimal.NewFromString(fields[1])
	if err != nil {
		// Tolerate "<amount> <coin>" ordering.
		coin = fields[1]
		amount, err = decimal.NewFromString(fields[0])
	}
	if err != nil {
		return Command{}, fmt.Errorf("usage: /addcoin <coin> <amount>")
	}
	if amount.Sign() <= 0 {
		return Command{}, fmt.Errorf("amount must be greater than zero")
	}
	return Command{Kind: KindAddCoin, Coin: strings.ToLower(coin), Amount: amount}, nil
}

func parseLinkWallet(args string) (Command, error) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return Command{}, fmt.Errorf("usage: /linkwallet <chain> <address>")
	}

	chain, err := wallet.ParseChain(fields[0])
	if err != nil {
		return Command{}, err
	}
	return Command{Kind: KindLinkWallet, Chain: chain, Address: fields[1]}, nil
}
