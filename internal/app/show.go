package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/blackscythe123/track-my-crypto/internal/storage"
)

// Show prints recent alerts, or a user's valued portfolio when a chat user
// id is given.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if opts.CliqUser != "" {
		return a.showPortfolio(ctx, store, opts.CliqUser)
	}
	return a.showAlerts(ctx, store, opts.Limit)
}

func (a *App) showAlerts(ctx context.Context, store *storage.Store, limit int) error {
	if limit <= 0 {
		limit = 20
	}

	alerts, err := store.ListRecentAlerts(ctx, limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Println("no alerts recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tUSER\tCOIN\tCHANGE\tMESSAGE")
	for _, alert := range alerts {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s%%\t%s\n",
			alert.CreatedAt.UTC().Format(time.RFC3339),
			alert.UserID,
			alert.CoinID,
			alert.ChangePct.StringFixed(2),
			alert.Message,
		)
	}
	return w.Flush()
}

func (a *App) showPortfolio(ctx context.Context, store *storage.Store, cliqUser string) error {
	user, err := store.GetUserByCliqID(ctx, cliqUser)
	if err != nil {
		return err
	}
	if user == nil {
		return errors.New("user not found")
	}

	svc := a.buildService(store, nil)
	portfolio, err := svc.Portfolio(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(portfolio.Positions) == 0 {
		fmt.Println("no holdings tracked")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COIN\tCHAIN\tAMOUNT\tPRICE\tVALUE")
	for _, position := range portfolio.Positions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			position.CoinID,
			position.Chain,
			position.Amount.String(),
			position.Price.StringFixed(2),
			position.Value.StringFixed(2),
		)
	}
	fmt.Fprintf(w, "TOTAL\t\t\t\t%s\n", portfolio.Total.StringFixed(2))
	return w.Flush()
}
