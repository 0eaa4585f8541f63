package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/blackscythe123/track-my-crypto/internal/service"
)

// Export writes a user's valued portfolio as CSV and/or a PNG allocation
// chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.CliqUser == "" {
		return errors.New("--user is required")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	user, err := store.GetUserByCliqID(ctx, opts.CliqUser)
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
		a.Logger.Info().Msg("no holdings to export")
		return nil
	}

	a.Logger.Info().Int("positions", len(portfolio.Positions)).Str("total", portfolio.Total.String()).Msg("exporting portfolio")

	if opts.CSVPath != "" {
		if err := writePortfolioCSV(opts.CSVPath, portfolio); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeAllocationPNG(opts.PNGPath, portfolio); err != nil {
			return err
		}
	}

	return nil
}

func writePortfolioCSV(path string, portfolio service.Portfolio) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"coin_id", "chain", "amount", "price", "value"}); err != nil {
		return err
	}
	for _, position := range portfolio.Positions {
		record := []string{
			position.CoinID,
			position.Chain,
			position.Amount.String(),
			position.Price.String(),
			position.Value.String(),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeAllocationPNG(path string, portfolio service.Portfolio) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	values := make([]chart.Value, 0, len(portfolio.Positions))
	for _, position := range portfolio.Positions {
		value, _ := position.Value.Float64()
		if value <= 0 {
			continue
		}
		values = append(values, chart.Value{
			Value: value,
			Label: fmt.Sprintf("%s (%s)", position.CoinID, position.Chain),
		})
	}
	if len(values) == 0 {
		return errors.New("no priced positions to chart")
	}

	pie := chart.PieChart{
		Title:  "Portfolio allocation",
		Width:  800,
		Height: 800,
		Values: values,
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return pie.Render(chart.PNG, f)
}
