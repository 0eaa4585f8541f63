package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/blackscythe123/track-my-crypto/internal/alerting"
	"github.com/blackscythe123/track-my-crypto/internal/config"
	"github.com/blackscythe123/track-my-crypto/internal/market"
	"github.com/blackscythe123/track-my-crypto/internal/metrics"
	"github.com/blackscythe123/track-my-crypto/internal/news"
	"github.com/blackscythe123/track-my-crypto/internal/scheduler"
	"github.com/blackscythe123/track-my-crypto/internal/service"
	"github.com/blackscythe123/track-my-crypto/internal/storage"
	"github.com/blackscythe123/track-my-crypto/internal/wallet"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newMarketClient() *market.Client {
	return market.NewClient(market.Options{
		BaseURL:           a.Config.CoinGecko.BaseURL,
		APIKey:            a.Config.CoinGecko.APIKey,
		VsCurrency:        a.Config.CoinGecko.VsCurrency,
		BatchSize:         a.Config.CoinGecko.BatchSize,
		Timeout:           a.Config.CoinGecko.RequestTimeout,
		RequestsPerSecond: a.Config.CoinGecko.RequestsPerSecond,
		UserAgent:         a.Config.CoinGecko.UserAgent,
	}, a.Logger)
}

func (a *App) newBalanceResolver() *wallet.Resolver {
	evm := wallet.NewEVMProvider(wallet.EVMOptions{
		APIKey:      a.Config.Moralis.APIKey,
		BaseURL:     a.Config.Moralis.EVMBaseURL,
		Timeout:     a.Config.Moralis.RequestTimeout,
		ChainHexIDs: a.Config.Moralis.Chains,
		RPCURLs:     a.Config.Ethereum.RPCURLs,
		RPCTimeout:  a.Config.Ethereum.RequestTimeout,
	}, a.Logger)

	sol := wallet.NewSolanaProvider(wallet.SolanaOptions{
		APIKey:  a.Config.Moralis.APIKey,
		BaseURL: a.Config.Moralis.SolanaBaseURL,
		Timeout: a.Config.Moralis.RequestTimeout,
	}, a.Logger)

	btc := wallet.NewBitcoinProvider(wallet.BitcoinOptions{
		BaseURL: a.Config.Bitcoin.BaseURL,
		Timeout: a.Config.Bitcoin.RequestTimeout,
	}, a.Logger)

	return wallet.NewResolver(evm, sol, btc)
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Cliq.Enabled {
		return nil
	}
	cfg := a.Config.Cliq
	return alerting.NewCliqNotifier(cfg.BotToken, cfg.BotID, cfg.APIBase, cfg.RequestTimeout, a.Logger)
}

func (a *App) newNewsSource() news.Source {
	if a.Config.News.APIKey == "" {
		return nil
	}
	return news.NewClient(news.Options{
		APIKey:  a.Config.News.APIKey,
		BaseURL: a.Config.News.BaseURL,
		Timeout: a.Config.News.RequestTimeout,
	}, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, errors.New("database.dsn is not configured")
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) buildService(store *storage.Store, sched *scheduler.Scheduler) *service.Service {
	stores := service.Stores{
		Wallets:   store,
		Holdings:  store,
		Snapshots: store,
		Alerts:    store,
		Users:     store,
		Locker:    store,
	}
	gate := alerting.NewGate(store, a.Config.Volatility.Cooldown)
	return service.New(a.Config, sched, stores, a.newBalanceResolver(), a.newMarketClient(), gate, a.newNotifier(), a.newNewsSource(), a.Logger)
}

// Run executes the long-running reconciliation service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if a.Config.Metrics.Enabled {
		srv := metrics.Serve(a.Config.Metrics.Listen, a.Logger)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		a.Logger.Info().Str("addr", a.Config.Metrics.Listen).Msg("metrics listener started")
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc := a.buildService(store, sched)

	a.Logger.Info().Msg("starting reconciliation service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("reconciliation service stopped")
	return nil
}

// Once executes a single reconciliation cycle and writes the summary to
// stdout, the entry point an external scheduler calls.
func (a *App) Once(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := a.buildService(store, nil)
	summary := svc.RunCycle(ctx)

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit    int
	CliqUser string
}

// ExportOptions hold parameters for exporting a user's portfolio.
type ExportOptions struct {
	CliqUser string
	CSVPath  string
	PNGPath  string
}
