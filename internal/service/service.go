// Package service drives the reconciliation cycle: wallet sync, price
// refresh, and volatility alerting over the ledger store.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/blackscythe123/track-my-crypto/internal/alerting"
	"github.com/blackscythe123/track-my-crypto/internal/config"
	"github.com/blackscythe123/track-my-crypto/internal/market"
	"github.com/blackscythe123/track-my-crypto/internal/metrics"
	"github.com/blackscythe123/track-my-crypto/internal/news"
	"github.com/blackscythe123/track-my-crypto/internal/scheduler"
	"github.com/blackscythe123/track-my-crypto/internal/storage"
	"github.com/blackscythe123/track-my-crypto/internal/volatility"
	"github.com/blackscythe123/track-my-crypto/internal/wallet"
)

// Summary is the sole externally visible result of one cycle.
type Summary struct {
	RunID         string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	WalletsSynced int       `json:"wallets_synced"`
	PricesChecked int       `json:"prices_checked"`
	AlertsSent    int       `json:"alerts_sent"`
	Errors        []string  `json:"errors"`
}

func (s *Summary) recordError(format string, args ...any) {
	s.Errors = append(s.Errors, fmt.Sprintf(format, args...))
}

// Stores groups the ledger interfaces the orchestrator depends on.
type Stores struct {
	Wallets   storage.WalletStore
	Holdings  storage.HoldingStore
	Snapshots storage.SnapshotStore
	Alerts    storage.AlertStore
	Users     storage.UserDirectory
	Locker    storage.AdvisoryLocker
}

// Service orchestrates the reconciliation and alerting pipeline.
type Service struct {
	scheduler *scheduler.Scheduler
	stores    Stores
	balances  wallet.Provider
	prices    market.PriceSource
	gate      *alerting.Gate
	notifier  alerting.Notifier
	headlines news.Source
	logger    zerolog.Logger

	thresholds  volatility.Thresholds
	walletDelay time.Duration
	lockKey     int64
}

// New constructs the reconciliation service.
func New(cfg *config.Config, sched *scheduler.Scheduler, stores Stores, balances wallet.Provider, prices market.PriceSource, gate *alerting.Gate, notifier alerting.Notifier, headlines news.Source, logger zerolog.Logger) *Service {
	return &Service{
		scheduler:   sched,
		stores:      stores,
		balances:    balances,
		prices:      prices,
		gate:        gate,
		notifier:    notifier,
		headlines:   headlines,
		logger:      logger.With().Str("component", "service").Logger(),
		thresholds:  volatility.NewThresholds(cfg.Volatility.OneHourPct, cfg.Volatility.TwentyFourHPct),
		walletDelay: cfg.Scheduler.WalletDelay,
		lockKey:     cfg.Scheduler.AdvisoryLockKey,
	}
}

// Run begins the scheduled reconciliation loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick executes one cycle under the cycle-level advisory lock.
// Overlapping runs from another instance are skipped, not queued.
func (s *Service) ProcessTick(ctx context.Context, at time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		metrics.IncCycle("skipped")
		s.logger.Debug().Time("cycle", at).Msg("skip cycle because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	summary := s.RunCycle(ctx)
	s.logger.Info().
		Str("run_id", summary.RunID).
		Int("wallets_synced", summary.WalletsSynced).
		Int("prices_checked", summary.PricesChecked).
		Int("alerts_sent", summary.AlertsSent).
		Int("errors", len(summary.Errors)).
		Msg("cycle finished")
	return nil
}

// RunCycle executes the three reconciliation stages and always returns a
// well-formed summary. No single wallet, batch, or user failure aborts the
// remaining work.
func (s *Service) RunCycle(ctx context.Context) Summary {
	summary := Summary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Errors:    make([]string, 0),
	}

	s.syncWallets(ctx, &summary)
	prices := s.refreshPrices(ctx, &summary)
	s.evaluateAndNotify(ctx, prices, &summary)

	summary.FinishedAt = time.Now().UTC()

	metrics.AddWalletsSynced(summary.WalletsSynced)
	metrics.AddAlertsSent(summary.AlertsSent)
	if len(summary.Errors) > 0 {
		metrics.IncCycle("partial")
	} else {
		metrics.IncCycle("clean")
	}

	return summary
}

// syncWallets reconciles every linked wallet's on-chain balances into the
// holdings ledger. A wallet with zero balances performs no upserts and is
// not an error.
func (s *Service) syncWallets(ctx context.Context, summary *Summary) {
	wallets, err := s.stores.Wallets.ListWallets(ctx)
	if err != nil {
		summary.recordError("wallet sync: list wallets: %v", err)
		return
	}

	for i, w := range wallets {
		if i > 0 {
			if err := s.pause(ctx); err != nil {
				summary.recordError("wallet sync: %v", err)
				return
			}
		}

		chain, err := wallet.ParseChain(w.Chain)
		if err != nil {
			summary.recordError("wallet sync: wallet %d: %v", w.ID, err)
			continue
		}

		balances, err := s.balances.FetchBalances(ctx, w.Address, chain)
		if err != nil {
			summary.recordError("wallet sync: %s %s: %v", chain, w.Address, err)
			continue
		}

		for _, balance := range balances {
			holding := storage.Holding{
				UserID: w.UserID,
				CoinID: balance.CoinID,
				Chain:  balance.Chain.String(),
				Amount: balance.Amount,
			}
			if err := s.stores.Holdings.UpsertHolding(ctx, holding); err != nil {
				summary.recordError("wallet sync: upsert %s: %v", balance.CoinID, err)
			}
		}

		if err := s.stores.Wallets.TouchWalletSynced(ctx, w.ID, time.Now().UTC()); err != nil {
			summary.recordError("wallet sync: touch wallet %d: %v", w.ID, err)
		}
		summary.WalletsSynced++
	}
}

// refreshPrices queries current prices for every distinct held coin and
// overwrites the cached snapshots. Assets with no holdings are never
// queried.
func (s *Service) refreshPrices(ctx context.Context, summary *Summary) map[string]market.PriceInfo {
	coinIDs, err := s.stores.Holdings.DistinctCoinIDs(ctx)
	if err != nil {
		summary.recordError("price refresh: distinct coins: %v", err)
		return nil
	}
	metrics.SetAssetsTracked(len(coinIDs))
	if len(coinIDs) == 0 {
		return nil
	}

	prices, err := s.prices.GetPrices(ctx, coinIDs)
	if err != nil {
		summary.recordError("price refresh: %v", err)
		return prices
	}
	summary.PricesChecked = len(prices)

	now := time.Now().UTC()
	for coinID, info := range prices {
		snapshot := storage.PriceSnapshot{
			CoinID:    coinID,
			Price:     info.Price,
			Change1h:  info.Change1h,
			Change24h: info.Change24h,
			UpdatedAt: now,
		}
		if err := s.stores.Snapshots.UpsertPriceSnapshot(ctx, snapshot); err != nil {
			summary.recordError("price refresh: upsert snapshot %s: %v", coinID, err)
		}
	}

	return prices
}

// evaluateAndNotify runs the volatility evaluator per priced coin and
// dispatches gated alerts to every holder with a configured channel.
func (s *Service) evaluateAndNotify(ctx context.Context, prices map[string]market.PriceInfo, summary *Summary) {
	now := time.Now().UTC()

	for coinID, info := range prices {
		candidates := volatility.Evaluate(info, s.thresholds)
		if len(candidates) == 0 {
			continue
		}

		users, err := s.stores.Users.UsersHoldingCoin(ctx, coinID)
		if err != nil {
			summary.recordError("alerting: users holding %s: %v", coinID, err)
			continue
		}

		var headlines []news.Headline
		if s.headlines != nil && info.Symbol != "" {
			if fetched, err := s.headlines.Headlines(ctx, info.Symbol); err != nil {
				s.logger.Warn().Err(err).Str("coin", coinID).Msg("headline fetch failed")
			} else {
				headlines = fetched
			}
		}

		for _, candidate := range candidates {
			for _, user := range users {
				if !user.HasChannel() {
					continue
				}
				s.dispatchAlert(ctx, user, coinID, info, candidate, headlines, now, summary)
			}
		}
	}
}

// dispatchAlert makes the cooldown decision for one (user, coin) pair and,
// on permit, appends the alert record before attempting delivery. Delivery
// failure never rolls back the appended record.
func (s *Service) dispatchAlert(ctx context.Context, user storage.User, coinID string, info market.PriceInfo, candidate volatility.Alert, headlines []news.Headline, now time.Time, summary *Summary) {
	if s.stores.Locker != nil {
		unlock, acquired, err := s.stores.Locker.TryAdvisoryLock(ctx, alerting.PairLockKey(user.ID, coinID))
		if err != nil {
			summary.recordError("alerting: pair lock %d/%s: %v", user.ID, coinID, err)
			return
		}
		if !acquired {
			// Another cycle is deciding for this pair right now.
			return
		}
		defer unlock()
	}

	permitted, err := s.gate.MayNotify(ctx, user.ID, coinID, now)
	if err != nil {
		summary.recordError("alerting: cooldown %d/%s: %v", user.ID, coinID, err)
		return
	}
	if !permitted {
		return
	}

	record := storage.AlertRecord{
		UserID:    user.ID,
		CoinID:    coinID,
		ChangePct: candidate.Change,
		Message:   candidate.Message,
	}
	if _, err := s.stores.Alerts.InsertAlert(ctx, record); err != nil {
		summary.recordError("alerting: insert alert %d/%s: %v", user.ID, coinID, err)
		return
	}

	if s.notifier == nil {
		return
	}

	note := alerting.Notification{
		CoinID:    coinID,
		CoinName:  info.Name,
		Symbol:    info.Symbol,
		Price:     info.Price,
		Alert:     candidate,
		Headlines: headlines,
	}
	if err := s.notifier.Notify(ctx, *user.ChannelID, note); err != nil {
		summary.recordError("alerting: deliver %d/%s: %v", user.ID, coinID, err)
		return
	}
	summary.AlertsSent++
}

func (s *Service) pause(ctx context.Context) error {
	if s.walletDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(s.walletDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.stores.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.stores.Locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
