package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackscythe123/track-my-crypto/internal/alerting"
	"github.com/blackscythe123/track-my-crypto/internal/config"
	"github.com/blackscythe123/track-my-crypto/internal/market"
	"github.com/blackscythe123/track-my-crypto/internal/storage"
	"github.com/blackscythe123/track-my-crypto/internal/wallet"
)

type fakeWalletStore struct {
	wallets []storage.Wallet
	touched []int64
	listErr error
}

func (f *fakeWalletStore) ListWallets(ctx context.Context) ([]storage.Wallet, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.wallets, nil
}

func (f *fakeWalletStore) TouchWalletSynced(ctx context.Context, walletID int64, at time.Time) error {
	f.touched = append(f.touched, walletID)
	return nil
}

type holdingKey struct {
	userID int64
	coinID string
	chain  string
}

type fakeHoldingStore struct {
	holdings map[holdingKey]storage.Holding
	upserts  int
}

func newFakeHoldingStore() *fakeHoldingStore {
	return &fakeHoldingStore{holdings: make(map[holdingKey]storage.Holding)}
}

func (f *fakeHoldingStore) UpsertHolding(ctx context.Context, h storage.Holding) error {
	f.upserts++
	f.holdings[holdingKey{h.UserID, h.CoinID, h.Chain}] = h
	return nil
}

func (f *fakeHoldingStore) DistinctCoinIDs(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string
	for key := range f.holdings {
		if !seen[key.coinID] {
			seen[key.coinID] = true
			ids = append(ids, key.coinID)
		}
	}
	return ids, nil
}

func (f *fakeHoldingStore) ListHoldingsByUser(ctx context.Context, userID int64) ([]storage.Holding, error) {
	var out []storage.Holding
	for key, h := range f.holdings {
		if key.userID == userID {
			out = append(out, h)
		}
	}
	return out, nil
}

type fakeSnapshotStore struct {
	snapshots map[string]storage.PriceSnapshot
}

func newFakeSnapshotStore() *fakeSnapshotStore {
	return &fakeSnapshotStore{snapshots: make(map[string]storage.PriceSnapshot)}
}

func (f *fakeSnapshotStore) UpsertPriceSnapshot(ctx context.Context, s storage.PriceSnapshot) error {
	f.snapshots[s.CoinID] = s
	return nil
}

func (f *fakeSnapshotStore) ListPriceSnapshots(ctx context.Context, coinIDs []string) ([]storage.PriceSnapshot, error) {
	var out []storage.PriceSnapshot
	for _, id := range coinIDs {
		if s, ok := f.snapshots[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeAlertStore struct {
	alerts []storage.AlertRecord
	nextID int64
}

func (f *fakeAlertStore) InsertAlert(ctx context.Context, a storage.AlertRecord) (storage.AlertRecord, error) {
	f.nextID++
	a.ID = f.nextID
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	f.alerts = append(f.alerts, a)
	return a, nil
}

func (f *fakeAlertStore) LatestAlert(ctx context.Context, userID int64, coinID string) (*storage.AlertRecord, error) {
	for i := len(f.alerts) - 1; i >= 0; i-- {
		if f.alerts[i].UserID == userID && f.alerts[i].CoinID == coinID {
			a := f.alerts[i]
			return &a, nil
		}
	}
	return nil, nil
}

func (f *fakeAlertStore) ListRecentAlerts(ctx context.Context, limit int) ([]storage.AlertRecord, error) {
	if limit > len(f.alerts) {
		limit = len(f.alerts)
	}
	out := make([]storage.AlertRecord, 0, limit)
	for i := len(f.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.alerts[i])
	}
	return out, nil
}

type fakeUsers struct {
	holders map[string][]storage.User
}

func (f *fakeUsers) UsersHoldingCoin(ctx context.Context, coinID string) ([]storage.User, error) {
	return f.holders[coinID], nil
}

func (f *fakeUsers) GetUserByCliqID(ctx context.Context, cliqUserID string) (*storage.User, error) {
	return nil, nil
}

type fakeBalanceSource struct {
	balances map[string][]wallet.Balance
	errs     map[string]error
	calls    []string
}

func (f *fakeBalanceSource) FetchBalances(ctx context.Context, address string, chain wallet.Chain) ([]wallet.Balance, error) {
	f.calls = append(f.calls, address)
	if err, ok := f.errs[address]; ok {
		return nil, err
	}
	return f.balances[address], nil
}

type fakePriceSource struct {
	prices map[string]market.PriceInfo
	err    error
}

func (f *fakePriceSource) GetPrices(ctx context.Context, coinIDs []string) (map[string]market.PriceInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]market.PriceInfo)
	for _, id := range coinIDs {
		if info, ok := f.prices[id]; ok {
			out[id] = info
		}
	}
	return out, nil
}

type sentNote struct {
	channelID string
	note      alerting.Notification
}

type fakeNotifier struct {
	sent []sentNote
	err  error
}

func (f *fakeNotifier) Notify(ctx context.Context, channelID string, note alerting.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentNote{channelID: channelID, note: note})
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Scheduler: config.SchedulerConfig{WalletDelay: 0},
		Volatility: config.VolatilityConfig{
			OneHourPct:     3,
			TwentyFourHPct: 5,
			Cooldown:       6 * time.Hour,
		},
	}
}

type harness struct {
	svc       *Service
	wallets   *fakeWalletStore
	holdings  *fakeHoldingStore
	snapshots *fakeSnapshotStore
	alerts    *fakeAlertStore
	users     *fakeUsers
	balances  *fakeBalanceSource
	prices    *fakePriceSource
	notifier  *fakeNotifier
}

func newHarness() *harness {
	h := &harness{
		wallets:   &fakeWalletStore{},
		holdings:  newFakeHoldingStore(),
		snapshots: newFakeSnapshotStore(),
		alerts:    &fakeAlertStore{},
		users:     &fakeUsers{holders: make(map[string][]storage.User)},
		balances:  &fakeBalanceSource{balances: make(map[string][]wallet.Balance), errs: make(map[string]error)},
		prices:    &fakePriceSource{prices: make(map[string]market.PriceInfo)},
		notifier:  &fakeNotifier{},
	}

	cfg := testConfig()
	stores := Stores{
		Wallets:   h.wallets,
		Holdings:  h.holdings,
		Snapshots: h.snapshots,
		Alerts:    h.alerts,
		Users:     h.users,
	}
	gate := alerting.NewGate(h.alerts, cfg.Volatility.Cooldown)
	h.svc = New(cfg, nil, stores, h.balances, h.prices, gate, h.notifier, nil, zerolog.Nop())
	return h
}

func channelID(id string) *string { return &id }

func TestRunCycleSyncsWalletsIdempotently(t *testing.T) {
	h := newHarness()
	h.wallets.wallets = []storage.Wallet{
		{ID: 1, UserID: 10, Address: "0xabc", Chain: "eth"},
	}
	h.balances.balances["0xabc"] = []wallet.Balance{
		{CoinID: "ethereum", Amount: decimal.NewFromInt(2), Chain: wallet.ChainETH},
	}

	first := h.svc.RunCycle(context.Background())
	require.Empty(t, first.Errors)
	assert.Equal(t, 1, first.WalletsSynced)

	h.balances.balances["0xabc"] = []wallet.Balance{
		{CoinID: "ethereum", Amount: decimal.NewFromInt(3), Chain: wallet.ChainETH},
	}
	second := h.svc.RunCycle(context.Background())
	require.Empty(t, second.Errors)

	require.Len(t, h.holdings.holdings, 1)
	got := h.holdings.holdings[holdingKey{10, "ethereum", "eth"}]
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(3)), "second sync must overwrite, not duplicate")
	assert.Equal(t, []int64{1, 1}, h.wallets.touched)
}

func TestRunCycleIsolatesWalletFailures(t *testing.T) {
	h := newHarness()
	h.wallets.wallets = []storage.Wallet{
		{ID: 1, UserID: 10, Address: "0xbad", Chain: "eth"},
		{ID: 2, UserID: 11, Address: "0xgood", Chain: "eth"},
	}
	h.balances.errs["0xbad"] = fmt.Errorf("provider timeout")
	h.balances.balances["0xgood"] = []wallet.Balance{
		{CoinID: "ethereum", Amount: decimal.NewFromInt(1), Chain: wallet.ChainETH},
	}

	summary := h.svc.RunCycle(context.Background())

	assert.Equal(t, 1, summary.WalletsSynced)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "0xbad")
	assert.Equal(t, []string{"0xbad", "0xgood"}, h.balances.calls)
	assert.Contains(t, h.holdings.holdings, holdingKey{11, "ethereum", "eth"})
}

func TestRunCycleUnknownChainIsIsolated(t *testing.T) {
	h := newHarness()
	h.wallets.wallets = []storage.Wallet{
		{ID: 1, UserID: 10, Address: "addr", Chain: "dogechain"},
	}

	summary := h.svc.RunCycle(context.Background())

	assert.Zero(t, summary.WalletsSynced)
	require.Len(t, summary.Errors, 1)
	assert.Empty(t, h.balances.calls, "no provider call for an unparseable chain")
}

func TestRunCycleFullAlertPipeline(t *testing.T) {
	h := newHarness()
	h.wallets.wallets = []storage.Wallet{
		{ID: 1, UserID: 10, Address: "0xabc", Chain: "eth"},
	}
	h.balances.balances["0xabc"] = []wallet.Balance{
		{CoinID: "ethereum", Amount: decimal.NewFromInt(2), Chain: wallet.ChainETH},
	}
	h.prices.prices["ethereum"] = market.PriceInfo{
		Price:     decimal.NewFromInt(250000),
		Change1h:  decimal.NewFromFloat(4.2),
		Change24h: decimal.NewFromFloat(1.1),
		Name:      "Ethereum",
		Symbol:    "ETH",
	}
	h.users.holders["ethereum"] = []storage.User{
		{ID: 10, CliqUserID: "u10", ChannelID: channelID("chan-10")},
	}

	summary := h.svc.RunCycle(context.Background())

	require.Empty(t, summary.Errors)
	assert.Equal(t, 1, summary.PricesChecked)
	assert.Equal(t, 1, summary.AlertsSent)
	require.Len(t, h.alerts.alerts, 1)
	assert.Equal(t, "ethereum", h.alerts.alerts[0].CoinID)
	require.Len(t, h.notifier.sent, 1)
	assert.Equal(t, "chan-10", h.notifier.sent[0].channelID)
	assert.Contains(t, h.snapshots.snapshots, "ethereum")
}

func TestRunCycleSkipsUsersWithoutChannel(t *testing.T) {
	h := newHarness()
	h.holdings.holdings[holdingKey{10, "ethereum", "eth"}] = storage.Holding{
		UserID: 10, CoinID: "ethereum", Chain: "eth", Amount: decimal.NewFromInt(1),
	}
	h.prices.prices["ethereum"] = market.PriceInfo{
		Price: decimal.NewFromInt(250000), Change1h: decimal.NewFromFloat(4), Symbol: "ETH",
	}
	h.users.holders["ethereum"] = []storage.User{
		{ID: 10, CliqUserID: "u10"},
	}

	summary := h.svc.RunCycle(context.Background())

	require.Empty(t, summary.Errors)
	assert.Zero(t, summary.AlertsSent)
	assert.Empty(t, h.alerts.alerts, "no decision without a delivery channel")
}

func TestRunCycleCooldownSuppressesRepeat(t *testing.T) {
	h := newHarness()
	h.holdings.holdings[holdingKey{10, "ethereum", "eth"}] = storage.Holding{
		UserID: 10, CoinID: "ethereum", Chain: "eth", Amount: decimal.NewFromInt(1),
	}
	h.prices.prices["ethereum"] = market.PriceInfo{
		Price: decimal.NewFromInt(250000), Change1h: decimal.NewFromFloat(4), Symbol: "ETH",
	}
	h.users.holders["ethereum"] = []storage.User{
		{ID: 10, CliqUserID: "u10", ChannelID: channelID("chan-10")},
	}

	first := h.svc.RunCycle(context.Background())
	require.Equal(t, 1, first.AlertsSent)

	second := h.svc.RunCycle(context.Background())
	assert.Zero(t, second.AlertsSent, "cooldown must suppress the repeat")
	assert.Len(t, h.alerts.alerts, 1)
}

func TestRunCycleDeliveryFailureKeepsRecord(t *testing.T) {
	h := newHarness()
	h.holdings.holdings[holdingKey{10, "ethereum", "eth"}] = storage.Holding{
		UserID: 10, CoinID: "ethereum", Chain: "eth", Amount: decimal.NewFromInt(1),
	}
	h.prices.prices["ethereum"] = market.PriceInfo{
		Price: decimal.NewFromInt(250000), Change1h: decimal.NewFromFloat(4), Symbol: "ETH",
	}
	h.users.holders["ethereum"] = []storage.User{
		{ID: 10, CliqUserID: "u10", ChannelID: channelID("chan-10")},
	}
	h.notifier.err = fmt.Errorf("cliq api unavailable")

	summary := h.svc.RunCycle(context.Background())

	assert.Zero(t, summary.AlertsSent)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "deliver")
	assert.Len(t, h.alerts.alerts, 1, "decision record survives delivery failure")
}

func TestRunCycleBothWindowsShareOneCooldown(t *testing.T) {
	h := newHarness()
	h.holdings.holdings[holdingKey{10, "ethereum", "eth"}] = storage.Holding{
		UserID: 10, CoinID: "ethereum", Chain: "eth", Amount: decimal.NewFromInt(1),
	}
	h.prices.prices["ethereum"] = market.PriceInfo{
		Price:     decimal.NewFromInt(250000),
		Change1h:  decimal.NewFromFloat(4),
		Change24h: decimal.NewFromFloat(7),
		Symbol:    "ETH",
	}
	h.users.holders["ethereum"] = []storage.User{
		{ID: 10, CliqUserID: "u10", ChannelID: channelID("chan-10")},
	}

	summary := h.svc.RunCycle(context.Background())

	assert.Equal(t, 1, summary.AlertsSent, "second window candidate hits the just-written cooldown")
	assert.Len(t, h.alerts.alerts, 1)
}

func TestRunCycleNoHoldingsSkipsPricing(t *testing.T) {
	h := newHarness()

	summary := h.svc.RunCycle(context.Background())

	require.Empty(t, summary.Errors)
	assert.Zero(t, summary.PricesChecked)
	assert.NotEmpty(t, summary.RunID)
	assert.False(t, summary.FinishedAt.Before(summary.StartedAt))
}

func TestRunCyclePriceSourceFailureIsPartial(t *testing.T) {
	h := newHarness()
	h.holdings.holdings[holdingKey{10, "ethereum", "eth"}] = storage.Holding{
		UserID: 10, CoinID: "ethereum", Chain: "eth", Amount: decimal.NewFromInt(1),
	}
	h.prices.err = fmt.Errorf("context deadline exceeded")

	summary := h.svc.RunCycle(context.Background())

	assert.Zero(t, summary.PricesChecked)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "price refresh")
}
