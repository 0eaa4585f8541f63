package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	listWalletsSQL = `SELECT id, user_id, address, chain, name, last_synced_at
    FROM wallets
    ORDER BY id;`

	touchWalletSyncedSQL = `UPDATE wallets
    SET last_synced_at = $2
    WHERE id = $1;`

	upsertHoldingSQL = `INSERT INTO holdings (user_id, coin_id, chain, amount)
    VALUES ($1, $2, $3, $4)
    ON CONFLICT (user_id, coin_id, chain) DO UPDATE
    SET amount = EXCLUDED.amount;`

	distinctCoinIDsSQL = `SELECT DISTINCT coin_id FROM holdings ORDER BY coin_id;`

	listHoldingsByUserSQL = `SELECT id, user_id, coin_id, chain, amount
    FROM holdings
    WHERE user_id = $1
    ORDER BY coin_id, chain;`

	upsertPriceSnapshotSQL = `INSERT INTO prices (coin_id, last_price, last_change_pct_1h, last_change_pct_24h, updated_at)
    VALUES ($1, $2, $3, $4, $5)
    ON CONFLICT (coin_id) DO UPDATE
    SET last_price          = EXCLUDED.last_price,
        last_change_pct_1h  = EXCLUDED.last_change_pct_1h,
        last_change_pct_24h = EXCLUDED.last_change_pct_24h,
        updated_at          = EXCLUDED.updated_at;`

	listPriceSnapshotsSQL = `SELECT coin_id, last_price, last_change_pct_1h, last_change_pct_24h, updated_at
    FROM prices
    WHERE coin_id = ANY($1)
    ORDER BY coin_id;`

	insertAlertSQL = `INSERT INTO alerts (user_id, coin_id, price_change_pct, alert_message)
    VALUES ($1, $2, $3, $4)
    RETURNING id, user_id, coin_id, price_change_pct, alert_message, created_at;`

	latestAlertSQL = `SELECT id, user_id, coin_id, price_change_pct, alert_message, created_at
    FROM alerts
    WHERE user_id = $1 AND coin_id = $2
    ORDER BY created_at DESC
    LIMIT 1;`

	listRecentAlertsSQL = `SELECT id, user_id, coin_id, price_change_pct, alert_message, created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	usersHoldingCoinSQL = `SELECT DISTINCT u.id, u.cliq_user_id, u.default_channel_id
    FROM users u
    JOIN holdings h ON h.user_id = u.id
    WHERE h.coin_id = $1
    ORDER BY u.id;`

	getUserByCliqIDSQL = `SELECT id, cliq_user_id, default_channel_id
    FROM users
    WHERE cliq_user_id = $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// WalletStore defines operations over linked wallets.
type WalletStore interface {
	ListWallets(ctx context.Context) ([]Wallet, error)
	TouchWalletSynced(ctx context.Context, walletID int64, at time.Time) error
}

// HoldingStore defines keyed upserts and lookups over the holdings ledger.
type HoldingStore interface {
	UpsertHolding(ctx context.Context, holding Holding) error
	DistinctCoinIDs(ctx context.Context) ([]string, error)
	ListHoldingsByUser(ctx context.Context, userID int64) ([]Holding, error)
}

// SnapshotStore defines operations over cached price snapshots.
type SnapshotStore interface {
	UpsertPriceSnapshot(ctx context.Context, snapshot PriceSnapshot) error
	ListPriceSnapshots(ctx context.Context, coinIDs []string) ([]PriceSnapshot, error)
}

// AlertStore defines append-only alert history access.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	LatestAlert(ctx context.Context, userID int64, coinID string) (*AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
}

// UserDirectory resolves users and their delivery channels.
type UserDirectory interface {
	UsersHoldingCoin(ctx context.Context, coinID string) ([]User, error)
	GetUserByCliqID(ctx context.Context, cliqUserID string) (*User, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates ledger access over a single pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Best effort; the lock is released with the connection anyway.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// ListWallets returns all linked wallets.
func (s *Store) ListWallets(ctx context.Context) ([]Wallet, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listWalletsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list wallets: %w", queryErr)
	}
	defer rows.Close()

	wallets := make([]Wallet, 0)
	for rows.Next() {
		var w Wallet
		if err := rows.Scan(&w.ID, &w.UserID, &w.Address, &w.Chain, &w.Name, &w.LastSyncedAt); err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return wallets, nil
}

// TouchWalletSynced updates a wallet's last-synced timestamp.
func (s *Store) TouchWalletSynced(ctx context.Context, walletID int64, at time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, touchWalletSyncedSQL, walletID, at)
	if execErr != nil {
		return fmt.Errorf("touch wallet synced: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// UpsertHolding inserts or updates the quantity for a (user, coin, chain) key.
func (s *Store) UpsertHolding(ctx context.Context, holding Holding) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, upsertHoldingSQL,
		holding.UserID,
		holding.CoinID,
		holding.Chain,
		holding.Amount.String(),
	)
	if execErr != nil {
		return fmt.Errorf("upsert holding: %w", execErr)
	}
	return nil
}

// DistinctCoinIDs returns the set of coin ids with at least one holding.
func (s *Store) DistinctCoinIDs(ctx context.Context) ([]string, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, distinctCoinIDsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("distinct coin ids: %w", queryErr)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return ids, nil
}

// ListHoldingsByUser lists one user's holdings.
func (s *Store) ListHoldingsByUser(ctx context.Context, userID int64) ([]Holding, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listHoldingsByUserSQL, userID)
	if queryErr != nil {
		return nil, fmt.Errorf("list holdings by user: %w", queryErr)
	}
	defer rows.Close()

	holdings := make([]Holding, 0)
	for rows.Next() {
		holding, scanErr := scanHolding(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		holdings = append(holdings, holding)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return holdings, nil
}

// UpsertPriceSnapshot overwrites the cached snapshot for one coin.
func (s *Store) UpsertPriceSnapshot(ctx context.Context, snapshot PriceSnapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, upsertPriceSnapshotSQL,
		snapshot.CoinID,
		snapshot.Price.String(),
		snapshot.Change1h.String(),
		snapshot.Change24h.String(),
		snapshot.UpdatedAt,
	)
	if execErr != nil {
		return fmt.Errorf("upsert price snapshot: %w", execErr)
	}
	return nil
}

// ListPriceSnapshots returns cached snapshots for the given coin ids.
func (s *Store) ListPriceSnapshots(ctx context.Context, coinIDs []string) ([]PriceSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPriceSnapshotsSQL, coinIDs)
	if queryErr != nil {
		return nil, fmt.Errorf("list price snapshots: %w", queryErr)
	}
	defer rows.Close()

	snapshots := make([]PriceSnapshot, 0, len(coinIDs))
	for rows.Next() {
		snapshot, scanErr := scanPriceSnapshot(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		snapshots = append(snapshots, snapshot)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snapshots, nil
}

// InsertAlert appends an alert record and returns the stored row.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.UserID,
		alert.CoinID,
		alert.ChangePct.String(),
		alert.Message,
	)

	rec, scanErr := scanAlertRow(row)
	if scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// LatestAlert returns the most recent alert for a (user, coin) pair, or nil.
func (s *Store) LatestAlert(ctx context.Context, userID int64, coinID string) (*AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	row := pool.QueryRow(ctx, latestAlertSQL, userID, coinID)
	rec, scanErr := scanAlertRow(row)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest alert: %w", scanErr)
	}
	return &rec, nil
}

// ListRecentAlerts lists most recent alerts across all users.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanAlertRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// UsersHoldingCoin returns every user with at least one holding of the coin.
func (s *Store) UsersHoldingCoin(ctx context.Context, coinID string) ([]User, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, usersHoldingCoinSQL, coinID)
	if queryErr != nil {
		return nil, fmt.Errorf("users holding coin: %w", queryErr)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.CliqUserID, &u.ChannelID); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return users, nil
}

// GetUserByCliqID resolves a chat-platform user id to the stored user, or nil.
func (s *Store) GetUserByCliqID(ctx context.Context, cliqUserID string) (*User, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var u User
	scanErr := pool.QueryRow(ctx, getUserByCliqIDSQL, cliqUserID).Scan(&u.ID, &u.CliqUserID, &u.ChannelID)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by cliq id: %w", scanErr)
	}
	return &u, nil
}

func scanHolding(rows pgx.Rows) (Holding, error) {
	var (
		holding   Holding
		amountStr string
	)
	if err := rows.Scan(&holding.ID, &holding.UserID, &holding.CoinID, &holding.Chain, &amountStr); err != nil {
		return Holding{}, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return Holding{}, fmt.Errorf("parse holding amount: %w", err)
	}
	holding.Amount = amount
	return holding, nil
}

func scanPriceSnapshot(rows pgx.Rows) (PriceSnapshot, error) {
	var (
		snapshot     PriceSnapshot
		priceStr     string
		change1hStr  string
		change24hStr string
	)
	if err := rows.Scan(&snapshot.CoinID, &priceStr, &change1hStr, &change24hStr, &snapshot.UpdatedAt); err != nil {
		return PriceSnapshot{}, err
	}

	var convErr error
	snapshot.Price, convErr = decimal.NewFromString(priceStr)
	if convErr != nil {
		return PriceSnapshot{}, fmt.Errorf("parse snapshot price: %w", convErr)
	}
	snapshot.Change1h, convErr = decimal.NewFromString(change1hStr)
	if convErr != nil {
		return PriceSnapshot{}, fmt.Errorf("parse snapshot 1h change: %w", convErr)
	}
	snapshot.Change24h, convErr = decimal.NewFromString(change24hStr)
	if convErr != nil {
		return PriceSnapshot{}, fmt.Errorf("parse snapshot 24h change: %w", convErr)
	}
	return snapshot, nil
}

func scanAlertRow(row pgx.Row) (AlertRecord, error) {
	var (
		rec       AlertRecord
		changeStr string
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.CoinID, &changeStr, &rec.Message, &rec.CreatedAt); err != nil {
		return AlertRecord{}, err
	}

	change, err := decimal.NewFromString(changeStr)
	if err != nil {
		return AlertRecord{}, fmt.Errorf("parse alert change pct: %w", err)
	}
	rec.ChangePct = change
	return rec, nil
}
