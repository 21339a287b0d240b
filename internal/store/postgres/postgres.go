// Package postgres persists sync state in PostgreSQL. Every synced record
// lives in one table keyed by (account, collection, id) with the full
// document in a JSONB payload; conditional upserts compare updated_at in
// SQL so concurrent pushes for the same record stay correct without
// row-level locking in Go.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"tokosync/backend/internal/domain"
	"tokosync/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables on a fresh database. Safe to run on
// every startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sync_accounts (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS sync_tokens (
			id           TEXT PRIMARY KEY,
			token        TEXT NOT NULL UNIQUE,
			account_id   TEXT NOT NULL REFERENCES sync_accounts(id),
			created_at   TIMESTAMPTZ NOT NULL,
			last_used_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS sync_deletions (
			account_id TEXT NOT NULL,
			collection TEXT NOT NULL,
			record_id  TEXT NOT NULL,
			deleted_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (account_id, collection, record_id)
		);
		CREATE TABLE IF NOT EXISTS sync_records (
			account_id TEXT NOT NULL,
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			payload    JSONB NOT NULL,
			PRIMARY KEY (account_id, collection, id)
		);
		CREATE INDEX IF NOT EXISTS sync_records_coupon_usage
			ON sync_records (account_id, (payload->>'discountRuleId'))
			WHERE collection = 'orders';
	`)
	return err
}

func (s *Store) CreateAccount(ctx context.Context, account domain.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_accounts (id, username, password_hash, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5)
	`, account.ID, account.Username, account.PasswordHash, account.CreatedAt, account.UpdatedAt)
	return err
}

func (s *Store) GetAccountByUsername(ctx context.Context, username string) (*domain.Account, error) {
	var account domain.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, created_at, updated_at
		FROM sync_accounts
		WHERE username = $1
	`, username).Scan(&account.ID, &account.Username, &account.PasswordHash, &account.CreatedAt, &account.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *Store) CreateToken(ctx context.Context, token domain.SyncToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_tokens (id, token, account_id, created_at, last_used_at)
		VALUES ($1,$2,$3,$4,$5)
	`, token.ID, token.Token, token.AccountID, token.CreatedAt, token.LastUsedAt)
	return err
}

func (s *Store) GetToken(ctx context.Context, token string) (*domain.SyncToken, error) {
	var record domain.SyncToken
	err := s.db.QueryRowContext(ctx, `
		SELECT id, token, account_id, created_at, last_used_at
		FROM sync_tokens
		WHERE token = $1
	`, token).Scan(&record.ID, &record.Token, &record.AccountID, &record.CreatedAt, &record.LastUsedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Store) TouchToken(ctx context.Context, token string, usedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_tokens SET last_used_at = $2 WHERE token = $1
	`, token, usedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) UpsertDeletion(ctx context.Context, accountID string, d domain.Deletion) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_deletions (account_id, collection, record_id, deleted_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (account_id, collection, record_id) DO UPDATE
			SET deleted_at = EXCLUDED.deleted_at
	`, accountID, d.Collection, d.RecordID, d.DeletedAt)
	return err
}

func (s *Store) ListDeletions(ctx context.Context, accountID string) ([]domain.Deletion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT collection, record_id, deleted_at
		FROM sync_deletions
		WHERE account_id = $1
		ORDER BY collection, record_id
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deletions := make([]domain.Deletion, 0, 32)
	for rows.Next() {
		var d domain.Deletion
		if err := rows.Scan(&d.Collection, &d.RecordID, &d.DeletedAt); err != nil {
			return nil, err
		}
		deletions = append(deletions, d)
	}
	return deletions, rows.Err()
}

// upsertIfNewer writes the document only when the incoming updated_at is
// strictly greater than the stored one. The comparison happens inside the
// statement, so two racing pushes cannot interleave a stale write.
func (s *Store) upsertIfNewer(ctx context.Context, accountID, collection, id string, updatedAt time.Time, v any) (bool, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("encode %s record: %w", collection, err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_records (account_id, collection, id, updated_at, payload)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (account_id, collection, id) DO UPDATE
			SET updated_at = EXCLUDED.updated_at, payload = EXCLUDED.payload
			WHERE sync_records.updated_at < EXCLUDED.updated_at
	`, accountID, collection, id, updatedAt, payload)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) insertIfAbsent(ctx context.Context, accountID, collection, id string, at time.Time, v any) (bool, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("encode %s record: %w", collection, err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_records (account_id, collection, id, updated_at, payload)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (account_id, collection, id) DO NOTHING
	`, accountID, collection, id, at, payload)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func listRecords[T any](ctx context.Context, s *Store, accountID, collection string) ([]T, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload
		FROM sync_records
		WHERE account_id = $1 AND collection = $2
		ORDER BY id
	`, accountID, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]T, 0, 64)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("decode %s record: %w", collection, err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) UpsertProductIfNewer(ctx context.Context, accountID string, p domain.Product) (bool, error) {
	return s.upsertIfNewer(ctx, accountID, domain.CollectionProducts, p.ID, p.UpdatedAt, p)
}

func (s *Store) UpsertServiceIfNewer(ctx context.Context, accountID string, v domain.Service) (bool, error) {
	return s.upsertIfNewer(ctx, accountID, domain.CollectionServices, v.ID, v.UpdatedAt, v)
}

func (s *Store) UpsertCustomerIfNewer(ctx context.Context, accountID string, c domain.Customer) (bool, error) {
	return s.upsertIfNewer(ctx, accountID, domain.CollectionCustomers, c.ID, c.UpdatedAt, c)
}

func (s *Store) UpsertSupplierIfNewer(ctx context.Context, accountID string, v domain.Supplier) (bool, error) {
	return s.upsertIfNewer(ctx, accountID, domain.CollectionSuppliers, v.ID, v.UpdatedAt, v)
}

func (s *Store) UpsertDiscountRuleIfNewer(ctx context.Context, accountID string, r domain.DiscountRule) (bool, error) {
	return s.upsertIfNewer(ctx, accountID, domain.CollectionDiscountRules, r.ID, r.UpdatedAt, r)
}

func (s *Store) UpsertCouponIfNewer(ctx context.Context, accountID string, c domain.Coupon) (bool, error) {
	return s.upsertIfNewer(ctx, accountID, domain.CollectionCoupons, c.ID, c.UpdatedAt, c)
}

// UpsertStoreSettingIfNewer keeps a single settings row per account by
// pinning the record id.
func (s *Store) UpsertStoreSettingIfNewer(ctx context.Context, accountID string, v domain.StoreSetting) (bool, error) {
	return s.upsertIfNewer(ctx, accountID, domain.CollectionStoreSettings, "settings", v.UpdatedAt, v)
}

func (s *Store) UpsertStockInRecordIfNewer(ctx context.Context, accountID string, r domain.StockInRecord) (bool, error) {
	// Items ride along in the payload, so a winning upsert replaces the
	// children wholesale.
	return s.upsertIfNewer(ctx, accountID, domain.CollectionStockInRecords, r.ID, r.UpdatedAt, r)
}

func (s *Store) UpsertOrderIfNewer(ctx context.Context, accountID string, o domain.Order) (bool, error) {
	return s.upsertIfNewer(ctx, accountID, domain.CollectionOrders, o.ID, o.UpdatedAt, o)
}

func (s *Store) InsertInventoryBatchIfAbsent(ctx context.Context, accountID string, b domain.InventoryBatch) (bool, error) {
	return s.insertIfAbsent(ctx, accountID, domain.CollectionInventory, b.ID, b.ReceivedAt, b)
}

func (s *Store) InsertReceiptIfAbsent(ctx context.Context, accountID string, r domain.Receipt) (bool, error) {
	return s.insertIfAbsent(ctx, accountID, domain.CollectionReceipts, r.ID, r.CreatedAt, r)
}

func (s *Store) InsertStockLedgerIfAbsent(ctx context.Context, accountID string, e domain.StockLedgerEntry) (bool, error) {
	return s.insertIfAbsent(ctx, accountID, domain.CollectionStockLedger, e.ID, e.Date, e)
}

func (s *Store) InsertCustomerLedgerIfAbsent(ctx context.Context, accountID string, e domain.CustomerLedgerEntry) (bool, error) {
	return s.insertIfAbsent(ctx, accountID, domain.CollectionCustomerLedger, e.ID, e.CreatedAt, e)
}

func (s *Store) InsertRefundIfAbsent(ctx context.Context, accountID string, r domain.Refund) (bool, error) {
	return s.insertIfAbsent(ctx, accountID, domain.CollectionRefunds, r.ID, r.CreatedAt, r)
}

func (s *Store) ListCouponIDs(ctx context.Context, accountID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id
		FROM sync_records
		WHERE account_id = $1 AND collection = $2
		ORDER BY id
	`, accountID, domain.CollectionCoupons)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0, 16)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) CountConfirmedCouponOrders(ctx context.Context, accountID string, couponID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*)
		FROM sync_records
		WHERE account_id = $1
		  AND collection = $2
		  AND payload->>'status' = $3
		  AND payload->>'discountType' = $4
		  AND payload->>'discountRuleId' = $5
	`, accountID, domain.CollectionOrders, domain.OrderStatusConfirmed, domain.DiscountTypeCoupon, couponID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) SetCouponUsedCount(ctx context.Context, accountID string, couponID string, used int, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_records
		SET payload = payload
			|| jsonb_build_object('usedCount', $4::int)
			|| jsonb_build_object('updatedAt', to_char($5::timestamptz at time zone 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS"Z"')),
		    updated_at = $5
		WHERE account_id = $1 AND collection = $2 AND id = $3
	`, accountID, domain.CollectionCoupons, couponID, used, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context, accountID string) ([]domain.Product, error) {
	return listRecords[domain.Product](ctx, s, accountID, domain.CollectionProducts)
}

func (s *Store) ListServices(ctx context.Context, accountID string) ([]domain.Service, error) {
	return listRecords[domain.Service](ctx, s, accountID, domain.CollectionServices)
}

func (s *Store) ListCustomers(ctx context.Context, accountID string) ([]domain.Customer, error) {
	return listRecords[domain.Customer](ctx, s, accountID, domain.CollectionCustomers)
}

func (s *Store) ListSuppliers(ctx context.Context, accountID string) ([]domain.Supplier, error) {
	return listRecords[domain.Supplier](ctx, s, accountID, domain.CollectionSuppliers)
}

func (s *Store) ListDiscountRules(ctx context.Context, accountID string) ([]domain.DiscountRule, error) {
	return listRecords[domain.DiscountRule](ctx, s, accountID, domain.CollectionDiscountRules)
}

func (s *Store) ListCoupons(ctx context.Context, accountID string) ([]domain.Coupon, error) {
	return listRecords[domain.Coupon](ctx, s, accountID, domain.CollectionCoupons)
}

func (s *Store) GetStoreSetting(ctx context.Context, accountID string) (*domain.StoreSetting, error) {
	settings, err := listRecords[domain.StoreSetting](ctx, s, accountID, domain.CollectionStoreSettings)
	if err != nil {
		return nil, err
	}
	if len(settings) == 0 {
		return nil, store.ErrNotFound
	}
	return &settings[0], nil
}

func (s *Store) ListInventoryBatches(ctx context.Context, accountID string) ([]domain.InventoryBatch, error) {
	return listRecords[domain.InventoryBatch](ctx, s, accountID, domain.CollectionInventory)
}

func (s *Store) ListStockInRecords(ctx context.Context, accountID string) ([]domain.StockInRecord, error) {
	return listRecords[domain.StockInRecord](ctx, s, accountID, domain.CollectionStockInRecords)
}

func (s *Store) ListOrders(ctx context.Context, accountID string) ([]domain.Order, error) {
	return listRecords[domain.Order](ctx, s, accountID, domain.CollectionOrders)
}

func (s *Store) ListReceipts(ctx context.Context, accountID string) ([]domain.Receipt, error) {
	return listRecords[domain.Receipt](ctx, s, accountID, domain.CollectionReceipts)
}

func (s *Store) ListStockLedger(ctx context.Context, accountID string) ([]domain.StockLedgerEntry, error) {
	return listRecords[domain.StockLedgerEntry](ctx, s, accountID, domain.CollectionStockLedger)
}

func (s *Store) ListCustomerLedger(ctx context.Context, accountID string) ([]domain.CustomerLedgerEntry, error) {
	return listRecords[domain.CustomerLedgerEntry](ctx, s, accountID, domain.CollectionCustomerLedger)
}

func (s *Store) ListRefunds(ctx context.Context, accountID string) ([]domain.Refund, error) {
	return listRecords[domain.Refund](ctx, s, accountID, domain.CollectionRefunds)
}
