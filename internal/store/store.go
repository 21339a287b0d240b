package store

import (
	"context"
	"errors"
	"time"

	"tokosync/backend/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidRecord = errors.New("invalid record")
	ErrUnauthorized  = errors.New("unauthorized")
)

// Repository is the server-side per-account document store behind the sync
// reconciler. Every Upsert*IfNewer performs an atomic read-compare-write for
// its record id: the incoming version is persisted only when its updatedAt
// is strictly greater than the stored one, and the returned bool reports
// whether a write happened. Insert*IfAbsent methods back the append-only
// collections and never overwrite an existing row.
type Repository interface {
	// Accounts and tokens (Auth Gate persistence).
	CreateAccount(ctx context.Context, account domain.Account) error
	GetAccountByUsername(ctx context.Context, username string) (*domain.Account, error)
	CreateToken(ctx context.Context, token domain.SyncToken) error
	GetToken(ctx context.Context, token string) (*domain.SyncToken, error)
	TouchToken(ctx context.Context, token string, usedAt time.Time) error

	// Tombstones. UpsertDeletion is idempotent: re-applying a deletion only
	// refreshes its timestamp.
	UpsertDeletion(ctx context.Context, accountID string, d domain.Deletion) error
	ListDeletions(ctx context.Context, accountID string) ([]domain.Deletion, error)

	// Mutable categories: upsert-if-newer.
	UpsertProductIfNewer(ctx context.Context, accountID string, p domain.Product) (bool, error)
	UpsertServiceIfNewer(ctx context.Context, accountID string, s domain.Service) (bool, error)
	UpsertCustomerIfNewer(ctx context.Context, accountID string, c domain.Customer) (bool, error)
	UpsertSupplierIfNewer(ctx context.Context, accountID string, s domain.Supplier) (bool, error)
	UpsertDiscountRuleIfNewer(ctx context.Context, accountID string, r domain.DiscountRule) (bool, error)
	UpsertCouponIfNewer(ctx context.Context, accountID string, c domain.Coupon) (bool, error)
	UpsertStoreSettingIfNewer(ctx context.Context, accountID string, s domain.StoreSetting) (bool, error)

	// Mutable categories with owned child line items: the children are
	// replaced wholesale whenever the parent is upserted.
	UpsertStockInRecordIfNewer(ctx context.Context, accountID string, r domain.StockInRecord) (bool, error)
	UpsertOrderIfNewer(ctx context.Context, accountID string, o domain.Order) (bool, error)

	// Append-only categories: insert-if-absent, immutable once present.
	InsertInventoryBatchIfAbsent(ctx context.Context, accountID string, b domain.InventoryBatch) (bool, error)
	InsertReceiptIfAbsent(ctx context.Context, accountID string, r domain.Receipt) (bool, error)
	InsertStockLedgerIfAbsent(ctx context.Context, accountID string, e domain.StockLedgerEntry) (bool, error)
	InsertCustomerLedgerIfAbsent(ctx context.Context, accountID string, e domain.CustomerLedgerEntry) (bool, error)
	InsertRefundIfAbsent(ctx context.Context, accountID string, r domain.Refund) (bool, error)

	// Derived aggregate support.
	ListCouponIDs(ctx context.Context, accountID string) ([]string, error)
	CountConfirmedCouponOrders(ctx context.Context, accountID string, couponID string) (int, error)
	SetCouponUsedCount(ctx context.Context, accountID string, couponID string, used int, at time.Time) error

	// Pull snapshot assembly.
	ListProducts(ctx context.Context, accountID string) ([]domain.Product, error)
	ListServices(ctx context.Context, accountID string) ([]domain.Service, error)
	ListCustomers(ctx context.Context, accountID string) ([]domain.Customer, error)
	ListSuppliers(ctx context.Context, accountID string) ([]domain.Supplier, error)
	ListDiscountRules(ctx context.Context, accountID string) ([]domain.DiscountRule, error)
	ListCoupons(ctx context.Context, accountID string) ([]domain.Coupon, error)
	GetStoreSetting(ctx context.Context, accountID string) (*domain.StoreSetting, error)
	ListInventoryBatches(ctx context.Context, accountID string) ([]domain.InventoryBatch, error)
	ListStockInRecords(ctx context.Context, accountID string) ([]domain.StockInRecord, error)
	ListOrders(ctx context.Context, accountID string) ([]domain.Order, error)
	ListReceipts(ctx context.Context, accountID string) ([]domain.Receipt, error)
	ListStockLedger(ctx context.Context, accountID string) ([]domain.StockLedgerEntry, error)
	ListCustomerLedger(ctx context.Context, accountID string) ([]domain.CustomerLedgerEntry, error)
	ListRefunds(ctx context.Context, accountID string) ([]domain.Refund, error)
}
