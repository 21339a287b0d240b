package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tokosync/backend/internal/domain"
	"tokosync/backend/internal/merge"
	"tokosync/backend/internal/store"
)

// Store is an in-memory Repository used by tests and by the server when no
// DATABASE_URL is configured. All collections are account-scoped maps; the
// single RWMutex makes every upsert-if-newer an atomic read-compare-write.
type Store struct {
	mu                 sync.RWMutex
	accountsByUsername map[string]domain.Account
	tokens             map[string]domain.SyncToken
	deletions          map[string]map[string]domain.Deletion
	products           map[string]map[string]domain.Product
	services           map[string]map[string]domain.Service
	customers          map[string]map[string]domain.Customer
	suppliers          map[string]map[string]domain.Supplier
	discountRules      map[string]map[string]domain.DiscountRule
	coupons            map[string]map[string]domain.Coupon
	settings           map[string]domain.StoreSetting
	inventory          map[string]map[string]domain.InventoryBatch
	stockInRecords     map[string]map[string]domain.StockInRecord
	orders             map[string]map[string]domain.Order
	receipts           map[string]map[string]domain.Receipt
	stockLedger        map[string]map[string]domain.StockLedgerEntry
	customerLedger     map[string]map[string]domain.CustomerLedgerEntry
	refunds            map[string]map[string]domain.Refund
}

func New() *Store {
	return &Store{
		accountsByUsername: map[string]domain.Account{},
		tokens:             map[string]domain.SyncToken{},
		deletions:          map[string]map[string]domain.Deletion{},
		products:           map[string]map[string]domain.Product{},
		services:           map[string]map[string]domain.Service{},
		customers:          map[string]map[string]domain.Customer{},
		suppliers:          map[string]map[string]domain.Supplier{},
		discountRules:      map[string]map[string]domain.DiscountRule{},
		coupons:            map[string]map[string]domain.Coupon{},
		settings:           map[string]domain.StoreSetting{},
		inventory:          map[string]map[string]domain.InventoryBatch{},
		stockInRecords:     map[string]map[string]domain.StockInRecord{},
		orders:             map[string]map[string]domain.Order{},
		receipts:           map[string]map[string]domain.Receipt{},
		stockLedger:        map[string]map[string]domain.StockLedgerEntry{},
		customerLedger:     map[string]map[string]domain.CustomerLedgerEntry{},
		refunds:            map[string]map[string]domain.Refund{},
	}
}

func bucket[T any](m map[string]map[string]T, accountID string) map[string]T {
	b, ok := m[accountID]
	if !ok {
		b = map[string]T{}
		m[accountID] = b
	}
	return b
}

// sortedValues returns the bucket's records ordered by id so snapshots are
// deterministic across pulls.
func sortedValues[T any](m map[string]map[string]T, accountID string) []T {
	b := m[accountID]
	ids := make([]string, 0, len(b))
	for id := range b {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, b[id])
	}
	return out
}

func (s *Store) CreateAccount(_ context.Context, account domain.Account) error {
	if account.ID == "" || account.Username == "" {
		return store.ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accountsByUsername[account.Username]; exists {
		return fmt.Errorf("username %q already exists", account.Username)
	}
	s.accountsByUsername[account.Username] = account
	return nil
}

func (s *Store) GetAccountByUsername(_ context.Context, username string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accountsByUsername[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := account
	return &out, nil
}

func (s *Store) CreateToken(_ context.Context, token domain.SyncToken) error {
	if token.Token == "" || token.AccountID == "" {
		return store.ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.Token] = token
	return nil
}

func (s *Store) GetToken(_ context.Context, token string) (*domain.SyncToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.tokens[token]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := row
	return &out, nil
}

func (s *Store) TouchToken(_ context.Context, token string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.tokens[token]
	if !ok {
		return store.ErrNotFound
	}
	row.LastUsedAt = usedAt
	s.tokens[token] = row
	return nil
}

func deletionKey(d domain.Deletion) string {
	return fmt.Sprintf("DEL-%s-%s", d.Collection, d.RecordID)
}

func (s *Store) UpsertDeletion(_ context.Context, accountID string, d domain.Deletion) error {
	if d.Collection == "" || d.RecordID == "" {
		return store.ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket(s.deletions, accountID)[deletionKey(d)] = d
	return nil
}

func (s *Store) ListDeletions(_ context.Context, accountID string) ([]domain.Deletion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.deletions, accountID), nil
}

// upsertIfNewer is the shared conditional write for mutable categories.
// The write happens only when the incoming timestamp is strictly greater
// than the stored one.
func upsertIfNewer[T any](b map[string]T, id string, incoming T, at func(T) time.Time) bool {
	existing, ok := b[id]
	if ok && !at(incoming).After(at(existing)) {
		return false
	}
	b[id] = incoming
	return true
}

func productAt(p domain.Product) time.Time { return merge.Timestamp(p.UpdatedAt, p.CreatedAt) }

func (s *Store) UpsertProductIfNewer(_ context.Context, accountID string, p domain.Product) (bool, error) {
	if p.ID == "" {
		return false, store.ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertIfNewer(bucket(s.products, accountID), p.ID, p, productAt), nil
}

func (s *Store) UpsertServiceIfNewer(_ context.Context, accountID string, svc domain.Service) (bool, error) {
	if svc.ID == "" {
		return false, store.ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertIfNewer(bucket(s.services, accountID), svc.ID, svc, func(v domain.Service) time.Time {
		return merge.Timestamp(v.UpdatedAt, v.CreatedAt)
	}), nil
}

func (s *Store) UpsertCustomerIfNewer(_ context.Context, accountID string, c domain.Customer) (bool, error) {
	if c.ID == "" {
		return false, store.ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertIfNewer(bucket(s.customers, accountID), c.ID, c, func(v domain.Customer) time.Time {
		return merge.Timestamp(v.UpdatedAt, v.CreatedAt)
	}), nil
}

func (s *Store) UpsertSupplierIfNewer(_ context.Context, accountID string, sup domain.Supplier) (bool, error) {
	if sup.ID == "" {
		return false, store.ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertIfNewer(bucket(s.suppliers, accountID), sup.ID, sup, func(v domain.Supplier) time.Time {
		return merge.Timestamp(v.UpdatedAt, v.CreatedAt)
	}), nil
}

func (s *Store) UpsertDiscountRuleIfNewer(_ context.Context, accountID string, r domain.DiscountRule) (bool, error) {
	if r.ID == "" {
		return false, store.ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertIfNewer(bucket(s.discountRules, accountID), r.ID, r, func(v domain.DiscountRule) time.Time {
		return merge.Timestamp(v.UpdatedAt, v.CreatedAt)
	}), nil
}

func (s *Store) UpsertCouponIfNewer(_ context.Context, accountID string, c domain.Coupon) (bool, error) {
	if c.ID == "" {
		return false, store.ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertIfNewer(bucket(s.coupons, accountID), c.ID, c, func(v domain.Coupon) time.Time {
		return merge.Timestamp(v.UpdatedAt, v.CreatedAt)
	}), nil
}

func (s *Store) UpsertStoreSettingIfNewer(_ context.Context, accountID string, setting domain.StoreSetting) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.settings[accountID]
	if ok {
		incomingAt := merge.Timestamp(setting.UpdatedAt, setting.CreatedAt)
		existingAt := merge.Timestamp(existing.UpdatedAt, existing.CreatedAt)
		if !incomingAt.After(existingAt) {
			return false, nil
		}
	}
	setting.PaymentMethods = append([]string(nil), setting.PaymentMethods...)
	s.settings[accountID] = setting
	return true, nil
}

func (s *Store) UpsertStockInRecordIfNewer(_ context.Context, accountID string, r domain.StockInRecord) (bool, error) {
	if r.ID == "" {
		return false, store.ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Items = append([]domain.StockInItem(nil), r.Items...)
	return upsertIfNewer(bucket(s.stockInRecords, accountID), r.ID, r, func(v domain.StockInRecord) time.Time {
		return merge.Timestamp(v.UpdatedAt, v.Date)
	}), nil
}

func (s *Store) UpsertOrderIfNewer(_ context.Context, accountID string, o domain.Order) (bool, error) {
	if o.ID == "" {
		return false, store.ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	return upsertIfNewer(bucket(s.orders, accountID), o.ID, o, func(v domain.Order) time.Time {
		return merge.Timestamp(v.UpdatedAt, v.Date)
	}), nil
}

// insertIfAbsent backs the append-only categories: once a record id is
// present it is immutable.
func insertIfAbsent[T any](b map[string]T, id string, incoming T) bool {
	if _, ok := b[id]; ok {
		return false
	}
	b[id] = incoming
	return true
}

func (s *Store) InsertInventoryBatchIfAbsent(_ context.Context, accountID string, b domain.InventoryBatch) (bool, error) {
	if b.ID == "" {
		return false, store.ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertIfAbsent(bucket(s.inventory, accountID), b.ID, b), nil
}

func (s *Store) InsertReceiptIfAbsent(_ context.Context, accountID string, r domain.Receipt) (bool, error) {
	if r.ID == "" {
		return false, store.ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertIfAbsent(bucket(s.receipts, accountID), r.ID, r), nil
}

func (s *Store) InsertStockLedgerIfAbsent(_ context.Context, accountID string, e domain.StockLedgerEntry) (bool, error) {
	if e.ID == "" {
		return false, store.ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertIfAbsent(bucket(s.stockLedger, accountID), e.ID, e), nil
}

func (s *Store) InsertCustomerLedgerIfAbsent(_ context.Context, accountID string, e domain.CustomerLedgerEntry) (bool, error) {
	if e.ID == "" {
		return false, store.ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertIfAbsent(bucket(s.customerLedger, accountID), e.ID, e), nil
}

func (s *Store) InsertRefundIfAbsent(_ context.Context, accountID string, r domain.Refund) (bool, error) {
	if r.ID == "" {
		return false, store.ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertIfAbsent(bucket(s.refunds, accountID), r.ID, r), nil
}

func (s *Store) ListCouponIDs(_ context.Context, accountID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.coupons[accountID]))
	for id := range s.coupons[accountID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) CountConfirmedCouponOrders(_ context.Context, accountID string, couponID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, o := range s.orders[accountID] {
		if o.Status == domain.OrderStatusConfirmed &&
			o.DiscountType == domain.DiscountTypeCoupon &&
			o.DiscountRuleID == couponID {
			count++
		}
	}
	return count, nil
}

func (s *Store) SetCouponUsedCount(_ context.Context, accountID string, couponID string, used int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.coupons[accountID]
	coupon, ok := b[couponID]
	if !ok {
		return store.ErrNotFound
	}
	coupon.UsedCount = used
	coupon.UpdatedAt = at
	b[couponID] = coupon
	return nil
}

func (s *Store) ListProducts(_ context.Context, accountID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.products, accountID), nil
}

func (s *Store) ListServices(_ context.Context, accountID string) ([]domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.services, accountID), nil
}

func (s *Store) ListCustomers(_ context.Context, accountID string) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.customers, accountID), nil
}

func (s *Store) ListSuppliers(_ context.Context, accountID string) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.suppliers, accountID), nil
}

func (s *Store) ListDiscountRules(_ context.Context, accountID string) ([]domain.DiscountRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.discountRules, accountID), nil
}

func (s *Store) ListCoupons(_ context.Context, accountID string) ([]domain.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.coupons, accountID), nil
}

func (s *Store) GetStoreSetting(_ context.Context, accountID string) (*domain.StoreSetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	setting, ok := s.settings[accountID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := setting
	out.PaymentMethods = append([]string(nil), setting.PaymentMethods...)
	return &out, nil
}

func (s *Store) ListInventoryBatches(_ context.Context, accountID string) ([]domain.InventoryBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.inventory, accountID), nil
}

func (s *Store) ListStockInRecords(_ context.Context, accountID string) ([]domain.StockInRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := sortedValues(s.stockInRecords, accountID)
	for i := range records {
		records[i].Items = append([]domain.StockInItem(nil), records[i].Items...)
	}
	return records, nil
}

func (s *Store) ListOrders(_ context.Context, accountID string) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	orders := sortedValues(s.orders, accountID)
	for i := range orders {
		orders[i].Items = append([]domain.OrderItem(nil), orders[i].Items...)
	}
	return orders, nil
}

func (s *Store) ListReceipts(_ context.Context, accountID string) ([]domain.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.receipts, accountID), nil
}

func (s *Store) ListStockLedger(_ context.Context, accountID string) ([]domain.StockLedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.stockLedger, accountID), nil
}

func (s *Store) ListCustomerLedger(_ context.Context, accountID string) ([]domain.CustomerLedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.customerLedger, accountID), nil
}

func (s *Store) ListRefunds(_ context.Context, accountID string) ([]domain.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.refunds, accountID), nil
}
