// Package localstore holds a terminal's working copy of the account state.
// Mutations stamp fresh timestamps, deletes leave tombstones, and remote
// snapshots fold in through the merge rules so offline edits survive a pull.
package localstore

import (
	"sync"
	"time"

	"tokosync/backend/internal/domain"
	"tokosync/backend/internal/merge"
)

type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	products       []domain.Product
	services       []domain.Service
	customers      []domain.Customer
	suppliers      []domain.Supplier
	discountRules  []domain.DiscountRule
	coupons        []domain.Coupon
	storeSettings  *domain.StoreSetting
	inventory      []domain.InventoryBatch
	stockInRecords []domain.StockInRecord
	orders         []domain.Order
	receipts       []domain.Receipt
	stockLedger    []domain.StockLedgerEntry
	customerLedger []domain.CustomerLedgerEntry
	refunds        []domain.Refund

	deletions map[string]merge.Set
}

func New() *Store {
	return NewWithClock(time.Now)
}

// NewWithClock lets tests control timestamping.
func NewWithClock(now func() time.Time) *Store {
	return &Store{
		now:       now,
		deletions: make(map[string]merge.Set),
	}
}

func (s *Store) stamp(createdAt, updatedAt *time.Time) {
	now := s.now().UTC()
	if createdAt.IsZero() {
		*createdAt = now
	}
	*updatedAt = now
}

func (s *Store) tombstone(collection, id string) {
	set, ok := s.deletions[collection]
	if !ok {
		set = merge.NewSet()
		s.deletions[collection] = set
	}
	set[id] = struct{}{}
}

func (s *Store) PutProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(&p.CreatedAt, &p.UpdatedAt)
	s.products = upsert(s.products, p, func(v domain.Product) string { return v.ID })
}

func (s *Store) DeleteProduct(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = remove(s.products, id, func(v domain.Product) string { return v.ID })
	s.tombstone(domain.CollectionProducts, id)
}

func (s *Store) PutService(v domain.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(&v.CreatedAt, &v.UpdatedAt)
	s.services = upsert(s.services, v, func(v domain.Service) string { return v.ID })
}

func (s *Store) DeleteService(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services = remove(s.services, id, func(v domain.Service) string { return v.ID })
	s.tombstone(domain.CollectionServices, id)
}

func (s *Store) PutCustomer(c domain.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(&c.CreatedAt, &c.UpdatedAt)
	s.customers = upsert(s.customers, c, func(v domain.Customer) string { return v.ID })
}

func (s *Store) DeleteCustomer(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers = remove(s.customers, id, func(v domain.Customer) string { return v.ID })
	s.tombstone(domain.CollectionCustomers, id)
}

func (s *Store) PutSupplier(v domain.Supplier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(&v.CreatedAt, &v.UpdatedAt)
	s.suppliers = upsert(s.suppliers, v, func(v domain.Supplier) string { return v.ID })
}

func (s *Store) DeleteSupplier(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppliers = remove(s.suppliers, id, func(v domain.Supplier) string { return v.ID })
	s.tombstone(domain.CollectionSuppliers, id)
}

func (s *Store) PutDiscountRule(r domain.DiscountRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(&r.CreatedAt, &r.UpdatedAt)
	s.discountRules = upsert(s.discountRules, r, func(v domain.DiscountRule) string { return v.ID })
}

func (s *Store) DeleteDiscountRule(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discountRules = remove(s.discountRules, id, func(v domain.DiscountRule) string { return v.ID })
	s.tombstone(domain.CollectionDiscountRules, id)
}

func (s *Store) PutCoupon(c domain.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(&c.CreatedAt, &c.UpdatedAt)
	s.coupons = upsert(s.coupons, c, func(v domain.Coupon) string { return v.ID })
}

func (s *Store) DeleteCoupon(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coupons = remove(s.coupons, id, func(v domain.Coupon) string { return v.ID })
	s.tombstone(domain.CollectionCoupons, id)
}

func (s *Store) SetStoreSettings(v domain.StoreSetting) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(&v.CreatedAt, &v.UpdatedAt)
	s.storeSettings = &v
}

func (s *Store) RecordStockIn(r domain.StockInRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(&r.CreatedAt, &r.UpdatedAt)
	if r.Date.IsZero() {
		r.Date = r.CreatedAt
	}
	s.stockInRecords = upsert(s.stockInRecords, r, func(v domain.StockInRecord) string { return v.ID })
}

func (s *Store) RecordOrder(o domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(&o.CreatedAt, &o.UpdatedAt)
	if o.Date.IsZero() {
		o.Date = o.CreatedAt
	}
	s.orders = upsert(s.orders, o, func(v domain.Order) string { return v.ID })
}

func (s *Store) AddInventoryBatch(b domain.InventoryBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ReceivedAt.IsZero() {
		b.ReceivedAt = s.now().UTC()
	}
	s.inventory = appendIfAbsent(s.inventory, b, func(v domain.InventoryBatch) string { return v.ID })
}

func (s *Store) AppendReceipt(r domain.Receipt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	s.receipts = appendIfAbsent(s.receipts, r, func(v domain.Receipt) string { return v.ID })
}

func (s *Store) AppendStockLedger(e domain.StockLedgerEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Date.IsZero() {
		e.Date = s.now().UTC()
	}
	s.stockLedger = appendIfAbsent(s.stockLedger, e, func(v domain.StockLedgerEntry) string { return v.ID })
}

func (s *Store) AppendCustomerLedger(e domain.CustomerLedgerEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	s.customerLedger = appendIfAbsent(s.customerLedger, e, func(v domain.CustomerLedgerEntry) string { return v.ID })
}

func (s *Store) AppendRefund(r domain.Refund) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	s.refunds = appendIfAbsent(s.refunds, r, func(v domain.Refund) string { return v.ID })
}

// Snapshot returns a deep copy of the current state, including tombstones.
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := domain.Snapshot{
		Products:       copySlice(s.products),
		Services:       copySlice(s.services),
		Customers:      copySlice(s.customers),
		Suppliers:      copySlice(s.suppliers),
		DiscountRules:  copySlice(s.discountRules),
		Coupons:        copySlice(s.coupons),
		Inventory:      copySlice(s.inventory),
		StockInRecords: copyStockIns(s.stockInRecords),
		Orders:         copyOrders(s.orders),
		Receipts:       copySlice(s.receipts),
		StockLedger:    copySlice(s.stockLedger),
		CustomerLedger: copySlice(s.customerLedger),
		Refunds:        copySlice(s.refunds),
	}
	if s.storeSettings != nil {
		setting := *s.storeSettings
		setting.PaymentMethods = append([]string(nil), setting.PaymentMethods...)
		snap.StoreSettings = &setting
	}
	for _, collection := range domain.TombstonedCollections {
		for _, id := range s.deletions[collection].IDs() {
			snap.Deletions = append(snap.Deletions, domain.Deletion{Collection: collection, RecordID: id})
		}
	}
	return snap
}

// PushRequest packages the full state, with tombstones in the dedicated
// deletions map, ready for one push call.
func (s *Store) PushRequest() domain.PushRequest {
	snap := s.Snapshot()

	s.mu.RLock()
	defer s.mu.RUnlock()

	req := domain.PushRequest{Data: snap}
	req.Data.Deletions = nil
	for _, collection := range domain.TombstonedCollections {
		ids := s.deletions[collection].IDs()
		if len(ids) == 0 {
			continue
		}
		if req.Deletions == nil {
			req.Deletions = make(map[string][]string)
		}
		req.Deletions[collection] = ids
	}
	return req
}

// ApplyRemote folds a pulled snapshot into the local state. Remote
// tombstones join the local set first so a record deleted elsewhere never
// reappears here, then every collection merges under its own rule.
func (s *Store) ApplyRemote(snap domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range snap.Deletions {
		if d.Collection == "" || d.RecordID == "" {
			continue
		}
		s.tombstone(d.Collection, d.RecordID)
	}

	s.products = merge.ByID(s.products, snap.Products,
		func(v domain.Product) string { return v.ID },
		func(v domain.Product) time.Time { return merge.Timestamp(v.UpdatedAt, v.CreatedAt) },
		s.deletions[domain.CollectionProducts])
	s.services = merge.ByID(s.services, snap.Services,
		func(v domain.Service) string { return v.ID },
		func(v domain.Service) time.Time { return merge.Timestamp(v.UpdatedAt, v.CreatedAt) },
		s.deletions[domain.CollectionServices])
	s.customers = merge.ByID(s.customers, snap.Customers,
		func(v domain.Customer) string { return v.ID },
		func(v domain.Customer) time.Time { return merge.Timestamp(v.UpdatedAt, v.CreatedAt) },
		s.deletions[domain.CollectionCustomers])
	s.suppliers = merge.ByID(s.suppliers, snap.Suppliers,
		func(v domain.Supplier) string { return v.ID },
		func(v domain.Supplier) time.Time { return merge.Timestamp(v.UpdatedAt, v.CreatedAt) },
		s.deletions[domain.CollectionSuppliers])
	s.discountRules = merge.ByID(s.discountRules, snap.DiscountRules,
		func(v domain.DiscountRule) string { return v.ID },
		func(v domain.DiscountRule) time.Time { return merge.Timestamp(v.UpdatedAt, v.CreatedAt) },
		s.deletions[domain.CollectionDiscountRules])
	s.coupons = merge.ByID(s.coupons, snap.Coupons,
		func(v domain.Coupon) string { return v.ID },
		func(v domain.Coupon) time.Time { return merge.Timestamp(v.UpdatedAt, v.CreatedAt) },
		s.deletions[domain.CollectionCoupons])

	s.applyRemoteSettings(snap.StoreSettings)

	s.stockInRecords = merge.ByID(s.stockInRecords, snap.StockInRecords,
		func(v domain.StockInRecord) string { return v.ID },
		func(v domain.StockInRecord) time.Time { return merge.Timestamp(v.UpdatedAt, v.Date) },
		nil)
	s.orders = merge.ByID(s.orders, snap.Orders,
		func(v domain.Order) string { return v.ID },
		func(v domain.Order) time.Time { return merge.Timestamp(v.UpdatedAt, v.Date) },
		nil)

	// Append-only collections keep the local copy on id collision. Batches
	// carry receivedAt as their timestamp; same id means same immutable row,
	// so the tie keeps local.
	s.inventory = merge.ByID(s.inventory, snap.Inventory,
		func(v domain.InventoryBatch) string { return v.ID },
		func(v domain.InventoryBatch) time.Time { return v.ReceivedAt },
		nil)
	s.receipts = merge.ByID(s.receipts, snap.Receipts,
		func(v domain.Receipt) string { return v.ID },
		func(domain.Receipt) time.Time { return time.Time{} },
		nil)
	s.stockLedger = merge.ByID(s.stockLedger, snap.StockLedger,
		func(v domain.StockLedgerEntry) string { return v.ID },
		func(domain.StockLedgerEntry) time.Time { return time.Time{} },
		nil)
	s.customerLedger = merge.ByID(s.customerLedger, snap.CustomerLedger,
		func(v domain.CustomerLedgerEntry) string { return v.ID },
		func(domain.CustomerLedgerEntry) time.Time { return time.Time{} },
		nil)
	s.refunds = merge.ByID(s.refunds, snap.Refunds,
		func(v domain.Refund) string { return v.ID },
		func(domain.Refund) time.Time { return time.Time{} },
		nil)
}

// applyRemoteSettings runs last-write-wins on the singleton settings row.
// When the remote copy wins but carries no payment methods, the local list
// is kept so a half-filled row can't wipe the terminal's configuration.
func (s *Store) applyRemoteSettings(remote *domain.StoreSetting) {
	if remote == nil {
		return
	}
	incoming := *remote
	incoming.PaymentMethods = append([]string(nil), incoming.PaymentMethods...)

	if s.storeSettings == nil {
		s.storeSettings = &incoming
		return
	}
	localTS := merge.Timestamp(s.storeSettings.UpdatedAt, s.storeSettings.CreatedAt)
	remoteTS := merge.Timestamp(incoming.UpdatedAt, incoming.CreatedAt)
	if !remoteTS.After(localTS) {
		return
	}
	if len(incoming.PaymentMethods) == 0 {
		incoming.PaymentMethods = append([]string(nil), s.storeSettings.PaymentMethods...)
	}
	s.storeSettings = &incoming
}

func upsert[T any](items []T, item T, id func(T) string) []T {
	key := id(item)
	for i := range items {
		if id(items[i]) == key {
			items[i] = item
			return items
		}
	}
	return append(items, item)
}

func appendIfAbsent[T any](items []T, item T, id func(T) string) []T {
	key := id(item)
	for i := range items {
		if id(items[i]) == key {
			return items
		}
	}
	return append(items, item)
}

func remove[T any](items []T, key string, id func(T) string) []T {
	out := items[:0]
	for _, item := range items {
		if id(item) != key {
			out = append(out, item)
		}
	}
	return out
}

func copySlice[T any](items []T) []T {
	if len(items) == 0 {
		return nil
	}
	return append([]T(nil), items...)
}

func copyStockIns(items []domain.StockInRecord) []domain.StockInRecord {
	out := copySlice(items)
	for i := range out {
		out[i].Items = append([]domain.StockInItem(nil), out[i].Items...)
	}
	return out
}

func copyOrders(items []domain.Order) []domain.Order {
	out := copySlice(items)
	for i := range out {
		out[i].Items = append([]domain.OrderItem(nil), out[i].Items...)
	}
	return out
}
