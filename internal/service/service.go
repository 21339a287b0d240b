package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"tokosync/backend/internal/domain"
	"tokosync/backend/internal/merge"
	"tokosync/backend/internal/store"
)

type accountContextKey struct{}

func WithAccount(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountContextKey{}, accountID)
}

func AccountFromContext(ctx context.Context) (string, bool) {
	accountID, ok := ctx.Value(accountContextKey{}).(string)
	return accountID, ok
}

// Service is the remote reconciler: it applies full-state push payloads to
// the per-account store and assembles pull snapshots.
type Service struct {
	repo store.Repository
}

func New(repo store.Repository) *Service {
	return &Service{repo: repo}
}

// Snapshot assembles the account's complete remote state for a pull
// response. A missing settings row yields a nil StoreSettings field.
func (s *Service) Snapshot(ctx context.Context, accountID string) (domain.Snapshot, error) {
	var snap domain.Snapshot
	var err error

	if snap.Products, err = s.repo.ListProducts(ctx, accountID); err != nil {
		return domain.Snapshot{}, fmt.Errorf("list products: %w", err)
	}
	if snap.Services, err = s.repo.ListServices(ctx, accountID); err != nil {
		return domain.Snapshot{}, fmt.Errorf("list services: %w", err)
	}
	if snap.Customers, err = s.repo.ListCustomers(ctx, accountID); err != nil {
		return domain.Snapshot{}, fmt.Errorf("list customers: %w", err)
	}
	if snap.Suppliers, err = s.repo.ListSuppliers(ctx, accountID); err != nil {
		return domain.Snapshot{}, fmt.Errorf("list suppliers: %w", err)
	}
	if snap.DiscountRules, err = s.repo.ListDiscountRules(ctx, accountID); err != nil {
		return domain.Snapshot{}, fmt.Errorf("list discount rules: %w", err)
	}
	if snap.Coupons, err = s.repo.ListCoupons(ctx, accountID); err != nil {
		return domain.Snapshot{}, fmt.Errorf("list coupons: %w", err)
	}
	setting, err := s.repo.GetStoreSetting(ctx, accountID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.Snapshot{}, fmt.Errorf("get store setting: %w", err)
	}
	snap.StoreSettings = setting
	if snap.Inventory, err = s.repo.ListInventoryBatches(ctx, accountID); err != nil {
		return domain.Snapshot{}, fmt.Errorf("list inventory batches: %w", err)
	}
	if snap.StockInRecords, err = s.repo.ListStockInRecords(ctx, accountID); err != nil {
		return domain.Snapshot{}, fmt.Errorf("list stock-in records: %w", err)
	}
	if snap.Orders, err = s.repo.ListOrders(ctx, accountID); err != nil {
		return domain.Snapshot{}, fmt.Errorf("list orders: %w", err)
	}
	if snap.Receipts, err = s.repo.ListReceipts(ctx, accountID); err != nil {
		return domain.Snapshot{}, fmt.Errorf("list receipts: %w", err)
	}
	if snap.StockLedger, err = s.repo.ListStockLedger(ctx, accountID); err != nil {
		return domain.Snapshot{}, fmt.Errorf("list stock ledger: %w", err)
	}
	if snap.CustomerLedger, err = s.repo.ListCustomerLedger(ctx, accountID); err != nil {
		return domain.Snapshot{}, fmt.Errorf("list customer ledger: %w", err)
	}
	if snap.Refunds, err = s.repo.ListRefunds(ctx, accountID); err != nil {
		return domain.Snapshot{}, fmt.Errorf("list refunds: %w", err)
	}
	if snap.Deletions, err = s.repo.ListDeletions(ctx, accountID); err != nil {
		return domain.Snapshot{}, fmt.Errorf("list deletions: %w", err)
	}

	return snap, nil
}

// Reconcile applies one push payload. Ordering is fixed: tombstones first,
// then mutable categories, then append-only categories, then the coupon
// usage recompute (which needs the orders to be durable). Malformed records
// are skipped with a log line; they never abort the rest of the batch.
func (s *Service) Reconcile(ctx context.Context, accountID string, req domain.PushRequest) error {
	now := time.Now().UTC()

	deleted, err := s.applyTombstones(ctx, accountID, req, now)
	if err != nil {
		return err
	}

	for _, p := range req.Data.Products {
		if p.ID == "" {
			log.Printf("[service] WARN: skipping product without id (account=%s)", accountID)
			continue
		}
		if deleted[domain.CollectionProducts].Has(p.ID) {
			continue
		}
		p.CreatedAt, p.UpdatedAt = fillTimes(p.CreatedAt, p.UpdatedAt, now)
		if _, err := s.repo.UpsertProductIfNewer(ctx, accountID, p); err != nil {
			log.Printf("[service] WARN: upsert product %s failed: %v", p.ID, err)
		}
	}

	for _, svc := range req.Data.Services {
		if svc.ID == "" {
			log.Printf("[service] WARN: skipping service without id (account=%s)", accountID)
			continue
		}
		if deleted[domain.CollectionServices].Has(svc.ID) {
			continue
		}
		svc.CreatedAt, svc.UpdatedAt = fillTimes(svc.CreatedAt, svc.UpdatedAt, now)
		if _, err := s.repo.UpsertServiceIfNewer(ctx, accountID, svc); err != nil {
			log.Printf("[service] WARN: upsert service %s failed: %v", svc.ID, err)
		}
	}

	for _, c := range req.Data.Customers {
		if c.ID == "" {
			log.Printf("[service] WARN: skipping customer without id (account=%s)", accountID)
			continue
		}
		if deleted[domain.CollectionCustomers].Has(c.ID) {
			continue
		}
		c.CreatedAt, c.UpdatedAt = fillTimes(c.CreatedAt, c.UpdatedAt, now)
		if _, err := s.repo.UpsertCustomerIfNewer(ctx, accountID, c); err != nil {
			log.Printf("[service] WARN: upsert customer %s failed: %v", c.ID, err)
		}
	}

	for _, r := range req.Data.DiscountRules {
		if r.ID == "" {
			log.Printf("[service] WARN: skipping discount rule without id (account=%s)", accountID)
			continue
		}
		if deleted[domain.CollectionDiscountRules].Has(r.ID) {
			continue
		}
		r.CreatedAt, r.UpdatedAt = fillTimes(r.CreatedAt, r.UpdatedAt, now)
		if _, err := s.repo.UpsertDiscountRuleIfNewer(ctx, accountID, r); err != nil {
			log.Printf("[service] WARN: upsert discount rule %s failed: %v", r.ID, err)
		}
	}

	for _, c := range req.Data.Coupons {
		if c.ID == "" {
			log.Printf("[service] WARN: skipping coupon without id (account=%s)", accountID)
			continue
		}
		if deleted[domain.CollectionCoupons].Has(c.ID) {
			continue
		}
		c.CreatedAt, c.UpdatedAt = fillTimes(c.CreatedAt, c.UpdatedAt, now)
		if _, err := s.repo.UpsertCouponIfNewer(ctx, accountID, c); err != nil {
			log.Printf("[service] WARN: upsert coupon %s failed: %v", c.ID, err)
		}
	}

	if req.Data.StoreSettings != nil {
		setting := *req.Data.StoreSettings
		if setting.ID == "" {
			setting.ID = "SETTINGS-" + accountID
		}
		if len(setting.PaymentMethods) == 0 {
			setting.PaymentMethods = append([]string(nil), domain.DefaultPaymentMethods...)
		}
		if setting.MemberDiscountRate <= 0 || setting.MemberDiscountRate > 1 {
			setting.MemberDiscountRate = 1
		}
		setting.CreatedAt, setting.UpdatedAt = fillTimes(setting.CreatedAt, setting.UpdatedAt, now)
		if _, err := s.repo.UpsertStoreSettingIfNewer(ctx, accountID, setting); err != nil {
			log.Printf("[service] WARN: upsert store settings failed: %v", err)
		}
	}

	for _, sup := range req.Data.Suppliers {
		if sup.ID == "" {
			log.Printf("[service] WARN: skipping supplier without id (account=%s)", accountID)
			continue
		}
		if deleted[domain.CollectionSuppliers].Has(sup.ID) {
			continue
		}
		sup.CreatedAt, sup.UpdatedAt = fillTimes(sup.CreatedAt, sup.UpdatedAt, now)
		if _, err := s.repo.UpsertSupplierIfNewer(ctx, accountID, sup); err != nil {
			log.Printf("[service] WARN: upsert supplier %s failed: %v", sup.ID, err)
		}
	}

	for _, b := range req.Data.Inventory {
		if b.ID == "" || b.ProductID == "" {
			log.Printf("[service] WARN: skipping malformed inventory batch (account=%s)", accountID)
			continue
		}
		if b.ReceivedAt.IsZero() {
			b.ReceivedAt = now
		}
		if _, err := s.repo.InsertInventoryBatchIfAbsent(ctx, accountID, b); err != nil {
			log.Printf("[service] WARN: insert inventory batch %s failed: %v", b.ID, err)
		}
	}

	for _, r := range req.Data.StockInRecords {
		if r.ID == "" {
			log.Printf("[service] WARN: skipping stock-in record without id (account=%s)", accountID)
			continue
		}
		if r.Date.IsZero() {
			r.Date = now
		}
		r.CreatedAt, r.UpdatedAt = fillTimes(r.CreatedAt, r.UpdatedAt, now)
		for i := range r.Items {
			if r.Items[i].ID == "" {
				r.Items[i].ID = fmt.Sprintf("SIITEM-%s-%d", r.ID, i)
			}
		}
		if _, err := s.repo.UpsertStockInRecordIfNewer(ctx, accountID, r); err != nil {
			log.Printf("[service] WARN: upsert stock-in record %s failed: %v", r.ID, err)
		}
	}

	for _, o := range req.Data.Orders {
		if o.ID == "" {
			log.Printf("[service] WARN: skipping order without id (account=%s)", accountID)
			continue
		}
		if o.Date.IsZero() {
			o.Date = now
		}
		o.CreatedAt, o.UpdatedAt = fillTimes(o.CreatedAt, o.UpdatedAt, now)
		if o.OrderNo == "" {
			o.OrderNo = DeriveOrderNo(o.ID, o.Date)
		}
		if o.PayableTotalCents == nil {
			// Absent, not an explicit zero: derive from total and discount.
			payable := max64(0, o.TotalCents-o.DiscountAmountCents)
			o.PayableTotalCents = &payable
		}
		for i := range o.Items {
			if o.Items[i].ID == "" {
				o.Items[i].ID = fmt.Sprintf("OI-%s-%d", o.ID, i)
			}
		}
		if _, err := s.repo.UpsertOrderIfNewer(ctx, accountID, o); err != nil {
			log.Printf("[service] WARN: upsert order %s failed: %v", o.ID, err)
		}
	}

	for _, r := range req.Data.Receipts {
		if r.ID == "" || r.OrderID == "" {
			log.Printf("[service] WARN: skipping malformed receipt (account=%s)", accountID)
			continue
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if _, err := s.repo.InsertReceiptIfAbsent(ctx, accountID, r); err != nil {
			log.Printf("[service] WARN: insert receipt %s failed: %v", r.ID, err)
		}
	}

	for _, e := range req.Data.StockLedger {
		if e.ID == "" || e.ProductID == "" {
			log.Printf("[service] WARN: skipping malformed stock ledger entry (account=%s)", accountID)
			continue
		}
		if e.Date.IsZero() {
			e.Date = now
		}
		if _, err := s.repo.InsertStockLedgerIfAbsent(ctx, accountID, e); err != nil {
			log.Printf("[service] WARN: insert stock ledger entry %s failed: %v", e.ID, err)
		}
	}

	for _, e := range req.Data.CustomerLedger {
		if e.ID == "" || e.CustomerID == "" {
			log.Printf("[service] WARN: skipping malformed customer ledger entry (account=%s)", accountID)
			continue
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		if _, err := s.repo.InsertCustomerLedgerIfAbsent(ctx, accountID, e); err != nil {
			log.Printf("[service] WARN: insert customer ledger entry %s failed: %v", e.ID, err)
		}
	}

	for _, r := range req.Data.Refunds {
		if r.ID == "" || r.OrderID == "" {
			log.Printf("[service] WARN: skipping malformed refund (account=%s)", accountID)
			continue
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if _, err := s.repo.InsertRefundIfAbsent(ctx, accountID, r); err != nil {
			log.Printf("[service] WARN: insert refund %s failed: %v", r.ID, err)
		}
	}

	return s.recomputeCouponUsage(ctx, accountID, now)
}

// applyTombstones merges the incoming deletion markers into the account's
// persisted tombstone set and returns the union, grouped by collection, for
// the upsert phase to consult.
func (s *Service) applyTombstones(ctx context.Context, accountID string, req domain.PushRequest, now time.Time) (map[string]merge.Set, error) {
	incoming := make([]domain.Deletion, 0, len(req.Data.Deletions))
	incoming = append(incoming, req.Data.Deletions...)
	for collection, ids := range req.Deletions {
		for _, id := range ids {
			incoming = append(incoming, domain.Deletion{Collection: collection, RecordID: id})
		}
	}

	for _, d := range incoming {
		if d.Collection == "" || d.RecordID == "" {
			log.Printf("[service] WARN: skipping malformed deletion marker (account=%s)", accountID)
			continue
		}
		d.DeletedAt = now
		if err := s.repo.UpsertDeletion(ctx, accountID, d); err != nil {
			return nil, fmt.Errorf("apply tombstone %s/%s: %w", d.Collection, d.RecordID, err)
		}
	}

	persisted, err := s.repo.ListDeletions(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list tombstones: %w", err)
	}

	deleted := make(map[string]merge.Set)
	for _, d := range persisted {
		set, ok := deleted[d.Collection]
		if !ok {
			set = merge.NewSet()
			deleted[d.Collection] = set
		}
		set[d.RecordID] = struct{}{}
	}
	return deleted, nil
}

// recomputeCouponUsage overwrites every coupon's usedCount from the
// authoritative order set: the count of confirmed orders whose applied
// discount is that coupon. Whatever usedCount arrived in the push payload
// is discarded, which makes the aggregate self-healing under merge races.
func (s *Service) recomputeCouponUsage(ctx context.Context, accountID string, now time.Time) error {
	couponIDs, err := s.repo.ListCouponIDs(ctx, accountID)
	if err != nil {
		return fmt.Errorf("list coupons: %w", err)
	}
	for _, couponID := range couponIDs {
		used, err := s.repo.CountConfirmedCouponOrders(ctx, accountID, couponID)
		if err != nil {
			log.Printf("[service] WARN: count coupon orders %s failed: %v", couponID, err)
			continue
		}
		if err := s.repo.SetCouponUsedCount(ctx, accountID, couponID, used, now); err != nil {
			log.Printf("[service] WARN: set coupon used count %s failed: %v", couponID, err)
		}
	}
	return nil
}

// DeriveOrderNo synthesizes a stable order number for orders pushed without
// one: "SO" + yyyyMMddHHmm of the order date + the last six characters of
// the id, uppercased. The same (id, date) always derives the same number.
func DeriveOrderNo(id string, date time.Time) string {
	suffix := id
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return "SO" + date.Format("200601021504") + strings.ToUpper(suffix)
}

func fillTimes(createdAt, updatedAt, now time.Time) (time.Time, time.Time) {
	if createdAt.IsZero() {
		createdAt = now
	}
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	return createdAt, updatedAt
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
