package localstore

import (
	"testing"
	"time"

	"tokosync/backend/internal/domain"
)

// manual clock so timestamp ordering in merges is deterministic
type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *clock {
	return &clock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func TestPutStampsTimestamps(t *testing.T) {
	c := newClock()
	s := NewWithClock(c.Now)

	s.PutProduct(domain.Product{ID: "p-1", Name: "Coffee"})
	snap := s.Snapshot()
	if len(snap.Products) != 1 {
		t.Fatalf("products = %+v", snap.Products)
	}
	got := snap.Products[0]
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatalf("timestamps not stamped: %+v", got)
	}

	c.Advance(time.Minute)
	got.Name = "Coffee Large"
	s.PutProduct(got)
	snap = s.Snapshot()
	if !snap.Products[0].UpdatedAt.After(got.CreatedAt) {
		t.Fatal("update did not bump updatedAt")
	}
	if !snap.Products[0].CreatedAt.Equal(got.CreatedAt) {
		t.Fatal("update changed createdAt")
	}
}

func TestDeleteLeavesTombstone(t *testing.T) {
	c := newClock()
	s := NewWithClock(c.Now)

	s.PutProduct(domain.Product{ID: "p-1", Name: "Coffee"})
	s.DeleteProduct("p-1")

	snap := s.Snapshot()
	if len(snap.Products) != 0 {
		t.Fatalf("deleted product still present: %+v", snap.Products)
	}
	if len(snap.Deletions) != 1 || snap.Deletions[0].RecordID != "p-1" {
		t.Fatalf("deletions = %+v", snap.Deletions)
	}

	// A remote copy of the deleted record must not resurrect it, even with
	// a newer timestamp.
	c.Advance(time.Hour)
	s.ApplyRemote(domain.Snapshot{
		Products: []domain.Product{{ID: "p-1", Name: "Coffee", UpdatedAt: c.Now()}},
	})
	if got := s.Snapshot().Products; len(got) != 0 {
		t.Fatalf("tombstoned record resurrected: %+v", got)
	}
}

func TestApplyRemoteLastWriteWins(t *testing.T) {
	c := newClock()
	s := NewWithClock(c.Now)

	s.PutProduct(domain.Product{ID: "p-1", Name: "Coffee", Stock: 10})
	local := s.Snapshot().Products[0]

	// Older remote copy loses.
	stale := local
	stale.Stock = 99
	stale.UpdatedAt = local.UpdatedAt.Add(-time.Hour)
	s.ApplyRemote(domain.Snapshot{Products: []domain.Product{stale}})
	if got := s.Snapshot().Products[0].Stock; got != 10 {
		t.Fatalf("stale remote overwrote local: stock=%d", got)
	}

	// Newer remote copy wins.
	fresh := local
	fresh.Stock = 7
	fresh.UpdatedAt = local.UpdatedAt.Add(time.Hour)
	s.ApplyRemote(domain.Snapshot{Products: []domain.Product{fresh}})
	if got := s.Snapshot().Products[0].Stock; got != 7 {
		t.Fatalf("newer remote was dropped: stock=%d", got)
	}

	// Applying the same snapshot again changes nothing.
	s.ApplyRemote(domain.Snapshot{Products: []domain.Product{fresh}})
	snap := s.Snapshot()
	if len(snap.Products) != 1 || snap.Products[0].Stock != 7 {
		t.Fatalf("reapply was not idempotent: %+v", snap.Products)
	}
}

func TestApplyRemoteRemoteOnlyRecordsAppear(t *testing.T) {
	s := NewWithClock(newClock().Now)

	now := time.Date(2026, 6, 2, 8, 0, 0, 0, time.UTC)
	s.ApplyRemote(domain.Snapshot{
		Customers: []domain.Customer{{ID: "c-1", Name: "Ana", UpdatedAt: now}},
		Orders:    []domain.Order{{ID: "o-1", Date: now, Status: domain.OrderStatusConfirmed, UpdatedAt: now}},
	})

	snap := s.Snapshot()
	if len(snap.Customers) != 1 || len(snap.Orders) != 1 {
		t.Fatalf("remote records missing: %+v / %+v", snap.Customers, snap.Orders)
	}
}

func TestApplyRemoteKeepsLocalPaymentMethods(t *testing.T) {
	c := newClock()
	s := NewWithClock(c.Now)

	s.SetStoreSettings(domain.StoreSetting{
		ID:             "st-1",
		PaymentMethods: []string{"cash", "card"},
	})

	remote := domain.StoreSetting{
		ID:                 "st-1",
		MemberDiscountRate: 0.9,
		UpdatedAt:          c.Now().Add(time.Hour),
	}
	s.ApplyRemote(domain.Snapshot{StoreSettings: &remote})

	got := s.Snapshot().StoreSettings
	if got == nil {
		t.Fatal("settings missing")
	}
	if got.MemberDiscountRate != 0.9 {
		t.Fatalf("newer remote settings not applied: %+v", got)
	}
	if len(got.PaymentMethods) != 2 {
		t.Fatalf("local payment methods wiped by empty remote list: %+v", got.PaymentMethods)
	}
}

func TestApplyRemoteEmptySnapshotErasesNothing(t *testing.T) {
	c := newClock()
	s := NewWithClock(c.Now)

	s.PutProduct(domain.Product{ID: "p-1", Name: "Coffee"})
	s.PutCustomer(domain.Customer{ID: "c-1", Name: "Ana"})
	s.SetStoreSettings(domain.StoreSetting{ID: "st-1", PaymentMethods: []string{"cash"}})

	s.ApplyRemote(domain.Snapshot{})

	snap := s.Snapshot()
	if len(snap.Products) != 1 || len(snap.Customers) != 1 || snap.StoreSettings == nil {
		t.Fatalf("empty snapshot erased local state: %+v", snap)
	}
}

func TestAppendOnlyKeepsLocalCopy(t *testing.T) {
	c := newClock()
	s := NewWithClock(c.Now)

	s.AppendReceipt(domain.Receipt{ID: "r-1", OrderID: "o-1"})
	s.ApplyRemote(domain.Snapshot{
		Receipts: []domain.Receipt{
			{ID: "r-1", OrderID: "o-other"},
			{ID: "r-2", OrderID: "o-2"},
		},
	})

	snap := s.Snapshot()
	if len(snap.Receipts) != 2 {
		t.Fatalf("receipts = %+v", snap.Receipts)
	}
	if snap.Receipts[0].OrderID != "o-1" {
		t.Fatalf("local receipt replaced: %+v", snap.Receipts[0])
	}
}

func TestInventoryBatchesMergeByReceivedAt(t *testing.T) {
	c := newClock()
	s := NewWithClock(c.Now)

	s.AddInventoryBatch(domain.InventoryBatch{ID: "b-1", ProductID: "p-1", Quantity: 10})
	received := s.Snapshot().Inventory[0].ReceivedAt

	s.ApplyRemote(domain.Snapshot{Inventory: []domain.InventoryBatch{
		{ID: "b-1", ProductID: "p-1", Quantity: 99, ReceivedAt: received},
		{ID: "b-2", ProductID: "p-2", Quantity: 5, ReceivedAt: received},
	}})

	snap := s.Snapshot()
	if len(snap.Inventory) != 2 {
		t.Fatalf("inventory = %+v", snap.Inventory)
	}
	if snap.Inventory[0].Quantity != 10 {
		t.Fatalf("same-id batch replaced local copy: %+v", snap.Inventory[0])
	}
}

func TestPushRequestShape(t *testing.T) {
	c := newClock()
	s := NewWithClock(c.Now)

	s.PutProduct(domain.Product{ID: "p-1", Name: "Coffee"})
	s.PutCoupon(domain.Coupon{ID: "c-1", Name: "Welcome", Scope: domain.DiscountScopeAll})
	s.DeleteCoupon("c-1")

	req := s.PushRequest()
	if len(req.Data.Products) != 1 {
		t.Fatalf("push data products = %+v", req.Data.Products)
	}
	if req.Data.Deletions != nil {
		t.Fatalf("tombstones leaked into data: %+v", req.Data.Deletions)
	}
	ids := req.Deletions[domain.CollectionCoupons]
	if len(ids) != 1 || ids[0] != "c-1" {
		t.Fatalf("deletions map = %+v", req.Deletions)
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	c := newClock()
	s := NewWithClock(c.Now)

	s.RecordOrder(domain.Order{
		ID:    "o-1",
		Items: []domain.OrderItem{{ID: "oi-1", Type: domain.OrderItemTypeProduct, Quantity: 1}},
	})

	snap := s.Snapshot()
	snap.Orders[0].Items[0].Quantity = 99

	if got := s.Snapshot().Orders[0].Items[0].Quantity; got != 1 {
		t.Fatalf("snapshot aliased internal state: quantity=%d", got)
	}
}
