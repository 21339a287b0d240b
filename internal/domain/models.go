package domain

import "time"

// Collection names as they appear on the wire and in tombstone rows.
const (
	CollectionProducts       = "products"
	CollectionServices       = "services"
	CollectionCustomers      = "customers"
	CollectionSuppliers      = "suppliers"
	CollectionDiscountRules  = "discountRules"
	CollectionCoupons        = "coupons"
	CollectionStoreSettings  = "storeSettings"
	CollectionInventory      = "inventoryBatches"
	CollectionStockInRecords = "stockInRecords"
	CollectionOrders         = "orders"
	CollectionReceipts       = "receipts"
	CollectionStockLedger    = "stockLedger"
	CollectionCustomerLedger = "customerLedger"
	CollectionRefunds        = "refunds"
)

// TombstonedCollections lists the collections whose deletions are tracked.
// Append-only collections are never deleted and carry no tombstones.
var TombstonedCollections = []string{
	CollectionProducts,
	CollectionServices,
	CollectionCustomers,
	CollectionSuppliers,
	CollectionDiscountRules,
	CollectionCoupons,
}

type Product struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Barcode           string    `json:"barcode,omitempty"`
	PriceCents        int64     `json:"priceCents"`
	CostCents         int64     `json:"costCents,omitempty"`
	Stock             int       `json:"stock"`
	LowStockThreshold int       `json:"lowStockThreshold,omitempty"`
	CreatedAt         time.Time `json:"createdAt,omitempty"`
	UpdatedAt         time.Time `json:"updatedAt,omitempty"`
}

type Service struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	PriceCents      int64     `json:"priceCents"`
	DurationMinutes int       `json:"durationMinutes,omitempty"`
	Note            string    `json:"note,omitempty"`
	CreatedAt       time.Time `json:"createdAt,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt,omitempty"`
}

type Customer struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	BalanceCents int64     `json:"balanceCents"`
	CreatedAt    time.Time `json:"createdAt,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty"`
}

type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

const (
	DiscountScopeAll     = "all"
	DiscountScopeProduct = "product"
	DiscountScopeService = "service"
)

type DiscountRule struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Scope          string     `json:"scope"`
	ThresholdCents int64      `json:"thresholdCents"`
	AmountCents    int64      `json:"amountCents"`
	StartAt        *time.Time `json:"startAt,omitempty"`
	EndAt          *time.Time `json:"endAt,omitempty"`
	Enabled        bool       `json:"enabled"`
	CreatedAt      time.Time  `json:"createdAt,omitempty"`
	UpdatedAt      time.Time  `json:"updatedAt,omitempty"`
}

type Coupon struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Code           string     `json:"code,omitempty"`
	Scope          string     `json:"scope"`
	ThresholdCents int64      `json:"thresholdCents,omitempty"`
	AmountCents    int64      `json:"amountCents"`
	StartAt        *time.Time `json:"startAt,omitempty"`
	EndAt          *time.Time `json:"endAt,omitempty"`
	Enabled        bool       `json:"enabled"`
	UsageLimit     int        `json:"usageLimit,omitempty"`
	UsedCount      int        `json:"usedCount"`
	CreatedAt      time.Time  `json:"createdAt,omitempty"`
	UpdatedAt      time.Time  `json:"updatedAt,omitempty"`
}

// StoreSetting is a per-account singleton, not a collection.
type StoreSetting struct {
	ID                 string    `json:"id"`
	MemberDiscountRate float64   `json:"memberDiscountRate"`
	PaymentMethods     []string  `json:"paymentMethods"`
	CreatedAt          time.Time `json:"createdAt,omitempty"`
	UpdatedAt          time.Time `json:"updatedAt,omitempty"`
}

// DefaultPaymentMethods backs a settings row pushed with an empty list.
var DefaultPaymentMethods = []string{"balance", "cash", "wechat", "alipay", "card"}

type InventoryBatch struct {
	ID         string     `json:"id"`
	ProductID  string     `json:"productId"`
	SupplierID string     `json:"supplierId,omitempty"`
	BatchNo    string     `json:"batchNo,omitempty"`
	Quantity   int        `json:"quantity"`
	CostCents  int64      `json:"costCents,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	ReceivedAt time.Time  `json:"receivedAt"`
	StockInID  string     `json:"stockInId,omitempty"`
}

const (
	StockInStatusDraft     = "draft"
	StockInStatusConfirmed = "confirmed"
)

type StockInItem struct {
	ID        string `json:"id,omitempty"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	CostCents int64  `json:"costCents,omitempty"`
}

type StockInRecord struct {
	ID             string        `json:"id"`
	Items          []StockInItem `json:"items"`
	Date           time.Time     `json:"date"`
	Note           string        `json:"note,omitempty"`
	SupplierID     string        `json:"supplierId,omitempty"`
	BatchNo        string        `json:"batchNo,omitempty"`
	ExpiresAt      *time.Time    `json:"expiresAt,omitempty"`
	Status         string        `json:"status"`
	TotalQuantity  int           `json:"totalQuantity"`
	TotalCostCents int64         `json:"totalCostCents,omitempty"`
	CreatedAt      time.Time     `json:"createdAt,omitempty"`
	UpdatedAt      time.Time     `json:"updatedAt,omitempty"`
}

const (
	OrderItemTypeProduct = "product"
	OrderItemTypeService = "service"
)

const (
	OrderStatusDraft     = "draft"
	OrderStatusConfirmed = "confirmed"
	OrderStatusCancelled = "cancelled"
	OrderStatusRefunded  = "refunded"
)

const (
	PaymentStatusUnpaid   = "unpaid"
	PaymentStatusPaid     = "paid"
	PaymentStatusRefunded = "refunded"
)

const (
	DiscountTypeMemberRate    = "member_rate"
	DiscountTypeFullReduction = "full_reduction"
	DiscountTypeCoupon        = "coupon"
)

type OrderItem struct {
	ID         string `json:"id,omitempty"`
	Type       string `json:"type"`
	ProductID  string `json:"productId,omitempty"`
	ServiceID  string `json:"serviceId,omitempty"`
	Name       string `json:"name,omitempty"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"priceCents"`
}

type Order struct {
	ID                  string      `json:"id"`
	OrderNo             string      `json:"orderNo,omitempty"`
	Items               []OrderItem `json:"items"`
	CustomerID          string      `json:"customerId,omitempty"`
	Date                time.Time   `json:"date"`
	TotalCents          int64       `json:"totalCents"`
	PaymentMethod       string      `json:"paymentMethod,omitempty"`
	PaymentAmountCents  int64       `json:"paymentAmountCents,omitempty"`
	DiscountAmountCents int64       `json:"discountAmountCents,omitempty"`
	DiscountType        string      `json:"discountType,omitempty"`
	DiscountName        string      `json:"discountName,omitempty"`
	DiscountRuleID      string      `json:"discountRuleId,omitempty"`
	DiscountRate        float64     `json:"discountRate,omitempty"`
	PayableTotalCents   *int64      `json:"payableTotalCents,omitempty"`
	PaymentStatus       string      `json:"paymentStatus"`
	Status              string      `json:"status"`
	CreatedAt           time.Time   `json:"createdAt,omitempty"`
	UpdatedAt           time.Time   `json:"updatedAt,omitempty"`
}

type Receipt struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"orderId"`
	CreatedAt time.Time `json:"createdAt"`
}

const (
	StockLedgerTypeIn         = "stock_in"
	StockLedgerTypeOut        = "stock_out"
	StockLedgerTypeAdjustment = "adjustment"
)

type StockLedgerEntry struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	Type      string    `json:"type"`
	Quantity  int       `json:"quantity"`
	Date      time.Time `json:"date"`
	RelatedID string    `json:"relatedId,omitempty"`
	Note      string    `json:"note,omitempty"`
}

const (
	CustomerLedgerTypeRecharge = "recharge"
	CustomerLedgerTypeConsume  = "consume"
	CustomerLedgerTypeAdjust   = "adjust"
)

type CustomerLedgerEntry struct {
	ID                string    `json:"id"`
	CustomerID        string    `json:"customerId"`
	Type              string    `json:"type"`
	AmountCents       int64     `json:"amountCents"`
	BalanceAfterCents int64     `json:"balanceAfterCents"`
	Note              string    `json:"note,omitempty"`
	RelatedID         string    `json:"relatedId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

type Refund struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"orderId"`
	AmountCents int64     `json:"amountCents"`
	Reason      string    `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Deletion is a persisted tombstone marker for one deleted record.
type Deletion struct {
	Collection string    `json:"collection"`
	RecordID   string    `json:"recordId"`
	DeletedAt  time.Time `json:"deletedAt,omitempty"`
}

// Snapshot is the full per-account state carried by one pull response or
// one push request. Absent collections decode to nil and mean "empty",
// never "erase".
type Snapshot struct {
	Products       []Product             `json:"products,omitempty"`
	Services       []Service             `json:"services,omitempty"`
	Customers      []Customer            `json:"customers,omitempty"`
	Suppliers      []Supplier            `json:"suppliers,omitempty"`
	DiscountRules  []DiscountRule        `json:"discountRules,omitempty"`
	Coupons        []Coupon              `json:"coupons,omitempty"`
	StoreSettings  *StoreSetting         `json:"storeSettings,omitempty"`
	Inventory      []InventoryBatch      `json:"inventoryBatches,omitempty"`
	StockInRecords []StockInRecord       `json:"stockInRecords,omitempty"`
	Orders         []Order               `json:"orders,omitempty"`
	Receipts       []Receipt             `json:"receipts,omitempty"`
	StockLedger    []StockLedgerEntry    `json:"stockLedger,omitempty"`
	CustomerLedger []CustomerLedgerEntry `json:"customerLedger,omitempty"`
	Refunds        []Refund              `json:"refunds,omitempty"`
	Deletions      []Deletion            `json:"deletions,omitempty"`
}

// PushRequest is the full-state push body. Deletions maps collection name
// to the record ids tombstoned on the client.
type PushRequest struct {
	Data      Snapshot            `json:"data"`
	Deletions map[string][]string `json:"deletions,omitempty"`
}

type PullResponse struct {
	Data Snapshot `json:"data"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Account is the internal persistence model for sync credentials.
type Account struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SyncToken maps an opaque bearer token to an account.
type SyncToken struct {
	ID         string
	Token      string
	AccountID  string
	CreatedAt  time.Time
	LastUsedAt time.Time
}
