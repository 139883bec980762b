package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Address represents postal address snapshots shared by cart and order layers.
type Address struct {
	Recipient  string
	Line1      string
	Line2      *string
	City       string
	State      *string
	PostalCode string
	Country    string
	Phone      *string
}

// CartStatus enumerates lifecycle states for carts.
type CartStatus string

const (
	// CartStatusActive indicates the cart accepts mutations and is visible to lookups.
	CartStatusActive CartStatus = "active"
	// CartStatusAbandoned indicates the cart was left idle past its activity threshold.
	CartStatusAbandoned CartStatus = "abandoned"
	// CartStatusConverted indicates the cart has been turned into an order.
	CartStatusConverted CartStatus = "converted"
	// CartStatusExpired indicates an anonymous cart passed its expiry deadline.
	CartStatusExpired CartStatus = "expired"
)

// Cart aggregates the mutable shopping cart state for a user or anonymous session.
// Exactly one of UserID/SessionToken is set while the cart is active.
type Cart struct {
	ID              string
	UserID          string
	SessionToken    string
	GuestEmail      string
	Status          CartStatus
	Currency        string
	Items           []CartItem
	ItemsCount      int
	Subtotal        int64
	DiscountTotal   int64
	TaxTotal        int64
	Total           int64
	AppliedCoupons  []string
	BillingAddress  *Address
	ShippingAddress *Address
	ExpiresAt       *time.Time
	LastActivityAt  time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CartItem stores a single product (and optional variant) entry within a cart.
type CartItem struct {
	ID             string
	ProductID      string
	VariantID      *string
	Quantity       int
	UnitPrice      int64
	OriginalPrice  int64
	DiscountAmount int64
	TotalPrice     int64
	Currency       string
	Snapshot       ProductSnapshot
	CustomOptions  map[string]any
	Notes          string
	AddedAt        time.Time
	UpdatedAt      *time.Time
}

// ProductSnapshot denormalizes product display fields at the time an item is
// added so the cart and order remain renderable after catalog edits.
type ProductSnapshot struct {
	Name         string
	SKU          string
	Slug         string
	ImageURL     string
	VariantTitle string
}

// CartEventType enumerates the mutation kinds recorded in the cart audit log.
type CartEventType string

const (
	// CartEventAddItem records a new item placed in the cart.
	CartEventAddItem CartEventType = "add_item"
	// CartEventUpdateQuantity records a quantity change on an existing item.
	CartEventUpdateQuantity CartEventType = "update_quantity"
	// CartEventRemoveItem records an item removal.
	CartEventRemoveItem CartEventType = "remove_item"
	// CartEventClearCart records a full cart wipe.
	CartEventClearCart CartEventType = "clear_cart"
)

// CartEvent is an append-only audit record of a cart mutation. Events are
// written inside the same transaction as the mutation they describe and are
// never updated or deleted.
type CartEvent struct {
	ID            string
	CartID        string
	Type          CartEventType
	ProductID     string
	VariantID     *string
	QuantityDelta int
	Metadata      map[string]any
	CreatedAt     time.Time
}

// SavedItem is a list-scoped saved product reference owned by a user.
// Unique per (user, product, variant, list name).
type SavedItem struct {
	ID         string
	UserID     string
	ProductID  string
	VariantID  *string
	ListName   string
	SavedPrice int64
	Currency   string
	Snapshot   ProductSnapshot
	CreatedAt  time.Time
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order is created and awaits confirmation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates the order has been acknowledged.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing indicates the order is being prepared.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order has been handed to a carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the order reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled before shipment. Terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusReturned indicates the customer returned the shipment.
	OrderStatusReturned OrderStatus = "returned"
	// OrderStatusRefunded indicates the order has been fully refunded. Terminal.
	OrderStatusRefunded OrderStatus = "refunded"
)

// PaymentStatus enumerates the modeled payment states. No gateway is wired;
// the field is advanced by external systems through the order API.
type PaymentStatus string

const (
	// PaymentStatusPending indicates payment has not completed.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid indicates payment succeeded.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed indicates payment failed.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded indicates the full amount was returned.
	PaymentStatusRefunded PaymentStatus = "refunded"
	// PaymentStatusPartiallyRefunded indicates part of the amount was returned.
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

// Order captures an immutable pricing snapshot plus mutable lifecycle state.
// Totals are authoritative once set at creation.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	GuestEmail      string
	CartRef         *string
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	PaymentMethod   string
	Currency        string
	Totals          OrderTotals
	Items           []OrderItem
	BillingAddress  Address
	ShippingAddress Address
	TrackingNumber  *string
	CustomerNotes   string
	History         []OrderStatusChange
	Refunds         []OrderRefund
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
}

// OrderTotals holds rolled-up monetary fields in the smallest currency unit.
type OrderTotals struct {
	Subtotal int64
	Discount int64
	Tax      int64
	Shipping int64
	Total    int64
}

// OrderItem is an immutable snapshot of a product line at order time.
// TotalPrice is FinalPrice multiplied by Quantity.
type OrderItem struct {
	ID             string
	ProductID      string
	VariantID      *string
	Name           string
	SKU            string
	VariantOptions map[string]any
	Quantity       int
	UnitPrice      int64
	DiscountAmount int64
	FinalPrice     int64
	TotalPrice     int64
}

// ActorType identifies who performed a status change.
type ActorType string

const (
	// ActorAdmin marks changes made by back-office staff.
	ActorAdmin ActorType = "admin"
	// ActorSystem marks changes made by automated processes.
	ActorSystem ActorType = "system"
	// ActorCustomer marks changes made by the order owner.
	ActorCustomer ActorType = "customer"
)

// OrderStatusChange is an append-only history entry. Never mutated after insert.
type OrderStatusChange struct {
	ID         string
	OrderID    string
	FromStatus OrderStatus
	ToStatus   OrderStatus
	ActorID    string
	ActorType  ActorType
	Reason     string
	Notes      string
	CreatedAt  time.Time
}

// RefundStatus enumerates refund processing states.
type RefundStatus string

const (
	// RefundStatusPending indicates the refund awaits review.
	RefundStatusPending RefundStatus = "pending"
	// RefundStatusApproved indicates the refund was accepted and counts against the order total.
	RefundStatusApproved RefundStatus = "approved"
	// RefundStatusProcessed indicates the refund has been paid out.
	RefundStatusProcessed RefundStatus = "processed"
	// RefundStatusRejected indicates the refund was declined.
	RefundStatusRejected RefundStatus = "rejected"
)

// CountsAgainstTotal reports whether a refund in this status consumes the
// order's refundable balance.
func (s RefundStatus) CountsAgainstTotal() bool {
	return s == RefundStatusApproved || s == RefundStatusProcessed
}

// OrderRefund represents a partial or full refund request against an order.
// The sum of amounts across refunds in {approved, processed} never exceeds
// the order total.
type OrderRefund struct {
	ID            string
	OrderID       string
	RefundNumber  string
	Amount        int64
	Currency      string
	Status        RefundStatus
	Reason        string
	CustomerNotes string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ProcessedAt   *time.Time
}

// InventoryReservation is a time-boxed advisory hold on stock tied to an
// order attempt. Released on order failure, cancellation, or expiry.
type InventoryReservation struct {
	ID         string
	ProductID  string
	VariantID  *string
	OrderID    *string
	Quantity   int
	Active     bool
	ExpiresAt  time.Time
	CreatedAt  time.Time
	ReleasedAt *time.Time
}

// ProductStatus enumerates catalog availability states.
type ProductStatus string

const (
	// ProductStatusActive indicates the product can be added to carts.
	ProductStatusActive ProductStatus = "active"
	// ProductStatusInactive indicates the product is hidden from purchase.
	ProductStatusInactive ProductStatus = "inactive"
	// ProductStatusDiscontinued indicates the product is permanently retired.
	ProductStatusDiscontinued ProductStatus = "discontinued"
)

// Product is the catalog read model consumed by cart and pricing flows.
type Product struct {
	ID                string
	Name              string
	SKU               string
	Slug              string
	ImageURL          string
	Status            ProductStatus
	Price             int64
	Currency          string
	InventoryQuantity int
}

// ProductVariant is a purchasable variation scoped to a product.
type ProductVariant struct {
	ID                string
	ProductID         string
	Title             string
	SKU               string
	Active            bool
	Price             *int64
	Options           map[string]any
	InventoryQuantity int
}

// DiscountType enumerates supported discount value interpretations.
type DiscountType string

const (
	// DiscountTypePercentage reduces the price by Value percent.
	DiscountTypePercentage DiscountType = "percentage"
	// DiscountTypeFixedAmount subtracts Value minor units, floored at zero.
	DiscountTypeFixedAmount DiscountType = "fixed_amount"
)

// Discount describes a catalog discount rule evaluated by the pricing engine.
type Discount struct {
	ID          string
	ProductID   string
	Name        string
	Type        DiscountType
	Value       int64
	MinQuantity int
	MinAmount   *int64
	Active      bool
	StartsAt    *time.Time
	EndsAt      *time.Time
	UsageLimit  *int
	UsageCount  int
}

// AppliesAt reports whether the discount window and usage limit admit the
// given instant.
func (d Discount) AppliesAt(now time.Time) bool {
	if !d.Active {
		return false
	}
	if d.StartsAt != nil && now.Before(*d.StartsAt) {
		return false
	}
	if d.EndsAt != nil && now.After(*d.EndsAt) {
		return false
	}
	if d.UsageLimit != nil && d.UsageCount >= *d.UsageLimit {
		return false
	}
	return true
}
