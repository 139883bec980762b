package services

import (
	"context"
	"time"

	domain "github.com/clearcart/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination           = domain.Pagination
	SortOrder            = domain.SortOrder
	Address              = domain.Address
	Cart                 = domain.Cart
	CartStatus           = domain.CartStatus
	CartItem             = domain.CartItem
	CartEvent            = domain.CartEvent
	CartEventType        = domain.CartEventType
	CartValidationResult = domain.CartValidationResult
	CartValidationIssue  = domain.CartValidationIssue
	ProductSnapshot      = domain.ProductSnapshot
	SavedItem            = domain.SavedItem
	Order                = domain.Order
	OrderStatus          = domain.OrderStatus
	OrderTotals          = domain.OrderTotals
	OrderItem            = domain.OrderItem
	OrderStatusChange    = domain.OrderStatusChange
	OrderRefund          = domain.OrderRefund
	RefundStatus         = domain.RefundStatus
	PaymentStatus        = domain.PaymentStatus
	ActorType            = domain.ActorType
	InventoryReservation = domain.InventoryReservation
	Product              = domain.Product
	ProductVariant       = domain.ProductVariant
	Discount             = domain.Discount
	PriceQuote           = domain.PriceQuote
	AppliedDiscount      = domain.AppliedDiscount
	SystemHealthReport   = domain.SystemHealthReport
)

// CartService manages mutable cart state and enforces stock rules on every mutation.
type CartService interface {
	// GetOrCreateCart resolves the active cart for the given owner, creating
	// one on first access. Anonymous carts receive an expiry deadline.
	GetOrCreateCart(ctx context.Context, owner CartOwner) (Cart, error)
	GetCart(ctx context.Context, cartID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	ClearCart(ctx context.Context, cartID string) (Cart, error)
	// SyncOnLogin reconciles an anonymous cart with the user's cart using the
	// requested merge strategy. The anonymous cart never survives the sync.
	SyncOnLogin(ctx context.Context, cmd SyncCartCommand) (CartSyncResult, error)
	// ValidateCart re-checks every item against live catalog and stock data,
	// repairing drifted prices in place.
	ValidateCart(ctx context.Context, cartID string) (CartValidationResult, error)
	ListEvents(ctx context.Context, cartID string, pager Pagination) (domain.CursorPage[CartEvent], error)
}

// SavedItemsService manages list-scoped saved products and the move-to-cart flow.
type SavedItemsService interface {
	Save(ctx context.Context, cmd SaveItemCommand) (SavedItem, error)
	List(ctx context.Context, userID string, filter SavedItemListFilter) (domain.CursorPage[SavedItem], error)
	Remove(ctx context.Context, userID string, itemID string) error
	// MoveToCart adds the saved product to the user's cart and deletes the
	// saved row only when the cart add succeeds.
	MoveToCart(ctx context.Context, cmd MoveToCartCommand) (MoveToCartResult, error)
}

// PricingEngine selects the best applicable discount for a product line.
type PricingEngine interface {
	QuoteProduct(ctx context.Context, req PriceQuoteRequest) (PriceQuote, error)
}

// InventoryService centralizes advisory stock holds and their release.
type InventoryService interface {
	// Reserve creates one hold per line. Either every line is reserved or
	// none are; partial failures release the holds already taken.
	Reserve(ctx context.Context, cmd ReserveStockCommand) ([]InventoryReservation, error)
	Release(ctx context.Context, cmd ReleaseReservationsCommand) error
	ReleaseByOrder(ctx context.Context, orderID string, reason string) error
	BindToOrder(ctx context.Context, reservationIDs []string, orderID string) error
	// Available returns on-hand stock minus active holds for a product/variant.
	Available(ctx context.Context, productID string, variantID *string) (int, error)
}

// OrderService encapsulates order creation, the status state machine, and refunds.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (OrderCreationResult, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	GetByNumber(ctx context.Context, orderNumber string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	UpdateStatus(ctx context.Context, cmd OrderStatusCommand) (Order, error)
	UpdatePaymentStatus(ctx context.Context, cmd PaymentStatusCommand) (Order, error)
	CreateRefund(ctx context.Context, cmd CreateRefundCommand) (OrderRefund, error)
	UpdateRefundStatus(ctx context.Context, cmd RefundStatusCommand) (OrderRefund, error)
}

// NotificationDispatch delivers customer-facing messages for order lifecycle
// events. Callers treat every method as fire-and-forget: failures are logged
// by the caller and never surfaced or allowed to roll back the owning
// transaction.
type NotificationDispatch interface {
	SendOrderConfirmation(ctx context.Context, order Order) error
	SendStatusUpdate(ctx context.Context, order Order, from OrderStatus, to OrderStatus) error
	SendRefundNotice(ctx context.Context, order Order, refund OrderRefund) error
}

// MaintenanceService releases expired reservations and expires idle anonymous
// carts. Sweeps are idempotent over "expired but still active" rows.
type MaintenanceService interface {
	SweepReservations(ctx context.Context, now time.Time) (SweepResult, error)
	SweepCarts(ctx context.Context, now time.Time) (SweepResult, error)
	// Run executes both sweeps on a fixed interval until ctx is cancelled.
	Run(ctx context.Context) error
}

// CounterService issues formatted, collision-free document numbers.
type CounterService interface {
	Next(ctx context.Context, scope string, name string, opts CounterGenerationOptions) (CounterValue, error)
	NextOrderNumber(ctx context.Context) (string, error)
	NextRefundNumber(ctx context.Context) (string, error)
}

// SystemService aggregates utility endpoints such as health checks.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// Command and DTO definitions ------------------------------------------------

// CartOwner identifies the owner of a cart: exactly one of UserID or
// SessionToken must be set.
type CartOwner struct {
	UserID       string
	SessionToken string
	GuestEmail   string
	Currency     string
}

type AddCartItemCommand struct {
	CartID        string
	ProductID     string
	VariantID     *string
	Quantity      int
	CustomOptions map[string]any
	Notes         string
}

type UpdateCartItemCommand struct {
	CartID        string
	ItemID        string
	Quantity      *int
	CustomOptions map[string]any
	Notes         *string
}

type RemoveCartItemCommand struct {
	CartID string
	ItemID string
}

// MergeStrategy controls how SyncOnLogin reconciles two carts.
type MergeStrategy string

const (
	// MergeStrategyMerge folds anonymous items into the user cart.
	MergeStrategyMerge MergeStrategy = "merge"
	// MergeStrategyReplace discards the user cart contents in favour of the anonymous cart.
	MergeStrategyReplace MergeStrategy = "replace"
)

type SyncCartCommand struct {
	UserID       string
	SessionToken string
	Strategy     MergeStrategy
}

// CartSyncResult reports the surviving cart and any lines that could not be
// merged because stock would be exceeded.
type CartSyncResult struct {
	Cart         Cart
	SkippedItems []SkippedCartItem
}

// SkippedCartItem names an anonymous-cart line dropped during a merge.
type SkippedCartItem struct {
	ProductID string
	VariantID *string
	Quantity  int
	Reason    string
}

type SaveItemCommand struct {
	UserID    string
	ProductID string
	VariantID *string
	ListName  string
}

// SavedItemListFilter narrows saved item listings by list name.
type SavedItemListFilter struct {
	ListName string
	Pager    Pagination
}

type MoveToCartCommand struct {
	UserID   string
	ItemID   string
	Quantity int
}

// MoveToCartResult reports whether the move happened and the resulting cart.
type MoveToCartResult struct {
	Moved  bool
	Reason string
	Cart   Cart
}

// PriceQuoteRequest asks the engine to price quantity units of a product,
// optionally against an explicit pre-discount total.
type PriceQuoteRequest struct {
	ProductID   string
	Quantity    int
	TotalAmount *int64
}

// ReservationLine is one product/quantity pair to hold.
type ReservationLine struct {
	ProductID string
	VariantID *string
	Quantity  int
}

type ReserveStockCommand struct {
	Lines []ReservationLine
	TTL   time.Duration
}

type ReleaseReservationsCommand struct {
	ReservationIDs []string
	Reason         string
}

// OrderLineInput is a raw line supplied when creating an order without a cart.
type OrderLineInput struct {
	ProductID string
	VariantID *string
	Quantity  int
}

type CreateOrderCommand struct {
	// Exactly one of CartID or Lines supplies the order contents.
	CartID          string
	Lines           []OrderLineInput
	UserID          string
	GuestEmail      string
	PaymentMethod   string
	BillingAddress  Address
	ShippingAddress *Address
	CustomerNotes   string
}

// OrderCreationResult pairs the persisted order with per-line outcomes so
// callers can see exactly which requested lines were fulfilled or rejected.
type OrderCreationResult struct {
	Order        Order
	LineOutcomes []OrderLineOutcome
}

// OrderLineOutcome reports the fate of a single requested line.
type OrderLineOutcome struct {
	ProductID string
	VariantID *string
	Quantity  int
	Fulfilled bool
	Reason    string
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	UserID        string
	Status        *OrderStatus
	PaymentStatus *PaymentStatus
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
	Sort          SortOrder
	Pager         Pagination
}

type OrderStatusCommand struct {
	OrderID        string
	Status         OrderStatus
	Reason         string
	Notes          string
	TrackingNumber *string
	ActorID        string
	ActorType      ActorType
}

type PaymentStatusCommand struct {
	OrderID       string
	PaymentStatus PaymentStatus
	ActorID       string
}

type CreateRefundCommand struct {
	OrderID       string
	Amount        int64
	Reason        string
	CustomerNotes string
	ActorID       string
}

type RefundStatusCommand struct {
	OrderID  string
	RefundID string
	Status   RefundStatus
	ActorID  string
}

// SweepResult summarises a single maintenance pass.
type SweepResult struct {
	Scanned  int
	Released int
}

// CounterValue returns both the raw sequence and its formatted representation.
type CounterValue struct {
	Value     int64
	Formatted string
}

// CounterGenerationOptions controls how counter values are incremented and formatted.
type CounterGenerationOptions struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
	Prefix       string
	Suffix       string
	PadLength    int
	Formatter    func(now time.Time, seq int64) string
}
