package repositories

import (
	"context"
	"time"

	domain "github.com/clearcart/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	CartEvents() CartEventRepository
	SavedItems() SavedItemRepository
	Orders() OrderRepository
	Reservations() ReservationRepository
	Catalog() CatalogRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CartRepository owns cart header + item persistence with optimistic locking guarantees.
type CartRepository interface {
	Insert(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	Update(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	Delete(ctx context.Context, cartID string) error
	FindByID(ctx context.Context, cartID string) (domain.Cart, error)
	// FindActiveByUser returns the user's single active cart.
	FindActiveByUser(ctx context.Context, userID string) (domain.Cart, error)
	// FindActiveBySession returns the active, unexpired cart for an anonymous
	// session token. Carts whose ExpiresAt precedes now are invisible here.
	FindActiveBySession(ctx context.Context, sessionToken string, now time.Time) (domain.Cart, error)
	// ListExpiredActive returns active anonymous carts whose expiry passed,
	// consumed by the periodic sweep.
	ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]domain.Cart, error)
}

// CartEventRepository appends immutable cart mutation events.
type CartEventRepository interface {
	Append(ctx context.Context, event domain.CartEvent) error
	ListByCart(ctx context.Context, cartID string, pager domain.Pagination) (domain.CursorPage[domain.CartEvent], error)
}

// SavedItemRepository persists list-scoped saved product references.
type SavedItemRepository interface {
	Insert(ctx context.Context, item domain.SavedItem) (domain.SavedItem, error)
	Delete(ctx context.Context, userID string, itemID string) error
	FindByID(ctx context.Context, userID string, itemID string) (domain.SavedItem, error)
	// FindByKey looks up the unique row for (user, product, variant, list).
	FindByKey(ctx context.Context, key SavedItemKey) (domain.SavedItem, error)
	ListByUser(ctx context.Context, userID string, filter SavedItemListFilter) (domain.CursorPage[domain.SavedItem], error)
}

// SavedItemKey identifies the uniqueness scope of a saved item.
type SavedItemKey struct {
	UserID    string
	ProductID string
	VariantID *string
	ListName  string
}

// SavedItemListFilter narrows saved item listings.
type SavedItemListFilter struct {
	ListName string
	Pager    domain.Pagination
}

// OrderRepository persists order aggregates including embedded items, history and refunds.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) (domain.Order, error)
	Update(ctx context.Context, order domain.Order) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// OrderListFilter narrows order listings for customers and back-office views.
type OrderListFilter struct {
	UserID        string
	Status        *domain.OrderStatus
	PaymentStatus *domain.PaymentStatus
	CreatedAt     domain.RangeQuery[time.Time]
	Sort          domain.SortOrder
	Pager         domain.Pagination
}

// ReservationRepository manages advisory stock holds.
type ReservationRepository interface {
	Insert(ctx context.Context, reservation domain.InventoryReservation) (domain.InventoryReservation, error)
	FindByID(ctx context.Context, reservationID string) (domain.InventoryReservation, error)
	// BindOrder attaches reservations to a persisted order.
	BindOrder(ctx context.Context, reservationIDs []string, orderID string) error
	// Release deactivates reservations and stamps ReleasedAt. Releasing an
	// already inactive reservation is a no-op.
	Release(ctx context.Context, reservationIDs []string, releasedAt time.Time) error
	ListActiveByOrder(ctx context.Context, orderID string) ([]domain.InventoryReservation, error)
	// ListExpiredActive returns active reservations past their expiry,
	// consumed by the periodic sweep.
	ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]domain.InventoryReservation, error)
	// SumActiveQuantity totals active holds for a product/variant so callers
	// can compute available stock as on-hand minus reserved.
	SumActiveQuantity(ctx context.Context, productID string, variantID *string, now time.Time) (int, error)
}

// CatalogRepository is the read model over products, variants and discounts.
type CatalogRepository interface {
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	GetVariant(ctx context.Context, productID string, variantID string) (domain.ProductVariant, error)
	ListActiveDiscounts(ctx context.Context, productID string, now time.Time) ([]domain.Discount, error)
}

// CounterRepository issues monotonically increasing sequence values used for
// order and refund numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// CounterConfig carries optional counter settings applied via Configure.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
