package services

import (
	"context"
	"fmt"
	"time"

	domain "github.com/clearcart/api/internal/domain"
	"github.com/clearcart/api/internal/repositories"
)

// repoError is a configurable repositories.RepositoryError used to drive the
// services' error translation paths.
type repoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *repoError) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return "repository error"
}

func (e *repoError) IsNotFound() bool    { return e.notFound }
func (e *repoError) IsConflict() bool    { return e.conflict }
func (e *repoError) IsUnavailable() bool { return e.unavailable }

var (
	errStubNotFound    = &repoError{msg: "document missing", notFound: true}
	errStubConflict    = &repoError{msg: "version conflict", conflict: true}
	errStubUnavailable = &repoError{msg: "backend down", unavailable: true}
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// sequentialIDs returns deterministic ids: prefix-1, prefix-2, ...
func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func strPtr(s string) *string { return &s }

func intPtr(v int) *int { return &v }

func int64Ptr(v int64) *int64 { return &v }

// stubCartRepository implements repositories.CartRepository with overridable
// behaviour per method. Unset lookups report not found; unset writes echo
// their argument.
type stubCartRepository struct {
	insertFn              func(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	updateFn              func(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	deleteFn              func(ctx context.Context, cartID string) error
	findByIDFn            func(ctx context.Context, cartID string) (domain.Cart, error)
	findActiveByUserFn    func(ctx context.Context, userID string) (domain.Cart, error)
	findActiveBySessionFn func(ctx context.Context, token string, now time.Time) (domain.Cart, error)
	listExpiredActiveFn   func(ctx context.Context, now time.Time, limit int) ([]domain.Cart, error)
}

var _ repositories.CartRepository = (*stubCartRepository)(nil)

func (s *stubCartRepository) Insert(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if s.insertFn != nil {
		return s.insertFn(ctx, cart)
	}
	return cart, nil
}

func (s *stubCartRepository) Update(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cart)
	}
	return cart, nil
}

func (s *stubCartRepository) Delete(ctx context.Context, cartID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, cartID)
	}
	return nil
}

func (s *stubCartRepository) FindByID(ctx context.Context, cartID string) (domain.Cart, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, cartID)
	}
	return domain.Cart{}, errStubNotFound
}

func (s *stubCartRepository) FindActiveByUser(ctx context.Context, userID string) (domain.Cart, error) {
	if s.findActiveByUserFn != nil {
		return s.findActiveByUserFn(ctx, userID)
	}
	return domain.Cart{}, errStubNotFound
}

func (s *stubCartRepository) FindActiveBySession(ctx context.Context, token string, now time.Time) (domain.Cart, error) {
	if s.findActiveBySessionFn != nil {
		return s.findActiveBySessionFn(ctx, token, now)
	}
	return domain.Cart{}, errStubNotFound
}

func (s *stubCartRepository) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]domain.Cart, error) {
	if s.listExpiredActiveFn != nil {
		return s.listExpiredActiveFn(ctx, now, limit)
	}
	return nil, nil
}

// stubCartEventRepository records appended events in order.
type stubCartEventRepository struct {
	appendFn     func(ctx context.Context, event domain.CartEvent) error
	listByCartFn func(ctx context.Context, cartID string, pager domain.Pagination) (domain.CursorPage[domain.CartEvent], error)
	events       []domain.CartEvent
}

var _ repositories.CartEventRepository = (*stubCartEventRepository)(nil)

func (s *stubCartEventRepository) Append(ctx context.Context, event domain.CartEvent) error {
	if s.appendFn != nil {
		return s.appendFn(ctx, event)
	}
	s.events = append(s.events, event)
	return nil
}

func (s *stubCartEventRepository) ListByCart(ctx context.Context, cartID string, pager domain.Pagination) (domain.CursorPage[domain.CartEvent], error) {
	if s.listByCartFn != nil {
		return s.listByCartFn(ctx, cartID, pager)
	}
	return domain.CursorPage[domain.CartEvent]{}, nil
}

// stubCatalogRepository serves products and variants from maps. Variants are
// keyed by variant id.
type stubCatalogRepository struct {
	products  map[string]domain.Product
	variants  map[string]domain.ProductVariant
	discounts []domain.Discount

	getProductFn func(ctx context.Context, productID string) (domain.Product, error)
	getVariantFn func(ctx context.Context, productID string, variantID string) (domain.ProductVariant, error)
	discountsFn  func(ctx context.Context, productID string, now time.Time) ([]domain.Discount, error)
}

var _ repositories.CatalogRepository = (*stubCatalogRepository)(nil)

func (s *stubCatalogRepository) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	if s.getProductFn != nil {
		return s.getProductFn(ctx, productID)
	}
	if p, ok := s.products[productID]; ok {
		return p, nil
	}
	return domain.Product{}, errStubNotFound
}

func (s *stubCatalogRepository) GetVariant(ctx context.Context, productID string, variantID string) (domain.ProductVariant, error) {
	if s.getVariantFn != nil {
		return s.getVariantFn(ctx, productID, variantID)
	}
	if v, ok := s.variants[variantID]; ok && v.ProductID == productID {
		return v, nil
	}
	return domain.ProductVariant{}, errStubNotFound
}

func (s *stubCatalogRepository) ListActiveDiscounts(ctx context.Context, productID string, now time.Time) ([]domain.Discount, error) {
	if s.discountsFn != nil {
		return s.discountsFn(ctx, productID, now)
	}
	out := make([]domain.Discount, 0, len(s.discounts))
	for _, d := range s.discounts {
		if d.ProductID == productID {
			out = append(out, d)
		}
	}
	return out, nil
}

// stubSavedItemRepository implements repositories.SavedItemRepository.
type stubSavedItemRepository struct {
	insertFn     func(ctx context.Context, item domain.SavedItem) (domain.SavedItem, error)
	deleteFn     func(ctx context.Context, userID string, itemID string) error
	findByIDFn   func(ctx context.Context, userID string, itemID string) (domain.SavedItem, error)
	findByKeyFn  func(ctx context.Context, key repositories.SavedItemKey) (domain.SavedItem, error)
	listByUserFn func(ctx context.Context, userID string, filter repositories.SavedItemListFilter) (domain.CursorPage[domain.SavedItem], error)
}

var _ repositories.SavedItemRepository = (*stubSavedItemRepository)(nil)

func (s *stubSavedItemRepository) Insert(ctx context.Context, item domain.SavedItem) (domain.SavedItem, error) {
	if s.insertFn != nil {
		return s.insertFn(ctx, item)
	}
	return item, nil
}

func (s *stubSavedItemRepository) Delete(ctx context.Context, userID string, itemID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, userID, itemID)
	}
	return nil
}

func (s *stubSavedItemRepository) FindByID(ctx context.Context, userID string, itemID string) (domain.SavedItem, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, userID, itemID)
	}
	return domain.SavedItem{}, errStubNotFound
}

func (s *stubSavedItemRepository) FindByKey(ctx context.Context, key repositories.SavedItemKey) (domain.SavedItem, error) {
	if s.findByKeyFn != nil {
		return s.findByKeyFn(ctx, key)
	}
	return domain.SavedItem{}, errStubNotFound
}

func (s *stubSavedItemRepository) ListByUser(ctx context.Context, userID string, filter repositories.SavedItemListFilter) (domain.CursorPage[domain.SavedItem], error) {
	if s.listByUserFn != nil {
		return s.listByUserFn(ctx, userID, filter)
	}
	return domain.CursorPage[domain.SavedItem]{}, nil
}

// stubOrderRepository implements repositories.OrderRepository.
type stubOrderRepository struct {
	insertFn       func(ctx context.Context, order domain.Order) (domain.Order, error)
	updateFn       func(ctx context.Context, order domain.Order) (domain.Order, error)
	findByIDFn     func(ctx context.Context, orderID string) (domain.Order, error)
	findByNumberFn func(ctx context.Context, orderNumber string) (domain.Order, error)
	listFn         func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
}

var _ repositories.OrderRepository = (*stubOrderRepository)(nil)

func (s *stubOrderRepository) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	return order, nil
}

func (s *stubOrderRepository) Update(ctx context.Context, order domain.Order) (domain.Order, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, order)
	}
	return order, nil
}

func (s *stubOrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, orderID)
	}
	return domain.Order{}, errStubNotFound
}

func (s *stubOrderRepository) FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	if s.findByNumberFn != nil {
		return s.findByNumberFn(ctx, orderNumber)
	}
	return domain.Order{}, errStubNotFound
}

func (s *stubOrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

// stubReservationRepository implements repositories.ReservationRepository.
type stubReservationRepository struct {
	insertFn            func(ctx context.Context, reservation domain.InventoryReservation) (domain.InventoryReservation, error)
	findByIDFn          func(ctx context.Context, reservationID string) (domain.InventoryReservation, error)
	bindOrderFn         func(ctx context.Context, reservationIDs []string, orderID string) error
	releaseFn           func(ctx context.Context, reservationIDs []string, releasedAt time.Time) error
	listActiveByOrderFn func(ctx context.Context, orderID string) ([]domain.InventoryReservation, error)
	listExpiredActiveFn func(ctx context.Context, now time.Time, limit int) ([]domain.InventoryReservation, error)
	sumActiveFn         func(ctx context.Context, productID string, variantID *string, now time.Time) (int, error)
}

var _ repositories.ReservationRepository = (*stubReservationRepository)(nil)

func (s *stubReservationRepository) Insert(ctx context.Context, reservation domain.InventoryReservation) (domain.InventoryReservation, error) {
	if s.insertFn != nil {
		return s.insertFn(ctx, reservation)
	}
	return reservation, nil
}

func (s *stubReservationRepository) FindByID(ctx context.Context, reservationID string) (domain.InventoryReservation, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, reservationID)
	}
	return domain.InventoryReservation{}, errStubNotFound
}

func (s *stubReservationRepository) BindOrder(ctx context.Context, reservationIDs []string, orderID string) error {
	if s.bindOrderFn != nil {
		return s.bindOrderFn(ctx, reservationIDs, orderID)
	}
	return nil
}

func (s *stubReservationRepository) Release(ctx context.Context, reservationIDs []string, releasedAt time.Time) error {
	if s.releaseFn != nil {
		return s.releaseFn(ctx, reservationIDs, releasedAt)
	}
	return nil
}

func (s *stubReservationRepository) ListActiveByOrder(ctx context.Context, orderID string) ([]domain.InventoryReservation, error) {
	if s.listActiveByOrderFn != nil {
		return s.listActiveByOrderFn(ctx, orderID)
	}
	return nil, nil
}

func (s *stubReservationRepository) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]domain.InventoryReservation, error) {
	if s.listExpiredActiveFn != nil {
		return s.listExpiredActiveFn(ctx, now, limit)
	}
	return nil, nil
}

func (s *stubReservationRepository) SumActiveQuantity(ctx context.Context, productID string, variantID *string, now time.Time) (int, error) {
	if s.sumActiveFn != nil {
		return s.sumActiveFn(ctx, productID, variantID, now)
	}
	return 0, nil
}

// stubCounterRepository implements repositories.CounterRepository.
type stubCounterRepository struct {
	nextFn      func(ctx context.Context, counterID string, step int64) (int64, error)
	configureFn func(ctx context.Context, counterID string, cfg repositories.CounterConfig) error
}

var _ repositories.CounterRepository = (*stubCounterRepository)(nil)

func (s *stubCounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if s.nextFn != nil {
		return s.nextFn(ctx, counterID, step)
	}
	return 1, nil
}

func (s *stubCounterRepository) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	if s.configureFn != nil {
		return s.configureFn(ctx, counterID, cfg)
	}
	return nil
}

// stubPricingEngine returns quotes from a map keyed by product id with no
// discount applied unless quoteFn overrides it.
type stubPricingEngine struct {
	quoteFn    func(ctx context.Context, req PriceQuoteRequest) (PriceQuote, error)
	unitPrices map[string]int64
	currency   string
}

var _ PricingEngine = (*stubPricingEngine)(nil)

func (s *stubPricingEngine) QuoteProduct(ctx context.Context, req PriceQuoteRequest) (PriceQuote, error) {
	if s.quoteFn != nil {
		return s.quoteFn(ctx, req)
	}
	unit := s.unitPrices[req.ProductID]
	currency := s.currency
	if currency == "" {
		currency = "USD"
	}
	return PriceQuote{
		ProductID:         req.ProductID,
		Quantity:          req.Quantity,
		Currency:          currency,
		OriginalUnitPrice: unit,
		DiscountedUnit:    unit,
		OriginalTotal:     unit * int64(req.Quantity),
		DiscountedTotal:   unit * int64(req.Quantity),
	}, nil
}

// stubStockAvailability reports fixed availability per product id.
type stubStockAvailability struct {
	availableFn func(ctx context.Context, productID string, variantID *string) (int, error)
	levels      map[string]int
}

var _ StockAvailability = (*stubStockAvailability)(nil)

func (s *stubStockAvailability) Available(ctx context.Context, productID string, variantID *string) (int, error) {
	if s.availableFn != nil {
		return s.availableFn(ctx, productID, variantID)
	}
	return s.levels[productID], nil
}

// stubInventoryService implements InventoryService for order service tests.
type stubInventoryService struct {
	reserveFn        func(ctx context.Context, cmd ReserveStockCommand) ([]domain.InventoryReservation, error)
	releaseFn        func(ctx context.Context, cmd ReleaseReservationsCommand) error
	releaseByOrderFn func(ctx context.Context, orderID string, reason string) error
	bindFn           func(ctx context.Context, reservationIDs []string, orderID string) error
	availableFn      func(ctx context.Context, productID string, variantID *string) (int, error)
}

var _ InventoryService = (*stubInventoryService)(nil)

func (s *stubInventoryService) Reserve(ctx context.Context, cmd ReserveStockCommand) ([]domain.InventoryReservation, error) {
	if s.reserveFn != nil {
		return s.reserveFn(ctx, cmd)
	}
	out := make([]domain.InventoryReservation, 0, len(cmd.Lines))
	for i, line := range cmd.Lines {
		out = append(out, domain.InventoryReservation{
			ID:        fmt.Sprintf("res-%d", i+1),
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
			Active:    true,
		})
	}
	return out, nil
}

func (s *stubInventoryService) Release(ctx context.Context, cmd ReleaseReservationsCommand) error {
	if s.releaseFn != nil {
		return s.releaseFn(ctx, cmd)
	}
	return nil
}

func (s *stubInventoryService) ReleaseByOrder(ctx context.Context, orderID string, reason string) error {
	if s.releaseByOrderFn != nil {
		return s.releaseByOrderFn(ctx, orderID, reason)
	}
	return nil
}

func (s *stubInventoryService) BindToOrder(ctx context.Context, reservationIDs []string, orderID string) error {
	if s.bindFn != nil {
		return s.bindFn(ctx, reservationIDs, orderID)
	}
	return nil
}

func (s *stubInventoryService) Available(ctx context.Context, productID string, variantID *string) (int, error) {
	if s.availableFn != nil {
		return s.availableFn(ctx, productID, variantID)
	}
	return 1000, nil
}

// stubCounterService issues fixed document numbers.
type stubCounterService struct {
	nextFn         func(ctx context.Context, scope string, name string, opts CounterGenerationOptions) (CounterValue, error)
	orderNumberFn  func(ctx context.Context) (string, error)
	refundNumberFn func(ctx context.Context) (string, error)
}

var _ CounterService = (*stubCounterService)(nil)

func (s *stubCounterService) Next(ctx context.Context, scope string, name string, opts CounterGenerationOptions) (CounterValue, error) {
	if s.nextFn != nil {
		return s.nextFn(ctx, scope, name, opts)
	}
	return CounterValue{Value: 1, Formatted: "1"}, nil
}

func (s *stubCounterService) NextOrderNumber(ctx context.Context) (string, error) {
	if s.orderNumberFn != nil {
		return s.orderNumberFn(ctx)
	}
	return "ORD20240301000001", nil
}

func (s *stubCounterService) NextRefundNumber(ctx context.Context) (string, error) {
	if s.refundNumberFn != nil {
		return s.refundNumberFn(ctx)
	}
	return "REF20240301000001", nil
}

// stubNotificationDispatch records every send.
type stubNotificationDispatch struct {
	confirmations []domain.Order
	statusUpdates []domain.OrderStatus
	refundNotices []domain.OrderRefund
	err           error
}

var _ NotificationDispatch = (*stubNotificationDispatch)(nil)

func (s *stubNotificationDispatch) SendOrderConfirmation(ctx context.Context, order domain.Order) error {
	s.confirmations = append(s.confirmations, order)
	return s.err
}

func (s *stubNotificationDispatch) SendStatusUpdate(ctx context.Context, order domain.Order, from domain.OrderStatus, to domain.OrderStatus) error {
	s.statusUpdates = append(s.statusUpdates, to)
	return s.err
}

func (s *stubNotificationDispatch) SendRefundNotice(ctx context.Context, order domain.Order, refund domain.OrderRefund) error {
	s.refundNotices = append(s.refundNotices, refund)
	return s.err
}
