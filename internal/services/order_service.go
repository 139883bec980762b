package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/clearcart/api/internal/domain"
	"github.com/clearcart/api/internal/repositories"
)

var (
	// ErrOrderInvalidInput indicates malformed order parameters.
	ErrOrderInvalidInput = errors.New("order service: invalid input")
	// ErrOrderNotFound indicates the order does not exist.
	ErrOrderNotFound = errors.New("order service: not found")
	// ErrOrderInvalidState indicates the requested transition or operation is
	// not allowed in the order's current state.
	ErrOrderInvalidState = errors.New("order service: invalid state")
	// ErrOrderRefundExceedsTotal indicates the refund would break the
	// refundable balance invariant.
	ErrOrderRefundExceedsTotal = errors.New("order service: refund exceeds total")
	// ErrOrderConflict indicates a concurrent modification was detected.
	ErrOrderConflict = errors.New("order service: conflict")
	// ErrOrderUnavailable indicates the persistence backend failed transiently.
	ErrOrderUnavailable = errors.New("order service: unavailable")
)

// orderStateTransitions is the authoritative transition table. Statuses not
// present as keys are terminal.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed:  {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered, domain.OrderStatusReturned},
	domain.OrderStatusDelivered:  {domain.OrderStatusReturned, domain.OrderStatusRefunded},
	domain.OrderStatusReturned:   {domain.OrderStatusRefunded},
}

func canTransition(from, to domain.OrderStatus) bool {
	for _, allowed := range orderStateTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

const (
	defaultTaxRateBasisPoints    = 1800
	defaultFreeShippingThreshold = 50000
	defaultShippingFee           = 5000
)

// OrderServiceDeps wires persistence, pricing, reservations and notifications.
type OrderServiceDeps struct {
	Orders        repositories.OrderRepository
	Carts         repositories.CartRepository
	Catalog       repositories.CatalogRepository
	Pricer        PricingEngine
	Inventory     InventoryService
	Counters      CounterService
	Notifications NotificationDispatch
	Tx            repositories.UnitOfWork
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(context.Context, string, map[string]any)

	// TaxRateBasisPoints is the flat placeholder tax rate applied to the
	// order subtotal, in basis points.
	TaxRateBasisPoints int64
	// FreeShippingThreshold is the subtotal at which shipping becomes free.
	FreeShippingThreshold int64
	// ShippingFee is the flat fee charged below the threshold.
	ShippingFee int64
}

type orderService struct {
	orders        repositories.OrderRepository
	carts         repositories.CartRepository
	catalog       repositories.CatalogRepository
	pricer        PricingEngine
	inventory     InventoryService
	counters      CounterService
	notifications NotificationDispatch
	tx            repositories.UnitOfWork
	now           func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)

	taxRateBps        int64
	shippingThreshold int64
	shippingFee       int64
}

// NewOrderService constructs an OrderService enforcing dependency validation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("order service: cart repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("order service: catalog repository is required")
	}
	if deps.Pricer == nil {
		return nil, errors.New("order service: pricing engine is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("order service: inventory service is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter service is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	tx := deps.Tx
	if tx == nil {
		tx = noopUnitOfWork{}
	}
	taxRate := deps.TaxRateBasisPoints
	if taxRate <= 0 {
		taxRate = defaultTaxRateBasisPoints
	}
	threshold := deps.FreeShippingThreshold
	if threshold <= 0 {
		threshold = defaultFreeShippingThreshold
	}
	fee := deps.ShippingFee
	if fee < 0 {
		fee = defaultShippingFee
	}

	return &orderService{
		orders:            deps.Orders,
		carts:             deps.Carts,
		catalog:           deps.Catalog,
		pricer:            deps.Pricer,
		inventory:         deps.Inventory,
		counters:          deps.Counters,
		notifications:     deps.Notifications,
		tx:                tx,
		now:               func() time.Time { return clock().UTC() },
		newID:             idGen,
		logger:            logger,
		taxRateBps:        taxRate,
		shippingThreshold: threshold,
		shippingFee:       fee,
	}, nil
}

// CreateOrder builds an order from a cart or a raw line list. Every requested
// line gets an explicit outcome; inventory holds are taken for fulfilled
// lines before the order is persisted and released again on any failure.
func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (OrderCreationResult, error) {
	if err := validateCreateOrderCommand(cmd); err != nil {
		return OrderCreationResult{}, err
	}

	var sourceCart *Cart
	var requested []OrderLineInput
	if cmd.CartID != "" {
		cart, err := s.carts.FindByID(ctx, cmd.CartID)
		if err != nil {
			return OrderCreationResult{}, s.translateRepoError(err)
		}
		if cart.Status != domain.CartStatusActive {
			return OrderCreationResult{}, fmt.Errorf("%w: cart %s is %s", ErrOrderInvalidState, cart.ID, cart.Status)
		}
		sourceCart = &cart
		for _, item := range cart.Items {
			requested = append(requested, OrderLineInput{
				ProductID: item.ProductID,
				VariantID: item.VariantID,
				Quantity:  item.Quantity,
			})
		}
	} else {
		requested = cmd.Lines
	}

	items, outcomes, currency, err := s.resolveOrderLines(ctx, requested)
	if err != nil {
		return OrderCreationResult{}, err
	}
	if len(items) == 0 {
		return OrderCreationResult{Order: Order{}, LineOutcomes: outcomes},
			fmt.Errorf("%w: no purchasable items", ErrOrderInvalidInput)
	}

	reserveLines := make([]ReservationLine, 0, len(items))
	for _, item := range items {
		reserveLines = append(reserveLines, ReservationLine{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
	}
	reservations, err := s.inventory.Reserve(ctx, ReserveStockCommand{Lines: reserveLines})
	if err != nil {
		return OrderCreationResult{}, err
	}
	reservationIDs := make([]string, 0, len(reservations))
	for _, r := range reservations {
		reservationIDs = append(reservationIDs, r.ID)
	}

	orderNumber, err := s.counters.NextOrderNumber(ctx)
	if err != nil {
		s.releaseReservations(ctx, reservationIDs, "order_number_failed")
		return OrderCreationResult{}, err
	}

	now := s.now()
	shipping := cmd.ShippingAddress
	if shipping == nil {
		billing := cmd.BillingAddress
		shipping = &billing
	}

	order := Order{
		ID:              s.newID(),
		OrderNumber:     orderNumber,
		UserID:          strings.TrimSpace(cmd.UserID),
		GuestEmail:      strings.TrimSpace(cmd.GuestEmail),
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		PaymentMethod:   strings.TrimSpace(cmd.PaymentMethod),
		Currency:        currency,
		Totals:          s.buildOrderTotals(items),
		Items:           items,
		BillingAddress:  cmd.BillingAddress,
		ShippingAddress: *shipping,
		CustomerNotes:   strings.TrimSpace(cmd.CustomerNotes),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if sourceCart != nil {
		ref := sourceCart.ID
		order.CartRef = &ref
	}
	order.History = []OrderStatusChange{{
		ID:        s.newID(),
		OrderID:   order.ID,
		ToStatus:  domain.OrderStatusPending,
		ActorID:   order.UserID,
		ActorType: domain.ActorSystem,
		Reason:    "order created",
		CreatedAt: now,
	}}

	var saved Order
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		persisted, err := s.orders.Insert(ctx, order)
		if err != nil {
			return s.translateRepoError(err)
		}
		if err := s.inventory.BindToOrder(ctx, reservationIDs, persisted.ID); err != nil {
			return err
		}
		if sourceCart != nil && sourceCart.UserID != "" {
			converted := *sourceCart
			converted.Items = nil
			recomputeCartTotals(&converted)
			converted.Status = domain.CartStatusConverted
			converted.LastActivityAt = now
			converted.UpdatedAt = now
			if _, err := s.carts.Update(ctx, converted); err != nil {
				return s.translateRepoError(err)
			}
		}
		saved = persisted
		return nil
	})
	if err != nil {
		s.releaseReservations(ctx, reservationIDs, "order_create_failed")
		return OrderCreationResult{}, err
	}

	s.logger(ctx, "order_created", map[string]any{
		"orderId":     saved.ID,
		"orderNumber": saved.OrderNumber,
		"total":       saved.Totals.Total,
		"lines":       len(saved.Items),
	})
	s.notify(ctx, "order_confirmation", func() error {
		return s.notifications.SendOrderConfirmation(ctx, saved)
	})

	return OrderCreationResult{Order: saved, LineOutcomes: outcomes}, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	return order, nil
}

func (s *orderService) GetByNumber(ctx context.Context, orderNumber string) (Order, error) {
	number := strings.TrimSpace(orderNumber)
	if number == "" {
		return Order{}, fmt.Errorf("%w: order number is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByNumber(ctx, number)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	repoFilter := repositories.OrderListFilter{
		UserID:        strings.TrimSpace(filter.UserID),
		Status:        filter.Status,
		PaymentStatus: filter.PaymentStatus,
		Sort:          filter.Sort,
		Pager:         filter.Pager,
	}
	repoFilter.CreatedAt.From = filter.CreatedFrom
	repoFilter.CreatedAt.To = filter.CreatedTo

	page, err := s.orders.List(ctx, repoFilter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.translateRepoError(err)
	}
	return page, nil
}

// UpdateStatus validates the transition against the state machine, updates
// lifecycle timestamps, appends a history entry, and dispatches a best-effort
// status notification. Cancellation releases any active inventory holds.
func (s *orderService) UpdateStatus(ctx context.Context, cmd OrderStatusCommand) (Order, error) {
	id := strings.TrimSpace(cmd.OrderID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := cmd.Status
	if target == "" {
		return Order{}, fmt.Errorf("%w: target status is required", ErrOrderInvalidInput)
	}

	var saved Order
	var previous domain.OrderStatus
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.orders.FindByID(ctx, id)
		if err != nil {
			return s.translateRepoError(err)
		}
		if !canTransition(order.Status, target) {
			return fmt.Errorf("%w: cannot transition %s from %s to %s",
				ErrOrderInvalidState, order.OrderNumber, order.Status, target)
		}
		previous = order.Status

		now := s.now()
		applyStatusTransition(&order, target, cmd.TrackingNumber, now)
		order.History = append(order.History, OrderStatusChange{
			ID:         s.newID(),
			OrderID:    order.ID,
			FromStatus: previous,
			ToStatus:   target,
			ActorID:    strings.TrimSpace(cmd.ActorID),
			ActorType:  actorOrDefault(cmd.ActorType),
			Reason:     strings.TrimSpace(cmd.Reason),
			Notes:      strings.TrimSpace(cmd.Notes),
			CreatedAt:  now,
		})
		order.UpdatedAt = now

		persisted, err := s.orders.Update(ctx, order)
		if err != nil {
			return s.translateRepoError(err)
		}
		saved = persisted
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	// Holds are advisory, so releasing after commit is safe; the expiry
	// sweep picks up anything left behind if this call fails.
	if target == domain.OrderStatusCancelled {
		if err := s.inventory.ReleaseByOrder(ctx, saved.ID, "order_cancelled"); err != nil {
			s.logger(ctx, "order_cancel_release_failed", map[string]any{
				"orderId": saved.ID,
				"error":   err.Error(),
			})
		}
	}

	s.logger(ctx, "order_status_changed", map[string]any{
		"orderId": saved.ID,
		"from":    string(previous),
		"to":      string(target),
	})
	s.notify(ctx, "status_update", func() error {
		return s.notifications.SendStatusUpdate(ctx, saved, previous, target)
	})
	return saved, nil
}

func (s *orderService) UpdatePaymentStatus(ctx context.Context, cmd PaymentStatusCommand) (Order, error) {
	id := strings.TrimSpace(cmd.OrderID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !validPaymentStatus(cmd.PaymentStatus) {
		return Order{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, cmd.PaymentStatus)
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	order.PaymentStatus = cmd.PaymentStatus
	order.UpdatedAt = s.now()

	saved, err := s.orders.Update(ctx, order)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	return saved, nil
}

// CreateRefund records a refund request against a delivered, paid order. The
// new amount plus all approved or processed refunds must not exceed the order
// total.
func (s *orderService) CreateRefund(ctx context.Context, cmd CreateRefundCommand) (OrderRefund, error) {
	id := strings.TrimSpace(cmd.OrderID)
	if id == "" {
		return OrderRefund{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if cmd.Amount <= 0 {
		return OrderRefund{}, fmt.Errorf("%w: amount must be positive", ErrOrderInvalidInput)
	}

	var saved Order
	var refund OrderRefund
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.orders.FindByID(ctx, id)
		if err != nil {
			return s.translateRepoError(err)
		}
		if order.Status != domain.OrderStatusDelivered || order.PaymentStatus != domain.PaymentStatusPaid {
			return fmt.Errorf("%w: order %s is not refundable (status %s, payment %s)",
				ErrOrderInvalidState, order.OrderNumber, order.Status, order.PaymentStatus)
		}
		if committedRefundTotal(order.Refunds)+cmd.Amount > order.Totals.Total {
			return fmt.Errorf("%w: requested %d, remaining %d",
				ErrOrderRefundExceedsTotal, cmd.Amount, order.Totals.Total-committedRefundTotal(order.Refunds))
		}

		number, err := s.counters.NextRefundNumber(ctx)
		if err != nil {
			return err
		}

		now := s.now()
		refund = OrderRefund{
			ID:            s.newID(),
			OrderID:       order.ID,
			RefundNumber:  number,
			Amount:        cmd.Amount,
			Currency:      order.Currency,
			Status:        domain.RefundStatusPending,
			Reason:        strings.TrimSpace(cmd.Reason),
			CustomerNotes: strings.TrimSpace(cmd.CustomerNotes),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		order.Refunds = append(order.Refunds, refund)
		order.UpdatedAt = now

		saved, err = s.orders.Update(ctx, order)
		if err != nil {
			return s.translateRepoError(err)
		}
		return nil
	})
	if err != nil {
		return OrderRefund{}, err
	}

	s.logger(ctx, "order_refund_created", map[string]any{
		"orderId":      saved.ID,
		"refundNumber": refund.RefundNumber,
		"amount":       refund.Amount,
	})
	s.notify(ctx, "refund_notice", func() error {
		return s.notifications.SendRefundNotice(ctx, saved, refund)
	})
	return refund, nil
}

// UpdateRefundStatus moves a refund through its review lifecycle. Approval
// re-checks the refundable balance; processing stamps ProcessedAt and
// advances the order's payment status.
func (s *orderService) UpdateRefundStatus(ctx context.Context, cmd RefundStatusCommand) (OrderRefund, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	refundID := strings.TrimSpace(cmd.RefundID)
	if orderID == "" || refundID == "" {
		return OrderRefund{}, fmt.Errorf("%w: order id and refund id are required", ErrOrderInvalidInput)
	}
	if !validRefundStatus(cmd.Status) {
		return OrderRefund{}, fmt.Errorf("%w: unknown refund status %q", ErrOrderInvalidInput, cmd.Status)
	}

	var updated OrderRefund
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			return s.translateRepoError(err)
		}

		idx := -1
		for i := range order.Refunds {
			if order.Refunds[i].ID == refundID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("%w: refund %s", ErrOrderNotFound, refundID)
		}
		refund := &order.Refunds[idx]

		if cmd.Status.CountsAgainstTotal() && !refund.Status.CountsAgainstTotal() {
			others := committedRefundTotal(order.Refunds)
			if others+refund.Amount > order.Totals.Total {
				return fmt.Errorf("%w: approving %d exceeds remaining %d",
					ErrOrderRefundExceedsTotal, refund.Amount, order.Totals.Total-others)
			}
		}

		now := s.now()
		refund.Status = cmd.Status
		refund.UpdatedAt = now
		if cmd.Status == domain.RefundStatusProcessed {
			refund.ProcessedAt = &now

			processed := int64(0)
			for _, r := range order.Refunds {
				if r.Status == domain.RefundStatusProcessed {
					processed += r.Amount
				}
			}
			if processed >= order.Totals.Total {
				order.PaymentStatus = domain.PaymentStatusRefunded
			} else {
				order.PaymentStatus = domain.PaymentStatusPartiallyRefunded
			}
		}
		order.UpdatedAt = now

		saved, err := s.orders.Update(ctx, order)
		if err != nil {
			return s.translateRepoError(err)
		}
		for _, r := range saved.Refunds {
			if r.ID == refundID {
				updated = r
				break
			}
		}
		return nil
	})
	if err != nil {
		return OrderRefund{}, err
	}
	return updated, nil
}

// resolveOrderLines validates every requested line against the catalog and
// availability, pricing the ones that pass. Rejected lines are reported, not
// silently dropped.
func (s *orderService) resolveOrderLines(ctx context.Context, requested []OrderLineInput) ([]OrderItem, []OrderLineOutcome, string, error) {
	items := make([]OrderItem, 0, len(requested))
	outcomes := make([]OrderLineOutcome, 0, len(requested))
	currency := ""

	for _, line := range requested {
		outcome := OrderLineOutcome{
			ProductID: line.ProductID,
			VariantID: cloneStringPtr(line.VariantID),
			Quantity:  line.Quantity,
		}
		if strings.TrimSpace(line.ProductID) == "" || line.Quantity <= 0 {
			outcome.Reason = "invalid line"
			outcomes = append(outcomes, outcome)
			continue
		}

		product, err := s.catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			if isRepoNotFound(err) {
				outcome.Reason = "product not found"
				outcomes = append(outcomes, outcome)
				continue
			}
			return nil, nil, "", s.translateRepoError(err)
		}
		if product.Status != domain.ProductStatusActive {
			outcome.Reason = "product unavailable"
			outcomes = append(outcomes, outcome)
			continue
		}

		var variant *ProductVariant
		if line.VariantID != nil {
			v, err := s.catalog.GetVariant(ctx, line.ProductID, *line.VariantID)
			if err != nil {
				if isRepoNotFound(err) {
					outcome.Reason = "variant not found"
					outcomes = append(outcomes, outcome)
					continue
				}
				return nil, nil, "", s.translateRepoError(err)
			}
			if !v.Active {
				outcome.Reason = "variant unavailable"
				outcomes = append(outcomes, outcome)
				continue
			}
			variant = &v
		}

		available, err := s.inventory.Available(ctx, line.ProductID, line.VariantID)
		if err != nil {
			return nil, nil, "", err
		}
		if line.Quantity > available {
			outcome.Reason = fmt.Sprintf("insufficient stock: requested %d, available %d", line.Quantity, available)
			outcomes = append(outcomes, outcome)
			continue
		}

		quote, err := s.pricer.QuoteProduct(ctx, PriceQuoteRequest{ProductID: line.ProductID, Quantity: line.Quantity})
		if err != nil {
			return nil, nil, "", err
		}
		if currency == "" {
			currency = quote.Currency
		}

		snapshot := snapshotProduct(product, variant)
		item := OrderItem{
			ID:             s.newID(),
			ProductID:      line.ProductID,
			VariantID:      cloneStringPtr(line.VariantID),
			Name:           snapshot.Name,
			SKU:            snapshot.SKU,
			Quantity:       line.Quantity,
			UnitPrice:      quote.OriginalUnitPrice,
			DiscountAmount: quote.DiscountAmount,
			FinalPrice:     quote.DiscountedUnit,
			TotalPrice:     quote.DiscountedUnit * int64(line.Quantity),
		}
		if variant != nil {
			item.VariantOptions = variant.Options
		}
		items = append(items, item)

		outcome.Fulfilled = true
		outcomes = append(outcomes, outcome)
	}
	return items, outcomes, currency, nil
}

func (s *orderService) buildOrderTotals(items []OrderItem) OrderTotals {
	var subtotal, discount int64
	for _, item := range items {
		subtotal += item.TotalPrice
		discount += item.DiscountAmount
	}
	tax := (subtotal*s.taxRateBps + 5000) / 10000
	shipping := int64(0)
	if subtotal < s.shippingThreshold {
		shipping = s.shippingFee
	}
	return OrderTotals{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Shipping: shipping,
		Total:    subtotal + tax + shipping,
	}
}

func (s *orderService) releaseReservations(ctx context.Context, ids []string, reason string) {
	if len(ids) == 0 {
		return
	}
	if err := s.inventory.Release(ctx, ReleaseReservationsCommand{ReservationIDs: ids, Reason: reason}); err != nil {
		s.logger(ctx, "order_reservation_release_failed", map[string]any{
			"reservationIds": ids,
			"reason":         reason,
			"error":          err.Error(),
		})
	}
}

// notify runs a notification send and logs failures without surfacing them.
func (s *orderService) notify(ctx context.Context, kind string, send func() error) {
	if s.notifications == nil {
		return
	}
	if err := send(); err != nil {
		s.logger(ctx, "order_notification_failed", map[string]any{
			"kind":  kind,
			"error": err.Error(),
		})
	}
}

func (s *orderService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}
	return err
}

func applyStatusTransition(order *Order, target domain.OrderStatus, tracking *string, now time.Time) {
	order.Status = target
	switch target {
	case domain.OrderStatusShipped:
		shipped := now
		order.ShippedAt = &shipped
		if tracking != nil {
			order.TrackingNumber = cloneStringPtr(tracking)
		}
	case domain.OrderStatusDelivered:
		delivered := now
		order.DeliveredAt = &delivered
		if order.ShippedAt == nil {
			shipped := now
			order.ShippedAt = &shipped
		}
	case domain.OrderStatusCancelled:
		cancelled := now
		order.CancelledAt = &cancelled
	}
}

func validateCreateOrderCommand(cmd CreateOrderCommand) error {
	hasCart := strings.TrimSpace(cmd.CartID) != ""
	hasLines := len(cmd.Lines) > 0
	if hasCart == hasLines {
		return fmt.Errorf("%w: exactly one of cart id or line list is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.UserID) == "" && strings.TrimSpace(cmd.GuestEmail) == "" {
		return fmt.Errorf("%w: guest orders require a guest email", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.PaymentMethod) == "" {
		return fmt.Errorf("%w: payment method is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.BillingAddress.Line1) == "" || strings.TrimSpace(cmd.BillingAddress.Country) == "" {
		return fmt.Errorf("%w: billing address is incomplete", ErrOrderInvalidInput)
	}
	return nil
}

func committedRefundTotal(refunds []OrderRefund) int64 {
	var total int64
	for _, r := range refunds {
		if r.Status.CountsAgainstTotal() {
			total += r.Amount
		}
	}
	return total
}

func actorOrDefault(actor domain.ActorType) domain.ActorType {
	switch actor {
	case domain.ActorAdmin, domain.ActorSystem, domain.ActorCustomer:
		return actor
	default:
		return domain.ActorSystem
	}
}

func validPaymentStatus(status domain.PaymentStatus) bool {
	switch status {
	case domain.PaymentStatusPending, domain.PaymentStatusPaid, domain.PaymentStatusFailed,
		domain.PaymentStatusRefunded, domain.PaymentStatusPartiallyRefunded:
		return true
	}
	return false
}

func validRefundStatus(status domain.RefundStatus) bool {
	switch status {
	case domain.RefundStatusPending, domain.RefundStatusApproved,
		domain.RefundStatusProcessed, domain.RefundStatusRejected:
		return true
	}
	return false
}
