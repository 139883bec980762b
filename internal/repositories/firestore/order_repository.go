package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/clearcart/api/internal/domain"
	pfirestore "github.com/clearcart/api/internal/platform/firestore"
	"github.com/clearcart/api/internal/platform/pagination"
	"github.com/clearcart/api/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository persists order aggregates with embedded items, history and
// refunds within Firestore.
type OrderRepository struct {
	base     *pfirestore.Collection[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewCollection[orderDocument](provider, orderCollection)
	return &OrderRepository{base: base, provider: provider}, nil
}

// Insert creates the order document, failing when the ID already exists.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	if strings.TrimSpace(order.OrderNumber) == "" {
		return domain.Order{}, errors.New("order repository: order number is required")
	}

	ref, err := r.base.Doc(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	doc := newOrderDocument(order)
	if err := createDoc(ctx, ref, doc); err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.insert", err)
	}
	return doc.toDomain(id), nil
}

// Update replaces the order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	ref, err := r.base.Doc(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	doc := newOrderDocument(order)
	if err := setDoc(ctx, ref, doc); err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.update", err)
	}
	return doc.toDomain(id), nil
}

// FindByID loads the order aggregate.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	ref, err := r.base.Doc(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	snap, err := getDoc(ctx, ref)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.get", err)
	}
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", id, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// FindByNumber resolves an order by its customer-facing number.
func (r *OrderRepository) FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	number := strings.TrimSpace(orderNumber)
	if number == "" {
		return domain.Order{}, errors.New("order repository: order number is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	query := client.Collection(orderCollection).
		Where("orderNumber", "==", number).
		Limit(1)

	snaps, err := queryDocs(ctx, query)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.findByNumber", err)
	}
	if len(snaps) == 0 {
		return domain.Order{}, notFoundError("orders.findByNumber", fmt.Sprintf("order %s not found", number))
	}
	var doc orderDocument
	if err := snaps[0].DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", snaps[0].Ref.ID, err)
	}
	return doc.toDomain(snaps[0].Ref.ID), nil
}

// List returns orders matching the filter, ordered by creation time.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pager.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	query := client.Collection(orderCollection).Query
	if uid := strings.TrimSpace(filter.UserID); uid != "" {
		query = query.Where("userId", "==", uid)
	}
	if filter.Status != nil {
		query = query.Where("status", "==", string(*filter.Status))
	}
	if filter.PaymentStatus != nil {
		query = query.Where("paymentStatus", "==", string(*filter.PaymentStatus))
	}
	if filter.CreatedAt.From != nil {
		query = query.Where("createdAt", ">=", filter.CreatedAt.From.UTC())
	}
	if filter.CreatedAt.To != nil {
		query = query.Where("createdAt", "<=", filter.CreatedAt.To.UTC())
	}

	direction := firestore.Desc
	if filter.Sort == domain.SortAsc {
		direction = firestore.Asc
	}
	query = query.
		OrderBy("createdAt", direction).
		OrderBy(firestore.DocumentID, direction).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pager.PageToken); token != "" {
		cursor, err := pagination.Decode(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		ts, err := cursor.Time()
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		query = query.StartAfter(ts, cursor.DocID)
	}

	snaps, err := queryDocs(ctx, query)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
	}

	orders := make([]domain.Order, 0, len(snaps))
	for _, snap := range snaps {
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(orders) > pageSize
	if hasMore {
		orders = orders[:pageSize]
	}
	var nextToken string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		encoded, err := pagination.NewCursor(last.ID, last.CreatedAt).Encode()
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Order]{
		Items:         orders,
		NextPageToken: nextToken,
	}, nil
}

// Document types ------------------------------------------------------------

type orderDocument struct {
	OrderNumber     string                      `firestore:"orderNumber"`
	UserID          string                      `firestore:"userId"`
	GuestEmail      string                      `firestore:"guestEmail,omitempty"`
	CartRef         string                      `firestore:"cartRef,omitempty"`
	Status          string                      `firestore:"status"`
	PaymentStatus   string                      `firestore:"paymentStatus"`
	PaymentMethod   string                      `firestore:"paymentMethod"`
	Currency        string                      `firestore:"currency"`
	Totals          orderTotalsDocument         `firestore:"totals"`
	Items           []orderItemDocument         `firestore:"items"`
	BillingAddress  addressDocument             `firestore:"billingAddress"`
	ShippingAddress addressDocument             `firestore:"shippingAddress"`
	TrackingNumber  string                      `firestore:"trackingNumber,omitempty"`
	CustomerNotes   string                      `firestore:"customerNotes,omitempty"`
	History         []orderStatusChangeDocument `firestore:"history"`
	Refunds         []orderRefundDocument       `firestore:"refunds"`
	CreatedAt       time.Time                   `firestore:"createdAt"`
	UpdatedAt       time.Time                   `firestore:"updatedAt"`
	ShippedAt       *time.Time                  `firestore:"shippedAt,omitempty"`
	DeliveredAt     *time.Time                  `firestore:"deliveredAt,omitempty"`
	CancelledAt     *time.Time                  `firestore:"cancelledAt,omitempty"`
}

type orderTotalsDocument struct {
	Subtotal int64 `firestore:"subtotal"`
	Discount int64 `firestore:"discount"`
	Tax      int64 `firestore:"tax"`
	Shipping int64 `firestore:"shipping"`
	Total    int64 `firestore:"total"`
}

type orderItemDocument struct {
	ID             string         `firestore:"id"`
	ProductID      string         `firestore:"productId"`
	VariantID      string         `firestore:"variantId"`
	Name           string         `firestore:"name"`
	SKU            string         `firestore:"sku,omitempty"`
	VariantOptions map[string]any `firestore:"variantOptions,omitempty"`
	Quantity       int            `firestore:"quantity"`
	UnitPrice      int64          `firestore:"unitPrice"`
	DiscountAmount int64          `firestore:"discountAmount"`
	FinalPrice     int64          `firestore:"finalPrice"`
	TotalPrice     int64          `firestore:"totalPrice"`
}

type orderStatusChangeDocument struct {
	ID         string    `firestore:"id"`
	FromStatus string    `firestore:"fromStatus,omitempty"`
	ToStatus   string    `firestore:"toStatus"`
	ActorID    string    `firestore:"actorId,omitempty"`
	ActorType  string    `firestore:"actorType"`
	Reason     string    `firestore:"reason,omitempty"`
	Notes      string    `firestore:"notes,omitempty"`
	CreatedAt  time.Time `firestore:"createdAt"`
}

type orderRefundDocument struct {
	ID            string     `firestore:"id"`
	RefundNumber  string     `firestore:"refundNumber"`
	Amount        int64      `firestore:"amount"`
	Currency      string     `firestore:"currency"`
	Status        string     `firestore:"status"`
	Reason        string     `firestore:"reason,omitempty"`
	CustomerNotes string     `firestore:"customerNotes,omitempty"`
	CreatedAt     time.Time  `firestore:"createdAt"`
	UpdatedAt     time.Time  `firestore:"updatedAt"`
	ProcessedAt   *time.Time `firestore:"processedAt,omitempty"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, len(order.Items))
	for i, item := range order.Items {
		items[i] = orderItemDocument{
			ID:             item.ID,
			ProductID:      strings.TrimSpace(item.ProductID),
			VariantID:      stringValue(item.VariantID),
			Name:           item.Name,
			SKU:            item.SKU,
			VariantOptions: item.VariantOptions,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			DiscountAmount: item.DiscountAmount,
			FinalPrice:     item.FinalPrice,
			TotalPrice:     item.TotalPrice,
		}
	}
	history := make([]orderStatusChangeDocument, len(order.History))
	for i, change := range order.History {
		history[i] = orderStatusChangeDocument{
			ID:         change.ID,
			FromStatus: string(change.FromStatus),
			ToStatus:   string(change.ToStatus),
			ActorID:    change.ActorID,
			ActorType:  string(change.ActorType),
			Reason:     change.Reason,
			Notes:      change.Notes,
			CreatedAt:  change.CreatedAt.UTC(),
		}
	}
	refunds := make([]orderRefundDocument, len(order.Refunds))
	for i, refund := range order.Refunds {
		refunds[i] = orderRefundDocument{
			ID:            refund.ID,
			RefundNumber:  refund.RefundNumber,
			Amount:        refund.Amount,
			Currency:      refund.Currency,
			Status:        string(refund.Status),
			Reason:        refund.Reason,
			CustomerNotes: refund.CustomerNotes,
			CreatedAt:     refund.CreatedAt.UTC(),
			UpdatedAt:     refund.UpdatedAt.UTC(),
			ProcessedAt:   refund.ProcessedAt,
		}
	}

	doc := orderDocument{
		OrderNumber:   strings.TrimSpace(order.OrderNumber),
		UserID:        strings.TrimSpace(order.UserID),
		GuestEmail:    strings.TrimSpace(order.GuestEmail),
		CartRef:       stringValue(order.CartRef),
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		PaymentMethod: strings.TrimSpace(order.PaymentMethod),
		Currency:      order.Currency,
		Totals: orderTotalsDocument{
			Subtotal: order.Totals.Subtotal,
			Discount: order.Totals.Discount,
			Tax:      order.Totals.Tax,
			Shipping: order.Totals.Shipping,
			Total:    order.Totals.Total,
		},
		Items:          items,
		TrackingNumber: stringValue(order.TrackingNumber),
		CustomerNotes:  order.CustomerNotes,
		History:        history,
		Refunds:        refunds,
		CreatedAt:      order.CreatedAt.UTC(),
		UpdatedAt:      order.UpdatedAt.UTC(),
		ShippedAt:      order.ShippedAt,
		DeliveredAt:    order.DeliveredAt,
		CancelledAt:    order.CancelledAt,
	}
	if billing := newAddressDocument(&order.BillingAddress); billing != nil {
		doc.BillingAddress = *billing
	}
	if shipping := newAddressDocument(&order.ShippingAddress); shipping != nil {
		doc.ShippingAddress = *shipping
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.OrderItem{
			ID:             item.ID,
			ProductID:      item.ProductID,
			VariantID:      stringPtr(item.VariantID),
			Name:           item.Name,
			SKU:            item.SKU,
			VariantOptions: item.VariantOptions,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			DiscountAmount: item.DiscountAmount,
			FinalPrice:     item.FinalPrice,
			TotalPrice:     item.TotalPrice,
		}
	}
	history := make([]domain.OrderStatusChange, len(d.History))
	for i, change := range d.History {
		history[i] = domain.OrderStatusChange{
			ID:         change.ID,
			OrderID:    id,
			FromStatus: domain.OrderStatus(change.FromStatus),
			ToStatus:   domain.OrderStatus(change.ToStatus),
			ActorID:    change.ActorID,
			ActorType:  domain.ActorType(change.ActorType),
			Reason:     change.Reason,
			Notes:      change.Notes,
			CreatedAt:  change.CreatedAt,
		}
	}
	refunds := make([]domain.OrderRefund, len(d.Refunds))
	for i, refund := range d.Refunds {
		refunds[i] = domain.OrderRefund{
			ID:            refund.ID,
			OrderID:       id,
			RefundNumber:  refund.RefundNumber,
			Amount:        refund.Amount,
			Currency:      refund.Currency,
			Status:        domain.RefundStatus(refund.Status),
			Reason:        refund.Reason,
			CustomerNotes: refund.CustomerNotes,
			CreatedAt:     refund.CreatedAt,
			UpdatedAt:     refund.UpdatedAt,
			ProcessedAt:   refund.ProcessedAt,
		}
	}

	order := domain.Order{
		ID:            id,
		OrderNumber:   d.OrderNumber,
		UserID:        d.UserID,
		GuestEmail:    d.GuestEmail,
		CartRef:       stringPtr(d.CartRef),
		Status:        domain.OrderStatus(d.Status),
		PaymentStatus: domain.PaymentStatus(d.PaymentStatus),
		PaymentMethod: d.PaymentMethod,
		Currency:      d.Currency,
		Totals: domain.OrderTotals{
			Subtotal: d.Totals.Subtotal,
			Discount: d.Totals.Discount,
			Tax:      d.Totals.Tax,
			Shipping: d.Totals.Shipping,
			Total:    d.Totals.Total,
		},
		Items:          items,
		TrackingNumber: stringPtr(d.TrackingNumber),
		CustomerNotes:  d.CustomerNotes,
		History:        history,
		Refunds:        refunds,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		ShippedAt:      d.ShippedAt,
		DeliveredAt:    d.DeliveredAt,
		CancelledAt:    d.CancelledAt,
	}
	if billing := d.BillingAddress.toDomain(); billing != nil {
		order.BillingAddress = *billing
	}
	if shipping := d.ShippingAddress.toDomain(); shipping != nil {
		order.ShippingAddress = *shipping
	}
	return order
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
