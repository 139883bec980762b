package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/clearcart/api/internal/domain"
	"github.com/clearcart/api/internal/platform/auth"
	"github.com/clearcart/api/internal/platform/httpx"
	"github.com/clearcart/api/internal/services"
)

const maxOrderBodySize = 32 * 1024

// OrdersHandlers exposes order creation, retrieval, and back-office
// lifecycle endpoints. Guests may create orders against a session cart;
// everything else requires an authenticated identity.
type OrdersHandlers struct {
	authn    *auth.Authenticator
	sessions *auth.SessionManager
	orders   services.OrderService
	carts    services.CartService
}

func NewOrdersHandlers(authn *auth.Authenticator, sessions *auth.SessionManager, orders services.OrderService, carts services.CartService) *OrdersHandlers {
	return &OrdersHandlers{
		authn:    authn,
		sessions: sessions,
		orders:   orders,
		carts:    carts,
	}
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrdersHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.OptionalFirebaseAuth())
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/number/{orderNumber}", h.getByNumber)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/cancel", h.cancelOrder)
	r.Patch("/{orderID}/status", h.updateStatus)
	r.Patch("/{orderID}/payment-status", h.updatePaymentStatus)
	r.Post("/{orderID}/refunds", h.createRefund)
	r.Patch("/{orderID}/refunds/{refundID}", h.updateRefundStatus)
}

func (h *OrdersHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}
	if req.BillingAddress == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "billing_address is required", http.StatusBadRequest))
		return
	}

	cmd := services.CreateOrderCommand{
		CartID:         strings.TrimSpace(req.CartID),
		PaymentMethod:  strings.TrimSpace(req.PaymentMethod),
		BillingAddress: req.BillingAddress.toDomain(),
		CustomerNotes:  strings.TrimSpace(req.CustomerNotes),
	}
	if req.ShippingAddress != nil {
		addr := req.ShippingAddress.toDomain()
		cmd.ShippingAddress = &addr
	}
	for _, line := range req.Lines {
		cmd.Lines = append(cmd.Lines, services.OrderLineInput{
			ProductID: strings.TrimSpace(line.ProductID),
			VariantID: cloneStringPointer(line.VariantID),
			Quantity:  line.Quantity,
		})
	}

	identity, hasIdentity := auth.IdentityFromContext(ctx)
	if hasIdentity && identity != nil && strings.TrimSpace(identity.UID) != "" {
		cmd.UserID = identity.UID
		if cmd.GuestEmail = strings.TrimSpace(req.GuestEmail); cmd.GuestEmail == "" {
			cmd.GuestEmail = identity.Email
		}
	} else {
		cmd.GuestEmail = strings.TrimSpace(req.GuestEmail)
		if cmd.GuestEmail == "" {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "guest_email is required for guest orders", http.StatusBadRequest))
			return
		}
		if cmd.CartID != "" && !h.guestOwnsCart(ctx, r, cmd.CartID) {
			httpx.WriteError(ctx, w, httpx.NewError("cart_session_required", "a valid cart session is required to order from this cart", http.StatusUnauthorized))
			return
		}
	}

	result, err := h.orders.CreateOrder(ctx, cmd)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	payload := orderCreationResponse{
		Order:        buildOrderPayload(result.Order),
		LineOutcomes: make([]orderLineOutcomePayload, 0, len(result.LineOutcomes)),
	}
	for _, outcome := range result.LineOutcomes {
		payload.LineOutcomes = append(payload.LineOutcomes, orderLineOutcomePayload{
			ProductID: outcome.ProductID,
			VariantID: cloneStringPointer(outcome.VariantID),
			Quantity:  outcome.Quantity,
			Fulfilled: outcome.Fulfilled,
			Reason:    outcome.Reason,
		})
	}
	writeJSONResponse(w, http.StatusCreated, payload)
}

// guestOwnsCart checks that the session in the request header owns cartID.
func (h *OrdersHandlers) guestOwnsCart(ctx context.Context, r *http.Request, cartID string) bool {
	if h.sessions == nil || h.carts == nil {
		return false
	}
	token := strings.TrimSpace(r.Header.Get(cartSessionHeader))
	if token == "" {
		return false
	}
	sessionID, err := h.sessions.Verify(token)
	if err != nil {
		return false
	}
	cart, err := h.carts.GetCart(ctx, cartID)
	if err != nil {
		return false
	}
	return cart.SessionToken == sessionID
}

func (h *OrdersHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	pager, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.OrderListFilter{
		UserID: identity.UID,
		Pager:  pager,
	}

	// Staff may list across users; customers are always scoped to themselves.
	if identity.CanManageOrders() {
		filter.UserID = strings.TrimSpace(r.URL.Query().Get("user_id"))
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := domain.OrderStatus(strings.ToLower(raw))
		filter.Status = &status
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("payment_status")); raw != "" {
		status := domain.PaymentStatus(strings.ToLower(raw))
		filter.PaymentStatus = &status
	}
	from, err := parseTimeParam(r, "created_from")
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_from must be an RFC3339 timestamp", http.StatusBadRequest))
		return
	}
	filter.CreatedFrom = from
	to, err := parseTimeParam(r, "created_to")
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_to must be an RFC3339 timestamp", http.StatusBadRequest))
		return
	}
	filter.CreatedTo = to
	if sort := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("sort"))); sort == string(domain.SortAsc) {
		filter.Sort = domain.SortAsc
	} else {
		filter.Sort = domain.SortDesc
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	payload := ordersListResponse{
		Orders:        make([]orderPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, order := range page.Items {
		payload.Orders = append(payload.Orders, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *OrdersHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	if !canAccessOrder(identity, order) {
		// Hide existence from non-owners.
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrdersHandlers) getByNumber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	orderNumber := strings.TrimSpace(chi.URLParam(r, "orderNumber"))
	if orderNumber == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order number is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetByNumber(ctx, orderNumber)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	if !canAccessOrder(identity, order) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrdersHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	if !canAccessOrder(identity, order) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	cmd := services.OrderStatusCommand{
		OrderID:   orderID,
		Status:    domain.OrderStatusCancelled,
		ActorID:   identity.UID,
		ActorType: domain.ActorCustomer,
	}
	if identity.CanManageOrders() && identity.UID != order.UserID {
		cmd.ActorType = domain.ActorAdmin
	}

	var req cancelOrderRequest
	if body, bodyErr := readLimitedBody(r, maxOrderBodySize); bodyErr == nil {
		if jsonErr := json.Unmarshal(body, &req); jsonErr != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
			return
		}
	} else if !errors.Is(bodyErr, errEmptyBody) {
		writeBodyError(ctx, w, bodyErr)
		return
	}
	cmd.Reason = strings.TrimSpace(req.Reason)

	updated, err := h.orders.UpdateStatus(ctx, cmd)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(updated)})
}

func (h *OrdersHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireStaff(w, r)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req orderStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	cmd := services.OrderStatusCommand{
		OrderID:        orderID,
		Status:         domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		Reason:         strings.TrimSpace(req.Reason),
		Notes:          strings.TrimSpace(req.Notes),
		TrackingNumber: cloneStringPointer(req.TrackingNumber),
		ActorID:        identity.UID,
		ActorType:      domain.ActorAdmin,
	}

	updated, err := h.orders.UpdateStatus(ctx, cmd)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(updated)})
}

func (h *OrdersHandlers) updatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireStaff(w, r)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req paymentStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	updated, err := h.orders.UpdatePaymentStatus(ctx, services.PaymentStatusCommand{
		OrderID:       orderID,
		PaymentStatus: domain.PaymentStatus(strings.ToLower(strings.TrimSpace(req.PaymentStatus))),
		ActorID:       identity.UID,
	})
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(updated)})
}

func (h *OrdersHandlers) createRefund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireStaff(w, r)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createRefundRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	refund, err := h.orders.CreateRefund(ctx, services.CreateRefundCommand{
		OrderID:       orderID,
		Amount:        req.Amount,
		Reason:        strings.TrimSpace(req.Reason),
		CustomerNotes: strings.TrimSpace(req.CustomerNotes),
		ActorID:       identity.UID,
	})
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, refundResponse{Refund: buildRefundPayload(refund)})
}

func (h *OrdersHandlers) updateRefundStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireStaff(w, r)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	refundID := strings.TrimSpace(chi.URLParam(r, "refundID"))
	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req refundStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	refund, err := h.orders.UpdateRefundStatus(ctx, services.RefundStatusCommand{
		OrderID:  orderID,
		RefundID: refundID,
		Status:   domain.RefundStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		ActorID:  identity.UID,
	})
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, refundResponse{Refund: buildRefundPayload(refund)})
}

func (h *OrdersHandlers) requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func (h *OrdersHandlers) requireStaff(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return nil, false
	}
	if !identity.CanManageOrders() {
		httpx.WriteError(r.Context(), w, httpx.NewError("forbidden", "insufficient permissions", http.StatusForbidden))
		return nil, false
	}
	return identity, true
}

func canAccessOrder(identity *auth.Identity, order services.Order) bool {
	if identity == nil {
		return false
	}
	if identity.CanManageOrders() {
		return true
	}
	return order.UserID != "" && order.UserID == identity.UID
}

func (h *OrdersHandlers) writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_order_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderRefundExceedsTotal):
		httpx.WriteError(ctx, w, httpx.NewError("refund_exceeds_total", "refund amount exceeds the refundable balance", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_found", "cart not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartInsufficientStock), errors.Is(err, services.ErrInventoryInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order has been modified; refresh and retry", http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "order operation failed", http.StatusInternalServerError))
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:             order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		GuestEmail:     order.GuestEmail,
		CartRef:        cloneStringPointer(order.CartRef),
		Status:         string(order.Status),
		PaymentStatus:  string(order.PaymentStatus),
		PaymentMethod:  order.PaymentMethod,
		Currency:       strings.ToUpper(order.Currency),
		TrackingNumber: cloneStringPointer(order.TrackingNumber),
		CustomerNotes:  order.CustomerNotes,
		Totals: orderTotalsPayload{
			Subtotal: order.Totals.Subtotal,
			Discount: order.Totals.Discount,
			Tax:      order.Totals.Tax,
			Shipping: order.Totals.Shipping,
			Total:    order.Totals.Total,
		},
		BillingAddress:  buildAddressPayload(order.BillingAddress),
		ShippingAddress: buildAddressPayload(order.ShippingAddress),
		Items:           make([]orderItemPayload, 0, len(order.Items)),
		History:         make([]orderStatusChangePayload, 0, len(order.History)),
		Refunds:         make([]refundPayload, 0, len(order.Refunds)),
		CreatedAt:       formatTime(order.CreatedAt),
		UpdatedAt:       formatTime(order.UpdatedAt),
		ShippedAt:       formatTimePointer(order.ShippedAt),
		DeliveredAt:     formatTimePointer(order.DeliveredAt),
		CancelledAt:     formatTimePointer(order.CancelledAt),
	}

	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ID:             item.ID,
			ProductID:      item.ProductID,
			VariantID:      cloneStringPointer(item.VariantID),
			Name:           item.Name,
			SKU:            item.SKU,
			VariantOptions: item.VariantOptions,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			DiscountAmount: item.DiscountAmount,
			FinalPrice:     item.FinalPrice,
			TotalPrice:     item.TotalPrice,
		})
	}
	for _, change := range order.History {
		payload.History = append(payload.History, orderStatusChangePayload{
			ID:         change.ID,
			FromStatus: string(change.FromStatus),
			ToStatus:   string(change.ToStatus),
			ActorID:    change.ActorID,
			ActorType:  string(change.ActorType),
			Reason:     change.Reason,
			Notes:      change.Notes,
			CreatedAt:  formatTime(change.CreatedAt),
		})
	}
	for _, refund := range order.Refunds {
		payload.Refunds = append(payload.Refunds, buildRefundPayload(refund))
	}

	return payload
}

func buildRefundPayload(refund services.OrderRefund) refundPayload {
	return refundPayload{
		ID:            refund.ID,
		OrderID:       refund.OrderID,
		RefundNumber:  refund.RefundNumber,
		Amount:        refund.Amount,
		Currency:      strings.ToUpper(refund.Currency),
		Status:        string(refund.Status),
		Reason:        refund.Reason,
		CustomerNotes: refund.CustomerNotes,
		CreatedAt:     formatTime(refund.CreatedAt),
		UpdatedAt:     formatTime(refund.UpdatedAt),
		ProcessedAt:   formatTimePointer(refund.ProcessedAt),
	}
}

type createOrderRequest struct {
	CartID          string                  `json:"cart_id"`
	Lines           []orderLineInputRequest `json:"lines"`
	GuestEmail      string                  `json:"guest_email"`
	PaymentMethod   string                  `json:"payment_method"`
	BillingAddress  *addressPayload         `json:"billing_address"`
	ShippingAddress *addressPayload         `json:"shipping_address"`
	CustomerNotes   string                  `json:"customer_notes"`
}

type orderLineInputRequest struct {
	ProductID string  `json:"product_id"`
	VariantID *string `json:"variant_id"`
	Quantity  int     `json:"quantity"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type orderStatusRequest struct {
	Status         string  `json:"status"`
	Reason         string  `json:"reason"`
	Notes          string  `json:"notes"`
	TrackingNumber *string `json:"tracking_number"`
}

type paymentStatusRequest struct {
	PaymentStatus string `json:"payment_status"`
}

type createRefundRequest struct {
	Amount        int64  `json:"amount"`
	Reason        string `json:"reason"`
	CustomerNotes string `json:"customer_notes"`
}

type refundStatusRequest struct {
	Status string `json:"status"`
}

type orderCreationResponse struct {
	Order        orderPayload              `json:"order"`
	LineOutcomes []orderLineOutcomePayload `json:"line_outcomes"`
}

type orderLineOutcomePayload struct {
	ProductID string  `json:"product_id"`
	VariantID *string `json:"variant_id,omitempty"`
	Quantity  int     `json:"quantity"`
	Fulfilled bool    `json:"fulfilled"`
	Reason    string  `json:"reason,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type ordersListResponse struct {
	Orders        []orderPayload `json:"orders"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type orderPayload struct {
	ID              string                     `json:"id"`
	OrderNumber     string                     `json:"order_number"`
	UserID          string                     `json:"user_id,omitempty"`
	GuestEmail      string                     `json:"guest_email,omitempty"`
	CartRef         *string                    `json:"cart_ref,omitempty"`
	Status          string                     `json:"status"`
	PaymentStatus   string                     `json:"payment_status"`
	PaymentMethod   string                     `json:"payment_method,omitempty"`
	Currency        string                     `json:"currency"`
	Totals          orderTotalsPayload         `json:"totals"`
	Items           []orderItemPayload         `json:"items"`
	BillingAddress  addressPayload             `json:"billing_address"`
	ShippingAddress addressPayload             `json:"shipping_address"`
	TrackingNumber  *string                    `json:"tracking_number,omitempty"`
	CustomerNotes   string                     `json:"customer_notes,omitempty"`
	History         []orderStatusChangePayload `json:"history"`
	Refunds         []refundPayload            `json:"refunds"`
	CreatedAt       string                     `json:"created_at,omitempty"`
	UpdatedAt       string                     `json:"updated_at,omitempty"`
	ShippedAt       string                     `json:"shipped_at,omitempty"`
	DeliveredAt     string                     `json:"delivered_at,omitempty"`
	CancelledAt     string                     `json:"cancelled_at,omitempty"`
}

type orderTotalsPayload struct {
	Subtotal int64 `json:"subtotal"`
	Discount int64 `json:"discount"`
	Tax      int64 `json:"tax"`
	Shipping int64 `json:"shipping"`
	Total    int64 `json:"total"`
}

type orderItemPayload struct {
	ID             string         `json:"id"`
	ProductID      string         `json:"product_id"`
	VariantID      *string        `json:"variant_id,omitempty"`
	Name           string         `json:"name"`
	SKU            string         `json:"sku"`
	VariantOptions map[string]any `json:"variant_options,omitempty"`
	Quantity       int            `json:"quantity"`
	UnitPrice      int64          `json:"unit_price"`
	DiscountAmount int64          `json:"discount_amount"`
	FinalPrice     int64          `json:"final_price"`
	TotalPrice     int64          `json:"total_price"`
}

type orderStatusChangePayload struct {
	ID         string `json:"id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	ActorID    string `json:"actor_id,omitempty"`
	ActorType  string `json:"actor_type"`
	Reason     string `json:"reason,omitempty"`
	Notes      string `json:"notes,omitempty"`
	CreatedAt  string `json:"created_at"`
}

type refundResponse struct {
	Refund refundPayload `json:"refund"`
}

type refundPayload struct {
	ID            string `json:"id"`
	OrderID       string `json:"order_id"`
	RefundNumber  string `json:"refund_number"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	CustomerNotes string `json:"customer_notes,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at,omitempty"`
	ProcessedAt   string `json:"processed_at,omitempty"`
}
