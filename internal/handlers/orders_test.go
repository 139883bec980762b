package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/clearcart/api/internal/domain"
	"github.com/clearcart/api/internal/platform/auth"
	"github.com/clearcart/api/internal/services"
)

type stubOrderService struct {
	createFn       func(ctx context.Context, cmd services.CreateOrderCommand) (services.OrderCreationResult, error)
	getFn          func(ctx context.Context, orderID string) (services.Order, error)
	getByNumberFn  func(ctx context.Context, orderNumber string) (services.Order, error)
	listFn         func(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error)
	updateStatusFn func(ctx context.Context, cmd services.OrderStatusCommand) (services.Order, error)
	updatePayFn    func(ctx context.Context, cmd services.PaymentStatusCommand) (services.Order, error)
	createRefundFn func(ctx context.Context, cmd services.CreateRefundCommand) (services.OrderRefund, error)
	refundStatusFn func(ctx context.Context, cmd services.RefundStatusCommand) (services.OrderRefund, error)
}

var _ services.OrderService = (*stubOrderService)(nil)

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.OrderCreationResult, error) {
	if s.createFn == nil {
		return services.OrderCreationResult{}, nil
	}
	return s.createFn(ctx, cmd)
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (services.Order, error) {
	if s.getFn == nil {
		return services.Order{}, nil
	}
	return s.getFn(ctx, orderID)
}

func (s *stubOrderService) GetByNumber(ctx context.Context, orderNumber string) (services.Order, error) {
	if s.getByNumberFn == nil {
		return services.Order{}, nil
	}
	return s.getByNumberFn(ctx, orderNumber)
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFn == nil {
		return domain.CursorPage[services.Order]{}, nil
	}
	return s.listFn(ctx, filter)
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.OrderStatusCommand) (services.Order, error) {
	if s.updateStatusFn == nil {
		return services.Order{}, nil
	}
	return s.updateStatusFn(ctx, cmd)
}

func (s *stubOrderService) UpdatePaymentStatus(ctx context.Context, cmd services.PaymentStatusCommand) (services.Order, error) {
	if s.updatePayFn == nil {
		return services.Order{}, nil
	}
	return s.updatePayFn(ctx, cmd)
}

func (s *stubOrderService) CreateRefund(ctx context.Context, cmd services.CreateRefundCommand) (services.OrderRefund, error) {
	if s.createRefundFn == nil {
		return services.OrderRefund{}, nil
	}
	return s.createRefundFn(ctx, cmd)
}

func (s *stubOrderService) UpdateRefundStatus(ctx context.Context, cmd services.RefundStatusCommand) (services.OrderRefund, error) {
	if s.refundStatusFn == nil {
		return services.OrderRefund{}, nil
	}
	return s.refundStatusFn(ctx, cmd)
}

func newOrdersTestRouter(t *testing.T, orders services.OrderService, carts services.CartService) (chi.Router, *auth.SessionManager) {
	t.Helper()
	sessions, err := auth.NewSessionManager("orders-test-signing-key")
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	handlers := NewOrdersHandlers(nil, sessions, orders, carts)
	r := chi.NewRouter()
	r.Route("/orders", handlers.Routes)
	return r, sessions
}

func withStaffIdentity(req *http.Request, uid string) *http.Request {
	identity := &auth.Identity{UID: uid, Roles: []string{auth.RoleStaff}}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func testOrder(id, userID string) services.Order {
	return services.Order{
		ID:            id,
		OrderNumber:   "ORD20240301000042",
		UserID:        userID,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		Currency:      "USD",
		Totals:        services.OrderTotals{Subtotal: 10000, Tax: 1800, Shipping: 5000, Total: 16800},
		Items:         []services.OrderItem{},
		BillingAddress: services.Address{
			Recipient:  "Pat Doe",
			Line1:      "1 Main St",
			City:       "Springfield",
			PostalCode: "12345",
			Country:    "US",
		},
		ShippingAddress: services.Address{
			Recipient:  "Pat Doe",
			Line1:      "1 Main St",
			City:       "Springfield",
			PostalCode: "12345",
			Country:    "US",
		},
		CreatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

const orderRequestBody = `{
	"cart_id": "cart-1",
	"payment_method": "card",
	"billing_address": {
		"recipient": "Pat Doe",
		"line1": "1 Main St",
		"city": "Springfield",
		"postal_code": "12345",
		"country": "us"
	}
}`

func TestCreateOrderAuthenticatedUser(t *testing.T) {
	var gotCmd services.CreateOrderCommand
	orders := &stubOrderService{
		createFn: func(_ context.Context, cmd services.CreateOrderCommand) (services.OrderCreationResult, error) {
			gotCmd = cmd
			return services.OrderCreationResult{
				Order: testOrder("order-1", cmd.UserID),
				LineOutcomes: []services.OrderLineOutcome{
					{ProductID: "prod-1", Quantity: 2, Fulfilled: true},
				},
			}, nil
		},
	}
	router, _ := newOrdersTestRouter(t, orders, &stubCartService{})

	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(orderRequestBody)), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotCmd.UserID != "user-1" {
		t.Fatalf("expected user-1, got %q", gotCmd.UserID)
	}
	if gotCmd.CartID != "cart-1" {
		t.Fatalf("expected cart-1, got %q", gotCmd.CartID)
	}
	if gotCmd.BillingAddress.Country != "US" {
		t.Fatalf("expected country US, got %q", gotCmd.BillingAddress.Country)
	}

	var body orderCreationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(body.LineOutcomes) != 1 || !body.LineOutcomes[0].Fulfilled {
		t.Fatalf("unexpected line outcomes: %+v", body.LineOutcomes)
	}
	if body.Order.OrderNumber == "" {
		t.Fatal("expected order number in response")
	}
}

func TestCreateOrderGuestRequiresEmail(t *testing.T) {
	router, _ := newOrdersTestRouter(t, &stubOrderService{}, &stubCartService{})

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(orderRequestBody))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCreateOrderGuestWithSessionCart(t *testing.T) {
	var gotCmd services.CreateOrderCommand
	orders := &stubOrderService{
		createFn: func(_ context.Context, cmd services.CreateOrderCommand) (services.OrderCreationResult, error) {
			gotCmd = cmd
			return services.OrderCreationResult{Order: testOrder("order-2", "")}, nil
		},
	}
	carts := &stubCartService{}
	router, sessions := newOrdersTestRouter(t, orders, carts)

	sessionID, token, err := sessions.Mint()
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	carts.getFn = func(_ context.Context, cartID string) (services.Cart, error) {
		cart := testCart(cartID)
		cart.SessionToken = sessionID
		return cart, nil
	}

	payload := `{
		"cart_id": "cart-1",
		"guest_email": "guest@example.com",
		"payment_method": "card",
		"billing_address": {
			"recipient": "Pat Doe",
			"line1": "1 Main St",
			"city": "Springfield",
			"postal_code": "12345",
			"country": "US"
		}
	}`
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(payload))
	req.Header.Set("X-Cart-Session", token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotCmd.GuestEmail != "guest@example.com" {
		t.Fatalf("expected guest email, got %q", gotCmd.GuestEmail)
	}
}

func TestCreateOrderGuestRejectsForeignCart(t *testing.T) {
	carts := &stubCartService{
		getFn: func(_ context.Context, cartID string) (services.Cart, error) {
			cart := testCart(cartID)
			cart.SessionToken = "sess_someone_else"
			return cart, nil
		},
	}
	router, sessions := newOrdersTestRouter(t, &stubOrderService{}, carts)

	_, token, err := sessions.Mint()
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	payload := `{
		"cart_id": "cart-1",
		"guest_email": "guest@example.com",
		"billing_address": {
			"recipient": "Pat Doe",
			"line1": "1 Main St",
			"city": "Springfield",
			"postal_code": "12345",
			"country": "US"
		}
	}`
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(payload))
	req.Header.Set("X-Cart-Session", token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestGetOrderHidesForeignOrders(t *testing.T) {
	orders := &stubOrderService{
		getFn: func(_ context.Context, orderID string) (services.Order, error) {
			return testOrder(orderID, "someone-else"), nil
		},
	}
	router, _ := newOrdersTestRouter(t, orders, &stubCartService{})

	req := withTestIdentity(httptest.NewRequest(http.MethodGet, "/orders/order-1", nil), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestGetOrderAllowsStaff(t *testing.T) {
	orders := &stubOrderService{
		getFn: func(_ context.Context, orderID string) (services.Order, error) {
			return testOrder(orderID, "someone-else"), nil
		},
	}
	router, _ := newOrdersTestRouter(t, orders, &stubCartService{})

	req := withStaffIdentity(httptest.NewRequest(http.MethodGet, "/orders/order-1", nil), "staff-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestListOrdersScopesCustomersToThemselves(t *testing.T) {
	var gotFilter services.OrderListFilter
	orders := &stubOrderService{
		listFn: func(_ context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			gotFilter = filter
			return domain.CursorPage[services.Order]{Items: []services.Order{testOrder("order-1", "user-1")}}, nil
		},
	}
	router, _ := newOrdersTestRouter(t, orders, &stubCartService{})

	req := withTestIdentity(httptest.NewRequest(http.MethodGet, "/orders?user_id=other&status=shipped", nil), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if gotFilter.UserID != "user-1" {
		t.Fatalf("customer listing must ignore user_id override, got %q", gotFilter.UserID)
	}
	if gotFilter.Status == nil || *gotFilter.Status != domain.OrderStatusShipped {
		t.Fatalf("expected shipped filter, got %v", gotFilter.Status)
	}
}

func TestListOrdersStaffMayFilterByUser(t *testing.T) {
	var gotFilter services.OrderListFilter
	orders := &stubOrderService{
		listFn: func(_ context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			gotFilter = filter
			return domain.CursorPage[services.Order]{}, nil
		},
	}
	router, _ := newOrdersTestRouter(t, orders, &stubCartService{})

	req := withStaffIdentity(httptest.NewRequest(http.MethodGet, "/orders?user_id=user-9", nil), "staff-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if gotFilter.UserID != "user-9" {
		t.Fatalf("expected filter on user-9, got %q", gotFilter.UserID)
	}
}

func TestCancelOrderAsCustomer(t *testing.T) {
	var gotCmd services.OrderStatusCommand
	orders := &stubOrderService{
		getFn: func(_ context.Context, orderID string) (services.Order, error) {
			return testOrder(orderID, "user-1"), nil
		},
		updateStatusFn: func(_ context.Context, cmd services.OrderStatusCommand) (services.Order, error) {
			gotCmd = cmd
			order := testOrder(cmd.OrderID, "user-1")
			order.Status = domain.OrderStatusCancelled
			return order, nil
		},
	}
	router, _ := newOrdersTestRouter(t, orders, &stubCartService{})

	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/orders/order-1/cancel", strings.NewReader(`{"reason":"changed my mind"}`)), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotCmd.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %q", gotCmd.Status)
	}
	if gotCmd.ActorType != domain.ActorCustomer {
		t.Fatalf("expected customer actor, got %q", gotCmd.ActorType)
	}
	if gotCmd.Reason != "changed my mind" {
		t.Fatalf("unexpected reason %q", gotCmd.Reason)
	}
}

func TestCancelShippedOrderMapsInvalidState(t *testing.T) {
	orders := &stubOrderService{
		getFn: func(_ context.Context, orderID string) (services.Order, error) {
			order := testOrder(orderID, "user-1")
			order.Status = domain.OrderStatusShipped
			return order, nil
		},
		updateStatusFn: func(context.Context, services.OrderStatusCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderInvalidState
		},
	}
	router, _ := newOrdersTestRouter(t, orders, &stubCartService{})

	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/orders/order-1/cancel", nil), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if body["error"] != "invalid_order_state" {
		t.Fatalf("expected invalid_order_state, got %v", body["error"])
	}
}

func TestUpdateStatusRequiresStaff(t *testing.T) {
	router, _ := newOrdersTestRouter(t, &stubOrderService{}, &stubCartService{})

	req := withTestIdentity(httptest.NewRequest(http.MethodPatch, "/orders/order-1/status", strings.NewReader(`{"status":"shipped"}`)), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestUpdateStatusAsStaff(t *testing.T) {
	var gotCmd services.OrderStatusCommand
	orders := &stubOrderService{
		updateStatusFn: func(_ context.Context, cmd services.OrderStatusCommand) (services.Order, error) {
			gotCmd = cmd
			order := testOrder(cmd.OrderID, "user-1")
			order.Status = cmd.Status
			return order, nil
		},
	}
	router, _ := newOrdersTestRouter(t, orders, &stubCartService{})

	payload := `{"status":"shipped","tracking_number":"TRK-99","notes":"left warehouse"}`
	req := withStaffIdentity(httptest.NewRequest(http.MethodPatch, "/orders/order-1/status", strings.NewReader(payload)), "staff-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotCmd.Status != domain.OrderStatusShipped {
		t.Fatalf("expected shipped, got %q", gotCmd.Status)
	}
	if gotCmd.TrackingNumber == nil || *gotCmd.TrackingNumber != "TRK-99" {
		t.Fatalf("expected tracking TRK-99, got %v", gotCmd.TrackingNumber)
	}
	if gotCmd.ActorType != domain.ActorAdmin {
		t.Fatalf("expected admin actor, got %q", gotCmd.ActorType)
	}
}

func TestCreateRefundMapsExceedsTotal(t *testing.T) {
	orders := &stubOrderService{
		createRefundFn: func(context.Context, services.CreateRefundCommand) (services.OrderRefund, error) {
			return services.OrderRefund{}, services.ErrOrderRefundExceedsTotal
		},
	}
	router, _ := newOrdersTestRouter(t, orders, &stubCartService{})

	req := withStaffIdentity(httptest.NewRequest(http.MethodPost, "/orders/order-1/refunds", strings.NewReader(`{"amount":999999,"reason":"damaged"}`)), "staff-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if body["error"] != "refund_exceeds_total" {
		t.Fatalf("expected refund_exceeds_total, got %v", body["error"])
	}
}

func TestUpdateRefundStatusAsStaff(t *testing.T) {
	var gotCmd services.RefundStatusCommand
	orders := &stubOrderService{
		refundStatusFn: func(_ context.Context, cmd services.RefundStatusCommand) (services.OrderRefund, error) {
			gotCmd = cmd
			return services.OrderRefund{
				ID:           cmd.RefundID,
				OrderID:      cmd.OrderID,
				RefundNumber: "REF20240301000007",
				Amount:       2500,
				Currency:     "USD",
				Status:       cmd.Status,
				CreatedAt:    time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
			}, nil
		},
	}
	router, _ := newOrdersTestRouter(t, orders, &stubCartService{})

	req := withStaffIdentity(httptest.NewRequest(http.MethodPatch, "/orders/order-1/refunds/ref-1", strings.NewReader(`{"status":"approved"}`)), "staff-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotCmd.RefundID != "ref-1" || gotCmd.Status != domain.RefundStatusApproved {
		t.Fatalf("unexpected command: %+v", gotCmd)
	}

	var body refundResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Refund.RefundNumber != "REF20240301000007" {
		t.Fatalf("unexpected refund payload: %+v", body.Refund)
	}
}

func TestGetByNumberOwnerAccess(t *testing.T) {
	orders := &stubOrderService{
		getByNumberFn: func(_ context.Context, orderNumber string) (services.Order, error) {
			order := testOrder("order-1", "user-1")
			order.OrderNumber = orderNumber
			return order, nil
		},
	}
	router, _ := newOrdersTestRouter(t, orders, &stubCartService{})

	req := withTestIdentity(httptest.NewRequest(http.MethodGet, "/orders/number/ORD20240301000042", nil), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var body orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Order.OrderNumber != "ORD20240301000042" {
		t.Fatalf("unexpected order payload: %+v", body.Order)
	}
}
