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

type stubCartService struct {
	getOrCreateFn func(ctx context.Context, owner services.CartOwner) (services.Cart, error)
	getFn         func(ctx context.Context, cartID string) (services.Cart, error)
	addItemFn     func(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error)
	updateItemFn  func(ctx context.Context, cmd services.UpdateCartItemCommand) (services.Cart, error)
	removeItemFn  func(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error)
	clearFn       func(ctx context.Context, cartID string) (services.Cart, error)
	syncFn        func(ctx context.Context, cmd services.SyncCartCommand) (services.CartSyncResult, error)
	validateFn    func(ctx context.Context, cartID string) (services.CartValidationResult, error)
	listEventsFn  func(ctx context.Context, cartID string, pager services.Pagination) (domain.CursorPage[services.CartEvent], error)
}

var _ services.CartService = (*stubCartService)(nil)

func (s *stubCartService) GetOrCreateCart(ctx context.Context, owner services.CartOwner) (services.Cart, error) {
	if s.getOrCreateFn == nil {
		return services.Cart{}, nil
	}
	return s.getOrCreateFn(ctx, owner)
}

func (s *stubCartService) GetCart(ctx context.Context, cartID string) (services.Cart, error) {
	if s.getFn == nil {
		return services.Cart{}, nil
	}
	return s.getFn(ctx, cartID)
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
	if s.addItemFn == nil {
		return services.Cart{}, nil
	}
	return s.addItemFn(ctx, cmd)
}

func (s *stubCartService) UpdateItem(ctx context.Context, cmd services.UpdateCartItemCommand) (services.Cart, error) {
	if s.updateItemFn == nil {
		return services.Cart{}, nil
	}
	return s.updateItemFn(ctx, cmd)
}

func (s *stubCartService) RemoveItem(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error) {
	if s.removeItemFn == nil {
		return services.Cart{}, nil
	}
	return s.removeItemFn(ctx, cmd)
}

func (s *stubCartService) ClearCart(ctx context.Context, cartID string) (services.Cart, error) {
	if s.clearFn == nil {
		return services.Cart{}, nil
	}
	return s.clearFn(ctx, cartID)
}

func (s *stubCartService) SyncOnLogin(ctx context.Context, cmd services.SyncCartCommand) (services.CartSyncResult, error) {
	if s.syncFn == nil {
		return services.CartSyncResult{}, nil
	}
	return s.syncFn(ctx, cmd)
}

func (s *stubCartService) ValidateCart(ctx context.Context, cartID string) (services.CartValidationResult, error) {
	if s.validateFn == nil {
		return services.CartValidationResult{}, nil
	}
	return s.validateFn(ctx, cartID)
}

func (s *stubCartService) ListEvents(ctx context.Context, cartID string, pager services.Pagination) (domain.CursorPage[services.CartEvent], error) {
	if s.listEventsFn == nil {
		return domain.CursorPage[services.CartEvent]{}, nil
	}
	return s.listEventsFn(ctx, cartID, pager)
}

func newCartTestRouter(t *testing.T, carts services.CartService) (chi.Router, *auth.SessionManager) {
	t.Helper()
	sessions, err := auth.NewSessionManager("cart-test-signing-key")
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	handlers := NewCartHandlers(nil, sessions, carts)
	r := chi.NewRouter()
	r.Route("/cart", handlers.Routes)
	return r, sessions
}

func withTestIdentity(req *http.Request, uid string) *http.Request {
	identity := &auth.Identity{UID: uid, Email: uid + "@example.com", Roles: []string{auth.RoleUser}}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func testCart(id string) services.Cart {
	return services.Cart{
		ID:             id,
		Status:         domain.CartStatusActive,
		Currency:       "USD",
		Items:          []services.CartItem{},
		LastActivityAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		CreatedAt:      time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC),
		UpdatedAt:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestGetCartMintsAnonymousSession(t *testing.T) {
	var gotOwner services.CartOwner
	stub := &stubCartService{
		getOrCreateFn: func(_ context.Context, owner services.CartOwner) (services.Cart, error) {
			gotOwner = owner
			cart := testCart("cart-1")
			cart.SessionToken = owner.SessionToken
			return cart, nil
		},
	}
	router, sessions := newCartTestRouter(t, stub)

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotOwner.UserID != "" {
		t.Fatalf("expected anonymous owner, got user %q", gotOwner.UserID)
	}
	if !strings.HasPrefix(gotOwner.SessionToken, "sess_") {
		t.Fatalf("expected minted session id, got %q", gotOwner.SessionToken)
	}

	minted := rr.Header().Get("X-Cart-Session")
	if minted == "" {
		t.Fatal("expected X-Cart-Session response header")
	}
	sessionID, err := sessions.Verify(minted)
	if err != nil {
		t.Fatalf("minted token failed verification: %v", err)
	}
	if sessionID != gotOwner.SessionToken {
		t.Fatalf("minted token resolves to %q, owner saw %q", sessionID, gotOwner.SessionToken)
	}
}

func TestGetCartReusesSessionFromHeader(t *testing.T) {
	var gotOwner services.CartOwner
	stub := &stubCartService{
		getOrCreateFn: func(_ context.Context, owner services.CartOwner) (services.Cart, error) {
			gotOwner = owner
			return testCart("cart-2"), nil
		},
	}
	router, sessions := newCartTestRouter(t, stub)

	sessionID, token, err := sessions.Mint()
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set("X-Cart-Session", token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if gotOwner.SessionToken != sessionID {
		t.Fatalf("expected session %q, got %q", sessionID, gotOwner.SessionToken)
	}
	if rr.Header().Get("X-Cart-Session") != "" {
		t.Fatal("did not expect a fresh session when a valid one was supplied")
	}
}

func TestGetCartPrefersIdentityOverSession(t *testing.T) {
	var gotOwner services.CartOwner
	stub := &stubCartService{
		getOrCreateFn: func(_ context.Context, owner services.CartOwner) (services.Cart, error) {
			gotOwner = owner
			cart := testCart("cart-3")
			cart.UserID = owner.UserID
			return cart, nil
		},
	}
	router, _ := newCartTestRouter(t, stub)

	req := withTestIdentity(httptest.NewRequest(http.MethodGet, "/cart", nil), "user-7")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if gotOwner.UserID != "user-7" {
		t.Fatalf("expected owner user-7, got %q", gotOwner.UserID)
	}
	if gotOwner.SessionToken != "" {
		t.Fatalf("expected no session for authenticated owner, got %q", gotOwner.SessionToken)
	}
}

func TestAddItemRequiresSessionOrIdentity(t *testing.T) {
	router, _ := newCartTestRouter(t, &stubCartService{})

	req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"product_id":"prod-1","quantity":1}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if body["error"] != "cart_session_required" {
		t.Fatalf("expected cart_session_required, got %v", body["error"])
	}
}

func TestAddItemUsesResolvedCart(t *testing.T) {
	var gotCmd services.AddCartItemCommand
	stub := &stubCartService{
		getOrCreateFn: func(_ context.Context, owner services.CartOwner) (services.Cart, error) {
			cart := testCart("cart-9")
			cart.UserID = owner.UserID
			return cart, nil
		},
		addItemFn: func(_ context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
			gotCmd = cmd
			cart := testCart("cart-9")
			cart.ItemsCount = 1
			return cart, nil
		},
	}
	router, _ := newCartTestRouter(t, stub)

	payload := `{"product_id":"prod-1","variant_id":"var-2","quantity":3,"notes":" gift wrap "}`
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(payload)), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotCmd.CartID != "cart-9" {
		t.Fatalf("expected command against cart-9, got %q", gotCmd.CartID)
	}
	if gotCmd.ProductID != "prod-1" || gotCmd.Quantity != 3 {
		t.Fatalf("unexpected command: %+v", gotCmd)
	}
	if gotCmd.VariantID == nil || *gotCmd.VariantID != "var-2" {
		t.Fatalf("expected variant var-2, got %v", gotCmd.VariantID)
	}
	if gotCmd.Notes != "gift wrap" {
		t.Fatalf("expected trimmed notes, got %q", gotCmd.Notes)
	}
}

func TestAddItemInsufficientStockMapsToConflict(t *testing.T) {
	stub := &stubCartService{
		getOrCreateFn: func(context.Context, services.CartOwner) (services.Cart, error) {
			return testCart("cart-9"), nil
		},
		addItemFn: func(context.Context, services.AddCartItemCommand) (services.Cart, error) {
			return services.Cart{}, services.ErrCartInsufficientStock
		},
	}
	router, _ := newCartTestRouter(t, stub)

	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"product_id":"prod-1","quantity":99}`)), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if body["error"] != "insufficient_stock" {
		t.Fatalf("expected insufficient_stock, got %v", body["error"])
	}
}

func TestUpdateItemRejectsUnknownField(t *testing.T) {
	stub := &stubCartService{
		getOrCreateFn: func(context.Context, services.CartOwner) (services.Cart, error) {
			return testCart("cart-9"), nil
		},
	}
	router, _ := newCartTestRouter(t, stub)

	req := withTestIdentity(httptest.NewRequest(http.MethodPatch, "/cart/items/item-1", strings.NewReader(`{"price":100}`)), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestUpdateItemPassesQuantityAndNotes(t *testing.T) {
	var gotCmd services.UpdateCartItemCommand
	stub := &stubCartService{
		getOrCreateFn: func(context.Context, services.CartOwner) (services.Cart, error) {
			return testCart("cart-9"), nil
		},
		updateItemFn: func(_ context.Context, cmd services.UpdateCartItemCommand) (services.Cart, error) {
			gotCmd = cmd
			return testCart("cart-9"), nil
		},
	}
	router, _ := newCartTestRouter(t, stub)

	req := withTestIdentity(httptest.NewRequest(http.MethodPatch, "/cart/items/item-1", strings.NewReader(`{"quantity":5,"notes":null}`)), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotCmd.ItemID != "item-1" {
		t.Fatalf("expected item-1, got %q", gotCmd.ItemID)
	}
	if gotCmd.Quantity == nil || *gotCmd.Quantity != 5 {
		t.Fatalf("expected quantity 5, got %v", gotCmd.Quantity)
	}
	if gotCmd.Notes == nil || *gotCmd.Notes != "" {
		t.Fatalf("expected notes cleared, got %v", gotCmd.Notes)
	}
}

func TestSyncCartRequiresAuthentication(t *testing.T) {
	router, _ := newCartTestRouter(t, &stubCartService{})

	req := httptest.NewRequest(http.MethodPost, "/cart/sync", strings.NewReader(`{"session_token":"x"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestSyncCartReportsSkippedItems(t *testing.T) {
	var gotCmd services.SyncCartCommand
	stub := &stubCartService{
		syncFn: func(_ context.Context, cmd services.SyncCartCommand) (services.CartSyncResult, error) {
			gotCmd = cmd
			variant := "var-1"
			return services.CartSyncResult{
				Cart: testCart("cart-user"),
				SkippedItems: []services.SkippedCartItem{
					{ProductID: "prod-2", VariantID: &variant, Quantity: 4, Reason: "insufficient stock"},
				},
			}, nil
		},
	}
	router, sessions := newCartTestRouter(t, stub)

	sessionID, token, err := sessions.Mint()
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	payload := `{"session_token":"` + token + `","strategy":"replace"}`
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/cart/sync", strings.NewReader(payload)), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotCmd.UserID != "user-1" {
		t.Fatalf("expected user-1, got %q", gotCmd.UserID)
	}
	if gotCmd.SessionToken != sessionID {
		t.Fatalf("expected session %q, got %q", sessionID, gotCmd.SessionToken)
	}
	if gotCmd.Strategy != services.MergeStrategyReplace {
		t.Fatalf("expected replace strategy, got %q", gotCmd.Strategy)
	}

	var body struct {
		SkippedItems []struct {
			ProductID string `json:"product_id"`
			Reason    string `json:"reason"`
		} `json:"skipped_items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(body.SkippedItems) != 1 || body.SkippedItems[0].ProductID != "prod-2" {
		t.Fatalf("unexpected skipped items: %+v", body.SkippedItems)
	}
}

func TestSyncCartRejectsForgedSessionToken(t *testing.T) {
	router, _ := newCartTestRouter(t, &stubCartService{})

	other, err := auth.NewSessionManager("some-other-key")
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	_, token, err := other.Mint()
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	payload := `{"session_token":"` + token + `"}`
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/cart/sync", strings.NewReader(payload)), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestValidateCartSerializesIssues(t *testing.T) {
	stub := &stubCartService{
		getOrCreateFn: func(context.Context, services.CartOwner) (services.Cart, error) {
			return testCart("cart-9"), nil
		},
		validateFn: func(_ context.Context, cartID string) (services.CartValidationResult, error) {
			if cartID != "cart-9" {
				t.Fatalf("expected cart-9, got %q", cartID)
			}
			return services.CartValidationResult{
				Valid: false,
				Errors: []services.CartValidationIssue{
					{ItemID: "item-1", ProductID: "prod-1", Code: "insufficient_stock", Message: "only 2 left", Available: 2},
				},
				Warnings: []services.CartValidationIssue{
					{ItemID: "item-2", ProductID: "prod-2", Code: "price_changed", Message: "price updated"},
				},
			}, nil
		},
	}
	router, _ := newCartTestRouter(t, stub)

	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/cart/validate", nil), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var body cartValidationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Valid {
		t.Fatal("expected invalid cart")
	}
	if len(body.Errors) != 1 || body.Errors[0].Code != "insufficient_stock" || body.Errors[0].Available != 2 {
		t.Fatalf("unexpected errors: %+v", body.Errors)
	}
	if len(body.Warnings) != 1 || body.Warnings[0].Code != "price_changed" {
		t.Fatalf("unexpected warnings: %+v", body.Warnings)
	}
}

func TestListEventsPassesPagination(t *testing.T) {
	var gotPager services.Pagination
	stub := &stubCartService{
		getOrCreateFn: func(context.Context, services.CartOwner) (services.Cart, error) {
			return testCart("cart-9"), nil
		},
		listEventsFn: func(_ context.Context, cartID string, pager services.Pagination) (domain.CursorPage[services.CartEvent], error) {
			gotPager = pager
			return domain.CursorPage[services.CartEvent]{
				Items: []services.CartEvent{
					{ID: "evt-1", CartID: cartID, Type: domain.CartEventAddItem, ProductID: "prod-1", QuantityDelta: 2, CreatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
				},
				NextPageToken: "tok-next",
			}, nil
		},
	}
	router, _ := newCartTestRouter(t, stub)

	req := withTestIdentity(httptest.NewRequest(http.MethodGet, "/cart/events?page_size=10&page_token=tok-1", nil), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if gotPager.PageSize != 10 || gotPager.PageToken != "tok-1" {
		t.Fatalf("unexpected pager: %+v", gotPager)
	}

	var body cartEventsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(body.Events) != 1 || body.Events[0].Type != string(domain.CartEventAddItem) {
		t.Fatalf("unexpected events: %+v", body.Events)
	}
	if body.NextPageToken != "tok-next" {
		t.Fatalf("expected tok-next, got %q", body.NextPageToken)
	}
}

func TestCartResponseSetsETagAndLastModified(t *testing.T) {
	stub := &stubCartService{
		getOrCreateFn: func(context.Context, services.CartOwner) (services.Cart, error) {
			return testCart("cart-etag"), nil
		},
	}
	router, _ := newCartTestRouter(t, stub)

	req := withTestIdentity(httptest.NewRequest(http.MethodGet, "/cart", nil), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if etag := rr.Header().Get("ETag"); !strings.HasPrefix(etag, `W/"`) {
		t.Fatalf("expected weak ETag, got %q", etag)
	}
	if rr.Header().Get("Last-Modified") == "" {
		t.Fatal("expected Last-Modified header")
	}
}
