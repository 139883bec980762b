package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/clearcart/api/internal/domain"
	"github.com/clearcart/api/internal/platform/auth"
	"github.com/clearcart/api/internal/platform/httpx"
	"github.com/clearcart/api/internal/platform/pagination"
	"github.com/clearcart/api/internal/services"
)

const (
	maxCartBodySize = 16 * 1024

	// cartSessionHeader carries the signed anonymous cart session token. The
	// server mints one on first anonymous access and echoes it back here.
	cartSessionHeader = "X-Cart-Session"
)

// CartHandlers exposes the cart endpoints for both authenticated users and
// anonymous sessions.
type CartHandlers struct {
	authn    *auth.Authenticator
	sessions *auth.SessionManager
	carts    services.CartService
}

// NewCartHandlers constructs cart handlers. The session manager is required so
// anonymous visitors can be issued a cart session.
func NewCartHandlers(authn *auth.Authenticator, sessions *auth.SessionManager, carts services.CartService) *CartHandlers {
	return &CartHandlers{
		authn:    authn,
		sessions: sessions,
		carts:    carts,
	}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.OptionalFirebaseAuth())
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Patch("/items/{itemID}", h.updateItem)
	r.Delete("/items/{itemID}", h.removeItem)
	r.Post("/sync", h.syncCart)
	r.Post("/validate", h.validateCart)
	r.Get("/events", h.listEvents)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	owner, ok := h.resolveOwner(w, r, true)
	if !ok {
		return
	}
	if currency := strings.TrimSpace(r.URL.Query().Get("currency")); currency != "" {
		owner.Currency = strings.ToUpper(currency)
	}

	cart, err := h.carts.GetOrCreateCart(ctx, owner)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	setCartResponseHeaders(w, cart)
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cart, ok := h.resolveCart(w, r)
	if !ok {
		return
	}

	cleared, err := h.carts.ClearCart(ctx, cart.ID)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	setCartResponseHeaders(w, cleared)
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cleared)})
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cart, ok := h.resolveCart(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req addCartItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	cmd := services.AddCartItemCommand{
		CartID:        cart.ID,
		ProductID:     strings.TrimSpace(req.ProductID),
		VariantID:     cloneStringPointer(req.VariantID),
		Quantity:      req.Quantity,
		CustomOptions: req.CustomOptions,
		Notes:         strings.TrimSpace(req.Notes),
	}

	updated, err := h.carts.AddItem(ctx, cmd)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	setCartResponseHeaders(w, updated)
	writeJSONResponse(w, http.StatusCreated, cartResponse{Cart: buildCartPayload(updated)})
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cart, ok := h.resolveCart(w, r)
	if !ok {
		return
	}

	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	if itemID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd, err := parseUpdateCartItemRequest(body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	cmd.CartID = cart.ID
	cmd.ItemID = itemID

	updated, err := h.carts.UpdateItem(ctx, cmd)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	setCartResponseHeaders(w, updated)
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(updated)})
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cart, ok := h.resolveCart(w, r)
	if !ok {
		return
	}

	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	if itemID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item id is required", http.StatusBadRequest))
		return
	}

	updated, err := h.carts.RemoveItem(ctx, services.RemoveCartItemCommand{CartID: cart.ID, ItemID: itemID})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	setCartResponseHeaders(w, updated)
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(updated)})
}

func (h *CartHandlers) syncCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req syncCartRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	sessionID, err := h.verifySession(req.SessionToken)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_cart_session", "cart session token is invalid or expired", http.StatusUnauthorized))
		return
	}

	strategy := services.MergeStrategy(strings.ToLower(strings.TrimSpace(req.Strategy)))
	if strategy == "" {
		strategy = services.MergeStrategyMerge
	}

	result, err := h.carts.SyncOnLogin(ctx, services.SyncCartCommand{
		UserID:       identity.UID,
		SessionToken: sessionID,
		Strategy:     strategy,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	payload := cartSyncResponse{
		Cart:         buildCartPayload(result.Cart),
		SkippedItems: make([]skippedCartItemPayload, 0, len(result.SkippedItems)),
	}
	for _, skipped := range result.SkippedItems {
		payload.SkippedItems = append(payload.SkippedItems, skippedCartItemPayload{
			ProductID: skipped.ProductID,
			VariantID: cloneStringPointer(skipped.VariantID),
			Quantity:  skipped.Quantity,
			Reason:    skipped.Reason,
		})
	}

	setCartResponseHeaders(w, result.Cart)
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *CartHandlers) validateCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cart, ok := h.resolveCart(w, r)
	if !ok {
		return
	}

	result, err := h.carts.ValidateCart(ctx, cart.ID)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	payload := cartValidationResponse{
		Valid:        result.Valid,
		Errors:       buildValidationIssues(result.Errors),
		Warnings:     buildValidationIssues(result.Warnings),
		UpdatedItems: buildCartItems(result.UpdatedItems),
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *CartHandlers) listEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cart, ok := h.resolveCart(w, r)
	if !ok {
		return
	}

	pager, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.carts.ListEvents(ctx, cart.ID, pager)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	payload := cartEventsResponse{
		Events:        make([]cartEventPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, event := range page.Items {
		payload.Events = append(payload.Events, cartEventPayload{
			ID:            event.ID,
			CartID:        event.CartID,
			Type:          string(event.Type),
			ProductID:     event.ProductID,
			VariantID:     cloneStringPointer(event.VariantID),
			QuantityDelta: event.QuantityDelta,
			Metadata:      event.Metadata,
			CreatedAt:     formatTime(event.CreatedAt),
		})
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// resolveCart resolves the caller's cart for mutation endpoints. Anonymous
// callers must already hold a valid session token; none is minted here.
func (h *CartHandlers) resolveCart(w http.ResponseWriter, r *http.Request) (services.Cart, bool) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return services.Cart{}, false
	}

	owner, ok := h.resolveOwner(w, r, false)
	if !ok {
		return services.Cart{}, false
	}

	cart, err := h.carts.GetOrCreateCart(ctx, owner)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return services.Cart{}, false
	}
	return cart, true
}

// resolveOwner determines the cart owner from the verified identity or the
// cart session header. When mint is true a fresh session is issued for
// visitors without one (or whose token has expired).
func (h *CartHandlers) resolveOwner(w http.ResponseWriter, r *http.Request, mint bool) (services.CartOwner, bool) {
	ctx := r.Context()

	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil && strings.TrimSpace(identity.UID) != "" {
		return services.CartOwner{UserID: identity.UID, GuestEmail: identity.Email}, true
	}

	token := strings.TrimSpace(r.Header.Get(cartSessionHeader))
	if token == "" {
		if !mint {
			httpx.WriteError(ctx, w, httpx.NewError("cart_session_required", "a cart session token or authentication is required", http.StatusUnauthorized))
			return services.CartOwner{}, false
		}
		return h.mintSession(ctx, w)
	}

	sessionID, err := h.verifySession(token)
	switch {
	case err == nil:
		return services.CartOwner{SessionToken: sessionID}, true
	case errors.Is(err, auth.ErrSessionTokenExpired) && mint:
		return h.mintSession(ctx, w)
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_cart_session", "cart session token is invalid or expired", http.StatusUnauthorized))
		return services.CartOwner{}, false
	}
}

func (h *CartHandlers) mintSession(ctx context.Context, w http.ResponseWriter) (services.CartOwner, bool) {
	if h.sessions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_session_unavailable", "cart sessions are unavailable", http.StatusServiceUnavailable))
		return services.CartOwner{}, false
	}
	sessionID, signed, err := h.sessions.Mint()
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_session_unavailable", "failed to issue cart session", http.StatusServiceUnavailable))
		return services.CartOwner{}, false
	}
	w.Header().Set(cartSessionHeader, signed)
	return services.CartOwner{SessionToken: sessionID}, true
}

func (h *CartHandlers) verifySession(token string) (string, error) {
	if h.sessions == nil {
		return "", auth.ErrSessionTokenInvalid
	}
	return h.sessions.Verify(strings.TrimSpace(token))
}

func (h *CartHandlers) writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_found", "cart not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_item_not_found", "cart item not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartProductUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("product_unavailable", "product is not available for purchase", http.StatusConflict))
	case errors.Is(err, services.ErrCartInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCartConflict):
		httpx.WriteError(ctx, w, httpx.NewError("cart_conflict", "cart has been modified; refresh and retry", http.StatusConflict))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "cart operation failed", http.StatusInternalServerError))
	}
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

// parsePagination reads page_size and page_token query parameters.
func parsePagination(r *http.Request) (services.Pagination, error) {
	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		return services.Pagination{}, errors.New("page_size must be a non-negative integer")
	}
	return services.Pagination{PageSize: params.PageSize, PageToken: params.PageToken}, nil
}

func setCartResponseHeaders(w http.ResponseWriter, cart services.Cart) {
	w.Header().Set("Cache-Control", "no-store, no-cache, max-age=0, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	if !cart.UpdatedAt.IsZero() {
		w.Header().Set("Last-Modified", cart.UpdatedAt.UTC().Format(http.TimeFormat))
	}
	if etag := buildCartETag(cart); etag != "" {
		w.Header().Set("ETag", etag)
	}
}

func buildCartETag(cart services.Cart) string {
	if strings.TrimSpace(cart.ID) == "" || cart.UpdatedAt.IsZero() {
		return ""
	}
	input := fmt.Sprintf("%s:%d", strings.TrimSpace(cart.ID), cart.UpdatedAt.UTC().UnixNano())
	sum := sha256.Sum256([]byte(input))
	token := hex.EncodeToString(sum[:8])
	return fmt.Sprintf(`W/"%s"`, token)
}

func buildCartPayload(cart services.Cart) cartPayload {
	payload := cartPayload{
		ID:             cart.ID,
		UserID:         cart.UserID,
		GuestEmail:     cart.GuestEmail,
		Status:         string(cart.Status),
		Currency:       strings.ToUpper(cart.Currency),
		ItemsCount:     cart.ItemsCount,
		Subtotal:       cart.Subtotal,
		DiscountTotal:  cart.DiscountTotal,
		TaxTotal:       cart.TaxTotal,
		Total:          cart.Total,
		AppliedCoupons: cart.AppliedCoupons,
		Items:          buildCartItems(cart.Items),
		LastActivityAt: formatTime(cart.LastActivityAt),
		CreatedAt:      formatTime(cart.CreatedAt),
		UpdatedAt:      formatTime(cart.UpdatedAt),
	}
	if payload.AppliedCoupons == nil {
		payload.AppliedCoupons = []string{}
	}
	if cart.BillingAddress != nil {
		addr := buildAddressPayload(*cart.BillingAddress)
		payload.BillingAddress = &addr
	}
	if cart.ShippingAddress != nil {
		addr := buildAddressPayload(*cart.ShippingAddress)
		payload.ShippingAddress = &addr
	}
	if cart.ExpiresAt != nil {
		payload.ExpiresAt = formatTime(*cart.ExpiresAt)
	}
	return payload
}

func buildCartItems(items []services.CartItem) []cartItemPayload {
	payload := make([]cartItemPayload, 0, len(items))
	for _, item := range items {
		entry := cartItemPayload{
			ID:             item.ID,
			ProductID:      item.ProductID,
			VariantID:      cloneStringPointer(item.VariantID),
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			OriginalPrice:  item.OriginalPrice,
			DiscountAmount: item.DiscountAmount,
			TotalPrice:     item.TotalPrice,
			Currency:       strings.ToUpper(item.Currency),
			Product: productSnapshotPayload{
				Name:         item.Snapshot.Name,
				SKU:          item.Snapshot.SKU,
				Slug:         item.Snapshot.Slug,
				ImageURL:     item.Snapshot.ImageURL,
				VariantTitle: item.Snapshot.VariantTitle,
			},
			CustomOptions: item.CustomOptions,
			Notes:         item.Notes,
			AddedAt:       formatTime(item.AddedAt),
			UpdatedAt:     formatTimePointer(item.UpdatedAt),
		}
		payload = append(payload, entry)
	}
	return payload
}

func buildValidationIssues(issues []domain.CartValidationIssue) []cartValidationIssuePayload {
	payload := make([]cartValidationIssuePayload, 0, len(issues))
	for _, issue := range issues {
		payload = append(payload, cartValidationIssuePayload{
			ItemID:    issue.ItemID,
			ProductID: issue.ProductID,
			Code:      issue.Code,
			Message:   issue.Message,
			Available: issue.Available,
		})
	}
	return payload
}

func parseUpdateCartItemRequest(body []byte) (services.UpdateCartItemCommand, error) {
	var cmd services.UpdateCartItemCommand

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return cmd, errors.New("invalid JSON payload")
	}
	if len(raw) == 0 {
		return cmd, errors.New("at least one editable field is required")
	}

	for key, value := range raw {
		switch key {
		case "quantity":
			if isJSONNull(value) {
				return cmd, errors.New("quantity must be an integer")
			}
			var quantity int
			if err := json.Unmarshal(value, &quantity); err != nil {
				return cmd, errors.New("quantity must be an integer")
			}
			cmd.Quantity = &quantity
		case "custom_options":
			if isJSONNull(value) {
				cmd.CustomOptions = map[string]any{}
				continue
			}
			var options map[string]any
			if err := json.Unmarshal(value, &options); err != nil {
				return cmd, errors.New("custom_options must be an object")
			}
			cmd.CustomOptions = options
		case "notes":
			if isJSONNull(value) {
				empty := ""
				cmd.Notes = &empty
				continue
			}
			var notes string
			if err := json.Unmarshal(value, &notes); err != nil {
				return cmd, errors.New("notes must be a string or null")
			}
			cmd.Notes = &notes
		default:
			return cmd, fmt.Errorf("field %q is not editable", key)
		}
	}

	return cmd, nil
}

type addCartItemRequest struct {
	ProductID     string         `json:"product_id"`
	VariantID     *string        `json:"variant_id"`
	Quantity      int            `json:"quantity"`
	CustomOptions map[string]any `json:"custom_options"`
	Notes         string         `json:"notes"`
}

type syncCartRequest struct {
	SessionToken string `json:"session_token"`
	Strategy     string `json:"strategy"`
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type cartSyncResponse struct {
	Cart         cartPayload              `json:"cart"`
	SkippedItems []skippedCartItemPayload `json:"skipped_items"`
}

type skippedCartItemPayload struct {
	ProductID string  `json:"product_id"`
	VariantID *string `json:"variant_id,omitempty"`
	Quantity  int     `json:"quantity"`
	Reason    string  `json:"reason"`
}

type cartValidationResponse struct {
	Valid        bool                         `json:"valid"`
	Errors       []cartValidationIssuePayload `json:"errors"`
	Warnings     []cartValidationIssuePayload `json:"warnings"`
	UpdatedItems []cartItemPayload            `json:"updated_items"`
}

type cartValidationIssuePayload struct {
	ItemID    string `json:"item_id,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Available int    `json:"available,omitempty"`
}

type cartEventsResponse struct {
	Events        []cartEventPayload `json:"events"`
	NextPageToken string             `json:"next_page_token,omitempty"`
}

type cartEventPayload struct {
	ID            string         `json:"id"`
	CartID        string         `json:"cart_id"`
	Type          string         `json:"type"`
	ProductID     string         `json:"product_id,omitempty"`
	VariantID     *string        `json:"variant_id,omitempty"`
	QuantityDelta int            `json:"quantity_delta"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     string         `json:"created_at"`
}

type cartPayload struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id,omitempty"`
	GuestEmail      string            `json:"guest_email,omitempty"`
	Status          string            `json:"status"`
	Currency        string            `json:"currency"`
	ItemsCount      int               `json:"items_count"`
	Subtotal        int64             `json:"subtotal"`
	DiscountTotal   int64             `json:"discount_total"`
	TaxTotal        int64             `json:"tax_total"`
	Total           int64             `json:"total"`
	AppliedCoupons  []string          `json:"applied_coupons"`
	Items           []cartItemPayload `json:"items"`
	BillingAddress  *addressPayload   `json:"billing_address,omitempty"`
	ShippingAddress *addressPayload   `json:"shipping_address,omitempty"`
	ExpiresAt       string            `json:"expires_at,omitempty"`
	LastActivityAt  string            `json:"last_activity_at,omitempty"`
	CreatedAt       string            `json:"created_at,omitempty"`
	UpdatedAt       string            `json:"updated_at,omitempty"`
}

type cartItemPayload struct {
	ID             string                 `json:"id"`
	ProductID      string                 `json:"product_id"`
	VariantID      *string                `json:"variant_id,omitempty"`
	Quantity       int                    `json:"quantity"`
	UnitPrice      int64                  `json:"unit_price"`
	OriginalPrice  int64                  `json:"original_price"`
	DiscountAmount int64                  `json:"discount_amount"`
	TotalPrice     int64                  `json:"total_price"`
	Currency       string                 `json:"currency"`
	Product        productSnapshotPayload `json:"product"`
	CustomOptions  map[string]any         `json:"custom_options,omitempty"`
	Notes          string                 `json:"notes,omitempty"`
	AddedAt        string                 `json:"added_at,omitempty"`
	UpdatedAt      string                 `json:"updated_at,omitempty"`
}

type productSnapshotPayload struct {
	Name         string `json:"name"`
	SKU          string `json:"sku"`
	Slug         string `json:"slug,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
	VariantTitle string `json:"variant_title,omitempty"`
}
