package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/clearcart/api/internal/platform/auth"
	"github.com/clearcart/api/internal/platform/httpx"
	"github.com/clearcart/api/internal/services"
)

const maxSavedItemBodySize = 8 * 1024

// SavedItemsHandlers exposes the saved-items (wishlist) endpoints. All routes
// require an authenticated user.
type SavedItemsHandlers struct {
	authn *auth.Authenticator
	saved services.SavedItemsService
}

func NewSavedItemsHandlers(authn *auth.Authenticator, saved services.SavedItemsService) *SavedItemsHandlers {
	return &SavedItemsHandlers{
		authn: authn,
		saved: saved,
	}
}

// Routes wires the /saved-items endpoints onto the provided router.
func (h *SavedItemsHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.list)
	r.Post("/", h.save)
	r.Delete("/{itemID}", h.remove)
	r.Post("/{itemID}/move-to-cart", h.moveToCart)
}

func (h *SavedItemsHandlers) list(w http.ResponseWriter, r *http.Request) {
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

	filter := services.SavedItemListFilter{
		ListName: strings.TrimSpace(r.URL.Query().Get("list")),
		Pager:    pager,
	}

	page, err := h.saved.List(ctx, identity.UID, filter)
	if err != nil {
		h.writeSavedItemError(ctx, w, err)
		return
	}

	payload := savedItemsResponse{
		Items:         make([]savedItemPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, item := range page.Items {
		payload.Items = append(payload.Items, buildSavedItemPayload(item))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *SavedItemsHandlers) save(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxSavedItemBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req saveItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	item, err := h.saved.Save(ctx, services.SaveItemCommand{
		UserID:    identity.UID,
		ProductID: strings.TrimSpace(req.ProductID),
		VariantID: cloneStringPointer(req.VariantID),
		ListName:  strings.TrimSpace(req.ListName),
	})
	if err != nil {
		h.writeSavedItemError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, savedItemResponse{Item: buildSavedItemPayload(item)})
}

func (h *SavedItemsHandlers) remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	if itemID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item id is required", http.StatusBadRequest))
		return
	}

	if err := h.saved.Remove(ctx, identity.UID, itemID); err != nil {
		h.writeSavedItemError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *SavedItemsHandlers) moveToCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	if itemID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item id is required", http.StatusBadRequest))
		return
	}

	cmd := services.MoveToCartCommand{UserID: identity.UID, ItemID: itemID, Quantity: 1}
	if r.Body != nil {
		body, err := readLimitedBody(r, maxSavedItemBodySize)
		switch {
		case err == nil:
			var req moveToCartRequest
			if jsonErr := json.Unmarshal(body, &req); jsonErr != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
				return
			}
			if req.Quantity > 0 {
				cmd.Quantity = req.Quantity
			}
		case errors.Is(err, errEmptyBody):
			// Body is optional; default quantity applies.
		default:
			writeBodyError(ctx, w, err)
			return
		}
	}

	result, err := h.saved.MoveToCart(ctx, cmd)
	if err != nil {
		h.writeSavedItemError(ctx, w, err)
		return
	}

	payload := moveToCartResponse{
		Moved:  result.Moved,
		Reason: result.Reason,
	}
	if result.Moved {
		cart := buildCartPayload(result.Cart)
		payload.Cart = &cart
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *SavedItemsHandlers) requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	ctx := r.Context()
	if h.saved == nil {
		httpx.WriteError(ctx, w, httpx.NewError("saved_items_unavailable", "saved items service is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func (h *SavedItemsHandlers) writeSavedItemError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrSavedItemInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrSavedItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("saved_item_not_found", "saved item not found", http.StatusNotFound))
	case errors.Is(err, services.ErrSavedItemExists):
		httpx.WriteError(ctx, w, httpx.NewError("saved_item_exists", "product is already saved to this list", http.StatusConflict))
	case errors.Is(err, services.ErrCartProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrSavedItemUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("saved_items_unavailable", "saved items service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("saved_items_error", "saved items operation failed", http.StatusInternalServerError))
	}
}

func buildSavedItemPayload(item services.SavedItem) savedItemPayload {
	return savedItemPayload{
		ID:         item.ID,
		ProductID:  item.ProductID,
		VariantID:  cloneStringPointer(item.VariantID),
		ListName:   item.ListName,
		SavedPrice: item.SavedPrice,
		Currency:   strings.ToUpper(item.Currency),
		Product: productSnapshotPayload{
			Name:         item.Snapshot.Name,
			SKU:          item.Snapshot.SKU,
			Slug:         item.Snapshot.Slug,
			ImageURL:     item.Snapshot.ImageURL,
			VariantTitle: item.Snapshot.VariantTitle,
		},
		CreatedAt: formatTime(item.CreatedAt),
	}
}

type saveItemRequest struct {
	ProductID string  `json:"product_id"`
	VariantID *string `json:"variant_id"`
	ListName  string  `json:"list"`
}

type moveToCartRequest struct {
	Quantity int `json:"quantity"`
}

type savedItemsResponse struct {
	Items         []savedItemPayload `json:"items"`
	NextPageToken string             `json:"next_page_token,omitempty"`
}

type savedItemResponse struct {
	Item savedItemPayload `json:"item"`
}

type moveToCartResponse struct {
	Moved  bool         `json:"moved"`
	Reason string       `json:"reason,omitempty"`
	Cart   *cartPayload `json:"cart,omitempty"`
}

type savedItemPayload struct {
	ID         string                 `json:"id"`
	ProductID  string                 `json:"product_id"`
	VariantID  *string                `json:"variant_id,omitempty"`
	ListName   string                 `json:"list"`
	SavedPrice int64                  `json:"saved_price"`
	Currency   string                 `json:"currency"`
	Product    productSnapshotPayload `json:"product"`
	CreatedAt  string                 `json:"created_at,omitempty"`
}
