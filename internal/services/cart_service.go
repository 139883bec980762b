package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"golang.org/x/text/currency"

	domain "github.com/clearcart/api/internal/domain"
	"github.com/clearcart/api/internal/repositories"
)

// ErrCartInvalidInput indicates the caller supplied malformed cart parameters.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartNotFound indicates the requested cart does not exist or is not active.
var ErrCartNotFound = errors.New("cart service: not found")

// ErrCartItemNotFound indicates the referenced cart item does not exist.
var ErrCartItemNotFound = errors.New("cart service: item not found")

// ErrCartProductNotFound indicates the referenced product does not exist.
var ErrCartProductNotFound = errors.New("cart service: product not found")

// ErrCartProductUnavailable indicates the product or variant cannot currently be purchased.
var ErrCartProductUnavailable = errors.New("cart service: product unavailable")

// ErrCartInsufficientStock indicates the requested quantity exceeds available stock.
var ErrCartInsufficientStock = errors.New("cart service: insufficient stock")

// ErrCartConflict indicates the cart could not be updated due to concurrent modifications.
var ErrCartConflict = errors.New("cart service: conflict")

// ErrCartUnavailable indicates the persistence backend failed transiently.
var ErrCartUnavailable = errors.New("cart service: unavailable")

const defaultAnonymousCartTTL = 30 * 24 * time.Hour

// StockAvailability reports purchasable stock for a product or variant after
// subtracting active reservations.
type StockAvailability interface {
	Available(ctx context.Context, productID string, variantID *string) (int, error)
}

// CartServiceDeps wires repositories and pricing dependencies for cart operations.
type CartServiceDeps struct {
	Carts           repositories.CartRepository
	Events          repositories.CartEventRepository
	Catalog         repositories.CatalogRepository
	Pricer          PricingEngine
	Stock           StockAvailability
	Tx              repositories.UnitOfWork
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          func(context.Context, string, map[string]any)
	DefaultCurrency string
	AnonymousTTL    time.Duration
}

type cartService struct {
	carts    repositories.CartRepository
	events   repositories.CartEventRepository
	catalog  repositories.CatalogRepository
	pricer   PricingEngine
	stock    StockAvailability
	tx       repositories.UnitOfWork
	now      func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
	sanitize func(string) string
	currency string
	anonTTL  time.Duration
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Events == nil {
		return nil, errors.New("cart service: event repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("cart service: catalog repository is required")
	}
	if deps.Pricer == nil {
		return nil, errors.New("cart service: pricing engine is required")
	}
	if deps.Stock == nil {
		return nil, errors.New("cart service: stock availability is required")
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
	defaultCurrency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if defaultCurrency == "" {
		defaultCurrency = "USD"
	}
	anonTTL := deps.AnonymousTTL
	if anonTTL <= 0 {
		anonTTL = defaultAnonymousCartTTL
	}

	policy := bluemonday.StrictPolicy()

	return &cartService{
		carts:    deps.Carts,
		events:   deps.Events,
		catalog:  deps.Catalog,
		pricer:   deps.Pricer,
		stock:    deps.Stock,
		tx:       tx,
		now:      func() time.Time { return clock().UTC() },
		newID:    idGen,
		logger:   logger,
		sanitize: policy.Sanitize,
		currency: defaultCurrency,
		anonTTL:  anonTTL,
	}, nil
}

// GetOrCreateCart resolves the active cart for the owner, creating one on
// first access. Exactly one of UserID/SessionToken must be set.
func (s *cartService) GetOrCreateCart(ctx context.Context, owner CartOwner) (Cart, error) {
	uid := strings.TrimSpace(owner.UserID)
	token := strings.TrimSpace(owner.SessionToken)
	if (uid == "") == (token == "") {
		return Cart{}, fmt.Errorf("%w: exactly one of user id or session token is required", ErrCartInvalidInput)
	}

	code, err := s.resolveCurrency(owner.Currency)
	if err != nil {
		return Cart{}, err
	}

	now := s.now()
	var cart Cart
	if uid != "" {
		cart, err = s.carts.FindActiveByUser(ctx, uid)
	} else {
		cart, err = s.carts.FindActiveBySession(ctx, token, now)
	}
	if err == nil {
		return cart, nil
	}
	if !isRepoNotFound(err) {
		return Cart{}, s.translateRepoError(err)
	}

	cart = Cart{
		ID:             s.newID(),
		UserID:         uid,
		SessionToken:   token,
		GuestEmail:     strings.TrimSpace(owner.GuestEmail),
		Status:         domain.CartStatusActive,
		Currency:       code,
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if token != "" {
		expiry := now.Add(s.anonTTL)
		cart.ExpiresAt = &expiry
	}

	saved, err := s.carts.Insert(ctx, cart)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	s.logger(ctx, "cart_created", map[string]any{"cartId": saved.ID, "anonymous": token != ""})
	return saved, nil
}

func (s *cartService) GetCart(ctx context.Context, cartID string) (Cart, error) {
	id := strings.TrimSpace(cartID)
	if id == "" {
		return Cart{}, fmt.Errorf("%w: cart id is required", ErrCartInvalidInput)
	}
	cart, err := s.carts.FindByID(ctx, id)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return cart, nil
}

// AddItem adds the product to the cart, merging into an existing line for the
// same (product, variant) key instead of creating a duplicate. The merged
// quantity is validated against available stock; on rejection the existing
// line is left unchanged.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	cartID := strings.TrimSpace(cmd.CartID)
	productID := strings.TrimSpace(cmd.ProductID)
	if cartID == "" {
		return Cart{}, fmt.Errorf("%w: cart id is required", ErrCartInvalidInput)
	}
	if productID == "" {
		return Cart{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return Cart{}, fmt.Errorf("%w: quantity must be positive", ErrCartInvalidInput)
	}

	var result Cart
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		cart, err := s.activeCart(ctx, cartID)
		if err != nil {
			return err
		}

		product, variant, err := s.resolveCatalogLine(ctx, productID, cmd.VariantID)
		if err != nil {
			return err
		}

		available, err := s.stock.Available(ctx, productID, cmd.VariantID)
		if err != nil {
			return s.translateRepoError(err)
		}

		now := s.now()
		idx := indexOfCartItem(cart.Items, productID, cmd.VariantID)
		if idx >= 0 {
			merged := cart.Items[idx].Quantity + cmd.Quantity
			if merged > available {
				return fmt.Errorf("%w: requested %d, available %d", ErrCartInsufficientStock, merged, available)
			}
			quote, err := s.pricer.QuoteProduct(ctx, PriceQuoteRequest{ProductID: productID, Quantity: merged})
			if err != nil {
				return err
			}
			item := &cart.Items[idx]
			item.Quantity = merged
			applyQuote(item, quote)
			item.UpdatedAt = &now

			if err := s.appendEvent(ctx, cart.ID, domain.CartEventUpdateQuantity, productID, cmd.VariantID, cmd.Quantity, now); err != nil {
				return err
			}
		} else {
			if cmd.Quantity > available {
				return fmt.Errorf("%w: requested %d, available %d", ErrCartInsufficientStock, cmd.Quantity, available)
			}
			quote, err := s.pricer.QuoteProduct(ctx, PriceQuoteRequest{ProductID: productID, Quantity: cmd.Quantity})
			if err != nil {
				return err
			}
			item := CartItem{
				ID:            s.newID(),
				ProductID:     productID,
				VariantID:     cloneStringPtr(cmd.VariantID),
				Quantity:      cmd.Quantity,
				Currency:      cart.Currency,
				Snapshot:      snapshotProduct(product, variant),
				CustomOptions: s.sanitizeOptions(cmd.CustomOptions),
				Notes:         s.sanitize(strings.TrimSpace(cmd.Notes)),
				AddedAt:       now,
			}
			applyQuote(&item, quote)
			cart.Items = append(cart.Items, item)

			if err := s.appendEvent(ctx, cart.ID, domain.CartEventAddItem, productID, cmd.VariantID, cmd.Quantity, now); err != nil {
				return err
			}
		}

		saved, err := s.saveCart(ctx, cart, now)
		if err != nil {
			return err
		}
		result = saved
		return nil
	})
	if err != nil {
		return Cart{}, err
	}
	return result, nil
}

// UpdateItem changes quantity, custom options, or notes on an existing line.
func (s *cartService) UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error) {
	cartID := strings.TrimSpace(cmd.CartID)
	itemID := strings.TrimSpace(cmd.ItemID)
	if cartID == "" || itemID == "" {
		return Cart{}, fmt.Errorf("%w: cart id and item id are required", ErrCartInvalidInput)
	}
	if cmd.Quantity != nil && *cmd.Quantity <= 0 {
		return Cart{}, fmt.Errorf("%w: quantity must be positive", ErrCartInvalidInput)
	}

	var result Cart
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		cart, err := s.activeCart(ctx, cartID)
		if err != nil {
			return err
		}

		idx := indexOfCartItemID(cart.Items, itemID)
		if idx < 0 {
			return ErrCartItemNotFound
		}
		item := &cart.Items[idx]
		now := s.now()

		if cmd.Quantity != nil && *cmd.Quantity != item.Quantity {
			available, err := s.stock.Available(ctx, item.ProductID, item.VariantID)
			if err != nil {
				return s.translateRepoError(err)
			}
			if *cmd.Quantity > available {
				return fmt.Errorf("%w: requested %d, available %d", ErrCartInsufficientStock, *cmd.Quantity, available)
			}
			delta := *cmd.Quantity - item.Quantity
			quote, err := s.pricer.QuoteProduct(ctx, PriceQuoteRequest{ProductID: item.ProductID, Quantity: *cmd.Quantity})
			if err != nil {
				return err
			}
			item.Quantity = *cmd.Quantity
			applyQuote(item, quote)

			if err := s.appendEvent(ctx, cart.ID, domain.CartEventUpdateQuantity, item.ProductID, item.VariantID, delta, now); err != nil {
				return err
			}
		}
		if cmd.CustomOptions != nil {
			item.CustomOptions = s.sanitizeOptions(cmd.CustomOptions)
		}
		if cmd.Notes != nil {
			item.Notes = s.sanitize(strings.TrimSpace(*cmd.Notes))
		}
		item.UpdatedAt = &now

		saved, err := s.saveCart(ctx, cart, now)
		if err != nil {
			return err
		}
		result = saved
		return nil
	})
	if err != nil {
		return Cart{}, err
	}
	return result, nil
}

// RemoveItem deletes the line and records a negative quantity event.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	cartID := strings.TrimSpace(cmd.CartID)
	itemID := strings.TrimSpace(cmd.ItemID)
	if cartID == "" || itemID == "" {
		return Cart{}, fmt.Errorf("%w: cart id and item id are required", ErrCartInvalidInput)
	}

	var result Cart
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		cart, err := s.activeCart(ctx, cartID)
		if err != nil {
			return err
		}

		idx := indexOfCartItemID(cart.Items, itemID)
		if idx < 0 {
			return ErrCartItemNotFound
		}
		removed := cart.Items[idx]
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)

		now := s.now()
		if err := s.appendEvent(ctx, cart.ID, domain.CartEventRemoveItem, removed.ProductID, removed.VariantID, -removed.Quantity, now); err != nil {
			return err
		}

		saved, err := s.saveCart(ctx, cart, now)
		if err != nil {
			return err
		}
		result = saved
		return nil
	})
	if err != nil {
		return Cart{}, err
	}
	return result, nil
}

// ClearCart deletes every line and zeros the aggregates.
func (s *cartService) ClearCart(ctx context.Context, cartID string) (Cart, error) {
	id := strings.TrimSpace(cartID)
	if id == "" {
		return Cart{}, fmt.Errorf("%w: cart id is required", ErrCartInvalidInput)
	}

	var result Cart
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		cart, err := s.activeCart(ctx, id)
		if err != nil {
			return err
		}

		cart.Items = nil
		now := s.now()
		if err := s.appendEvent(ctx, cart.ID, domain.CartEventClearCart, "", nil, 0, now); err != nil {
			return err
		}

		saved, err := s.saveCart(ctx, cart, now)
		if err != nil {
			return err
		}
		result = saved
		return nil
	})
	if err != nil {
		return Cart{}, err
	}
	return result, nil
}

// SyncOnLogin reconciles the anonymous cart identified by the session token
// with the user's cart. The anonymous cart is always consumed: re-owned when
// the user has no cart, otherwise merged or replaced into the user cart and
// deleted. Merge skips a line only when stock cannot accommodate the combined
// quantity; skipped lines are reported, never silently lost.
func (s *cartService) SyncOnLogin(ctx context.Context, cmd SyncCartCommand) (CartSyncResult, error) {
	uid := strings.TrimSpace(cmd.UserID)
	token := strings.TrimSpace(cmd.SessionToken)
	if uid == "" {
		return CartSyncResult{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if token == "" {
		return CartSyncResult{}, fmt.Errorf("%w: session token is required", ErrCartInvalidInput)
	}
	strategy := cmd.Strategy
	if strategy == "" {
		strategy = MergeStrategyMerge
	}
	if strategy != MergeStrategyMerge && strategy != MergeStrategyReplace {
		return CartSyncResult{}, fmt.Errorf("%w: unknown merge strategy %q", ErrCartInvalidInput, cmd.Strategy)
	}

	var result CartSyncResult
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		now := s.now()

		anon, err := s.carts.FindActiveBySession(ctx, token, now)
		if err != nil {
			if !isRepoNotFound(err) {
				return s.translateRepoError(err)
			}
			cart, err := s.GetOrCreateCart(ctx, CartOwner{UserID: uid})
			if err != nil {
				return err
			}
			result = CartSyncResult{Cart: cart}
			return nil
		}

		userCart, err := s.carts.FindActiveByUser(ctx, uid)
		if err != nil {
			if !isRepoNotFound(err) {
				return s.translateRepoError(err)
			}
			// No user cart: re-own the anonymous cart in place.
			anon.UserID = uid
			anon.SessionToken = ""
			anon.ExpiresAt = nil
			saved, err := s.saveCart(ctx, anon, now)
			if err != nil {
				return err
			}
			s.logger(ctx, "cart_sync_reowned", map[string]any{"cartId": saved.ID, "userId": uid})
			result = CartSyncResult{Cart: saved}
			return nil
		}

		var skipped []SkippedCartItem
		switch strategy {
		case MergeStrategyReplace:
			userCart.Items = cloneCartItems(anon.Items)
		case MergeStrategyMerge:
			for _, line := range anon.Items {
				idx := indexOfCartItem(userCart.Items, line.ProductID, line.VariantID)
				if idx < 0 {
					moved := line
					moved.ID = s.newID()
					userCart.Items = append(userCart.Items, moved)
					continue
				}
				merged := userCart.Items[idx].Quantity + line.Quantity
				available, err := s.stock.Available(ctx, line.ProductID, line.VariantID)
				if err != nil {
					return s.translateRepoError(err)
				}
				if merged > available {
					skipped = append(skipped, SkippedCartItem{
						ProductID: line.ProductID,
						VariantID: cloneStringPtr(line.VariantID),
						Quantity:  line.Quantity,
						Reason:    fmt.Sprintf("merged quantity %d exceeds available %d", merged, available),
					})
					continue
				}
				quote, err := s.pricer.QuoteProduct(ctx, PriceQuoteRequest{ProductID: line.ProductID, Quantity: merged})
				if err != nil {
					return err
				}
				item := &userCart.Items[idx]
				item.Quantity = merged
				applyQuote(item, quote)
				item.UpdatedAt = &now
			}
		}

		saved, err := s.saveCart(ctx, userCart, now)
		if err != nil {
			return err
		}
		if err := s.carts.Delete(ctx, anon.ID); err != nil {
			return s.translateRepoError(err)
		}

		s.logger(ctx, "cart_sync_completed", map[string]any{
			"cartId":   saved.ID,
			"userId":   uid,
			"strategy": string(strategy),
			"skipped":  len(skipped),
		})
		result = CartSyncResult{Cart: saved, SkippedItems: skipped}
		return nil
	})
	if err != nil {
		return CartSyncResult{}, err
	}
	return result, nil
}

// ValidateCart re-checks each line against live catalog state and repairs
// drifted prices in place. Unavailable products and exhausted stock produce
// errors; partial stock and repaired prices produce warnings.
func (s *cartService) ValidateCart(ctx context.Context, cartID string) (CartValidationResult, error) {
	id := strings.TrimSpace(cartID)
	if id == "" {
		return CartValidationResult{}, fmt.Errorf("%w: cart id is required", ErrCartInvalidInput)
	}

	cart, err := s.activeCart(ctx, id)
	if err != nil {
		return CartValidationResult{}, err
	}

	result := CartValidationResult{Valid: true}
	repaired := false
	now := s.now()

	for i := range cart.Items {
		item := &cart.Items[i]

		product, err := s.catalog.GetProduct(ctx, item.ProductID)
		if err != nil {
			if isRepoNotFound(err) {
				result.Valid = false
				result.Errors = append(result.Errors, CartValidationIssue{
					ItemID:    item.ID,
					ProductID: item.ProductID,
					Code:      "product_unavailable",
					Message:   "product no longer exists",
				})
				continue
			}
			return CartValidationResult{}, s.translateRepoError(err)
		}
		if product.Status != domain.ProductStatusActive {
			result.Valid = false
			result.Errors = append(result.Errors, CartValidationIssue{
				ItemID:    item.ID,
				ProductID: item.ProductID,
				Code:      "product_unavailable",
				Message:   "product is no longer sold",
			})
			continue
		}
		if item.VariantID != nil {
			variant, err := s.catalog.GetVariant(ctx, item.ProductID, *item.VariantID)
			if err != nil {
				if isRepoNotFound(err) {
					result.Valid = false
					result.Errors = append(result.Errors, CartValidationIssue{
						ItemID:    item.ID,
						ProductID: item.ProductID,
						Code:      "variant_unavailable",
						Message:   "variant no longer exists",
					})
					continue
				}
				return CartValidationResult{}, s.translateRepoError(err)
			}
			if !variant.Active {
				result.Valid = false
				result.Errors = append(result.Errors, CartValidationIssue{
					ItemID:    item.ID,
					ProductID: item.ProductID,
					Code:      "variant_unavailable",
					Message:   "variant is no longer sold",
				})
				continue
			}
		}

		available, err := s.stock.Available(ctx, item.ProductID, item.VariantID)
		if err != nil {
			return CartValidationResult{}, s.translateRepoError(err)
		}
		switch {
		case available <= 0:
			result.Valid = false
			result.Errors = append(result.Errors, CartValidationIssue{
				ItemID:    item.ID,
				ProductID: item.ProductID,
				Code:      "out_of_stock",
				Message:   "product is out of stock",
			})
			continue
		case available < item.Quantity:
			result.Warnings = append(result.Warnings, CartValidationIssue{
				ItemID:    item.ID,
				ProductID: item.ProductID,
				Code:      "partial_stock",
				Message:   fmt.Sprintf("only %d available", available),
				Available: available,
			})
		}

		quote, err := s.pricer.QuoteProduct(ctx, PriceQuoteRequest{ProductID: item.ProductID, Quantity: item.Quantity})
		if err != nil {
			return CartValidationResult{}, err
		}
		if drift := quote.DiscountedUnit - item.UnitPrice; drift > 1 || drift < -1 {
			result.Warnings = append(result.Warnings, CartValidationIssue{
				ItemID:    item.ID,
				ProductID: item.ProductID,
				Code:      "price_changed",
				Message:   fmt.Sprintf("unit price moved from %d to %d", item.UnitPrice, quote.DiscountedUnit),
			})
			applyQuote(item, quote)
			item.UpdatedAt = &now
			repaired = true
			result.UpdatedItems = append(result.UpdatedItems, *item)
		}
	}

	if repaired {
		if _, err := s.saveCart(ctx, cart, now); err != nil {
			return CartValidationResult{}, err
		}
	}
	return result, nil
}

func (s *cartService) ListEvents(ctx context.Context, cartID string, pager Pagination) (domain.CursorPage[CartEvent], error) {
	id := strings.TrimSpace(cartID)
	if id == "" {
		return domain.CursorPage[CartEvent]{}, fmt.Errorf("%w: cart id is required", ErrCartInvalidInput)
	}
	page, err := s.events.ListByCart(ctx, id, pager)
	if err != nil {
		return domain.CursorPage[CartEvent]{}, s.translateRepoError(err)
	}
	return page, nil
}

// activeCart loads a cart and rejects inactive or expired ones.
func (s *cartService) activeCart(ctx context.Context, cartID string) (Cart, error) {
	cart, err := s.carts.FindByID(ctx, cartID)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	if cart.Status != domain.CartStatusActive {
		return Cart{}, fmt.Errorf("%w: cart %s is %s", ErrCartNotFound, cartID, cart.Status)
	}
	if cart.ExpiresAt != nil && s.now().After(*cart.ExpiresAt) {
		return Cart{}, fmt.Errorf("%w: cart %s expired", ErrCartNotFound, cartID)
	}
	return cart, nil
}

func (s *cartService) resolveCatalogLine(ctx context.Context, productID string, variantID *string) (Product, *ProductVariant, error) {
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return Product{}, nil, fmt.Errorf("%w: %s", ErrCartProductNotFound, productID)
		}
		return Product{}, nil, s.translateRepoError(err)
	}
	if product.Status != domain.ProductStatusActive {
		return Product{}, nil, fmt.Errorf("%w: product %s is %s", ErrCartProductUnavailable, productID, product.Status)
	}

	if variantID == nil {
		return product, nil, nil
	}
	variant, err := s.catalog.GetVariant(ctx, productID, *variantID)
	if err != nil {
		if isRepoNotFound(err) {
			return Product{}, nil, fmt.Errorf("%w: variant %s", ErrCartProductNotFound, *variantID)
		}
		return Product{}, nil, s.translateRepoError(err)
	}
	if !variant.Active {
		return Product{}, nil, fmt.Errorf("%w: variant %s is inactive", ErrCartProductUnavailable, *variantID)
	}
	return product, &variant, nil
}

// saveCart recomputes aggregates from the item set and persists the cart.
func (s *cartService) saveCart(ctx context.Context, cart Cart, now time.Time) (Cart, error) {
	recomputeCartTotals(&cart)
	cart.LastActivityAt = now
	cart.UpdatedAt = now

	saved, err := s.carts.Update(ctx, cart)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return saved, nil
}

func (s *cartService) appendEvent(ctx context.Context, cartID string, kind CartEventType, productID string, variantID *string, delta int, now time.Time) error {
	event := CartEvent{
		ID:            s.newID(),
		CartID:        cartID,
		Type:          kind,
		ProductID:     productID,
		VariantID:     cloneStringPtr(variantID),
		QuantityDelta: delta,
		CreatedAt:     now,
	}
	if err := s.events.Append(ctx, event); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

func (s *cartService) sanitizeOptions(options map[string]any) map[string]any {
	if len(options) == 0 {
		return nil
	}
	out := make(map[string]any, len(options))
	for k, v := range options {
		if text, ok := v.(string); ok {
			out[k] = s.sanitize(text)
			continue
		}
		out[k] = v
	}
	return out
}

func (s *cartService) resolveCurrency(code string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		return s.currency, nil
	}
	unit, err := currency.ParseISO(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: unknown currency %q", ErrCartInvalidInput, code)
	}
	return unit.String(), nil
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCartNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCartConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
		}
	}
	return err
}

// recomputeCartTotals rebuilds the denormalized aggregates from the current
// item set rather than applying incremental deltas.
func recomputeCartTotals(cart *Cart) {
	var count int
	var subtotal, discount int64
	for i := range cart.Items {
		item := &cart.Items[i]
		item.TotalPrice = item.UnitPrice * int64(item.Quantity)
		count += item.Quantity
		subtotal += item.TotalPrice
		discount += item.DiscountAmount
	}
	cart.ItemsCount = count
	cart.Subtotal = subtotal
	cart.DiscountTotal = discount
	// Cart-level tax stays zero; tax is assessed at order creation.
	cart.TaxTotal = 0
	cart.Total = subtotal + cart.TaxTotal
}

func applyQuote(item *CartItem, quote PriceQuote) {
	item.UnitPrice = quote.DiscountedUnit
	item.OriginalPrice = quote.OriginalUnitPrice
	item.DiscountAmount = quote.DiscountAmount
	item.TotalPrice = item.UnitPrice * int64(item.Quantity)
}

func snapshotProduct(product Product, variant *ProductVariant) ProductSnapshot {
	snapshot := ProductSnapshot{
		Name:     product.Name,
		SKU:      product.SKU,
		Slug:     product.Slug,
		ImageURL: product.ImageURL,
	}
	if variant != nil {
		snapshot.VariantTitle = variant.Title
		if variant.SKU != "" {
			snapshot.SKU = variant.SKU
		}
	}
	return snapshot
}

func indexOfCartItem(items []CartItem, productID string, variantID *string) int {
	for i := range items {
		if items[i].ProductID != productID {
			continue
		}
		if equalStringPtr(items[i].VariantID, variantID) {
			return i
		}
	}
	return -1
}

func indexOfCartItemID(items []CartItem, itemID string) int {
	for i := range items {
		if items[i].ID == itemID {
			return i
		}
	}
	return -1
}

func cloneCartItems(items []CartItem) []CartItem {
	if items == nil {
		return nil
	}
	out := make([]CartItem, len(items))
	copy(out, items)
	return out
}

func cloneStringPtr(value *string) *string {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
