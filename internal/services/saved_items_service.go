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
	// ErrSavedItemInvalidInput indicates malformed saved item parameters.
	ErrSavedItemInvalidInput = errors.New("saved items service: invalid input")
	// ErrSavedItemNotFound indicates the saved item does not exist for the user.
	ErrSavedItemNotFound = errors.New("saved items service: not found")
	// ErrSavedItemExists indicates the (user, product, variant, list) key is already saved.
	ErrSavedItemExists = errors.New("saved items service: already saved")
	// ErrSavedItemUnavailable indicates the persistence backend failed transiently.
	ErrSavedItemUnavailable = errors.New("saved items service: unavailable")
)

const defaultListName = "wishlist"

// SavedItemsServiceDeps wires persistence and the cart service for moves.
type SavedItemsServiceDeps struct {
	SavedItems  repositories.SavedItemRepository
	Catalog     repositories.CatalogRepository
	Carts       CartService
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type savedItemsService struct {
	saved   repositories.SavedItemRepository
	catalog repositories.CatalogRepository
	carts   CartService
	now     func() time.Time
	newID   func() string
	logger  func(context.Context, string, map[string]any)
}

// NewSavedItemsService constructs a SavedItemsService enforcing dependency validation.
func NewSavedItemsService(deps SavedItemsServiceDeps) (SavedItemsService, error) {
	if deps.SavedItems == nil {
		return nil, errors.New("saved items service: repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("saved items service: catalog repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("saved items service: cart service is required")
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

	return &savedItemsService{
		saved:   deps.SavedItems,
		catalog: deps.Catalog,
		carts:   deps.Carts,
		now:     func() time.Time { return clock().UTC() },
		newID:   idGen,
		logger:  logger,
	}, nil
}

// Save records the product in the named list, snapshotting its current price.
// The (user, product, variant, list) key is unique.
func (s *savedItemsService) Save(ctx context.Context, cmd SaveItemCommand) (SavedItem, error) {
	uid := strings.TrimSpace(cmd.UserID)
	pid := strings.TrimSpace(cmd.ProductID)
	if uid == "" || pid == "" {
		return SavedItem{}, fmt.Errorf("%w: user id and product id are required", ErrSavedItemInvalidInput)
	}
	listName := strings.TrimSpace(cmd.ListName)
	if listName == "" {
		listName = defaultListName
	}

	key := repositories.SavedItemKey{
		UserID:    uid,
		ProductID: pid,
		VariantID: cloneStringPtr(cmd.VariantID),
		ListName:  listName,
	}
	if _, err := s.saved.FindByKey(ctx, key); err == nil {
		return SavedItem{}, fmt.Errorf("%w: product %s in list %q", ErrSavedItemExists, pid, listName)
	} else if !isRepoNotFound(err) {
		return SavedItem{}, s.translateRepoError(err)
	}

	product, err := s.catalog.GetProduct(ctx, pid)
	if err != nil {
		return SavedItem{}, s.translateRepoError(err)
	}

	price := product.Price
	var variant *ProductVariant
	if cmd.VariantID != nil {
		v, err := s.catalog.GetVariant(ctx, pid, *cmd.VariantID)
		if err != nil {
			return SavedItem{}, s.translateRepoError(err)
		}
		variant = &v
		if v.Price != nil {
			price = *v.Price
		}
	}

	item := SavedItem{
		ID:         s.newID(),
		UserID:     uid,
		ProductID:  pid,
		VariantID:  cloneStringPtr(cmd.VariantID),
		ListName:   listName,
		SavedPrice: price,
		Currency:   product.Currency,
		Snapshot:   snapshotProduct(product, variant),
		CreatedAt:  s.now(),
	}
	saved, err := s.saved.Insert(ctx, item)
	if err != nil {
		if isRepoConflict(err) {
			return SavedItem{}, fmt.Errorf("%w: product %s in list %q", ErrSavedItemExists, pid, listName)
		}
		return SavedItem{}, s.translateRepoError(err)
	}

	s.logger(ctx, "saved_item_created", map[string]any{
		"userId":    uid,
		"productId": pid,
		"list":      listName,
	})
	return saved, nil
}

func (s *savedItemsService) List(ctx context.Context, userID string, filter SavedItemListFilter) (domain.CursorPage[SavedItem], error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.CursorPage[SavedItem]{}, fmt.Errorf("%w: user id is required", ErrSavedItemInvalidInput)
	}
	page, err := s.saved.ListByUser(ctx, uid, repositories.SavedItemListFilter{
		ListName: strings.TrimSpace(filter.ListName),
		Pager:    filter.Pager,
	})
	if err != nil {
		return domain.CursorPage[SavedItem]{}, s.translateRepoError(err)
	}
	return page, nil
}

func (s *savedItemsService) Remove(ctx context.Context, userID string, itemID string) error {
	uid := strings.TrimSpace(userID)
	id := strings.TrimSpace(itemID)
	if uid == "" || id == "" {
		return fmt.Errorf("%w: user id and item id are required", ErrSavedItemInvalidInput)
	}
	if err := s.saved.Delete(ctx, uid, id); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

// MoveToCart adds the saved product to the user's cart through the cart
// service. The saved row is deleted only after the cart add succeeds; when
// the add fails the row is retained and the caller is told why.
func (s *savedItemsService) MoveToCart(ctx context.Context, cmd MoveToCartCommand) (MoveToCartResult, error) {
	uid := strings.TrimSpace(cmd.UserID)
	id := strings.TrimSpace(cmd.ItemID)
	if uid == "" || id == "" {
		return MoveToCartResult{}, fmt.Errorf("%w: user id and item id are required", ErrSavedItemInvalidInput)
	}
	quantity := cmd.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	item, err := s.saved.FindByID(ctx, uid, id)
	if err != nil {
		return MoveToCartResult{}, s.translateRepoError(err)
	}

	cart, err := s.carts.GetOrCreateCart(ctx, CartOwner{UserID: uid})
	if err != nil {
		return MoveToCartResult{}, err
	}

	updated, err := s.carts.AddItem(ctx, AddCartItemCommand{
		CartID:    cart.ID,
		ProductID: item.ProductID,
		VariantID: item.VariantID,
		Quantity:  quantity,
	})
	if err != nil {
		if errors.Is(err, ErrCartInsufficientStock) || errors.Is(err, ErrCartProductUnavailable) || errors.Is(err, ErrCartProductNotFound) {
			s.logger(ctx, "saved_item_move_rejected", map[string]any{
				"userId": uid,
				"itemId": id,
				"reason": err.Error(),
			})
			return MoveToCartResult{Moved: false, Reason: err.Error(), Cart: cart}, nil
		}
		return MoveToCartResult{}, err
	}

	if err := s.saved.Delete(ctx, uid, id); err != nil {
		return MoveToCartResult{}, s.translateRepoError(err)
	}

	s.logger(ctx, "saved_item_moved", map[string]any{
		"userId":    uid,
		"itemId":    id,
		"productId": item.ProductID,
	})
	return MoveToCartResult{Moved: true, Cart: updated}, nil
}

func (s *savedItemsService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrSavedItemNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrSavedItemExists, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrSavedItemUnavailable, err)
		}
	}
	return err
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
