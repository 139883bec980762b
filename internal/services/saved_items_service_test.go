package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/clearcart/api/internal/domain"
	"github.com/clearcart/api/internal/repositories"
)

var savedTestNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// stubCartService implements CartService for the move-to-cart flow.
type stubCartService struct {
	getOrCreateFn func(ctx context.Context, owner CartOwner) (domain.Cart, error)
	addItemFn     func(ctx context.Context, cmd AddCartItemCommand) (domain.Cart, error)
}

var _ CartService = (*stubCartService)(nil)

func (s *stubCartService) GetOrCreateCart(ctx context.Context, owner CartOwner) (domain.Cart, error) {
	if s.getOrCreateFn != nil {
		return s.getOrCreateFn(ctx, owner)
	}
	return domain.Cart{ID: "cart-1", UserID: owner.UserID, Status: domain.CartStatusActive, Currency: "USD"}, nil
}

func (s *stubCartService) GetCart(ctx context.Context, cartID string) (domain.Cart, error) {
	return domain.Cart{}, errStubNotFound
}

func (s *stubCartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (domain.Cart, error) {
	if s.addItemFn != nil {
		return s.addItemFn(ctx, cmd)
	}
	return domain.Cart{ID: cmd.CartID}, nil
}

func (s *stubCartService) UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (domain.Cart, error) {
	return domain.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (domain.Cart, error) {
	return domain.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) ClearCart(ctx context.Context, cartID string) (domain.Cart, error) {
	return domain.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) SyncOnLogin(ctx context.Context, cmd SyncCartCommand) (CartSyncResult, error) {
	return CartSyncResult{}, errors.New("not implemented")
}

func (s *stubCartService) ValidateCart(ctx context.Context, cartID string) (domain.CartValidationResult, error) {
	return domain.CartValidationResult{}, errors.New("not implemented")
}

func (s *stubCartService) ListEvents(ctx context.Context, cartID string, pager domain.Pagination) (domain.CursorPage[domain.CartEvent], error) {
	return domain.CursorPage[domain.CartEvent]{}, errors.New("not implemented")
}

func newSavedItemsServiceForTest(t *testing.T, deps SavedItemsServiceDeps) SavedItemsService {
	t.Helper()
	if deps.SavedItems == nil {
		deps.SavedItems = &stubSavedItemRepository{}
	}
	if deps.Catalog == nil {
		deps.Catalog = &stubCatalogRepository{}
	}
	if deps.Carts == nil {
		deps.Carts = &stubCartService{}
	}
	if deps.Clock == nil {
		deps.Clock = fixedClock(savedTestNow)
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = sequentialIDs("sav")
	}
	svc, err := NewSavedItemsService(deps)
	if err != nil {
		t.Fatalf("NewSavedItemsService: %v", err)
	}
	return svc
}

func TestSaveSnapshotsProductPrice(t *testing.T) {
	catalog := &stubCatalogRepository{products: map[string]domain.Product{
		"prod-1": {ID: "prod-1", Name: "Mug", SKU: "MUG", Price: 1500, Currency: "USD"},
	}}
	var inserted domain.SavedItem
	saved := &stubSavedItemRepository{
		insertFn: func(ctx context.Context, item domain.SavedItem) (domain.SavedItem, error) {
			inserted = item
			return item, nil
		},
	}
	svc := newSavedItemsServiceForTest(t, SavedItemsServiceDeps{SavedItems: saved, Catalog: catalog})

	item, err := svc.Save(context.Background(), SaveItemCommand{UserID: "user-1", ProductID: "prod-1"})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if item.ListName != "wishlist" {
		t.Fatalf("list = %q, want default wishlist", item.ListName)
	}
	if inserted.SavedPrice != 1500 || inserted.Currency != "USD" {
		t.Fatalf("price snapshot = %d %s", inserted.SavedPrice, inserted.Currency)
	}
	if inserted.Snapshot.Name != "Mug" || inserted.Snapshot.SKU != "MUG" {
		t.Fatalf("snapshot = %+v", inserted.Snapshot)
	}
	if !inserted.CreatedAt.Equal(savedTestNow) {
		t.Fatalf("createdAt = %v", inserted.CreatedAt)
	}
}

func TestSaveUsesVariantPriceOverride(t *testing.T) {
	catalog := &stubCatalogRepository{
		products: map[string]domain.Product{
			"prod-1": {ID: "prod-1", Name: "Mug", SKU: "MUG", Price: 1500, Currency: "USD"},
		},
		variants: map[string]domain.ProductVariant{
			"var-1": {ID: "var-1", ProductID: "prod-1", Title: "Large", SKU: "MUG-L", Active: true, Price: int64Ptr(1900)},
		},
	}
	svc := newSavedItemsServiceForTest(t, SavedItemsServiceDeps{Catalog: catalog})

	item, err := svc.Save(context.Background(), SaveItemCommand{
		UserID:    "user-1",
		ProductID: "prod-1",
		VariantID: strPtr("var-1"),
		ListName:  "gift-ideas",
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if item.SavedPrice != 1900 {
		t.Fatalf("price = %d, want the variant override", item.SavedPrice)
	}
	if item.Snapshot.VariantTitle != "Large" || item.Snapshot.SKU != "MUG-L" {
		t.Fatalf("snapshot = %+v", item.Snapshot)
	}
	if item.ListName != "gift-ideas" {
		t.Fatalf("list = %q", item.ListName)
	}
}

func TestSaveRejectsDuplicateKey(t *testing.T) {
	saved := &stubSavedItemRepository{
		findByKeyFn: func(ctx context.Context, key repositories.SavedItemKey) (domain.SavedItem, error) {
			return domain.SavedItem{ID: "sav-existing"}, nil
		},
	}
	svc := newSavedItemsServiceForTest(t, SavedItemsServiceDeps{SavedItems: saved})

	_, err := svc.Save(context.Background(), SaveItemCommand{UserID: "user-1", ProductID: "prod-1"})
	if !errors.Is(err, ErrSavedItemExists) {
		t.Fatalf("err = %v, want ErrSavedItemExists", err)
	}
}

func TestSaveMapsInsertConflict(t *testing.T) {
	catalog := &stubCatalogRepository{products: map[string]domain.Product{
		"prod-1": {ID: "prod-1", Price: 1500, Currency: "USD"},
	}}
	saved := &stubSavedItemRepository{
		insertFn: func(ctx context.Context, item domain.SavedItem) (domain.SavedItem, error) {
			return domain.SavedItem{}, errStubConflict
		},
	}
	svc := newSavedItemsServiceForTest(t, SavedItemsServiceDeps{SavedItems: saved, Catalog: catalog})

	_, err := svc.Save(context.Background(), SaveItemCommand{UserID: "user-1", ProductID: "prod-1"})
	if !errors.Is(err, ErrSavedItemExists) {
		t.Fatalf("err = %v, want ErrSavedItemExists", err)
	}
}

func TestListScopesByUserAndList(t *testing.T) {
	var capturedUser string
	var capturedFilter repositories.SavedItemListFilter
	saved := &stubSavedItemRepository{
		listByUserFn: func(ctx context.Context, userID string, filter repositories.SavedItemListFilter) (domain.CursorPage[domain.SavedItem], error) {
			capturedUser = userID
			capturedFilter = filter
			return domain.CursorPage[domain.SavedItem]{NextPageToken: "next"}, nil
		},
	}
	svc := newSavedItemsServiceForTest(t, SavedItemsServiceDeps{SavedItems: saved})

	page, err := svc.List(context.Background(), "user-1", SavedItemListFilter{
		ListName: " buy-later ",
		Pager:    domain.Pagination{PageSize: 10},
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if capturedUser != "user-1" || capturedFilter.ListName != "buy-later" || capturedFilter.Pager.PageSize != 10 {
		t.Fatalf("filter = user %q %+v", capturedUser, capturedFilter)
	}
	if page.NextPageToken != "next" {
		t.Fatalf("next token = %q", page.NextPageToken)
	}
}

func TestRemoveTranslatesNotFound(t *testing.T) {
	saved := &stubSavedItemRepository{
		deleteFn: func(ctx context.Context, userID string, itemID string) error {
			return errStubNotFound
		},
	}
	svc := newSavedItemsServiceForTest(t, SavedItemsServiceDeps{SavedItems: saved})

	err := svc.Remove(context.Background(), "user-1", "sav-9")
	if !errors.Is(err, ErrSavedItemNotFound) {
		t.Fatalf("err = %v, want ErrSavedItemNotFound", err)
	}
}

func TestMoveToCartDeletesRowAfterSuccessfulAdd(t *testing.T) {
	saved := &stubSavedItemRepository{
		findByIDFn: func(ctx context.Context, userID string, itemID string) (domain.SavedItem, error) {
			return domain.SavedItem{ID: itemID, UserID: userID, ProductID: "prod-1", VariantID: strPtr("var-1")}, nil
		},
	}
	deleted := ""
	saved.deleteFn = func(ctx context.Context, userID string, itemID string) error {
		deleted = itemID
		return nil
	}
	var added AddCartItemCommand
	carts := &stubCartService{
		addItemFn: func(ctx context.Context, cmd AddCartItemCommand) (domain.Cart, error) {
			added = cmd
			return domain.Cart{ID: cmd.CartID, ItemsCount: 1}, nil
		},
	}
	svc := newSavedItemsServiceForTest(t, SavedItemsServiceDeps{SavedItems: saved, Carts: carts})

	result, err := svc.MoveToCart(context.Background(), MoveToCartCommand{UserID: "user-1", ItemID: "sav-1"})
	if err != nil {
		t.Fatalf("MoveToCart: %v", err)
	}
	if !result.Moved {
		t.Fatalf("result = %+v", result)
	}
	if added.ProductID != "prod-1" || added.VariantID == nil || *added.VariantID != "var-1" {
		t.Fatalf("added = %+v", added)
	}
	if added.Quantity != 1 {
		t.Fatalf("quantity = %d, want default 1", added.Quantity)
	}
	if deleted != "sav-1" {
		t.Fatalf("deleted = %q", deleted)
	}
	if result.Cart.ItemsCount != 1 {
		t.Fatalf("cart = %+v", result.Cart)
	}
}

func TestMoveToCartKeepsRowWhenStockRejects(t *testing.T) {
	saved := &stubSavedItemRepository{
		findByIDFn: func(ctx context.Context, userID string, itemID string) (domain.SavedItem, error) {
			return domain.SavedItem{ID: itemID, UserID: userID, ProductID: "prod-1"}, nil
		},
		deleteFn: func(ctx context.Context, userID string, itemID string) error {
			t.Fatal("saved row must survive a rejected move")
			return nil
		},
	}
	carts := &stubCartService{
		addItemFn: func(ctx context.Context, cmd AddCartItemCommand) (domain.Cart, error) {
			return domain.Cart{}, ErrCartInsufficientStock
		},
	}
	svc := newSavedItemsServiceForTest(t, SavedItemsServiceDeps{SavedItems: saved, Carts: carts})

	result, err := svc.MoveToCart(context.Background(), MoveToCartCommand{UserID: "user-1", ItemID: "sav-1", Quantity: 5})
	if err != nil {
		t.Fatalf("MoveToCart: %v", err)
	}
	if result.Moved {
		t.Fatal("move should be rejected")
	}
	if result.Reason == "" {
		t.Fatal("rejected move must carry a reason")
	}
	if result.Cart.ID != "cart-1" {
		t.Fatalf("cart = %+v, want the untouched cart returned", result.Cart)
	}
}

func TestMoveToCartPropagatesUnexpectedErrors(t *testing.T) {
	saved := &stubSavedItemRepository{
		findByIDFn: func(ctx context.Context, userID string, itemID string) (domain.SavedItem, error) {
			return domain.SavedItem{ID: itemID, UserID: userID, ProductID: "prod-1"}, nil
		},
	}
	carts := &stubCartService{
		addItemFn: func(ctx context.Context, cmd AddCartItemCommand) (domain.Cart, error) {
			return domain.Cart{}, ErrCartUnavailable
		},
	}
	svc := newSavedItemsServiceForTest(t, SavedItemsServiceDeps{SavedItems: saved, Carts: carts})

	_, err := svc.MoveToCart(context.Background(), MoveToCartCommand{UserID: "user-1", ItemID: "sav-1"})
	if !errors.Is(err, ErrCartUnavailable) {
		t.Fatalf("err = %v, want ErrCartUnavailable passed through", err)
	}
}

func TestMoveToCartUnknownItem(t *testing.T) {
	svc := newSavedItemsServiceForTest(t, SavedItemsServiceDeps{})

	_, err := svc.MoveToCart(context.Background(), MoveToCartCommand{UserID: "user-1", ItemID: "sav-9"})
	if !errors.Is(err, ErrSavedItemNotFound) {
		t.Fatalf("err = %v, want ErrSavedItemNotFound", err)
	}
}
