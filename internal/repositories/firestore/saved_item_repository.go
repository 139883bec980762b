package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/clearcart/api/internal/domain"
	pfirestore "github.com/clearcart/api/internal/platform/firestore"
	"github.com/clearcart/api/internal/platform/pagination"
	"github.com/clearcart/api/internal/repositories"
)

const savedItemCollection = "savedItems"

// SavedItemRepository persists list-scoped saved product references.
// Uniqueness over (user, product, variant, list) is enforced by checking the
// key inside a transaction before the create.
type SavedItemRepository struct {
	base     *pfirestore.Collection[savedItemDocument]
	provider *pfirestore.Provider
}

// NewSavedItemRepository constructs a Firestore-backed saved item repository.
func NewSavedItemRepository(provider *pfirestore.Provider) (*SavedItemRepository, error) {
	if provider == nil {
		return nil, errors.New("saved item repository requires firestore provider")
	}
	base := pfirestore.NewCollection[savedItemDocument](provider, savedItemCollection)
	return &SavedItemRepository{base: base, provider: provider}, nil
}

// Insert creates the saved item, failing with a conflict when the
// (user, product, variant, list) key already has a row.
func (r *SavedItemRepository) Insert(ctx context.Context, item domain.SavedItem) (domain.SavedItem, error) {
	if r == nil || r.provider == nil {
		return domain.SavedItem{}, errors.New("saved item repository not initialised")
	}
	id := strings.TrimSpace(item.ID)
	if id == "" {
		return domain.SavedItem{}, errors.New("saved item repository: item id is required")
	}
	if strings.TrimSpace(item.UserID) == "" {
		return domain.SavedItem{}, errors.New("saved item repository: user id is required")
	}

	doc := newSavedItemDocument(item)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}
		dupQuery := client.Collection(savedItemCollection).
			Where("userId", "==", doc.UserID).
			Where("productId", "==", doc.ProductID).
			Where("variantId", "==", doc.VariantID).
			Where("listName", "==", doc.ListName).
			Limit(1)
		dups, err := readAll(tx.Documents(dupQuery))
		if err != nil {
			return err
		}
		if len(dups) > 0 {
			return status.Errorf(codes.AlreadyExists,
				"saved item for product %s already in list %s", doc.ProductID, doc.ListName)
		}

		ref, err := r.base.Doc(ctx, id)
		if err != nil {
			return err
		}
		return tx.Create(ref, doc)
	})
	if err != nil {
		return domain.SavedItem{}, pfirestore.WrapError("savedItems.insert", err)
	}
	return doc.toDomain(id), nil
}

// Delete removes the saved item after checking ownership.
func (r *SavedItemRepository) Delete(ctx context.Context, userID string, itemID string) error {
	if r == nil || r.base == nil {
		return errors.New("saved item repository not initialised")
	}
	if _, err := r.FindByID(ctx, userID, itemID); err != nil {
		return err
	}
	ref, err := r.base.Doc(ctx, strings.TrimSpace(itemID))
	if err != nil {
		return err
	}
	if err := deleteDoc(ctx, ref); err != nil {
		return pfirestore.WrapError("savedItems.delete", err)
	}
	return nil
}

// FindByID loads the saved item and verifies it belongs to the user.
func (r *SavedItemRepository) FindByID(ctx context.Context, userID string, itemID string) (domain.SavedItem, error) {
	if r == nil || r.base == nil {
		return domain.SavedItem{}, errors.New("saved item repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	id := strings.TrimSpace(itemID)
	if uid == "" || id == "" {
		return domain.SavedItem{}, errors.New("saved item repository: user id and item id are required")
	}

	ref, err := r.base.Doc(ctx, id)
	if err != nil {
		return domain.SavedItem{}, err
	}
	snap, err := getDoc(ctx, ref)
	if err != nil {
		return domain.SavedItem{}, pfirestore.WrapError("savedItems.get", err)
	}
	var doc savedItemDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.SavedItem{}, fmt.Errorf("decode saved item %s: %w", id, err)
	}
	if doc.UserID != uid {
		return domain.SavedItem{}, notFoundError("savedItems.get", fmt.Sprintf("saved item %s not found", id))
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// FindByKey looks up the unique row for (user, product, variant, list).
func (r *SavedItemRepository) FindByKey(ctx context.Context, key repositories.SavedItemKey) (domain.SavedItem, error) {
	if r == nil || r.provider == nil {
		return domain.SavedItem{}, errors.New("saved item repository not initialised")
	}
	uid := strings.TrimSpace(key.UserID)
	productID := strings.TrimSpace(key.ProductID)
	if uid == "" || productID == "" {
		return domain.SavedItem{}, errors.New("saved item repository: user id and product id are required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.SavedItem{}, err
	}
	query := client.Collection(savedItemCollection).
		Where("userId", "==", uid).
		Where("productId", "==", productID).
		Where("variantId", "==", stringValue(key.VariantID)).
		Where("listName", "==", strings.TrimSpace(key.ListName)).
		Limit(1)

	snaps, err := queryDocs(ctx, query)
	if err != nil {
		return domain.SavedItem{}, pfirestore.WrapError("savedItems.findByKey", err)
	}
	if len(snaps) == 0 {
		return domain.SavedItem{}, notFoundError("savedItems.findByKey", "saved item not found")
	}
	var doc savedItemDocument
	if err := snaps[0].DataTo(&doc); err != nil {
		return domain.SavedItem{}, fmt.Errorf("decode saved item %s: %w", snaps[0].Ref.ID, err)
	}
	return doc.toDomain(snaps[0].Ref.ID), nil
}

// ListByUser returns the user's saved items newest first with cursor paging.
func (r *SavedItemRepository) ListByUser(ctx context.Context, userID string, filter repositories.SavedItemListFilter) (domain.CursorPage[domain.SavedItem], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.SavedItem]{}, errors.New("saved item repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.CursorPage[domain.SavedItem]{}, errors.New("saved item repository: user id is required")
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
		return domain.CursorPage[domain.SavedItem]{}, err
	}

	query := client.Collection(savedItemCollection).Where("userId", "==", uid)
	if listName := strings.TrimSpace(filter.ListName); listName != "" {
		query = query.Where("listName", "==", listName)
	}
	query = query.
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pager.PageToken); token != "" {
		cursor, err := pagination.Decode(token)
		if err != nil {
			return domain.CursorPage[domain.SavedItem]{}, pfirestore.WrapError("savedItems.list", err)
		}
		ts, err := cursor.Time()
		if err != nil {
			return domain.CursorPage[domain.SavedItem]{}, pfirestore.WrapError("savedItems.list", err)
		}
		query = query.StartAfter(ts, cursor.DocID)
	}

	snaps, err := queryDocs(ctx, query)
	if err != nil {
		return domain.CursorPage[domain.SavedItem]{}, pfirestore.WrapError("savedItems.list", err)
	}

	items := make([]domain.SavedItem, 0, len(snaps))
	for _, snap := range snaps {
		var doc savedItemDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.SavedItem]{}, fmt.Errorf("decode saved item %s: %w", snap.Ref.ID, err)
		}
		items = append(items, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(items) > pageSize
	if hasMore {
		items = items[:pageSize]
	}
	var nextToken string
	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		encoded, err := pagination.NewCursor(last.ID, last.CreatedAt).Encode()
		if err != nil {
			return domain.CursorPage[domain.SavedItem]{}, pfirestore.WrapError("savedItems.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.SavedItem]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

type savedItemDocument struct {
	UserID     string                  `firestore:"userId"`
	ProductID  string                  `firestore:"productId"`
	VariantID  string                  `firestore:"variantId"`
	ListName   string                  `firestore:"listName"`
	SavedPrice int64                   `firestore:"savedPrice"`
	Currency   string                  `firestore:"currency"`
	Snapshot   productSnapshotDocument `firestore:"snapshot"`
	CreatedAt  time.Time               `firestore:"createdAt"`
}

func newSavedItemDocument(item domain.SavedItem) savedItemDocument {
	return savedItemDocument{
		UserID:     strings.TrimSpace(item.UserID),
		ProductID:  strings.TrimSpace(item.ProductID),
		VariantID:  stringValue(item.VariantID),
		ListName:   strings.TrimSpace(item.ListName),
		SavedPrice: item.SavedPrice,
		Currency:   item.Currency,
		Snapshot: productSnapshotDocument{
			Name:         item.Snapshot.Name,
			SKU:          item.Snapshot.SKU,
			Slug:         item.Snapshot.Slug,
			ImageURL:     item.Snapshot.ImageURL,
			VariantTitle: item.Snapshot.VariantTitle,
		},
		CreatedAt: item.CreatedAt.UTC(),
	}
}

func (d savedItemDocument) toDomain(id string) domain.SavedItem {
	return domain.SavedItem{
		ID:         id,
		UserID:     d.UserID,
		ProductID:  d.ProductID,
		VariantID:  stringPtr(d.VariantID),
		ListName:   d.ListName,
		SavedPrice: d.SavedPrice,
		Currency:   d.Currency,
		Snapshot: domain.ProductSnapshot{
			Name:         d.Snapshot.Name,
			SKU:          d.Snapshot.SKU,
			Slug:         d.Snapshot.Slug,
			ImageURL:     d.Snapshot.ImageURL,
			VariantTitle: d.Snapshot.VariantTitle,
		},
		CreatedAt: d.CreatedAt,
	}
}

var _ repositories.SavedItemRepository = (*SavedItemRepository)(nil)
