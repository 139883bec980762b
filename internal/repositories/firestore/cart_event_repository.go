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

const cartEventCollection = "cartEvents"

// CartEventRepository appends immutable cart mutation events.
type CartEventRepository struct {
	base     *pfirestore.Collection[cartEventDocument]
	provider *pfirestore.Provider
}

// NewCartEventRepository constructs a Firestore-backed cart event repository.
func NewCartEventRepository(provider *pfirestore.Provider) (*CartEventRepository, error) {
	if provider == nil {
		return nil, errors.New("cart event repository requires firestore provider")
	}
	base := pfirestore.NewCollection[cartEventDocument](provider, cartEventCollection)
	return &CartEventRepository{base: base, provider: provider}, nil
}

// Append writes the event. Events are never updated or deleted afterwards.
func (r *CartEventRepository) Append(ctx context.Context, event domain.CartEvent) error {
	if r == nil || r.base == nil {
		return errors.New("cart event repository not initialised")
	}
	id := strings.TrimSpace(event.ID)
	if id == "" {
		return errors.New("cart event repository: event id is required")
	}
	if strings.TrimSpace(event.CartID) == "" {
		return errors.New("cart event repository: cart id is required")
	}

	ref, err := r.base.Doc(ctx, id)
	if err != nil {
		return err
	}
	doc := cartEventDocument{
		CartID:        strings.TrimSpace(event.CartID),
		Type:          string(event.Type),
		ProductID:     strings.TrimSpace(event.ProductID),
		VariantID:     stringValue(event.VariantID),
		QuantityDelta: event.QuantityDelta,
		Metadata:      event.Metadata,
		CreatedAt:     event.CreatedAt.UTC(),
	}
	if err := createDoc(ctx, ref, doc); err != nil {
		return pfirestore.WrapError("cartEvents.append", err)
	}
	return nil
}

// ListByCart returns events newest first with cursor paging.
func (r *CartEventRepository) ListByCart(ctx context.Context, cartID string, pager domain.Pagination) (domain.CursorPage[domain.CartEvent], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.CartEvent]{}, errors.New("cart event repository not initialised")
	}
	id := strings.TrimSpace(cartID)
	if id == "" {
		return domain.CursorPage[domain.CartEvent]{}, errors.New("cart event repository: cart id is required")
	}

	pageSize := pager.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.CartEvent]{}, err
	}

	query := client.Collection(cartEventCollection).
		Where("cartId", "==", id).
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(pager.PageToken); token != "" {
		cursor, err := pagination.Decode(token)
		if err != nil {
			return domain.CursorPage[domain.CartEvent]{}, pfirestore.WrapError("cartEvents.list", err)
		}
		ts, err := cursor.Time()
		if err != nil {
			return domain.CursorPage[domain.CartEvent]{}, pfirestore.WrapError("cartEvents.list", err)
		}
		query = query.StartAfter(ts, cursor.DocID)
	}

	snaps, err := queryDocs(ctx, query)
	if err != nil {
		return domain.CursorPage[domain.CartEvent]{}, pfirestore.WrapError("cartEvents.list", err)
	}

	events := make([]domain.CartEvent, 0, len(snaps))
	for _, snap := range snaps {
		var doc cartEventDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.CartEvent]{}, fmt.Errorf("decode cart event %s: %w", snap.Ref.ID, err)
		}
		events = append(events, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(events) > pageSize
	if hasMore {
		events = events[:pageSize]
	}
	var nextToken string
	if hasMore && len(events) > 0 {
		last := events[len(events)-1]
		encoded, err := pagination.NewCursor(last.ID, last.CreatedAt).Encode()
		if err != nil {
			return domain.CursorPage[domain.CartEvent]{}, pfirestore.WrapError("cartEvents.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.CartEvent]{
		Items:         events,
		NextPageToken: nextToken,
	}, nil
}

type cartEventDocument struct {
	CartID        string         `firestore:"cartId"`
	Type          string         `firestore:"type"`
	ProductID     string         `firestore:"productId,omitempty"`
	VariantID     string         `firestore:"variantId"`
	QuantityDelta int            `firestore:"quantityDelta"`
	Metadata      map[string]any `firestore:"metadata,omitempty"`
	CreatedAt     time.Time      `firestore:"createdAt"`
}

func (d cartEventDocument) toDomain(id string) domain.CartEvent {
	return domain.CartEvent{
		ID:            id,
		CartID:        d.CartID,
		Type:          domain.CartEventType(d.Type),
		ProductID:     d.ProductID,
		VariantID:     stringPtr(d.VariantID),
		QuantityDelta: d.QuantityDelta,
		Metadata:      d.Metadata,
		CreatedAt:     d.CreatedAt,
	}
}

var _ repositories.CartEventRepository = (*CartEventRepository)(nil)
