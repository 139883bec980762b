package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/clearcart/api/internal/domain"
	pfirestore "github.com/clearcart/api/internal/platform/firestore"
	"github.com/clearcart/api/internal/repositories"
)

const (
	productCollection  = "products"
	variantCollection  = "variants"
	discountCollection = "discounts"
)

// CatalogRepository is the Firestore read model over products, variants and
// discounts. Variants live in a subcollection under their product.
type CatalogRepository struct {
	base     *pfirestore.Collection[productDocument]
	provider *pfirestore.Provider
}

// NewCatalogRepository constructs a Firestore-backed catalog repository.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	base := pfirestore.NewCollection[productDocument](provider, productCollection)
	return &CatalogRepository{base: base, provider: provider}, nil
}

// GetProduct loads a product.
func (r *CatalogRepository) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("catalog repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, errors.New("catalog repository: product id is required")
	}

	ref, err := r.base.Doc(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	snap, err := getDoc(ctx, ref)
	if err != nil {
		return domain.Product{}, pfirestore.WrapError("products.get", err)
	}
	var doc productDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Product{}, fmt.Errorf("decode product %s: %w", id, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// GetVariant loads a variant from the product's subcollection.
func (r *CatalogRepository) GetVariant(ctx context.Context, productID string, variantID string) (domain.ProductVariant, error) {
	if r == nil || r.provider == nil {
		return domain.ProductVariant{}, errors.New("catalog repository not initialised")
	}
	pid := strings.TrimSpace(productID)
	vid := strings.TrimSpace(variantID)
	if pid == "" || vid == "" {
		return domain.ProductVariant{}, errors.New("catalog repository: product id and variant id are required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.ProductVariant{}, err
	}
	ref := client.Collection(productCollection).Doc(pid).Collection(variantCollection).Doc(vid)
	snap, err := getDoc(ctx, ref)
	if err != nil {
		return domain.ProductVariant{}, pfirestore.WrapError("variants.get", err)
	}
	var doc variantDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.ProductVariant{}, fmt.Errorf("decode variant %s: %w", vid, err)
	}
	return doc.toDomain(snap.Ref.ID, pid), nil
}

// ListActiveDiscounts returns discounts flagged active for the product whose
// window admits now. Quantity and amount gates are evaluated by the caller.
func (r *CatalogRepository) ListActiveDiscounts(ctx context.Context, productID string, now time.Time) ([]domain.Discount, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("catalog repository not initialised")
	}
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return nil, errors.New("catalog repository: product id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	query := client.Collection(discountCollection).
		Where("productId", "==", pid).
		Where("active", "==", true)

	snaps, err := queryDocs(ctx, query)
	if err != nil {
		return nil, pfirestore.WrapError("discounts.list", err)
	}

	cutoff := now.UTC()
	discounts := make([]domain.Discount, 0, len(snaps))
	for _, snap := range snaps {
		var doc discountDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode discount %s: %w", snap.Ref.ID, err)
		}
		discount := doc.toDomain(snap.Ref.ID)
		if !discount.AppliesAt(cutoff) {
			continue
		}
		discounts = append(discounts, discount)
	}
	return discounts, nil
}

// Document types ------------------------------------------------------------

type productDocument struct {
	Name              string `firestore:"name"`
	SKU               string `firestore:"sku,omitempty"`
	Slug              string `firestore:"slug,omitempty"`
	ImageURL          string `firestore:"imageUrl,omitempty"`
	Status            string `firestore:"status"`
	Price             int64  `firestore:"price"`
	Currency          string `firestore:"currency"`
	InventoryQuantity int    `firestore:"inventoryQuantity"`
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:                id,
		Name:              d.Name,
		SKU:               d.SKU,
		Slug:              d.Slug,
		ImageURL:          d.ImageURL,
		Status:            domain.ProductStatus(d.Status),
		Price:             d.Price,
		Currency:          d.Currency,
		InventoryQuantity: d.InventoryQuantity,
	}
}

type variantDocument struct {
	Title             string         `firestore:"title"`
	SKU               string         `firestore:"sku,omitempty"`
	Active            bool           `firestore:"active"`
	Price             *int64         `firestore:"price,omitempty"`
	Options           map[string]any `firestore:"options,omitempty"`
	InventoryQuantity int            `firestore:"inventoryQuantity"`
}

func (d variantDocument) toDomain(id string, productID string) domain.ProductVariant {
	return domain.ProductVariant{
		ID:                id,
		ProductID:         productID,
		Title:             d.Title,
		SKU:               d.SKU,
		Active:            d.Active,
		Price:             d.Price,
		Options:           d.Options,
		InventoryQuantity: d.InventoryQuantity,
	}
}

type discountDocument struct {
	ProductID   string     `firestore:"productId"`
	Name        string     `firestore:"name"`
	Type        string     `firestore:"type"`
	Value       int64      `firestore:"value"`
	MinQuantity int        `firestore:"minQuantity,omitempty"`
	MinAmount   *int64     `firestore:"minAmount,omitempty"`
	Active      bool       `firestore:"active"`
	StartsAt    *time.Time `firestore:"startsAt,omitempty"`
	EndsAt      *time.Time `firestore:"endsAt,omitempty"`
	UsageLimit  *int       `firestore:"usageLimit,omitempty"`
	UsageCount  int        `firestore:"usageCount"`
}

func (d discountDocument) toDomain(id string) domain.Discount {
	return domain.Discount{
		ID:          id,
		ProductID:   d.ProductID,
		Name:        d.Name,
		Type:        domain.DiscountType(d.Type),
		Value:       d.Value,
		MinQuantity: d.MinQuantity,
		MinAmount:   d.MinAmount,
		Active:      d.Active,
		StartsAt:    d.StartsAt,
		EndsAt:      d.EndsAt,
		UsageLimit:  d.UsageLimit,
		UsageCount:  d.UsageCount,
	}
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)
