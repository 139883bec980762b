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
	"github.com/clearcart/api/internal/repositories"
)

const cartCollection = "carts"

// CartRepository persists cart aggregates, items embedded, within Firestore.
type CartRepository struct {
	base     *pfirestore.Collection[cartDocument]
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewCollection[cartDocument](provider, cartCollection)
	return &CartRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Insert creates the cart document, failing when the ID already exists.
func (r *CartRepository) Insert(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	id := strings.TrimSpace(cart.ID)
	if id == "" {
		return domain.Cart{}, errors.New("cart repository: cart id is required")
	}

	ref, err := r.base.Doc(ctx, id)
	if err != nil {
		return domain.Cart{}, err
	}
	doc := newCartDocument(cart)
	if err := createDoc(ctx, ref, doc); err != nil {
		return domain.Cart{}, pfirestore.WrapError("carts.insert", err)
	}
	return doc.toDomain(id), nil
}

// Update replaces the cart document.
func (r *CartRepository) Update(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	id := strings.TrimSpace(cart.ID)
	if id == "" {
		return domain.Cart{}, errors.New("cart repository: cart id is required")
	}

	ref, err := r.base.Doc(ctx, id)
	if err != nil {
		return domain.Cart{}, err
	}
	doc := newCartDocument(cart)
	if err := setDoc(ctx, ref, doc); err != nil {
		return domain.Cart{}, pfirestore.WrapError("carts.update", err)
	}
	return doc.toDomain(id), nil
}

// Delete removes the cart document. Missing documents are not an error.
func (r *CartRepository) Delete(ctx context.Context, cartID string) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	id := strings.TrimSpace(cartID)
	if id == "" {
		return errors.New("cart repository: cart id is required")
	}

	ref, err := r.base.Doc(ctx, id)
	if err != nil {
		return err
	}
	if err := deleteDoc(ctx, ref); err != nil {
		return pfirestore.WrapError("carts.delete", err)
	}
	return nil
}

// FindByID loads the cart aggregate.
func (r *CartRepository) FindByID(ctx context.Context, cartID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	id := strings.TrimSpace(cartID)
	if id == "" {
		return domain.Cart{}, errors.New("cart repository: cart id is required")
	}

	ref, err := r.base.Doc(ctx, id)
	if err != nil {
		return domain.Cart{}, err
	}
	snap, err := getDoc(ctx, ref)
	if err != nil {
		return domain.Cart{}, pfirestore.WrapError("carts.get", err)
	}
	var doc cartDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Cart{}, fmt.Errorf("decode cart %s: %w", id, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// FindActiveByUser returns the user's single active cart.
func (r *CartRepository) FindActiveByUser(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.provider == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Cart{}, err
	}
	query := client.Collection(cartCollection).
		Where("userId", "==", uid).
		Where("status", "==", string(domain.CartStatusActive)).
		Limit(1)

	snaps, err := queryDocs(ctx, query)
	if err != nil {
		return domain.Cart{}, pfirestore.WrapError("carts.findActiveByUser", err)
	}
	if len(snaps) == 0 {
		return domain.Cart{}, notFoundError("carts.findActiveByUser", fmt.Sprintf("no active cart for user %s", uid))
	}
	var doc cartDocument
	if err := snaps[0].DataTo(&doc); err != nil {
		return domain.Cart{}, fmt.Errorf("decode cart %s: %w", snaps[0].Ref.ID, err)
	}
	return doc.toDomain(snaps[0].Ref.ID), nil
}

// FindActiveBySession returns the active, unexpired cart for a session token.
func (r *CartRepository) FindActiveBySession(ctx context.Context, sessionToken string, now time.Time) (domain.Cart, error) {
	if r == nil || r.provider == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	token := strings.TrimSpace(sessionToken)
	if token == "" {
		return domain.Cart{}, errors.New("cart repository: session token is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Cart{}, err
	}
	query := client.Collection(cartCollection).
		Where("sessionToken", "==", token).
		Where("status", "==", string(domain.CartStatusActive)).
		Limit(1)

	snaps, err := queryDocs(ctx, query)
	if err != nil {
		return domain.Cart{}, pfirestore.WrapError("carts.findActiveBySession", err)
	}
	if len(snaps) == 0 {
		return domain.Cart{}, notFoundError("carts.findActiveBySession", "no active cart for session")
	}
	var doc cartDocument
	if err := snaps[0].DataTo(&doc); err != nil {
		return domain.Cart{}, fmt.Errorf("decode cart %s: %w", snaps[0].Ref.ID, err)
	}
	cart := doc.toDomain(snaps[0].Ref.ID)
	if cart.ExpiresAt != nil && !now.UTC().Before(cart.ExpiresAt.UTC()) {
		return domain.Cart{}, notFoundError("carts.findActiveBySession", "cart expired")
	}
	return cart, nil
}

// ListExpiredActive returns active carts whose expiry deadline has passed.
func (r *CartRepository) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]domain.Cart, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("cart repository not initialised")
	}
	if limit <= 0 {
		limit = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	query := client.Collection(cartCollection).
		Where("status", "==", string(domain.CartStatusActive)).
		Where("expiresAt", "<=", now.UTC()).
		OrderBy("expiresAt", firestore.Asc).
		Limit(limit)

	snaps, err := queryDocs(ctx, query)
	if err != nil {
		return nil, pfirestore.WrapError("carts.listExpiredActive", err)
	}

	carts := make([]domain.Cart, 0, len(snaps))
	for _, snap := range snaps {
		var doc cartDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode cart %s: %w", snap.Ref.ID, err)
		}
		carts = append(carts, doc.toDomain(snap.Ref.ID))
	}
	return carts, nil
}

// Document types ------------------------------------------------------------

type cartDocument struct {
	UserID          string             `firestore:"userId"`
	SessionToken    string             `firestore:"sessionToken"`
	GuestEmail      string             `firestore:"guestEmail,omitempty"`
	Status          string             `firestore:"status"`
	Currency        string             `firestore:"currency"`
	Items           []cartItemDocument `firestore:"items"`
	ItemsCount      int                `firestore:"itemsCount"`
	Subtotal        int64              `firestore:"subtotal"`
	DiscountTotal   int64              `firestore:"discountTotal"`
	TaxTotal        int64              `firestore:"taxTotal"`
	Total           int64              `firestore:"total"`
	AppliedCoupons  []string           `firestore:"appliedCoupons,omitempty"`
	BillingAddress  *addressDocument   `firestore:"billingAddress,omitempty"`
	ShippingAddress *addressDocument   `firestore:"shippingAddress,omitempty"`
	ExpiresAt       *time.Time         `firestore:"expiresAt,omitempty"`
	LastActivityAt  time.Time          `firestore:"lastActivityAt"`
	CreatedAt       time.Time          `firestore:"createdAt"`
	UpdatedAt       time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ID             string                  `firestore:"id"`
	ProductID      string                  `firestore:"productId"`
	VariantID      string                  `firestore:"variantId"`
	Quantity       int                     `firestore:"quantity"`
	UnitPrice      int64                   `firestore:"unitPrice"`
	OriginalPrice  int64                   `firestore:"originalPrice"`
	DiscountAmount int64                   `firestore:"discountAmount"`
	TotalPrice     int64                   `firestore:"totalPrice"`
	Currency       string                  `firestore:"currency"`
	Snapshot       productSnapshotDocument `firestore:"snapshot"`
	CustomOptions  map[string]any          `firestore:"customOptions,omitempty"`
	Notes          string                  `firestore:"notes,omitempty"`
	AddedAt        time.Time               `firestore:"addedAt"`
	UpdatedAt      *time.Time              `firestore:"updatedAt,omitempty"`
}

type productSnapshotDocument struct {
	Name         string `firestore:"name"`
	SKU          string `firestore:"sku,omitempty"`
	Slug         string `firestore:"slug,omitempty"`
	ImageURL     string `firestore:"imageUrl,omitempty"`
	VariantTitle string `firestore:"variantTitle,omitempty"`
}

type addressDocument struct {
	Recipient  string `firestore:"recipient,omitempty"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city,omitempty"`
	State      string `firestore:"state,omitempty"`
	PostalCode string `firestore:"postalCode,omitempty"`
	Country    string `firestore:"country"`
	Phone      string `firestore:"phone,omitempty"`
}

func newCartDocument(cart domain.Cart) cartDocument {
	items := make([]cartItemDocument, len(cart.Items))
	for i, item := range cart.Items {
		items[i] = newCartItemDocument(item)
	}
	doc := cartDocument{
		UserID:         strings.TrimSpace(cart.UserID),
		SessionToken:   strings.TrimSpace(cart.SessionToken),
		GuestEmail:     strings.TrimSpace(cart.GuestEmail),
		Status:         string(cart.Status),
		Currency:       strings.ToUpper(strings.TrimSpace(cart.Currency)),
		Items:          items,
		ItemsCount:     cart.ItemsCount,
		Subtotal:       cart.Subtotal,
		DiscountTotal:  cart.DiscountTotal,
		TaxTotal:       cart.TaxTotal,
		Total:          cart.Total,
		AppliedCoupons: append([]string(nil), cart.AppliedCoupons...),
		LastActivityAt: cart.LastActivityAt.UTC(),
		CreatedAt:      cart.CreatedAt.UTC(),
		UpdatedAt:      cart.UpdatedAt.UTC(),
	}
	doc.BillingAddress = newAddressDocument(cart.BillingAddress)
	doc.ShippingAddress = newAddressDocument(cart.ShippingAddress)
	if cart.ExpiresAt != nil {
		expires := cart.ExpiresAt.UTC()
		doc.ExpiresAt = &expires
	}
	return doc
}

func newCartItemDocument(item domain.CartItem) cartItemDocument {
	doc := cartItemDocument{
		ID:             item.ID,
		ProductID:      strings.TrimSpace(item.ProductID),
		VariantID:      stringValue(item.VariantID),
		Quantity:       item.Quantity,
		UnitPrice:      item.UnitPrice,
		OriginalPrice:  item.OriginalPrice,
		DiscountAmount: item.DiscountAmount,
		TotalPrice:     item.TotalPrice,
		Currency:       item.Currency,
		Snapshot: productSnapshotDocument{
			Name:         item.Snapshot.Name,
			SKU:          item.Snapshot.SKU,
			Slug:         item.Snapshot.Slug,
			ImageURL:     item.Snapshot.ImageURL,
			VariantTitle: item.Snapshot.VariantTitle,
		},
		CustomOptions: item.CustomOptions,
		Notes:         item.Notes,
		AddedAt:       item.AddedAt.UTC(),
	}
	if item.UpdatedAt != nil {
		updated := item.UpdatedAt.UTC()
		doc.UpdatedAt = &updated
	}
	return doc
}

func (d cartDocument) toDomain(id string) domain.Cart {
	items := make([]domain.CartItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = item.toDomain()
	}
	cart := domain.Cart{
		ID:             id,
		UserID:         d.UserID,
		SessionToken:   d.SessionToken,
		GuestEmail:     d.GuestEmail,
		Status:         domain.CartStatus(d.Status),
		Currency:       d.Currency,
		Items:          items,
		ItemsCount:     d.ItemsCount,
		Subtotal:       d.Subtotal,
		DiscountTotal:  d.DiscountTotal,
		TaxTotal:       d.TaxTotal,
		Total:          d.Total,
		AppliedCoupons: append([]string(nil), d.AppliedCoupons...),
		LastActivityAt: d.LastActivityAt,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	cart.BillingAddress = d.BillingAddress.toDomain()
	cart.ShippingAddress = d.ShippingAddress.toDomain()
	if d.ExpiresAt != nil {
		expires := *d.ExpiresAt
		cart.ExpiresAt = &expires
	}
	return cart
}

func (d cartItemDocument) toDomain() domain.CartItem {
	item := domain.CartItem{
		ID:             d.ID,
		ProductID:      d.ProductID,
		VariantID:      stringPtr(d.VariantID),
		Quantity:       d.Quantity,
		UnitPrice:      d.UnitPrice,
		OriginalPrice:  d.OriginalPrice,
		DiscountAmount: d.DiscountAmount,
		TotalPrice:     d.TotalPrice,
		Currency:       d.Currency,
		Snapshot: domain.ProductSnapshot{
			Name:         d.Snapshot.Name,
			SKU:          d.Snapshot.SKU,
			Slug:         d.Snapshot.Slug,
			ImageURL:     d.Snapshot.ImageURL,
			VariantTitle: d.Snapshot.VariantTitle,
		},
		CustomOptions: d.CustomOptions,
		Notes:         d.Notes,
		AddedAt:       d.AddedAt,
	}
	if d.UpdatedAt != nil {
		updated := *d.UpdatedAt
		item.UpdatedAt = &updated
	}
	return item
}

func newAddressDocument(addr *domain.Address) *addressDocument {
	if addr == nil {
		return nil
	}
	return &addressDocument{
		Recipient:  addr.Recipient,
		Line1:      addr.Line1,
		Line2:      stringValue(addr.Line2),
		City:       addr.City,
		State:      stringValue(addr.State),
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
		Phone:      stringValue(addr.Phone),
	}
}

func (d *addressDocument) toDomain() *domain.Address {
	if d == nil {
		return nil
	}
	return &domain.Address{
		Recipient:  d.Recipient,
		Line1:      d.Line1,
		Line2:      stringPtr(d.Line2),
		City:       d.City,
		State:      stringPtr(d.State),
		PostalCode: d.PostalCode,
		Country:    d.Country,
		Phone:      stringPtr(d.Phone),
	}
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}

func stringPtr(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

var _ repositories.CartRepository = (*CartRepository)(nil)
