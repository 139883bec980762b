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

const reservationCollection = "stockReservations"

// ReservationRepository manages advisory stock holds within Firestore.
type ReservationRepository struct {
	base     *pfirestore.Collection[reservationDocument]
	provider *pfirestore.Provider
}

// NewReservationRepository constructs a Firestore-backed reservation repository.
func NewReservationRepository(provider *pfirestore.Provider) (*ReservationRepository, error) {
	if provider == nil {
		return nil, errors.New("reservation repository requires firestore provider")
	}
	base := pfirestore.NewCollection[reservationDocument](provider, reservationCollection)
	return &ReservationRepository{base: base, provider: provider}, nil
}

// Insert creates the reservation, failing when the ID already exists.
func (r *ReservationRepository) Insert(ctx context.Context, reservation domain.InventoryReservation) (domain.InventoryReservation, error) {
	if r == nil || r.base == nil {
		return domain.InventoryReservation{}, errors.New("reservation repository not initialised")
	}
	id := strings.TrimSpace(reservation.ID)
	if id == "" {
		return domain.InventoryReservation{}, errors.New("reservation repository: reservation id is required")
	}
	if strings.TrimSpace(reservation.ProductID) == "" {
		return domain.InventoryReservation{}, errors.New("reservation repository: product id is required")
	}
	if reservation.Quantity <= 0 {
		return domain.InventoryReservation{}, errors.New("reservation repository: quantity must be positive")
	}

	ref, err := r.base.Doc(ctx, id)
	if err != nil {
		return domain.InventoryReservation{}, err
	}
	doc := newReservationDocument(reservation)
	if err := createDoc(ctx, ref, doc); err != nil {
		return domain.InventoryReservation{}, pfirestore.WrapError("reservations.insert", err)
	}
	return doc.toDomain(id), nil
}

// FindByID loads a reservation.
func (r *ReservationRepository) FindByID(ctx context.Context, reservationID string) (domain.InventoryReservation, error) {
	if r == nil || r.base == nil {
		return domain.InventoryReservation{}, errors.New("reservation repository not initialised")
	}
	id := strings.TrimSpace(reservationID)
	if id == "" {
		return domain.InventoryReservation{}, errors.New("reservation repository: reservation id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		var repoErr *pfirestore.Error
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.InventoryReservation{}, repositories.NewInventoryError(
				repositories.InventoryErrorReservationNotFound,
				fmt.Sprintf("reservation %s not found", id), err)
		}
		return domain.InventoryReservation{}, pfirestore.WrapError("reservations.get", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

// BindOrder attaches reservations to a persisted order. The write is
// unconditional so it can run inside a caller transaction after other writes.
func (r *ReservationRepository) BindOrder(ctx context.Context, reservationIDs []string, orderID string) error {
	if r == nil || r.base == nil {
		return errors.New("reservation repository not initialised")
	}
	oid := strings.TrimSpace(orderID)
	if oid == "" {
		return errors.New("reservation repository: order id is required")
	}

	for _, reservationID := range reservationIDs {
		id := strings.TrimSpace(reservationID)
		if id == "" {
			continue
		}
		ref, err := r.base.Doc(ctx, id)
		if err != nil {
			return err
		}
		updates := []firestore.Update{{Path: "orderId", Value: oid}}
		if err := updateDoc(ctx, ref, updates); err != nil {
			return pfirestore.WrapError("reservations.bindOrder", err)
		}
	}
	return nil
}

// Release deactivates reservations and stamps ReleasedAt. Rows already
// inactive are left untouched.
func (r *ReservationRepository) Release(ctx context.Context, reservationIDs []string, releasedAt time.Time) error {
	if r == nil || r.provider == nil {
		return errors.New("reservation repository not initialised")
	}
	released := releasedAt.UTC()
	updates := []firestore.Update{
		{Path: "active", Value: false},
		{Path: "releasedAt", Value: released},
	}

	// Inside a caller transaction reads are no longer possible, so the
	// release is applied unconditionally. Re-releasing only rewrites the
	// inactive state, which is harmless.
	if txFromContext(ctx) != nil {
		for _, reservationID := range reservationIDs {
			id := strings.TrimSpace(reservationID)
			if id == "" {
				continue
			}
			ref, err := r.base.Doc(ctx, id)
			if err != nil {
				return err
			}
			if err := updateDoc(ctx, ref, updates); err != nil {
				return pfirestore.WrapError("reservations.release", err)
			}
		}
		return nil
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var active []*firestore.DocumentRef
		for _, reservationID := range reservationIDs {
			id := strings.TrimSpace(reservationID)
			if id == "" {
				continue
			}
			ref, err := r.base.Doc(ctx, id)
			if err != nil {
				return err
			}
			snap, err := tx.Get(ref)
			if err != nil {
				return err
			}
			var doc reservationDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode reservation %s: %w", id, err)
			}
			if !doc.Active {
				continue
			}
			active = append(active, ref)
		}
		for _, ref := range active {
			if err := tx.Update(ref, updates); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return pfirestore.WrapError("reservations.release", err)
	}
	return nil
}

// ListActiveByOrder returns active reservations bound to the order.
func (r *ReservationRepository) ListActiveByOrder(ctx context.Context, orderID string) ([]domain.InventoryReservation, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("reservation repository not initialised")
	}
	oid := strings.TrimSpace(orderID)
	if oid == "" {
		return nil, errors.New("reservation repository: order id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	query := client.Collection(reservationCollection).
		Where("active", "==", true).
		Where("orderId", "==", oid)

	snaps, err := queryDocs(ctx, query)
	if err != nil {
		return nil, pfirestore.WrapError("reservations.listActiveByOrder", err)
	}
	return decodeReservations(snaps)
}

// ListExpiredActive returns active reservations past their expiry.
func (r *ReservationRepository) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]domain.InventoryReservation, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("reservation repository not initialised")
	}
	if limit <= 0 {
		limit = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	query := client.Collection(reservationCollection).
		Where("active", "==", true).
		Where("expiresAt", "<=", now.UTC()).
		OrderBy("expiresAt", firestore.Asc).
		Limit(limit)

	snaps, err := queryDocs(ctx, query)
	if err != nil {
		return nil, pfirestore.WrapError("reservations.listExpiredActive", err)
	}
	return decodeReservations(snaps)
}

// SumActiveQuantity totals active, unexpired holds for a product/variant.
func (r *ReservationRepository) SumActiveQuantity(ctx context.Context, productID string, variantID *string, now time.Time) (int, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("reservation repository not initialised")
	}
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return 0, errors.New("reservation repository: product id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	query := client.Collection(reservationCollection).
		Where("active", "==", true).
		Where("productId", "==", pid).
		Where("variantId", "==", stringValue(variantID))

	snaps, err := queryDocs(ctx, query)
	if err != nil {
		return 0, pfirestore.WrapError("reservations.sumActive", err)
	}

	cutoff := now.UTC()
	total := 0
	for _, snap := range snaps {
		var doc reservationDocument
		if err := snap.DataTo(&doc); err != nil {
			return 0, fmt.Errorf("decode reservation %s: %w", snap.Ref.ID, err)
		}
		// Expiry is filtered here rather than in the query so the index
		// stays a simple equality composite.
		if !doc.ExpiresAt.After(cutoff) {
			continue
		}
		total += doc.Quantity
	}
	return total, nil
}

func decodeReservations(snaps []*firestore.DocumentSnapshot) ([]domain.InventoryReservation, error) {
	reservations := make([]domain.InventoryReservation, 0, len(snaps))
	for _, snap := range snaps {
		var doc reservationDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode reservation %s: %w", snap.Ref.ID, err)
		}
		reservations = append(reservations, doc.toDomain(snap.Ref.ID))
	}
	return reservations, nil
}

type reservationDocument struct {
	ProductID  string     `firestore:"productId"`
	VariantID  string     `firestore:"variantId"`
	OrderID    string     `firestore:"orderId"`
	Quantity   int        `firestore:"quantity"`
	Active     bool       `firestore:"active"`
	ExpiresAt  time.Time  `firestore:"expiresAt"`
	CreatedAt  time.Time  `firestore:"createdAt"`
	ReleasedAt *time.Time `firestore:"releasedAt,omitempty"`
}

func newReservationDocument(reservation domain.InventoryReservation) reservationDocument {
	return reservationDocument{
		ProductID:  strings.TrimSpace(reservation.ProductID),
		VariantID:  stringValue(reservation.VariantID),
		OrderID:    stringValue(reservation.OrderID),
		Quantity:   reservation.Quantity,
		Active:     reservation.Active,
		ExpiresAt:  reservation.ExpiresAt.UTC(),
		CreatedAt:  reservation.CreatedAt.UTC(),
		ReleasedAt: reservation.ReleasedAt,
	}
}

func (d reservationDocument) toDomain(id string) domain.InventoryReservation {
	return domain.InventoryReservation{
		ID:         id,
		ProductID:  d.ProductID,
		VariantID:  stringPtr(d.VariantID),
		OrderID:    stringPtr(d.OrderID),
		Quantity:   d.Quantity,
		Active:     d.Active,
		ExpiresAt:  d.ExpiresAt,
		CreatedAt:  d.CreatedAt,
		ReleasedAt: d.ReleasedAt,
	}
}

var _ repositories.ReservationRepository = (*ReservationRepository)(nil)
