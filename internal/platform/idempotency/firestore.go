package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultCollection   = "idempotency_keys"
	txAttempts          = 5
	defaultCleanupLimit = 100
)

// FirestoreStore implements Store on top of a Firestore collection, one
// document per scoped key.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// FirestoreOption customises the FirestoreStore.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the collection name holding idempotency keys.
func WithCollection(name string) FirestoreOption {
	return func(s *FirestoreStore) {
		if name != "" {
			s.collection = name
		}
	}
}

// NewFirestoreStore constructs a Firestore-backed idempotency store.
func NewFirestoreStore(client *firestore.Client, opts ...FirestoreOption) *FirestoreStore {
	store := &FirestoreStore{client: client, collection: defaultCollection}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

type keyDoc struct {
	Key         string              `firestore:"key"`
	Fingerprint string              `firestore:"fingerprint"`
	Completed   bool                `firestore:"completed"`
	Status      int                 `firestore:"response_status"`
	Header      map[string][]string `firestore:"response_headers"`
	Body        []byte              `firestore:"response_body"`
	CreatedAt   time.Time           `firestore:"created_at"`
	UpdatedAt   time.Time           `firestore:"updated_at"`
	ExpiresAt   time.Time           `firestore:"expires_at"`
}

func (d *keyDoc) expired(now time.Time) bool {
	return !d.ExpiresAt.IsZero() && !now.Before(d.ExpiresAt)
}

func (d *keyDoc) response() StoredResponse {
	header := make(map[string][]string, len(d.Header))
	for name, values := range d.Header {
		header[name] = append([]string(nil), values...)
	}
	return StoredResponse{
		Status: d.Status,
		Header: header,
		Body:   append([]byte(nil), d.Body...),
	}
}

func (s *FirestoreStore) ref(key string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(docID(key))
}

// load fetches the key document inside tx, returning nil when absent.
func load(tx *firestore.Transaction, ref *firestore.DocumentRef) (*keyDoc, error) {
	snap, err := tx.Get(ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, err
	}
	var doc keyDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Begin implements Store. Expired documents are overwritten as fresh claims.
func (s *FirestoreStore) Begin(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	ref := s.ref(key)
	var claim Claim
	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		doc, err := load(tx, ref)
		if err != nil {
			return err
		}
		if doc == nil || doc.expired(now) {
			claim = Claim{State: ClaimNew}
			return tx.Set(ref, keyDoc{
				Key:         key,
				Fingerprint: fingerprint,
				CreatedAt:   now,
				UpdatedAt:   now,
				ExpiresAt:   now.Add(ttl),
			})
		}
		if doc.Fingerprint != fingerprint {
			return ErrKeyReused
		}
		if doc.Completed {
			claim = Claim{State: ClaimReplay, Response: doc.response()}
			return nil
		}
		claim = Claim{State: ClaimInFlight}
		return nil
	}, firestore.MaxAttempts(txAttempts))
	if err != nil {
		return Claim{}, err
	}
	return claim, nil
}

// Complete implements Store.
func (s *FirestoreStore) Complete(ctx context.Context, key, fingerprint string, resp StoredResponse, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	header := recordableHeader(resp.Header)
	body := append([]byte(nil), resp.Body...)

	ref := s.ref(key)
	return s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		doc, err := load(tx, ref)
		if err != nil {
			return err
		}
		if doc == nil {
			doc = &keyDoc{Key: key, Fingerprint: fingerprint, CreatedAt: now}
		} else if doc.Fingerprint != fingerprint {
			return ErrKeyReused
		}
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}

		doc.Completed = true
		doc.Status = resp.Status
		doc.Header = header
		doc.Body = body
		doc.UpdatedAt = now
		doc.ExpiresAt = now.Add(ttl)
		return tx.Set(ref, doc)
	}, firestore.MaxAttempts(txAttempts))
}

// Release implements Store. Deleting an absent document is not an error.
func (s *FirestoreStore) Release(ctx context.Context, key string) error {
	_, err := s.ref(key).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

// CleanupExpired implements Store, deleting expired documents in bulk.
func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()
	if limit <= 0 {
		limit = defaultCleanupLimit
	}

	query := s.client.Collection(s.collection).
		Where("expires_at", "<=", now).
		Limit(limit)
	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	writer := s.client.BulkWriter(ctx)
	for _, doc := range docs {
		if _, err := writer.Delete(doc.Ref); err != nil {
			writer.End()
			return 0, err
		}
	}
	writer.End()
	return len(docs), nil
}
