package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/clearcart/api/internal/platform/firestore"
)

// notFoundError produces a repository error categorised as not-found for
// queries that legitimately return zero rows.
func notFoundError(op string, msg string) error {
	return pfirestore.WrapError(op, status.Error(codes.NotFound, msg))
}

type txContextKey struct{}

// withTx stores an open transaction in the context so repository calls made
// inside Registry.RunInTx participate in it.
func withTx(ctx context.Context, tx *firestore.Transaction) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

func txFromContext(ctx context.Context) *firestore.Transaction {
	if ctx == nil {
		return nil
	}
	tx, _ := ctx.Value(txContextKey{}).(*firestore.Transaction)
	return tx
}

func getDoc(ctx context.Context, ref *firestore.DocumentRef) (*firestore.DocumentSnapshot, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Get(ref)
	}
	return ref.Get(ctx)
}

func setDoc(ctx context.Context, ref *firestore.DocumentRef, data any) error {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Set(ref, data)
	}
	_, err := ref.Set(ctx, data)
	return err
}

func createDoc(ctx context.Context, ref *firestore.DocumentRef, data any) error {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Create(ref, data)
	}
	_, err := ref.Create(ctx, data)
	return err
}

func updateDoc(ctx context.Context, ref *firestore.DocumentRef, updates []firestore.Update) error {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Update(ref, updates)
	}
	_, err := ref.Update(ctx, updates)
	return err
}

func deleteDoc(ctx context.Context, ref *firestore.DocumentRef) error {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Delete(ref)
	}
	_, err := ref.Delete(ctx)
	return err
}

func queryDocs(ctx context.Context, query firestore.Query) ([]*firestore.DocumentSnapshot, error) {
	if tx := txFromContext(ctx); tx != nil {
		return readAll(tx.Documents(query))
	}
	return readAll(query.Documents(ctx))
}

func readAll(iter *firestore.DocumentIterator) ([]*firestore.DocumentSnapshot, error) {
	defer iter.Stop()

	var snaps []*firestore.DocumentSnapshot
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}
