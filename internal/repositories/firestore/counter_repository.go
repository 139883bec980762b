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

	pfirestore "github.com/clearcart/api/internal/platform/firestore"
	"github.com/clearcart/api/internal/repositories"
)

const countersCollection = "counters"

type counterDoc struct {
	Value     int64     `firestore:"currentValue"`
	Step      int64     `firestore:"step"`
	Max       *int64    `firestore:"maxValue,omitempty"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// advance bumps the counter by step (falling back to the stored step,
// then 1) and enforces the configured ceiling.
func (d *counterDoc) advance(id string, step int64, now time.Time) error {
	if step <= 0 {
		step = d.Step
	}
	if step <= 0 {
		step = 1
	}
	next := d.Value + step
	if d.Max != nil && next > *d.Max {
		return repositories.NewCounterError(repositories.CounterErrorExhausted,
			fmt.Sprintf("counter %s exceeded max value %d", id, *d.Max), nil)
	}
	d.Value = next
	d.Step = step
	d.UpdatedAt = now
	return nil
}

// CounterRepository implements repositories.CounterRepository backed by
// Firestore transactions.
type CounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.Collection[counterDoc]
}

// NewCounterRepository constructs a Firestore-backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	return &CounterRepository{
		provider: provider,
		counters: pfirestore.NewCollection[counterDoc](provider, countersCollection),
	}, nil
}

// Next atomically increments the counter identified by counterID and
// returns the new value. Unknown counters start at the step value.
func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("counter repository not initialised")
	}
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}
	if step < 0 {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, fmt.Sprintf("step must be positive, got %d", step), nil)
	}

	now := time.Now().UTC()
	var value int64

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.counters.Doc(ctx, id)
		if err != nil {
			return err
		}

		var doc counterDoc
		snapshot, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) != codes.NotFound {
				return err
			}
			first := step
			if first <= 0 {
				first = 1
			}
			doc = counterDoc{Value: first, Step: first, UpdatedAt: now}
			if err := tx.Create(ref, doc); err != nil {
				return err
			}
			value = doc.Value
			return nil
		}

		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore counters decode %s: %w", id, err)
		}
		if err := doc.advance(id, step, now); err != nil {
			return err
		}
		if err := tx.Set(ref, doc, firestore.MergeAll); err != nil {
			return err
		}
		value = doc.Value
		return nil
	})
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) {
			return 0, counterErr
		}
		return 0, pfirestore.WrapError("counters.next", err)
	}
	return value, nil
}

// Configure merges optional counter settings: step size, max value, or a
// reset of the current value.
func (r *CounterRepository) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	if r == nil || r.provider == nil {
		return errors.New("counter repository not initialised")
	}
	id := strings.TrimSpace(counterID)
	if id == "" {
		return repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}

	payload := map[string]any{"updatedAt": time.Now().UTC()}
	if cfg.Step > 0 {
		payload["step"] = cfg.Step
	}
	if cfg.MaxValue != nil {
		payload["maxValue"] = *cfg.MaxValue
	}
	if cfg.InitialValue != nil {
		payload["currentValue"] = *cfg.InitialValue
	}

	ref, err := r.counters.Doc(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, payload, firestore.MergeAll); err != nil {
		return pfirestore.WrapError("counters.configure", err)
	}
	return nil
}
