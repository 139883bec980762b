package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/clearcart/api/internal/repositories"
)

var (
	// ErrCounterInvalidInput indicates the caller supplied invalid counter parameters.
	ErrCounterInvalidInput = errors.New("counter: invalid input")
	// ErrCounterExhausted indicates the requested counter cannot increment further due to max bounds.
	ErrCounterExhausted = errors.New("counter: exhausted")
)

// CounterServiceDeps bundles collaborators required to construct a counter service instance.
type CounterServiceDeps struct {
	Repository repositories.CounterRepository
	Clock      func() time.Time
}

type counterService struct {
	repo  repositories.CounterRepository
	clock func() time.Time

	// configured caches the last settings pushed per counter so repeated
	// Next calls skip the Configure write.
	configMu   sync.Mutex
	configured map[string]string
}

// NewCounterService constructs a service that manages counter sequences on top of the repository.
func NewCounterService(deps CounterServiceDeps) (CounterService, error) {
	if deps.Repository == nil {
		return nil, errors.New("counter service: repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &counterService{
		repo: deps.Repository,
		clock: func() time.Time {
			return clock().UTC()
		},
		configured: make(map[string]string),
	}, nil
}

func (s *counterService) Next(ctx context.Context, scope, name string, opts CounterGenerationOptions) (CounterValue, error) {
	scope = strings.TrimSpace(scope)
	name = strings.TrimSpace(name)
	if scope == "" {
		return CounterValue{}, fmt.Errorf("%w: scope is required", ErrCounterInvalidInput)
	}
	if name == "" {
		return CounterValue{}, fmt.Errorf("%w: name is required", ErrCounterInvalidInput)
	}

	counterID := scope + ":" + name
	if err := s.pushConfig(ctx, counterID, opts); err != nil {
		return CounterValue{}, err
	}

	value, err := s.repo.Next(ctx, counterID, opts.Step)
	if err != nil {
		return CounterValue{}, translateCounterError(err)
	}

	return CounterValue{Value: value, Formatted: format(s.clock(), value, opts)}, nil
}

// NextOrderNumber issues the next ORD<YYYYMMDD><6-digit> number from a
// per-day sequence. The transactional counter makes numbers collision free
// without a generate-and-retry loop.
func (s *counterService) NextOrderNumber(ctx context.Context) (string, error) {
	return s.nextDatedNumber(ctx, "orders", "ORD")
}

// NextRefundNumber issues the next REF<YYYYMMDD><6-digit> number.
func (s *counterService) NextRefundNumber(ctx context.Context) (string, error) {
	return s.nextDatedNumber(ctx, "refunds", "REF")
}

func (s *counterService) nextDatedNumber(ctx context.Context, scope, prefix string) (string, error) {
	day := s.clock().Format("20060102")
	max := int64(999999)
	result, err := s.Next(ctx, scope, day, CounterGenerationOptions{
		Step:     1,
		MaxValue: &max,
		Formatter: func(_ time.Time, seq int64) string {
			return fmt.Sprintf("%s%s%06d", prefix, day, seq)
		},
	})
	if err != nil {
		return "", err
	}
	return result.Formatted, nil
}

// pushConfig writes counter settings through to the repository, once per
// distinct configuration.
func (s *counterService) pushConfig(ctx context.Context, counterID string, opts CounterGenerationOptions) error {
	cfg := repositories.CounterConfig{MaxValue: opts.MaxValue, InitialValue: opts.InitialValue}
	if opts.Step > 0 {
		cfg.Step = opts.Step
	}
	if cfg.Step == 0 && cfg.MaxValue == nil && cfg.InitialValue == nil {
		return nil
	}
	signature := fmt.Sprintf("%d|%s|%s", cfg.Step, optInt64(cfg.MaxValue), optInt64(cfg.InitialValue))

	s.configMu.Lock()
	defer s.configMu.Unlock()

	if s.configured[counterID] == signature {
		return nil
	}
	if err := s.repo.Configure(ctx, counterID, cfg); err != nil {
		return err
	}
	s.configured[counterID] = signature
	return nil
}

func optInt64(v *int64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatInt(*v, 10)
}

func translateCounterError(err error) error {
	var counterErr *repositories.CounterError
	if errors.As(err, &counterErr) {
		switch counterErr.Code {
		case repositories.CounterErrorInvalidInput:
			return fmt.Errorf("%w: %s", ErrCounterInvalidInput, counterErr.Message)
		case repositories.CounterErrorExhausted:
			return fmt.Errorf("%w: %s", ErrCounterExhausted, counterErr.Message)
		}
	}
	return err
}

func format(now time.Time, value int64, opts CounterGenerationOptions) string {
	if opts.Formatter != nil {
		return opts.Formatter(now, value)
	}

	formatted := strconv.FormatInt(value, 10)
	if opts.PadLength > 0 {
		formatted = fmt.Sprintf("%0*d", opts.PadLength, value)
	}
	return opts.Prefix + formatted + opts.Suffix
}
