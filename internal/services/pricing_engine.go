package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/clearcart/api/internal/domain"
	"github.com/clearcart/api/internal/repositories"
)

var (
	// ErrPricingInvalidInput indicates the quote request is malformed.
	ErrPricingInvalidInput = errors.New("pricing engine: invalid input")
	// ErrPricingProductNotFound indicates the product does not exist in the catalog.
	ErrPricingProductNotFound = errors.New("pricing engine: product not found")
	// ErrPricingUnavailable indicates the catalog backend failed transiently.
	ErrPricingUnavailable = errors.New("pricing engine: unavailable")
)

// ProductPricingEngineDeps wires the catalog read model into the engine.
type ProductPricingEngineDeps struct {
	Catalog repositories.CatalogRepository
	Clock   func() time.Time
	Logger  func(context.Context, string, map[string]any)
}

type productPricingEngine struct {
	catalog repositories.CatalogRepository
	now     func() time.Time
	logger  func(context.Context, string, map[string]any)
}

// NewProductPricingEngine constructs a PricingEngine enforcing dependency validation.
func NewProductPricingEngine(deps ProductPricingEngineDeps) (PricingEngine, error) {
	if deps.Catalog == nil {
		return nil, errors.New("pricing engine: catalog repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &productPricingEngine{
		catalog: deps.Catalog,
		now:     func() time.Time { return clock().UTC() },
		logger:  logger,
	}, nil
}

// QuoteProduct prices quantity units of the product, applying the single
// eligible discount that yields the lowest final price. Discounts below their
// minimum quantity or minimum amount thresholds are skipped; a fixed-amount
// discount never takes the unit price below zero.
func (e *productPricingEngine) QuoteProduct(ctx context.Context, req PriceQuoteRequest) (PriceQuote, error) {
	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		return PriceQuote{}, fmt.Errorf("%w: product id is required", ErrPricingInvalidInput)
	}
	if req.Quantity <= 0 {
		return PriceQuote{}, fmt.Errorf("%w: quantity must be positive", ErrPricingInvalidInput)
	}

	product, err := e.catalog.GetProduct(ctx, productID)
	if err != nil {
		return PriceQuote{}, e.translateCatalogError(err)
	}

	now := e.now()
	discounts, err := e.catalog.ListActiveDiscounts(ctx, productID, now)
	if err != nil {
		return PriceQuote{}, e.translateCatalogError(err)
	}

	unitPrice := product.Price
	originalTotal := unitPrice * int64(req.Quantity)
	gateAmount := originalTotal
	if req.TotalAmount != nil {
		gateAmount = *req.TotalAmount
	}

	quote := PriceQuote{
		ProductID:         productID,
		Quantity:          req.Quantity,
		Currency:          product.Currency,
		OriginalUnitPrice: unitPrice,
		DiscountedUnit:    unitPrice,
		OriginalTotal:     originalTotal,
		DiscountedTotal:   originalTotal,
	}

	bestUnit := unitPrice
	var best *domain.Discount
	for i := range discounts {
		d := discounts[i]
		if !d.AppliesAt(now) {
			continue
		}
		if req.Quantity < d.MinQuantity {
			continue
		}
		if d.MinAmount != nil && gateAmount < *d.MinAmount {
			continue
		}

		candidate := discountedUnitPrice(unitPrice, d)
		if candidate < bestUnit {
			bestUnit = candidate
			best = &discounts[i]
		}
	}

	if best == nil {
		return quote, nil
	}

	quote.DiscountedUnit = bestUnit
	quote.DiscountedTotal = bestUnit * int64(req.Quantity)
	quote.DiscountAmount = quote.OriginalTotal - quote.DiscountedTotal
	if quote.OriginalTotal > 0 {
		quote.DiscountPercentage = float64(quote.DiscountAmount) / float64(quote.OriginalTotal) * 100
	}
	quote.Discount = &AppliedDiscount{
		DiscountID: best.ID,
		Name:       best.Name,
		Type:       best.Type,
		Value:      best.Value,
	}

	e.logger(ctx, "pricing_discount_applied", map[string]any{
		"productId":  productID,
		"discountId": best.ID,
		"quantity":   req.Quantity,
		"amount":     quote.DiscountAmount,
	})
	return quote, nil
}

func discountedUnitPrice(unit int64, d domain.Discount) int64 {
	switch d.Type {
	case domain.DiscountTypePercentage:
		reduced := unit - unit*d.Value/100
		if reduced < 0 {
			return 0
		}
		return reduced
	case domain.DiscountTypeFixedAmount:
		reduced := unit - d.Value
		if reduced < 0 {
			return 0
		}
		return reduced
	default:
		return unit
	}
}

func (e *productPricingEngine) translateCatalogError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrPricingProductNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrPricingUnavailable, err)
		}
	}
	return err
}
