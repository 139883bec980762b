package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/clearcart/api/internal/domain"
)

var pricingTestNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newPricingEngineForTest(t *testing.T, catalog *stubCatalogRepository) PricingEngine {
	t.Helper()
	engine, err := NewProductPricingEngine(ProductPricingEngineDeps{
		Catalog: catalog,
		Clock:   fixedClock(pricingTestNow),
	})
	if err != nil {
		t.Fatalf("NewProductPricingEngine: %v", err)
	}
	return engine
}

func TestQuoteProductWithoutDiscounts(t *testing.T) {
	catalog := &stubCatalogRepository{products: map[string]domain.Product{
		"prod-1": {ID: "prod-1", Price: 2500, Currency: "USD"},
	}}
	engine := newPricingEngineForTest(t, catalog)

	quote, err := engine.QuoteProduct(context.Background(), PriceQuoteRequest{ProductID: "prod-1", Quantity: 3})
	if err != nil {
		t.Fatalf("QuoteProduct: %v", err)
	}
	if quote.OriginalUnitPrice != 2500 || quote.DiscountedUnit != 2500 {
		t.Fatalf("unit = %d/%d", quote.OriginalUnitPrice, quote.DiscountedUnit)
	}
	if quote.OriginalTotal != 7500 || quote.DiscountedTotal != 7500 {
		t.Fatalf("totals = %d/%d", quote.OriginalTotal, quote.DiscountedTotal)
	}
	if quote.Discount != nil || quote.DiscountAmount != 0 {
		t.Fatalf("unexpected discount: %+v", quote.Discount)
	}
	if quote.Currency != "USD" {
		t.Fatalf("currency = %q", quote.Currency)
	}
}

func TestQuoteProductPicksLowestFinalPrice(t *testing.T) {
	catalog := &stubCatalogRepository{
		products: map[string]domain.Product{
			"prod-1": {ID: "prod-1", Price: 1000, Currency: "USD"},
		},
		discounts: []domain.Discount{
			{ID: "disc-10pct", ProductID: "prod-1", Name: "Ten percent", Type: domain.DiscountTypePercentage, Value: 10, Active: true},
			{ID: "disc-250", ProductID: "prod-1", Name: "Flat 250", Type: domain.DiscountTypeFixedAmount, Value: 250, Active: true},
		},
	}
	engine := newPricingEngineForTest(t, catalog)

	quote, err := engine.QuoteProduct(context.Background(), PriceQuoteRequest{ProductID: "prod-1", Quantity: 2})
	if err != nil {
		t.Fatalf("QuoteProduct: %v", err)
	}
	if quote.Discount == nil || quote.Discount.DiscountID != "disc-250" {
		t.Fatalf("applied = %+v, want the fixed 250 discount", quote.Discount)
	}
	if quote.DiscountedUnit != 750 || quote.DiscountedTotal != 1500 {
		t.Fatalf("discounted = unit %d total %d", quote.DiscountedUnit, quote.DiscountedTotal)
	}
	if quote.DiscountAmount != 500 {
		t.Fatalf("amount = %d", quote.DiscountAmount)
	}
	if quote.DiscountPercentage != 25 {
		t.Fatalf("percentage = %v", quote.DiscountPercentage)
	}
}

func TestQuoteProductHonoursMinimumQuantity(t *testing.T) {
	catalog := &stubCatalogRepository{
		products: map[string]domain.Product{
			"prod-1": {ID: "prod-1", Price: 1000, Currency: "USD"},
		},
		discounts: []domain.Discount{
			{ID: "disc-bulk", ProductID: "prod-1", Type: domain.DiscountTypePercentage, Value: 20, MinQuantity: 5, Active: true},
		},
	}
	engine := newPricingEngineForTest(t, catalog)

	below, err := engine.QuoteProduct(context.Background(), PriceQuoteRequest{ProductID: "prod-1", Quantity: 4})
	if err != nil {
		t.Fatalf("QuoteProduct: %v", err)
	}
	if below.Discount != nil {
		t.Fatalf("discount applied below minimum quantity: %+v", below.Discount)
	}

	at, err := engine.QuoteProduct(context.Background(), PriceQuoteRequest{ProductID: "prod-1", Quantity: 5})
	if err != nil {
		t.Fatalf("QuoteProduct: %v", err)
	}
	if at.Discount == nil || at.DiscountedUnit != 800 {
		t.Fatalf("quote at threshold = %+v", at)
	}
}

func TestQuoteProductHonoursMinimumAmountGate(t *testing.T) {
	catalog := &stubCatalogRepository{
		products: map[string]domain.Product{
			"prod-1": {ID: "prod-1", Price: 1000, Currency: "USD"},
		},
		discounts: []domain.Discount{
			{ID: "disc-big", ProductID: "prod-1", Type: domain.DiscountTypePercentage, Value: 15, MinAmount: int64Ptr(5000), Active: true},
		},
	}
	engine := newPricingEngineForTest(t, catalog)

	// Line total 3000 is below the gate.
	below, err := engine.QuoteProduct(context.Background(), PriceQuoteRequest{ProductID: "prod-1", Quantity: 3})
	if err != nil {
		t.Fatalf("QuoteProduct: %v", err)
	}
	if below.Discount != nil {
		t.Fatalf("discount applied below minimum amount: %+v", below.Discount)
	}

	// An explicit pre-discount total can satisfy the gate regardless of line size.
	override, err := engine.QuoteProduct(context.Background(), PriceQuoteRequest{
		ProductID:   "prod-1",
		Quantity:    3,
		TotalAmount: int64Ptr(6000),
	})
	if err != nil {
		t.Fatalf("QuoteProduct: %v", err)
	}
	if override.Discount == nil || override.DiscountedUnit != 850 {
		t.Fatalf("quote with gate override = %+v", override)
	}
}

func TestQuoteProductFloorsFixedDiscountAtZero(t *testing.T) {
	catalog := &stubCatalogRepository{
		products: map[string]domain.Product{
			"prod-1": {ID: "prod-1", Price: 200, Currency: "USD"},
		},
		discounts: []domain.Discount{
			{ID: "disc-heavy", ProductID: "prod-1", Type: domain.DiscountTypeFixedAmount, Value: 500, Active: true},
		},
	}
	engine := newPricingEngineForTest(t, catalog)

	quote, err := engine.QuoteProduct(context.Background(), PriceQuoteRequest{ProductID: "prod-1", Quantity: 1})
	if err != nil {
		t.Fatalf("QuoteProduct: %v", err)
	}
	if quote.DiscountedUnit != 0 || quote.DiscountedTotal != 0 {
		t.Fatalf("discounted = unit %d total %d, want floored at zero", quote.DiscountedUnit, quote.DiscountedTotal)
	}
	if quote.DiscountAmount != 200 {
		t.Fatalf("amount = %d", quote.DiscountAmount)
	}
}

func TestQuoteProductSkipsExpiredWindow(t *testing.T) {
	ended := pricingTestNow.Add(-time.Hour)
	catalog := &stubCatalogRepository{
		products: map[string]domain.Product{
			"prod-1": {ID: "prod-1", Price: 1000, Currency: "USD"},
		},
		discounts: []domain.Discount{
			{ID: "disc-old", ProductID: "prod-1", Type: domain.DiscountTypePercentage, Value: 50, Active: true, EndsAt: &ended},
		},
	}
	engine := newPricingEngineForTest(t, catalog)

	quote, err := engine.QuoteProduct(context.Background(), PriceQuoteRequest{ProductID: "prod-1", Quantity: 1})
	if err != nil {
		t.Fatalf("QuoteProduct: %v", err)
	}
	if quote.Discount != nil {
		t.Fatalf("expired discount applied: %+v", quote.Discount)
	}
}

func TestQuoteProductSkipsExhaustedUsageLimit(t *testing.T) {
	catalog := &stubCatalogRepository{
		products: map[string]domain.Product{
			"prod-1": {ID: "prod-1", Price: 1000, Currency: "USD"},
		},
		discounts: []domain.Discount{
			{ID: "disc-limited", ProductID: "prod-1", Type: domain.DiscountTypePercentage, Value: 30, Active: true, UsageLimit: intPtr(100), UsageCount: 100},
		},
	}
	engine := newPricingEngineForTest(t, catalog)

	quote, err := engine.QuoteProduct(context.Background(), PriceQuoteRequest{ProductID: "prod-1", Quantity: 1})
	if err != nil {
		t.Fatalf("QuoteProduct: %v", err)
	}
	if quote.Discount != nil {
		t.Fatalf("exhausted discount applied: %+v", quote.Discount)
	}
}

func TestQuoteProductValidation(t *testing.T) {
	engine := newPricingEngineForTest(t, &stubCatalogRepository{})

	if _, err := engine.QuoteProduct(context.Background(), PriceQuoteRequest{Quantity: 1}); !errors.Is(err, ErrPricingInvalidInput) {
		t.Fatalf("missing product: err = %v", err)
	}
	if _, err := engine.QuoteProduct(context.Background(), PriceQuoteRequest{ProductID: "prod-1"}); !errors.Is(err, ErrPricingInvalidInput) {
		t.Fatalf("zero quantity: err = %v", err)
	}
}

func TestQuoteProductUnknownProduct(t *testing.T) {
	engine := newPricingEngineForTest(t, &stubCatalogRepository{})

	_, err := engine.QuoteProduct(context.Background(), PriceQuoteRequest{ProductID: "prod-9", Quantity: 1})
	if !errors.Is(err, ErrPricingProductNotFound) {
		t.Fatalf("err = %v, want ErrPricingProductNotFound", err)
	}
}
