package domain

// PriceQuote captures the outcome of pricing a single product line. Amounts
// are per-line totals in minor units unless noted otherwise.
type PriceQuote struct {
	ProductID          string
	Quantity           int
	Currency           string
	OriginalUnitPrice  int64
	DiscountedUnit     int64
	OriginalTotal      int64
	DiscountedTotal    int64
	DiscountAmount     int64
	DiscountPercentage float64
	Discount           *AppliedDiscount
}

// AppliedDiscount describes the discount rule selected for a quote.
type AppliedDiscount struct {
	DiscountID string
	Name       string
	Type       DiscountType
	Value      int64
}

// CartValidationResult reports the outcome of re-checking a cart against live
// catalog and stock data. Repairs applied during validation are listed in
// UpdatedItems.
type CartValidationResult struct {
	Valid        bool
	Errors       []CartValidationIssue
	Warnings     []CartValidationIssue
	UpdatedItems []CartItem
}

// CartValidationIssue describes a single problem found while validating a cart.
type CartValidationIssue struct {
	ItemID    string
	ProductID string
	Code      string
	Message   string
	Available int
}
