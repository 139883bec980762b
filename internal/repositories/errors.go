package repositories

// Typed repository errors carry machine readable codes so services can map
// storage failures onto API error responses without string matching.

// InventoryErrorCode enumerates failure reasons for stock and reservation operations.
type InventoryErrorCode string

const (
	InventoryErrorUnknown                 InventoryErrorCode = "inventory_unknown"
	InventoryErrorInsufficientStock       InventoryErrorCode = "inventory_insufficient_stock"
	InventoryErrorStockNotFound           InventoryErrorCode = "inventory_stock_not_found"
	InventoryErrorReservationNotFound     InventoryErrorCode = "inventory_reservation_not_found"
	InventoryErrorInvalidReservationState InventoryErrorCode = "inventory_invalid_state"
)

// CounterErrorCode enumerates failure reasons for sequence counter operations.
type CounterErrorCode string

const (
	CounterErrorUnknown      CounterErrorCode = "counter_unknown"
	CounterErrorInvalidInput CounterErrorCode = "counter_invalid_input"
	CounterErrorExhausted    CounterErrorCode = "counter_exhausted"
)

// InventoryError reports a stock or reservation failure.
type InventoryError struct {
	Code    InventoryErrorCode
	Message string
	Err     error
}

func (e *InventoryError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *InventoryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewInventoryError builds an InventoryError, defaulting the message to the code.
func NewInventoryError(code InventoryErrorCode, message string, err error) *InventoryError {
	if message == "" {
		message = string(code)
	}
	return &InventoryError{Code: code, Message: message, Err: err}
}

// CounterError reports a sequence counter failure.
type CounterError struct {
	Code    CounterErrorCode
	Message string
	Err     error
}

func (e *CounterError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *CounterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewCounterError builds a CounterError, defaulting the message to the code.
func NewCounterError(code CounterErrorCode, message string, err error) *CounterError {
	if message == "" {
		message = string(code)
	}
	return &CounterError{Code: code, Message: message, Err: err}
}
