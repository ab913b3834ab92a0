package stock

import (
	"errors"
	"fmt"
)

var ErrBillNotFound = errors.New("bill not found")

// InsufficientStockError names the product whose stock could not cover the
// requested quantity.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Insufficient stock for %s. Available: %d", e.Name, e.Available)
}

type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("Product not found: %s", e.ProductID)
}

func IsInsufficientStock(err error) (*InsufficientStockError, bool) {
	var target *InsufficientStockError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

func IsProductNotFound(err error) (*ProductNotFoundError, bool) {
	var target *ProductNotFoundError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
