package domain

import "errors"

var (
	// ErrNotFound is returned when a referenced record or product does not exist.
	ErrNotFound = errors.New("not found")
	// ErrQuotaExceeded is returned when a user's daily lookup budget is spent.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrMalformedProduct is returned for product payloads that cannot be priced.
	ErrMalformedProduct = errors.New("malformed product")
	// ErrInvalidStatus is returned for order status values outside the known set.
	ErrInvalidStatus = errors.New("invalid order status")
)
