package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Error classes. Use errors.Is against these; the concrete types below carry the details.
var (
	ErrValidation          = errors.New("validation error")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDuplicateBatch      = errors.New("duplicate batch")
	ErrNotFound            = errors.New("not found")
)

// ValidationError is a caller-input problem: bad quantity, wrong location type, mismatched warehouse.
type ValidationError struct {
	Field   string
	Message string
}

func newValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InsufficientBalanceError reports a debit that would overdraw a location.
type InsufficientBalanceError struct {
	WarehouseID int
	LocationID  int
	ItemID      string
	Available   decimal.Decimal
	Requested   decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient stock at location %d for item %s: available=%s, requested=%s",
		e.LocationID, e.ItemID, e.Available.String(), e.Requested.String())
}

func (e *InsufficientBalanceError) Is(target error) bool { return target == ErrInsufficientBalance }

// DuplicateBatchError means the batch reference has already been posted.
type DuplicateBatchError struct {
	RefModel string
	RefID    string
}

func (e *DuplicateBatchError) Error() string {
	return fmt.Sprintf("batch ref %s/%s already posted", e.RefModel, e.RefID)
}

func (e *DuplicateBatchError) Is(target error) bool { return target == ErrDuplicateBatch }

// NotFoundError names the missing warehouse, location, item or bin.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func notFound(kind string, key any) *NotFoundError {
	return &NotFoundError{Kind: kind, Key: fmt.Sprint(key)}
}

func joinShortages(shortages []*InsufficientBalanceError) error {
	errs := make([]error, len(shortages))
	for i, s := range shortages {
		errs[i] = s
	}
	return errors.Join(errs...)
}
