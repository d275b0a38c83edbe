package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// InvalidRequestError covers malformed inputs (non-positive quantity/amount,
// unknown room/user). Rejected before any container row is touched.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid request: %s", e.Reason)
}

func NewInvalidRequest(reason string) error {
	return &InvalidRequestError{Reason: reason}
}

// InsufficientStockError is returned when the room's eligible containers cannot
// satisfy a consume request. Shortfall is the unsatisfied quantity.
type InsufficientStockError struct {
	RoomId    string
	Requested int64
	Shortfall int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock in room %s: requested %d, short by %d", e.RoomId, e.Requested, e.Shortfall)
}

// OverAllocationError reports an internal invariant violation: the allocation
// loop produced more than was requested. Should be unreachable.
type OverAllocationError struct {
	RoomId    string
	Requested int64
	Allocated int64
}

func (e *OverAllocationError) Error() string {
	return fmt.Sprintf("over-allocation in room %s: requested %d, allocated %d", e.RoomId, e.Requested, e.Allocated)
}

// ConcurrencyConflictError is returned after exhausting retries on a
// serialization conflict. The caller may safely retry the whole request.
type ConcurrencyConflictError struct {
	RoomId   string
	Attempts int
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrent update conflict in room %s after %d attempts", e.RoomId, e.Attempts)
}

// NamingError aborts the whole operation: no order is created without a name.
type NamingError struct {
	Module string
	Err    error
}

func (e *NamingError) Error() string {
	return fmt.Sprintf("could not generate %s number: %v", e.Module, e.Err)
}

func (e *NamingError) Unwrap() error { return e.Err }

func IsInvalidRequest(err error) bool {
	var target *InvalidRequestError
	return errors.As(err, &target)
}

func IsInsufficientStock(err error) bool {
	var target *InsufficientStockError
	return errors.As(err, &target)
}

func IsConcurrencyConflict(err error) bool {
	var target *ConcurrencyConflictError
	return errors.As(err, &target)
}

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
