package utils

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorClassifiers(t *testing.T) {
	insufficient := &InsufficientStockError{RoomId: "r1", Requested: 7, Shortfall: 2}
	if !IsInsufficientStock(insufficient) {
		t.Fatal("IsInsufficientStock missed its own type")
	}
	if IsInsufficientStock(NewInvalidRequest("qty must be positive")) {
		t.Fatal("IsInsufficientStock matched an invalid-request error")
	}
	if !IsInvalidRequest(NewInvalidRequest("qty must be positive")) {
		t.Fatal("IsInvalidRequest missed its own type")
	}
	if !IsConcurrencyConflict(&ConcurrencyConflictError{RoomId: "r1", Attempts: 3}) {
		t.Fatal("IsConcurrencyConflict missed its own type")
	}

	wrapped := fmt.Errorf("consume order: %w", insufficient)
	if !IsInsufficientStock(wrapped) {
		t.Fatal("classifier must see through wrapping")
	}
}

func TestNamingErrorUnwrap(t *testing.T) {
	cause := errors.New("series row locked")
	err := &NamingError{Module: "SO", Err: cause}
	if !errors.Is(err, cause) {
		t.Fatal("NamingError must unwrap to its cause")
	}
}
