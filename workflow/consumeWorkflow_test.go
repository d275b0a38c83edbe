package workflow

import (
	"errors"
	"testing"

	"bitbucket.org/eggnest/eggs_backend/models"
	"bitbucket.org/eggnest/eggs_backend/utils"
	"github.com/sirupsen/logrus"
)

func TestRunWithConflictRetry_ExhaustsBoundedAttempts(t *testing.T) {
	logger := logrus.New()
	calls := 0

	_, err := runWithConflictRetry(logger, "room-1", allocationMaxAttempts, func() (*models.Order, error) {
		calls++
		return nil, &utils.ConcurrencyConflictError{RoomId: "room-1", Attempts: 1}
	})

	if calls != allocationMaxAttempts {
		t.Fatalf("expected %d attempts, got %d", allocationMaxAttempts, calls)
	}
	var conflict *utils.ConcurrencyConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConcurrencyConflictError, got %v", err)
	}
	if conflict.Attempts != allocationMaxAttempts {
		t.Fatalf("final error reports %d attempts, want %d", conflict.Attempts, allocationMaxAttempts)
	}
}

func TestRunWithConflictRetry_SucceedsAfterConflict(t *testing.T) {
	logger := logrus.New()
	calls := 0
	want := &models.Order{Name: "CO-alice-1"}

	order, err := runWithConflictRetry(logger, "room-1", allocationMaxAttempts, func() (*models.Order, error) {
		calls++
		if calls == 1 {
			return nil, &utils.ConcurrencyConflictError{RoomId: "room-1", Attempts: 1}
		}
		return want, nil
	})

	if err != nil {
		t.Fatalf("expected success on second attempt: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
	if order != want {
		t.Fatalf("returned order is not the one fn produced")
	}
}

func TestRunWithConflictRetry_DoesNotRetryOtherErrors(t *testing.T) {
	logger := logrus.New()
	calls := 0

	_, err := runWithConflictRetry(logger, "room-1", allocationMaxAttempts, func() (*models.Order, error) {
		calls++
		return nil, &utils.InsufficientStockError{RoomId: "room-1", Requested: 5, Shortfall: 5}
	})

	if calls != 1 {
		t.Fatalf("insufficient stock must not be retried, got %d attempts", calls)
	}
	if !utils.IsInsufficientStock(err) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
}
