package workflow

import (
	"bitbucket.org/eggnest/eggs_backend/config"
	"bitbucket.org/eggnest/eggs_backend/models"
	"bitbucket.org/eggnest/eggs_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Allocation is one draw against one container: the quantity taken and the
// container's fixed unit price copied at allocation time.
type Allocation struct {
	ContainerId int
	Qty         int64
	UnitPrice   decimal.Decimal
}

// allocateAcross walks the containers in the order given (callers pass them
// oldest purchase first) and fills the request batch by batch, mutating the
// in-memory RemainingQty as it goes. Returns the allocations and the quantity
// that could not be satisfied.
func allocateAcross(containers []*models.Container, requestedQty int64) ([]Allocation, int64) {
	remainingToPick := requestedQty
	allocations := make([]Allocation, 0, len(containers))

	for _, container := range containers {
		if remainingToPick <= 0 {
			break
		}
		taken := remainingToPick
		if container.RemainingQty < taken {
			taken = container.RemainingQty
		}
		if taken <= 0 {
			continue
		}
		allocations = append(allocations, Allocation{
			ContainerId: container.ID,
			Qty:         taken,
			UnitPrice:   container.UnitPrice,
		})
		container.RemainingQty -= taken
		remainingToPick -= taken
	}

	return allocations, remainingToPick
}

// AllocateStock runs the FIFO allocation for one consume request inside the
// caller's transaction. It locks the room's eligible containers, fills the
// request oldest batch first, and persists the decrements. On shortfall it
// returns InsufficientStockError without having written anything, so the
// caller's rollback leaves no partial state ("all-or-nothing").
func AllocateStock(tx *gorm.DB, logger *logrus.Logger, roomId uuid.UUID, requestedQty int64) ([]Allocation, error) {
	if requestedQty <= 0 {
		return nil, utils.NewInvalidRequest("requested quantity must be positive")
	}

	containers, err := models.ListEligibleContainers(tx, roomId)
	if err != nil {
		config.LogError(logger, "allocation.go", "AllocateStock", "ListEligibleContainers", roomId, err)
		return nil, err
	}

	allocations, shortfall := allocateAcross(containers, requestedQty)

	if err := reconcileAllocations(roomId.String(), requestedQty, allocations, shortfall); err != nil {
		if !utils.IsInsufficientStock(err) {
			// Over-allocation means the loop itself is broken; log loud.
			config.LogError(logger, "allocation.go", "AllocateStock", "reconcile", allocations, err)
		}
		return nil, err
	}

	// Persist decrements only after reconciliation passed. The index pairs each
	// allocation with its (already mutated) container.
	allocIdx := 0
	for _, container := range containers {
		if allocIdx >= len(allocations) {
			break
		}
		if allocations[allocIdx].ContainerId != container.ID {
			continue
		}
		if err := models.PersistContainerDecrement(tx, container, allocations[allocIdx].Qty); err != nil {
			if !utils.IsConcurrencyConflict(err) {
				config.LogError(logger, "allocation.go", "AllocateStock", "PersistContainerDecrement", container.ID, err)
			}
			return nil, err
		}
		allocIdx++
	}

	return allocations, nil
}
