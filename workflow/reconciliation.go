package workflow

import (
	"fmt"

	"bitbucket.org/eggnest/eggs_backend/models"
	"bitbucket.org/eggnest/eggs_backend/utils"
	"gorm.io/gorm"
)

// reconcileAllocations enforces the all-or-nothing rule after the allocation
// loop: a shortfall fails the whole request, and an allocation total above the
// request is an internal invariant violation (structurally impossible with
// taken = min(...), but checked anyway).
func reconcileAllocations(roomId string, requestedQty int64, allocations []Allocation, shortfall int64) error {
	var allocated int64
	for _, a := range allocations {
		allocated += a.Qty
	}

	if allocated > requestedQty || shortfall < 0 {
		return &utils.OverAllocationError{
			RoomId:    roomId,
			Requested: requestedQty,
			Allocated: allocated,
		}
	}

	if shortfall > 0 {
		return &utils.InsufficientStockError{
			RoomId:    roomId,
			Requested: requestedQty,
			Shortfall: shortfall,
		}
	}

	if allocated != requestedQty {
		// shortfall said zero but the sums disagree; same class of bug.
		return &utils.OverAllocationError{
			RoomId:    roomId,
			Requested: requestedQty,
			Allocated: allocated,
		}
	}

	return nil
}

// CheckRoomConservation asserts, on the posting transaction, that eggs drawn
// from the room's containers equal eggs recorded on its order details:
// sum(total_qty - remaining_qty) == sum(detail.qty). Run immediately before
// commit; a mismatch aborts the transaction.
func CheckRoomConservation(tx *gorm.DB, roomId string) error {
	var consumed int64
	err := tx.Model(&models.Container{}).
		Where("room_id = ?", roomId).
		Select("COALESCE(SUM(total_qty - remaining_qty), 0)").
		Scan(&consumed).Error
	if err != nil {
		return err
	}

	var recorded int64
	err = tx.Model(&models.OrderDetail{}).
		Joins("INNER JOIN orders ON orders.id = order_details.order_id").
		Where("orders.room_id = ? AND order_details.status = ?", roomId, models.DetailStatusNormal).
		Select("COALESCE(SUM(order_details.qty), 0)").
		Scan(&recorded).Error
	if err != nil {
		return err
	}

	if consumed != recorded {
		return fmt.Errorf("conservation violated in room %s: containers consumed %d, details recorded %d", roomId, consumed, recorded)
	}
	return nil
}
