package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/eggnest/eggs_backend/config"
	"bitbucket.org/eggnest/eggs_backend/models"
	"bitbucket.org/eggnest/eggs_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Serialization conflicts are retried with the whole allocation re-run from
// the original request; nothing from an aborted attempt survives the rollback.
const allocationMaxAttempts = 3

type NewConsumeOrder struct {
	Qty       int64      `json:"qty" binding:"required,gt=0"`
	OrderedAt *time.Time `json:"ordered_at"`
}

// CreateConsumeOrder satisfies a consume request from the room's stock, oldest
// batch first, and records the breakdown as an order with one detail per
// container drawn from. Fails whole: on any error no order, detail, or
// container change is persisted.
func CreateConsumeOrder(ctx context.Context, logger *logrus.Logger, input *NewConsumeOrder) (*models.Order, error) {

	roomId, ok := utils.GetRoomIdFromContext(ctx)
	if !ok || roomId == "" {
		return nil, errors.New("room id is required")
	}
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == "" {
		return nil, errors.New("user id is required")
	}
	username, _ := utils.GetUsernameFromContext(ctx)

	if input.Qty <= 0 {
		return nil, utils.NewInvalidRequest("consume quantity must be positive")
	}

	room, err := models.GetRoom(ctx, roomId)
	if err != nil {
		return nil, utils.NewInvalidRequest("room not found")
	}
	if room.IsArchived != nil && *room.IsArchived {
		return nil, utils.NewInvalidRequest("room is archived")
	}
	consumerId, err := uuid.Parse(userId)
	if err != nil {
		return nil, utils.NewInvalidRequest("user id is not a valid uuid")
	}

	orderedAt := time.Now()
	if input.OrderedAt != nil {
		orderedAt = *input.OrderedAt
	}

	return runWithConflictRetry(logger, roomId, allocationMaxAttempts, func() (*models.Order, error) {
		return consumeOnce(ctx, logger, room, consumerId, username, input.Qty, orderedAt)
	})
}

// runWithConflictRetry re-runs fn while it fails with a serialization
// conflict, up to maxAttempts. fn rolls back aborted attempts, so every retry
// starts from clean state. Any other error is returned as is.
func runWithConflictRetry(logger *logrus.Logger, roomId string, maxAttempts int, fn func() (*models.Order, error)) (*models.Order, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		order, err := fn()
		if err == nil {
			return order, nil
		}
		if !utils.IsConcurrencyConflict(err) {
			return nil, err
		}
		lastErr = err
	}

	config.LogError(logger, "consumeWorkflow.go", "runWithConflictRetry", "RetriesExhausted", roomId, lastErr)
	return nil, &utils.ConcurrencyConflictError{RoomId: roomId, Attempts: maxAttempts}
}

func consumeOnce(ctx context.Context, logger *logrus.Logger, room *models.Room, userId uuid.UUID, username string, qty int64, orderedAt time.Time) (*models.Order, error) {
	db := config.GetDB()
	roomKey := room.ID.String()

	redisLock, err := ObtainRoomRedisLock(roomKey)
	if err != nil {
		return nil, err
	}
	defer ReleaseRoomRedisLock(redisLock)

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	if err := AcquireRoomPostingLock(tx, roomKey); err != nil {
		tx.Rollback()
		return nil, err
	}

	order, err := postConsumeOrder(tx, logger, room, userId, username, qty, orderedAt)

	// GET_LOCK is session-scoped: release on the transaction's connection while
	// it is still pinned, before Commit/Rollback returns it to the pool.
	ReleaseRoomPostingLock(tx, roomKey)

	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return order, nil
}

func postConsumeOrder(tx *gorm.DB, logger *logrus.Logger, room *models.Room, userId uuid.UUID, username string, qty int64, orderedAt time.Time) (*models.Order, error) {
	roomKey := room.ID.String()

	name, err := models.NextOrderName(tx, room.ID, models.SeriesModuleConsumeOrder, username)
	if err != nil {
		return nil, err
	}

	allocations, err := AllocateStock(tx, logger, room.ID, qty)
	if err != nil {
		return nil, err
	}

	order := models.Order{
		RoomId:       room.ID,
		UserId:       userId,
		Name:         name,
		OrderType:    models.OrderTypeConsuming,
		RequestedQty: qty,
		Status:       models.OrderStatusCompleted,
		OrderedAt:    orderedAt,
	}
	for _, a := range allocations {
		order.Details = append(order.Details, models.OrderDetail{
			ContainerId: a.ContainerId,
			Qty:         a.Qty,
			Price:       a.UnitPrice,
			Status:      models.DetailStatusNormal,
		})
	}

	// canonical amount derivation; asserted again just below
	order.UpdateAmount()
	if err := order.ValidateDerivedAmount(); err != nil {
		config.LogError(logger, "consumeWorkflow.go", "postConsumeOrder", "ValidateDerivedAmount", order, err)
		return nil, err
	}
	if order.DetailQtySum() != qty {
		err := &utils.OverAllocationError{RoomId: roomKey, Requested: qty, Allocated: order.DetailQtySum()}
		config.LogError(logger, "consumeWorkflow.go", "postConsumeOrder", "DetailQtySum", order, err)
		return nil, err
	}

	if err := tx.Create(&order).Error; err != nil {
		return nil, err
	}

	if err := CheckRoomConservation(tx, roomKey); err != nil {
		config.LogError(logger, "consumeWorkflow.go", "postConsumeOrder", "CheckRoomConservation", roomKey, err)
		return nil, err
	}

	return &order, nil
}
