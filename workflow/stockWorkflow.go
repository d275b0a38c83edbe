package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/eggnest/eggs_backend/config"
	"bitbucket.org/eggnest/eggs_backend/models"
	"bitbucket.org/eggnest/eggs_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type NewStockOrder struct {
	Qty         int64           `json:"qty" binding:"required,gt=0"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	PurchasedAt *time.Time      `json:"purchased_at"`
}

// CreateStockOrder registers a purchased container and the paper-trail order
// wrapping it. The order carries one opening detail of quantity 0 bound to the
// new container, which establishes provenance without affecting the
// conservation sums. The order amount is the caller-supplied purchase cost.
func CreateStockOrder(ctx context.Context, logger *logrus.Logger, input *NewStockOrder) (*models.Order, *models.Container, error) {

	roomId, ok := utils.GetRoomIdFromContext(ctx)
	if !ok || roomId == "" {
		return nil, nil, errors.New("room id is required")
	}
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == "" {
		return nil, nil, errors.New("user id is required")
	}
	username, _ := utils.GetUsernameFromContext(ctx)

	if input.Qty <= 0 {
		return nil, nil, utils.NewInvalidRequest("stock quantity must be positive")
	}
	if !input.Amount.IsPositive() {
		return nil, nil, utils.NewInvalidRequest("stock amount must be positive")
	}

	room, err := models.GetRoom(ctx, roomId)
	if err != nil {
		return nil, nil, utils.NewInvalidRequest("room not found")
	}
	if room.IsArchived != nil && *room.IsArchived {
		return nil, nil, utils.NewInvalidRequest("room is archived")
	}
	buyerId, err := uuid.Parse(userId)
	if err != nil {
		return nil, nil, utils.NewInvalidRequest("user id is not a valid uuid")
	}

	purchasedAt := time.Now()
	if input.PurchasedAt != nil {
		purchasedAt = *input.PurchasedAt
	}

	db := config.GetDB()
	roomKey := room.ID.String()

	redisLock, err := ObtainRoomRedisLock(roomKey)
	if err != nil {
		return nil, nil, err
	}
	defer ReleaseRoomRedisLock(redisLock)

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, nil, tx.Error
	}

	if err := AcquireRoomPostingLock(tx, roomKey); err != nil {
		tx.Rollback()
		return nil, nil, err
	}

	order, container, err := postStockOrder(tx, logger, room, buyerId, username, input, purchasedAt)

	// GET_LOCK is session-scoped: release on the transaction's connection while
	// it is still pinned, before Commit/Rollback returns it to the pool.
	ReleaseRoomPostingLock(tx, roomKey)

	if err != nil {
		tx.Rollback()
		return nil, nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, nil, err
	}

	return order, container, nil
}

func postStockOrder(tx *gorm.DB, logger *logrus.Logger, room *models.Room, buyerId uuid.UUID, username string, input *NewStockOrder, purchasedAt time.Time) (*models.Order, *models.Container, error) {
	roomKey := room.ID.String()

	name, err := models.NextOrderName(tx, room.ID, models.SeriesModuleStockOrder, username)
	if err != nil {
		return nil, nil, err
	}

	container, err := models.CreateContainer(tx, room.ID, buyerId, name, input.Qty, input.Amount, purchasedAt)
	if err != nil {
		if !utils.IsInvalidRequest(err) {
			config.LogError(logger, "stockWorkflow.go", "postStockOrder", "CreateContainer", input, err)
		}
		return nil, nil, err
	}

	order := models.Order{
		RoomId:       room.ID,
		UserId:       buyerId,
		Name:         name,
		OrderType:    models.OrderTypeStocking,
		RequestedQty: input.Qty,
		TotalAmount:  input.Amount,
		Status:       models.OrderStatusCompleted,
		OrderedAt:    purchasedAt,
		Details: []models.OrderDetail{
			{
				ContainerId: container.ID,
				Qty:         0,
				Price:       container.UnitPrice,
				Amount:      decimal.Zero,
				Status:      models.DetailStatusNormal,
			},
		},
	}

	if err := tx.Create(&order).Error; err != nil {
		return nil, nil, err
	}

	if err := CheckRoomConservation(tx, roomKey); err != nil {
		config.LogError(logger, "stockWorkflow.go", "postStockOrder", "CheckRoomConservation", roomKey, err)
		return nil, nil, err
	}

	return &order, container, nil
}
