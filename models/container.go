package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/eggnest/eggs_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Container is one purchased lot of eggs. TotalQty, Amount and UnitPrice are
// fixed at creation; only RemainingQty (and Status) change afterwards, and only
// through the allocation path.
type Container struct {
	ID           int             `gorm:"primary_key" json:"id"`
	RoomId       uuid.UUID       `gorm:"index;not null" json:"room_id"`
	BuyerId      uuid.UUID       `gorm:"index;not null" json:"buyer_id"`
	Name         string          `gorm:"size:100;not null" json:"name"`
	PurchasedAt  time.Time       `gorm:"index;not null" json:"purchased_at"`
	TotalQty     int64           `gorm:"not null" json:"total_qty"`
	RemainingQty int64           `gorm:"not null" json:"remaining_qty"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"unit_price"`
	Status       ContainerStatus `gorm:"type:enum('Available','Depleted','Archived','Suspended');default:Available" json:"status"`
	Version      int             `gorm:"not null;default:0" json:"version"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeSave enforces internal invariants for container rows.
// RemainingQty must never leave [0, TotalQty]; a violation here means a bug in
// the allocation path, not bad user input.
func (c *Container) BeforeSave(tx *gorm.DB) error {
	if c == nil {
		return nil
	}
	if c.RemainingQty < 0 || c.RemainingQty > c.TotalQty {
		return fmt.Errorf("container %d remaining_qty %d out of range [0,%d]", c.ID, c.RemainingQty, c.TotalQty)
	}
	return nil
}

// UnitPriceFor computes the fixed per-egg price at batch creation:
// amount / totalQty rounded to 2 decimal places. It is never recomputed from
// the remaining quantity.
func UnitPriceFor(amount decimal.Decimal, totalQty int64) decimal.Decimal {
	return amount.Div(decimal.NewFromInt(totalQty)).Round(2)
}

// CreateContainer inserts a new batch with RemainingQty = TotalQty. It runs on
// the caller's transaction so the batch and its wrapping order commit together.
func CreateContainer(tx *gorm.DB, roomId uuid.UUID, buyerId uuid.UUID, name string, totalQty int64, amount decimal.Decimal, purchasedAt time.Time) (*Container, error) {
	if totalQty <= 0 {
		return nil, utils.NewInvalidRequest("container quantity must be positive")
	}
	if !amount.IsPositive() {
		return nil, utils.NewInvalidRequest("container amount must be positive")
	}

	container := Container{
		RoomId:       roomId,
		BuyerId:      buyerId,
		Name:         name,
		PurchasedAt:  purchasedAt,
		TotalQty:     totalQty,
		RemainingQty: totalQty,
		Amount:       amount,
		UnitPrice:    UnitPriceFor(amount, totalQty),
		Status:       ContainerStatusAvailable,
	}

	if err := tx.Create(&container).Error; err != nil {
		return nil, err
	}
	return &container, nil
}

// ListEligibleContainers loads the room's batches with stock left, oldest
// purchase first (id breaks timestamp ties for determinism), with a row
// write-lock so concurrent allocations against the same room serialize.
func ListEligibleContainers(tx *gorm.DB, roomId uuid.UUID) ([]*Container, error) {
	var containers []*Container
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("room_id = ? AND remaining_qty > 0 AND status NOT IN ?", roomId,
			[]ContainerStatus{ContainerStatusArchived, ContainerStatusSuspended}).
		Order("purchased_at, id").
		Find(&containers).Error
	if err != nil {
		return nil, err
	}
	return containers, nil
}

// PersistContainerDecrement writes an allocation's decrement with an optimistic
// version check on top of the row lock. RowsAffected == 0 means another writer
// got between our read and write; the caller aborts and retries the whole
// allocation.
func PersistContainerDecrement(tx *gorm.DB, container *Container, taken int64) error {
	newRemaining := container.RemainingQty
	if newRemaining < 0 || newRemaining+taken > container.TotalQty {
		return fmt.Errorf("container %d decrement out of range: remaining %d taken %d total %d",
			container.ID, newRemaining, taken, container.TotalQty)
	}

	status := container.Status
	if newRemaining == 0 {
		// Advisory transition; readers must not rely on it for eligibility.
		status = ContainerStatusDepleted
	}

	result := tx.Model(&Container{}).
		Where("id = ? AND version = ?", container.ID, container.Version).
		Updates(map[string]interface{}{
			"remaining_qty": newRemaining,
			"status":        status,
			"version":       gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return &utils.ConcurrencyConflictError{RoomId: container.RoomId.String(), Attempts: 1}
	}
	container.Version++
	container.Status = status
	return nil
}

func GetContainer(ctx context.Context, roomId string, id int) (*Container, error) {
	return utils.FetchModel[Container](ctx, roomId, id)
}

func ListContainers(ctx context.Context, roomId string) ([]*Container, error) {
	return utils.FetchAllModels[Container](ctx, roomId)
}

type RoomStockSummary struct {
	RoomId         string          `json:"room_id"`
	TotalQty       int64           `json:"total_qty"`
	RemainingQty   int64           `json:"remaining_qty"`
	OnHandValue    decimal.Decimal `json:"on_hand_value"`
	ContainerCount int64           `json:"container_count"`
}

// GetRoomStockSummary values remaining stock at each batch's fixed unit price.
func GetRoomStockSummary(ctx context.Context, roomId string) (*RoomStockSummary, error) {
	containers, err := ListContainers(ctx, roomId)
	if err != nil {
		return nil, err
	}

	summary := RoomStockSummary{RoomId: roomId, OnHandValue: decimal.Zero}
	for _, c := range containers {
		if c.Status == ContainerStatusArchived {
			continue
		}
		summary.TotalQty += c.TotalQty
		summary.RemainingQty += c.RemainingQty
		summary.OnHandValue = summary.OnHandValue.Add(c.UnitPrice.Mul(decimal.NewFromInt(c.RemainingQty)))
		summary.ContainerCount++
	}
	return &summary, nil
}
