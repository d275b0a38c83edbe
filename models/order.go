package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/eggnest/eggs_backend/config"
	"bitbucket.org/eggnest/eggs_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is the ledger aggregate: one stocking or consuming request together
// with the allocation lines it produced. It owns its details (cascade delete);
// containers are referenced, never owned.
type Order struct {
	ID           int             `gorm:"primary_key" json:"id"`
	RoomId       uuid.UUID       `gorm:"index;not null" json:"room_id"`
	UserId       uuid.UUID       `gorm:"index;not null" json:"user_id"`
	Name         string          `gorm:"size:100;not null" json:"name"`
	OrderType    OrderType       `gorm:"type:enum('Stocking','Consuming');not null" json:"order_type"`
	RequestedQty int64           `gorm:"not null" json:"requested_qty"`
	TotalAmount  decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"total_amount"`
	Status       OrderStatus     `gorm:"type:enum('Entered','Pending','Processing','Retry','Completed','Cancelled');not null" json:"status"`
	OrderedAt    time.Time       `gorm:"index;not null" json:"ordered_at"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	Details      []OrderDetail   `gorm:"foreignKey:OrderId;constraint:OnDelete:CASCADE" json:"details"`
}

// OrderDetail links one order to one container: the quantity drawn from that
// container and the container's unit price copied at allocation time. Immutable
// once the parent order commits.
type OrderDetail struct {
	ID          int             `gorm:"primary_key" json:"id"`
	OrderId     int             `gorm:"index;not null" json:"order_id"`
	ContainerId int             `gorm:"index;not null" json:"container_id"`
	Qty         int64           `gorm:"not null" json:"qty"`
	Price       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"price"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Status      DetailStatus    `gorm:"type:enum('Normal','Cancelled');default:Normal" json:"status"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// UpdateAmount is the one canonical derivation of a consuming order's total:
// sum(detail.Price * detail.Qty). Stocking orders carry the purchase cost
// instead and never go through here.
func (o *Order) UpdateAmount() {
	total := decimal.Zero
	for i := range o.Details {
		detailAmount := o.Details[i].Price.Mul(decimal.NewFromInt(o.Details[i].Qty))
		o.Details[i].Amount = detailAmount
		total = total.Add(detailAmount)
	}
	o.TotalAmount = total
}

// ValidateDerivedAmount re-derives the total and compares it against what the
// aggregate currently carries. Called immediately before commit as a defense
// against partial-mutation bugs.
func (o *Order) ValidateDerivedAmount() error {
	total := decimal.Zero
	for i := range o.Details {
		total = total.Add(o.Details[i].Price.Mul(decimal.NewFromInt(o.Details[i].Qty)))
	}
	if !o.TotalAmount.Equal(total) {
		return errors.New("order total amount does not match sum of detail amounts")
	}
	return nil
}

// DetailQtySum adds up the allocated quantities across the order's details.
func (o *Order) DetailQtySum() int64 {
	var sum int64
	for i := range o.Details {
		sum += o.Details[i].Qty
	}
	return sum
}

func GetOrder(ctx context.Context, roomId string, id int) (*Order, error) {
	return utils.FetchModel[Order](ctx, roomId, id, "Details")
}

func ListOrders(ctx context.Context, roomId string) ([]*Order, error) {
	db := config.GetDB()
	var orders []*Order
	err := db.WithContext(ctx).
		Where("room_id = ?", roomId).
		Preload("Details").
		Order("ordered_at DESC, id DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
