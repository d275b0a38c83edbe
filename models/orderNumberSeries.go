package models

import (
	"errors"
	"fmt"
	"time"

	"bitbucket.org/eggnest/eggs_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	SeriesModuleStockOrder   = "SO"
	SeriesModuleConsumeOrder = "CO"
)

// OrderNumberSeries issues per-room serials for display names. One row per
// room+module; the serial is reserved inside the posting transaction so a
// rolled-back order releases its number with everything else.
type OrderNumberSeries struct {
	RoomId     uuid.UUID `gorm:"primaryKey;autoIncrement:false" json:"room_id"`
	ModuleName string    `gorm:"primaryKey;autoIncrement:false;size:10" json:"module_name"`
	Prefix     string    `gorm:"size:10;not null" json:"prefix"`
	NextSerial int64     `gorm:"not null;default:1" json:"next_serial"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NextOrderName reserves the next serial for room+module and formats the
// display name "<prefix>-<username>-<serial>". Any failure here must abort the
// whole operation: no order exists without a name.
func NextOrderName(tx *gorm.DB, roomId uuid.UUID, moduleName string, username string) (string, error) {
	if username == "" {
		return "", &utils.NamingError{Module: moduleName, Err: errors.New("username is required")}
	}

	var series OrderNumberSeries
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("room_id = ? AND module_name = ?", roomId, moduleName).
		First(&series).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		series = OrderNumberSeries{
			RoomId:     roomId,
			ModuleName: moduleName,
			Prefix:     moduleName,
			NextSerial: 1,
		}
		if err := tx.Create(&series).Error; err != nil {
			return "", &utils.NamingError{Module: moduleName, Err: err}
		}
	} else if err != nil {
		return "", &utils.NamingError{Module: moduleName, Err: err}
	}

	serial := series.NextSerial
	if err := tx.Model(&OrderNumberSeries{}).
		Where("room_id = ? AND module_name = ?", roomId, moduleName).
		Update("next_serial", serial+1).Error; err != nil {
		return "", &utils.NamingError{Module: moduleName, Err: err}
	}

	return FormatOrderName(series.Prefix, username, serial), nil
}

func FormatOrderName(prefix string, username string, serial int64) string {
	return fmt.Sprintf("%s-%s-%d", prefix, username, serial)
}
