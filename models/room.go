package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/eggnest/eggs_backend/config"
	"bitbucket.org/eggnest/eggs_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Room is the tenancy boundary: every container and order belongs to exactly
// one room, and allocation never crosses rooms.
type Room struct {
	ID         uuid.UUID `gorm:"primary_key" json:"id"`
	Name       string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Code       string    `gorm:"uniqueIndex;size:10;not null" json:"code"`
	OwnerId    uuid.UUID `gorm:"index;not null" json:"owner_id"`
	IsArchived *bool     `gorm:"not null;default:false" json:"is_archived"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type RoomMember struct {
	RoomId    uuid.UUID `gorm:"primaryKey;autoIncrement:false" json:"room_id"`
	UserId    uuid.UUID `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	Role      RoomRole  `gorm:"type:enum('Owner','Member');not null" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewRoom struct {
	Name string `json:"name" binding:"required,max=100"`
}

// Join codes are allocated with a bounded retry so a pathological collision
// streak surfaces as an error instead of spinning.
const roomCodeMaxAttempts = 10

func allocateRoomCode(ctx context.Context, db *gorm.DB) (string, error) {
	for attempt := 0; attempt < roomCodeMaxAttempts; attempt++ {
		code := utils.GenerateRoomCode()
		var count int64
		if err := db.WithContext(ctx).Model(&Room{}).Where("code = ?", code).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", errors.New("could not allocate a unique room code")
}

func CreateRoom(ctx context.Context, input *NewRoom) (*Room, error) {
	db := config.GetDB()

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == "" {
		return nil, errors.New("user id is required")
	}
	ownerId, err := uuid.Parse(userId)
	if err != nil {
		return nil, utils.NewInvalidRequest("user id is not a valid uuid")
	}

	code, err := allocateRoomCode(ctx, db)
	if err != nil {
		return nil, err
	}

	room := Room{
		ID:      uuid.New(),
		Name:    input.Name,
		Code:    code,
		OwnerId: ownerId,
	}
	member := RoomMember{
		RoomId: room.ID,
		UserId: ownerId,
		Role:   RoomRoleOwner,
	}

	// db action
	tx := db.Begin()
	if err := tx.WithContext(ctx).Create(&room).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Create(&member).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &room, nil
}

type JoinRoomInput struct {
	Code string `json:"code" binding:"required,len=6"`
}

func JoinRoomByCode(ctx context.Context, input *JoinRoomInput) (*Room, error) {
	db := config.GetDB()

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == "" {
		return nil, errors.New("user id is required")
	}
	memberId, err := uuid.Parse(userId)
	if err != nil {
		return nil, utils.NewInvalidRequest("user id is not a valid uuid")
	}

	var room Room
	if err := db.WithContext(ctx).Where("code = ?", input.Code).First(&room).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewInvalidRequest("room not found")
		}
		return nil, err
	}
	if room.IsArchived != nil && *room.IsArchived {
		return nil, utils.NewInvalidRequest("room is archived")
	}

	var count int64
	if err := db.WithContext(ctx).Model(&RoomMember{}).
		Where("room_id = ? AND user_id = ?", room.ID, memberId).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return &room, nil
	}

	member := RoomMember{
		RoomId: room.ID,
		UserId: memberId,
		Role:   RoomRoleMember,
	}
	if err := db.WithContext(ctx).Create(&member).Error; err != nil {
		return nil, err
	}

	return &room, nil
}

// GetRoom resolves a room, redis first then db. Archiving clears the cache so
// the archived flag is never served stale.
func GetRoom(ctx context.Context, id string) (*Room, error) {
	var cached Room
	if found, err := utils.GetCachedRoom(id, &cached); err == nil && found {
		return &cached, nil
	}

	room, err := utils.FetchSingleModel[Room](ctx, id)
	if err != nil {
		return nil, err
	}
	// caching
	if err := utils.CacheRoom(id, room); err != nil {
		return nil, err
	}
	return room, nil
}

// GetRoomMember resolves the caller's membership, redis first then db.
func GetRoomMember(ctx context.Context, roomId string, userId string) (*RoomMember, error) {
	if role, found, err := utils.GetCachedRoomMembership(roomId, userId); err == nil && found {
		rid, rerr := uuid.Parse(roomId)
		uid, uerr := uuid.Parse(userId)
		if rerr == nil && uerr == nil {
			return &RoomMember{RoomId: rid, UserId: uid, Role: RoomRole(role)}, nil
		}
	}

	db := config.GetDB()
	var member RoomMember
	if err := db.WithContext(ctx).Where("room_id = ? AND user_id = ?", roomId, userId).First(&member).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	// caching
	if err := utils.CacheRoomMembership(roomId, userId, string(member.Role)); err != nil {
		return nil, err
	}
	return &member, nil
}

func ListRoomMembers(ctx context.Context, roomId string) ([]*RoomMember, error) {
	return utils.FetchAllModels[RoomMember](ctx, roomId)
}

func ListRoomsForUser(ctx context.Context, userId string) ([]*Room, error) {
	db := config.GetDB()
	var rooms []*Room
	err := db.WithContext(ctx).
		Joins("INNER JOIN room_members ON room_members.room_id = rooms.id").
		Where("room_members.user_id = ?", userId).
		Order("rooms.created_at").
		Find(&rooms).Error
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

// LeaveRoom removes the caller's membership. The owner cannot leave; they
// archive the room instead.
func LeaveRoom(ctx context.Context, roomId string) error {
	db := config.GetDB()

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == "" {
		return errors.New("user id is required")
	}

	room, err := utils.FetchSingleModel[Room](ctx, roomId)
	if err != nil {
		return err
	}
	if room.OwnerId.String() == userId {
		return utils.NewInvalidRequest("the room owner cannot leave; archive the room instead")
	}

	result := db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomId, userId).
		Delete(&RoomMember{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}

	return utils.ClearRoomMembership(roomId, userId)
}

// ArchiveRoom soft-deletes a room: the room is flagged and its containers move
// to Archived so history is preserved while further stocking/consuming is
// rejected. Only the room owner may archive.
func ArchiveRoom(ctx context.Context, roomId string) (*Room, error) {
	db := config.GetDB()

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == "" {
		return nil, errors.New("user id is required")
	}

	room, err := utils.FetchSingleModel[Room](ctx, roomId)
	if err != nil {
		return nil, err
	}
	if room.OwnerId.String() != userId {
		return nil, utils.NewInvalidRequest("only the room owner can archive")
	}
	if room.IsArchived != nil && *room.IsArchived {
		return room, nil
	}

	// db action
	tx := db.Begin()
	if err := tx.WithContext(ctx).Model(room).Updates(map[string]interface{}{
		"IsArchived": utils.NewTrue(),
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Model(&Container{}).
		Where("room_id = ?", room.ID).
		Update("status", ContainerStatusArchived).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	if err := utils.ClearRoomCache(roomId); err != nil {
		return nil, err
	}

	return room, nil
}
