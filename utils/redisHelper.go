package utils

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"bitbucket.org/eggnest/eggs_backend/config"
)

func GetCacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN"))
	if err != nil {
		lifespan = 1
	}
	return time.Duration(lifespan) * time.Hour
}

/* room cache */

func roomKey(roomId string) string {
	return fmt.Sprintf("Room:%s", roomId)
}

func CacheRoom(roomId string, room any) error {
	return config.SetRedisObject(roomKey(roomId), room, GetCacheLifespan())
}

func GetCachedRoom(roomId string, dest any) (bool, error) {
	return config.GetRedisObject(roomKey(roomId), dest)
}

func ClearRoomCache(roomId string) error {
	return config.RemoveRedisKey(roomKey(roomId))
}

/* room membership cache */

func membershipKey(roomId string, userId string) string {
	return fmt.Sprintf("RoomMember:%s:%s", roomId, userId)
}

func CacheRoomMembership(roomId string, userId string, role string) error {
	return config.SetRedisValue(membershipKey(roomId, userId), role, GetCacheLifespan())
}

func GetCachedRoomMembership(roomId string, userId string) (string, bool, error) {
	return config.GetRedisValue(membershipKey(roomId, userId))
}

func ClearRoomMembership(roomId string, userId string) error {
	return config.RemoveRedisKey(membershipKey(roomId, userId))
}
