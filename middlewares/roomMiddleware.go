package middlewares

import (
	"net/http"

	"bitbucket.org/eggnest/eggs_backend/models"
	"bitbucket.org/eggnest/eggs_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RoomMemberMiddleware resolves the :roomId path parameter, checks that the
// caller belongs to the room, and stashes the room id in the request context.
func RoomMemberMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		roomId := c.Param("roomId")
		if _, err := uuid.Parse(roomId); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
			c.Abort()
			return
		}

		userId, ok := utils.GetUserIdFromContext(c.Request.Context())
		if !ok || userId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		if _, err := models.GetRoomMember(c.Request.Context(), roomId, userId); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this room"})
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(utils.SetRoomIdInContext(c.Request.Context(), roomId))
		c.Next()
	}
}
