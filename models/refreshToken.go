package models

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"bitbucket.org/eggnest/eggs_backend/config"
	"bitbucket.org/eggnest/eggs_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RefreshToken struct {
	Token     string    `gorm:"primary_key;size:36" json:"token"`
	UserId    uuid.UUID `gorm:"index;not null" json:"user_id"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func refreshTokenLifespan() time.Duration {
	days, err := strconv.Atoi(os.Getenv("REFRESH_TOKEN_DAY_LIFESPAN"))
	if err != nil {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}

func CreateRefreshToken(ctx context.Context, userId uuid.UUID) (*RefreshToken, error) {
	db := config.GetDB()

	token := RefreshToken{
		Token:     uuid.NewString(),
		UserId:    userId,
		ExpiresAt: time.Now().Add(refreshTokenLifespan()),
	}
	if err := db.WithContext(ctx).Create(&token).Error; err != nil {
		return nil, err
	}
	return &token, nil
}

// RefreshAccessToken rotates the refresh token and issues a new access token.
func RefreshAccessToken(ctx context.Context, rawToken string) (*AuthPayload, error) {
	db := config.GetDB()

	var stored RefreshToken
	if err := db.WithContext(ctx).Where("token = ?", rawToken).First(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewInvalidRequest("refresh token not recognized")
		}
		return nil, err
	}
	if time.Now().After(stored.ExpiresAt) {
		return nil, utils.NewInvalidRequest("refresh token expired")
	}

	user, err := utils.FetchSingleModel[User](ctx, stored.UserId.String())
	if err != nil {
		return nil, err
	}

	accessToken, err := utils.JwtGenerate(user.ID.String(), user.Username)
	if err != nil {
		return nil, err
	}

	// db action: rotate
	tx := db.WithContext(ctx).Begin()
	if err := tx.Delete(&RefreshToken{}, "token = ?", stored.Token).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	next := RefreshToken{
		Token:     uuid.NewString(),
		UserId:    stored.UserId,
		ExpiresAt: time.Now().Add(refreshTokenLifespan()),
	}
	if err := tx.Create(&next).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &AuthPayload{
		AccessToken:  accessToken,
		RefreshToken: next.Token,
		User:         user,
	}, nil
}

// DeleteExpiredRefreshTokens is used by the periodic cleanup sweep.
func DeleteExpiredRefreshTokens(db *gorm.DB) (int64, error) {
	result := db.Where("expires_at < ?", time.Now()).Delete(&RefreshToken{})
	return result.RowsAffected, result.Error
}
