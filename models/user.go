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

type User struct {
	ID        uuid.UUID `gorm:"primary_key" json:"id"`
	Username  string    `gorm:"uniqueIndex;size:100;not null" json:"username" binding:"required"`
	Email     string    `gorm:"size:255" json:"email"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	Nickname  string    `gorm:"size:100" json:"nickname"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username string `json:"username" binding:"required,min=3,max=100"`
	Email    string `json:"email" binding:"omitempty,email"`
	Password string `json:"password" binding:"required,min=8"`
	Nickname string `json:"nickname"`
}

type SignInInput struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	db := config.GetDB()

	// username must be unique
	var count int64
	if err := db.WithContext(ctx).Model(&User{}).Where("username = ?", input.Username).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.NewInvalidRequest("username already taken")
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	nickname := input.Nickname
	if nickname == "" {
		nickname = input.Username
	}

	user := User{
		ID:       uuid.New(),
		Username: input.Username,
		Email:    input.Email,
		Password: string(hashed),
		Nickname: nickname,
	}

	// db action
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func SignIn(ctx context.Context, input *SignInInput) (*AuthPayload, error) {
	db := config.GetDB()

	var user User
	if err := db.WithContext(ctx).Where("username = ?", input.Username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewInvalidRequest("username or password incorrect")
		}
		return nil, err
	}
	if user.IsActive != nil && !*user.IsActive {
		return nil, utils.NewInvalidRequest("account disabled")
	}

	if err := utils.ComparePassword(user.Password, input.Password); err != nil {
		return nil, utils.NewInvalidRequest("username or password incorrect")
	}

	accessToken, err := utils.JwtGenerate(user.ID.String(), user.Username)
	if err != nil {
		return nil, err
	}

	refreshToken, err := CreateRefreshToken(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &AuthPayload{
		AccessToken:  accessToken,
		RefreshToken: refreshToken.Token,
		User:         &user,
	}, nil
}

func GetUser(ctx context.Context, id string) (*User, error) {
	return utils.FetchSingleModel[User](ctx, id)
}

func GetUserByUsername(ctx context.Context, username string) (*User, error) {
	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &user, nil
}

type UpdateProfileInput struct {
	Email    string `json:"email" binding:"omitempty,email"`
	Nickname string `json:"nickname"`
}

func UpdateProfile(ctx context.Context, id string, input *UpdateProfileInput) (*User, error) {
	db := config.GetDB()

	user, err := utils.FetchSingleModel[User](ctx, id)
	if err != nil {
		return nil, err
	}

	// db action
	if err := db.WithContext(ctx).Model(user).Updates(map[string]interface{}{
		"Email":    input.Email,
		"Nickname": input.Nickname,
	}).Error; err != nil {
		return nil, err
	}
	return user, nil
}
