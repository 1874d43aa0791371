package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type User struct {
	ID              snowflake.ID  `json:"id" gorm:"primaryKey"`
	Name            string        `json:"name" gorm:"type:text;not null"`
	Email           string        `json:"email" gorm:"type:text;not null;uniqueIndex"`
	Phone           string        `json:"phone" gorm:"type:text;not null"`
	PayoutNumber    string        `json:"payout_number" gorm:"type:text;not null"`
	ReferrerID      *snowflake.ID `json:"referrer_id"`
	ReferralBalance int64         `json:"referral_balance" gorm:"not null;default:0"`
	CreatedAt       time.Time     `json:"created_at" gorm:"not null"`
}

func (User) TableName() string { return "users" }

var ErrNotFound = errors.New("user_not_found")

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	IncrementReferralBalance(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64) error
}
