package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Earning is the per-settlement referral credit. The reference carries the
// settlement unit identity ("invoice:<id>" or "milestone:<id>") and its
// unique index makes the credit once-only.
type Earning struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	ReferrerID   snowflake.ID `json:"referrer_id" gorm:"not null"`
	ReferredID   snowflake.ID `json:"referred_id" gorm:"not null"`
	Reference    string       `json:"reference" gorm:"type:text;not null;uniqueIndex"`
	GrossAmount  int64        `json:"gross_amount" gorm:"not null"`
	EarnedAmount int64        `json:"earned_amount" gorm:"not null"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null"`
}

func (Earning) TableName() string { return "referral_earnings" }

type Repository interface {
	// InsertEarning reports false when the reference was already credited.
	InsertEarning(ctx context.Context, db *gorm.DB, earning *Earning) (bool, error)
	ListByReferrer(ctx context.Context, db *gorm.DB, referrerID snowflake.ID) ([]Earning, error)
}
