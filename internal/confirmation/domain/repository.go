package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert reports false without error when the code or token collides
	// with an existing row, so the caller can regenerate and retry.
	Insert(ctx context.Context, db *gorm.DB, credential *Credential) (bool, error)
	FindByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (*Credential, error)
	FindByToken(ctx context.Context, db *gorm.DB, token string) (*Credential, error)

	// Claim flips is_used false→true for exactly one caller.
	Claim(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
}
