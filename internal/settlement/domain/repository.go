package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertPayout(ctx context.Context, db *gorm.DB, payout *Payout) error
	InsertFailure(ctx context.Context, db *gorm.DB, failure *PayoutFailure) error
	ListPayoutsByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]Payout, error)
}
