package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert reports ErrDisputeActive when the invoice already has an open
	// dispute.
	Insert(ctx context.Context, db *gorm.DB, dispute *Dispute) error
	FindByAdminToken(ctx context.Context, db *gorm.DB, token string) (*Dispute, error)
	FindOpenByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (*Dispute, error)
	ListOpen(ctx context.Context, db *gorm.DB) ([]Dispute, error)

	// Resolve flips open→resolved_* for exactly one caller.
	Resolve(ctx context.Context, db *gorm.DB, id snowflake.ID, to DisputeStatus, now time.Time) (bool, error)
}
