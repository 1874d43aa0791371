package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByReference(ctx context.Context, db *gorm.DB, reference string) (*Payment, error)
	FindLatestByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (*Payment, error)
	FirstAttemptAt(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (*time.Time, error)
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)

	// ClaimProcessed inserts the idempotency marker with conflict-ignore;
	// only the caller that actually inserted the row wins.
	ClaimProcessed(ctx context.Context, db *gorm.DB, reference string, now time.Time) (bool, error)
}
