package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByNumber(ctx context.Context, db *gorm.DB, number string) (*Invoice, error)
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error

	// UpdateStatus is a conditional move: it succeeds only when the invoice
	// is still in the expected state, and reports whether a row changed. A
	// move the transition table forbids returns ErrInvalidTransition.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to InvoiceStatus, now time.Time) (bool, error)
	MarkDelivered(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)

	// MarkCompleted and MarkRefunded move the invoice to a terminal state
	// from whichever escrow state it currently holds. The source states come
	// from the transition table; a terminal row is never matched.
	MarkCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	MarkRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)

	InsertMilestone(ctx context.Context, db *gorm.DB, milestone *Milestone) error
	FindMilestone(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Milestone, error)
	FindMilestoneByToken(ctx context.Context, db *gorm.DB, token string) (*Milestone, error)
	ListMilestones(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]Milestone, error)
	CountMilestonesBelowNotReleased(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, seq int) (int64, error)
	CountMilestonesNotReleased(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (int64, error)
	MarkMilestoneCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, releaseToken string, now time.Time) (bool, error)

	// MarkMilestonesDisputed freezes every non-released milestone of the
	// invoice so its release tokens stop working while a dispute is open.
	MarkMilestonesDisputed(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, now time.Time) (int64, error)

	// ClaimMilestoneRelease flips completed→released and clears the release
	// token in one statement; at most one caller wins per token.
	ClaimMilestoneRelease(ctx context.Context, db *gorm.DB, id snowflake.ID, token string, now time.Time) (bool, error)
}
