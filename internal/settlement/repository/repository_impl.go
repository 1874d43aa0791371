package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/tumapay/tumapay/internal/settlement/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertPayout(ctx context.Context, db *gorm.DB, payout *domain.Payout) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payouts (id, invoice_id, milestone_id, recipient_id, recipient_number, amount, method, status, reference, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payout.ID,
		payout.InvoiceID,
		payout.MilestoneID,
		payout.RecipientID,
		payout.RecipientNumber,
		payout.Amount,
		payout.Method,
		payout.Status,
		payout.Reference,
		payout.CreatedAt,
	).Error
}

func (r *repo) InsertFailure(ctx context.Context, db *gorm.DB, failure *domain.PayoutFailure) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payout_failures (id, unit_type, unit_id, invoice_id, amount, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		failure.ID,
		failure.UnitType,
		failure.UnitID,
		failure.InvoiceID,
		failure.Amount,
		failure.Reason,
		failure.CreatedAt,
	).Error
}

func (r *repo) ListPayoutsByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]domain.Payout, error) {
	var items []domain.Payout
	err := db.WithContext(ctx).Raw(
		`SELECT id, invoice_id, milestone_id, recipient_id, recipient_number, amount, method, status, reference, created_at
		 FROM payouts
		 WHERE invoice_id = ?
		 ORDER BY created_at ASC, id ASC`,
		invoiceID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
