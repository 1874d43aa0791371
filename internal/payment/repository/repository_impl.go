package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tumapay/tumapay/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByReference(ctx context.Context, db *gorm.DB, reference string) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT id, invoice_id, external_reference, payer_number, amount, status, created_at
		 FROM payments
		 WHERE external_reference = ?
		 LIMIT 1`,
		reference,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindLatestByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT id, invoice_id, external_reference, payer_number, amount, status, created_at
		 FROM payments
		 WHERE invoice_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		invoiceID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FirstAttemptAt(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (*time.Time, error) {
	var ts *time.Time
	err := db.WithContext(ctx).Raw(
		`SELECT created_at
		 FROM payments
		 WHERE invoice_id = ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT 1`,
		invoiceID,
	).Scan(&ts).Error
	if err != nil {
		return nil, err
	}
	return ts, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (id, invoice_id, external_reference, payer_number, amount, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.InvoiceID,
		payment.ExternalReference,
		payment.PayerNumber,
		payment.Amount,
		payment.Status,
		payment.CreatedAt,
	).Error
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?
		 WHERE id = ? AND status = ?`,
		domain.PaymentStatusPaid,
		id,
		domain.PaymentStatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ClaimProcessed(ctx context.Context, db *gorm.DB, reference string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO processed_payments (reference, processed_at)
		 VALUES (?, ?)
		 ON CONFLICT (reference) DO NOTHING`,
		reference,
		now,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
