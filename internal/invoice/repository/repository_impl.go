package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tumapay/tumapay/internal/invoice/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var item domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT id, invoice_number, seller_id, buyer_email, buyer_phone, gross_amount,
			currency, status, payment_type, created_at, expires_at, delivered_at, updated_at
		 FROM invoices
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByNumber(ctx context.Context, db *gorm.DB, number string) (*domain.Invoice, error) {
	var item domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT id, invoice_number, seller_id, buyer_email, buyer_phone, gross_amount,
			currency, status, payment_type, created_at, expires_at, delivered_at, updated_at
		 FROM invoices
		 WHERE invoice_number = ?
		 LIMIT 1`,
		number,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoices (
			id, invoice_number, seller_id, buyer_email, buyer_phone, gross_amount,
			currency, status, payment_type, created_at, expires_at, delivered_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.ID,
		invoice.InvoiceNumber,
		invoice.SellerID,
		invoice.BuyerEmail,
		invoice.BuyerPhone,
		invoice.GrossAmount,
		invoice.Currency,
		invoice.Status,
		invoice.PaymentType,
		invoice.CreatedAt,
		invoice.ExpiresAt,
		invoice.DeliveredAt,
		invoice.UpdatedAt,
	).Error
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.InvoiceStatus, now time.Time) (bool, error) {
	if !domain.CanTransition(from, to) {
		return false, domain.ErrInvalidTransition
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		to,
		now,
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkDelivered(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, delivered_at = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND delivered_at IS NULL`,
		domain.InvoiceStatusDelivered,
		now,
		now,
		id,
		domain.InvoiceStatusPaid,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	return r.markTerminal(ctx, db, id, domain.InvoiceStatusCompleted, now)
}

func (r *repo) MarkRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	return r.markTerminal(ctx, db, id, domain.InvoiceStatusRefunded, now)
}

func (r *repo) markTerminal(ctx context.Context, db *gorm.DB, id snowflake.ID, to domain.InvoiceStatus, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status IN ?`,
		to,
		now,
		id,
		domain.TransitionSources(to),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertMilestone(ctx context.Context, db *gorm.DB, milestone *domain.Milestone) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO milestones (id, invoice_id, seq, label, amount, status, release_token, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		milestone.ID,
		milestone.InvoiceID,
		milestone.Seq,
		milestone.Label,
		milestone.Amount,
		milestone.Status,
		milestone.ReleaseToken,
		milestone.UpdatedAt,
	).Error
}

func (r *repo) FindMilestone(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Milestone, error) {
	var item domain.Milestone
	err := db.WithContext(ctx).Raw(
		`SELECT id, invoice_id, seq, label, amount, status, release_token, updated_at
		 FROM milestones
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindMilestoneByToken(ctx context.Context, db *gorm.DB, token string) (*domain.Milestone, error) {
	var item domain.Milestone
	err := db.WithContext(ctx).Raw(
		`SELECT id, invoice_id, seq, label, amount, status, release_token, updated_at
		 FROM milestones
		 WHERE release_token = ?
		 LIMIT 1`,
		token,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListMilestones(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]domain.Milestone, error) {
	var items []domain.Milestone
	err := db.WithContext(ctx).Raw(
		`SELECT id, invoice_id, seq, label, amount, status, release_token, updated_at
		 FROM milestones
		 WHERE invoice_id = ?
		 ORDER BY seq ASC`,
		invoiceID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountMilestonesBelowNotReleased(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, seq int) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM milestones
		 WHERE invoice_id = ? AND seq < ? AND status <> ?`,
		invoiceID,
		seq,
		domain.MilestoneStatusReleased,
	).Scan(&count).Error
	return count, err
}

func (r *repo) CountMilestonesNotReleased(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM milestones
		 WHERE invoice_id = ? AND status <> ?`,
		invoiceID,
		domain.MilestoneStatusReleased,
	).Scan(&count).Error
	return count, err
}

func (r *repo) MarkMilestoneCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, releaseToken string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE milestones
		 SET status = ?, release_token = ?, updated_at = ?
		 WHERE id = ? AND status IN ?`,
		domain.MilestoneStatusCompleted,
		releaseToken,
		now,
		id,
		domain.MilestoneTransitionSources(domain.MilestoneStatusCompleted),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ClaimMilestoneRelease(ctx context.Context, db *gorm.DB, id snowflake.ID, token string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE milestones
		 SET status = ?, release_token = NULL, updated_at = ?
		 WHERE id = ? AND release_token = ? AND status IN ?`,
		domain.MilestoneStatusReleased,
		now,
		id,
		token,
		domain.MilestoneTransitionSources(domain.MilestoneStatusReleased),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkMilestonesDisputed(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE milestones
		 SET status = ?, updated_at = ?
		 WHERE invoice_id = ? AND status IN ?`,
		domain.MilestoneStatusDisputed,
		now,
		invoiceID,
		domain.MilestoneTransitionSources(domain.MilestoneStatusDisputed),
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
