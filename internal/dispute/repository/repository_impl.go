package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tumapay/tumapay/internal/dispute/domain"
	"github.com/tumapay/tumapay/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, gdb *gorm.DB, dispute *domain.Dispute) error {
	err := gdb.WithContext(ctx).Exec(
		`INSERT INTO disputes (id, invoice_id, opened_by, reason, admin_token, status, opened_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		dispute.ID,
		dispute.InvoiceID,
		dispute.OpenedBy,
		dispute.Reason,
		dispute.AdminToken,
		dispute.Status,
		dispute.OpenedAt,
	).Error
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ErrDisputeActive
		}
		return err
	}
	return nil
}

func (r *repo) FindByAdminToken(ctx context.Context, gdb *gorm.DB, token string) (*domain.Dispute, error) {
	var item domain.Dispute
	err := gdb.WithContext(ctx).Raw(
		`SELECT id, invoice_id, opened_by, reason, admin_token, status, opened_at, resolved_at
		 FROM disputes
		 WHERE admin_token = ?
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

func (r *repo) FindOpenByInvoice(ctx context.Context, gdb *gorm.DB, invoiceID snowflake.ID) (*domain.Dispute, error) {
	var item domain.Dispute
	err := gdb.WithContext(ctx).Raw(
		`SELECT id, invoice_id, opened_by, reason, admin_token, status, opened_at, resolved_at
		 FROM disputes
		 WHERE invoice_id = ? AND status = ?
		 LIMIT 1`,
		invoiceID,
		domain.DisputeStatusOpen,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListOpen(ctx context.Context, gdb *gorm.DB) ([]domain.Dispute, error) {
	var items []domain.Dispute
	err := gdb.WithContext(ctx).Raw(
		`SELECT id, invoice_id, opened_by, reason, admin_token, status, opened_at, resolved_at
		 FROM disputes
		 WHERE status = ?
		 ORDER BY opened_at ASC`,
		domain.DisputeStatusOpen,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Resolve(ctx context.Context, gdb *gorm.DB, id snowflake.ID, to domain.DisputeStatus, now time.Time) (bool, error) {
	res := gdb.WithContext(ctx).Exec(
		`UPDATE disputes
		 SET status = ?, resolved_at = ?
		 WHERE id = ? AND status = ?`,
		to,
		now,
		id,
		domain.DisputeStatusOpen,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
