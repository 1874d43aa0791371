package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tumapay/tumapay/internal/confirmation/domain"
	"github.com/tumapay/tumapay/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, gdb *gorm.DB, credential *domain.Credential) (bool, error) {
	err := gdb.WithContext(ctx).Exec(
		`INSERT INTO confirmation_tokens (id, invoice_id, code, token, is_used, created_at, used_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		credential.ID,
		credential.InvoiceID,
		credential.Code,
		credential.Token,
		credential.IsUsed,
		credential.CreatedAt,
		credential.UsedAt,
	).Error
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *repo) FindByInvoice(ctx context.Context, gdb *gorm.DB, invoiceID snowflake.ID) (*domain.Credential, error) {
	var item domain.Credential
	err := gdb.WithContext(ctx).Raw(
		`SELECT id, invoice_id, code, token, is_used, created_at, used_at
		 FROM confirmation_tokens
		 WHERE invoice_id = ?
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

func (r *repo) FindByToken(ctx context.Context, gdb *gorm.DB, token string) (*domain.Credential, error) {
	var item domain.Credential
	err := gdb.WithContext(ctx).Raw(
		`SELECT id, invoice_id, code, token, is_used, created_at, used_at
		 FROM confirmation_tokens
		 WHERE token = ?
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

func (r *repo) Claim(ctx context.Context, gdb *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := gdb.WithContext(ctx).Exec(
		`UPDATE confirmation_tokens
		 SET is_used = TRUE, used_at = ?
		 WHERE id = ? AND is_used = FALSE`,
		now,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
