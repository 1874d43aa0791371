package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/tumapay/tumapay/internal/referral/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertEarning(ctx context.Context, db *gorm.DB, earning *domain.Earning) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO referral_earnings (id, referrer_id, referred_id, reference, gross_amount, earned_amount, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (reference) DO NOTHING`,
		earning.ID,
		earning.ReferrerID,
		earning.ReferredID,
		earning.Reference,
		earning.GrossAmount,
		earning.EarnedAmount,
		earning.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListByReferrer(ctx context.Context, db *gorm.DB, referrerID snowflake.ID) ([]domain.Earning, error) {
	var items []domain.Earning
	err := db.WithContext(ctx).Raw(
		`SELECT id, referrer_id, referred_id, reference, gross_amount, earned_amount, created_at
		 FROM referral_earnings
		 WHERE referrer_id = ?
		 ORDER BY created_at DESC, id DESC`,
		referrerID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
