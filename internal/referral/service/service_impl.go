package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/tumapay/tumapay/internal/clock"
	"github.com/tumapay/tumapay/internal/referral/domain"
	userdomain "github.com/tumapay/tumapay/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	UserRepo userdomain.Repository
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	userRepo userdomain.Repository
}

func NewService(p Params) *Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("referral.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		userRepo: p.UserRepo,
	}
}

// CreditOnce records the earning for one settlement unit and bumps the
// referrer's balance. The earning insert is the claim: when the reference
// already exists the balance is left alone, so retries and races cannot
// double-credit.
func (s *Service) CreditOnce(ctx context.Context, referrerID, referredID snowflake.ID, reference string, gross, earned int64) error {
	inserted, err := s.repo.InsertEarning(ctx, s.db, &domain.Earning{
		ID:           s.genID.Generate(),
		ReferrerID:   referrerID,
		ReferredID:   referredID,
		Reference:    reference,
		GrossAmount:  gross,
		EarnedAmount: earned,
		CreatedAt:    s.clock.Now(),
	})
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}
	return s.userRepo.IncrementReferralBalance(ctx, s.db, referrerID, earned)
}

func (s *Service) Earnings(ctx context.Context, referrerID snowflake.ID) ([]domain.Earning, error) {
	return s.repo.ListByReferrer(ctx, s.db, referrerID)
}
