package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/tumapay/tumapay/internal/clock"
	"github.com/tumapay/tumapay/internal/invoice/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("invoice.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

type MilestoneInput struct {
	Label  string
	Amount int64
}

type CreateInvoiceInput struct {
	SellerID    snowflake.ID
	BuyerEmail  string
	BuyerPhone  string
	GrossAmount int64
	Currency    string
	Milestones  []MilestoneInput
}

// Create issues a new invoice; when milestones are given their amounts must
// sum exactly to the gross amount.
func (s *Service) Create(ctx context.Context, input CreateInvoiceInput) (*domain.Invoice, error) {
	now := s.clock.Now()
	paymentType := domain.PaymentTypeSingle
	if len(input.Milestones) > 0 {
		paymentType = domain.PaymentTypeInstallment
		var sum int64
		for _, m := range input.Milestones {
			sum += m.Amount
		}
		if sum != input.GrossAmount {
			return nil, domain.ErrMilestoneAmountsSum
		}
	}

	invoice := domain.Invoice{
		ID:            s.genID.Generate(),
		InvoiceNumber: s.newInvoiceNumber(),
		SellerID:      input.SellerID,
		BuyerEmail:    strings.TrimSpace(input.BuyerEmail),
		BuyerPhone:    strings.TrimSpace(input.BuyerPhone),
		GrossAmount:   input.GrossAmount,
		Currency:      strings.ToUpper(strings.TrimSpace(input.Currency)),
		Status:        domain.InvoiceStatusPending,
		PaymentType:   paymentType,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &invoice); err != nil {
			return err
		}
		for i, m := range input.Milestones {
			milestone := domain.Milestone{
				ID:        s.genID.Generate(),
				InvoiceID: invoice.ID,
				Seq:       i + 1,
				Label:     strings.TrimSpace(m.Label),
				Amount:    m.Amount,
				Status:    domain.MilestoneStatusPending,
				UpdatedAt: now,
			}
			if err := s.repo.InsertMilestone(ctx, tx, &milestone); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// InvoiceDetail is an invoice with its milestones, when it has any.
type InvoiceDetail struct {
	domain.Invoice
	Milestones []domain.Milestone `json:"milestones,omitempty"`
}

func (s *Service) Get(ctx context.Context, invoiceNumber string) (*InvoiceDetail, error) {
	invoice, err := s.repo.FindByNumber(ctx, s.db, invoiceNumber)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, domain.ErrNotFound
	}

	detail := InvoiceDetail{Invoice: *invoice}
	if invoice.PaymentType == domain.PaymentTypeInstallment {
		milestones, err := s.repo.ListMilestones(ctx, s.db, invoice.ID)
		if err != nil {
			return nil, err
		}
		detail.Milestones = milestones
	}
	return &detail, nil
}

// MarkDelivered moves a paid invoice to delivered and stamps the delivery
// time that anchors the dispute window.
func (s *Service) MarkDelivered(ctx context.Context, invoiceNumber string) (*domain.Invoice, error) {
	invoice, err := s.repo.FindByNumber(ctx, s.db, invoiceNumber)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, domain.ErrNotFound
	}

	now := s.clock.Now()
	updated, err := s.repo.MarkDelivered(ctx, s.db, invoice.ID, now)
	if err != nil {
		return nil, err
	}
	if !updated {
		if invoice.DeliveredAt != nil {
			return nil, domain.ErrAlreadyDelivered
		}
		return nil, domain.ErrNotPaid
	}

	invoice.Status = domain.InvoiceStatusDelivered
	invoice.DeliveredAt = &now
	return invoice, nil
}

// CompleteMilestone marks a milestone ready for release and mints its
// one-time release token. A milestone may only complete once every
// lower-numbered milestone of the invoice has been released.
func (s *Service) CompleteMilestone(ctx context.Context, milestoneID snowflake.ID) (*domain.Milestone, error) {
	milestone, err := s.repo.FindMilestone(ctx, s.db, milestoneID)
	if err != nil {
		return nil, err
	}
	if milestone == nil {
		return nil, domain.ErrMilestoneNotFound
	}
	if milestone.Status != domain.MilestoneStatusPending {
		return nil, domain.ErrMilestoneNotPending
	}

	invoice, err := s.repo.FindByID(ctx, s.db, milestone.InvoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, domain.ErrNotFound
	}
	if invoice.Status != domain.InvoiceStatusPaid && invoice.Status != domain.InvoiceStatusDelivered {
		return nil, domain.ErrNotPaid
	}

	blocked, err := s.repo.CountMilestonesBelowNotReleased(ctx, s.db, milestone.InvoiceID, milestone.Seq)
	if err != nil {
		return nil, err
	}
	if blocked > 0 {
		return nil, domain.ErrMilestoneOutOfOrder
	}

	token, err := newReleaseToken()
	if err != nil {
		return nil, err
	}
	updated, err := s.repo.MarkMilestoneCompleted(ctx, s.db, milestone.ID, token, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, domain.ErrMilestoneNotPending
	}

	milestone.Status = domain.MilestoneStatusCompleted
	milestone.ReleaseToken = &token
	return milestone, nil
}

// MilestoneByToken resolves a release link for display before the buyer
// commits to releasing the money.
func (s *Service) MilestoneByToken(ctx context.Context, token string) (*domain.Milestone, error) {
	milestone, err := s.repo.FindMilestoneByToken(ctx, s.db, token)
	if err != nil {
		return nil, err
	}
	if milestone == nil {
		return nil, domain.ErrMilestoneNotFound
	}
	return milestone, nil
}

func (s *Service) newInvoiceNumber() string {
	return fmt.Sprintf("INV-%d", s.genID.Generate())
}

func newReleaseToken() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
