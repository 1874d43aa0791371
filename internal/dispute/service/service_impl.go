package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/tumapay/tumapay/internal/clock"
	"github.com/tumapay/tumapay/internal/config"
	"github.com/tumapay/tumapay/internal/dispute/domain"
	invoicedomain "github.com/tumapay/tumapay/internal/invoice/domain"
	"github.com/tumapay/tumapay/internal/notification"
	settlementservice "github.com/tumapay/tumapay/internal/settlement/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Cfg           config.Config
	Repo          domain.Repository
	InvoiceRepo   invoicedomain.Repository
	SettlementSvc *settlementservice.Service
	NotifySvc     *notification.Service
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	cfg           config.Config
	repo          domain.Repository
	invoiceRepo   invoicedomain.Repository
	settlementSvc *settlementservice.Service
	notifySvc     *notification.Service
}

func NewService(p Params) *Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("dispute.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		cfg:           p.Cfg,
		repo:          p.Repo,
		invoiceRepo:   p.InvoiceRepo,
		settlementSvc: p.SettlementSvc,
		notifySvc:     p.NotifySvc,
	}
}

// Open raises a dispute on an escrowed invoice. Buyers can open one any time
// after payment; sellers only once the delivery window has elapsed without
// the buyer confirming. The unique index keeps one open dispute per invoice.
func (s *Service) Open(ctx context.Context, invoiceNumber string, party domain.Party, reason string) (*domain.Dispute, error) {
	if party != domain.PartyBuyer && party != domain.PartySeller {
		return nil, domain.ErrInvalidParty
	}

	invoice, err := s.invoiceRepo.FindByNumber(ctx, s.db, invoiceNumber)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrNotFound
	}
	if invoice.Status != invoicedomain.InvoiceStatusPaid && invoice.Status != invoicedomain.InvoiceStatusDelivered {
		return nil, domain.ErrInvoiceNotEscrow
	}

	if party == domain.PartySeller {
		if invoice.DeliveredAt == nil {
			return nil, domain.ErrNotDelivered
		}
		if s.clock.Now().Sub(*invoice.DeliveredAt) < domain.SellerWindow {
			return nil, domain.ErrSellerWindow
		}
	}

	token, err := newAdminToken()
	if err != nil {
		return nil, err
	}
	dispute := &domain.Dispute{
		ID:         s.genID.Generate(),
		InvoiceID:  invoice.ID,
		OpenedBy:   party,
		Reason:     reason,
		AdminToken: token,
		Status:     domain.DisputeStatusOpen,
		OpenedAt:   s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, dispute); err != nil {
		return nil, err
	}

	// Freeze outstanding milestone tokens so nothing pays out while the
	// dispute is open.
	if invoice.PaymentType == invoicedomain.PaymentTypeInstallment {
		frozen, err := s.invoiceRepo.MarkMilestonesDisputed(ctx, s.db, invoice.ID, s.clock.Now())
		if err != nil {
			s.log.Error("milestone freeze failed",
				zap.String("invoice", invoice.InvoiceNumber), zap.Error(err))
		} else if frozen > 0 {
			s.log.Info("milestones frozen for dispute",
				zap.String("invoice", invoice.InvoiceNumber), zap.Int64("count", frozen))
		}
	}

	s.notifyOpened(ctx, invoice, dispute)
	return dispute, nil
}

// Resolve settles an open dispute one way or the other. The conditional
// status flip is the claim; whoever loses the race gets ErrAlreadyResolved
// and no money moves twice.
func (s *Service) Resolve(ctx context.Context, adminToken string, winner domain.Party) (*settlementservice.Result, error) {
	if winner != domain.PartyBuyer && winner != domain.PartySeller {
		return nil, domain.ErrInvalidOutcome
	}

	dispute, err := s.repo.FindByAdminToken(ctx, s.db, adminToken)
	if err != nil {
		return nil, err
	}
	if dispute == nil {
		return nil, domain.ErrNotFound
	}

	invoice, err := s.invoiceRepo.FindByID(ctx, s.db, dispute.InvoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrNotFound
	}

	to := domain.DisputeStatusResolvedSeller
	if winner == domain.PartyBuyer {
		to = domain.DisputeStatusResolvedBuyer
	}
	claimed, err := s.repo.Resolve(ctx, s.db, dispute.ID, to, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, domain.ErrAlreadyResolved
	}

	if winner == domain.PartySeller {
		return s.settlementSvc.ReleaseForDispute(ctx, invoice)
	}

	result, err := s.settlementSvc.RefundBuyer(ctx, invoice, dispute.Reason)
	if err != nil {
		return nil, err
	}
	moved, err := s.invoiceRepo.MarkRefunded(ctx, s.db, invoice.ID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !moved {
		s.log.Error("invoice left escrow during refund", zap.String("invoice", invoice.InvoiceNumber))
	}
	return result, nil
}

func (s *Service) notifyOpened(ctx context.Context, invoice *invoicedomain.Invoice, dispute *domain.Dispute) {
	link := fmt.Sprintf("%s/dispute/admin/%s", s.cfg.BaseURL, dispute.AdminToken)
	if err := s.notifySvc.SendEmail(ctx, s.cfg.Escalation.AdminEmail, "dispute_escalation", map[string]any{
		"InvoiceNumber": invoice.InvoiceNumber,
		"OpenedBy":      string(dispute.OpenedBy),
		"Reason":        dispute.Reason,
		"Link":          link,
	}); err != nil {
		s.log.Warn("dispute admin email failed", zap.String("invoice", invoice.InvoiceNumber), zap.Error(err))
	}
	if err := s.notifySvc.Notify(ctx, invoice.SellerID, notification.TypeDisputeOpened,
		"Dispute opened",
		fmt.Sprintf("Invoice %s now has an open dispute.", invoice.InvoiceNumber),
		map[string]any{"invoice_number": invoice.InvoiceNumber, "opened_by": string(dispute.OpenedBy)},
	); err != nil {
		s.log.Warn("dispute in-app notification failed", zap.String("invoice", invoice.InvoiceNumber), zap.Error(err))
	}
}

func newAdminToken() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
