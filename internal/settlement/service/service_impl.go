package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/tumapay/tumapay/internal/clock"
	confirmationdomain "github.com/tumapay/tumapay/internal/confirmation/domain"
	invoicedomain "github.com/tumapay/tumapay/internal/invoice/domain"
	"github.com/tumapay/tumapay/internal/momo"
	"github.com/tumapay/tumapay/internal/notification"
	"github.com/tumapay/tumapay/internal/observability/metrics"
	paymentdomain "github.com/tumapay/tumapay/internal/payment/domain"
	"github.com/tumapay/tumapay/internal/providers/pdf"
	referralservice "github.com/tumapay/tumapay/internal/referral/service"
	"github.com/tumapay/tumapay/internal/settlement/domain"
	userdomain "github.com/tumapay/tumapay/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Rail        momo.Rail
	Metrics     *metrics.Metrics
	Repo        domain.Repository
	InvoiceRepo invoicedomain.Repository
	CredRepo    confirmationdomain.Repository
	PaymentRepo paymentdomain.Repository
	UserRepo    userdomain.Repository
	ReferralSvc *referralservice.Service
	NotifySvc   *notification.Service
}

// Service moves escrowed money out. Every public entry claims its settlement
// unit first (credential or milestone token) and only the winner reaches the
// rail, so one unit can never pay out twice.
type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	rail        momo.Rail
	metrics     *metrics.Metrics
	repo        domain.Repository
	invoiceRepo invoicedomain.Repository
	credRepo    confirmationdomain.Repository
	paymentRepo paymentdomain.Repository
	userRepo    userdomain.Repository
	referralSvc *referralservice.Service
	notifySvc   *notification.Service
}

func NewService(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("settlement.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		rail:        p.Rail,
		metrics:     p.Metrics,
		repo:        p.Repo,
		invoiceRepo: p.InvoiceRepo,
		credRepo:    p.CredRepo,
		paymentRepo: p.PaymentRepo,
		userRepo:    p.UserRepo,
		referralSvc: p.ReferralSvc,
		notifySvc:   p.NotifySvc,
	}
}

// Result reports one completed settlement back to the caller.
type Result struct {
	InvoiceNumber string         `json:"invoice_number"`
	Amount        int64          `json:"amount"`
	Currency      string         `json:"currency"`
	Reference     string         `json:"reference"`
	InvoiceStatus string         `json:"invoice_status"`
	Split         domain.FeeSplit `json:"-"`
}

// Preview describes a pending confirmation for the buyer's emailed link page.
type Preview struct {
	InvoiceNumber string `json:"invoice_number"`
	SellerName    string `json:"seller_name"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Used          bool   `json:"used"`
}

// SettleByCode releases the full escrow for a single-payment invoice when
// the seller presents the buyer's short code.
func (s *Service) SettleByCode(ctx context.Context, invoiceNumber, code string) (*Result, error) {
	invoice, err := s.invoiceRepo.FindByNumber(ctx, s.db, invoiceNumber)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrNotFound
	}

	credential, err := s.credRepo.FindByInvoice(ctx, s.db, invoice.ID)
	if err != nil {
		return nil, err
	}
	if credential == nil {
		return nil, domain.ErrNotAuthorized
	}
	if !codeEqual(credential.Code, code) {
		s.metrics.Settlements.WithLabelValues("code", "rejected").Inc()
		return nil, confirmationdomain.ErrCodeMismatch
	}

	return s.settleWithCredential(ctx, "code", credential, invoice)
}

// PreviewToken resolves the emailed link for display without consuming it.
func (s *Service) PreviewToken(ctx context.Context, token string) (*Preview, error) {
	credential, err := s.credRepo.FindByToken(ctx, s.db, token)
	if err != nil {
		return nil, err
	}
	if credential == nil {
		return nil, confirmationdomain.ErrNotFound
	}
	invoice, err := s.invoiceRepo.FindByID(ctx, s.db, credential.InvoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrNotFound
	}
	seller, err := s.userRepo.FindByID(ctx, s.db, invoice.SellerID)
	if err != nil {
		return nil, err
	}
	preview := &Preview{
		InvoiceNumber: invoice.InvoiceNumber,
		Amount:        invoice.GrossAmount,
		Currency:      invoice.Currency,
		Used:          credential.IsUsed,
	}
	if seller != nil {
		preview.SellerName = seller.Name
	}
	return preview, nil
}

// SettleByToken releases the full escrow from the buyer's emailed link. The
// invoice id in the URL must match the one the token was minted for.
func (s *Service) SettleByToken(ctx context.Context, token string, invoiceID snowflake.ID) (*Result, error) {
	credential, err := s.credRepo.FindByToken(ctx, s.db, token)
	if err != nil {
		return nil, err
	}
	if credential == nil {
		return nil, domain.ErrNotAuthorized
	}
	if credential.InvoiceID != invoiceID {
		return nil, confirmationdomain.ErrInvoiceMismatch
	}
	invoice, err := s.invoiceRepo.FindByID(ctx, s.db, credential.InvoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrNotFound
	}
	return s.settleWithCredential(ctx, "token", credential, invoice)
}

// escrowGuard rejects settlement against an invoice that is not holding
// money. Terminal states answer as conflicts so a replayed release reads as
// "already done" rather than "not allowed".
func escrowGuard(invoice *invoicedomain.Invoice) error {
	switch invoice.Status {
	case invoicedomain.InvoiceStatusPaid, invoicedomain.InvoiceStatusDelivered:
		return nil
	case invoicedomain.InvoiceStatusCompleted, invoicedomain.InvoiceStatusRefunded:
		return domain.ErrAlreadyProcessed
	default:
		return invoicedomain.ErrNotPaid
	}
}

func (s *Service) settleWithCredential(ctx context.Context, path string, credential *confirmationdomain.Credential, invoice *invoicedomain.Invoice) (*Result, error) {
	if err := escrowGuard(invoice); err != nil {
		return nil, err
	}

	claimed, err := s.credRepo.Claim(ctx, s.db, credential.ID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !claimed {
		s.metrics.Settlements.WithLabelValues(path, "duplicate").Inc()
		return nil, domain.ErrAlreadyProcessed
	}

	result, err := s.payOutToSeller(ctx, invoice, nil, invoice.GrossAmount, "invoice", invoice.ID)
	if err != nil {
		s.metrics.Settlements.WithLabelValues(path, "failed").Inc()
		return nil, err
	}

	// Full release: the invoice ends completed whether it sat in paid or
	// delivered by the time the transfer returned.
	moved, err := s.invoiceRepo.MarkCompleted(ctx, s.db, invoice.ID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !moved {
		s.log.Error("invoice left escrow during settlement", zap.String("invoice", invoice.InvoiceNumber))
	}
	result.InvoiceStatus = string(invoicedomain.InvoiceStatusCompleted)

	s.metrics.Settlements.WithLabelValues(path, "completed").Inc()
	return result, nil
}

// SettleMilestone releases one completed milestone via its single-use token.
func (s *Service) SettleMilestone(ctx context.Context, token string) (*Result, error) {
	milestone, err := s.invoiceRepo.FindMilestoneByToken(ctx, s.db, token)
	if err != nil {
		return nil, err
	}
	if milestone == nil {
		return nil, domain.ErrNotAuthorized
	}
	invoice, err := s.invoiceRepo.FindByID(ctx, s.db, milestone.InvoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrNotFound
	}
	if err := escrowGuard(invoice); err != nil {
		return nil, err
	}

	claimed, err := s.invoiceRepo.ClaimMilestoneRelease(ctx, s.db, milestone.ID, token, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !claimed {
		s.metrics.Settlements.WithLabelValues("milestone", "duplicate").Inc()
		return nil, domain.ErrAlreadyProcessed
	}

	milestoneID := milestone.ID
	result, err := s.payOutToSeller(ctx, invoice, &milestoneID, milestone.Amount, "milestone", milestone.ID)
	if err != nil {
		s.metrics.Settlements.WithLabelValues("milestone", "failed").Inc()
		return nil, err
	}

	remaining, err := s.invoiceRepo.CountMilestonesNotReleased(ctx, s.db, invoice.ID)
	if err != nil {
		return nil, err
	}
	result.InvoiceStatus = string(invoice.Status)
	if remaining == 0 {
		if _, err := s.invoiceRepo.MarkCompleted(ctx, s.db, invoice.ID, s.clock.Now()); err != nil {
			return nil, err
		}
		result.InvoiceStatus = string(invoicedomain.InvoiceStatusCompleted)
	}

	s.metrics.Settlements.WithLabelValues("milestone", "completed").Inc()
	return result, nil
}

// payOutToSeller runs the split, the rail transfer and the bookkeeping for
// one claimed unit. A rail failure leaves the claim consumed and records a
// payout_failures row instead of retrying.
func (s *Service) payOutToSeller(ctx context.Context, invoice *invoicedomain.Invoice, milestoneID *snowflake.ID, gross int64, unitType string, unitID snowflake.ID) (*Result, error) {
	seller, err := s.userRepo.FindByID(ctx, s.db, invoice.SellerID)
	if err != nil {
		return nil, err
	}
	if seller == nil {
		return nil, userdomain.ErrNotFound
	}

	split := domain.SplitFees(gross, seller.ReferrerID != nil)
	reference := uuid.NewString()

	if _, err := s.rail.Withdraw(ctx, momo.WithdrawRequest{
		Amount:            split.SellerNet,
		Currency:          invoice.Currency,
		To:                seller.PayoutNumber,
		Description:       "Escrow release for " + invoice.InvoiceNumber,
		ExternalReference: reference,
	}); err != nil {
		s.recordFailure(ctx, unitType, unitID, invoice.ID, split.SellerNet, err)
		return nil, domain.ErrGatewayFailure
	}

	invoiceID := invoice.ID
	now := s.clock.Now()
	sellerID := seller.ID
	if err := s.repo.InsertPayout(ctx, s.db, &domain.Payout{
		ID:              s.genID.Generate(),
		InvoiceID:       &invoiceID,
		MilestoneID:     milestoneID,
		RecipientID:     &sellerID,
		RecipientNumber: seller.PayoutNumber,
		Amount:          split.SellerNet,
		Method:          domain.PayoutMethodSettlement,
		Status:          domain.PayoutStatusCompleted,
		Reference:       reference,
		CreatedAt:       now,
	}); err != nil {
		return nil, err
	}
	s.metrics.Payouts.WithLabelValues(string(domain.PayoutMethodSettlement)).Inc()

	if seller.ReferrerID != nil && split.ReferralShare > 0 {
		unitRef := fmt.Sprintf("%s:%d", unitType, int64(unitID))
		if err := s.referralSvc.CreditOnce(ctx, *seller.ReferrerID, seller.ID, unitRef, gross, split.ReferralShare); err != nil {
			s.log.Warn("referral credit failed", zap.String("reference", unitRef), zap.Error(err))
		}
	}

	s.notifyPayout(ctx, invoice, seller, split, reference)

	return &Result{
		InvoiceNumber: invoice.InvoiceNumber,
		Amount:        split.SellerNet,
		Currency:      invoice.Currency,
		Reference:     reference,
		Split:         split,
	}, nil
}

// ReleaseForDispute pays the seller the full escrow after a dispute resolves
// in their favor. The resolved dispute row is the claim; the buyer's
// credential is bypassed.
func (s *Service) ReleaseForDispute(ctx context.Context, invoice *invoicedomain.Invoice) (*Result, error) {
	result, err := s.payOutToSeller(ctx, invoice, nil, invoice.GrossAmount, "dispute", invoice.ID)
	if err != nil {
		s.metrics.Settlements.WithLabelValues("dispute", "failed").Inc()
		return nil, err
	}
	moved, err := s.invoiceRepo.MarkCompleted(ctx, s.db, invoice.ID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !moved {
		s.log.Error("invoice left escrow during dispute release", zap.String("invoice", invoice.InvoiceNumber))
	}
	result.InvoiceStatus = string(invoicedomain.InvoiceStatusCompleted)
	s.metrics.Settlements.WithLabelValues("dispute", "completed").Inc()
	return result, nil
}

// RefundBuyer sends the escrowed money back to the number that paid. The
// platform fee stays withheld. Callers hold the claim (a resolved dispute)
// before getting here.
func (s *Service) RefundBuyer(ctx context.Context, invoice *invoicedomain.Invoice, reason string) (*Result, error) {
	payment, err := s.paymentRepo.FindLatestByInvoice(ctx, s.db, invoice.ID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, paymentdomain.ErrPaymentNotFound
	}

	amount := domain.RefundAmount(invoice.GrossAmount)
	reference := uuid.NewString()

	if _, err := s.rail.Withdraw(ctx, momo.WithdrawRequest{
		Amount:            amount,
		Currency:          invoice.Currency,
		To:                payment.PayerNumber,
		Description:       "Refund for " + invoice.InvoiceNumber,
		ExternalReference: reference,
	}); err != nil {
		s.recordFailure(ctx, "refund", invoice.ID, invoice.ID, amount, err)
		return nil, domain.ErrGatewayFailure
	}

	invoiceID := invoice.ID
	if err := s.repo.InsertPayout(ctx, s.db, &domain.Payout{
		ID:              s.genID.Generate(),
		InvoiceID:       &invoiceID,
		RecipientNumber: payment.PayerNumber,
		Amount:          amount,
		Method:          domain.PayoutMethodRefund,
		Status:          domain.PayoutStatusCompleted,
		Reference:       reference,
		CreatedAt:       s.clock.Now(),
	}); err != nil {
		return nil, err
	}
	s.metrics.Payouts.WithLabelValues(string(domain.PayoutMethodRefund)).Inc()

	if err := s.notifySvc.SendEmail(ctx, invoice.BuyerEmail, "refund_issued", map[string]any{
		"InvoiceNumber": invoice.InvoiceNumber,
		"Amount":        fmt.Sprintf("%d", amount),
		"Currency":      invoice.Currency,
		"Reason":        reason,
	}); err != nil {
		s.log.Warn("refund email failed", zap.String("invoice", invoice.InvoiceNumber), zap.Error(err))
	}

	return &Result{
		InvoiceNumber: invoice.InvoiceNumber,
		Amount:        amount,
		Currency:      invoice.Currency,
		Reference:     reference,
		InvoiceStatus: string(invoicedomain.InvoiceStatusRefunded),
	}, nil
}

func (s *Service) recordFailure(ctx context.Context, unitType string, unitID, invoiceID snowflake.ID, amount int64, cause error) {
	s.metrics.PayoutFailures.Inc()
	s.log.Error("rail transfer failed after claim",
		zap.String("unit_type", unitType),
		zap.Int64("unit_id", int64(unitID)),
		zap.Error(cause),
	)
	failure := &domain.PayoutFailure{
		ID:        s.genID.Generate(),
		UnitType:  unitType,
		UnitID:    unitID,
		InvoiceID: &invoiceID,
		Amount:    amount,
		Reason:    cause.Error(),
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.InsertFailure(ctx, s.db, failure); err != nil {
		s.log.Error("payout failure record insert failed", zap.Error(err))
	}
}

func (s *Service) notifyPayout(ctx context.Context, invoice *invoicedomain.Invoice, seller *userdomain.User, split domain.FeeSplit, reference string) {
	data := map[string]any{
		"InvoiceNumber": invoice.InvoiceNumber,
		"Amount":        fmt.Sprintf("%d", split.SellerNet),
		"Currency":      invoice.Currency,
		"Fee":           fmt.Sprintf("%d", split.TotalFee),
	}
	receipt := pdf.ReceiptData{
		InvoiceNumber: invoice.InvoiceNumber,
		SellerName:    seller.Name,
		BuyerEmail:    invoice.BuyerEmail,
		Amount:        fmt.Sprintf("%d %s", split.SellerNet, invoice.Currency),
		Currency:      invoice.Currency,
		DatePaid:      s.clock.Now().Format("2006-01-02"),
		Method:        "mobile money",
	}
	if err := s.notifySvc.SendReceipt(ctx, seller.Email, "payout_completed", data, receipt); err != nil {
		s.log.Warn("payout email failed", zap.String("invoice", invoice.InvoiceNumber), zap.Error(err))
	}
	if err := s.notifySvc.Notify(ctx, seller.ID, notification.TypePayoutCompleted,
		"Funds released",
		fmt.Sprintf("Invoice %s paid out %d %s.", invoice.InvoiceNumber, split.SellerNet, invoice.Currency),
		map[string]any{"invoice_number": invoice.InvoiceNumber, "amount": split.SellerNet, "reference": reference},
	); err != nil {
		s.log.Warn("payout in-app notification failed", zap.String("invoice", invoice.InvoiceNumber), zap.Error(err))
	}
}

func codeEqual(want, got string) bool {
	got = strings.ToUpper(strings.TrimSpace(got))
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
