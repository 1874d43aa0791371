package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/tumapay/tumapay/internal/chat"
	"github.com/tumapay/tumapay/internal/clock"
	"github.com/tumapay/tumapay/internal/config"
	confirmationdomain "github.com/tumapay/tumapay/internal/confirmation/domain"
	invoicedomain "github.com/tumapay/tumapay/internal/invoice/domain"
	"github.com/tumapay/tumapay/internal/momo"
	"github.com/tumapay/tumapay/internal/notification"
	paymentdomain "github.com/tumapay/tumapay/internal/payment/domain"
	userdomain "github.com/tumapay/tumapay/internal/user/domain"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	codeLength  = 8
	codeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	mintRetries = 5
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Cfg         config.Config
	Rail        momo.Rail
	Repo        paymentdomain.Repository
	InvoiceRepo invoicedomain.Repository
	CredRepo    confirmationdomain.Repository
	UserRepo    userdomain.Repository
	ChatSvc     *chat.Service
	NotifySvc   *notification.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	cfg         config.Config
	rail        momo.Rail
	repo        paymentdomain.Repository
	invoiceRepo invoicedomain.Repository
	credRepo    confirmationdomain.Repository
	userRepo    userdomain.Repository
	chatSvc     *chat.Service
	notifySvc   *notification.Service
}

func NewService(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		cfg:         p.Cfg,
		rail:        p.Rail,
		repo:        p.Repo,
		invoiceRepo: p.InvoiceRepo,
		credRepo:    p.CredRepo,
		userRepo:    p.UserRepo,
		chatSvc:     p.ChatSvc,
		notifySvc:   p.NotifySvc,
	}
}

// InitiatePayment records a pending charge attempt and asks the rail to
// collect from the buyer's number. The external reference ties the provider
// transaction back to our payment row.
func (s *Service) InitiatePayment(ctx context.Context, invoiceNumber, payerNumber string) (*paymentdomain.Payment, error) {
	invoice, err := s.invoiceRepo.FindByNumber(ctx, s.db, invoiceNumber)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrNotFound
	}
	if invoice.Status != invoicedomain.InvoiceStatusPending {
		return nil, paymentdomain.ErrAlreadyProcessed
	}

	payment := paymentdomain.Payment{
		ID:                s.genID.Generate(),
		InvoiceID:         invoice.ID,
		ExternalReference: uuid.NewString(),
		PayerNumber:       strings.TrimSpace(payerNumber),
		Amount:            invoice.GrossAmount,
		Status:            paymentdomain.PaymentStatusPending,
		CreatedAt:         s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, &payment); err != nil {
		return nil, err
	}

	if _, err := s.rail.Collect(ctx, momo.CollectRequest{
		Amount:            payment.Amount,
		Currency:          invoice.Currency,
		From:              payment.PayerNumber,
		Description:       "Escrow payment for " + invoice.InvoiceNumber,
		ExternalReference: payment.ExternalReference,
	}); err != nil {
		return nil, err
	}

	return &payment, nil
}

// ProcessSuccessfulPayment is the single idempotent entry point for a
// confirmed charge. The webhook handler and the reconciliation poller both
// feed it, possibly concurrently with the same reference; the marker insert
// decides the one winner, everyone else gets ErrAlreadyProcessed.
func (s *Service) ProcessSuccessfulPayment(ctx context.Context, reference string) (*confirmationdomain.Credential, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, paymentdomain.ErrPaymentNotFound
	}

	now := s.clock.Now()
	claimed, err := s.repo.ClaimProcessed(ctx, s.db, reference, now)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, paymentdomain.ErrAlreadyProcessed
	}

	payment, err := s.repo.FindByReference(ctx, s.db, reference)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, paymentdomain.ErrPaymentNotFound
	}

	// Belt and braces: a credential row means this invoice was processed
	// before the marker table existed.
	existing, err := s.credRepo.FindByInvoice(ctx, s.db, payment.InvoiceID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, paymentdomain.ErrAlreadyProcessed
	}

	invoice, err := s.invoiceRepo.FindByID(ctx, s.db, payment.InvoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrNotFound
	}

	if _, err := s.repo.MarkPaid(ctx, s.db, payment.ID); err != nil {
		return nil, err
	}
	if _, err := s.invoiceRepo.UpdateStatus(ctx, s.db, invoice.ID,
		invoicedomain.InvoiceStatusPending, invoicedomain.InvoiceStatusPaid, now); err != nil {
		return nil, err
	}

	credential, err := s.mintCredential(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}

	if _, err := s.chatSvc.OpenChannel(ctx, invoice.ID); err != nil {
		s.log.Warn("chat channel open failed", zap.String("invoice", invoice.InvoiceNumber), zap.Error(err))
	}

	s.notifyPaymentReceived(ctx, invoice, credential)

	return credential, nil
}

// mintCredential generates the code/token pair. Codes are short, so a
// collision with an existing row is possible; regenerate and retry instead
// of failing the payment.
func (s *Service) mintCredential(ctx context.Context, invoiceID snowflake.ID) (*confirmationdomain.Credential, error) {
	for attempt := 0; attempt < mintRetries; attempt++ {
		code, err := newCode()
		if err != nil {
			return nil, err
		}
		token, err := newLinkToken()
		if err != nil {
			return nil, err
		}
		credential := confirmationdomain.Credential{
			ID:        s.genID.Generate(),
			InvoiceID: invoiceID,
			Code:      code,
			Token:     token,
			IsUsed:    false,
			CreatedAt: s.clock.Now(),
		}
		inserted, err := s.credRepo.Insert(ctx, s.db, &credential)
		if err != nil {
			return nil, err
		}
		if inserted {
			return &credential, nil
		}

		// The invoice itself may have raced to a credential already.
		existing, err := s.credRepo.FindByInvoice(ctx, s.db, invoiceID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}
	return nil, paymentdomain.ErrCredentialMint
}

func (s *Service) notifyPaymentReceived(ctx context.Context, invoice *invoicedomain.Invoice, credential *confirmationdomain.Credential) {
	amount := fmt.Sprintf("%d", invoice.GrossAmount)
	link := fmt.Sprintf("%s/verify-payout/%s/%d", s.cfg.BaseURL, credential.Token, int64(invoice.ID))

	if err := s.notifySvc.SendEmail(ctx, invoice.BuyerEmail, "payment_received_buyer", map[string]any{
		"InvoiceNumber": invoice.InvoiceNumber,
		"Amount":        amount,
		"Currency":      invoice.Currency,
		"Code":          credential.Code,
		"Link":          link,
	}); err != nil {
		s.log.Warn("buyer payment email failed", zap.String("invoice", invoice.InvoiceNumber), zap.Error(err))
	}

	seller, err := s.userRepo.FindByID(ctx, s.db, invoice.SellerID)
	if err != nil || seller == nil {
		s.log.Warn("seller lookup for notification failed", zap.String("invoice", invoice.InvoiceNumber), zap.Error(err))
		return
	}

	if err := s.notifySvc.SendEmail(ctx, seller.Email, "payment_received_seller", map[string]any{
		"InvoiceNumber": invoice.InvoiceNumber,
		"Amount":        amount,
		"Currency":      invoice.Currency,
	}); err != nil {
		s.log.Warn("seller payment email failed", zap.String("invoice", invoice.InvoiceNumber), zap.Error(err))
	}

	if err := s.notifySvc.Notify(ctx, seller.ID, notification.TypePaymentReceived,
		"Payment received",
		fmt.Sprintf("Invoice %s was paid into escrow.", invoice.InvoiceNumber),
		map[string]any{"invoice_number": invoice.InvoiceNumber, "amount": invoice.GrossAmount},
	); err != nil {
		s.log.Warn("seller in-app notification failed", zap.String("invoice", invoice.InvoiceNumber), zap.Error(err))
	}
}

func newCode() (string, error) {
	raw := make([]byte, codeLength)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	out := make([]byte, codeLength)
	for i, b := range raw {
		out[i] = codeCharset[int(b)%len(codeCharset)]
	}
	return string(out), nil
}

func newLinkToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
