package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tumapay/tumapay/internal/clock"
	"github.com/tumapay/tumapay/internal/config"
	confirmationdomain "github.com/tumapay/tumapay/internal/confirmation/domain"
	confirmationrepo "github.com/tumapay/tumapay/internal/confirmation/repository"
	"github.com/tumapay/tumapay/internal/dispute/domain"
	disputerepo "github.com/tumapay/tumapay/internal/dispute/repository"
	invoicedomain "github.com/tumapay/tumapay/internal/invoice/domain"
	invoicerepo "github.com/tumapay/tumapay/internal/invoice/repository"
	"github.com/tumapay/tumapay/internal/momo"
	"github.com/tumapay/tumapay/internal/notification"
	"github.com/tumapay/tumapay/internal/observability/metrics"
	paymentdomain "github.com/tumapay/tumapay/internal/payment/domain"
	paymentrepo "github.com/tumapay/tumapay/internal/payment/repository"
	"github.com/tumapay/tumapay/internal/providers/email"
	"github.com/tumapay/tumapay/internal/providers/pdf"
	referraldomain "github.com/tumapay/tumapay/internal/referral/domain"
	referralrepo "github.com/tumapay/tumapay/internal/referral/repository"
	referralservice "github.com/tumapay/tumapay/internal/referral/service"
	settlementdomain "github.com/tumapay/tumapay/internal/settlement/domain"
	settlementrepo "github.com/tumapay/tumapay/internal/settlement/repository"
	settlementservice "github.com/tumapay/tumapay/internal/settlement/service"
	userdomain "github.com/tumapay/tumapay/internal/user/domain"
	userrepo "github.com/tumapay/tumapay/internal/user/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testMetrics = metrics.New()

type fakeRail struct {
	withdraws []momo.WithdrawRequest
}

func (r *fakeRail) Collect(ctx context.Context, req momo.CollectRequest) (momo.TransferResponse, error) {
	return momo.TransferResponse{Reference: req.ExternalReference, Status: momo.StatusPending}, nil
}

func (r *fakeRail) Withdraw(ctx context.Context, req momo.WithdrawRequest) (momo.TransferResponse, error) {
	r.withdraws = append(r.withdraws, req)
	return momo.TransferResponse{Reference: req.ExternalReference, Status: momo.StatusSuccessful}, nil
}

func (r *fakeRail) TransactionStatus(ctx context.Context, reference string) (momo.Transaction, error) {
	return momo.Transaction{Reference: reference, Status: momo.StatusSuccessful}, nil
}

var dbSeq int

type fixture struct {
	db         *gorm.DB
	svc        *Service
	settlement *settlementservice.Service
	rail       *fakeRail
	node       *snowflake.Node
	clock      *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dbSeq++
	dsn := fmt.Sprintf("file:dispute_svc_%d?mode=memory&cache=shared", dbSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&userdomain.User{},
		&invoicedomain.Invoice{},
		&invoicedomain.Milestone{},
		&paymentdomain.Payment{},
		&confirmationdomain.Credential{},
		&domain.Dispute{},
		&settlementdomain.Payout{},
		&settlementdomain.PayoutFailure{},
		&referraldomain.Earning{},
		&notification.Notification{},
	))
	require.NoError(t, db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_disputes_invoice_open ON disputes(invoice_id) WHERE status = 'open'`,
	).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	logger := zap.NewNop()
	fc := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	rail := &fakeRail{}

	notifySvc := notification.NewService(notification.Params{
		DB:    db,
		Log:   logger,
		GenID: node,
		Email: &email.NoOpProvider{},
		PDF:   &pdf.NoOpProvider{},
	})
	referralSvc := referralservice.NewService(referralservice.Params{
		DB:       db,
		Log:      logger,
		GenID:    node,
		Clock:    fc,
		Repo:     referralrepo.Provide(),
		UserRepo: userrepo.Provide(),
	})
	settlementSvc := settlementservice.NewService(settlementservice.Params{
		DB:          db,
		Log:         logger,
		GenID:       node,
		Clock:       fc,
		Rail:        rail,
		Metrics:     testMetrics,
		Repo:        settlementrepo.Provide(),
		InvoiceRepo: invoicerepo.Provide(),
		CredRepo:    confirmationrepo.Provide(),
		PaymentRepo: paymentrepo.Provide(),
		UserRepo:    userrepo.Provide(),
		ReferralSvc: referralSvc,
		NotifySvc:   notifySvc,
	})

	svc := NewService(Params{
		DB:            db,
		Log:           logger,
		GenID:         node,
		Clock:         fc,
		Cfg:           config.Config{BaseURL: "http://localhost:8080"},
		Repo:          disputerepo.Provide(),
		InvoiceRepo:   invoicerepo.Provide(),
		SettlementSvc: settlementSvc,
		NotifySvc:     notifySvc,
	})
	return &fixture{db: db, svc: svc, settlement: settlementSvc, rail: rail, node: node, clock: fc}
}

func (f *fixture) seedDeliveredInvoice(t *testing.T, deliveredAgo time.Duration) invoicedomain.Invoice {
	t.Helper()
	now := f.clock.Now()
	seller := userdomain.User{
		ID:           f.node.Generate(),
		Name:         "Amina",
		Email:        fmt.Sprintf("seller-%d@example.test", f.node.Generate()),
		Phone:        "237670000001",
		PayoutNumber: "237670000001",
		CreatedAt:    now,
	}
	require.NoError(t, f.db.Create(&seller).Error)

	deliveredAt := now.Add(-deliveredAgo)
	invoice := invoicedomain.Invoice{
		ID:            f.node.Generate(),
		InvoiceNumber: fmt.Sprintf("INV-%d", f.node.Generate()),
		SellerID:      seller.ID,
		BuyerEmail:    "buyer@example.test",
		BuyerPhone:    "237680000002",
		GrossAmount:   100000,
		Currency:      "XAF",
		Status:        invoicedomain.InvoiceStatusDelivered,
		PaymentType:   invoicedomain.PaymentTypeSingle,
		CreatedAt:     now.Add(-deliveredAgo - time.Hour),
		DeliveredAt:   &deliveredAt,
		UpdatedAt:     now,
	}
	require.NoError(t, f.db.Create(&invoice).Error)

	payment := paymentdomain.Payment{
		ID:                f.node.Generate(),
		InvoiceID:         invoice.ID,
		ExternalReference: fmt.Sprintf("ref-%d", f.node.Generate()),
		PayerNumber:       "237680000002",
		Amount:            invoice.GrossAmount,
		Status:            paymentdomain.PaymentStatusPaid,
		CreatedAt:         invoice.CreatedAt,
	}
	require.NoError(t, f.db.Create(&payment).Error)
	return invoice
}

func TestOpenDispute_SellerBeforeWindow(t *testing.T) {
	f := newFixture(t)
	invoice := f.seedDeliveredInvoice(t, 47*time.Hour)

	_, err := f.svc.Open(context.Background(), invoice.InvoiceNumber, domain.PartySeller, "buyer silent")
	assert.ErrorIs(t, err, domain.ErrSellerWindow)
}

func TestOpenDispute_SellerAfterWindow(t *testing.T) {
	f := newFixture(t)
	invoice := f.seedDeliveredInvoice(t, 49*time.Hour)

	dispute, err := f.svc.Open(context.Background(), invoice.InvoiceNumber, domain.PartySeller, "buyer silent")
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeStatusOpen, dispute.Status)
	assert.NotEmpty(t, dispute.AdminToken)
}

func TestOpenDispute_SecondOpenRejected(t *testing.T) {
	f := newFixture(t)
	invoice := f.seedDeliveredInvoice(t, time.Hour)

	_, err := f.svc.Open(context.Background(), invoice.InvoiceNumber, domain.PartyBuyer, "not as described")
	require.NoError(t, err)

	_, err = f.svc.Open(context.Background(), invoice.InvoiceNumber, domain.PartyBuyer, "still unhappy")
	assert.ErrorIs(t, err, domain.ErrDisputeActive)
}

func TestOpenDispute_FreezesMilestoneTokens(t *testing.T) {
	f := newFixture(t)
	invoice := f.seedDeliveredInvoice(t, time.Hour)
	require.NoError(t, f.db.Model(&invoicedomain.Invoice{}).Where("id = ?", invoice.ID).
		Update("payment_type", invoicedomain.PaymentTypeInstallment).Error)

	token := "release-during-dispute"
	milestone := invoicedomain.Milestone{
		ID: f.node.Generate(), InvoiceID: invoice.ID, Seq: 1, Label: "design",
		Amount: 100000, Status: invoicedomain.MilestoneStatusCompleted, ReleaseToken: &token, UpdatedAt: f.clock.Now(),
	}
	require.NoError(t, f.db.Create(&milestone).Error)

	_, err := f.svc.Open(context.Background(), invoice.InvoiceNumber, domain.PartyBuyer, "not as described")
	require.NoError(t, err)

	var got invoicedomain.Milestone
	require.NoError(t, f.db.First(&got, "id = ?", milestone.ID).Error)
	assert.Equal(t, invoicedomain.MilestoneStatusDisputed, got.Status)

	// The frozen token no longer releases money.
	_, err = f.settlement.SettleMilestone(context.Background(), token)
	assert.Error(t, err)
	assert.Len(t, f.rail.withdraws, 0)
}

func TestResolveDispute_BuyerRefund(t *testing.T) {
	f := newFixture(t)
	invoice := f.seedDeliveredInvoice(t, time.Hour)

	dispute, err := f.svc.Open(context.Background(), invoice.InvoiceNumber, domain.PartyBuyer, "not as described")
	require.NoError(t, err)

	result, err := f.svc.Resolve(context.Background(), dispute.AdminToken, domain.PartyBuyer)
	require.NoError(t, err)
	assert.Equal(t, int64(98000), result.Amount)

	require.Len(t, f.rail.withdraws, 1)
	assert.Equal(t, "237680000002", f.rail.withdraws[0].To)
	assert.Equal(t, int64(98000), f.rail.withdraws[0].Amount)

	var payout settlementdomain.Payout
	require.NoError(t, f.db.First(&payout, "invoice_id = ?", invoice.ID).Error)
	assert.Equal(t, settlementdomain.PayoutMethodRefund, payout.Method)

	var got invoicedomain.Invoice
	require.NoError(t, f.db.First(&got, "id = ?", invoice.ID).Error)
	assert.Equal(t, invoicedomain.InvoiceStatusRefunded, got.Status)
}

func TestResolveDispute_SellerRelease(t *testing.T) {
	f := newFixture(t)
	invoice := f.seedDeliveredInvoice(t, 49*time.Hour)

	dispute, err := f.svc.Open(context.Background(), invoice.InvoiceNumber, domain.PartySeller, "buyer silent")
	require.NoError(t, err)

	result, err := f.svc.Resolve(context.Background(), dispute.AdminToken, domain.PartySeller)
	require.NoError(t, err)
	assert.Equal(t, int64(98000), result.Amount)
	assert.Equal(t, string(invoicedomain.InvoiceStatusCompleted), result.InvoiceStatus)

	var payout settlementdomain.Payout
	require.NoError(t, f.db.First(&payout, "invoice_id = ?", invoice.ID).Error)
	assert.Equal(t, settlementdomain.PayoutMethodSettlement, payout.Method)
}

func TestResolveDispute_DoubleResolve(t *testing.T) {
	f := newFixture(t)
	invoice := f.seedDeliveredInvoice(t, time.Hour)

	dispute, err := f.svc.Open(context.Background(), invoice.InvoiceNumber, domain.PartyBuyer, "not as described")
	require.NoError(t, err)

	_, err = f.svc.Resolve(context.Background(), dispute.AdminToken, domain.PartyBuyer)
	require.NoError(t, err)

	_, err = f.svc.Resolve(context.Background(), dispute.AdminToken, domain.PartySeller)
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
	assert.Len(t, f.rail.withdraws, 1)
}
