package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tumapay/tumapay/internal/clock"
	confirmationdomain "github.com/tumapay/tumapay/internal/confirmation/domain"
	confirmationrepo "github.com/tumapay/tumapay/internal/confirmation/repository"
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
	"github.com/tumapay/tumapay/internal/settlement/domain"
	settlementrepo "github.com/tumapay/tumapay/internal/settlement/repository"
	userdomain "github.com/tumapay/tumapay/internal/user/domain"
	userrepo "github.com/tumapay/tumapay/internal/user/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// promauto registers in the global registry, so the package shares one set.
var testMetrics = metrics.New()

type fakeRail struct {
	mu         sync.Mutex
	withdraws  []momo.WithdrawRequest
	fail       bool
	onWithdraw func()
}

func (r *fakeRail) Collect(ctx context.Context, req momo.CollectRequest) (momo.TransferResponse, error) {
	return momo.TransferResponse{Reference: req.ExternalReference, Status: momo.StatusPending}, nil
}

func (r *fakeRail) Withdraw(ctx context.Context, req momo.WithdrawRequest) (momo.TransferResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return momo.TransferResponse{}, errors.New("upstream timeout")
	}
	if r.onWithdraw != nil {
		r.onWithdraw()
	}
	r.withdraws = append(r.withdraws, req)
	return momo.TransferResponse{Reference: req.ExternalReference, Status: momo.StatusSuccessful}, nil
}

func (r *fakeRail) TransactionStatus(ctx context.Context, reference string) (momo.Transaction, error) {
	return momo.Transaction{Reference: reference, Status: momo.StatusSuccessful}, nil
}

func (r *fakeRail) withdrawCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.withdraws)
}

var dbSeq int

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dbSeq++
	dsn := fmt.Sprintf("file:settlement_svc_%d?mode=memory&cache=shared", dbSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&userdomain.User{},
		&invoicedomain.Invoice{},
		&invoicedomain.Milestone{},
		&paymentdomain.Payment{},
		&confirmationdomain.Credential{},
		&domain.Payout{},
		&domain.PayoutFailure{},
		&referraldomain.Earning{},
		&notification.Notification{},
	))
	return db
}

type fixture struct {
	db   *gorm.DB
	svc  *Service
	rail *fakeRail
	node *snowflake.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	logger := zap.NewNop()
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
		Clock:    clock.NewSystemClock(),
		Repo:     referralrepo.Provide(),
		UserRepo: userrepo.Provide(),
	})

	svc := NewService(Params{
		DB:          db,
		Log:         logger,
		GenID:       node,
		Clock:       clock.NewSystemClock(),
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
	return &fixture{db: db, svc: svc, rail: rail, node: node}
}

func (f *fixture) seedSeller(t *testing.T, referrerID *snowflake.ID) userdomain.User {
	t.Helper()
	seller := userdomain.User{
		ID:           f.node.Generate(),
		Name:         "Amina",
		Email:        fmt.Sprintf("seller-%d@example.test", f.node.Generate()),
		Phone:        "237670000001",
		PayoutNumber: "237670000001",
		ReferrerID:   referrerID,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, f.db.Create(&seller).Error)
	return seller
}

func (f *fixture) seedPaidInvoice(t *testing.T, sellerID snowflake.ID, gross int64) (invoicedomain.Invoice, confirmationdomain.Credential) {
	t.Helper()
	now := time.Now().UTC()
	invoice := invoicedomain.Invoice{
		ID:            f.node.Generate(),
		InvoiceNumber: fmt.Sprintf("INV-%d", f.node.Generate()),
		SellerID:      sellerID,
		BuyerEmail:    "buyer@example.test",
		BuyerPhone:    "237680000002",
		GrossAmount:   gross,
		Currency:      "XAF",
		Status:        invoicedomain.InvoiceStatusPaid,
		PaymentType:   invoicedomain.PaymentTypeSingle,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, f.db.Create(&invoice).Error)

	codeID := f.node.Generate().String()
	credential := confirmationdomain.Credential{
		ID:        f.node.Generate(),
		InvoiceID: invoice.ID,
		Code:      "C" + codeID[len(codeID)-7:],
		Token:     fmt.Sprintf("tok-%d", f.node.Generate()),
		CreatedAt: now,
	}
	require.NoError(t, f.db.Create(&credential).Error)
	return invoice, credential
}

func TestSettleByCode_PaysNetAndCompletesInvoice(t *testing.T) {
	f := newFixture(t)
	seller := f.seedSeller(t, nil)
	invoice, credential := f.seedPaidInvoice(t, seller.ID, 100000)

	result, err := f.svc.SettleByCode(context.Background(), invoice.InvoiceNumber, credential.Code)
	require.NoError(t, err)
	assert.Equal(t, int64(98000), result.Amount)
	assert.Equal(t, string(invoicedomain.InvoiceStatusCompleted), result.InvoiceStatus)

	require.Equal(t, 1, f.rail.withdrawCount())
	assert.Equal(t, seller.PayoutNumber, f.rail.withdraws[0].To)
	assert.Equal(t, int64(98000), f.rail.withdraws[0].Amount)

	var payout domain.Payout
	require.NoError(t, f.db.First(&payout, "invoice_id = ?", invoice.ID).Error)
	assert.Equal(t, domain.PayoutMethodSettlement, payout.Method)
	assert.Equal(t, int64(98000), payout.Amount)

	var got invoicedomain.Invoice
	require.NoError(t, f.db.First(&got, "id = ?", invoice.ID).Error)
	assert.Equal(t, invoicedomain.InvoiceStatusCompleted, got.Status)
}

func TestSettleByCode_WrongCode(t *testing.T) {
	f := newFixture(t)
	seller := f.seedSeller(t, nil)
	invoice, _ := f.seedPaidInvoice(t, seller.ID, 100000)

	_, err := f.svc.SettleByCode(context.Background(), invoice.InvoiceNumber, "WRONGONE")
	assert.ErrorIs(t, err, confirmationdomain.ErrCodeMismatch)
	assert.Equal(t, 0, f.rail.withdrawCount())
}

func TestSettleByCode_DeliveredMidTransferStillCompletes(t *testing.T) {
	f := newFixture(t)
	seller := f.seedSeller(t, nil)
	invoice, credential := f.seedPaidInvoice(t, seller.ID, 100000)

	// The buyer confirms delivery while the rail transfer is in flight.
	f.rail.onWithdraw = func() {
		now := time.Now().UTC()
		require.NoError(t, f.db.Exec(
			`UPDATE invoices SET status = ?, delivered_at = ? WHERE id = ?`,
			invoicedomain.InvoiceStatusDelivered, now, invoice.ID,
		).Error)
	}

	result, err := f.svc.SettleByCode(context.Background(), invoice.InvoiceNumber, credential.Code)
	require.NoError(t, err)
	assert.Equal(t, string(invoicedomain.InvoiceStatusCompleted), result.InvoiceStatus)

	var got invoicedomain.Invoice
	require.NoError(t, f.db.First(&got, "id = ?", invoice.ID).Error)
	assert.Equal(t, invoicedomain.InvoiceStatusCompleted, got.Status)
}

func TestSettleMilestone_RefundedInvoiceBlocksRelease(t *testing.T) {
	f := newFixture(t)
	seller := f.seedSeller(t, nil)
	now := time.Now().UTC()
	invoice := invoicedomain.Invoice{
		ID:            f.node.Generate(),
		InvoiceNumber: fmt.Sprintf("INV-%d", f.node.Generate()),
		SellerID:      seller.ID,
		BuyerEmail:    "buyer@example.test",
		BuyerPhone:    "237680000002",
		GrossAmount:   100000,
		Currency:      "XAF",
		Status:        invoicedomain.InvoiceStatusRefunded,
		PaymentType:   invoicedomain.PaymentTypeInstallment,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, f.db.Create(&invoice).Error)

	// A milestone token the dispute resolution never got to void must still
	// be dead once the invoice is terminal.
	token := "release-after-refund"
	milestone := invoicedomain.Milestone{
		ID: f.node.Generate(), InvoiceID: invoice.ID, Seq: 1, Label: "design",
		Amount: 100000, Status: invoicedomain.MilestoneStatusCompleted, ReleaseToken: &token, UpdatedAt: now,
	}
	require.NoError(t, f.db.Create(&milestone).Error)

	_, err := f.svc.SettleMilestone(context.Background(), token)
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
	assert.Equal(t, 0, f.rail.withdrawCount())

	var gotMilestone invoicedomain.Milestone
	require.NoError(t, f.db.First(&gotMilestone, "id = ?", milestone.ID).Error)
	assert.Equal(t, invoicedomain.MilestoneStatusCompleted, gotMilestone.Status)
}

func TestSettleByCode_ConcurrentAttempts(t *testing.T) {
	f := newFixture(t)
	seller := f.seedSeller(t, nil)
	invoice, credential := f.seedPaidInvoice(t, seller.ID, 100000)

	const workers = 6
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.SettleByCode(context.Background(), invoice.InvoiceNumber, credential.Code)
		}(i)
	}
	wg.Wait()

	var winners int
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, f.rail.withdrawCount())

	var count int64
	require.NoError(t, f.db.Model(&domain.Payout{}).Where("invoice_id = ?", invoice.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSettleByToken_InvoiceMismatch(t *testing.T) {
	f := newFixture(t)
	seller := f.seedSeller(t, nil)
	_, credential := f.seedPaidInvoice(t, seller.ID, 100000)
	other, _ := f.seedPaidInvoice(t, seller.ID, 50000)

	_, err := f.svc.SettleByToken(context.Background(), credential.Token, other.ID)
	assert.ErrorIs(t, err, confirmationdomain.ErrInvoiceMismatch)
	assert.Equal(t, 0, f.rail.withdrawCount())
}

func TestSettleByToken_ReferralCreditedOnce(t *testing.T) {
	f := newFixture(t)
	referrer := f.seedSeller(t, nil)
	seller := f.seedSeller(t, &referrer.ID)
	invoice, credential := f.seedPaidInvoice(t, seller.ID, 100000)

	result, err := f.svc.SettleByToken(context.Background(), credential.Token, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(98000), result.Amount)

	var earning referraldomain.Earning
	require.NoError(t, f.db.First(&earning, "referrer_id = ?", referrer.ID).Error)
	assert.Equal(t, int64(500), earning.EarnedAmount)

	var got userdomain.User
	require.NoError(t, f.db.First(&got, "id = ?", referrer.ID).Error)
	assert.Equal(t, int64(500), got.ReferralBalance)

	// A replay of the credit must not move the balance again.
	_, err = f.svc.SettleByToken(context.Background(), credential.Token, invoice.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
	require.NoError(t, f.db.First(&got, "id = ?", referrer.ID).Error)
	assert.Equal(t, int64(500), got.ReferralBalance)
}

func TestSettle_GatewayFailureConsumesClaim(t *testing.T) {
	f := newFixture(t)
	seller := f.seedSeller(t, nil)
	invoice, credential := f.seedPaidInvoice(t, seller.ID, 100000)
	f.rail.fail = true

	_, err := f.svc.SettleByCode(context.Background(), invoice.InvoiceNumber, credential.Code)
	assert.ErrorIs(t, err, domain.ErrGatewayFailure)

	var failure domain.PayoutFailure
	require.NoError(t, f.db.First(&failure, "invoice_id = ?", invoice.ID).Error)
	assert.Equal(t, "invoice", failure.UnitType)
	assert.Equal(t, int64(98000), failure.Amount)

	// Claim stays consumed, retries get the conflict answer.
	f.rail.fail = false
	_, err = f.svc.SettleByCode(context.Background(), invoice.InvoiceNumber, credential.Code)
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
}

func TestSettleMilestone_ReleasesAndCompletesOnLast(t *testing.T) {
	f := newFixture(t)
	seller := f.seedSeller(t, nil)
	now := time.Now().UTC()
	invoice := invoicedomain.Invoice{
		ID:            f.node.Generate(),
		InvoiceNumber: fmt.Sprintf("INV-%d", f.node.Generate()),
		SellerID:      seller.ID,
		BuyerEmail:    "buyer@example.test",
		BuyerPhone:    "237680000002",
		GrossAmount:   100000,
		Currency:      "XAF",
		Status:        invoicedomain.InvoiceStatusPaid,
		PaymentType:   invoicedomain.PaymentTypeInstallment,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, f.db.Create(&invoice).Error)

	tokenA, tokenB := "release-a", "release-b"
	first := invoicedomain.Milestone{
		ID: f.node.Generate(), InvoiceID: invoice.ID, Seq: 1, Label: "design",
		Amount: 40000, Status: invoicedomain.MilestoneStatusCompleted, ReleaseToken: &tokenA, UpdatedAt: now,
	}
	second := invoicedomain.Milestone{
		ID: f.node.Generate(), InvoiceID: invoice.ID, Seq: 2, Label: "build",
		Amount: 60000, Status: invoicedomain.MilestoneStatusCompleted, ReleaseToken: &tokenB, UpdatedAt: now,
	}
	require.NoError(t, f.db.Create(&first).Error)
	require.NoError(t, f.db.Create(&second).Error)

	result, err := f.svc.SettleMilestone(context.Background(), tokenA)
	require.NoError(t, err)
	assert.Equal(t, int64(39200), result.Amount)
	assert.Equal(t, string(invoicedomain.InvoiceStatusPaid), result.InvoiceStatus)

	// Token is single use.
	_, err = f.svc.SettleMilestone(context.Background(), tokenA)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	result, err = f.svc.SettleMilestone(context.Background(), tokenB)
	require.NoError(t, err)
	assert.Equal(t, int64(58800), result.Amount)
	assert.Equal(t, string(invoicedomain.InvoiceStatusCompleted), result.InvoiceStatus)

	var got invoicedomain.Invoice
	require.NoError(t, f.db.First(&got, "id = ?", invoice.ID).Error)
	assert.Equal(t, invoicedomain.InvoiceStatusCompleted, got.Status)
}
