package escalation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tumapay/tumapay/internal/clock"
	"github.com/tumapay/tumapay/internal/config"
	disputedomain "github.com/tumapay/tumapay/internal/dispute/domain"
	disputerepo "github.com/tumapay/tumapay/internal/dispute/repository"
	invoicedomain "github.com/tumapay/tumapay/internal/invoice/domain"
	"github.com/tumapay/tumapay/internal/notification"
	"github.com/tumapay/tumapay/internal/observability/metrics"
	paymentdomain "github.com/tumapay/tumapay/internal/payment/domain"
	paymentrepo "github.com/tumapay/tumapay/internal/payment/repository"
	"github.com/tumapay/tumapay/internal/providers/email"
	"github.com/tumapay/tumapay/internal/providers/pdf"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testMetrics = metrics.New()

type captureEmail struct {
	mu    sync.Mutex
	sends []string
	fail  bool
}

func (p *captureEmail) Send(ctx context.Context, to []string, subject string, htmlBody string, attachments ...email.Attachment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return fmt.Errorf("smtp unavailable")
	}
	p.sends = append(p.sends, to[0]+" "+subject)
	return nil
}

func (p *captureEmail) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sends)
}

var dbSeq int

type fixture struct {
	db        *gorm.DB
	scheduler *Scheduler
	clock     *clock.FakeClock
	email     *captureEmail
	node      *snowflake.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dbSeq++
	dsn := fmt.Sprintf("file:escalation_%d?mode=memory&cache=shared", dbSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&invoicedomain.Invoice{},
		&paymentdomain.Payment{},
		&disputedomain.Dispute{},
		&notification.Notification{},
	))
	require.NoError(t, db.Exec(
		`CREATE TABLE notification_dispatch (
			subject TEXT NOT NULL,
			level TEXT NOT NULL,
			sent_at TIMESTAMP NOT NULL,
			PRIMARY KEY (subject, level)
		)`,
	).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fc := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	capture := &captureEmail{}

	notifySvc := notification.NewService(notification.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Email: capture,
		PDF:   &pdf.NoOpProvider{},
	})

	scheduler := NewScheduler(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: fc,
		Cfg: config.Config{
			BaseURL: "http://localhost:8080",
			Escalation: config.EscalationConfig{
				RunInterval:    time.Minute,
				ReminderLevels: []time.Duration{24 * time.Hour, 48 * time.Hour, 72 * time.Hour},
				DisputeLevels:  []time.Duration{72 * time.Hour, 7 * 24 * time.Hour},
				AdminEmail:     "ops@example.test",
			},
		},
		Metrics:     testMetrics,
		PaymentRepo: paymentrepo.Provide(),
		DisputeRepo: disputerepo.Provide(),
		NotifySvc:   notifySvc,
	})
	return &fixture{db: db, scheduler: scheduler, clock: fc, email: capture, node: node}
}

func (f *fixture) seedPendingInvoice(t *testing.T, firstAttemptAgo time.Duration) invoicedomain.Invoice {
	t.Helper()
	now := f.clock.Now()
	invoice := invoicedomain.Invoice{
		ID:            f.node.Generate(),
		InvoiceNumber: fmt.Sprintf("INV-%d", f.node.Generate()),
		SellerID:      f.node.Generate(),
		BuyerEmail:    "buyer@example.test",
		BuyerPhone:    "237680000002",
		GrossAmount:   100000,
		Currency:      "XAF",
		Status:        invoicedomain.InvoiceStatusPending,
		PaymentType:   invoicedomain.PaymentTypeSingle,
		CreatedAt:     now.Add(-firstAttemptAgo),
		UpdatedAt:     now,
	}
	require.NoError(t, f.db.Create(&invoice).Error)

	payment := paymentdomain.Payment{
		ID:                f.node.Generate(),
		InvoiceID:         invoice.ID,
		ExternalReference: fmt.Sprintf("ref-%d", f.node.Generate()),
		PayerNumber:       "237680000002",
		Amount:            invoice.GrossAmount,
		Status:            paymentdomain.PaymentStatusPending,
		CreatedAt:         now.Add(-firstAttemptAgo),
	}
	require.NoError(t, f.db.Create(&payment).Error)
	return invoice
}

func TestRunOnce_SendsEachReminderLevelOnce(t *testing.T) {
	f := newFixture(t)
	f.seedPendingInvoice(t, 25*time.Hour)

	f.scheduler.RunOnce(context.Background())
	assert.Equal(t, 1, f.email.count())

	// A second sweep at the same elapsed time does not resend.
	f.scheduler.RunOnce(context.Background())
	assert.Equal(t, 1, f.email.count())

	// Crossing the next threshold sends the next level, once.
	f.clock.Advance(24 * time.Hour)
	f.scheduler.RunOnce(context.Background())
	f.scheduler.RunOnce(context.Background())
	assert.Equal(t, 2, f.email.count())
}

func TestRunOnce_NoAttemptNoReminder(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	invoice := invoicedomain.Invoice{
		ID:            f.node.Generate(),
		InvoiceNumber: fmt.Sprintf("INV-%d", f.node.Generate()),
		SellerID:      f.node.Generate(),
		BuyerEmail:    "buyer@example.test",
		BuyerPhone:    "237680000002",
		GrossAmount:   100000,
		Currency:      "XAF",
		Status:        invoicedomain.InvoiceStatusPending,
		PaymentType:   invoicedomain.PaymentTypeSingle,
		CreatedAt:     now.Add(-72 * time.Hour),
		UpdatedAt:     now,
	}
	require.NoError(t, f.db.Create(&invoice).Error)

	f.scheduler.RunOnce(context.Background())
	assert.Equal(t, 0, f.email.count())
}

func TestRunOnce_FailedSendRetriesNextSweep(t *testing.T) {
	f := newFixture(t)
	f.seedPendingInvoice(t, 25*time.Hour)

	f.email.fail = true
	f.scheduler.RunOnce(context.Background())
	assert.Equal(t, 0, f.email.count())

	// The claim was released, so the next sweep sends it.
	f.email.fail = false
	f.scheduler.RunOnce(context.Background())
	assert.Equal(t, 1, f.email.count())
}

func TestRunOnce_EscalatesStaleDisputes(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	dispute := disputedomain.Dispute{
		ID:         f.node.Generate(),
		InvoiceID:  f.node.Generate(),
		OpenedBy:   disputedomain.PartyBuyer,
		Reason:     "not as described",
		AdminToken: fmt.Sprintf("admin-%d", f.node.Generate()),
		Status:     disputedomain.DisputeStatusOpen,
		OpenedAt:   now.Add(-73 * time.Hour),
	}
	require.NoError(t, f.db.Create(&dispute).Error)

	f.scheduler.RunOnce(context.Background())
	f.scheduler.RunOnce(context.Background())
	assert.Equal(t, 1, f.email.count())

	// Resolved disputes stop escalating.
	require.NoError(t, f.db.Model(&disputedomain.Dispute{}).Where("id = ?", dispute.ID).
		Update("status", disputedomain.DisputeStatusResolvedBuyer).Error)
	f.clock.Advance(5 * 24 * time.Hour)
	f.scheduler.RunOnce(context.Background())
	assert.Equal(t, 1, f.email.count())
}
