package escalation

import (
	"context"
	"fmt"
	"time"

	"github.com/tumapay/tumapay/internal/clock"
	"github.com/tumapay/tumapay/internal/config"
	disputedomain "github.com/tumapay/tumapay/internal/dispute/domain"
	invoicedomain "github.com/tumapay/tumapay/internal/invoice/domain"
	"github.com/tumapay/tumapay/internal/notification"
	"github.com/tumapay/tumapay/internal/observability/metrics"
	paymentdomain "github.com/tumapay/tumapay/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("escalation.scheduler",
	fx.Provide(NewScheduler),
	fx.Invoke(registerLifecycle),
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Cfg         config.Config
	Metrics     *metrics.Metrics
	PaymentRepo paymentdomain.Repository
	DisputeRepo disputedomain.Repository
	NotifySvc   *notification.Service
}

// Scheduler drives the time-based sends: payment reminders for invoices the
// buyer started but never finished paying, and admin nudges for disputes
// sitting open too long. Every send is claimed in notification_dispatch
// first, so running several instances cannot double-send.
type Scheduler struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	cfg         config.Config
	metrics     *metrics.Metrics
	paymentRepo paymentdomain.Repository
	disputeRepo disputedomain.Repository
	notifySvc   *notification.Service
}

func NewScheduler(p Params) *Scheduler {
	return &Scheduler{
		db:          p.DB,
		log:         p.Log.Named("escalation.scheduler"),
		clock:       p.Clock,
		cfg:         p.Cfg,
		metrics:     p.Metrics,
		paymentRepo: p.PaymentRepo,
		disputeRepo: p.DisputeRepo,
		notifySvc:   p.NotifySvc,
	}
}

func registerLifecycle(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				s.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			<-done
			return nil
		},
	})
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Escalation.RunInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce is one sweep. Errors are logged and the sweep moves on; a broken
// invoice must not starve the rest of the queue.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if err := s.sendPaymentReminders(ctx); err != nil {
		s.log.Warn("payment reminder sweep failed", zap.Error(err))
	}
	if err := s.escalateDisputes(ctx); err != nil {
		s.log.Warn("dispute escalation sweep failed", zap.Error(err))
	}
}

func (s *Scheduler) sendPaymentReminders(ctx context.Context) error {
	var invoices []invoicedomain.Invoice
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, invoice_number, seller_id, buyer_email, buyer_phone, gross_amount, currency, status, payment_type, created_at, expires_at, delivered_at, updated_at
		 FROM invoices
		 WHERE status = ?`,
		invoicedomain.InvoiceStatusPending,
	).Scan(&invoices).Error
	if err != nil {
		return err
	}

	now := s.clock.Now()
	for _, invoice := range invoices {
		firstAttempt, err := s.paymentRepo.FirstAttemptAt(ctx, s.db, invoice.ID)
		if err != nil {
			s.log.Warn("first attempt lookup failed", zap.String("invoice", invoice.InvoiceNumber), zap.Error(err))
			continue
		}
		if firstAttempt == nil {
			continue
		}
		elapsed := now.Sub(*firstAttempt)
		for _, level := range s.cfg.Escalation.ReminderLevels {
			if elapsed < level {
				break
			}
			s.sendReminder(ctx, invoice, level)
		}
	}
	return nil
}

func (s *Scheduler) sendReminder(ctx context.Context, invoice invoicedomain.Invoice, level time.Duration) {
	subject := fmt.Sprintf("invoice:%d", int64(invoice.ID))
	levelKey := fmt.Sprintf("reminder_%dh", int(level.Hours()))

	won, err := s.claim(ctx, subject, levelKey)
	if err != nil {
		s.log.Warn("reminder claim failed", zap.String("subject", subject), zap.Error(err))
		return
	}
	if !won {
		return
	}

	err = s.notifySvc.SendEmail(ctx, invoice.BuyerEmail, "payment_reminder", map[string]any{
		"InvoiceNumber": invoice.InvoiceNumber,
		"Amount":        fmt.Sprintf("%d", invoice.GrossAmount),
		"Currency":      invoice.Currency,
	})
	if err != nil {
		// Release the claim so the next sweep retries the send.
		s.unclaim(ctx, subject, levelKey)
		s.log.Warn("reminder send failed", zap.String("invoice", invoice.InvoiceNumber), zap.Error(err))
		return
	}
	s.metrics.Escalations.WithLabelValues("reminder").Inc()
}

func (s *Scheduler) escalateDisputes(ctx context.Context) error {
	disputes, err := s.disputeRepo.ListOpen(ctx, s.db)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	for _, dispute := range disputes {
		age := now.Sub(dispute.OpenedAt)
		for _, level := range s.cfg.Escalation.DisputeLevels {
			if age < level {
				break
			}
			s.escalateDispute(ctx, dispute, level)
		}
	}
	return nil
}

func (s *Scheduler) escalateDispute(ctx context.Context, dispute disputedomain.Dispute, level time.Duration) {
	subject := fmt.Sprintf("dispute:%d", int64(dispute.ID))
	levelKey := fmt.Sprintf("escalation_%dh", int(level.Hours()))

	won, err := s.claim(ctx, subject, levelKey)
	if err != nil {
		s.log.Warn("dispute claim failed", zap.String("subject", subject), zap.Error(err))
		return
	}
	if !won {
		return
	}

	link := fmt.Sprintf("%s/dispute/admin/%s", s.cfg.BaseURL, dispute.AdminToken)
	err = s.notifySvc.SendEmail(ctx, s.cfg.Escalation.AdminEmail, "dispute_escalation", map[string]any{
		"InvoiceNumber": fmt.Sprintf("dispute %d", int64(dispute.ID)),
		"OpenedBy":      string(dispute.OpenedBy),
		"Reason":        dispute.Reason,
		"Link":          link,
	})
	if err != nil {
		s.unclaim(ctx, subject, levelKey)
		s.log.Warn("dispute escalation send failed", zap.Int64("dispute", int64(dispute.ID)), zap.Error(err))
		return
	}
	s.metrics.Escalations.WithLabelValues("dispute").Inc()
}

func (s *Scheduler) claim(ctx context.Context, subject, level string) (bool, error) {
	res := s.db.WithContext(ctx).Exec(
		`INSERT INTO notification_dispatch (subject, level, sent_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (subject, level) DO NOTHING`,
		subject,
		level,
		s.clock.Now(),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Scheduler) unclaim(ctx context.Context, subject, level string) {
	err := s.db.WithContext(ctx).Exec(
		`DELETE FROM notification_dispatch WHERE subject = ? AND level = ?`,
		subject,
		level,
	).Error
	if err != nil {
		s.log.Warn("claim release failed", zap.String("subject", subject), zap.Error(err))
	}
}
