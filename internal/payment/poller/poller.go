package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tumapay/tumapay/internal/invoice/domain"
	"github.com/tumapay/tumapay/internal/momo"
	"github.com/tumapay/tumapay/internal/observability/metrics"
	paymentdomain "github.com/tumapay/tumapay/internal/payment/domain"
	"github.com/tumapay/tumapay/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// pendingTTL bounds how stale a cached PENDING answer may be before the rail
// is asked again.
const pendingTTL = 10 * time.Second

// Status is what the buyer-facing poll endpoint returns.
type Status struct {
	InvoiceNumber string `json:"invoice_number"`
	Status        string `json:"status"`
}

// pendingCache remembers which references the rail recently called PENDING.
type pendingCache interface {
	PendingRecently(ctx context.Context, reference string) bool
	RememberPending(ctx context.Context, reference string)
}

type redisCache struct {
	client *redis.Client
	log    *zap.Logger
}

func (c *redisCache) PendingRecently(ctx context.Context, reference string) bool {
	val, err := c.client.Get(ctx, pollKey(reference)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("poll cache read failed", zap.Error(err))
		}
		return false
	}
	return val == momo.StatusPending
}

func (c *redisCache) RememberPending(ctx context.Context, reference string) {
	if err := c.client.Set(ctx, pollKey(reference), momo.StatusPending, pendingTTL).Err(); err != nil {
		c.log.Warn("poll cache write failed", zap.Error(err))
	}
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Redis       *redis.Client
	Rail        momo.Rail
	Metrics     *metrics.Metrics
	Repo        paymentdomain.Repository
	InvoiceRepo domain.Repository
	Service     *service.Service
}

// Poller answers "has my payment landed yet" for the buyer's browser. The
// cheap answers come from the invoice row and a short-lived redis entry; only
// a cache miss reaches the rail, and a SUCCESSFUL answer from the rail feeds
// the same processing path the webhook uses.
type Poller struct {
	db          *gorm.DB
	log         *zap.Logger
	cache       pendingCache
	rail        momo.Rail
	metrics     *metrics.Metrics
	repo        paymentdomain.Repository
	invoiceRepo domain.Repository
	service     *service.Service
}

func New(p Params) *Poller {
	log := p.Log.Named("payment.poller")
	var cache pendingCache
	if p.Redis != nil {
		cache = &redisCache{client: p.Redis, log: log}
	}
	return &Poller{
		db:          p.DB,
		log:         log,
		cache:       cache,
		rail:        p.Rail,
		metrics:     p.Metrics,
		repo:        p.Repo,
		invoiceRepo: p.InvoiceRepo,
		service:     p.Service,
	}
}

func (p *Poller) Poll(ctx context.Context, invoiceNumber string) (Status, error) {
	invoice, err := p.invoiceRepo.FindByNumber(ctx, p.db, invoiceNumber)
	if err != nil {
		return Status{}, err
	}
	if invoice == nil {
		return Status{}, domain.ErrNotFound
	}

	if invoice.Status != domain.InvoiceStatusPending {
		return Status{InvoiceNumber: invoice.InvoiceNumber, Status: string(invoice.Status)}, nil
	}

	payment, err := p.repo.FindLatestByInvoice(ctx, p.db, invoice.ID)
	if err != nil {
		return Status{}, err
	}
	if payment == nil {
		return Status{InvoiceNumber: invoice.InvoiceNumber, Status: string(invoice.Status)}, nil
	}

	if p.cachedPending(ctx, payment.ExternalReference) {
		return Status{InvoiceNumber: invoice.InvoiceNumber, Status: string(invoice.Status)}, nil
	}

	tx, err := p.rail.TransactionStatus(ctx, payment.ExternalReference)
	if err != nil {
		// The rail being unreachable is not the buyer's problem; report the
		// last known state.
		p.log.Warn("transaction status lookup failed",
			zap.String("reference", payment.ExternalReference), zap.Error(err))
		return Status{InvoiceNumber: invoice.InvoiceNumber, Status: string(invoice.Status)}, nil
	}

	if tx.Status != momo.StatusSuccessful {
		p.rememberPending(ctx, payment.ExternalReference)
		return Status{InvoiceNumber: invoice.InvoiceNumber, Status: string(invoice.Status)}, nil
	}

	if _, err := p.service.ProcessSuccessfulPayment(ctx, payment.ExternalReference); err != nil {
		if !errors.Is(err, paymentdomain.ErrAlreadyProcessed) {
			p.metrics.PaymentEvents.WithLabelValues("poll", "error").Inc()
			return Status{}, err
		}
		p.metrics.PaymentEvents.WithLabelValues("poll", "duplicate").Inc()
	} else {
		p.metrics.PaymentEvents.WithLabelValues("poll", "processed").Inc()
	}

	return Status{InvoiceNumber: invoice.InvoiceNumber, Status: string(domain.InvoiceStatusPaid)}, nil
}

func pollKey(reference string) string {
	return fmt.Sprintf("tumapay:poll:%s", reference)
}

func (p *Poller) cachedPending(ctx context.Context, reference string) bool {
	if p.cache == nil {
		return false
	}
	return p.cache.PendingRecently(ctx, reference)
}

func (p *Poller) rememberPending(ctx context.Context, reference string) {
	if p.cache == nil {
		return
	}
	p.cache.RememberPending(ctx, reference)
}
