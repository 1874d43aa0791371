package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tumapay/tumapay/internal/chat"
	"github.com/tumapay/tumapay/internal/config"
	"github.com/tumapay/tumapay/internal/confirmation"
	"github.com/tumapay/tumapay/internal/dispute"
	disputeservice "github.com/tumapay/tumapay/internal/dispute/service"
	"github.com/tumapay/tumapay/internal/escalation"
	"github.com/tumapay/tumapay/internal/invoice"
	invoiceservice "github.com/tumapay/tumapay/internal/invoice/service"
	"github.com/tumapay/tumapay/internal/migration"
	"github.com/tumapay/tumapay/internal/momo"
	"github.com/tumapay/tumapay/internal/notification"
	"github.com/tumapay/tumapay/internal/observability"
	"github.com/tumapay/tumapay/internal/payment"
	"github.com/tumapay/tumapay/internal/payment/poller"
	paymentservice "github.com/tumapay/tumapay/internal/payment/service"
	"github.com/tumapay/tumapay/internal/payment/webhook"
	"github.com/tumapay/tumapay/internal/providers/email"
	"github.com/tumapay/tumapay/internal/providers/pdf"
	"github.com/tumapay/tumapay/internal/referral"
	referralservice "github.com/tumapay/tumapay/internal/referral/service"
	"github.com/tumapay/tumapay/internal/settings"
	"github.com/tumapay/tumapay/internal/settlement"
	settlementservice "github.com/tumapay/tumapay/internal/settlement/service"
	"github.com/tumapay/tumapay/internal/user"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	migration.Module,
	observability.Module,
	fx.Provide(registerGin),
	momo.Module,
	email.Module,
	pdf.Module,
	notification.Module,
	chat.Module,
	user.Module,
	confirmation.Module,
	invoice.Module,
	payment.Module,
	settlement.Module,
	referral.Module,
	dispute.Module,
	settings.Module,
	escalation.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	invoiceSvc    *invoiceservice.Service
	paymentSvc    *paymentservice.Service
	webhookSvc    *webhook.Service
	poller        *poller.Poller
	settlementSvc *settlementservice.Service
	referralSvc   *referralservice.Service
	disputeSvc    *disputeservice.Service
	settingsSvc   *settings.Service
	chatSvc       *chat.Service
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	InvoiceSvc    *invoiceservice.Service
	PaymentSvc    *paymentservice.Service
	WebhookSvc    *webhook.Service
	Poller        *poller.Poller
	SettlementSvc *settlementservice.Service
	ReferralSvc   *referralservice.Service
	DisputeSvc    *disputeservice.Service
	SettingsSvc   *settings.Service
	ChatSvc       *chat.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		log:           p.Log.Named("http.server"),
		genID:         p.GenID,
		invoiceSvc:    p.InvoiceSvc,
		paymentSvc:    p.PaymentSvc,
		webhookSvc:    p.WebhookSvc,
		poller:        p.Poller,
		settlementSvc: p.SettlementSvc,
		referralSvc:   p.ReferralSvc,
		disputeSvc:    p.DisputeSvc,
		settingsSvc:   p.SettingsSvc,
		chatSvc:       p.ChatSvc,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.MaintenanceGate())

	// -------- Invoices --------
	api.POST("/invoices", s.CreateInvoice)
	api.GET("/invoices/:invoice_number", s.GetInvoice)
	api.POST("/invoices/:invoice_number/pay", s.PaymentsGate(), s.InitiatePayment)
	api.POST("/invoices/:invoice_number/delivered", s.MarkDelivered)
	api.POST("/milestones/:id/complete", s.CompleteMilestone)

	// -------- Payments --------
	api.POST("/webhooks/momo", s.HandleMomoWebhook)
	api.GET("/poll/:invoice_number", s.PollPayment)

	// -------- Settlement --------
	api.POST("/release-funds", s.ReleaseFunds)
	api.GET("/verify-payout/:token/:id", s.PreviewPayout)
	api.POST("/verify-payout/:token/:id", s.ConfirmPayout)
	api.GET("/release-milestone/:token", s.PreviewMilestoneRelease)
	api.POST("/release-milestone/:token", s.ReleaseMilestone)

	// -------- Disputes --------
	api.POST("/dispute/open/:invoice_number", s.OpenDispute)
	api.POST("/dispute/admin/:admin_token/resolve", s.ResolveDispute)

	// -------- Referrals --------
	api.GET("/referrals/:user_id/earnings", s.ListReferralEarnings)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")

	admin.POST("/settings/:key", s.UpdateSetting)
}
