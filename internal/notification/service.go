package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tumapay/tumapay/internal/providers/email"
	"github.com/tumapay/tumapay/internal/providers/pdf"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Email email.Provider
	PDF   pdf.Provider
}

// Service dispatches in-app rows and emails. Every send here is best-effort:
// callers on the settlement path log failures and move on.
type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	email email.Provider
	pdf   pdf.Provider
}

func NewService(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("notification.service"),
		genID: p.GenID,
		email: p.Email,
		pdf:   p.PDF,
	}
}

// Notify stores an in-app notification row.
func (s *Service) Notify(ctx context.Context, userID snowflake.ID, kind, title, body string, data map[string]any) error {
	var payload datatypes.JSON
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return err
		}
		payload = datatypes.JSON(encoded)
	}
	return s.db.WithContext(ctx).Exec(
		`INSERT INTO notifications (id, user_id, type, title, body, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.genID.Generate(),
		userID,
		kind,
		title,
		body,
		payload,
		time.Now().UTC(),
	).Error
}

// SendEmail renders one of the named templates and sends it.
func (s *Service) SendEmail(ctx context.Context, to, templateName string, data map[string]any, attachments ...email.Attachment) error {
	tmpl, ok := templates[templateName]
	if !ok {
		return fmt.Errorf("unknown email template %q", templateName)
	}
	var body bytes.Buffer
	if err := tmpl.html.Execute(&body, data); err != nil {
		return err
	}
	return s.email.Send(ctx, []string{to}, tmpl.subject, body.String(), attachments...)
}

// SendReceipt emails a payout/refund confirmation with a PDF receipt
// attached when receipt rendering succeeds.
func (s *Service) SendReceipt(ctx context.Context, to, templateName string, data map[string]any, receipt pdf.ReceiptData) error {
	var attachments []email.Attachment
	content, err := s.pdf.GenerateReceipt(ctx, receipt)
	if err != nil {
		s.log.Warn("receipt render failed", zap.String("invoice", receipt.InvoiceNumber), zap.Error(err))
	} else if len(content) > 0 {
		attachments = append(attachments, email.Attachment{
			Filename: "receipt-" + receipt.InvoiceNumber + ".pdf",
			Content:  content,
		})
	}
	return s.SendEmail(ctx, to, templateName, data, attachments...)
}

type emailTemplate struct {
	subject string
	html    *template.Template
}

var templates = map[string]emailTemplate{
	"payment_received_buyer": {
		subject: "Payment received: your release code",
		html: template.Must(template.New("payment_received_buyer").Parse(`
<p>We received your payment of {{.Amount}} {{.Currency}} for invoice {{.InvoiceNumber}}.</p>
<p>Your funds are held in escrow. Share this release code with the seller only
after delivery: <strong>{{.Code}}</strong></p>
<p>You can also release the funds yourself: <a href="{{.Link}}">confirm delivery</a>.</p>`)),
	},
	"payment_received_seller": {
		subject: "You have been paid into escrow",
		html: template.Must(template.New("payment_received_seller").Parse(`
<p>Invoice {{.InvoiceNumber}} was paid: {{.Amount}} {{.Currency}} is now held in escrow.</p>
<p>Deliver the goods or service, then ask the buyer for the release code.</p>`)),
	},
	"payout_completed": {
		subject: "Funds released",
		html: template.Must(template.New("payout_completed").Parse(`
<p>{{.Amount}} {{.Currency}} for invoice {{.InvoiceNumber}} has been sent to your
registered payout number.</p>`)),
	},
	"refund_issued": {
		subject: "Your refund has been sent",
		html: template.Must(template.New("refund_issued").Parse(`
<p>Your dispute over invoice {{.InvoiceNumber}} was resolved in your favour.
{{.Amount}} {{.Currency}} has been refunded to your payment number.</p>`)),
	},
	"payment_reminder": {
		subject: "Reminder: invoice awaiting payment",
		html: template.Must(template.New("payment_reminder").Parse(`
<p>Invoice {{.InvoiceNumber}} for {{.Amount}} {{.Currency}} is still awaiting
payment. Complete the mobile-money charge to secure your order.</p>`)),
	},
	"dispute_escalation": {
		subject: "Dispute requires attention",
		html: template.Must(template.New("dispute_escalation").Parse(`
<p>A dispute over invoice {{.InvoiceNumber}} was opened by the {{.OpenedBy}}:</p>
<blockquote>{{.Reason}}</blockquote>
<p><a href="{{.Link}}">Review and resolve</a></p>`)),
	},
}
