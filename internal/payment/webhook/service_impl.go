package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/tumapay/tumapay/internal/config"
	"github.com/tumapay/tumapay/internal/observability/metrics"
	paymentdomain "github.com/tumapay/tumapay/internal/payment/domain"
	"github.com/tumapay/tumapay/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Event is the rail's callback payload. Only the reference and status matter;
// amounts are re-read from our own payment row, never trusted from the wire.
type Event struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Operator  string `json:"operator"`
	Code      string `json:"code"`
}

const statusSuccessful = "SUCCESSFUL"

type Params struct {
	fx.In

	Log     *zap.Logger
	Cfg     config.Config
	Metrics *metrics.Metrics
	Service *service.Service
}

type Service struct {
	log     *zap.Logger
	secret  []byte
	metrics *metrics.Metrics
	service *service.Service
}

func NewService(p Params) *Service {
	return &Service{
		log:     p.Log.Named("payment.webhook"),
		secret:  []byte(p.Cfg.WebhookSecret),
		metrics: p.Metrics,
		service: p.Service,
	}
}

// Verify checks the hex HMAC-SHA256 signature of the raw body. Comparison is
// constant time.
func (s *Service) Verify(body []byte, signature string) error {
	if len(s.secret) == 0 {
		return paymentdomain.ErrInvalidSignature
	}
	signature = strings.TrimSpace(strings.TrimPrefix(signature, "sha256="))
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), expected) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

// Handle verifies and dispatches one callback. A duplicate delivery is not an
// error from the rail's point of view, so ErrAlreadyProcessed is swallowed
// after counting it.
func (s *Service) Handle(ctx context.Context, body []byte, signature string) error {
	if err := s.Verify(body, signature); err != nil {
		s.metrics.PaymentEvents.WithLabelValues("webhook", "bad_signature").Inc()
		return err
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		s.metrics.PaymentEvents.WithLabelValues("webhook", "bad_payload").Inc()
		return err
	}

	if !strings.EqualFold(event.Status, statusSuccessful) {
		s.log.Info("ignoring non-success webhook",
			zap.String("reference", event.Reference),
			zap.String("status", event.Status),
		)
		s.metrics.PaymentEvents.WithLabelValues("webhook", "ignored").Inc()
		return nil
	}

	if _, err := s.service.ProcessSuccessfulPayment(ctx, event.Reference); err != nil {
		if errors.Is(err, paymentdomain.ErrAlreadyProcessed) {
			s.metrics.PaymentEvents.WithLabelValues("webhook", "duplicate").Inc()
			return nil
		}
		s.metrics.PaymentEvents.WithLabelValues("webhook", "error").Inc()
		return err
	}

	s.metrics.PaymentEvents.WithLabelValues("webhook", "processed").Inc()
	return nil
}
