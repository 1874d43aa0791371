package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tumapay/tumapay/internal/config"
	"github.com/tumapay/tumapay/internal/observability/metrics"
	paymentdomain "github.com/tumapay/tumapay/internal/payment/domain"
	"go.uber.org/zap"
)

var testMetrics = metrics.New()

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newVerifier(secret string) *Service {
	return NewService(Params{
		Log:     zap.NewNop(),
		Cfg:     config.Config{WebhookSecret: secret},
		Metrics: testMetrics,
	})
}

func TestVerify_ValidSignature(t *testing.T) {
	svc := newVerifier("topsecret")
	body := []byte(`{"reference":"r1","status":"SUCCESSFUL"}`)

	assert.NoError(t, svc.Verify(body, sign("topsecret", body)))
	assert.NoError(t, svc.Verify(body, "sha256="+sign("topsecret", body)))
}

func TestVerify_RejectsBadSignature(t *testing.T) {
	svc := newVerifier("topsecret")
	body := []byte(`{"reference":"r1","status":"SUCCESSFUL"}`)

	assert.ErrorIs(t, svc.Verify(body, sign("wrong", body)), paymentdomain.ErrInvalidSignature)
	assert.ErrorIs(t, svc.Verify(body, "not-hex"), paymentdomain.ErrInvalidSignature)
	assert.ErrorIs(t, svc.Verify([]byte(`tampered`), sign("topsecret", body)), paymentdomain.ErrInvalidSignature)
}

func TestVerify_EmptySecretRefusesEverything(t *testing.T) {
	svc := newVerifier("")
	body := []byte(`{}`)
	assert.ErrorIs(t, svc.Verify(body, sign("", body)), paymentdomain.ErrInvalidSignature)
}
