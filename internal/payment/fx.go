package payment

import (
	"github.com/tumapay/tumapay/internal/payment/poller"
	"github.com/tumapay/tumapay/internal/payment/repository"
	paymentservice "github.com/tumapay/tumapay/internal/payment/service"
	"github.com/tumapay/tumapay/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
	fx.Provide(poller.New),
)
