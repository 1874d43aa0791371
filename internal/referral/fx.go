package referral

import (
	"github.com/tumapay/tumapay/internal/referral/repository"
	referralservice "github.com/tumapay/tumapay/internal/referral/service"
	"go.uber.org/fx"
)

var Module = fx.Module("referral.service",
	fx.Provide(repository.Provide),
	fx.Provide(referralservice.NewService),
)
