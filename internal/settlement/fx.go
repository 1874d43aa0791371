package settlement

import (
	"github.com/tumapay/tumapay/internal/settlement/repository"
	settlementservice "github.com/tumapay/tumapay/internal/settlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("settlement.service",
	fx.Provide(repository.Provide),
	fx.Provide(settlementservice.NewService),
)
