package dispute

import (
	"github.com/tumapay/tumapay/internal/dispute/repository"
	disputeservice "github.com/tumapay/tumapay/internal/dispute/service"
	"go.uber.org/fx"
)

var Module = fx.Module("dispute.service",
	fx.Provide(repository.Provide),
	fx.Provide(disputeservice.NewService),
)
