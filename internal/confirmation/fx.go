package confirmation

import (
	"github.com/tumapay/tumapay/internal/confirmation/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("confirmation.repository",
	fx.Provide(repository.Provide),
)
