package invoice

import (
	"github.com/tumapay/tumapay/internal/invoice/repository"
	invoiceservice "github.com/tumapay/tumapay/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(invoiceservice.NewService),
)
