package momo

import (
	"github.com/tumapay/tumapay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("momo",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Rail {
	creds := make([]Credential, 0, len(cfg.Momo.AppUsers))
	for i, user := range cfg.Momo.AppUsers {
		if i >= len(cfg.Momo.AppSecrets) {
			break
		}
		creds = append(creds, Credential{AppUser: user, AppSecret: cfg.Momo.AppSecrets[i]})
	}
	return NewClient(Config{
		BaseURL:     cfg.Momo.BaseURL,
		Credentials: creds,
		Timeout:     cfg.Momo.Timeout,
	}, nil, log)
}
