package settings

import (
	"context"
	"strconv"

	"github.com/tumapay/tumapay/internal/cache"
	"github.com/tumapay/tumapay/internal/clock"
	"github.com/tumapay/tumapay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("settings.service",
	fx.Provide(NewService),
)

const (
	KeyPaymentsBlocked = "payments_blocked"
	KeyMaintenance     = "maintenance_mode"

	cacheKey = "platform"
)

// Settings are the operational kill switches. PaymentsBlocked stops new
// charges while leaving settlements alone; Maintenance stops everything but
// health and metrics.
type Settings struct {
	PaymentsBlocked bool
	Maintenance     bool
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Cfg   config.Config
}

// Service reads platform_settings through a short process-local cache. A
// store error yields the zero value, so a broken settings table can never
// lock the platform down by itself.
type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	ttl   cache.Cache[string, Settings]
	cfg   config.Config
}

func NewService(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("settings.service"),
		clock: p.Clock,
		ttl:   cache.NewTTLCache[string, Settings](),
		cfg:   p.Cfg,
	}
}

func (s *Service) Get(ctx context.Context) Settings {
	if cached, ok := s.ttl.Get(cacheKey); ok {
		return cached
	}

	type row struct {
		Key   string
		Value string
	}
	var rows []row
	err := s.db.WithContext(ctx).Raw(
		`SELECT key, value FROM platform_settings WHERE key IN (?, ?)`,
		KeyPaymentsBlocked,
		KeyMaintenance,
	).Scan(&rows).Error
	if err != nil {
		s.log.Warn("settings read failed, failing open", zap.Error(err))
		return Settings{}
	}

	var out Settings
	for _, r := range rows {
		enabled, _ := strconv.ParseBool(r.Value)
		switch r.Key {
		case KeyPaymentsBlocked:
			out.PaymentsBlocked = enabled
		case KeyMaintenance:
			out.Maintenance = enabled
		}
	}

	s.ttl.Set(cacheKey, out, s.cfg.SettingsCacheTTL)
	return out
}

// Set upserts one switch and drops the cache so the change is visible on the
// next read instead of after the TTL.
func (s *Service) Set(ctx context.Context, key string, enabled bool) error {
	err := s.db.WithContext(ctx).Exec(
		`INSERT INTO platform_settings (key, value, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key,
		strconv.FormatBool(enabled),
		s.clock.Now(),
	).Error
	if err != nil {
		return err
	}
	s.Invalidate()
	return nil
}

func (s *Service) Invalidate() {
	s.ttl.Delete(cacheKey)
}
