package settings

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tumapay/tumapay/internal/clock"
	"github.com/tumapay/tumapay/internal/config"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var dbSeq int

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dbSeq++
	dsn := fmt.Sprintf("file:settings_%d?mode=memory&cache=shared", dbSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(
		`CREATE TABLE platform_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	).Error)

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Cfg:   config.Config{SettingsCacheTTL: time.Minute},
	})
	return svc, db
}

func TestGet_DefaultsToAllOff(t *testing.T) {
	svc, _ := newTestService(t)
	got := svc.Get(context.Background())
	assert.False(t, got.PaymentsBlocked)
	assert.False(t, got.Maintenance)
}

func TestSet_VisibleImmediately(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Prime the cache with the all-off value.
	assert.False(t, svc.Get(ctx).PaymentsBlocked)

	require.NoError(t, svc.Set(ctx, KeyPaymentsBlocked, true))
	got := svc.Get(ctx)
	assert.True(t, got.PaymentsBlocked)
	assert.False(t, got.Maintenance)

	require.NoError(t, svc.Set(ctx, KeyPaymentsBlocked, false))
	assert.False(t, svc.Get(ctx).PaymentsBlocked)
}

func TestGet_ServesFromCacheWithinTTL(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, KeyMaintenance, true))
	assert.True(t, svc.Get(ctx).Maintenance)

	// A direct write does not go through Invalidate, so the cached value
	// keeps being served until the TTL lapses.
	require.NoError(t, db.Exec(
		`UPDATE platform_settings SET value = 'false' WHERE key = ?`, KeyMaintenance,
	).Error)
	assert.True(t, svc.Get(ctx).Maintenance)

	svc.Invalidate()
	assert.False(t, svc.Get(ctx).Maintenance)
}

func TestGet_FailsOpenOnStoreError(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, KeyMaintenance, true))
	svc.Invalidate()
	require.NoError(t, db.Exec(`DROP TABLE platform_settings`).Error)

	got := svc.Get(ctx)
	assert.False(t, got.Maintenance)
	assert.False(t, got.PaymentsBlocked)
}
