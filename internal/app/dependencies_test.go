package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-invoice/internal/auth"
	"github.com/noah-isme/backend-invoice/internal/config"
	"github.com/noah-isme/backend-invoice/internal/health"
	"github.com/noah-isme/backend-invoice/internal/invoice"
	"github.com/noah-isme/backend-invoice/internal/money"
)

func boltConfig(t *testing.T, extra map[string]string) *config.Config {
	t.Helper()
	env := map[string]string{
		"STORE_DRIVER": config.DriverBolt,
		"BOLT_PATH":    filepath.Join(t.TempDir(), "invoices.db"),
		"JWT_SECRET":   "test-secret",
		"REDIS_URL":    "",
	}
	for k, v := range extra {
		env[k] = v
	}
	cfg, err := config.LoadForTests(env)
	require.NoError(t, err)
	return cfg
}

func TestNewWithBoltAndNoRedis(t *testing.T) {
	cfg := boltConfig(t, nil)
	deps, err := New(t.Context(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, deps.Close()) })

	require.Nil(t, deps.Redis)
	require.Nil(t, deps.TaskClient)
	require.NotNil(t, deps.Limiter)
	require.NoError(t, deps.PingStore(t.Context()))
	require.ErrorIs(t, deps.PingRedis(t.Context()), health.ErrDisabled)

	_, err = deps.Auth.Register(t.Context(), auth.RegisterInput{Username: "admin", Password: "secret123"})
	require.NoError(t, err)

	date := time.Date(2024, 10, 7, 0, 0, 0, 0, time.UTC)
	inv, err := deps.Invoices.Create(t.Context(), invoice.Input{
		CustomerName: "Acme",
		Date:         &date,
		Items: []invoice.ItemInput{{
			ProductName: "Teak",
			Quantity:    money.MustParse("2"),
			Price:       money.MustParse("10"),
		}},
	})
	require.NoError(t, err)
	require.Equal(t, "INV-202410-001", inv.InvoiceNumber)
}

func TestNewWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := boltConfig(t, map[string]string{"REDIS_URL": "redis://" + mr.Addr() + "/0"})

	deps, err := New(t.Context(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close() })

	require.NotNil(t, deps.Redis)
	require.NotNil(t, deps.TaskClient)
	require.NoError(t, deps.PingRedis(t.Context()))
}

func TestNewRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	cfg := boltConfig(t, map[string]string{"REDIS_URL": "redis://" + addr})

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	_, err := New(ctx, cfg, zerolog.Nop())
	require.Error(t, err)
}

func TestNewLimiter(t *testing.T) {
	l, err := NewLimiter("3-M", nil)
	require.NoError(t, err)
	require.Equal(t, int64(3), l.Rate.Limit)
	require.Equal(t, time.Minute, l.Rate.Period)

	ctx := t.Context()
	for i := 0; i < 3; i++ {
		res, err := l.Get(ctx, "1.2.3.4")
		require.NoError(t, err)
		require.False(t, res.Reached)
	}
	res, err := l.Get(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.True(t, res.Reached)

	_, err = NewLimiter("lots", nil)
	require.Error(t, err)
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	_, err := OpenStore(t.Context(), &config.Config{StoreDriver: "sqlite"})
	require.Error(t, err)
}
