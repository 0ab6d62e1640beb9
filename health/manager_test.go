package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-org-registry/config"
	"github.com/saiset-co/sai-org-registry/logger"
	"github.com/saiset-co/sai-org-registry/types"
)

func newTestManager(timeout time.Duration) *Manager {
	cfg := config.NewLoader().Defaults()
	cfg.Name = "registry"
	cfg.Version = "0.1.0"
	cfg.Health.CheckTimeout = timeout
	return NewManager(context.Background(), config.NewStatic(cfg), logger.NewNop())
}

func TestCheckAggregatesStatuses(t *testing.T) {
	hm := newTestManager(time.Second)
	hm.RegisterChecker("cache", func(ctx context.Context) types.HealthCheck {
		return types.HealthCheck{Status: types.StatusHealthy}
	})
	hm.RegisterChecker("database", func(ctx context.Context) types.HealthCheck {
		return types.HealthCheck{Status: types.StatusUnhealthy, Message: "locked"}
	})

	report := hm.Check(context.Background())

	assert.Equal(t, types.StatusUnhealthy, report.Status)
	assert.Equal(t, 2, report.Summary.Total)
	assert.Equal(t, 1, report.Summary.Healthy)
	assert.Equal(t, "database", report.Checks["database"].Name)
	assert.Equal(t, "registry", report.Service.Name)
}

func TestCheckTimeoutAndPanic(t *testing.T) {
	hm := newTestManager(50 * time.Millisecond)
	hm.RegisterChecker("slow", func(ctx context.Context) types.HealthCheck {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return types.HealthCheck{Status: types.StatusHealthy}
	})
	hm.RegisterChecker("broken", func(ctx context.Context) types.HealthCheck {
		panic("boom")
	})

	report := hm.Check(context.Background())

	require.Len(t, report.Checks, 2)
	assert.Equal(t, "Health check timeout", report.Checks["slow"].Message)
	assert.Contains(t, report.Checks["broken"].Message, "boom")
	assert.Equal(t, 2, report.Summary.Unhealthy)
}

func TestBuildInfo(t *testing.T) {
	info := Build("1.0.0")
	assert.Equal(t, "1.0.0", info.Version)
	assert.NotEmpty(t, info.GoVersion)
}
