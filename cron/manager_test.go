package cron

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-org-registry/config"
	"github.com/saiset-co/sai-org-registry/logger"
	"github.com/saiset-co/sai-org-registry/metrics"
	"github.com/saiset-co/sai-org-registry/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := config.NewLoader().Defaults()
	return NewManager(context.Background(), config.NewStatic(cfg), logger.NewNop(), metrics.NewNop(logger.NewNop()))
}

func TestAddValidatesInput(t *testing.T) {
	m := newTestManager(t)
	noop := func() {}

	assert.ErrorIs(t, m.Add("", "@every 1s", noop), types.ErrCronJobNameIsEmpty)
	assert.ErrorIs(t, m.Add("job", "", noop), types.ErrCronExpressionInvalid)
	assert.ErrorIs(t, m.Add("job", "@every 1s", nil), types.ErrCronJobIsNil)
	assert.ErrorIs(t, m.Add("job", "not a spec", noop), types.ErrCronExpressionInvalid)

	require.NoError(t, m.Add("job", "@every 1s", noop))
	assert.ErrorIs(t, m.Add("job", "@every 2s", noop), types.ErrCronJobExists)
}

func TestRunRecordsStatsAndSurvivesPanic(t *testing.T) {
	m := newTestManager(t)

	var calls int32
	require.NoError(t, m.Add("cache_cleanup_expired", "@every 60s", func() { atomic.AddInt32(&calls, 1) }))
	require.NoError(t, m.Add("broken", "@every 60s", func() { panic("boom") }))

	require.NoError(t, m.Run("cache_cleanup_expired"))
	require.NoError(t, m.Run("cache_cleanup_expired"))
	require.NoError(t, m.Run("broken"))
	assert.ErrorIs(t, m.Run("missing"), types.ErrCronJobNotFound)

	jobs := m.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "broken", jobs[0].Name)
	assert.Error(t, jobs[0].Error)
	assert.Equal(t, "cache_cleanup_expired", jobs[1].Name)
	assert.Equal(t, int64(2), jobs[1].RunCount)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestStartStop(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Start())
	assert.True(t, m.IsRunning())
	assert.ErrorIs(t, m.Start(), types.ErrCronIsRunning)
	require.NoError(t, m.Stop())
	assert.False(t, m.IsRunning())
}
