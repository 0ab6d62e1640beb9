package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-org-registry/apikey"
	"github.com/saiset-co/sai-org-registry/sai"
	"github.com/saiset-co/sai-org-registry/types"
)

const testConfig = `
name: sai-org-registry
version: 0.1.0
server:
  http:
    host: 127.0.0.1
    port: 18080
database:
  driver: sqlite3
  dsn: ":memory:"
auth:
  hash_secret: test-secret
  store:
    type: clover
    path: %s
cache:
  type: memory
  max_size: 100
`

func writeConfig(t *testing.T, extra ...string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	content := fmt.Sprintf(testConfig, filepath.Join(dir, "keys"))
	for _, section := range extra {
		content += section
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newContainer(t *testing.T) *sai.Container {
	t.Helper()

	container := sai.InitContainer()
	require.NoError(t, registerProviders(context.Background(), container, writeConfig(t)))
	t.Cleanup(func() { closeStorage(container) })
	return container
}

func TestNewServiceRejectsMissingConfig(t *testing.T) {
	_, err := NewService(context.Background(), "")
	assert.ErrorIs(t, err, types.ErrConfigInvalidPath)

	_, err = NewService(context.Background(), filepath.Join(t.TempDir(), "absent.yml"))
	assert.Error(t, err)
}

func TestRegisterProvidersWiresRoutes(t *testing.T) {
	container := newContainer(t)

	router := *container.Router.Load()
	for _, route := range []struct{ method, path string }{
		{"GET", "/health"},
		{"GET", "/version"},
		{"GET", "/metrics"},
	} {
		info, _ := router.Lookup(route.method, route.path)
		assert.NotNil(t, info, route.path)
	}

	require.NotNil(t, container.Middlewares.Load())
	require.NotNil(t, container.Keys.Load())
	assert.NotNil(t, container.Registry.Load())
	assert.NotNil(t, container.Memoizer.Load())
}

func TestRegisterProvidersRefusesUnguardedAdminRoutes(t *testing.T) {
	cases := map[string]string{
		"middlewares disabled": "middlewares:\n  enabled: false\n",
		"auth disabled":        "middlewares:\n  auth:\n    enabled: false\n",
	}

	for name, section := range cases {
		t.Run(name, func(t *testing.T) {
			container := sai.InitContainer()
			configPath := writeConfig(t, section)
			t.Cleanup(func() { closeStorage(container) })

			err := registerProviders(context.Background(), container, configPath)
			require.ErrorIs(t, err, types.ErrRouteUnprotected)
			assert.Contains(t, err.Error(), "POST /admin/api-keys")
		})
	}
}

func TestRegisterProvidersSchedulesMaintenance(t *testing.T) {
	container := newContainer(t)

	cronManager := *container.Cron.Load()
	names := make(map[string]string)
	for _, job := range cronManager.Jobs() {
		names[job.Name] = job.Spec
	}

	assert.Equal(t, defaultSchedules, names)
}

func TestMaintenanceJobsRun(t *testing.T) {
	container := newContainer(t)
	keys := container.Keys.Load()

	_, keyID, err := keys.Generate(context.Background(), apikey.GenerateRequest{
		ClientName:  "jobs",
		Permissions: []string{"read"},
	})
	require.NoError(t, err)
	require.True(t, keys.RevokeByID(keyID))

	store := *container.Cache.Load()
	require.NoError(t, store.Set("short", "value", time.Nanosecond))
	time.Sleep(time.Millisecond)

	for _, job := range (*container.Cron.Load()).Jobs() {
		job.Job()
	}

	_, ok := store.Get("short")
	assert.False(t, ok)

	flushed, err := keys.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, flushed)
}

func TestHealthCheckers(t *testing.T) {
	container := newContainer(t)

	store := *container.Cache.Load()
	require.NoError(t, store.Start())
	defer func() { _ = store.Stop() }()

	report := (*container.Health.Load()).Check(context.Background())
	require.Len(t, report.Checks, 3)
	assert.Equal(t, types.StatusHealthy, report.Checks["cache"].Status)
	assert.Equal(t, types.StatusHealthy, report.Checks["database"].Status)
	assert.Equal(t, 0, report.Checks["apikeys"].Details["count"])
}
