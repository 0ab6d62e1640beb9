package apikey

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-org-registry/types"
)

const (
	DevAdminKey    = "sk_dev_admin_local_only"
	DevReadOnlyKey = "sk_dev_readonly_local_only"

	devEnvironment   = "development"
	defaultDevEnvVar = "SAI_ENV"
	devReadOnlyLimit = 1000
)

// Bootstrap seeds the two well-known development keys. It is a no-op unless
// dev keys are enabled in config and the environment variable names the
// development environment. It reports whether keys were seeded.
func (m *Manager) Bootstrap(ctx context.Context, cfg *types.DevKeysConfig) (bool, error) {
	return m.bootstrap(ctx, cfg, os.LookupEnv)
}

func (m *Manager) bootstrap(ctx context.Context, cfg *types.DevKeysConfig, lookupEnv func(string) (string, bool)) (bool, error) {
	if cfg == nil || !cfg.Enabled {
		m.logger.Debug("Development keys disabled")
		return false, nil
	}

	envVar := cfg.EnvVar
	if envVar == "" {
		envVar = defaultDevEnvVar
	}

	if env, _ := lookupEnv(envVar); env != devEnvironment {
		m.logger.Warn("Development keys enabled but environment is not development, skipping",
			zap.String("env_var", envVar),
			zap.String("value", env))
		return false, nil
	}

	readOnlyLimit := devReadOnlyLimit
	seeds := []struct {
		raw    string
		record Record
	}{
		{
			raw: DevAdminKey,
			record: Record{
				KeyID:       "key_dev_admin",
				ClientName:  "development-admin",
				Name:        "Development admin key",
				Permissions: []Permission{PermissionAdmin, PermissionRead, PermissionWrite},
			},
		},
		{
			raw: DevReadOnlyKey,
			record: Record{
				KeyID:             "key_dev_readonly",
				ClientName:        "development-readonly",
				Name:              "Development read-only key",
				Permissions:       []Permission{PermissionRead},
				RateLimitOverride: &readOnlyLimit,
			},
		},
	}

	now := m.nowFunc().UTC()
	for _, seed := range seeds {
		if _, exists := m.Get(seed.record.KeyID); exists {
			continue
		}

		rec := seed.record
		rec.HashedKey = m.hasher.Hash(seed.raw)
		rec.IsActive = true
		rec.CreatedAt = now

		if err := m.insert(ctx, rec); err != nil {
			return false, err
		}
	}

	m.logger.Warn("Development API keys seeded, never enable this in production",
		zap.String("admin_key_id", "key_dev_admin"),
		zap.String("readonly_key_id", "key_dev_readonly"))

	return true, nil
}
