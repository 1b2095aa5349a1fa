package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	_ "github.com/campusworks/campusworks/internal/testing/guard"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, "development", cfg.AppEnv)
	require.False(t, cfg.IsProduction())
	require.Equal(t, 5*time.Minute, cfg.CatalogCacheTTL)
	require.False(t, cfg.AuthzLegacyMode)
	require.Positive(t, cfg.AuditRetention)
}

func TestConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("AUTHZ_LEGACY_MODE", "true")
	t.Setenv("CATALOG_CACHE_TTL", "30s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.True(t, cfg.AuthzLegacyMode)
	require.Equal(t, 30*time.Second, cfg.CatalogCacheTTL)
}

func TestInTestModeActiveUnderGuard(t *testing.T) {
	RefreshTestMode()
	require.True(t, InTestMode())
}
