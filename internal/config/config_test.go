package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SHESHU45/UrumiAssignment/internal/model"
)

var allKeys = []string{
	"STORE_PLATFORM_LISTEN_ADDR",
	"STORE_PLATFORM_DB_DRIVER",
	"STORE_PLATFORM_DB_DSN",
	"STORE_PLATFORM_LOG_LEVEL",
	"KUBECONFIG",
	"STORE_PLATFORM_DASHBOARD_URL",
	"STORE_PLATFORM_DEV_MODE",
	"STORE_PLATFORM_METRICS_ENABLED",
	"STORE_PLATFORM_NAMESPACE_PREFIX",
	"STORE_PLATFORM_STORE_DOMAIN",
	"STORE_PLATFORM_DEFAULT_ENGINE",
	"STORE_PLATFORM_ENGINES_FILE",
	"STORE_PLATFORM_HELM_BINARY",
	"STORE_PLATFORM_HELM_CHART_PATH",
	"STORE_PLATFORM_HELM_TIMEOUT",
	"STORE_PLATFORM_HELM_COMMAND_TIMEOUT",
	"STORE_PLATFORM_UNINSTALL_TIMEOUT",
	"STORE_PLATFORM_NAMESPACE_DELETE_TIMEOUT",
	"STORE_PLATFORM_MAX_CONCURRENT_PROVISIONS",
	"STORE_PLATFORM_PROVISIONING_TIMEOUT",
	"STORE_PLATFORM_READINESS_POLL_INTERVAL",
	"STORE_PLATFORM_RECONCILE_INTERVAL",
	"STORE_PLATFORM_MAX_STORES_PER_USER",
	"STORE_PLATFORM_MAX_TOTAL_STORES",
	"STORE_PLATFORM_SHUTDOWN_DRAIN_TIMEOUT",
	"STORE_PLATFORM_NATS_URL",
	"STORE_PLATFORM_NATS_SUBJECT_PREFIX",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, defaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, defaultSQLiteDSN, cfg.DBDSN)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.DevMode)
	assert.True(t, cfg.MetricsEnabled)
	assert.Equal(t, "store-", cfg.NamespacePrefix)
	assert.Equal(t, "store.localhost", cfg.StoreDomain)
	assert.Equal(t, model.EngineWooCommerce, cfg.DefaultEngine)
	assert.Equal(t, "helm", cfg.HelmBinary)
	assert.Equal(t, defaultHelmChartPath, cfg.HelmChartPath)
	assert.Equal(t, 600*time.Second, cfg.HelmTimeout)
	assert.Equal(t, 60*time.Second, cfg.HelmCommandTimeout)
	assert.Equal(t, 120*time.Second, cfg.UninstallTimeout)
	assert.Equal(t, 120*time.Second, cfg.NamespaceDeleteTimeout)
	assert.Equal(t, 10, cfg.MaxConcurrentProvisions)
	assert.Equal(t, 10*time.Minute, cfg.ProvisioningTimeout)
	assert.Equal(t, 5*time.Second, cfg.ReadinessPollInterval)
	assert.Equal(t, 30*time.Second, cfg.ReconcileInterval)
	assert.Equal(t, 10, cfg.MaxStoresPerUser)
	assert.Equal(t, 50, cfg.MaxTotalStores)
	assert.Equal(t, 30*time.Second, cfg.ShutdownDrainTimeout)
	assert.Empty(t, cfg.NATSURL)
	assert.Equal(t, defaultNATSSubjectPrefix, cfg.NATSSubjectPrefix)
	assert.Equal(t, defaultDashboardURL, cfg.DashboardURL)

	catalog, err := cfg.Catalog()
	require.NoError(t, err)
	engine, err := catalog.Lookup(model.EngineWooCommerce)
	require.NoError(t, err)
	assert.Equal(t, defaultHelmChartPath, engine.ChartPath)
}

func TestLoad_Normalization(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_PLATFORM_DB_DRIVER", "Postgres")
	t.Setenv("STORE_PLATFORM_DB_DSN", "postgres://example")
	t.Setenv("STORE_PLATFORM_LOG_LEVEL", "DEBUG")
	t.Setenv("STORE_PLATFORM_DEV_MODE", "yes")
	t.Setenv("STORE_PLATFORM_METRICS_ENABLED", "off")
	t.Setenv("STORE_PLATFORM_PROVISIONING_TIMEOUT", "20s")
	t.Setenv("STORE_PLATFORM_READINESS_POLL_INTERVAL", "45s")
	t.Setenv("STORE_PLATFORM_NATS_URL", "nats://nats:4222")
	t.Setenv("STORE_PLATFORM_NATS_SUBJECT_PREFIX", " platform.stores. ")
	t.Setenv("STORE_PLATFORM_DEFAULT_ENGINE", "WooCommerce")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.DBDriver)
	assert.Equal(t, "postgres://example", cfg.DBDSN)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.DevMode)
	assert.False(t, cfg.MetricsEnabled)
	assert.Equal(t, 20*time.Second, cfg.ProvisioningTimeout)
	assert.Equal(t, 20*time.Second, cfg.ReadinessPollInterval)
	assert.Equal(t, "nats://nats:4222", cfg.NATSURL)
	assert.Equal(t, "platform.stores", cfg.NATSSubjectPrefix)
	assert.Equal(t, model.EngineWooCommerce, cfg.DefaultEngine)
}

func TestLoad_InvalidOrZeroUsesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_PLATFORM_MAX_CONCURRENT_PROVISIONS", "0")
	t.Setenv("STORE_PLATFORM_MAX_TOTAL_STORES", "-3")
	t.Setenv("STORE_PLATFORM_RECONCILE_INTERVAL", "soon")
	t.Setenv("STORE_PLATFORM_HELM_TIMEOUT", "0s")
	t.Setenv("STORE_PLATFORM_DEV_MODE", "maybe")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, defaultMaxConcurrent, cfg.MaxConcurrentProvisions)
	assert.Equal(t, defaultMaxTotalStores, cfg.MaxTotalStores)
	assert.Equal(t, defaultReconcileInterval, cfg.ReconcileInterval)
	assert.Equal(t, defaultHelmTimeout, cfg.HelmTimeout)
	assert.False(t, cfg.DevMode)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_PLATFORM_DB_DRIVER", "postgres")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("STORE_PLATFORM_DB_DRIVER", "mysql")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoad_EngineCatalogFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "engines.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[engine]]
name = "woocommerce"
display_name = "WooCommerce"
chart_path = "/charts/woo"
release_prefix = "woo"
admin_path = "/wp-admin"
supported = true

[[engine]]
name = "medusa"
display_name = "MedusaJS"
chart_path = "/charts/medusa"
release_prefix = "medusa"
supported = true
`), 0o600))
	t.Setenv("STORE_PLATFORM_ENGINES_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.Engines, 2)

	catalog, err := cfg.Catalog()
	require.NoError(t, err)

	medusa, err := catalog.Lookup("medusa")
	require.NoError(t, err)
	assert.Equal(t, "/charts/medusa", medusa.ChartPath)
	assert.Equal(t, "/admin", medusa.AdminPath)
}

func TestConfigCatalog_DefaultEngineMustExist(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_PLATFORM_DEFAULT_ENGINE", "shopify")

	cfg, err := Load()
	require.NoError(t, err)

	_, err = cfg.Catalog()
	require.Error(t, err)
	assert.False(t, errors.Is(err, model.ErrUnknownEngine))
}
