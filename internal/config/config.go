// Package config loads store-platform configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/SHESHU45/UrumiAssignment/internal/model"
)

const (
	defaultListenAddr             = ":3001"
	defaultDBDriver               = "sqlite"
	defaultSQLiteDSN              = "file:/app/data/store-platform.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	defaultNamespacePrefix        = "store-"
	defaultStoreDomain            = "store.localhost"
	defaultHelmBinary             = "helm"
	defaultHelmChartPath          = "/app/helm/woocommerce"
	defaultHelmTimeout            = 600 * time.Second
	defaultHelmCommandTimeout     = 60 * time.Second
	defaultUninstallTimeout       = 120 * time.Second
	defaultNamespaceDeleteTimeout = 120 * time.Second
	defaultMaxConcurrent          = 10
	defaultProvisioningTimeout    = 10 * time.Minute
	defaultReadinessPoll          = 5 * time.Second
	defaultReconcileInterval      = 30 * time.Second
	defaultMaxStoresPerUser       = 10
	defaultMaxTotalStores         = 50
	defaultEngine                 = model.EngineWooCommerce
	defaultNATSSubjectPrefix      = "store-platform.stores"
	defaultDashboardURL           = "http://localhost:5173"
	defaultDrainTimeout           = 30 * time.Second
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds service configuration values.
type Config struct {
	ListenAddr   string
	DBDriver     string
	DBDSN        string
	LogLevel     string
	Kubeconfig   string
	DashboardURL string

	DevMode        bool
	MetricsEnabled bool

	NamespacePrefix string
	StoreDomain     string
	DefaultEngine   string
	EnginesFile     string
	Engines         []model.Engine

	HelmBinary             string
	HelmChartPath          string
	HelmTimeout            time.Duration
	HelmCommandTimeout     time.Duration
	UninstallTimeout       time.Duration
	NamespaceDeleteTimeout time.Duration

	MaxConcurrentProvisions int
	ProvisioningTimeout     time.Duration
	ReadinessPollInterval   time.Duration
	ReconcileInterval       time.Duration
	MaxStoresPerUser        int
	MaxTotalStores          int
	ShutdownDrainTimeout    time.Duration

	NATSURL           string
	NATSSubjectPrefix string
}

type engineFile struct {
	Engines []model.Engine `toml:"engine"`
}

// Load reads configuration from environment variables.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:              envOrDefault("STORE_PLATFORM_LISTEN_ADDR", defaultListenAddr),
		DBDriver:                strings.ToLower(envOrDefault("STORE_PLATFORM_DB_DRIVER", defaultDBDriver)),
		DBDSN:                   envOrDefault("STORE_PLATFORM_DB_DSN", ""),
		LogLevel:                strings.ToLower(envOrDefault("STORE_PLATFORM_LOG_LEVEL", "info")),
		Kubeconfig:              envOrDefault("KUBECONFIG", ""),
		DashboardURL:            envOrDefault("STORE_PLATFORM_DASHBOARD_URL", defaultDashboardURL),
		DevMode:                 envBool("STORE_PLATFORM_DEV_MODE", false),
		MetricsEnabled:          envBool("STORE_PLATFORM_METRICS_ENABLED", true),
		NamespacePrefix:         envOrDefault("STORE_PLATFORM_NAMESPACE_PREFIX", defaultNamespacePrefix),
		StoreDomain:             envOrDefault("STORE_PLATFORM_STORE_DOMAIN", defaultStoreDomain),
		DefaultEngine:           strings.ToLower(envOrDefault("STORE_PLATFORM_DEFAULT_ENGINE", defaultEngine)),
		EnginesFile:             envOrDefault("STORE_PLATFORM_ENGINES_FILE", ""),
		HelmBinary:              envOrDefault("STORE_PLATFORM_HELM_BINARY", defaultHelmBinary),
		HelmChartPath:           envOrDefault("STORE_PLATFORM_HELM_CHART_PATH", defaultHelmChartPath),
		HelmTimeout:             envPositiveDuration("STORE_PLATFORM_HELM_TIMEOUT", defaultHelmTimeout),
		HelmCommandTimeout:      envPositiveDuration("STORE_PLATFORM_HELM_COMMAND_TIMEOUT", defaultHelmCommandTimeout),
		UninstallTimeout:        envPositiveDuration("STORE_PLATFORM_UNINSTALL_TIMEOUT", defaultUninstallTimeout),
		NamespaceDeleteTimeout:  envPositiveDuration("STORE_PLATFORM_NAMESPACE_DELETE_TIMEOUT", defaultNamespaceDeleteTimeout),
		MaxConcurrentProvisions: envPositiveInt("STORE_PLATFORM_MAX_CONCURRENT_PROVISIONS", defaultMaxConcurrent),
		ProvisioningTimeout:     envPositiveDuration("STORE_PLATFORM_PROVISIONING_TIMEOUT", defaultProvisioningTimeout),
		ReadinessPollInterval:   envPositiveDuration("STORE_PLATFORM_READINESS_POLL_INTERVAL", defaultReadinessPoll),
		ReconcileInterval:       envPositiveDuration("STORE_PLATFORM_RECONCILE_INTERVAL", defaultReconcileInterval),
		MaxStoresPerUser:        envPositiveInt("STORE_PLATFORM_MAX_STORES_PER_USER", defaultMaxStoresPerUser),
		MaxTotalStores:          envPositiveInt("STORE_PLATFORM_MAX_TOTAL_STORES", defaultMaxTotalStores),
		ShutdownDrainTimeout:    envPositiveDuration("STORE_PLATFORM_SHUTDOWN_DRAIN_TIMEOUT", defaultDrainTimeout),
		NATSURL:                 envOrDefault("STORE_PLATFORM_NATS_URL", ""),
		NATSSubjectPrefix:       envOrDefault("STORE_PLATFORM_NATS_SUBJECT_PREFIX", defaultNATSSubjectPrefix),
	}

	switch cfg.DBDriver {
	case DriverSQLite:
		if cfg.DBDSN == "" {
			cfg.DBDSN = defaultSQLiteDSN
		}
	case DriverPostgres:
		if strings.TrimSpace(cfg.DBDSN) == "" {
			return Config{}, fmt.Errorf("STORE_PLATFORM_DB_DSN is required for the postgres driver")
		}
	default:
		return Config{}, fmt.Errorf("unsupported STORE_PLATFORM_DB_DRIVER %q", cfg.DBDriver)
	}

	if cfg.ReadinessPollInterval > cfg.ProvisioningTimeout {
		cfg.ReadinessPollInterval = cfg.ProvisioningTimeout
	}
	cfg.NATSSubjectPrefix = strings.Trim(strings.TrimSpace(cfg.NATSSubjectPrefix), ".")
	if cfg.NATSSubjectPrefix == "" {
		cfg.NATSSubjectPrefix = defaultNATSSubjectPrefix
	}

	engines, err := loadEngines(cfg.EnginesFile, cfg.HelmChartPath)
	if err != nil {
		return Config{}, err
	}
	cfg.Engines = engines

	return cfg, nil
}

// Catalog builds the engine catalog and checks that the default engine is in it.
func (c Config) Catalog() (model.Catalog, error) {
	catalog, err := model.NewCatalog(c.Engines)
	if err != nil {
		return model.Catalog{}, fmt.Errorf("building engine catalog: %w", err)
	}
	found := false
	for _, name := range catalog.Names() {
		if name == c.DefaultEngine {
			found = true
			break
		}
	}
	if !found {
		return model.Catalog{}, fmt.Errorf("default engine %q is not in the engine catalog", c.DefaultEngine)
	}
	return catalog, nil
}

func loadEngines(path, wooChartPath string) ([]model.Engine, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return model.DefaultEngines(wooChartPath), nil
	}

	var file engineFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("reading engine catalog %s: %w", path, err)
	}
	if len(file.Engines) == 0 {
		return nil, fmt.Errorf("engine catalog %s declares no engines", path)
	}
	return file.Engines, nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		switch strings.ToLower(v) {
		case "yes", "on":
			return true
		case "no", "off":
			return false
		default:
			return defaultVal
		}
	}
	return b
}

func envPositiveInt(key string, defaultVal int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return defaultVal
	}
	return parsed
}

func envPositiveDuration(key string, defaultVal time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		return defaultVal
	}
	return parsed
}
