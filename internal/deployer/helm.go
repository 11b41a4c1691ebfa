// Package deployer installs and removes store workload bundles with helm.
package deployer

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/SHESHU45/UrumiAssignment/internal/model"
)

const (
	defaultHelmBinary       = "helm"
	defaultHelmTimeout      = 600 * time.Second
	defaultCommandTimeout   = 60 * time.Second
	defaultUninstallTimeout = 120 * time.Second
	uninstallGrace          = 10 * time.Second

	dbPasswordLength    = 24
	adminPasswordLength = 16
	ingressClassName    = "nginx"
)

// URLs are the externally reachable addresses of a store.
type URLs struct {
	StoreURL string
	AdminURL string
}

// InstallParams carries the store-specific inputs of one release.
type InstallParams struct {
	StoreID   string
	StoreName string
	Engine    model.Engine
}

// ToolError wraps a failed external tool invocation.
type ToolError struct {
	Tool     string
	Op       string
	Stderr   string
	ExitCode int32
	Err      error
}

func (e *ToolError) Error() string {
	detail := strings.TrimSpace(e.Stderr)
	if detail == "" && e.Err != nil {
		detail = e.Err.Error()
	}
	return fmt.Sprintf("%s %s failed: %s", e.Tool, e.Op, detail)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Config controls helm invocation.
type Config struct {
	Binary           string
	StoreDomain      string
	HelmTimeout      time.Duration
	CommandTimeout   time.Duration
	UninstallTimeout time.Duration
	TempDir          string
}

// HelmDeployer drives the helm CLI. Install is idempotent: an existing
// release is reported as installed without re-deploying.
type HelmDeployer struct {
	runner           CommandRunner
	log              zerolog.Logger
	binary           string
	storeDomain      string
	helmTimeout      time.Duration
	commandTimeout   time.Duration
	uninstallTimeout time.Duration
	tempDir          string
	password         func(length int) (string, error)
}

// NewHelm creates a helm-backed deployer.
func NewHelm(runner CommandRunner, cfg Config, logger zerolog.Logger) *HelmDeployer {
	if runner == nil {
		runner = ExecRunner{}
	}
	binary := strings.TrimSpace(cfg.Binary)
	if binary == "" {
		binary = defaultHelmBinary
	}
	helmTimeout := cfg.HelmTimeout
	if helmTimeout <= 0 {
		helmTimeout = defaultHelmTimeout
	}
	commandTimeout := cfg.CommandTimeout
	if commandTimeout <= 0 {
		commandTimeout = defaultCommandTimeout
	}
	uninstallTimeout := cfg.UninstallTimeout
	if uninstallTimeout <= 0 {
		uninstallTimeout = defaultUninstallTimeout
	}

	return &HelmDeployer{
		runner:           runner,
		log:              logger.With().Str("component", "deployer").Logger(),
		binary:           binary,
		storeDomain:      strings.TrimSpace(cfg.StoreDomain),
		helmTimeout:      helmTimeout,
		commandTimeout:   commandTimeout,
		uninstallTimeout: uninstallTimeout,
		tempDir:          cfg.TempDir,
		password:         generatePassword,
	}
}

// StoreURLs derives the default store and admin URLs from the store name.
func StoreURLs(storeDomain, storeName string, engine model.Engine) URLs {
	storeURL := "http://" + storeHost(storeDomain, storeName)
	return URLs{
		StoreURL: storeURL,
		AdminURL: storeURL + engine.AdminPath,
	}
}

func storeHost(storeDomain, storeName string) string {
	return storeName + "." + storeDomain
}

// ReleaseExists reports whether the release is installed in namespace.
func (d *HelmDeployer) ReleaseExists(ctx context.Context, release, namespace string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, d.commandTimeout)
	defer cancel()

	_, stderr, code, err := d.runner.Run(ctx, d.binary, "status", release, "-n", namespace)
	if err == nil {
		return true, nil
	}
	if isNotFound(string(stderr)) {
		return false, nil
	}
	return false, &ToolError{Tool: "helm", Op: "status", Stderr: string(stderr), ExitCode: code, Err: err}
}

// Install deploys the engine's chart into namespace with freshly generated
// credentials. Credentials are passed through a private values file so they
// never appear in the process arguments or logs.
func (d *HelmDeployer) Install(ctx context.Context, release, namespace string, params InstallParams) (URLs, error) {
	if !params.Engine.Supported {
		return URLs{}, fmt.Errorf("%w: %s", model.ErrEngineNotImplemented, params.Engine.DisplayName)
	}

	urls := StoreURLs(d.storeDomain, params.StoreName, params.Engine)
	logger := d.log.With().Str("release", release).Str("namespace", namespace).Logger()

	exists, err := d.ReleaseExists(ctx, release, namespace)
	if err != nil {
		return URLs{}, err
	}
	if exists {
		logger.Info().Msg("release already exists, skipping install")
		return urls, nil
	}

	values, err := d.renderValues(params)
	if err != nil {
		return URLs{}, err
	}
	valuesPath, err := d.writeValuesFile(values)
	if err != nil {
		return URLs{}, err
	}
	defer func() {
		if removeErr := os.Remove(valuesPath); removeErr != nil && !os.IsNotExist(removeErr) {
			logger.Warn().Err(removeErr).Msg("failed to remove values file")
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, d.commandTimeout)
	defer cancel()

	logger.Info().Str("chart", params.Engine.ChartPath).Msg("installing release")
	_, stderr, code, runErr := d.runner.Run(runCtx, d.binary,
		"install", release, params.Engine.ChartPath,
		"-n", namespace,
		"-f", valuesPath,
		"--timeout", d.helmTimeout.String(),
		"--wait=false",
	)
	if runErr != nil {
		if strings.Contains(string(stderr), "already exists") {
			logger.Warn().Msg("release appeared concurrently, treating install as done")
			return urls, nil
		}
		return URLs{}, &ToolError{Tool: "helm", Op: "install", Stderr: string(stderr), ExitCode: code, Err: runErr}
	}

	return urls, nil
}

// Uninstall removes the release. A missing release is success.
func (d *HelmDeployer) Uninstall(ctx context.Context, release, namespace string) error {
	runCtx, cancel := context.WithTimeout(ctx, d.uninstallTimeout+uninstallGrace)
	defer cancel()

	_, stderr, code, err := d.runner.Run(runCtx, d.binary,
		"uninstall", release,
		"-n", namespace,
		"--timeout", d.uninstallTimeout.String(),
	)
	if err == nil {
		d.log.Info().Str("release", release).Str("namespace", namespace).Msg("uninstalled release")
		return nil
	}
	if isNotFound(string(stderr)) {
		d.log.Warn().Str("release", release).Str("namespace", namespace).Msg("release not found, skipping uninstall")
		return nil
	}
	return &ToolError{Tool: "helm", Op: "uninstall", Stderr: string(stderr), ExitCode: code, Err: err}
}

func (d *HelmDeployer) renderValues(params InstallParams) (map[string]any, error) {
	host := storeHost(d.storeDomain, params.StoreName)

	values := map[string]any{
		"storeName": params.StoreName,
		"storeId":   params.StoreID,
		"ingress": map[string]any{
			"host":      host,
			"className": ingressClassName,
		},
	}

	adminPassword, err := d.password(adminPasswordLength)
	if err != nil {
		return nil, err
	}

	switch params.Engine.Name {
	case model.EngineWooCommerce:
		rootPassword, err := d.password(dbPasswordLength)
		if err != nil {
			return nil, err
		}
		userPassword, err := d.password(dbPasswordLength)
		if err != nil {
			return nil, err
		}
		values["wordpress"] = map[string]any{
			"host":          host,
			"adminUser":     "admin",
			"adminPassword": adminPassword,
			"adminEmail":    "admin@" + host,
		}
		values["mysql"] = map[string]any{
			"rootPassword": rootPassword,
			"database":     "wordpress",
			"user":         "wordpress",
			"password":     userPassword,
		}
	default:
		dbPassword, err := d.password(dbPasswordLength)
		if err != nil {
			return nil, err
		}
		values["admin"] = map[string]any{
			"user":     "admin",
			"password": adminPassword,
			"email":    "admin@" + host,
		}
		values["database"] = map[string]any{
			"password": dbPassword,
		}
	}

	return values, nil
}

func (d *HelmDeployer) writeValuesFile(values map[string]any) (string, error) {
	encoded, err := yaml.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encoding helm values: %w", err)
	}

	file, err := os.CreateTemp(d.tempDir, "store-values-*.yaml")
	if err != nil {
		return "", fmt.Errorf("creating helm values file: %w", err)
	}
	if _, err := file.Write(encoded); err != nil {
		_ = file.Close()
		_ = os.Remove(file.Name())
		return "", fmt.Errorf("writing helm values file: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(file.Name())
		return "", fmt.Errorf("closing helm values file: %w", err)
	}
	return file.Name(), nil
}

func isNotFound(stderr string) bool {
	return strings.Contains(strings.ToLower(stderr), "not found")
}

func generatePassword(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating credential: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)[:length], nil
}

// PreferIngress returns the URLs a ready store should advertise. An ingress
// URL for the default host wins, then the first ingress URL, then defaults.
func PreferIngress(defaults URLs, ingressURLs []string, adminPath string) URLs {
	if len(ingressURLs) == 0 {
		return defaults
	}

	chosen := ingressURLs[0]
	defaultHost := hostOf(defaults.StoreURL)
	for _, candidate := range ingressURLs {
		if hostOf(candidate) == defaultHost {
			chosen = candidate
			break
		}
	}
	chosen = strings.TrimSuffix(chosen, "/")
	return URLs{StoreURL: chosen, AdminURL: chosen + adminPath}
}

func hostOf(rawURL string) string {
	host := strings.TrimPrefix(strings.TrimPrefix(rawURL, "https://"), "http://")
	if idx := strings.IndexByte(host, '/'); idx >= 0 {
		host = host[:idx]
	}
	return host
}
