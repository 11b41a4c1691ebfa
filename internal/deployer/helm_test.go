package deployer

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/SHESHU45/UrumiAssignment/internal/model"
)

type runCall struct {
	name string
	args []string
}

type mockRunner struct {
	mu    sync.Mutex
	calls []runCall
	RunFn func(ctx context.Context, name string, args ...string) ([]byte, []byte, int32, error)
}

func (m *mockRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, int32, error) {
	m.mu.Lock()
	m.calls = append(m.calls, runCall{name: name, args: append([]string(nil), args...)})
	m.mu.Unlock()
	if m.RunFn != nil {
		return m.RunFn(ctx, name, args...)
	}
	return nil, nil, 0, nil
}

func (m *mockRunner) subcommands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.calls))
	for _, call := range m.calls {
		out = append(out, call.args[0])
	}
	return out
}

var errExit1 = errors.New("exit status 1")

func wooEngine() model.Engine {
	return model.Engine{
		Name:          model.EngineWooCommerce,
		DisplayName:   "WooCommerce",
		ChartPath:     "/charts/woocommerce",
		ReleasePrefix: "woo",
		AdminPath:     "/wp-admin",
		Supported:     true,
	}
}

func newTestDeployer(t *testing.T, runner CommandRunner) *HelmDeployer {
	t.Helper()
	return NewHelm(runner, Config{
		StoreDomain:      "store.localhost",
		HelmTimeout:      10 * time.Minute,
		UninstallTimeout: 2 * time.Minute,
		TempDir:          t.TempDir(),
	}, zerolog.Nop())
}

func argValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func TestInstall_RendersValuesFileAndKeepsSecretsOutOfArgs(t *testing.T) {
	var (
		valuesPath string
		rendered   map[string]any
	)
	runner := &mockRunner{}
	runner.RunFn = func(ctx context.Context, name string, args ...string) ([]byte, []byte, int32, error) {
		switch args[0] {
		case "status":
			return nil, []byte("Error: release: not found"), 1, errExit1
		case "install":
			valuesPath = argValue(args, "-f")
			info, err := os.Stat(valuesPath)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
			raw, err := os.ReadFile(valuesPath)
			require.NoError(t, err)
			require.NoError(t, yaml.Unmarshal(raw, &rendered))
		}
		return nil, nil, 0, nil
	}
	d := newTestDeployer(t, runner)

	urls, err := d.Install(context.Background(), "woo-abc12345", "store-abc12345", InstallParams{
		StoreID:   "abc12345",
		StoreName: "acme",
		Engine:    wooEngine(),
	})
	require.NoError(t, err)
	assert.Equal(t, "http://acme.store.localhost", urls.StoreURL)
	assert.Equal(t, "http://acme.store.localhost/wp-admin", urls.AdminURL)
	assert.Equal(t, []string{"status", "install"}, runner.subcommands())

	install := runner.calls[1]
	assert.Equal(t, "helm", install.name)
	assert.Equal(t, []string{"install", "woo-abc12345", "/charts/woocommerce"}, install.args[:3])
	assert.Equal(t, "store-abc12345", argValue(install.args, "-n"))
	assert.Equal(t, "10m0s", argValue(install.args, "--timeout"))
	assert.Contains(t, install.args, "--wait=false")

	require.NotNil(t, rendered)
	wordpress := rendered["wordpress"].(map[string]any)
	mysql := rendered["mysql"].(map[string]any)
	assert.Equal(t, "acme", rendered["storeName"])
	assert.Equal(t, "abc12345", rendered["storeId"])
	assert.Equal(t, "admin@acme.store.localhost", wordpress["adminEmail"])
	assert.Len(t, wordpress["adminPassword"], adminPasswordLength)
	assert.Len(t, mysql["rootPassword"], dbPasswordLength)
	assert.Len(t, mysql["password"], dbPasswordLength)
	assert.Equal(t, "nginx", rendered["ingress"].(map[string]any)["className"])

	joined := strings.Join(install.args, " ")
	for _, secret := range []any{wordpress["adminPassword"], mysql["rootPassword"], mysql["password"]} {
		assert.NotContains(t, joined, secret.(string))
	}

	_, statErr := os.Stat(valuesPath)
	assert.True(t, os.IsNotExist(statErr), "values file should be removed after install")
}

func TestInstall_ExistingReleaseSkipsInstall(t *testing.T) {
	runner := &mockRunner{}
	d := newTestDeployer(t, runner)

	urls, err := d.Install(context.Background(), "woo-abc12345", "store-abc12345", InstallParams{
		StoreID: "abc12345", StoreName: "acme", Engine: wooEngine(),
	})
	require.NoError(t, err)
	assert.Equal(t, "http://acme.store.localhost", urls.StoreURL)
	assert.Equal(t, []string{"status"}, runner.subcommands())
}

func TestInstall_AlreadyExistsRaceIsSuccess(t *testing.T) {
	runner := &mockRunner{RunFn: func(ctx context.Context, name string, args ...string) ([]byte, []byte, int32, error) {
		if args[0] == "status" {
			return nil, []byte("Error: release: not found"), 1, errExit1
		}
		return nil, []byte("Error: INSTALLATION FAILED: cannot re-use a name that is still in use: release already exists"), 1, errExit1
	}}
	d := newTestDeployer(t, runner)

	_, err := d.Install(context.Background(), "woo-abc12345", "store-abc12345", InstallParams{
		StoreID: "abc12345", StoreName: "acme", Engine: wooEngine(),
	})
	require.NoError(t, err)
}

func TestInstall_FailureCarriesStderr(t *testing.T) {
	runner := &mockRunner{RunFn: func(ctx context.Context, name string, args ...string) ([]byte, []byte, int32, error) {
		if args[0] == "status" {
			return nil, []byte("Error: release: not found"), 1, errExit1
		}
		return nil, []byte("Error: chart not loadable\n"), 1, errExit1
	}}
	d := newTestDeployer(t, runner)

	_, err := d.Install(context.Background(), "woo-abc12345", "store-abc12345", InstallParams{
		StoreID: "abc12345", StoreName: "acme", Engine: wooEngine(),
	})
	require.Error(t, err)
	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, "install", toolErr.Op)
	assert.Equal(t, int32(1), toolErr.ExitCode)
	assert.Equal(t, "helm install failed: Error: chart not loadable", err.Error())
	assert.True(t, errors.Is(err, errExit1))
}

func TestInstall_StatusFailureIsNotTreatedAsMissing(t *testing.T) {
	runner := &mockRunner{RunFn: func(ctx context.Context, name string, args ...string) ([]byte, []byte, int32, error) {
		return nil, []byte("Error: Kubernetes cluster unreachable"), 1, errExit1
	}}
	d := newTestDeployer(t, runner)

	_, err := d.Install(context.Background(), "woo-abc12345", "store-abc12345", InstallParams{
		StoreID: "abc12345", StoreName: "acme", Engine: wooEngine(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "helm status failed")
	assert.Equal(t, []string{"status"}, runner.subcommands())
}

func TestInstall_UnsupportedEngine(t *testing.T) {
	runner := &mockRunner{}
	d := newTestDeployer(t, runner)

	_, err := d.Install(context.Background(), "medusa-abc12345", "store-abc12345", InstallParams{
		StoreID:   "abc12345",
		StoreName: "acme",
		Engine:    model.Engine{Name: model.EngineMedusa, DisplayName: "MedusaJS"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrEngineNotImplemented))
	assert.Empty(t, runner.subcommands())
}

func TestUninstall(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		runner := &mockRunner{}
		d := newTestDeployer(t, runner)

		require.NoError(t, d.Uninstall(context.Background(), "woo-abc12345", "store-abc12345"))
		require.Len(t, runner.calls, 1)
		assert.Equal(t, []string{"uninstall", "woo-abc12345", "-n", "store-abc12345", "--timeout", "2m0s"}, runner.calls[0].args)
	})

	t.Run("missing release is success", func(t *testing.T) {
		runner := &mockRunner{RunFn: func(ctx context.Context, name string, args ...string) ([]byte, []byte, int32, error) {
			return nil, []byte("Error: uninstall: Release not loaded: woo-abc12345: release: not found"), 1, errExit1
		}}
		d := newTestDeployer(t, runner)

		require.NoError(t, d.Uninstall(context.Background(), "woo-abc12345", "store-abc12345"))
	})

	t.Run("failure", func(t *testing.T) {
		runner := &mockRunner{RunFn: func(ctx context.Context, name string, args ...string) ([]byte, []byte, int32, error) {
			return nil, []byte("Error: timed out waiting for the condition"), 1, errExit1
		}}
		d := newTestDeployer(t, runner)

		err := d.Uninstall(context.Background(), "woo-abc12345", "store-abc12345")
		require.Error(t, err)
		assert.Equal(t, "helm uninstall failed: Error: timed out waiting for the condition", err.Error())
	})
}

func TestStoreURLs(t *testing.T) {
	urls := StoreURLs("shop.example.com", "acme", model.Engine{AdminPath: "/admin"})
	assert.Equal(t, "http://acme.shop.example.com", urls.StoreURL)
	assert.Equal(t, "http://acme.shop.example.com/admin", urls.AdminURL)
}

func TestGeneratePassword(t *testing.T) {
	first, err := generatePassword(24)
	require.NoError(t, err)
	second, err := generatePassword(24)
	require.NoError(t, err)

	assert.Len(t, first, 24)
	assert.NotEqual(t, first, second)
	assert.NotContains(t, first, "+")
	assert.NotContains(t, first, "/")
}

func TestPreferIngress(t *testing.T) {
	defaults := URLs{StoreURL: "http://acme.store.localhost", AdminURL: "http://acme.store.localhost/wp-admin"}

	assert.Equal(t, defaults, PreferIngress(defaults, nil, "/wp-admin"))

	got := PreferIngress(defaults, []string{"http://other.example.com", "https://acme.store.localhost"}, "/wp-admin")
	assert.Equal(t, "https://acme.store.localhost", got.StoreURL)
	assert.Equal(t, "https://acme.store.localhost/wp-admin", got.AdminURL)

	got = PreferIngress(defaults, []string{"https://shop.example.com/"}, "/wp-admin")
	assert.Equal(t, "https://shop.example.com", got.StoreURL)
	assert.Equal(t, "https://shop.example.com/wp-admin", got.AdminURL)
}
