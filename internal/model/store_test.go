package model

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition_Table(t *testing.T) {
	allowed := map[Status][]Status{
		StatusProvisioning: {StatusReady, StatusFailed, StatusDeleting},
		StatusReady:        {StatusDeleting},
		StatusFailed:       {StatusDeleting},
		StatusDeleting:     {StatusDeleted, StatusFailed},
	}

	for _, from := range AllStatuses {
		for _, to := range AllStatuses {
			want := false
			for _, next := range allowed[from] {
				if next == to {
					want = true
				}
			}
			assert.Equalf(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestValidateTransition(t *testing.T) {
	require.NoError(t, ValidateTransition(StatusProvisioning, StatusReady))

	err := ValidateTransition(StatusReady, StatusProvisioning)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	err = ValidateTransition(StatusDeleting, StatusDeleting)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	err = ValidateTransition(Status("Paused"), StatusReady)
	assert.True(t, errors.Is(err, ErrUnknownStatus))
}

func TestStatusTerminal(t *testing.T) {
	for _, status := range AllStatuses {
		assert.Equal(t, status == StatusDeleted, status.Terminal(), status)
	}
}

func TestParseStatus(t *testing.T) {
	status, err := ParseStatus(" Ready ")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, status)

	_, err = ParseStatus("ready")
	assert.True(t, errors.Is(err, ErrUnknownStatus))
}

func TestValidStoreName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{name: "acme", want: true},
		{name: "a", want: true},
		{name: "shop-1", want: true},
		{name: "1shop", want: true},
		{name: strings.Repeat("a", 63), want: true},
		{name: strings.Repeat("a", 64), want: false},
		{name: "", want: false},
		{name: "-shop", want: false},
		{name: "shop-", want: false},
		{name: "Shop", want: false},
		{name: "shop_1", want: false},
		{name: "shop.one", want: false},
	}

	for _, tc := range tests {
		assert.Equalf(t, tc.want, ValidStoreName(tc.name), "name %q", tc.name)
	}
}

func TestCatalog_Lookup(t *testing.T) {
	catalog, err := NewCatalog(DefaultEngines("/charts/woocommerce"))
	require.NoError(t, err)

	engine, err := catalog.Lookup("WooCommerce")
	require.NoError(t, err)
	assert.Equal(t, "woo-abc12345", engine.ReleaseName("abc12345"))
	assert.Equal(t, "/wp-admin", engine.AdminPath)

	engine, err = catalog.Lookup("medusa")
	assert.True(t, errors.Is(err, ErrEngineNotImplemented))
	assert.Equal(t, "medusa-abc12345", engine.ReleaseName("abc12345"))

	_, err = catalog.Lookup("shopify")
	assert.True(t, errors.Is(err, ErrUnknownEngine))

	assert.Equal(t, []string{"medusa", "woocommerce"}, catalog.Names())
}

func TestNewCatalog_RejectsInvalidEntries(t *testing.T) {
	_, err := NewCatalog([]Engine{{Name: ""}})
	assert.Error(t, err)

	_, err = NewCatalog([]Engine{{Name: "a", ChartPath: "/x", Supported: true}, {Name: "A", ChartPath: "/y", Supported: true}})
	assert.Error(t, err)

	_, err = NewCatalog([]Engine{{Name: "a", Supported: true}})
	assert.Error(t, err)
}
