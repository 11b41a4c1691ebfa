package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Engine names known to the platform.
const (
	EngineWooCommerce = "woocommerce"
	EngineMedusa      = "medusa"
)

var (
	// ErrUnknownEngine indicates an engine name absent from the catalog.
	ErrUnknownEngine = errors.New("unknown engine")
	// ErrEngineNotImplemented indicates a recognized engine with no deployable package yet.
	ErrEngineNotImplemented = errors.New("engine not yet implemented")
)

// Engine describes one deployable workload kind.
type Engine struct {
	Name          string `toml:"name"`
	DisplayName   string `toml:"display_name"`
	ChartPath     string `toml:"chart_path"`
	ReleasePrefix string `toml:"release_prefix"`
	AdminPath     string `toml:"admin_path"`
	Supported     bool   `toml:"supported"`
}

// ReleaseName returns the package release name for a store id.
func (e Engine) ReleaseName(storeID string) string {
	prefix := strings.TrimSpace(e.ReleasePrefix)
	if prefix == "" {
		prefix = e.Name
	}
	return prefix + "-" + storeID
}

// Catalog is the closed set of engines accepted at validation time.
type Catalog struct {
	engines map[string]Engine
}

// DefaultEngines returns the built-in engine set.
func DefaultEngines(wooChartPath string) []Engine {
	return []Engine{
		{
			Name:          EngineWooCommerce,
			DisplayName:   "WooCommerce",
			ChartPath:     wooChartPath,
			ReleasePrefix: "woo",
			AdminPath:     "/wp-admin",
			Supported:     true,
		},
		{
			Name:          EngineMedusa,
			DisplayName:   "MedusaJS",
			ReleasePrefix: "medusa",
			AdminPath:     "/admin",
			Supported:     false,
		},
	}
}

// NewCatalog builds a catalog, rejecting empty or duplicate engine names.
func NewCatalog(engines []Engine) (Catalog, error) {
	catalog := Catalog{engines: make(map[string]Engine, len(engines))}
	for _, engine := range engines {
		name := strings.ToLower(strings.TrimSpace(engine.Name))
		if name == "" {
			return Catalog{}, fmt.Errorf("engine name is required")
		}
		if _, exists := catalog.engines[name]; exists {
			return Catalog{}, fmt.Errorf("duplicate engine %q", name)
		}
		if engine.Supported && strings.TrimSpace(engine.ChartPath) == "" {
			return Catalog{}, fmt.Errorf("engine %q: chart path is required", name)
		}
		engine.Name = name
		if strings.TrimSpace(engine.DisplayName) == "" {
			engine.DisplayName = name
		}
		if strings.TrimSpace(engine.AdminPath) == "" {
			engine.AdminPath = "/admin"
		}
		catalog.engines[name] = engine
	}
	return catalog, nil
}

// Lookup returns the named engine if it is deployable.
func (c Catalog) Lookup(name string) (Engine, error) {
	engine, ok := c.engines[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Engine{}, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
	if !engine.Supported {
		return engine, fmt.Errorf("%w: %s", ErrEngineNotImplemented, engine.DisplayName)
	}
	return engine, nil
}

// Get returns the named engine regardless of whether it is deployable.
func (c Catalog) Get(name string) (Engine, bool) {
	engine, ok := c.engines[strings.ToLower(strings.TrimSpace(name))]
	return engine, ok
}

// Names returns every engine name in sorted order.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c.engines))
	for name := range c.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
