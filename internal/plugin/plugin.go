// Package plugin loads and unloads protocol fibers at runtime. A plugin is
// anything that can declare a protocol id and produce a fiber; the loader
// guards the registry's fibered structure by refusing fibers whose id differs
// from the plugin that produced them.
package plugin

import (
	"context"

	"github.com/defiterm/defiterm/internal/fiber"
)

// Config is the effective configuration a plugin is loaded with.
type Config struct {
	Enabled bool              `yaml:"enabled"`
	Options map[string]string `yaml:"options,omitempty"`
}

// Plugin is the minimal contract a protocol integration implements. Plugins
// receive their collaborators (HTTP client, API keys, token lookup) at
// construction time; Initialize only builds the fiber.
type Plugin interface {
	ID() string
	Name() string
	Initialize(ctx context.Context, cfg Config) (*fiber.Fiber, error)
}

// ConfigDefaulter supplies a plugin's default configuration when the caller
// passes none.
type ConfigDefaulter interface {
	DefaultConfig() Config
}

// ConfigValidator lets a plugin reject configuration before Initialize runs.
type ConfigValidator interface {
	ValidateConfig(cfg Config) error
}

// CleanupPlugin is the optional teardown hook invoked on unload.
type CleanupPlugin interface {
	Cleanup(ctx context.Context) error
}

// HealthChecker is the optional liveness probe. Plugins without one are
// assumed healthy.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
