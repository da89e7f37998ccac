// Package cli implements the cookery command-line interface.
package cli

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/jmarlow/cookery/pkg/buildinfo"
	"github.com/jmarlow/cookery/pkg/cache"
	"github.com/jmarlow/cookery/pkg/config"
	"github.com/jmarlow/cookery/pkg/cook"
	"github.com/jmarlow/cookery/pkg/resolve"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for directories and display.
const appName = "cookery"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Cookery builds package dependency trees from recipes",
		Long:         `Cookery resolves a requested package and its constraints against a recipe repository, orders the dependency graph, and builds and installs everything that is not installed yet.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())

	// Register all subcommands
	root.AddCommand(c.cookCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.recipesCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner creates a pipeline runner for CLI use.
func (c *CLI) newRunner(ctx context.Context, cfg *config.Config, noCache bool) (*cook.Runner, error) {
	resolver, err := newResolver(cfg)
	if err != nil {
		return nil, err
	}
	ch, err := newCache(ctx, cfg, noCache)
	if err != nil {
		return nil, err
	}
	return cook.NewRunner(resolver, ch, c.Logger), nil
}

// newResolver picks the configured resolver: an external solver command
// when one is configured, the in-process resolver otherwise.
func newResolver(cfg *config.Config) (resolve.Resolver, error) {
	if len(cfg.Resolver) > 0 {
		return resolve.NewExecResolver(cfg.Resolver)
	}
	return resolve.NewLocalResolver(), nil
}

// newCache builds the configured cache backend. Cache trouble degrades to
// no caching rather than failing the command.
func newCache(ctx context.Context, cfg *config.Config, noCache bool) (cache.Cache, error) {
	if noCache || cfg.Cache.Backend == "none" {
		return cache.NewNullCache(), nil
	}
	if cfg.Cache.Backend == "redis" {
		return cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr: cfg.Cache.RedisAddr,
			DB:   cfg.Cache.RedisDB,
		})
	}
	dir, err := cfg.CacheDir()
	if err != nil {
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// loadConfig loads the layered configuration for a command.
func loadConfig() (*config.Config, error) {
	return config.Load()
}
