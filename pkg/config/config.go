// Package config loads cookery's configuration.
//
// Configuration is resolved in three layers, later layers winning:
//
//  1. Built-in defaults (per-user recipe and package directories)
//  2. A TOML config file: ./cookery.toml, then ~/.config/cookery/config.toml
//  3. Environment variables (COOKERY_RECIPES_PATH, COOKERY_PREFIX,
//     COOKERY_SEARCH_PATH, COOKERY_RESOLVER, COOKERY_CACHE,
//     COOKERY_REDIS_ADDR)
//
// Command-line flags override all of the above and are applied by the CLI,
// not here.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the config file basename looked up in the working directory
// and in the user config directory.
const FileName = "cookery.toml"

// Config holds the resolved configuration for a cookery run.
type Config struct {
	// RecipesPath is the root of the recipe repository tree.
	RecipesPath string `toml:"recipes_path"`

	// Prefix is the install prefix new packages are registered into.
	Prefix string `toml:"prefix"`

	// SearchPaths are additional prefixes searched for installed packages,
	// in order, before Prefix. Prefix itself is always searched.
	SearchPaths []string `toml:"search_paths"`

	// Resolver is an external resolver command (argv). Empty means the
	// built-in resolver.
	Resolver []string `toml:"resolver"`

	// Jobs is the default build parallelism. 1 means strictly sequential.
	Jobs int `toml:"jobs"`

	// Cache configures the graph cache backend.
	Cache CacheConfig `toml:"cache"`
}

// CacheConfig selects and configures a cache backend.
type CacheConfig struct {
	// Backend is "file" (default), "redis", or "none".
	Backend string `toml:"backend"`

	// Dir overrides the file cache directory (default ~/.cache/cookery).
	Dir string `toml:"dir"`

	// RedisAddr is the redis host:port, required for the redis backend.
	RedisAddr string `toml:"redis_addr"`

	// RedisDB is the redis database number.
	RedisDB int `toml:"redis_db"`
}

// Load resolves the configuration: defaults, then the first config file
// found, then environment overrides.
func Load() (*Config, error) {
	cfg := defaults()

	for _, path := range candidatePaths() {
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
		break
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		RecipesPath: filepath.Join(home, "cookery", "recipes"),
		Prefix:      filepath.Join(home, "cookery", "packages"),
		Jobs:        1,
		Cache:       CacheConfig{Backend: "file"},
	}
}

func candidatePaths() []string {
	paths := []string{FileName}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "cookery", "config.toml"))
	}
	return paths
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("COOKERY_RECIPES_PATH"); v != "" {
		cfg.RecipesPath = v
	}
	if v := os.Getenv("COOKERY_PREFIX"); v != "" {
		cfg.Prefix = v
	}
	if v := os.Getenv("COOKERY_SEARCH_PATH"); v != "" {
		cfg.SearchPaths = filepath.SplitList(v)
	}
	if v := os.Getenv("COOKERY_RESOLVER"); v != "" {
		cfg.Resolver = strings.Fields(v)
	}
	if v := os.Getenv("COOKERY_CACHE"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("COOKERY_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
}

// CacheDir returns the directory for the file cache backend.
func (c *Config) CacheDir() (string, error) {
	if c.Cache.Dir != "" {
		return c.Cache.Dir, nil
	}
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, "cookery"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", "cookery"), nil
}
